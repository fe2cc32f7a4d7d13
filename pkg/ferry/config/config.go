package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/jamesainslie/ferry/pkg/ferry/logging"
	"github.com/jamesainslie/ferry/pkg/ferry/types"
	"github.com/spf13/viper"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// CompressionConfig controls per-file compression requests.
type CompressionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	MinSize string `mapstructure:"min_size"`
}

// JournalConfig controls the record of past sessions.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config represents the application configuration.
type Config struct {
	Mode           string            `mapstructure:"mode"`
	ConfirmPaths   bool              `mapstructure:"confirm_paths"`
	CancelGrace    time.Duration     `mapstructure:"cancel_grace"`
	TerminateGrace time.Duration     `mapstructure:"terminate_grace"`
	Compression    CompressionConfig `mapstructure:"compression"`
	Journal        JournalConfig     `mapstructure:"journal"`
	Logging        LoggingConfig     `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/ferry/config.yaml
//   - $HOME/.config/ferry/config.yaml
//
// Environment variables are prefixed with FERRY_ (e.g., FERRY_CONFIRM_PATHS).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is like Load but reads the given file when path is not empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "ferry"))
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "ferry"))
	}

	v.SetEnvPrefix("FERRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", DefaultMode)
	v.SetDefault("confirm_paths", false)
	v.SetDefault("cancel_grace", DefaultCancelGrace)
	v.SetDefault("terminate_grace", DefaultTerminateGrace)
	v.SetDefault("compression.enabled", true)
	v.SetDefault("compression.min_size", DefaultCompressMinSize)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "") // Empty means DefaultJournalPath

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.compress", true)
	v.SetDefault("logging.components", DefaultComponents)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Journal.Path, err = ExpandPath(cfg.Journal.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CompressMinSize returns the size threshold for compression, or -1 when
// compression is disabled.
func (c *Config) CompressMinSize() (int64, error) {
	if !c.Compression.Enabled {
		return -1, nil
	}
	size, err := types.ParseSize(c.Compression.MinSize)
	if err != nil {
		return 0, fmt.Errorf("compression.min_size: %w", err)
	}
	return size, nil
}

// JournalPath returns the configured journal directory or the default.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return DefaultJournalPath()
}

// LogConfig converts the logging section for logging.Init.
func (c *Config) LogConfig() (logging.Config, error) {
	out := logging.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.Path,
		Components: c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Compress:   c.Logging.Rotation.Compress,
		},
	}
	if c.Logging.Rotation.MaxSize != "" {
		size, err := types.ParseSize(c.Logging.Rotation.MaxSize)
		if err != nil {
			return out, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		out.Rotation.MaxSize = int(max(1, size/types.MiB))
	}
	return out, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "ferry"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "ferry"), nil
}

// ConfigFile returns the path of the default config file.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configPath, err := ConfigFile()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# ferry configuration

# Placement mode: normal (everything goes to the destination) or mirror
# (each source is recreated at its own path)
mode: %s

# Show the planned transfers and ask before requesting any content
confirm_paths: false

# How long to wait for the terminal to acknowledge a cancel
cancel_grace: %s
terminate_grace: %s

# Ask the sender to compress large, compressible files
compression:
  enabled: true
  min_size: %s

# Keep a journal of past sessions (see: ferry history)
journal:
  enabled: true
  # Empty means use default: $XDG_DATA_HOME/ferry/journal
  path: ""

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/ferry/ferry.log)
  path: ""
  rotation:
    max_size: %s
    max_age: 30       # days
    max_backups: 5
    compress: true
  # Per-component log levels
  components:
    transfer: info
    session: info
    transport: warn
    journal: info
`, DefaultMode, DefaultCancelGrace, DefaultTerminateGrace, DefaultCompressMinSize, DefaultLogMaxSize)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}

// ExpandPath expands a leading ~ or ~/ to the user's home directory.
// Other paths, including ~user forms, are returned unchanged.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// Expand is ExpandPath for callers that want a plain string function; the
// path is returned unchanged when the home directory is unknown.
func Expand(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// DataDir returns $XDG_DATA_HOME/ferry/.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "ferry")
}

// DefaultJournalPath returns the default journal database directory.
func DefaultJournalPath() string {
	return filepath.Join(DataDir(), "journal")
}
