// Package logging provides component loggers for ferry. Output goes to a
// rotating log file so it never interferes with the terminal the transfer
// runs over.
//
// Basic usage:
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("transfer")
//	logger.Info("transfer complete", "files", 12)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// MaxSize is the size in megabytes at which the file is rotated.
	MaxSize int

	// MaxAge is the number of days to keep rotated files. Zero keeps them
	// regardless of age.
	MaxAge int

	// MaxBackups is the number of rotated files to keep. Zero keeps all.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig returns the default rotation settings.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10,
		MaxAge:     30,
		MaxBackups: 5,
		Compress:   true,
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components maps component names to their own log levels.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level. Empty
	// disables it.
	ConsoleLevel string

	// TUIMode suppresses console output while the terminal UI owns the
	// screen.
	TUIMode bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}

// DefaultLogPath returns $XDG_STATE_HOME/ferry/ferry.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "ferry", "ferry.log")
}

// Logger is a component logger. It writes to the log file and, when
// configured, to stderr.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// With returns a logger that adds the given key/value pairs to every entry.
func (l *Logger) With(args ...interface{}) *Logger {
	out := &Logger{file: l.file.With(args...), component: l.component}
	if l.console != nil {
		out.console = l.console.With(args...)
	}
	return out
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	logTo(l.file, level, msg, args...)
	if l.console != nil {
		logTo(l.console, level, msg, args...)
	}
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      io.WriteCloser
	level       Level
	components  map[string]Level
	loggers     map[string]*Logger

	consoleEnabled bool
	consoleLevel   Level
}

var globalState = &state{
	loggers:    make(map[string]*Logger),
	components: make(map[string]Level),
}

// Init configures logging. Loggers obtained earlier with Get are rebuilt
// with the new settings. Before Init, all loggers discard their output.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	consoleEnabled := false
	var consoleLevel Level
	if cfg.ConsoleLevel != "" && !cfg.TUIMode {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		consoleEnabled = true
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	if globalState.writer != nil {
		if err := globalState.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
	}

	globalState.writer = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.Rotation.MaxSize,
		MaxAge:     cfg.Rotation.MaxAge,
		MaxBackups: cfg.Rotation.MaxBackups,
		Compress:   cfg.Rotation.Compress,
	}
	globalState.level = level
	globalState.components = components
	globalState.consoleEnabled = consoleEnabled
	globalState.consoleLevel = consoleLevel
	globalState.initialized = true

	for component := range globalState.loggers {
		globalState.loggers[component] = createLogger(component)
	}
	return nil
}

// Get returns the logger for a component, honoring any per-component level.
func Get(component string) *Logger {
	globalState.mu.RLock()
	logger, ok := globalState.loggers[component]
	globalState.mu.RUnlock()
	if ok {
		return logger
	}

	globalState.mu.Lock()
	defer globalState.mu.Unlock()
	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}
	logger = createLogger(component)
	globalState.loggers[component] = logger
	return logger
}

// createLogger must be called with globalState.mu held.
func createLogger(component string) *Logger {
	level := globalState.level
	if lvl, ok := globalState.components[component]; ok {
		level = lvl
	}

	if !globalState.initialized {
		return &Logger{
			file:      log.NewWithOptions(io.Discard, log.Options{Level: level.charm(), Prefix: component}),
			component: component,
		}
	}

	logger := &Logger{
		file: log.NewWithOptions(globalState.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		component: component,
	}
	if globalState.consoleEnabled {
		logger.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           globalState.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return logger
}

// Close flushes and closes the log file. Loggers go back to discarding.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	var err error
	if globalState.writer != nil {
		if cerr := globalState.writer.Close(); cerr != nil {
			err = fmt.Errorf("closing log writer: %w", cerr)
		}
		globalState.writer = nil
	}

	globalState.initialized = false
	globalState.loggers = make(map[string]*Logger)
	globalState.components = make(map[string]Level)
	return err
}
