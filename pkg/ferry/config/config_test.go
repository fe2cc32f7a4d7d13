package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultMode, cfg.Mode)
	assert.False(t, cfg.ConfirmPaths)
	assert.Equal(t, DefaultCancelGrace, cfg.CancelGrace)
	assert.Equal(t, DefaultTerminateGrace, cfg.TerminateGrace)
	assert.True(t, cfg.Compression.Enabled)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "warn", cfg.Logging.Components["transport"])

	minSize, err := cfg.CompressMinSize()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), minSize)
	assert.Equal(t, DefaultJournalPath(), cfg.JournalPath())
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, ".config", "ferry")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	configContent := `
mode: mirror
confirm_paths: true
cancel_grace: 10s
terminate_grace: 500ms
compression:
  enabled: false
journal:
  path: ~/ferry-journal
logging:
  level: debug
  rotation:
    max_size: 20MB
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configContent), 0o644))

	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mirror", cfg.Mode)
	assert.True(t, cfg.ConfirmPaths)
	assert.Equal(t, 10*time.Second, cfg.CancelGrace)
	assert.Equal(t, 500*time.Millisecond, cfg.TerminateGrace)
	assert.Equal(t, filepath.Join(tempDir, "ferry-journal"), cfg.JournalPath())

	minSize, err := cfg.CompressMinSize()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), minSize)

	logCfg, err := cfg.LogConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, 20, logCfg.Rotation.MaxSize)
	assert.Equal(t, 5, logCfg.Rotation.MaxBackups)
}

func TestLoad_XDGConfigHome(t *testing.T) {
	xdgDir := t.TempDir()
	configDir := filepath.Join(xdgDir, "ferry")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("confirm_paths: true\n"), 0o644))

	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", xdgDir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ConfirmPaths)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("FERRY_MODE", "mirror")
	t.Setenv("FERRY_COMPRESSION_MIN_SIZE", "1MB")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mirror", cfg.Mode)

	minSize, err := cfg.CompressMinSize()
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024), minSize)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mode: mirror\n"), 0o644))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "mirror", cfg.Mode)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestCompressMinSize_Invalid(t *testing.T) {
	cfg := &Config{Compression: CompressionConfig{Enabled: true, MinSize: "lots"}}
	_, err := cfg.CompressMinSize()
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	path, err := WriteDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, ".config", "ferry", "config.yaml"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "cancel_grace: 5s")

	// The written file loads back to the defaults.
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultCancelGrace, cfg.CancelGrace)

	// An existing file is left alone.
	require.NoError(t, os.WriteFile(path, []byte("mode: mirror\n"), 0o644))
	_, err = WriteDefault()
	require.NoError(t, err)
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mode: mirror\n", string(content))
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		input string
		want  string
	}{
		{"~", home},
		{"~/Downloads", filepath.Join(home, "Downloads")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~other/x", "~other/x"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, Expand(tt.input))
		})
	}
}
