package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0, cfg.MaxParallel)
	assert.Equal(t, 2*time.Hour, cfg.Timeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "push", cfg.DefaultEvent)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 90, cfg.History.KeepDays)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
max_parallel: 3
timeout: 45m
log_level: debug
default_event: pull_request
history:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxParallel)
	assert.Equal(t, 45*time.Minute, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "pull_request", cfg.DefaultEvent)
	assert.False(t, cfg.History.Enabled)

	// Untouched fields keep their defaults.
	assert.Equal(t, filepath.Join(DefaultDir, "logs"), cfg.LogDir)
	assert.Equal(t, 90, cfg.History.KeepDays)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{{"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigInvalidTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative max_parallel", "max_parallel: -2\n"},
		{"bad log level", "log_level: loud\n"},
		{"negative keep_days", "history:\n  keep_days: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, DefaultDir), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, DefaultDir, "config.yaml"),
		[]byte("max_parallel: 7\n"), 0644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxParallel)
}

func TestConfigMerge(t *testing.T) {
	cfg := DefaultConfig()

	maxParallel := 5
	timeout := 10 * time.Minute
	level := "warn"
	failFast := false
	noHistory := true

	cfg.Merge(Overrides{
		MaxParallel: &maxParallel,
		Timeout:     &timeout,
		LogLevel:    &level,
		FailFast:    &failFast,
		NoHistory:   &noHistory,
	})

	assert.Equal(t, 5, cfg.MaxParallel)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	require.NotNil(t, cfg.FailFast)
	assert.False(t, *cfg.FailFast)
	assert.False(t, cfg.History.Enabled)

	// Nil overrides leave values untouched.
	before := *cfg
	cfg.Merge(Overrides{})
	assert.Equal(t, before, *cfg)
}
