// Package config loads gantry configuration from .gantry/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the per-workspace state directory.
const DefaultDir = ".gantry"

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled enables run history recording
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// KeepDays is the number of days to keep run history
	KeepDays int `yaml:"keep_days"`
}

// Config represents gantry configuration options
type Config struct {
	// MaxParallel is the global cap on concurrent matrix instances
	// (0 = use each job's strategy only)
	MaxParallel int `yaml:"max_parallel"`

	// Timeout is the maximum execution time for a whole run
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets console verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written
	LogDir string `yaml:"log_dir"`

	// FailFast overrides fail-fast for every job strategy when set
	FailFast *bool `yaml:"fail_fast"`

	// DefaultEvent is the trigger event used when --event is not given
	DefaultEvent string `yaml:"default_event"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		MaxParallel:  0, // per-job strategy only
		Timeout:      2 * time.Hour,
		LogLevel:     "info",
		LogDir:       filepath.Join(DefaultDir, "logs"),
		DefaultEvent: "push",
		History: HistoryConfig{
			Enabled:  true,
			DBPath:   filepath.Join(DefaultDir, "history.db"),
			KeepDays: 90,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are written as strings ("2h", "30m"), so decode through an
	// intermediate struct.
	type yamlHistory struct {
		Enabled  *bool  `yaml:"enabled"`
		DBPath   string `yaml:"db_path"`
		KeepDays *int   `yaml:"keep_days"`
	}
	type yamlConfig struct {
		MaxParallel  *int        `yaml:"max_parallel"`
		Timeout      string      `yaml:"timeout"`
		LogLevel     string      `yaml:"log_level"`
		LogDir       string      `yaml:"log_dir"`
		FailFast     *bool       `yaml:"fail_fast"`
		DefaultEvent string      `yaml:"default_event"`
		History      yamlHistory `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if yamlCfg.MaxParallel != nil {
		cfg.MaxParallel = *yamlCfg.MaxParallel
	}
	if yamlCfg.Timeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", yamlCfg.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.FailFast != nil {
		cfg.FailFast = yamlCfg.FailFast
	}
	if yamlCfg.DefaultEvent != "" {
		cfg.DefaultEvent = yamlCfg.DefaultEvent
	}
	if yamlCfg.History.Enabled != nil {
		cfg.History.Enabled = *yamlCfg.History.Enabled
	}
	if yamlCfg.History.DBPath != "" {
		cfg.History.DBPath = yamlCfg.History.DBPath
	}
	if yamlCfg.History.KeepDays != nil {
		cfg.History.KeepDays = *yamlCfg.History.KeepDays
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadConfigFromDir loads .gantry/config.yaml relative to dir, falling
// back to defaults when absent.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, DefaultDir, "config.yaml"))
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel cannot be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.History.KeepDays < 0 {
		return fmt.Errorf("history keep_days cannot be negative")
	}
	return nil
}

// Overrides carries explicitly-set CLI flag values. Nil fields leave the
// file (or default) value untouched.
type Overrides struct {
	MaxParallel *int
	Timeout     *time.Duration
	LogLevel    *string
	LogDir      *string
	FailFast    *bool
	Event       *string
	NoHistory   *bool
}

// Merge applies CLI overrides on top of the loaded configuration.
// CLI flags win over file values only when explicitly set.
func (c *Config) Merge(o Overrides) {
	if o.MaxParallel != nil {
		c.MaxParallel = *o.MaxParallel
	}
	if o.Timeout != nil {
		c.Timeout = *o.Timeout
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.LogDir != nil {
		c.LogDir = *o.LogDir
	}
	if o.FailFast != nil {
		c.FailFast = o.FailFast
	}
	if o.Event != nil {
		c.DefaultEvent = *o.Event
	}
	if o.NoHistory != nil && *o.NoHistory {
		c.History.Enabled = false
	}
}
