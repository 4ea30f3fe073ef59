// Package config holds all addhost configuration: the registered module,
// the script host limits, and bundle output settings. Configuration lives
// in a YAML file; a few fields can be overridden through the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all addhost configuration.
type Config struct {
	Module  ModuleConfig  `yaml:"module"`
	Host    HostConfig    `yaml:"host"`
	Bundle  BundleConfig  `yaml:"bundle"`
	Logging LoggingConfig `yaml:"logging"`
}

// ModuleConfig identifies the registered extension module.
type ModuleConfig struct {
	Name string `yaml:"name"`
}

// HostConfig bounds the script host.
type HostConfig struct {
	// EvalTimeout bounds a single script evaluation ("30s", "0" disables).
	EvalTimeout string `yaml:"eval_timeout"`

	// AllowedImports replaces the host's default stdlib whitelist when set.
	AllowedImports []string `yaml:"allowed_imports"`
}

// BundleConfig configures bundle output.
type BundleConfig struct {
	Version   string `yaml:"version"`
	OutputDir string `yaml:"output_dir"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Module: ModuleConfig{Name: "demo"},
		Host: HostConfig{
			EvalTimeout: "30s",
		},
		Bundle: BundleConfig{
			Version:   "0.1.0",
			OutputDir: "dist",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, layered over the defaults, then
// applies environment overrides and validates. An empty path yields the
// defaults (still subject to overrides).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADDHOST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ADDHOST_EVAL_TIMEOUT"); v != "" {
		c.Host.EvalTimeout = v
	}
	if v := os.Getenv("ADDHOST_BUNDLE_DIR"); v != "" {
		c.Bundle.OutputDir = v
	}
}

// Validate checks field values without touching the filesystem.
func (c *Config) Validate() error {
	if c.Module.Name == "" {
		return fmt.Errorf("module.name required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q invalid (want debug, info, warn or error)", c.Logging.Level)
	}
	if _, err := c.EvalTimeout(); err != nil {
		return err
	}
	return nil
}

// EvalTimeout parses host.eval_timeout. Zero disables the timeout.
func (c *Config) EvalTimeout() (time.Duration, error) {
	if c.Host.EvalTimeout == "" || c.Host.EvalTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Host.EvalTimeout)
	if err != nil {
		return 0, fmt.Errorf("host.eval_timeout %q invalid: %w", c.Host.EvalTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("host.eval_timeout %q must not be negative", c.Host.EvalTimeout)
	}
	return d, nil
}
