// Package config provides pkglens configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all pkglens settings.
type Config struct {
	// State directory for the JSON state files.
	StateDir string `mapstructure:"state_dir"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`

	// Subprocess handling
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// Verification fan-out
	VerifyWorkers int `mapstructure:"verify_workers"`

	// Optional YAML conflict-rule table override
	RulesFile string `mapstructure:"rules_file"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     "127.0.0.1:8008",
		CommandTimeout: 60 * time.Second,
		VerifyWorkers:  4,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads configuration from file and environment. The config file is
// optional: ~/.config/pkglens/pkglens.yaml (respecting XDG_CONFIG_HOME) or
// the current directory. Every key can be overridden via PKGLENS_* env vars.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("pkglens")
	v.SetConfigType("yaml")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("PKGLENS")
	v.AutomaticEnv()

	// Registering defaults makes env-only overrides visible to Unmarshal.
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("command_timeout", cfg.CommandTimeout)
	v.SetDefault("verify_workers", cfg.VerifyWorkers)
	v.SetDefault("rules_file", cfg.RulesFile)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".pkglens")
	}

	return cfg, nil
}

// configDir returns the pkglens config directory, respecting
// XDG_CONFIG_HOME. Defaults to ~/.config/pkglens.
func configDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pkglens"), nil
}
