package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds global scopelock configuration.
type Config struct {
	// RootDir is the base directory for persistent data (holder registry).
	RootDir string `json:"root_dir" mapstructure:"root_dir"`
	// RunDir holds the per-scope lock files.
	RunDir string `json:"run_dir" mapstructure:"run_dir"`
	// PollInterval is how often `wait` re-checks a busy scope.
	// Defaults to 200ms if zero.
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

const defaultPollInterval = 200 * time.Millisecond

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootDir:      "/var/lib/scopelock",
		RunDir:       "/var/run/scopelock",
		PollInterval: defaultPollInterval,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	conf.Normalize()
	return conf, nil
}

// Normalize fills zero-valued fields with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.RootDir == "" {
		c.RootDir = def.RootDir
	}
	if c.RunDir == "" {
		c.RunDir = def.RunDir
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}
