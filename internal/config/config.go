package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// Config represents the configuration for kroute
type Config struct {
	Device     string
	LogLevel   string
	LogFormat  string
	SilentMode bool

	// Batch apply settings
	ConcurrencyLimit int

	// How long the demo command keeps its route installed
	DemoHold time.Duration
}

type configToml struct {
	Device           string `toml:"device"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
	Silent           bool   `toml:"silent"`
	ConcurrencyLimit int    `toml:"concurrency_limit"`
	DemoHold         string `toml:"demo_hold"`
}

// NewConfig creates a new config with default values
func NewConfig() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "json",
		ConcurrencyLimit: 4,
		DemoHold:         10 * time.Second,
	}
}

// LoadConfig returns the defaults overridden by the TOML file at path. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file error: %w", err)
	}
	if err := cfg.merge(data); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) merge(data []byte) error {
	var raw configToml
	if err := toml.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Device != "" {
		c.Device = raw.Device
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if raw.LogFormat != "" {
		if raw.LogFormat != "json" && raw.LogFormat != "text" {
			return fmt.Errorf("log_format must be json or text, got %q", raw.LogFormat)
		}
		c.LogFormat = raw.LogFormat
	}
	if raw.Silent {
		c.SilentMode = true
	}
	if raw.ConcurrencyLimit < 0 {
		return fmt.Errorf("concurrency_limit must not be negative, got %d", raw.ConcurrencyLimit)
	}
	if raw.ConcurrencyLimit > 0 {
		c.ConcurrencyLimit = raw.ConcurrencyLimit
	}
	if raw.DemoHold != "" {
		d, err := time.ParseDuration(raw.DemoHold)
		if err != nil {
			return fmt.Errorf("demo_hold: %w", err)
		}
		c.DemoHold = d
	}
	return nil
}
