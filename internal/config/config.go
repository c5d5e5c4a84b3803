// Package config loads server settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config defines runtime settings for the workflow server.
type Config struct {
	Addr        string        `yaml:"addr"`
	Store       StoreConfig   `yaml:"store"`
	LogLevel    string        `yaml:"logLevel"`
	LogFormat   string        `yaml:"logFormat"`
	RunTimeout  time.Duration `yaml:"runTimeout"`
	AutoMigrate bool          `yaml:"autoMigrate"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Addr:       ":3000",
		Store:      StoreConfig{Driver: DriverPostgres},
		LogLevel:   "info",
		LogFormat:  "json",
		RunTimeout: 30 * time.Second,
	}
}

// Load reads path (if not empty) over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("WORKFLOW_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("WORKFLOW_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("WORKFLOW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WORKFLOW_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("WORKFLOW_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse WORKFLOW_RUN_TIMEOUT: %w", err)
		}
		c.RunTimeout = d
	}
	if v := os.Getenv("WORKFLOW_AUTO_MIGRATE"); v != "" {
		c.AutoMigrate = v == "1" || v == "true"
	}
	return nil
}

// Validate checks that the settings can be used to start a server.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("store dsn is not set (DATABASE_URL)")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive, got %s", c.RunTimeout)
	}
	return nil
}

// DefaultPath returns the config file named by WORKFLOW_CONFIG, if any.
func DefaultPath() string {
	return os.Getenv("WORKFLOW_CONFIG")
}
