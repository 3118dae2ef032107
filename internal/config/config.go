//nolint:tagliatelle // superior snake-case yo.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamwatch/streamwatch/internal/budget"
	"github.com/streamwatch/streamwatch/internal/listing"
	"github.com/streamwatch/streamwatch/internal/poller"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Redis   RedisConfig        `yaml:"redis"`
	Listing listing.HTTPConfig `yaml:"listing"`
	Budget  budget.Config      `yaml:"budget"`
	Poller  poller.Config      `yaml:"poller"`

	// Sources are the listing endpoints to watch, polled in the order
	// given (earlier sources are checked first each round).
	Sources []string `yaml:"sources"`

	// CheckpointTTL bounds how long persisted resume anchors live.
	// Zero keeps them forever.
	CheckpointTTL time.Duration `yaml:"checkpoint_ttl"`
}

// ServerConfig contains ops HTTP server settings (health and metrics).
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// RedisConfig holds Redis client configuration. An empty address disables
// checkpoint persistence entirely.
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and sets defaults.
func (c *Config) Validate() error {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}

	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}

	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	// Redis is optional; when configured, its settings need defaults
	if c.Redis.Address != "" {
		if c.Redis.DialTimeout == 0 {
			c.Redis.DialTimeout = 5 * time.Second
		}

		if c.Redis.PoolSize == 0 {
			c.Redis.PoolSize = 10
		}
	}

	if err := c.Listing.Validate(); err != nil {
		return fmt.Errorf("listing: %w", err)
	}

	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("budget: %w", err)
	}

	if err := c.Poller.Validate(); err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	// At least one source, no duplicates
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	sourceNames := make(map[string]bool, len(c.Sources))

	for i, source := range c.Sources {
		if source == "" {
			return fmt.Errorf("sources[%d] cannot be empty", i)
		}

		if sourceNames[source] {
			return fmt.Errorf("duplicate source: %s", source)
		}

		sourceNames[source] = true
	}

	if c.CheckpointTTL < 0 {
		return fmt.Errorf("checkpoint_ttl cannot be negative")
	}

	return nil
}
