package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
  log_level: debug
redis:
  address: localhost:6379
listing:
  base_url: https://api.example.com
  token: secret
  page_limit: 50
budget:
  target_utilization: 0.8
  min_delay: 2s
poller:
  max_consecutive_failures: 10
  stale_after: 90s
sources:
  - submissions
  - comments
checkpoint_ttl: 24h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "https://api.example.com", cfg.Listing.BaseURL)
	assert.Equal(t, 50, cfg.Listing.PageLimit)
	assert.InEpsilon(t, 0.8, cfg.Budget.TargetUtilization, 0.001)
	assert.Equal(t, 2*time.Second, cfg.Budget.MinDelay)
	assert.Equal(t, 10, cfg.Poller.MaxConsecutiveFailures)
	assert.Equal(t, 90*time.Second, cfg.Poller.StaleAfter)
	assert.Equal(t, []string{"submissions", "comments"}, cfg.Sources)
	assert.Equal(t, 24*time.Hour, cfg.CheckpointTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_AppliesDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Listing.BaseURL = "https://api.example.com"
	cfg.Sources = []string{"submissions"}

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 100, cfg.Listing.PageLimit)
	assert.InEpsilon(t, 0.9, cfg.Budget.TargetUtilization, 0.001)
	assert.Equal(t, time.Second, cfg.Budget.MinDelay)
	assert.Equal(t, 5, cfg.Poller.MaxConsecutiveFailures)
	assert.Equal(t, 1001, cfg.Poller.SeenWindowCap)
	assert.Equal(t, 60*time.Second, cfg.Poller.StaleAfter)

	// Redis stays untouched when no address is configured.
	assert.Zero(t, cfg.Redis.DialTimeout)
	assert.Zero(t, cfg.Redis.PoolSize)
}

func TestValidate_RedisDefaultsOnlyWhenConfigured(t *testing.T) {
	cfg := &Config{}
	cfg.Listing.BaseURL = "https://api.example.com"
	cfg.Sources = []string{"submissions"}
	cfg.Redis.Address = "localhost:6379"

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}

func TestValidate_Errors(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Listing.BaseURL = "https://api.example.com"
		cfg.Sources = []string{"submissions"}

		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no sources", mutate: func(c *Config) { c.Sources = nil }},
		{name: "empty source", mutate: func(c *Config) { c.Sources = []string{""} }},
		{name: "duplicate sources", mutate: func(c *Config) { c.Sources = []string{"a", "a"} }},
		{name: "missing base url", mutate: func(c *Config) { c.Listing.BaseURL = "" }},
		{name: "bad log level", mutate: func(c *Config) { c.Server.LogLevel = "verbose" }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "utilization above one", mutate: func(c *Config) { c.Budget.TargetUtilization = 1.2 }},
		{name: "negative failure ceiling", mutate: func(c *Config) { c.Poller.MaxConsecutiveFailures = -1 }},
		{name: "negative checkpoint ttl", mutate: func(c *Config) { c.CheckpointTTL = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			assert.Error(t, cfg.Validate())
		})
	}
}
