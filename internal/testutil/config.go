package testutil

import (
	"github.com/streamwatch/streamwatch/internal/config"
)

// NewTestConfig returns a minimal valid config for testing.
func NewTestConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Sources: []string{"submissions"},
	}
	cfg.Listing.BaseURL = "https://api.example.com"

	return cfg
}
