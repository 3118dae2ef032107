package poller

import (
	"fmt"
	"time"
)

// Config holds per-poller configuration.
type Config struct {
	// MaxConsecutiveFailures is how many fetch failures in a row move the
	// poller to Dead.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// SeenWindowCap bounds the dedup memory of already-yielded ids.
	SeenWindowCap int `yaml:"seen_window_cap"`

	// StaleAfter triggers a full (unanchored) fetch when no new item has
	// been yielded for this long. Listings anchored on a deleted item
	// return empty pages forever; a periodic full fetch recovers from that
	// silently broken state.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Validate validates and sets defaults for Config.
func (c *Config) Validate() error {
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = 5
	}

	if c.SeenWindowCap == 0 {
		c.SeenWindowCap = 1001
	}

	if c.StaleAfter == 0 {
		c.StaleAfter = 60 * time.Second
	}

	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be at least 1, got %d", c.MaxConsecutiveFailures)
	}

	if c.SeenWindowCap < 1 {
		return fmt.Errorf("seen_window_cap must be at least 1, got %d", c.SeenWindowCap)
	}

	if c.StaleAfter < 1*time.Second {
		return fmt.Errorf("stale_after must be at least 1 second, got %v", c.StaleAfter)
	}

	return nil
}
