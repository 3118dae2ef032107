package budget

import (
	"fmt"
	"time"
)

// Config holds rate budget counter configuration.
type Config struct {
	// TargetUtilization is the fraction of the window's capacity the
	// counter aims to spend, leaving the rest as reserve for activity
	// spikes and unseen consumers.
	TargetUtilization float64 `yaml:"target_utilization"`

	// MinDelay is the floor applied to every computed delay, and the
	// fallback when no authoritative rate state has been observed yet.
	MinDelay time.Duration `yaml:"min_delay"`
}

// Validate validates and sets defaults for Config.
func (c *Config) Validate() error {
	if c.TargetUtilization == 0 {
		c.TargetUtilization = 0.9
	}

	if c.MinDelay == 0 {
		c.MinDelay = 1 * time.Second
	}

	if c.TargetUtilization < 0 || c.TargetUtilization > 1 {
		return fmt.Errorf("target_utilization must be in (0, 1], got %v", c.TargetUtilization)
	}

	if c.MinDelay < 0 {
		return fmt.Errorf("min_delay must be positive, got %v", c.MinDelay)
	}

	return nil
}
