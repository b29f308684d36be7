package agent

import (
	"fmt"
	"time"
)

// MinInterval is the shortest accepted sync interval.
const MinInterval = time.Second

// Config holds the agent configuration.
type Config struct {
	// Interval is the time between two scheduled syncs.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// SyncOnStart runs a sync as soon as the agent is running.
	SyncOnStart bool `yaml:"sync_on_start" json:"sync_on_start"`
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:    time.Hour,
		SyncOnStart: true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Interval < MinInterval {
		return fmt.Errorf("sync interval %s is below the minimum of %s", c.Interval, MinInterval)
	}
	return nil
}
