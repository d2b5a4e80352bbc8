package controller

import (
	"fmt"
	"time"
)

// Config sets the loop cadence.
type Config struct {
	CadenceSeconds float64 `json:"cadence_seconds"`
}

// SetDefaults uses the ten minute fine step as cadence.
func (c *Config) SetDefaults() {
	if c.CadenceSeconds == 0 {
		c.CadenceSeconds = 600
	}
}

// Validate rejects a non-positive cadence.
func (c Config) Validate() error {
	if c.CadenceSeconds <= 0 {
		return fmt.Errorf("controller: cadence must be positive")
	}
	return nil
}

// Cadence returns the cycle period.
func (c Config) Cadence() time.Duration {
	return time.Duration(c.CadenceSeconds * float64(time.Second))
}
