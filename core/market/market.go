// Package market applies an external flexibility signal to the price
// forecast: within a step window the price is raised (or lowered) in
// proportion to itself so that the optimiser shifts consumption.
package market

import "fmt"

// Direction of the signal.
type Direction string

const (
	// Positive discourages consumption inside the window.
	Positive Direction = "pos"
	// Negative encourages consumption inside the window.
	Negative Direction = "neg"
)

// Config describes the modifier. StartStep and EndStep are global horizon
// step indices; EndStep is exclusive.
type Config struct {
	Enabled   bool      `json:"enabled"`
	Factor    float64   `json:"factor"`
	Direction Direction `json:"direction"`
	StartStep int       `json:"start_step"`
	EndStep   int       `json:"end_step"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Factor == 0 {
		c.Factor = 3
	}
	if c.Direction == "" {
		c.Direction = Positive
	}
}

// Validate checks the window and direction.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Direction != Positive && c.Direction != Negative {
		return fmt.Errorf("market: unknown direction %q", c.Direction)
	}
	if c.StartStep < 0 || c.EndStep < c.StartStep {
		return fmt.Errorf("market: invalid window [%d,%d)", c.StartStep, c.EndStep)
	}
	if c.Factor < 0 {
		return fmt.Errorf("market: factor must not be negative")
	}
	return nil
}

// Signal returns the signed signal value.
func (c Config) Signal() float64 {
	if c.Direction == Negative {
		return -c.Factor
	}
	return c.Factor
}

// Apply returns a copy of prices with price += signal·price inside the window.
func (c Config) Apply(prices []float64) []float64 {
	out := append([]float64(nil), prices...)
	if !c.Enabled {
		return out
	}
	sig := c.Signal()
	for i := c.StartStep; i < c.EndStep && i < len(out); i++ {
		out[i] += sig * out[i]
	}
	return out
}
