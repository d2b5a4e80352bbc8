// Package solver hands a composed model to a mixed-integer backend and maps
// the outcome to a milp.Solution. The in-process backend is a branch and bound
// over gonum's simplex; the cbc backend lives in infra/cbc.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/thermompc/core/milp"
)

var (
	// ErrNoTimeLimit is returned when Solve is called without a positive limit.
	ErrNoTimeLimit = errors.New("solver: time limit must be positive")
	// ErrUnbounded reports an unbounded relaxation at the root.
	ErrUnbounded = errors.New("solver: relaxation is unbounded")
	// ErrNumerical reports a simplex breakdown.
	ErrNumerical = errors.New("solver: numerical failure")
)

// Solver solves a model within a wall-clock limit. warm may be nil; when set
// it holds one value per model variable.
type Solver interface {
	Solve(ctx context.Context, m *milp.Model, warm []float64, limit time.Duration, threads int) (milp.Solution, error)
}

// Config selects the backend and its budget.
type Config struct {
	Backend          string  `json:"backend"`
	CBCPath          string  `json:"cbc_path"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
	Threads          int     `json:"threads"`
	Gap              float64 `json:"mip_gap"`
	MaxNodes         int     `json:"max_nodes"`
	WorkDir          string  `json:"work_dir"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "cbc"
	}
	if c.CBCPath == "" {
		c.CBCPath = "cbc"
	}
	if c.TimeLimitSeconds == 0 {
		c.TimeLimitSeconds = 60
	}
	if c.Threads == 0 {
		c.Threads = 1
	}
	if c.Gap == 0 {
		c.Gap = 1e-6
	}
}

// Validate checks the solver settings.
func (c Config) Validate() error {
	switch c.Backend {
	case "gonum", "cbc":
	default:
		return fmt.Errorf("solver: unknown backend %q", c.Backend)
	}
	if c.TimeLimitSeconds <= 0 {
		return ErrNoTimeLimit
	}
	if c.Threads < 1 {
		return fmt.Errorf("solver: threads must be at least 1")
	}
	if c.Gap < 0 || c.MaxNodes < 0 {
		return fmt.Errorf("solver: gap and max_nodes must not be negative")
	}
	return nil
}

// TimeLimit returns the configured limit.
func (c Config) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSeconds * float64(time.Second))
}
