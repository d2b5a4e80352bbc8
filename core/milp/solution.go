package milp

import (
	"errors"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusFeasible
	StatusInfeasible
	StatusTimeoutNoIncumbent
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "timeout-no-incumbent"
	}
}

// HasSolution reports whether the status carries usable values.
func (s Status) HasSolution() bool { return s == StatusOptimal || s == StatusFeasible }

// ErrExtraction reports that values could not be read back from a solution.
var ErrExtraction = errors.New("solution extraction failed")

// Solution is the variable value map returned by a solver.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
	Elapsed   time.Duration
}

// Value returns the value of v. It panics on an empty solution; use Lookup
// when the solution may be incomplete.
func (s Solution) Value(v VarID) float64 { return s.Values[v] }

// Lookup returns the value of v or ErrExtraction.
func (s Solution) Lookup(v VarID) (float64, error) {
	if !s.Status.HasSolution() || int(v) < 0 || int(v) >= len(s.Values) {
		return 0, ErrExtraction
	}
	return s.Values[v], nil
}
