package horizon

import (
	"fmt"

	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/core/network"
	"github.com/kilianp07/thermompc/core/timegrid"
)

// Result is the solved horizon in plain values.
type Result struct {
	Status    milp.Status
	Objective float64
	// Bands holds one trajectory per present band, in time order.
	Bands []network.Trajectory
}

// Extract reads every band out of sol.
func (h *Horizon) Extract(sol milp.Solution) (Result, error) {
	if !sol.Status.HasSolution() {
		return Result{}, fmt.Errorf("horizon: status %s: %w", sol.Status, milp.ErrExtraction)
	}
	res := Result{Status: sol.Status, Objective: sol.Objective}
	for _, b := range h.Bands() {
		tr, err := b.Extract(sol)
		if err != nil {
			return Result{}, err
		}
		res.Bands = append(res.Bands, tr)
	}
	return res, nil
}

// Fine returns the fine band trajectory.
func (r Result) Fine() network.Trajectory { return r.Bands[0] }

// FirstModes returns the active mode of every group in the first fine step.
func (r Result) FirstModes() map[string]int {
	fine := r.Fine()
	out := make(map[string]int, len(fine.Modes))
	for g := range fine.Modes {
		out[g] = fine.ActiveMode(g, 0)
	}
	return out
}

// SetPoints returns the block mean temperature of every node at the end of
// the first fine step.
func (r Result) SetPoints() map[string]float64 {
	fine := r.Fine()
	out := make(map[string]float64, len(fine.Temps))
	for id := range fine.Temps {
		out[id] = fine.MeanTemp(id, 1)
	}
	return out
}

// EndHints returns the modes the next cycle should expect after its fine
// band: the first mid step when present, else the last fine step.
func (r Result) EndHints() map[string]int {
	tr, t := r.Fine(), -1
	if len(r.Bands) > 1 && r.Bands[1].Band == timegrid.Mid {
		tr, t = r.Bands[1], 0
	}
	out := make(map[string]int, len(tr.Modes))
	for g, modes := range tr.Modes {
		step := t
		if step < 0 {
			step = len(modes[0]) - 1
		}
		out[g] = tr.ActiveMode(g, step)
	}
	return out
}

// Costs sums each objective component over all bands.
func (r Result) Costs() (energy, slack, switching float64) {
	for _, tr := range r.Bands {
		for t := range tr.Energy {
			energy += tr.Energy[t]
			slack += tr.SlackCost[t]
			switching += tr.Switching[t]
		}
	}
	return energy, slack, switching
}
