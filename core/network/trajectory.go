package network

import (
	"fmt"

	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/core/timegrid"
)

// Trajectory is the solved band in plain values.
type Trajectory struct {
	Band timegrid.BandKind
	// Temps is node → block → point.
	Temps map[string][][]float64
	// Modes is group → mode → step.
	Modes map[string][][]float64
	// Slack is node → step, relaxing point t+1.
	Slack     map[string][]float64
	Energy    []float64
	SlackCost []float64
	Switching []float64
}

// Extract reads the band's values out of a solution.
func (b *Band) Extract(sol milp.Solution) (Trajectory, error) {
	tr := Trajectory{
		Band:  b.Kind,
		Temps: map[string][][]float64{},
		Modes: map[string][][]float64{},
		Slack: map[string][]float64{},
	}
	get := func(ids []milp.VarID) ([]float64, error) {
		out := make([]float64, len(ids))
		for i, id := range ids {
			v, err := sol.Lookup(id)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	for id, blocks := range b.Vars.Temp {
		tr.Temps[id] = make([][]float64, len(blocks))
		for k, pts := range blocks {
			vals, err := get(pts)
			if err != nil {
				return Trajectory{}, fmt.Errorf("%s band temperature %s: %w", b.Kind, id, err)
			}
			tr.Temps[id][k] = vals
		}
		vals, err := get(b.Vars.Slack[id])
		if err != nil {
			return Trajectory{}, fmt.Errorf("%s band slack %s: %w", b.Kind, id, err)
		}
		tr.Slack[id] = vals
	}
	for g, modes := range b.Vars.Mode {
		tr.Modes[g] = make([][]float64, len(modes))
		for i, steps := range modes {
			vals, err := get(steps)
			if err != nil {
				return Trajectory{}, fmt.Errorf("%s band mode %s: %w", b.Kind, g, err)
			}
			tr.Modes[g][i] = vals
		}
	}
	eval := func(es []milp.Expr) []float64 {
		out := make([]float64, len(es))
		for i, e := range es {
			out[i] = e.Eval(sol.Values)
		}
		return out
	}
	tr.Energy = eval(b.stepEnergy)
	tr.SlackCost = eval(b.stepSlack)
	tr.Switching = eval(b.stepSwitch)
	return tr, nil
}

// ActiveMode returns the index of the largest mode value of group g at step t.
func (tr Trajectory) ActiveMode(g string, t int) int {
	best, idx := -1.0, 0
	for i, steps := range tr.Modes[g] {
		if steps[t] > best {
			best, idx = steps[t], i
		}
	}
	return idx
}

// MeanTemp returns the block mean of node id at point p.
func (tr Trajectory) MeanTemp(id string, p int) float64 {
	blocks := tr.Temps[id]
	var s float64
	for _, pts := range blocks {
		s += pts[p]
	}
	return s / float64(len(blocks))
}
