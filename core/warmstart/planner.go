package warmstart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/thermompc/core/logger"
	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/core/network"
	"github.com/kilianp07/thermompc/core/solver"
	"github.com/kilianp07/thermompc/core/timegrid"
)

// ErrWindowFailed is returned, wrapped, when a window could not be solved.
// The record returned alongside it is the previous one.
var ErrWindowFailed = errors.New("warm-start window failed")

// MinWindow is the smallest window length in steps.
const MinWindow = 3

// Config tunes the planner.
type Config struct {
	Enabled          bool    `json:"enabled"`
	FinePartitions   int     `json:"fine_partitions"`
	MidPartitions    int     `json:"mid_partitions"`
	PartitionSeconds float64 `json:"partition_budget_seconds"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.FinePartitions == 0 {
		c.FinePartitions = 2
	}
	if c.MidPartitions == 0 {
		c.MidPartitions = 4
	}
	if c.PartitionSeconds == 0 {
		c.PartitionSeconds = 5
	}
}

// Validate checks the partition counts and budget.
func (c Config) Validate() error {
	if c.FinePartitions < 1 || c.MidPartitions < 1 {
		return fmt.Errorf("warmstart: partitions must be at least 1")
	}
	if c.PartitionSeconds <= 0 {
		return fmt.Errorf("warmstart: partition budget must be positive")
	}
	return nil
}

// Budget returns the time limit of one window.
func (c Config) Budget() time.Duration {
	return time.Duration(c.PartitionSeconds * float64(time.Second))
}

// Window is the half-open local step range [From, To).
type Window struct{ From, To int }

// Partition splits steps into at most k contiguous windows of at least
// MinWindow steps. Consecutive windows share one state point. A band shorter
// than MinWindow is a single window.
func Partition(steps, k int) []Window {
	if steps <= 0 {
		return nil
	}
	if most := steps / MinWindow; k > most {
		k = most
	}
	if k < 1 {
		k = 1
	}
	out := make([]Window, k)
	base, extra := steps/k, steps%k
	from := 0
	for i := range out {
		n := base
		if i < extra {
			n++
		}
		out[i] = Window{From: from, To: from + n}
		from += n
	}
	return out
}

// Start is the state a band begins from.
type Start struct {
	// Temps maps node ids to block temperatures at point 0.
	Temps map[string][]float64
	// Modes maps group ids to the mode active before step 0. Groups without
	// an entry are not linked.
	Modes map[string]int
}

// Planner solves warm-start windows one after the other.
type Planner struct {
	Config  Config
	Plant   *model.Plant
	Solver  solver.Solver
	Threads int
	// McCormickParts overrides the mid band partition count when positive.
	McCormickParts int
	log            logger.Logger
}

// NewPlanner returns a planner using s for every window.
func NewPlanner(cfg Config, plant *model.Plant, s solver.Solver, threads int, log logger.Logger) *Planner {
	return &Planner{Config: cfg, Plant: plant, Solver: s, Threads: threads, log: log}
}

// PlanBand solves the windows of one band and returns their concatenation
// with the state at the end of the band. On failure prev is returned with an
// error wrapping ErrWindowFailed.
func (p *Planner) PlanBand(ctx context.Context, band timegrid.Band, in network.Inputs, opt network.Options, k int, start Start, prev *Record) (*Record, Start, error) {
	rec := NewRecord()
	state := start
	for i, w := range Partition(band.Len(), k) {
		if err := ctx.Err(); err != nil {
			return prev, Start{}, fmt.Errorf("%w: %s window %d: %v", ErrWindowFailed, band.Kind, i, err)
		}
		tr, err := p.solveWindow(ctx, band.Sub(w.From, w.To), in.Sub(w.From, w.To), opt, state)
		if err != nil {
			return prev, Start{}, fmt.Errorf("%w: %s window %d [%d,%d): %v", ErrWindowFailed, band.Kind, i, w.From, w.To, err)
		}
		rec.Merge(FromTrajectory(tr, w.From))
		state = endOf(tr)
		p.log.Debugf("warmstart: %s window %d [%d,%d) solved", band.Kind, i, w.From, w.To)
	}
	return rec, state, nil
}

func (p *Planner) solveWindow(ctx context.Context, grid timegrid.Band, in network.Inputs, opt network.Options, start Start) (network.Trajectory, error) {
	m := milp.New()
	b := network.New(grid, p.Plant, in, opt)
	if err := b.Build(m); err != nil {
		return network.Trajectory{}, err
	}
	b.FixStart(start.Temps)
	for _, g := range p.Plant.Groups {
		if idx, ok := start.Modes[g.ID]; ok {
			b.LinkStartModes(g.ID, network.OneHot(len(g.Modes), idx))
		}
	}
	sol, err := p.Solver.Solve(ctx, m, nil, p.Config.Budget(), p.Threads)
	if err != nil {
		return network.Trajectory{}, err
	}
	if !sol.Status.HasSolution() {
		return network.Trajectory{}, fmt.Errorf("status %s", sol.Status)
	}
	return b.Extract(sol)
}

// endOf returns the last point temperatures and last-step modes.
func endOf(tr network.Trajectory) Start {
	st := Start{Temps: map[string][]float64{}, Modes: map[string]int{}}
	for id, blocks := range tr.Temps {
		vals := make([]float64, len(blocks))
		for k, pts := range blocks {
			vals[k] = pts[len(pts)-1]
		}
		st.Temps[id] = vals
	}
	for g, modes := range tr.Modes {
		if len(modes) > 0 && len(modes[0]) > 0 {
			st.Modes[g] = tr.ActiveMode(g, len(modes[0])-1)
		}
	}
	return st
}

// Plan chains the fine band and then the mid band from the measured start.
// The coarse band is linear and is left cold. The returned error wraps
// ErrWindowFailed and comes with prev.
func (p *Planner) Plan(ctx context.Context, grid *timegrid.Grid, in map[timegrid.BandKind]network.Inputs, start Start, prev *Record) (*Record, error) {
	rec := NewRecord()
	state := start
	for _, kind := range []timegrid.BandKind{timegrid.Fine, timegrid.Mid} {
		band := grid.Band(kind)
		if band.Len() == 0 {
			continue
		}
		k := p.Config.FinePartitions
		if kind == timegrid.Mid {
			k = p.Config.MidPartitions
		}
		opt := network.DefaultOptions(kind, p.Plant.Slack)
		if kind == timegrid.Mid && p.McCormickParts > 0 {
			opt.McCormickParts = p.McCormickParts
		}
		r, end, err := p.PlanBand(ctx, band, in[kind], opt, k, state, prev)
		if err != nil {
			p.log.Warnf("warmstart: %v, keeping previous record", err)
			return prev, err
		}
		rec.Merge(r)
		state = end
	}
	return rec, nil
}
