// Package controller runs the rolling-horizon loop: every cycle gathers the
// forecast and the plant state, composes and solves the horizon, dispatches
// the first step and sleeps until the next cadence tick.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/core/forecast"
	"github.com/kilianp07/thermompc/core/horizon"
	"github.com/kilianp07/thermompc/core/logger"
	"github.com/kilianp07/thermompc/core/market"
	"github.com/kilianp07/thermompc/core/measurement"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/core/monitoring"
	"github.com/kilianp07/thermompc/core/results"
	"github.com/kilianp07/thermompc/core/solver"
	"github.com/kilianp07/thermompc/core/timegrid"
	"github.com/kilianp07/thermompc/core/warmstart"
	"github.com/kilianp07/thermompc/internal/eventbus"
)

// ErrNoSolution is returned when the solver proved infeasibility or ran out
// of time without an incumbent.
var ErrNoSolution = errors.New("no solution")

// Deps are the collaborators of a Controller. Planner, Cycles and States
// may be nil.
type Deps struct {
	Plant       *model.Plant
	Grid        *timegrid.Grid
	Forecast    forecast.Feed
	Measurement measurement.Feed
	Market      market.Config
	Planner     *warmstart.Planner
	Composer    *horizon.Composer
	Solver      solver.Solver
	SolverCfg   solver.Config
	Actuator    actuation.Actuator
	Results     results.Sink
	Cycles      *eventbus.TypedBus[events.CycleEvent]
	States      *eventbus.TypedBus[events.StateEvent]
	Log         logger.Logger
}

// lastGood is what a successful cycle leaves for the next one.
type lastGood struct {
	action actuation.Action
	record *warmstart.Record
	hints  map[string]int
}

// Controller owns the loop state. RunCycle and Run must not be called
// concurrently.
type Controller struct {
	cfg Config
	d   Deps

	now   func() time.Time
	newID func() string

	mu   sync.RWMutex
	last lastGood
}

// New returns a controller. Missing sinks become no-ops.
func New(cfg Config, d Deps) *Controller {
	cfg.SetDefaults()
	if d.Results == nil {
		d.Results = results.NopSink{}
	}
	if d.Actuator == nil {
		d.Actuator = actuation.LogActuator{Log: d.Log}
	}
	return &Controller{cfg: cfg, d: d, now: time.Now, newID: uuid.NewString}
}

// LastAction returns the action of the last successful cycle.
func (c *Controller) LastAction() actuation.Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last.action.Clone()
}

func (c *Controller) state(id string, s events.State) {
	if c.d.States != nil {
		c.d.States.Publish(events.StateEvent{CycleID: id, State: s, Time: c.now()})
	}
}

// gathered holds the inputs of one cycle.
type gathered struct {
	forecast forecast.Forecast
	snapshot measurement.Snapshot
	stale    []string
}

func (c *Controller) gather(ctx context.Context) (gathered, error) {
	var g gathered
	fc, err := c.d.Forecast.Fetch(ctx, c.d.Grid)
	if err != nil {
		return g, fmt.Errorf("forecast: %w", err)
	}
	if err := fc.Validate(c.d.Grid.Len()); err != nil {
		return g, fmt.Errorf("forecast: %w", err)
	}
	fc.Price = c.d.Market.Apply(fc.Price)
	g.forecast = fc

	raw, err := c.d.Measurement.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return g, ctx.Err()
		}
		c.d.Log.Warnf("controller: measurement read failed, using defaults: %v", err)
		raw = measurement.Snapshot{}
	}
	snap, err := measurement.Complete(c.d.Plant, raw)
	var stale *measurement.StaleError
	if errors.As(err, &stale) {
		c.d.Log.Warnf("controller: %v", err)
		g.stale = stale.IDs
	}
	if snap.Time.IsZero() {
		snap.Time = c.now()
	}
	g.snapshot = snap
	return g, nil
}

// build runs the warm-start planner and composes the horizon.
func (c *Controller) build(ctx context.Context, in gathered, prev lastGood) (*horizon.Horizon, *warmstart.Record, error, error) {
	rec := prev.record
	var warmErr error
	if c.d.Planner != nil {
		start := warmstart.Start{Temps: in.snapshot.Temps, Modes: in.snapshot.Modes}
		rec, warmErr = c.d.Planner.Plan(ctx, c.d.Grid, c.d.Composer.Inputs(in.forecast), start, prev.record)
	}
	h, err := c.d.Composer.Compose(in.snapshot, in.forecast, prev.hints, rec)
	if err != nil {
		return nil, prev.record, warmErr, fmt.Errorf("compose: %w", err)
	}
	return h, rec, warmErr, nil
}

// Compose gathers the inputs and builds the horizon of the next cycle
// without solving it.
func (c *Controller) Compose(ctx context.Context) (*horizon.Horizon, error) {
	in, err := c.gather(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	prev := c.last
	c.mu.RUnlock()
	h, _, _, err := c.build(ctx, in, prev)
	return h, err
}

// RunCycle runs one cycle. A failed cycle re-dispatches the previous action
// and returns the error together with its event.
func (c *Controller) RunCycle(ctx context.Context) (events.CycleEvent, error) {
	id := c.newID()
	start := c.now()
	ev := events.CycleEvent{CycleID: id, Time: start}

	c.mu.RLock()
	prev := c.last
	c.mu.RUnlock()

	c.state(id, events.Gathering)
	in, err := c.gather(ctx)
	if err != nil {
		return c.fail(ctx, ev, prev, nil, err)
	}
	ev.Stale = in.stale

	c.state(id, events.Building)
	h, rec, warmErr, err := c.build(ctx, in, prev)
	ev.WarmstartErr = warmErr
	if err != nil {
		return c.fail(ctx, ev, prev, &in, err)
	}

	c.state(id, events.Solving)
	c.d.Log.Debugw("controller: model composed", map[string]any{
		"cycle_id": id, "vars": len(h.Model.Vars), "rows": len(h.Model.Cons),
		"bands": len(h.Bands()), "warm": h.Warm != nil, "stale": len(in.stale),
	})
	sol, err := c.d.Solver.Solve(ctx, h.Model, h.Warm, c.d.SolverCfg.TimeLimit(), c.d.SolverCfg.Threads)
	if err != nil {
		return c.fail(ctx, ev, prev, &in, fmt.Errorf("solve: %w", err))
	}
	ev.Status = sol.Status.String()
	ev.Nodes = sol.Nodes
	ev.Solve = sol.Elapsed
	if !sol.Status.HasSolution() {
		return c.fail(ctx, ev, prev, &in, fmt.Errorf("%w: %s", ErrNoSolution, sol.Status))
	}
	res, err := h.Extract(sol)
	if err != nil {
		return c.fail(ctx, ev, prev, &in, err)
	}

	c.state(id, events.Dispatching)
	act := actuation.NewAction(c.d.Plant, id, start, res.FirstModes(), res.SetPoints())
	if err := c.d.Actuator.Apply(ctx, act); err != nil {
		c.d.Log.Errorf("controller: cycle %s: dispatch: %v", id, err)
		monitoring.CaptureException(err, map[string]string{"module": "actuation", "cycle_id": id})
		ev.Err = err
	}
	if err := c.d.Results.Write(ctx, results.FromResult(id, start, c.d.Grid, res)); err != nil {
		c.d.Log.Errorf("controller: cycle %s: results: %v", id, err)
		monitoring.CaptureException(err, map[string]string{"module": "results", "cycle_id": id})
	}

	c.mu.Lock()
	c.last = lastGood{action: act, record: rec, hints: res.EndHints()}
	c.mu.Unlock()

	ev.Outcome = events.Solved
	ev.Objective = res.Objective
	ev.Energy, ev.Slack, ev.Switching = res.Costs()
	ev.Modes = act.Modes
	ev.SetPoints = act.SetPoints
	ev.PowerKW = act.PowerKW
	ev.Elapsed = c.now().Sub(start)
	c.d.Log.Infof("controller: cycle %s %s objective %.4g in %s", id, ev.Status, ev.Objective, ev.Elapsed)
	c.publish(ev)
	return ev, nil
}

// fail re-dispatches the previous action. Before any successful cycle the
// measured modes are held instead, when they are known.
func (c *Controller) fail(ctx context.Context, ev events.CycleEvent, prev lastGood, in *gathered, cause error) (events.CycleEvent, error) {
	c.d.Log.Warnf("controller: cycle %s failed: %v", ev.CycleID, cause)
	monitoring.CaptureException(cause, map[string]string{"module": "controller", "cycle_id": ev.CycleID})
	ev.Outcome = events.Fallback
	ev.Err = cause

	var act actuation.Action
	switch {
	case !prev.action.IsZero():
		act = prev.action.Clone()
	case in != nil:
		act = actuation.NewAction(c.d.Plant, ev.CycleID, ev.Time, in.snapshot.Modes, nil)
	}
	if !act.IsZero() && ctx.Err() == nil {
		act.CycleID, act.Time, act.Fallback = ev.CycleID, c.now(), true
		c.state(ev.CycleID, events.Dispatching)
		if err := c.d.Actuator.Apply(ctx, act); err != nil {
			c.d.Log.Errorf("controller: cycle %s: fallback dispatch: %v", ev.CycleID, err)
			monitoring.CaptureException(err, map[string]string{"module": "actuation", "cycle_id": ev.CycleID})
		}
		ev.Modes, ev.SetPoints, ev.PowerKW = act.Modes, act.SetPoints, act.PowerKW
	}
	ev.Elapsed = c.now().Sub(ev.Time)
	c.publish(ev)
	return ev, cause
}

func (c *Controller) publish(ev events.CycleEvent) {
	if c.d.Cycles != nil {
		c.d.Cycles.Publish(ev)
	}
}

// Run loops until ctx is canceled. Cycle failures never stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	cadence := c.cfg.Cadence()
	for {
		start := c.now()
		ev, _ := c.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		wait := cadence - c.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		c.state(ev.CycleID, events.Sleeping)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
