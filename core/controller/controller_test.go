package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/core/forecast"
	"github.com/kilianp07/thermompc/core/horizon"
	"github.com/kilianp07/thermompc/core/measurement"
	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/core/results"
	"github.com/kilianp07/thermompc/core/solver"
	"github.com/kilianp07/thermompc/core/timegrid"
	"github.com/kilianp07/thermompc/core/warmstart"
	"github.com/kilianp07/thermompc/infra/logger"
	"github.com/kilianp07/thermompc/internal/eventbus"
)

func testPlant() *model.Plant {
	p := &model.Plant{
		Nodes: []model.Node{
			{ID: "hs", Mass: 2000, SpecificHeat: 4.18, Min: 30, Max: 50, Loss: 0.05, RefAmbient: true, Demand: model.DemandHeat, Default: 35},
			{ID: "gs", Mass: 5000, SpecificHeat: 2, Min: 0, Max: 20, Blocks: 2, Conductance: 0.5, Default: 10},
		},
		Groups: []model.ModeGroup{
			{ID: "hp", Modes: []model.Mode{{Name: "off"}, {Name: "on", Power: 5, Heat: map[string]float64{"hs": 15, "gs": -10}}}, SwitchCost: 2},
			{ID: "pump", Modes: []model.Mode{{Name: "off"}, {Name: "on", Power: 0.2}}, SwitchCost: 0.5},
		},
		Paths: []model.Path{
			{ID: "regen", From: model.Ambient, To: "gs", Group: "pump", Flow: map[string]float64{"on": 0.5}, NominalDelta: 4},
		},
	}
	p.SetDefaults()
	return p
}

// scripted solves with branch and bound until fail is set.
type scripted struct {
	mu    sync.Mutex
	inner solver.Solver
	fail  bool
	err   error
	delay time.Duration
	calls int
}

func (s *scripted) Solve(ctx context.Context, m *milp.Model, warm []float64, limit time.Duration, threads int) (milp.Solution, error) {
	s.mu.Lock()
	s.calls++
	fail, err, delay := s.fail, s.err, s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return milp.Solution{Status: milp.StatusTimeoutNoIncumbent}, nil
		}
	}
	if err != nil {
		return milp.Solution{}, err
	}
	if fail {
		return milp.Solution{Status: milp.StatusInfeasible}, nil
	}
	return s.inner.Solve(ctx, m, warm, limit, threads)
}

func (s *scripted) set(fail bool, err error) {
	s.mu.Lock()
	s.fail, s.err = fail, err
	s.mu.Unlock()
}

type recordingActuator struct {
	mu      sync.Mutex
	actions []actuation.Action
}

func (r *recordingActuator) Apply(_ context.Context, a actuation.Action) error {
	r.mu.Lock()
	r.actions = append(r.actions, a.Clone())
	r.mu.Unlock()
	return nil
}

func (r *recordingActuator) last() actuation.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actions[len(r.actions)-1]
}

type memorySink struct {
	recs []results.StepRecord
}

func (m *memorySink) Write(_ context.Context, recs []results.StepRecord) error {
	m.recs = append(m.recs, recs...)
	return nil
}
func (m *memorySink) Close() error { return nil }

type failingFeed struct{ err error }

func (f failingFeed) Read(context.Context) (measurement.Snapshot, error) {
	return measurement.Snapshot{}, f.err
}

func (f failingFeed) Fetch(context.Context, *timegrid.Grid) (forecast.Forecast, error) {
	return forecast.Forecast{}, f.err
}

type fixture struct {
	c      *Controller
	solver *scripted
	act    *recordingActuator
	sink   *memorySink
	cycles *eventbus.TypedBus[events.CycleEvent]
	states *eventbus.TypedBus[events.StateEvent]
}

func newFixture(t *testing.T, withPlanner bool) *fixture {
	return newPlantFixture(t, testPlant(), measurement.Snapshot{
		Temps: map[string][]float64{"hs": {36}, "gs": {9, 11}},
		Modes: map[string]int{"hp": 0, "pump": 0},
	}, withPlanner)
}

func newPlantFixture(t *testing.T, plant *model.Plant, snap measurement.Snapshot, withPlanner bool) *fixture {
	grid, err := timegrid.New(timegrid.Spec{
		Fine: timegrid.BandSpec{Steps: 3, StepSeconds: 600, ControlPeriod: 1},
	})
	require.NoError(t, err)
	log := logger.NopLogger{}
	scfg := solver.Config{Backend: "gonum", TimeLimitSeconds: 60}
	scfg.SetDefaults()
	s := &scripted{inner: solver.NewBranchAndBound(scfg, log)}

	f := &fixture{
		solver: s,
		act:    &recordingActuator{},
		sink:   &memorySink{},
		cycles: eventbus.NewTypedSize[events.CycleEvent](16),
		states: eventbus.NewTypedSize[events.StateEvent](64),
	}
	d := Deps{
		Plant:    plant,
		Grid:     grid,
		Forecast: forecast.Static{Forecast: forecast.Constant(grid.Len(), 0, 0, 0, 20, 0.16)},
		Measurement: measurement.Static{Snapshot: snap},
		Composer:  horizon.NewComposer(plant, grid, 0, log),
		Solver:    s,
		SolverCfg: scfg,
		Actuator:  f.act,
		Results:   f.sink,
		Cycles:    f.cycles,
		States:    f.states,
		Log:       log,
	}
	if withPlanner {
		wcfg := warmstart.Config{Enabled: true}
		wcfg.SetDefaults()
		d.Planner = warmstart.NewPlanner(wcfg, plant, s, 1, log)
	}
	f.c = New(Config{CadenceSeconds: 3600}, d)
	n := 0
	f.c.newID = func() string { n++; return fmt.Sprintf("cycle-%d", n) }
	return f
}

func drainStates(ch <-chan events.StateEvent) []events.State {
	var out []events.State
	for {
		select {
		case e := <-ch:
			out = append(out, e.State)
		default:
			return out
		}
	}
}

func TestRunCycleDispatchesFirstStep(t *testing.T) {
	f := newFixture(t, false)
	states := f.states.Subscribe()
	cycles := f.cycles.Subscribe()

	ev, err := f.c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, events.Solved, ev.Outcome)
	assert.Equal(t, "optimal", ev.Status)
	assert.Equal(t, map[string]int{"hp": 0, "pump": 0}, ev.Modes)
	assert.Empty(t, ev.Stale)
	assert.InDelta(t, 0, ev.Switching, 1e-9)

	require.Len(t, f.act.actions, 1)
	act := f.act.last()
	assert.Equal(t, "cycle-1", act.CycleID)
	assert.False(t, act.Fallback)
	assert.Equal(t, "off", act.ModeNames["hp"])
	assert.Contains(t, act.SetPoints, "hs")

	assert.Len(t, f.sink.recs, 3)
	assert.Equal(t, "cycle-1", f.sink.recs[0].CycleID)

	assert.Equal(t, []events.State{events.Gathering, events.Building, events.Solving, events.Dispatching}, drainStates(states))
	assert.Equal(t, "cycle-1", (<-cycles).CycleID)
	assert.Equal(t, act.Modes, f.c.LastAction().Modes)
}

func TestInfeasibleCycleRedispatchesPreviousAction(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.c.RunCycle(ctx)
	require.NoError(t, err)
	good := f.act.last()
	rec := f.c.last.record
	require.NotNil(t, rec)
	hints := f.c.last.hints

	f.solver.set(true, nil)
	ev, err := f.c.RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSolution)
	assert.Equal(t, events.Fallback, ev.Outcome)
	assert.Equal(t, "infeasible", ev.Status)
	assert.ErrorIs(t, ev.WarmstartErr, warmstart.ErrWindowFailed)

	require.Len(t, f.act.actions, 2)
	again := f.act.last()
	assert.True(t, again.Fallback)
	assert.Equal(t, "cycle-2", again.CycleID)
	assert.Equal(t, good.Modes, again.Modes)
	assert.Equal(t, good.SetPoints, again.SetPoints)

	assert.Same(t, rec, f.c.last.record)
	assert.Equal(t, hints, f.c.last.hints)
	assert.Equal(t, "cycle-1", f.c.LastAction().CycleID)
	assert.Len(t, f.sink.recs, 3, "a failed cycle writes no results")
}

func TestFirstCycleFailureHoldsMeasuredModes(t *testing.T) {
	f := newFixture(t, false)
	f.solver.set(false, solver.ErrNumerical)
	ev, err := f.c.RunCycle(context.Background())
	assert.ErrorIs(t, err, solver.ErrNumerical)
	assert.Equal(t, events.Fallback, ev.Outcome)
	require.Len(t, f.act.actions, 1)
	act := f.act.last()
	assert.True(t, act.Fallback)
	assert.Equal(t, map[string]int{"hp": 0, "pump": 0}, act.Modes)
	assert.True(t, f.c.LastAction().IsZero())
}

func TestForecastFailureWithoutHistoryDispatchesNothing(t *testing.T) {
	f := newFixture(t, false)
	f.c.d.Forecast = failingFeed{err: errors.New("feed down")}
	ev, err := f.c.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, events.Fallback, ev.Outcome)
	assert.Empty(t, f.act.actions)
	assert.Equal(t, 0, f.solver.calls)
}

func TestMeasurementFailureUsesDefaults(t *testing.T) {
	f := newFixture(t, false)
	f.c.d.Measurement = failingFeed{err: errors.New("plc offline")}
	ev, err := f.c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, events.Solved, ev.Outcome)
	assert.Equal(t, []string{"gs", "hp", "hs", "pump"}, ev.Stale)
}

func TestComposeDoesNotSolve(t *testing.T) {
	f := newFixture(t, false)
	h, err := f.c.Compose(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, h.Model.Vars)
	assert.Equal(t, 0, f.solver.calls)
	assert.Empty(t, f.act.actions)
}

func TestRunSleepsUntilCanceled(t *testing.T) {
	f := newFixture(t, false)
	f.c.d.Forecast = failingFeed{err: errors.New("feed down")}
	states := f.states.Subscribe()
	cycles := f.cycles.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.c.Run(ctx) }()

	select {
	case ev := <-cycles:
		assert.Equal(t, events.Fallback, ev.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("no cycle event")
	}
	deadline := time.After(5 * time.Second)
	for sleeping := false; !sleeping; {
		select {
		case e := <-states:
			sleeping = e.State == events.Sleeping
		case <-deadline:
			t.Fatal("loop did not sleep")
		}
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	select {
	case <-cycles:
		t.Fatal("a second cycle ran before the cadence elapsed")
	default:
	}
}

func TestOverrunningCycleStartsNextImmediately(t *testing.T) {
	f := newFixture(t, false)
	const cadence, solve = 200 * time.Millisecond, 400 * time.Millisecond
	f.c.cfg.CadenceSeconds = cadence.Seconds()
	f.solver.delay = solve
	states := f.states.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.c.Run(ctx) }()

	var gathering, sleeping []events.StateEvent
	deadline := time.After(10 * time.Second)
	for len(gathering) < 3 {
		select {
		case e := <-states:
			switch e.State {
			case events.Gathering:
				gathering = append(gathering, e)
			case events.Sleeping:
				sleeping = append(sleeping, e)
			}
		case <-deadline:
			t.Fatalf("only %d cycles started", len(gathering))
		}
	}
	cancel()
	require.NoError(t, <-done)

	for i, e := range gathering {
		assert.Equal(t, fmt.Sprintf("cycle-%d", i+1), e.CycleID)
	}
	require.GreaterOrEqual(t, len(sleeping), 2)
	for i := 0; i < 2; i++ {
		// one cycle at a time: each start follows a full solve
		assert.GreaterOrEqual(t, gathering[i+1].Time.Sub(gathering[i].Time), solve)
		// no sleep after an overrun
		assert.Less(t, gathering[i+1].Time.Sub(sleeping[i].Time), cadence-50*time.Millisecond)
	}
}

func hybridFixture(t *testing.T, withPlanner bool) (*fixture, *model.Plant) {
	p := model.HybridPlant()
	p.SetDefaults()
	snap := measurement.Snapshot{Temps: map[string][]float64{}, Modes: map[string]int{}}
	for _, n := range p.Nodes {
		snap.Temps[n.ID] = []float64{n.Default}
	}
	for _, g := range p.Groups {
		snap.Modes[g.ID] = 0
	}
	return newPlantFixture(t, &p, snap, withPlanner), &p
}

func TestHybridPlantIdleCycle(t *testing.T) {
	f, p := hybridFixture(t, false)
	ev, err := f.c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, events.Solved, ev.Outcome)
	assert.Equal(t, "optimal", ev.Status)
	assert.Empty(t, ev.Stale)
	assert.InDelta(t, 0, ev.Switching, 1e-9)
	assert.InDelta(t, 0, ev.Energy, 1e-6)
	require.Len(t, ev.Modes, len(p.Groups))
	for _, g := range p.Groups {
		assert.Equal(t, 0, ev.Modes[g.ID], g.ID)
	}
	assert.Equal(t, "off", f.act.last().ModeNames["hp"])
}

func TestHybridPlantInfeasibleStateFallsBack(t *testing.T) {
	f, _ := hybridFixture(t, true)
	ctx := context.Background()
	_, err := f.c.RunCycle(ctx)
	require.NoError(t, err)
	good := f.act.last()
	rec := f.c.last.record
	require.NotNil(t, rec)

	// a condenser reading beyond the gate bounds of hp_hs leaves no feasible
	// flow on that path
	snap := f.c.d.Measurement.(measurement.Static).Snapshot
	snap.Temps["hp_ht"] = []float64{200}
	f.c.d.Measurement = measurement.Static{Snapshot: snap}

	ev, err := f.c.RunCycle(ctx)
	require.ErrorIs(t, err, ErrNoSolution)
	assert.Equal(t, events.Fallback, ev.Outcome)
	assert.Equal(t, "infeasible", ev.Status)
	again := f.act.last()
	assert.True(t, again.Fallback)
	assert.Equal(t, good.Modes, again.Modes)
	assert.Same(t, rec, f.c.last.record)
	assert.Equal(t, "cycle-1", f.c.LastAction().CycleID)
}

func TestConfig(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 10*time.Minute, c.Cadence())
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{CadenceSeconds: -1}.Validate())
}
