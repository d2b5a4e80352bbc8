package status

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/internal/eventbus"
)

// CycleView is the JSON form of a finished cycle.
type CycleView struct {
	CycleID   string             `json:"cycle_id"`
	Time      time.Time          `json:"time"`
	Outcome   string             `json:"outcome"`
	Status    string             `json:"status,omitempty"`
	Error     string             `json:"error,omitempty"`
	Objective float64            `json:"objective"`
	Energy    float64            `json:"energy_cost"`
	Slack     float64            `json:"slack_penalty"`
	Switching float64            `json:"switching_penalty"`
	SolveMS   int64              `json:"solve_ms"`
	Stale     []string           `json:"stale,omitempty"`
	Modes     map[string]int     `json:"modes"`
	SetPoints map[string]float64 `json:"set_points"`
	PowerKW   float64            `json:"power_kw"`
}

// ViewOf converts a cycle event to its JSON form.
func ViewOf(ev events.CycleEvent) CycleView {
	v := CycleView{
		CycleID:   ev.CycleID,
		Time:      ev.Time,
		Outcome:   string(ev.Outcome),
		Status:    ev.Status,
		Objective: ev.Objective,
		Energy:    ev.Energy,
		Slack:     ev.Slack,
		Switching: ev.Switching,
		SolveMS:   ev.Solve.Milliseconds(),
		Stale:     ev.Stale,
		Modes:     ev.Modes,
		SetPoints: ev.SetPoints,
		PowerKW:   ev.PowerKW,
	}
	if ev.Err != nil {
		v.Error = ev.Err.Error()
	}
	return v
}

// Snapshot is the body of GET /status.
type Snapshot struct {
	State     string     `json:"state"`
	CycleID   string     `json:"cycle_id,omitempty"`
	Since     time.Time  `json:"since"`
	Cycles    int        `json:"cycles"`
	Fallbacks int        `json:"fallbacks"`
	Last      *CycleView `json:"last_cycle,omitempty"`
}

// Tracker follows the controller through its event buses.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{State: "idle", Since: time.Now()}}
}

// Start consumes events until ctx is canceled. states may be nil.
func (t *Tracker) Start(ctx context.Context, cycles *eventbus.TypedBus[events.CycleEvent], states *eventbus.TypedBus[events.StateEvent]) <-chan struct{} {
	done := make(chan struct{})
	csub := cycles.Subscribe()
	var ssub <-chan events.StateEvent
	if states != nil {
		ssub = states.Subscribe()
	}
	go func() {
		defer close(done)
		defer cycles.Unsubscribe(csub)
		if ssub != nil {
			defer states.Unsubscribe(ssub)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-csub:
				if !ok {
					return
				}
				t.onCycle(ev)
			case ev, ok := <-ssub:
				if !ok {
					ssub = nil
					continue
				}
				t.onState(ev)
			}
		}
	}()
	return done
}

func (t *Tracker) onCycle(ev events.CycleEvent) {
	v := ViewOf(ev)
	t.mu.Lock()
	t.snap.Cycles++
	if ev.Outcome == events.Fallback {
		t.snap.Fallbacks++
	}
	t.snap.Last = &v
	t.mu.Unlock()
}

func (t *Tracker) onState(ev events.StateEvent) {
	t.mu.Lock()
	t.snap.State = string(ev.State)
	t.snap.CycleID = ev.CycleID
	t.snap.Since = ev.Time
	t.mu.Unlock()
}

// Snapshot returns the current view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
