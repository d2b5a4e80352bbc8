package events

import "time"

// State is a phase of the control cycle.
type State string

const (
	Gathering   State = "gathering"
	Building    State = "building"
	Solving     State = "solving"
	Dispatching State = "dispatching"
	Sleeping    State = "sleeping"
)

// StateEvent is published on every state transition.
type StateEvent struct {
	CycleID string
	State   State
	Time    time.Time
}

// Outcome of a cycle.
type Outcome string

const (
	// Solved means the horizon was solved and its first step dispatched.
	Solved Outcome = "solved"
	// Fallback means the previous action was dispatched again.
	Fallback Outcome = "fallback"
)

// CycleEvent summarises one finished cycle.
type CycleEvent struct {
	CycleID   string
	Time      time.Time
	Outcome   Outcome
	Status    string
	Err       error
	Objective float64
	Energy    float64
	Slack     float64
	Switching float64
	Nodes     int
	Solve     time.Duration
	Elapsed   time.Duration
	// Stale lists the readings replaced by defaults.
	Stale []string
	// WarmstartErr is set when the planner fell back to the previous record.
	WarmstartErr error
	Modes        map[string]int
	SetPoints    map[string]float64
	// PowerKW is the electrical draw of the dispatched modes.
	PowerKW float64
}
