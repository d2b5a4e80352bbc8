// Package actuation delivers the first-step decisions of a cycle to the
// plant. Concrete transports live in infra and register themselves by name.
package actuation

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kilianp07/thermompc/core/logger"
	"github.com/kilianp07/thermompc/core/model"
)

// Action is the command set of one cycle: one mode per group and a target
// temperature per node.
type Action struct {
	CycleID   string             `json:"cycle_id"`
	Time      time.Time          `json:"time"`
	Modes     map[string]int     `json:"modes"`
	ModeNames map[string]string  `json:"mode_names"`
	SetPoints map[string]float64 `json:"set_points"`
	// PowerKW is the electrical draw of the selected modes.
	PowerKW float64 `json:"power_kw"`
	// Fallback marks a re-dispatch of an earlier action.
	Fallback bool `json:"fallback"`
}

// NewAction builds an action and resolves mode names from plant.
func NewAction(plant *model.Plant, cycleID string, at time.Time, modes map[string]int, setPoints map[string]float64) Action {
	a := Action{
		CycleID:   cycleID,
		Time:      at,
		Modes:     make(map[string]int, len(modes)),
		ModeNames: make(map[string]string, len(modes)),
		SetPoints: make(map[string]float64, len(setPoints)),
	}
	for g, idx := range modes {
		a.Modes[g] = idx
		if grp, ok := plant.Group(g); ok && idx >= 0 && idx < len(grp.Modes) {
			a.ModeNames[g] = grp.Modes[idx].Name
			a.PowerKW += grp.Modes[idx].Power
		}
	}
	for id, v := range setPoints {
		a.SetPoints[id] = v
	}
	return a
}

// Clone returns a deep copy.
func (a Action) Clone() Action {
	out := a
	out.Modes = make(map[string]int, len(a.Modes))
	for k, v := range a.Modes {
		out.Modes[k] = v
	}
	out.ModeNames = make(map[string]string, len(a.ModeNames))
	for k, v := range a.ModeNames {
		out.ModeNames[k] = v
	}
	out.SetPoints = make(map[string]float64, len(a.SetPoints))
	for k, v := range a.SetPoints {
		out.SetPoints[k] = v
	}
	return out
}

// IsZero reports whether the action carries no command.
func (a Action) IsZero() bool { return len(a.Modes) == 0 && len(a.SetPoints) == 0 }

// Actuator applies actions to the plant.
type Actuator interface {
	Apply(ctx context.Context, a Action) error
}

// LogActuator only logs actions.
type LogActuator struct {
	Log logger.Logger
}

// Apply implements Actuator.
func (l LogActuator) Apply(_ context.Context, a Action) error {
	l.Log.Infof("cycle %s: modes %v set-points %v fallback=%t", a.CycleID, a.ModeNames, a.SetPoints, a.Fallback)
	return nil
}

// Multi applies an action through several actuators.
type Multi struct {
	Actuators []Actuator
}

// Apply calls every actuator and joins their errors.
func (m *Multi) Apply(ctx context.Context, a Action) error {
	var errs []error
	for _, act := range m.Actuators {
		if err := act.Apply(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes the actuators that hold a connection.
func (m *Multi) Close() error {
	var errs []error
	for _, act := range m.Actuators {
		if c, ok := act.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
