package model

import (
	"errors"
	"fmt"
)

// Mode is one configuration of a mode group. Heat maps node ids to a fixed
// heat rate in kW injected while the mode is active (negative cools).
type Mode struct {
	Name  string             `json:"name"`
	Power float64            `json:"power_kw"`
	Heat  map[string]float64 `json:"heat_kw"`
}

// ModeGroup is a mutually exclusive set of modes; exactly one is active per
// step. SwitchCost is charged every time the active mode changes.
type ModeGroup struct {
	ID         string  `json:"id"`
	Modes      []Mode  `json:"modes"`
	SwitchCost float64 `json:"switch_cost"`
	Default    int     `json:"default"`
}

// Index returns the position of the named mode.
func (g ModeGroup) Index(name string) (int, bool) {
	for i, m := range g.Modes {
		if m.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Validate checks that the group is selectable.
func (g ModeGroup) Validate() error {
	if g.ID == "" {
		return errors.New("mode group id is required")
	}
	if len(g.Modes) == 0 {
		return fmt.Errorf("group %s: no modes", g.ID)
	}
	seen := map[string]bool{}
	for _, m := range g.Modes {
		if m.Name == "" || seen[m.Name] {
			return fmt.Errorf("group %s: empty or duplicate mode %q", g.ID, m.Name)
		}
		seen[m.Name] = true
		if m.Power < 0 {
			return fmt.Errorf("group %s: mode %s has negative power", g.ID, m.Name)
		}
	}
	if g.SwitchCost < 0 {
		return fmt.Errorf("group %s: negative switch cost", g.ID)
	}
	if g.Default < 0 || g.Default >= len(g.Modes) {
		return fmt.Errorf("group %s: default mode out of range", g.ID)
	}
	return nil
}
