package timegrid

import (
	"fmt"
	"time"
)

// BandSpec describes one band. Durations, when set, overrides Steps and
// StepSeconds and allows non-uniform steps.
type BandSpec struct {
	Steps              int   `json:"steps"`
	StepSeconds        int   `json:"step_seconds"`
	Durations          []int `json:"durations_seconds"`
	ControlPeriod      int   `json:"control_period"`
	EarlySteps         int   `json:"early_steps"`
	EarlyControlPeriod int   `json:"early_control_period"`
	// Disabled drops the mid or coarse band from the horizon.
	Disabled bool `json:"disabled"`
}

// Spec is the configuration surface of the horizon.
type Spec struct {
	Fine   BandSpec `json:"fine"`
	Mid    BandSpec `json:"mid"`
	Coarse BandSpec `json:"coarse"`
}

// SetDefaults fills the production horizon: 7x10 min, 23x1 h and 25x6 h.
func (s *Spec) SetDefaults() {
	if s.Fine.Steps == 0 && len(s.Fine.Durations) == 0 {
		s.Fine.Steps = 7
	}
	if s.Fine.StepSeconds == 0 {
		s.Fine.StepSeconds = 600
	}
	if s.Fine.ControlPeriod == 0 {
		s.Fine.ControlPeriod = 2
	}
	if s.Fine.EarlySteps == 0 && s.Fine.EarlyControlPeriod == 0 {
		s.Fine.EarlySteps = 2
		s.Fine.EarlyControlPeriod = 1
	}
	if s.Mid.Steps == 0 && len(s.Mid.Durations) == 0 && !s.Mid.Disabled {
		s.Mid.Steps = 23
	}
	if s.Mid.StepSeconds == 0 {
		s.Mid.StepSeconds = 3600
	}
	if s.Mid.ControlPeriod == 0 {
		s.Mid.ControlPeriod = 1
	}
	if s.Coarse.Steps == 0 && len(s.Coarse.Durations) == 0 && !s.Coarse.Disabled {
		s.Coarse.Steps = 25
	}
	if s.Coarse.StepSeconds == 0 {
		s.Coarse.StepSeconds = 21600
	}
	if s.Coarse.ControlPeriod == 0 {
		s.Coarse.ControlPeriod = 1
	}
}

// Validate checks the band parameters. Errors wrap ErrInvalid.
func (s Spec) Validate() error {
	for _, b := range []struct {
		name string
		spec BandSpec
	}{{"fine", s.Fine}, {"mid", s.Mid}, {"coarse", s.Coarse}} {
		if err := b.spec.validate(); err != nil {
			return fmt.Errorf("%w: %s band: %v", ErrInvalid, b.name, err)
		}
	}
	if s.Fine.Disabled || s.Fine.steps() == 0 {
		return fmt.Errorf("%w: fine band needs at least one step", ErrInvalid)
	}
	return nil
}

func (b BandSpec) steps() int {
	if b.Disabled {
		return 0
	}
	if len(b.Durations) > 0 {
		return len(b.Durations)
	}
	return b.Steps
}

func (b BandSpec) validate() error {
	if b.Steps < 0 {
		return fmt.Errorf("steps must not be negative")
	}
	if b.steps() == 0 {
		return nil
	}
	for i, d := range b.Durations {
		if d <= 0 {
			return fmt.Errorf("duration %d must be positive", i)
		}
	}
	if len(b.Durations) == 0 && b.Steps > 0 && b.StepSeconds <= 0 {
		return fmt.Errorf("step_seconds must be positive")
	}
	if b.ControlPeriod < 1 {
		return fmt.Errorf("control_period must be at least 1")
	}
	if b.EarlySteps < 0 || b.EarlySteps > b.steps() {
		return fmt.Errorf("early_steps out of range")
	}
	if b.EarlySteps > 0 && b.EarlyControlPeriod < 1 {
		return fmt.Errorf("early_control_period must be at least 1")
	}
	return nil
}

// New builds the grid described by spec.
func New(spec Spec) (*Grid, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	g := &Grid{}
	next := 0
	build := func(kind BandKind, bs BandSpec) Band {
		b := Band{Kind: kind, ControlPeriod: bs.ControlPeriod}
		if bs.EarlySteps > 0 {
			b.Early = &EarlyControlPeriod{Steps: bs.EarlySteps, Length: bs.EarlyControlPeriod}
		}
		n := bs.steps()
		for i := 0; i < n; i++ {
			sec := bs.StepSeconds
			if len(bs.Durations) > 0 {
				sec = bs.Durations[i]
			}
			b.Steps = append(b.Steps, TimeStep{Index: next, Duration: time.Duration(sec) * time.Second})
			next++
		}
		b.assignPeriods()
		return b
	}
	g.Fine = build(Fine, spec.Fine)
	g.Mid = build(Mid, spec.Mid)
	g.Coarse = build(Coarse, spec.Coarse)
	return g, nil
}
