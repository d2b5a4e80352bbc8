package timegrid

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is returned when a horizon description cannot produce a grid.
var ErrInvalid = errors.New("invalid horizon")

// BandKind identifies one of the three resolution bands.
type BandKind int

const (
	Fine BandKind = iota
	Mid
	Coarse
)

func (k BandKind) String() string {
	switch k {
	case Fine:
		return "fine"
	case Mid:
		return "mid"
	case Coarse:
		return "coarse"
	default:
		return fmt.Sprintf("band(%d)", int(k))
	}
}

// TimeStep is one interval of the horizon. Index is global over the whole grid.
type TimeStep struct {
	Index    int
	Duration time.Duration
}

// EarlyControlPeriod groups the first Steps of a band with its own period length.
type EarlyControlPeriod struct {
	Steps  int
	Length int
}

// Band is a contiguous run of steps sharing a resolution. A band of n steps
// has n decision intervals and n+1 state points.
type Band struct {
	Kind          BandKind
	Steps         []TimeStep
	ControlPeriod int
	Early         *EarlyControlPeriod

	period []int
}

// Len returns the number of decision intervals.
func (b Band) Len() int { return len(b.Steps) }

// Offset is the global index of the first step, or -1 for an empty band.
func (b Band) Offset() int {
	if len(b.Steps) == 0 {
		return -1
	}
	return b.Steps[0].Index
}

// Seconds returns the duration of local step t in seconds.
func (b Band) Seconds(t int) float64 { return b.Steps[t].Duration.Seconds() }

// Duration returns the total band length.
func (b Band) Duration() time.Duration {
	var d time.Duration
	for _, s := range b.Steps {
		d += s.Duration
	}
	return d
}

// PeriodOf returns the control period id of local step t.
func (b Band) PeriodOf(t int) int {
	if b.period == nil {
		return t
	}
	return b.period[t]
}

// ControlPeriods lists local step indices grouped by control period, in order.
func (b Band) ControlPeriods() [][]int {
	var out [][]int
	last := -1
	for t := range b.Steps {
		p := b.PeriodOf(t)
		if p != last || len(out) == 0 {
			out = append(out, nil)
			last = p
		}
		out[len(out)-1] = append(out[len(out)-1], t)
	}
	return out
}

// Sub returns local steps [from, to) as a band of the same kind. Control
// period membership is inherited from the parent band.
func (b Band) Sub(from, to int) Band {
	sub := Band{Kind: b.Kind, ControlPeriod: b.ControlPeriod}
	sub.Steps = append([]TimeStep(nil), b.Steps[from:to]...)
	sub.period = make([]int, to-from)
	for i := range sub.period {
		sub.period[i] = b.PeriodOf(from + i)
	}
	return sub
}

func (b *Band) assignPeriods() {
	b.period = make([]int, len(b.Steps))
	id, run := 0, 0
	length := func(t int) int {
		if b.Early != nil && t < b.Early.Steps {
			return b.Early.Length
		}
		return b.ControlPeriod
	}
	for t := range b.Steps {
		l := length(t)
		if t > 0 && (run >= l || length(t-1) != l) {
			id++
			run = 0
		}
		b.period[t] = id
		run++
	}
}

// Grid is the full horizon split into fine, mid and coarse bands.
type Grid struct {
	Fine   Band
	Mid    Band
	Coarse Band
}

// Band returns the band of the given kind.
func (g *Grid) Band(k BandKind) Band {
	switch k {
	case Mid:
		return g.Mid
	case Coarse:
		return g.Coarse
	default:
		return g.Fine
	}
}

// Steps returns every step of the horizon in order.
func (g *Grid) Steps() []TimeStep {
	out := make([]TimeStep, 0, g.Len())
	out = append(out, g.Fine.Steps...)
	out = append(out, g.Mid.Steps...)
	return append(out, g.Coarse.Steps...)
}

// Len returns the number of steps over all bands.
func (g *Grid) Len() int { return g.Fine.Len() + g.Mid.Len() + g.Coarse.Len() }
