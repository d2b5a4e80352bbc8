// Package warmstart builds an initial assignment for the full horizon solve
// by solving short consecutive windows of a band, each starting where the
// previous one ended.
package warmstart

import (
	"github.com/kilianp07/thermompc/core/network"
	"github.com/kilianp07/thermompc/core/timegrid"
)

// ModeKey addresses a mode decision. Step is band-local.
type ModeKey struct {
	Band  timegrid.BandKind
	Group string
	Mode  int
	Step  int
}

// TempKey addresses a block temperature. Point is band-local.
type TempKey struct {
	Band  timegrid.BandKind
	Node  string
	Block int
	Point int
}

// Record is a warm-start assignment. A nil *Record means cold start.
type Record struct {
	Modes map[ModeKey]float64
	Temps map[TempKey]float64
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{Modes: map[ModeKey]float64{}, Temps: map[TempKey]float64{}}
}

// FromTrajectory records a solved window whose first step is band-local
// step offset.
func FromTrajectory(tr network.Trajectory, offset int) *Record {
	r := NewRecord()
	for g, modes := range tr.Modes {
		for i, steps := range modes {
			for t, v := range steps {
				r.Modes[ModeKey{Band: tr.Band, Group: g, Mode: i, Step: offset + t}] = v
			}
		}
	}
	for id, blocks := range tr.Temps {
		for k, pts := range blocks {
			for p, v := range pts {
				r.Temps[TempKey{Band: tr.Band, Node: id, Block: k, Point: offset + p}] = v
			}
		}
	}
	return r
}

// Merge copies o into r. Entries of o win.
func (r *Record) Merge(o *Record) {
	if o == nil {
		return
	}
	for k, v := range o.Modes {
		r.Modes[k] = v
	}
	for k, v := range o.Temps {
		r.Temps[k] = v
	}
}

// Len returns the number of recorded values.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Modes) + len(r.Temps)
}

// Mode looks up a mode value.
func (r *Record) Mode(k ModeKey) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.Modes[k]
	return v, ok
}

// Temp looks up a temperature.
func (r *Record) Temp(k TempKey) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.Temps[k]
	return v, ok
}

// ActiveMode returns the recorded mode of group g with the largest value at
// step t, or false when nothing is recorded for that step.
func (r *Record) ActiveMode(band timegrid.BandKind, g string, modes, t int) (int, bool) {
	best, idx, found := -1.0, 0, false
	for i := 0; i < modes; i++ {
		v, ok := r.Mode(ModeKey{Band: band, Group: g, Mode: i, Step: t})
		if !ok {
			continue
		}
		found = true
		if v > best {
			best, idx = v, i
		}
	}
	return idx, found
}
