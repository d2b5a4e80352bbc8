// Package results persists the solved trajectory of every cycle: one record
// per horizon step with its costs and every node temperature, mode value and
// slack.
package results

import (
	"context"
	"errors"
	"time"
)

// StepRecord is one step of a solved horizon. Temperatures are block means
// at the end of the step.
type StepRecord struct {
	CycleID   string               `json:"cycle_id"`
	Band      string               `json:"band"`
	Step      int                  `json:"step"`
	Start     time.Time            `json:"start"`
	Duration  float64              `json:"duration_s"`
	Energy    float64              `json:"energy_cost"`
	Slack     float64              `json:"slack_penalty"`
	Switching float64              `json:"switching_penalty"`
	Temps     map[string]float64   `json:"temps"`
	Modes     map[string][]float64 `json:"modes"`
	Active    map[string]int       `json:"active"`
	Slacks    map[string]float64   `json:"slacks"`
}

// Query filters stored records.
type Query struct {
	Start   time.Time
	End     time.Time
	CycleID string
	Band    string
}

// Match reports whether r passes every filter of q.
func (q Query) Match(r StepRecord) bool {
	if !q.Start.IsZero() && r.Start.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Start.After(q.End) {
		return false
	}
	if q.CycleID != "" && r.CycleID != q.CycleID {
		return false
	}
	if q.Band != "" && r.Band != q.Band {
		return false
	}
	return true
}

// Sink receives the records of one cycle.
type Sink interface {
	Write(ctx context.Context, recs []StepRecord) error
	Close() error
}

// Store is a Sink that can be queried back.
type Store interface {
	Sink
	Query(ctx context.Context, q Query) ([]StepRecord, error)
}

// NopSink drops every record.
type NopSink struct{}

func (NopSink) Write(context.Context, []StepRecord) error { return nil }
func (NopSink) Close() error                              { return nil }

// MultiSink writes to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// Write forwards recs to every sink and joins their errors.
func (m *MultiSink) Write(ctx context.Context, recs []StepRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Write(ctx, recs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Query returns the records of the first queryable sink.
func (m *MultiSink) Query(ctx context.Context, q Query) ([]StepRecord, error) {
	for _, s := range m.Sinks {
		if st, ok := s.(Store); ok {
			return st.Query(ctx, q)
		}
	}
	return nil, errors.New("results: no queryable sink")
}
