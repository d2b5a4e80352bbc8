package metrics

import (
	"errors"

	"github.com/kilianp07/thermompc/core/events"
)

// MetricsSink records finished cycles.
type MetricsSink interface {
	RecordCycle(ev events.CycleEvent) error
}

// StateRecorder records cycle state transitions.
type StateRecorder interface {
	RecordState(ev events.StateEvent) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordCycle(events.CycleEvent) error { return nil }
func (NopSink) RecordState(events.StateEvent) error { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards ev to every sink and joins their errors.
func (m *MultiSink) RecordCycle(ev events.CycleEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordCycle(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordState forwards ev to the sinks that record states.
func (m *MultiSink) RecordState(ev events.StateEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(StateRecorder); ok {
			if err := r.RecordState(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
