package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/core/factory"
)

type recordSink struct {
	cycles, states int
	err            error
}

func (r *recordSink) RecordCycle(events.CycleEvent) error {
	r.cycles++
	return r.err
}

func (r *recordSink) RecordState(events.StateEvent) error {
	r.states++
	return nil
}

type cycleOnly struct{ n int }

func (c *cycleOnly) RecordCycle(events.CycleEvent) error { c.n++; return nil }

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{err: errors.New("down")}
	s3 := &cycleOnly{}
	m := NewMultiSink(s1, s2, s3)

	assert.EqualError(t, m.RecordCycle(events.CycleEvent{}), "down")
	require.NoError(t, m.RecordState(events.StateEvent{}))
	assert.Equal(t, 1, s1.cycles)
	assert.Equal(t, 1, s2.cycles)
	assert.Equal(t, 1, s3.n)
	assert.Equal(t, 1, s1.states)
	assert.Equal(t, 1, s2.states)
}

func TestNewMetricsSink(t *testing.T) {
	s, err := NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	require.NoError(t, RegisterMetricsSink("test-count", func(map[string]any) (MetricsSink, error) {
		return &cycleOnly{}, nil
	}))
	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "test-count"}})
	require.NoError(t, err)
	assert.IsType(t, &cycleOnly{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "test-count"}, {Type: "test-count"}})
	require.NoError(t, err)
	m, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, m.Sinks, 2)

	_, err = NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}})
	assert.Error(t, err)
}
