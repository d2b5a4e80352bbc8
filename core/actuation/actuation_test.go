package actuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/infra/logger"
)

type recorder struct {
	got []Action
	err error
}

func (r *recorder) Apply(_ context.Context, a Action) error {
	r.got = append(r.got, a)
	return r.err
}

func TestNewActionResolvesNames(t *testing.T) {
	p := model.HybridPlant()
	a := NewAction(&p, "c1", time.Unix(0, 0), map[string]int{"hp": 0, "unknown": 3}, map[string]float64{"hs": 36})
	assert.Equal(t, "off", a.ModeNames["hp"])
	assert.NotContains(t, a.ModeNames, "unknown")
	assert.Equal(t, 36.0, a.SetPoints["hs"])

	b := a.Clone()
	b.SetPoints["hs"] = 1
	b.Modes["hp"] = 2
	assert.Equal(t, 36.0, a.SetPoints["hs"])
	assert.Equal(t, 0, a.Modes["hp"])
	assert.False(t, a.IsZero())
	assert.True(t, Action{}.IsZero())
}

func TestMultiJoinsErrors(t *testing.T) {
	ok, bad := &recorder{}, &recorder{err: errors.New("offline")}
	m := &Multi{Actuators: []Actuator{bad, ok}}
	err := m.Apply(context.Background(), Action{CycleID: "c"})
	assert.EqualError(t, err, "offline")
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
}

func TestRegistry(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, Register("test-recorder", func(map[string]any) (Actuator, error) { return rec, nil }))
	assert.Error(t, Register("test-recorder", func(map[string]any) (Actuator, error) { return rec, nil }))

	a, err := New(nil, logger.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, LogActuator{}, a)
	require.NoError(t, a.Apply(context.Background(), Action{}))

	a, err = New([]factory.ModuleConfig{{Type: "test-recorder"}}, logger.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, rec, a)

	a, err = New([]factory.ModuleConfig{{Type: "test-recorder"}, {Type: "test-recorder"}}, logger.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, a.Apply(context.Background(), Action{}))
	assert.Len(t, rec.got, 2)

	_, err = New([]factory.ModuleConfig{{Type: "missing"}}, logger.NopLogger{})
	assert.Error(t, err)
}
