package timegrid

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsBuildProductionHorizon(t *testing.T) {
	var s Spec
	s.SetDefaults()
	g, err := New(s)
	require.NoError(t, err)
	assert.Equal(t, 7, g.Fine.Len())
	assert.Equal(t, 23, g.Mid.Len())
	assert.Equal(t, 25, g.Coarse.Len())
	assert.Equal(t, 55, g.Len())
	assert.Equal(t, 7, g.Mid.Offset())
	assert.Equal(t, 30, g.Coarse.Offset())
	assert.Equal(t, 10*time.Minute, g.Fine.Steps[0].Duration)
	assert.Equal(t, 6*time.Hour, g.Coarse.Steps[24].Duration)
	for i, st := range g.Steps() {
		assert.Equal(t, i, st.Index)
	}
}

func TestControlPeriodsWithEarlyRun(t *testing.T) {
	g, err := New(Spec{
		Fine:   BandSpec{Steps: 7, StepSeconds: 600, ControlPeriod: 2, EarlySteps: 2, EarlyControlPeriod: 1},
		Mid:    BandSpec{Steps: 3, StepSeconds: 3600, ControlPeriod: 1},
		Coarse: BandSpec{},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}, {1}, {2, 3}, {4, 5}, {6}}, g.Fine.ControlPeriods())
	assert.Equal(t, [][]int{{0}, {1}, {2}}, g.Mid.ControlPeriods())
	assert.Equal(t, 0, g.Coarse.Len())
	assert.Equal(t, -1, g.Coarse.Offset())
}

func TestSubInheritsPeriods(t *testing.T) {
	g, err := New(Spec{Fine: BandSpec{Steps: 6, StepSeconds: 60, ControlPeriod: 2}})
	require.NoError(t, err)
	sub := g.Fine.Sub(1, 5)
	assert.Equal(t, 4, sub.Len())
	assert.Equal(t, 1, sub.Offset())
	assert.Equal(t, [][]int{{0}, {1, 2}, {3}}, sub.ControlPeriods())
}

func TestNonUniformDurations(t *testing.T) {
	g, err := New(Spec{Fine: BandSpec{Durations: []int{60, 120, 300}, ControlPeriod: 1}})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Fine.Len())
	assert.Equal(t, 300.0, g.Fine.Seconds(2))
	assert.Equal(t, 8*time.Minute, g.Fine.Duration())
}

func TestValidateRejectsMalformedBands(t *testing.T) {
	cases := map[string]Spec{
		"empty fine":      {},
		"zero period":     {Fine: BandSpec{Steps: 3, StepSeconds: 60}},
		"negative dur":    {Fine: BandSpec{Durations: []int{60, -1}, ControlPeriod: 1}},
		"early too long":  {Fine: BandSpec{Steps: 2, StepSeconds: 60, ControlPeriod: 1, EarlySteps: 3, EarlyControlPeriod: 1}},
		"missing seconds": {Fine: BandSpec{Steps: 2, ControlPeriod: 1}},
	}
	for name, s := range cases {
		_, err := New(s)
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestDisabledBandsStayEmpty(t *testing.T) {
	s := Spec{Fine: BandSpec{Steps: 3}, Mid: BandSpec{Disabled: true}, Coarse: BandSpec{Disabled: true, Steps: 4}}
	s.SetDefaults()
	g, err := New(s)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 0, g.Mid.Len())
	assert.Equal(t, 0, g.Coarse.Len())

	_, err = New(Spec{Fine: BandSpec{Steps: 3, StepSeconds: 600, ControlPeriod: 1, Disabled: true}})
	assert.True(t, errors.Is(err, ErrInvalid))
}
