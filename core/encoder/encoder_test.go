package encoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/core/milp"
)

// interval returns the range of v allowed by every row once all other
// variables are fixed to x.
func interval(m *milp.Model, v milp.VarID, x []float64) (float64, float64) {
	lo, hi := m.Vars[v].Lb, m.Vars[v].Ub
	for _, c := range m.Cons {
		var a, rest float64
		for _, t := range c.Terms {
			if t.Var == v {
				a += t.Coef
			} else {
				rest += t.Coef * x[t.Var]
			}
		}
		if a == 0 {
			continue
		}
		bound := (c.RHS - rest) / a
		le := c.Sense == milp.LE
		if a < 0 {
			le = !le
		}
		switch {
		case c.Sense == milp.EQ:
			lo, hi = math.Max(lo, bound), math.Min(hi, bound)
		case le:
			hi = math.Min(hi, bound)
		default:
			lo = math.Max(lo, bound)
		}
	}
	return lo, hi
}

func TestBigMExactAtGateValues(t *testing.T) {
	const dmin, dmax = -100.0, 100.0
	for _, delta := range []float64{-100, -37.5, 0, 12, 100} {
		for _, gate := range []float64{0, 1} {
			m := milp.New()
			b := m.Mode("b", milp.BinaryMode{}, milp.Tag{})
			d := m.Continuous("d", dmin, dmax, milp.Tag{})
			z := BigM(m, "z", b, milp.V(d), dmin, dmax, milp.Tag{})
			require.Len(t, m.Cons, 4)

			x := []float64{gate, delta, 0}
			lo, hi := interval(m, z, x)
			want := gate * delta
			assert.InDelta(t, want, lo, 1e-9, "delta=%g gate=%g", delta, gate)
			assert.InDelta(t, want, hi, 1e-9, "delta=%g gate=%g", delta, gate)
		}
	}
}

func TestBigMWithinBoundsWhenRelaxed(t *testing.T) {
	m := milp.New()
	b := m.Mode("b", milp.Relaxed{Lo: 0, Hi: 1}, milp.Tag{})
	d := m.Continuous("d", -10, 10, milp.Tag{})
	z := BigM(m, "z", b, milp.V(d), -10, 10, milp.Tag{})
	for _, gate := range []float64{0.25, 0.5, 0.9} {
		lo, hi := interval(m, z, []float64{gate, 4, 0})
		assert.LessOrEqual(t, lo, hi)
		assert.GreaterOrEqual(t, lo, -10*gate-1e-9)
		assert.LessOrEqual(t, hi, 10*gate+1e-9)
	}
}

func TestSOS1AndToggle(t *testing.T) {
	m := milp.New()
	prev := []milp.Expr{milp.C(1), milp.C(0), milp.C(0)}
	var cur []milp.Expr
	var vars []milp.VarID
	for i := 0; i < 3; i++ {
		v := m.Mode("b", milp.BinaryMode{}, milp.Tag{Role: milp.RoleMode, Mode: i})
		vars = append(vars, v)
		cur = append(cur, milp.V(v))
	}
	SOS1(m, "sos", vars)
	tg := Toggle(m, "tog", prev, cur, milp.Tag{Role: milp.RoleToggle})

	same := []float64{1, 0, 0, 0}
	assert.Empty(t, m.Violations(same, 1e-9))
	lo, _ := interval(m, tg, same)
	assert.Equal(t, 0.0, lo)

	switched := []float64{0, 0, 1, 0}
	lo, _ = interval(m, tg, switched)
	assert.Equal(t, 1.0, lo)

	assert.NotEmpty(t, m.Violations([]float64{1, 1, 0, 0}, 1e-9))
}

func TestIntervals(t *testing.T) {
	assert.Equal(t, [][2]float64{{-60, 0}, {0, 60}}, Intervals(-60, 60, 2))
	iv := Intervals(0, 1, 3)
	assert.InDelta(t, 1.0/3, iv[0][1], 1e-12)
	assert.Equal(t, 1.0, iv[2][1])
}

// cellPoint assigns the selector, part and fraction variables of the active
// sub-interval for (p, T) and returns x with w left at zero.
func cellPoint(m *milp.Model, c Cell, pv, tv milp.VarID, p, tval float64) []float64 {
	x := make([]float64, len(m.Vars))
	x[pv], x[tv] = p, tval
	for n, iv := range c.Bounds {
		if tval >= iv[0] && (tval < iv[1] || n == len(c.Bounds)-1) {
			x[c.Selectors[n]] = 1
			x[c.Parts[n]] = tval
			x[c.Fractions[n]] = p
			break
		}
	}
	return x
}

func newCell(n int) (*milp.Model, Cell, milp.VarID, milp.VarID) {
	m := milp.New()
	p := m.Continuous("p", 0, 1, milp.Tag{})
	tv := m.Continuous("T", -60, 60, milp.Tag{})
	c := McCormick(m, CellSpec{Name: "mc", P: p, PMin: 0, PMax: 1, T: milp.V(tv), TLo: -60, THi: 60, N: n})
	return m, c, p, tv
}

func TestMcCormickExactAtSelectorBounds(t *testing.T) {
	m, c, p, tv := newCell(2)
	for _, pval := range []float64{0, 1} {
		for _, tval := range []float64{-60, -45.5, -3, 0, 17, 59} {
			x := cellPoint(m, c, p, tv, pval, tval)
			lo, hi := interval(m, c.W, x)
			assert.InDelta(t, pval*tval, lo, 1e-9, "p=%g T=%g", pval, tval)
			assert.InDelta(t, pval*tval, hi, 1e-9, "p=%g T=%g", pval, tval)
			x[c.W] = pval * tval
			assert.Empty(t, m.Violations(x, 1e-9))
		}
	}
}

func TestMcCormickExactAtSubIntervalBoundaries(t *testing.T) {
	m, c, p, tv := newCell(4)
	for _, iv := range c.Bounds {
		for _, tval := range []float64{iv[0], iv[1]} {
			for _, pval := range []float64{0.2, 0.5, 0.75} {
				x := cellPoint(m, c, p, tv, pval, tval)
				lo, hi := interval(m, c.W, x)
				assert.InDelta(t, pval*tval, lo, 1e-9)
				assert.InDelta(t, pval*tval, hi, 1e-9)
			}
		}
	}
}

func TestMcCormickRelaxesInterior(t *testing.T) {
	m1, c1, p1, t1 := newCell(1)
	m4, c4, p4, t4 := newCell(4)
	pval, tval := 0.5, 10.0
	lo1, hi1 := interval(m1, c1.W, cellPoint(m1, c1, p1, t1, pval, tval))
	lo4, hi4 := interval(m4, c4.W, cellPoint(m4, c4, p4, t4, pval, tval))
	assert.LessOrEqual(t, lo1, pval*tval)
	assert.GreaterOrEqual(t, hi1, pval*tval)
	// more partitions give a tighter envelope
	assert.Less(t, hi4-lo4, hi1-lo1)
}
