package milp

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Activity returns the left-hand side of row i at x.
func (m *Model) Activity(i int, x []float64) float64 {
	var s float64
	for _, t := range m.Cons[i].Terms {
		s += t.Coef * x[t.Var]
	}
	return s
}

// Violations lists every bound, integrality and row violated by more than tol.
func (m *Model) Violations(x []float64, tol float64) []string {
	var out []string
	for _, v := range m.Vars {
		val := x[v.ID]
		if val < v.Lb-tol || val > v.Ub+tol {
			out = append(out, fmt.Sprintf("%s=%g outside [%g,%g]", v.Name, val, v.Lb, v.Ub))
		}
		if v.Kind == Binary && math.Abs(val-math.Round(val)) > tol {
			out = append(out, fmt.Sprintf("%s=%g not integral", v.Name, val))
		}
	}
	for i, c := range m.Cons {
		a := m.Activity(i, x)
		switch {
		case c.Sense == LE && a > c.RHS+tol,
			c.Sense == GE && a < c.RHS-tol,
			c.Sense == EQ && math.Abs(a-c.RHS) > tol:
			out = append(out, fmt.Sprintf("%s: %g %s %g", c.Name, a, c.Sense, c.RHS))
		}
	}
	return out
}

// Fingerprint is a digest of the full model content. Two models built from
// identical inputs have identical fingerprints.
func (m *Model) Fingerprint() string {
	h := sha256.New()
	buf := make([]byte, 8)
	f := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	i := func(v int) {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}
	for _, v := range m.Vars {
		h.Write([]byte(v.Name))
		i(int(v.Kind))
		f(v.Lb)
		f(v.Ub)
	}
	for _, c := range m.Cons {
		h.Write([]byte(c.Name))
		i(int(c.Sense))
		f(c.RHS)
		for _, t := range c.Terms {
			i(int(t.Var))
			f(t.Coef)
		}
	}
	for _, comp := range Components() {
		e := m.ObjectiveOf(comp)
		i(int(comp))
		f(e.Const)
		for _, t := range e.Terms {
			i(int(t.Var))
			f(t.Coef)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
