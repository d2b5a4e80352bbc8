// Package encoder provides the linearisation idioms shared by every band of
// the thermal network: Big-M gating, SOS1 selection, switching indicators and
// partitioned McCormick envelopes.
package encoder

import (
	"fmt"
	"math"

	"github.com/kilianp07/thermompc/core/milp"
)

var free = [2]float64{math.Inf(-1), math.Inf(1)}

// BigM returns z such that z = delta when gate is 1 and z = 0 when gate is 0,
// for any delta within [dmin, dmax]. It emits exactly four inequalities.
func BigM(m *milp.Model, name string, gate milp.VarID, delta milp.Expr, dmin, dmax float64, tag milp.Tag) milp.VarID {
	z := m.Continuous(name, free[0], free[1], tag)
	b := milp.V(gate)
	m.AddLE(name+".ub", milp.V(z), b.Scale(dmax))
	m.AddGE(name+".lb", milp.V(z), b.Scale(dmin))
	// z <= Δ - (1-b)·dmin
	m.AddLE(name+".on_ub", milp.V(z), delta.AddConst(-dmin).Plus(b.Scale(dmin)))
	// z >= Δ - (1-b)·dmax
	m.AddGE(name+".on_lb", milp.V(z), delta.AddConst(-dmax).Plus(b.Scale(dmax)))
	return z
}

// SOS1 constrains the group to sum to exactly one.
func SOS1(m *milp.Model, name string, vars []milp.VarID) {
	var e milp.Expr
	for _, v := range vars {
		e = e.Term(v, 1)
	}
	m.AddEQ(name, e, milp.C(1))
}

// Toggle returns a non-negative indicator t >= cur[i] - prev[i] for every i.
// For a binary SOS1 group t is 1 whenever the selected member changes.
func Toggle(m *milp.Model, name string, prev, cur []milp.Expr, tag milp.Tag) milp.VarID {
	if len(prev) != len(cur) {
		panic(fmt.Sprintf("encoder: toggle %s: %d previous vs %d current", name, len(prev), len(cur)))
	}
	t := m.Continuous(name, 0, math.Inf(1), tag)
	for i := range cur {
		m.AddGE(fmt.Sprintf("%s[%d]", name, i), milp.V(t), cur[i].Minus(prev[i]))
	}
	return t
}

// Equal ties every expression to the first one.
func Equal(m *milp.Model, name string, es []milp.Expr) {
	for i := 1; i < len(es); i++ {
		m.AddEQ(fmt.Sprintf("%s[%d]", name, i), es[i], es[0])
	}
}
