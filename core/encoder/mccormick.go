package encoder

import (
	"fmt"
	"math"

	"github.com/kilianp07/thermompc/core/milp"
)

// CellSpec describes w ≈ p·T with p in [PMin, PMax] and T in [TLo, THi]
// partitioned into N uniform sub-intervals.
type CellSpec struct {
	Name     string
	P        milp.VarID
	PMin     float64
	PMax     float64
	T        milp.Expr
	TLo      float64
	THi      float64
	N        int
	Selector milp.ModeVariable
	Tag      milp.Tag
}

// Cell holds the handles of one McCormick relaxation.
type Cell struct {
	W         milp.VarID
	Selectors []milp.VarID
	Parts     []milp.VarID
	Fractions []milp.VarID
	Bounds    [][2]float64
}

// Intervals splits [lo, hi] into n uniform sub-intervals.
func Intervals(lo, hi float64, n int) [][2]float64 {
	out := make([][2]float64, n)
	w := (hi - lo) / float64(n)
	for i := range out {
		out[i] = [2]float64{lo + w*float64(i), lo + w*float64(i+1)}
	}
	out[n-1][1] = hi
	return out
}

// McCormick emits the partitioned envelope. Exactly one selector is active;
// the envelope is exact on the active sub-interval whenever p sits on one of
// its bounds or T sits on a sub-interval boundary.
func McCormick(m *milp.Model, s CellSpec) Cell {
	if s.N < 1 {
		s.N = 1
	}
	if s.Selector == nil {
		s.Selector = milp.BinaryMode{}
	}
	cell := Cell{Bounds: Intervals(s.TLo, s.THi, s.N)}
	tag := s.Tag
	tag.Role = milp.RoleCellProduct
	cell.W = m.Continuous(s.Name+".w", math.Inf(-1), math.Inf(1), tag)

	var (
		sumZ, sumP         milp.Expr
		lo1, lo2, up1, up2 milp.Expr
	)
	for n, iv := range cell.Bounds {
		name := fmt.Sprintf("%s.n%d", s.Name, n)
		st := s.Tag
		st.Part = n

		st.Role = milp.RoleCellSelector
		b := m.Mode(name+".b", s.Selector, st)
		st.Role = milp.RoleCellPart
		z := BigM(m, name+".z", b, s.T, s.TLo, s.THi, st)
		st.Role = milp.RoleCellFraction
		p := m.Continuous(name+".p", 0, math.Inf(1), st)

		m.AddLE(name+".z_hi", milp.V(z), milp.V(b).Scale(iv[1]))
		m.AddGE(name+".z_lo", milp.V(z), milp.V(b).Scale(iv[0]))
		m.AddLE(name+".p_hi", milp.V(p), milp.V(b).Scale(s.PMax))
		m.AddGE(name+".p_lo", milp.V(p), milp.V(b).Scale(s.PMin))

		cell.Selectors = append(cell.Selectors, b)
		cell.Parts = append(cell.Parts, z)
		cell.Fractions = append(cell.Fractions, p)
		sumZ = sumZ.Term(z, 1)
		sumP = sumP.Term(p, 1)

		lo1 = lo1.Term(z, s.PMin).Term(p, iv[0]).Term(b, -s.PMin*iv[0])
		lo2 = lo2.Term(z, s.PMax).Term(p, iv[1]).Term(b, -s.PMax*iv[1])
		up1 = up1.Term(z, s.PMax).Term(p, iv[0]).Term(b, -s.PMax*iv[0])
		up2 = up2.Term(z, s.PMin).Term(p, iv[1]).Term(b, -s.PMin*iv[1])
	}
	SOS1(m, s.Name+".sos", cell.Selectors)
	m.AddEQ(s.Name+".link_t", sumZ, s.T)
	m.AddEQ(s.Name+".link_p", sumP, milp.V(s.P))
	w := milp.V(cell.W)
	m.AddGE(s.Name+".env_lo1", w, lo1)
	m.AddGE(s.Name+".env_lo2", w, lo2)
	m.AddLE(s.Name+".env_up1", w, up1)
	m.AddLE(s.Name+".env_up2", w, up2)
	return cell
}
