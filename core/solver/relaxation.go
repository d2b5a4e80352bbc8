package solver

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/thermompc/core/milp"
)

const (
	feasTol = 1e-7
	fixTol  = 1e-9
	intTol  = 1e-6
	artTol  = 1e-6
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
)

type row struct {
	idx   []int
	val   []float64
	sense milp.Sense
	rhs   float64
}

// relaxation is the continuous relaxation of a model: min cᵀx + c0 over the
// rows with per-node bounds supplied at solve time.
type relaxation struct {
	c     []float64
	c0    float64
	rows  []row
	isInt []bool
}

func newRelaxation(m *milp.Model) *relaxation {
	r := &relaxation{isInt: make([]bool, len(m.Vars))}
	r.c, r.c0 = m.Cost()
	for _, v := range m.Vars {
		r.isInt[v.ID] = v.Kind == milp.Binary
	}
	r.rows = make([]row, len(m.Cons))
	for i, c := range m.Cons {
		rw := row{sense: c.Sense, rhs: c.RHS}
		for _, t := range c.Terms {
			rw.idx = append(rw.idx, int(t.Var))
			rw.val = append(rw.val, t.Coef)
		}
		r.rows[i] = rw
	}
	return r
}

type lpResult struct {
	status lpStatus
	x      []float64
	obj    float64
}

// solve minimises the relaxation within [lb, ub]. It returns ctx's error
// when ctx ends mid-solve.
func (r *relaxation) solve(ctx context.Context, lb, ub []float64) (lpResult, error) {
	p, st := r.presolve(lb, ub)
	if st != lpOptimal {
		return lpResult{status: st}, nil
	}
	x := p.val
	if len(p.rows) > 0 {
		// standard rewrites the offsets of the remaining columns into p.val.
		sf := r.standard(p)
		y, st, err := lpSimplex(ctx, sf)
		switch {
		case err != nil && ctx.Err() != nil:
			return lpResult{}, ctx.Err()
		case err != nil:
			return lpResult{}, fmt.Errorf("%w: %v", ErrNumerical, err)
		case st != lpOptimal:
			return lpResult{status: st}, nil
		}
		for k, col := range sf.cols {
			x[col.j] += col.sign * y[k]
		}
	}
	obj := r.c0
	for j, c := range r.c {
		obj += c * x[j]
	}
	return lpResult{status: lpOptimal, x: x, obj: obj}, nil
}

type presolved struct {
	lb, ub []float64
	fixed  []bool
	// val holds the value of fixed columns and the offset of the others.
	val  []float64
	rows []row
}

func (p *presolved) fix(j int, v float64) {
	p.fixed[j] = true
	p.val[j] = v
	p.lb[j], p.ub[j] = v, v
}

// presolve substitutes fixed columns, turns singleton rows into bounds and
// drops empty rows and columns until nothing changes.
func (r *relaxation) presolve(lb0, ub0 []float64) (presolved, lpStatus) {
	n := len(r.c)
	p := presolved{
		lb:    append([]float64(nil), lb0...),
		ub:    append([]float64(nil), ub0...),
		fixed: make([]bool, n),
		val:   make([]float64, n),
	}
	for j := 0; j < n; j++ {
		if p.lb[j] > p.ub[j]+feasTol {
			return p, lpInfeasible
		}
		if p.ub[j]-p.lb[j] <= fixTol {
			p.fix(j, p.lb[j])
		}
	}
	live := append([]row(nil), r.rows...)
	alive := make([]bool, len(live))
	for i := range alive {
		alive[i] = true
	}
	for changed := true; changed; {
		changed = false
		for i := range live {
			if !alive[i] {
				continue
			}
			rw := live[i]
			folded := row{sense: rw.sense, rhs: rw.rhs}
			for k, j := range rw.idx {
				if p.fixed[j] {
					folded.rhs -= rw.val[k] * p.val[j]
					continue
				}
				folded.idx = append(folded.idx, j)
				folded.val = append(folded.val, rw.val[k])
			}
			live[i] = folded
			switch len(folded.idx) {
			case 0:
				if !satisfied(0, folded.sense, folded.rhs) {
					return p, lpInfeasible
				}
				alive[i] = false
			case 1:
				alive[i] = false
				j := folded.idx[0]
				if !p.tighten(j, folded.val[0], folded.sense, folded.rhs, r.isInt[j]) {
					return p, lpInfeasible
				}
				if p.fixed[j] {
					changed = true
				}
			}
		}
	}
	used := make([]bool, n)
	for i, rw := range live {
		if !alive[i] {
			continue
		}
		for _, j := range rw.idx {
			used[j] = true
		}
		p.rows = append(p.rows, rw)
	}
	for j := 0; j < n; j++ {
		if p.fixed[j] || used[j] {
			continue
		}
		v, ok := bestBound(r.c[j], p.lb[j], p.ub[j])
		if !ok {
			return p, lpUnbounded
		}
		p.fix(j, v)
	}
	return p, lpOptimal
}

// tighten applies a·x (sense) rhs as a bound on column j.
func (p *presolved) tighten(j int, a float64, s milp.Sense, rhs float64, integer bool) bool {
	bound := rhs / a
	lo, hi := math.Inf(-1), math.Inf(1)
	switch {
	case s == milp.EQ:
		lo, hi = bound, bound
	case (s == milp.LE) == (a > 0):
		hi = bound
	default:
		lo = bound
	}
	if integer {
		lo, hi = math.Ceil(lo-intTol), math.Floor(hi+intTol)
	}
	p.lb[j] = math.Max(p.lb[j], lo)
	p.ub[j] = math.Min(p.ub[j], hi)
	if p.lb[j] > p.ub[j]+feasTol {
		return false
	}
	if p.ub[j]-p.lb[j] <= fixTol || p.lb[j] > p.ub[j] {
		p.fix(j, (p.lb[j]+p.ub[j])/2)
	}
	return true
}

func satisfied(a float64, s milp.Sense, rhs float64) bool {
	switch s {
	case milp.LE:
		return a <= rhs+feasTol
	case milp.GE:
		return a >= rhs-feasTol
	default:
		return math.Abs(a-rhs) <= feasTol
	}
}

// bestBound returns the optimal value of a column that appears in no row.
func bestBound(c, lb, ub float64) (float64, bool) {
	switch {
	case c > 0:
		return lb, !math.IsInf(lb, -1)
	case c < 0:
		return ub, !math.IsInf(ub, 1)
	case !math.IsInf(lb, -1):
		return lb, true
	case !math.IsInf(ub, 1):
		return ub, true
	default:
		return 0, true
	}
}

type column struct {
	j    int
	sign float64
}

// standardForm is min cᵀy s.t. Ay = b, y >= 0 stored as the tableau
// [A | b] with b >= 0 and an identity starting basis of slacks and
// artificials.
type standardForm struct {
	T     *mat.Dense
	b, c  []float64
	basis []int
	cols  []column
	art   []int
}

// standard shifts finite lower bounds to zero, mirrors columns that only have
// an upper bound, splits free columns and adds one slack or artificial per
// row so that the starting basis is the identity.
func (r *relaxation) standard(p presolved) *standardForm {
	n := len(r.c)
	sf := &standardForm{}
	colsOf := make([][]int, n)
	type ubRow struct {
		col int
		rhs float64
	}
	var ubRows []ubRow
	add := func(j int, sign float64) int {
		sf.cols = append(sf.cols, column{j: j, sign: sign})
		k := len(sf.cols) - 1
		colsOf[j] = append(colsOf[j], k)
		return k
	}
	for j := 0; j < n; j++ {
		if p.fixed[j] {
			continue
		}
		lo, hi := p.lb[j], p.ub[j]
		switch {
		case !math.IsInf(lo, -1):
			p.val[j] = lo
			k := add(j, 1)
			if !math.IsInf(hi, 1) {
				ubRows = append(ubRows, ubRow{col: k, rhs: hi - lo})
			}
		case !math.IsInf(hi, 1):
			p.val[j] = hi
			add(j, -1)
		default:
			p.val[j] = 0
			add(j, 1)
			add(j, -1)
		}
	}

	ns := len(sf.cols)
	m := len(p.rows) + len(ubRows)
	coef := make([][]float64, m)
	rhs := make([]float64, m)
	slack := make([]float64, m)
	for i, rw := range p.rows {
		coef[i] = make([]float64, ns)
		rhs[i] = rw.rhs
		for t, j := range rw.idx {
			a := rw.val[t]
			for _, k := range colsOf[j] {
				coef[i][k] += a * sf.cols[k].sign
			}
			rhs[i] -= a * p.val[j]
		}
		switch rw.sense {
		case milp.LE:
			slack[i] = 1
		case milp.GE:
			slack[i] = -1
		}
	}
	for t, u := range ubRows {
		i := len(p.rows) + t
		coef[i] = make([]float64, ns)
		coef[i][u.col] = 1
		rhs[i] = u.rhs
		slack[i] = 1
	}

	nSlack, nArt := 0, 0
	for i := 0; i < m; i++ {
		if rhs[i] < 0 {
			for k := range coef[i] {
				coef[i][k] = -coef[i][k]
			}
			rhs[i], slack[i] = -rhs[i], -slack[i]
		}
		if slack[i] != 0 {
			nSlack++
		}
		if slack[i] != 1 {
			nArt++
		}
	}

	total := ns + nSlack + nArt
	sf.T = mat.NewDense(m, total+1, nil)
	sf.b = rhs
	sf.c = make([]float64, total)
	for k, col := range sf.cols {
		sf.c[k] = r.c[col.j] * col.sign
	}
	sf.basis = make([]int, m)
	nextSlack, nextArt := ns, ns+nSlack
	for i := 0; i < m; i++ {
		row := sf.T.RawRowView(i)
		copy(row, coef[i])
		row[total] = rhs[i]
		if slack[i] != 0 {
			row[nextSlack] = slack[i]
			if slack[i] == 1 {
				sf.basis[i] = nextSlack
			}
			nextSlack++
		}
		if slack[i] != 1 {
			row[nextArt] = 1
			sf.basis[i] = nextArt
			sf.art = append(sf.art, nextArt)
			nextArt++
		}
	}
	return sf
}
