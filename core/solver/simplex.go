package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	pivTol = 1e-9
	// blandAfter is the run of degenerate pivots after which entering
	// columns are chosen by smallest index.
	blandAfter = 50
	ctxEvery   = 16
)

var (
	errIterations = errors.New("simplex iteration limit")
	errFalseRay   = errors.New("unbounded ray with non-negative costs")
)

// lpSimplex solves a standard form. Tests override it to inject failures.
var lpSimplex = simplex

// tableau is a dense simplex tableau kept in canonical form for basis: row i
// holds B⁻¹A followed by B⁻¹b. d holds the reduced costs followed by minus
// the objective value.
type tableau struct {
	t       *mat.Dense
	m, n    int
	basis   []int
	d       []float64
	blocked []bool
	dTol    float64
	maxIter int
}

func (tb *tableau) rhs(i int) float64 { return tb.t.At(i, tb.n) }

// price resets d for cost vector c under the current basis.
func (tb *tableau) price(c []float64) {
	tb.d = make([]float64, tb.n+1)
	copy(tb.d, c)
	maxC := 0.0
	for _, v := range c {
		maxC = math.Max(maxC, math.Abs(v))
	}
	tb.dTol = 1e-9 * (1 + maxC)
	for i, k := range tb.basis {
		if c[k] != 0 {
			floats.AddScaled(tb.d, -c[k], tb.t.RawRowView(i))
		}
	}
	for _, k := range tb.basis {
		tb.d[k] = 0
	}
}

func (tb *tableau) entering(bland bool) int {
	q, best := -1, -tb.dTol
	for j := 0; j < tb.n; j++ {
		if tb.blocked[j] || tb.d[j] >= best {
			continue
		}
		if bland {
			return j
		}
		q, best = j, tb.d[j]
	}
	return q
}

// leaving runs the ratio test on column q. Ties go to the smallest basic
// index when bland is set and to the larger pivot otherwise.
func (tb *tableau) leaving(q int, bland bool) int {
	r := -1
	var best, piv float64
	for i := 0; i < tb.m; i++ {
		a := tb.t.At(i, q)
		if a <= pivTol {
			continue
		}
		ratio := math.Max(tb.rhs(i), 0) / a
		switch {
		case r < 0 || ratio < best-1e-12:
		case math.Abs(ratio-best) <= 1e-12 && bland && tb.basis[i] < tb.basis[r]:
		case math.Abs(ratio-best) <= 1e-12 && !bland && a > piv:
		default:
			continue
		}
		r, best, piv = i, ratio, a
	}
	return r
}

func (tb *tableau) pivot(r, q int) {
	row := tb.t.RawRowView(r)
	floats.Scale(1/row[q], row)
	row[q] = 1
	for i := 0; i < tb.m; i++ {
		if i == r {
			continue
		}
		other := tb.t.RawRowView(i)
		if f := other[q]; f != 0 {
			floats.AddScaled(other, -f, row)
			other[q] = 0
			if v := other[tb.n]; v < 0 && v > -feasTol {
				other[tb.n] = 0
			}
		}
	}
	if f := tb.d[q]; f != 0 {
		floats.AddScaled(tb.d, -f, row)
		tb.d[q] = 0
	}
	tb.basis[r] = q
}

// run pivots until no column prices out. It returns lpUnbounded when an
// improving column has no blocking row.
func (tb *tableau) run(ctx context.Context) (lpStatus, error) {
	degenerate := 0
	for it := 0; ; it++ {
		if it%ctxEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if it >= tb.maxIter {
			return 0, errIterations
		}
		bland := degenerate >= blandAfter
		q := tb.entering(bland)
		if q < 0 {
			return lpOptimal, nil
		}
		r := tb.leaving(q, bland)
		if r < 0 {
			return lpUnbounded, nil
		}
		if tb.rhs(r) <= feasTol {
			degenerate++
		} else {
			degenerate = 0
		}
		tb.pivot(r, q)
	}
}

// simplex solves min cᵀy s.t. Ay = b, y >= 0 in two phases: phase one
// drives the artificial columns to zero, phase two optimises c with the
// artificials barred from the basis. It returns y.
func simplex(ctx context.Context, sf *standardForm) ([]float64, lpStatus, error) {
	m, n := sf.T.Dims()
	n--
	tb := &tableau{
		t:       sf.T,
		m:       m,
		n:       n,
		basis:   append([]int(nil), sf.basis...),
		blocked: make([]bool, n),
		maxIter: 50*(m+n) + 1000,
	}

	if len(sf.art) > 0 {
		c1 := make([]float64, n)
		for _, k := range sf.art {
			c1[k] = 1
		}
		tb.price(c1)
		if _, err := tb.run(ctx); err != nil {
			return nil, 0, err
		}
		maxB := 0.0
		for _, v := range sf.b {
			maxB = math.Max(maxB, v)
		}
		if -tb.d[n] > artTol*(1+maxB) {
			return nil, lpInfeasible, nil
		}
		isArt := make([]bool, n)
		for _, k := range sf.art {
			isArt[k] = true
			tb.blocked[k] = true
		}
		tb.evict(isArt)
	}

	tb.price(sf.c)
	st, err := tb.run(ctx)
	if err != nil {
		return nil, 0, err
	}
	if st == lpUnbounded {
		for _, v := range sf.c {
			if v < 0 {
				return nil, lpUnbounded, nil
			}
		}
		return nil, 0, errFalseRay
	}
	y := make([]float64, n)
	for i, k := range tb.basis {
		y[k] = math.Max(tb.rhs(i), 0)
	}
	return y, lpOptimal, nil
}

// evict pivots basic artificials out on the largest non-artificial entry of
// their row. Rows without one are redundant and keep their artificial at 0.
func (tb *tableau) evict(isArt []bool) {
	for i := 0; i < tb.m; i++ {
		if !isArt[tb.basis[i]] {
			continue
		}
		row := tb.t.RawRowView(i)
		q, best := -1, pivTol
		for j := 0; j < tb.n; j++ {
			if isArt[j] {
				continue
			}
			if a := math.Abs(row[j]); a > best {
				q, best = j, a
			}
		}
		if q >= 0 {
			tb.pivot(i, q)
		}
	}
}
