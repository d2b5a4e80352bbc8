package milp

// VarID indexes Model.Vars.
type VarID int

// Term is a coefficient applied to a variable.
type Term struct {
	Var  VarID
	Coef float64
}

// Expr is an affine expression Σ coef·var + Const. Operations return new
// expressions and never alias their operands.
type Expr struct {
	Terms []Term
	Const float64
}

// V returns the expression 1·v.
func V(v VarID) Expr { return Expr{Terms: []Term{{Var: v, Coef: 1}}} }

// C returns a constant expression.
func C(c float64) Expr { return Expr{Const: c} }

// Sum adds all expressions.
func Sum(es ...Expr) Expr {
	var out Expr
	for _, e := range es {
		out.Terms = append(out.Terms, e.Terms...)
		out.Const += e.Const
	}
	return out
}

// Term appends coef·v.
func (e Expr) Term(v VarID, coef float64) Expr {
	out := e.clone(1)
	out.Terms = append(out.Terms, Term{Var: v, Coef: coef})
	return out
}

// Plus returns e + o.
func (e Expr) Plus(o Expr) Expr { return Sum(e, o) }

// Minus returns e - o.
func (e Expr) Minus(o Expr) Expr { return Sum(e, o.Scale(-1)) }

// Scale returns k·e.
func (e Expr) Scale(k float64) Expr {
	out := Expr{Terms: make([]Term, len(e.Terms)), Const: e.Const * k}
	for i, t := range e.Terms {
		out.Terms[i] = Term{Var: t.Var, Coef: t.Coef * k}
	}
	return out
}

// AddConst returns e + c.
func (e Expr) AddConst(c float64) Expr {
	out := e.clone(0)
	out.Const += c
	return out
}

func (e Expr) clone(extra int) Expr {
	out := Expr{Terms: make([]Term, len(e.Terms), len(e.Terms)+extra), Const: e.Const}
	copy(out.Terms, e.Terms)
	return out
}

// normalized merges duplicate variables, drops zero coefficients and keeps
// first-occurrence order so that identical build sequences give identical rows.
func (e Expr) normalized() Expr {
	idx := make(map[VarID]int, len(e.Terms))
	out := Expr{Const: e.Const}
	for _, t := range e.Terms {
		if i, ok := idx[t.Var]; ok {
			out.Terms[i].Coef += t.Coef
			continue
		}
		idx[t.Var] = len(out.Terms)
		out.Terms = append(out.Terms, t)
	}
	kept := out.Terms[:0]
	for _, t := range out.Terms {
		if t.Coef != 0 {
			kept = append(kept, t)
		}
	}
	out.Terms = kept
	return out
}

// Eval computes e at x.
func (e Expr) Eval(x []float64) float64 {
	v := e.Const
	for _, t := range e.Terms {
		v += t.Coef * x[t.Var]
	}
	return v
}
