package milp

import (
	"fmt"
	"math"

	"github.com/kilianp07/thermompc/core/timegrid"
)

// Kind is the integrality of a variable.
type Kind int

const (
	Continuous Kind = iota
	Binary
)

// Sense of a constraint row.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "="
	}
}

// Role classifies what a variable stands for in the plant model.
type Role int

const (
	RoleAux Role = iota
	RoleTemperature
	RoleSlack
	RoleMode
	RoleFlow
	RoleToggle
	RoleCellProduct
	RoleCellSelector
	RoleCellPart
	RoleCellFraction
)

// Tag locates a variable in the plant model. Fields that do not apply are left
// at their zero value; Step is a band-local point or interval index.
type Tag struct {
	Band  timegrid.BandKind
	Role  Role
	Node  string
	Block int
	Group string
	Mode  int
	Path  string
	Part  int
	Step  int
}

// Var is a decision variable with bounds. Infinite bounds are allowed.
type Var struct {
	ID   VarID
	Name string
	Kind Kind
	Lb   float64
	Ub   float64
	Tag  Tag
}

// Constraint is Σ terms (sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Component names a part of the objective.
type Component int

const (
	Energy Component = iota
	SlackPenalty
	Switching
	numComponents
)

func (c Component) String() string {
	switch c {
	case Energy:
		return "energy"
	case SlackPenalty:
		return "slack"
	case Switching:
		return "switching"
	default:
		return fmt.Sprintf("component(%d)", int(c))
	}
}

// Components lists the objective components in order.
func Components() []Component { return []Component{Energy, SlackPenalty, Switching} }

// ModeVariable selects how a mode decision is declared.
type ModeVariable interface{ bounds() (Kind, float64, float64) }

// BinaryMode declares a strict {0,1} decision.
type BinaryMode struct{}

// Relaxed declares a continuous decision within [Lo, Hi].
type Relaxed struct{ Lo, Hi float64 }

func (BinaryMode) bounds() (Kind, float64, float64) { return Binary, 0, 1 }
func (r Relaxed) bounds() (Kind, float64, float64)  { return Continuous, r.Lo, r.Hi }

// Model is an append-only mixed-integer linear program (minimisation).
type Model struct {
	Vars []Var
	Cons []Constraint

	obj   [numComponents]Expr
	byTag map[Tag]VarID
}

// New returns an empty model.
func New() *Model { return &Model{byTag: make(map[Tag]VarID)} }

// NewVar appends a variable and returns its id.
func (m *Model) NewVar(name string, kind Kind, lb, ub float64, tag Tag) VarID {
	id := VarID(len(m.Vars))
	if kind == Binary {
		lb, ub = math.Max(lb, 0), math.Min(ub, 1)
	}
	m.Vars = append(m.Vars, Var{ID: id, Name: name, Kind: kind, Lb: lb, Ub: ub, Tag: tag})
	if tag.Role != RoleAux {
		if _, ok := m.byTag[tag]; !ok {
			m.byTag[tag] = id
		}
	}
	return id
}

// Continuous appends a continuous variable.
func (m *Model) Continuous(name string, lb, ub float64, tag Tag) VarID {
	return m.NewVar(name, Continuous, lb, ub, tag)
}

// Mode appends a mode decision declared according to mv.
func (m *Model) Mode(name string, mv ModeVariable, tag Tag) VarID {
	k, lb, ub := mv.bounds()
	return m.NewVar(name, k, lb, ub, tag)
}

// Find returns the variable carrying tag.
func (m *Model) Find(tag Tag) (VarID, bool) {
	id, ok := m.byTag[tag]
	return id, ok
}

// Fix narrows the bounds of v to a single value.
func (m *Model) Fix(v VarID, val float64) {
	m.Vars[v].Lb, m.Vars[v].Ub = val, val
}

func (m *Model) add(name string, lhs Expr, s Sense, rhs Expr) {
	e := lhs.Minus(rhs).normalized()
	m.Cons = append(m.Cons, Constraint{Name: name, Terms: e.Terms, Sense: s, RHS: -e.Const})
}

// AddLE appends lhs <= rhs.
func (m *Model) AddLE(name string, lhs, rhs Expr) { m.add(name, lhs, LE, rhs) }

// AddGE appends lhs >= rhs.
func (m *Model) AddGE(name string, lhs, rhs Expr) { m.add(name, lhs, GE, rhs) }

// AddEQ appends lhs == rhs.
func (m *Model) AddEQ(name string, lhs, rhs Expr) { m.add(name, lhs, EQ, rhs) }

// AddObjective adds e to component c.
func (m *Model) AddObjective(c Component, e Expr) {
	m.obj[c] = m.obj[c].Plus(e)
}

// ObjectiveOf returns component c, with duplicate terms merged.
func (m *Model) ObjectiveOf(c Component) Expr { return m.obj[c].normalized() }

// Objective returns the full objective.
func (m *Model) Objective() Expr {
	return Sum(m.obj[Energy], m.obj[SlackPenalty], m.obj[Switching]).normalized()
}

// Cost returns the dense objective vector and its constant.
func (m *Model) Cost() ([]float64, float64) {
	c := make([]float64, len(m.Vars))
	obj := m.Objective()
	for _, t := range obj.Terms {
		c[t.Var] += t.Coef
	}
	return c, obj.Const
}

// NumBinaries counts the integer variables.
func (m *Model) NumBinaries() int {
	n := 0
	for _, v := range m.Vars {
		if v.Kind == Binary {
			n++
		}
	}
	return n
}
