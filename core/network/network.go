// Package network turns a plant topology and one band of the time grid into
// mixed-integer rows: temperature trajectories, mode decisions, gated flows,
// energy balances and the band's share of the objective.
package network

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/thermompc/core/encoder"
	"github.com/kilianp07/thermompc/core/forecast"
	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/core/timegrid"
)

// ErrInputs is returned when the forecast slices do not cover the band.
var ErrInputs = errors.New("band inputs do not cover the band")

// Inputs are the band-local forecast values, one per step.
type Inputs struct {
	Heat    []float64
	Cool    []float64
	Dry     []float64
	Ambient []float64
	Price   []float64
	// Frost may be nil; a missing step has no frost risk.
	Frost []bool
}

// FrostAt reports whether step t carries frost risk.
func (in Inputs) FrostAt(t int) bool { return t < len(in.Frost) && in.Frost[t] }

// InputsFor returns the slice of fc covering band b.
func InputsFor(fc forecast.Forecast, b timegrid.Band) Inputs {
	off := b.Offset()
	if off < 0 {
		return Inputs{}
	}
	in := Inputs{
		Heat: fc.Heat[off : off+b.Len()], Cool: fc.Cool[off : off+b.Len()], Dry: fc.Dry[off : off+b.Len()],
		Ambient: fc.Ambient[off : off+b.Len()], Price: fc.Price[off : off+b.Len()],
	}
	if off < len(fc.Frost) {
		in.Frost = fc.Frost[off:min(off+b.Len(), len(fc.Frost))]
	}
	return in
}

// Sub returns the inputs of local steps [from, to).
func (in Inputs) Sub(from, to int) Inputs {
	out := Inputs{
		Heat: in.Heat[from:to], Cool: in.Cool[from:to], Dry: in.Dry[from:to],
		Ambient: in.Ambient[from:to], Price: in.Price[from:to],
	}
	if from < len(in.Frost) {
		out.Frost = in.Frost[from:min(to, len(in.Frost))]
	}
	return out
}

func (in Inputs) covers(n int) bool {
	return len(in.Heat) >= n && len(in.Cool) >= n && len(in.Dry) >= n &&
		len(in.Ambient) >= n && len(in.Price) >= n
}

// Options tune how a band is encoded.
type Options struct {
	// UseBinary declares strict binary modes gated with Big-M. When false the
	// modes are relaxed to [0,1].
	UseBinary bool
	// McCormickParts is the partition count of mid-band flow products.
	McCormickParts int
	// SlackWeight is the comfort penalty per K·h.
	SlackWeight float64
}

// DefaultOptions returns the encoding used for each band kind.
func DefaultOptions(kind timegrid.BandKind, w model.SlackWeights) Options {
	switch kind {
	case timegrid.Mid:
		return Options{McCormickParts: 2, SlackWeight: w.Mid}
	case timegrid.Coarse:
		return Options{SlackWeight: w.Coarse}
	default:
		return Options{UseBinary: true, SlackWeight: w.Fine}
	}
}

// Vars holds the handles declared for one band.
type Vars struct {
	// Temp is indexed node → block → point (0..n).
	Temp map[string][][]milp.VarID
	// Slack is indexed node → step; Slack[id][t] relaxes point t+1.
	Slack map[string][]milp.VarID
	// Mode is indexed group → mode → step.
	Mode map[string][][]milp.VarID
	// Flow holds the heat-carrying product per path → mode → step. In the
	// fine band it is the gated temperature difference, in the mid band the
	// McCormick product. The coarse band has none.
	Flow map[string]map[int][]milp.VarID
	// Toggle is indexed group → step. Step 0 is only present once the start
	// modes are linked.
	Toggle map[string][]milp.VarID
	// EndToggle compares the last step against external end hints.
	EndToggle map[string]milp.VarID
	Cells     map[string]map[int][]encoder.Cell
}

// Band is the model of one resolution band.
type Band struct {
	Kind  timegrid.BandKind
	Grid  timegrid.Band
	Plant *model.Plant
	In    Inputs
	Opt   Options
	Vars  Vars

	m          *milp.Model
	stepEnergy []milp.Expr
	stepSlack  []milp.Expr
	stepSwitch []milp.Expr
}

// New prepares a band model. Nothing is declared until Build.
func New(grid timegrid.Band, plant *model.Plant, in Inputs, opt Options) *Band {
	return &Band{Kind: grid.Kind, Grid: grid, Plant: plant, In: in, Opt: opt}
}

// Steps returns the number of decision intervals.
func (b *Band) Steps() int { return b.Grid.Len() }

// Lumped reports whether storage blocks are aggregated into one.
func (b *Band) Lumped() bool { return b.Kind == timegrid.Coarse }

// Switching reports whether mode changes are tracked.
func (b *Band) Switching() bool { return b.Kind != timegrid.Coarse }

func (b *Band) blocks(n model.Node) int {
	if b.Lumped() {
		return 1
	}
	return n.BlockCount()
}

func (b *Band) modeVariable() milp.ModeVariable {
	if b.Opt.UseBinary {
		return milp.BinaryMode{}
	}
	return milp.Relaxed{Lo: 0, Hi: 1}
}

func (b *Band) name(format string, args ...any) string {
	return b.Kind.String() + "." + fmt.Sprintf(format, args...)
}

// Build declares variables, balances, mode constraints and the objective.
func (b *Band) Build(m *milp.Model) error {
	if b.Steps() == 0 {
		return fmt.Errorf("%s band: no steps", b.Kind)
	}
	if !b.In.covers(b.Steps()) {
		return fmt.Errorf("%s band: %w", b.Kind, ErrInputs)
	}
	b.m = m
	b.DeclareVariables()
	b.DeclareModeConstraints()
	b.DeclareBalanceEquations()
	b.DeclareObjective()
	return nil
}

// DeclareVariables creates temperatures, slacks and mode decisions.
func (b *Band) DeclareVariables() {
	m, n := b.m, b.Steps()
	b.Vars = Vars{
		Temp:      map[string][][]milp.VarID{},
		Slack:     map[string][]milp.VarID{},
		Mode:      map[string][][]milp.VarID{},
		Flow:      map[string]map[int][]milp.VarID{},
		Toggle:    map[string][]milp.VarID{},
		EndToggle: map[string]milp.VarID{},
		Cells:     map[string]map[int][]encoder.Cell{},
	}
	for _, node := range b.Plant.Nodes {
		lo, hi := math.Inf(-1), math.Inf(1)
		if node.HardMin != nil {
			lo = *node.HardMin
		}
		if node.HardMax != nil {
			hi = *node.HardMax
		}
		blocks := make([][]milp.VarID, b.blocks(node))
		for k := range blocks {
			blocks[k] = make([]milp.VarID, n+1)
			for p := 0; p <= n; p++ {
				tag := milp.Tag{Band: b.Kind, Role: milp.RoleTemperature, Node: node.ID, Block: k, Step: p}
				l, u := lo, hi
				if p == 0 {
					l, u = math.Inf(-1), math.Inf(1)
				}
				blocks[k][p] = m.Continuous(b.name("T.%s.%d.%d", node.ID, k, p), l, u, tag)
			}
		}
		b.Vars.Temp[node.ID] = blocks
		slack := make([]milp.VarID, n)
		for t := range slack {
			tag := milp.Tag{Band: b.Kind, Role: milp.RoleSlack, Node: node.ID, Step: t + 1}
			slack[t] = m.Continuous(b.name("S.%s.%d", node.ID, t+1), 0, math.Inf(1), tag)
		}
		b.Vars.Slack[node.ID] = slack
	}
	mv := b.modeVariable()
	for _, g := range b.Plant.Groups {
		modes := make([][]milp.VarID, len(g.Modes))
		for i, mode := range g.Modes {
			modes[i] = make([]milp.VarID, n)
			for t := 0; t < n; t++ {
				tag := milp.Tag{Band: b.Kind, Role: milp.RoleMode, Group: g.ID, Mode: i, Step: t}
				modes[i][t] = m.Mode(b.name("M.%s.%s.%d", g.ID, mode.Name, t), mv, tag)
			}
		}
		b.Vars.Mode[g.ID] = modes
		if b.Switching() {
			b.Vars.Toggle[g.ID] = make([]milp.VarID, n)
			for t := range b.Vars.Toggle[g.ID] {
				b.Vars.Toggle[g.ID][t] = -1
			}
		}
	}
}

// ModeExprs returns the mode decisions of group g at step t.
func (b *Band) ModeExprs(g string, t int) []milp.Expr {
	modes := b.Vars.Mode[g]
	out := make([]milp.Expr, len(modes))
	for i := range modes {
		out[i] = milp.V(modes[i][t])
	}
	return out
}

// DeclareModeConstraints emits the SOS1 rows, control period equalities and
// in-band toggles.
func (b *Band) DeclareModeConstraints() {
	m, n := b.m, b.Steps()
	periods := b.Grid.ControlPeriods()
	for _, g := range b.Plant.Groups {
		modes := b.Vars.Mode[g.ID]
		for t := 0; t < n; t++ {
			sel := make([]milp.VarID, len(modes))
			for i := range modes {
				sel[i] = modes[i][t]
			}
			encoder.SOS1(m, b.name("sos.%s.%d", g.ID, t), sel)
		}
		for pi, steps := range periods {
			if len(steps) < 2 {
				continue
			}
			for i := range modes {
				es := make([]milp.Expr, len(steps))
				for j, t := range steps {
					es[j] = milp.V(modes[i][t])
				}
				encoder.Equal(m, b.name("cp.%s.%d.%d", g.ID, i, pi), es)
			}
		}
		if !b.Switching() {
			continue
		}
		for t := 1; t < n; t++ {
			tag := milp.Tag{Band: b.Kind, Role: milp.RoleToggle, Group: g.ID, Step: t}
			b.Vars.Toggle[g.ID][t] = encoder.Toggle(m, b.name("tg.%s.%d", g.ID, t),
				b.ModeExprs(g.ID, t-1), b.ModeExprs(g.ID, t), tag)
		}
	}
	b.closeFrostPaths()
}

// closeFrostPaths pins the flow modes of frost guarded paths to 0 on frost
// steps. The coarse band follows FreezeCoarse instead.
func (b *Band) closeFrostPaths() {
	if b.Kind == timegrid.Coarse {
		return
	}
	for _, pa := range b.Plant.Paths {
		if !pa.FrostGuard {
			continue
		}
		idx, _ := b.Plant.FlowModes(pa)
		modes := b.Vars.Mode[pa.Group]
		for t := 0; t < b.Steps(); t++ {
			if !b.In.FrostAt(t) {
				continue
			}
			for _, i := range idx {
				b.m.Fix(modes[i][t], 0)
			}
		}
	}
}

// LinkStartModes charges a switch at step 0 against the modes in prev.
func (b *Band) LinkStartModes(g string, prev []milp.Expr) {
	if !b.Switching() {
		return
	}
	tag := milp.Tag{Band: b.Kind, Role: milp.RoleToggle, Group: g, Step: 0}
	b.Vars.Toggle[g][0] = encoder.Toggle(b.m, b.name("tg.%s.0", g), prev, b.ModeExprs(g, 0), tag)
	b.chargeToggle(g, 0)
}

// LinkEndModes charges a switch between the last step and next.
func (b *Band) LinkEndModes(g string, next []milp.Expr) {
	if !b.Switching() {
		return
	}
	last := b.Steps() - 1
	tag := milp.Tag{Band: b.Kind, Role: milp.RoleToggle, Group: g, Step: b.Steps()}
	t := encoder.Toggle(b.m, b.name("tg.%s.end", g), b.ModeExprs(g, last), next, tag)
	b.Vars.EndToggle[g] = t
	grp, _ := b.Plant.Group(g)
	e := milp.V(t).Scale(grp.SwitchCost)
	b.stepSwitch[last] = b.stepSwitch[last].Plus(e)
	b.m.AddObjective(milp.Switching, e)
}

func (b *Band) chargeToggle(g string, t int) {
	grp, _ := b.Plant.Group(g)
	e := milp.V(b.Vars.Toggle[g][t]).Scale(grp.SwitchCost)
	b.stepSwitch[t] = b.stepSwitch[t].Plus(e)
	b.m.AddObjective(milp.Switching, e)
}

// FixModes pins the decisions of group g at step t to a mode index.
func (b *Band) FixModes(g string, t, mode int) {
	for i, vs := range b.Vars.Mode[g] {
		v := 0.0
		if i == mode {
			v = 1
		}
		b.m.Fix(vs[t], v)
	}
}

// sideTemp returns the temperature feeding a path at point p: block 0 of a
// node or the ambient forecast.
func (b *Band) sideTemp(id string, p int) milp.Expr {
	if id == model.Ambient {
		i := p
		if i >= b.Steps() {
			i = b.Steps() - 1
		}
		return milp.C(b.In.Ambient[i])
	}
	return milp.V(b.Vars.Temp[id][0][p])
}

// flowHeat returns the heat in kW moved along path pa during step t.
func (b *Band) flowHeat(pa model.Path, t int) milp.Expr {
	idx, flows := b.Plant.FlowModes(pa)
	modes := b.Vars.Mode[pa.Group]
	var q milp.Expr
	for j, i := range idx {
		k := pa.SpecificHeat * flows[j]
		switch b.Kind {
		case timegrid.Coarse:
			q = q.Term(modes[i][t], k*pa.NominalDelta)
		default:
			q = q.Term(b.Vars.Flow[pa.ID][i][t], k)
		}
	}
	return q
}

func (b *Band) declareFlows() {
	if b.Kind == timegrid.Coarse {
		return
	}
	m, n := b.m, b.Steps()
	for _, pa := range b.Plant.Paths {
		idx, _ := b.Plant.FlowModes(pa)
		modes := b.Vars.Mode[pa.Group]
		b.Vars.Flow[pa.ID] = map[int][]milp.VarID{}
		if b.Kind == timegrid.Mid {
			b.Vars.Cells[pa.ID] = map[int][]encoder.Cell{}
		}
		for _, i := range idx {
			vs := make([]milp.VarID, n)
			for t := 0; t < n; t++ {
				delta := b.sideTemp(pa.From, t).Minus(b.sideTemp(pa.To, t))
				tag := milp.Tag{Band: b.Kind, Role: milp.RoleFlow, Path: pa.ID, Mode: i, Step: t}
				name := b.name("F.%s.%d.%d", pa.ID, i, t)
				if b.Opt.UseBinary {
					vs[t] = encoder.BigM(m, name, modes[i][t], delta, pa.DeltaMin, pa.DeltaMax, tag)
					continue
				}
				cell := encoder.McCormick(m, encoder.CellSpec{
					Name: name, P: modes[i][t], PMin: 0, PMax: 1,
					T: delta, TLo: pa.McCormickMin, THi: pa.McCormickMax,
					N: b.Opt.McCormickParts, Tag: tag,
				})
				vs[t] = cell.W
				b.Vars.Cells[pa.ID][i] = append(b.Vars.Cells[pa.ID][i], cell)
			}
			b.Vars.Flow[pa.ID][i] = vs
		}
	}
}

// demand returns the external heat drawn from (negative) or pushed into
// (positive) a node during step t.
func (b *Band) demand(node model.Node, t int) float64 {
	switch node.Demand {
	case model.DemandHeat:
		return -b.In.Heat[t]
	case model.DemandCool:
		return b.In.Cool[t]
	case model.DemandDry:
		return b.In.Dry[t]
	default:
		return 0
	}
}

// DeclareBalanceEquations emits one energy balance per node block and step
// and the soft comfort rows.
func (b *Band) DeclareBalanceEquations() {
	b.declareFlows()
	m, n := b.m, b.Steps()
	for _, node := range b.Plant.Nodes {
		temps := b.Vars.Temp[node.ID]
		nb := len(temps)
		capacity := node.Mass * node.SpecificHeat / float64(nb)
		alpha := node.Loss / float64(nb)
		for t := 0; t < n; t++ {
			dt := b.Grid.Seconds(t)
			ref := node.RefTemp
			if node.RefAmbient {
				ref = b.In.Ambient[t]
			}
			for k := 0; k < nb; k++ {
				// q is the net heat rate in kW excluding the implicit loss.
				q := milp.C(0)
				if k == 0 {
					q = q.AddConst(b.demand(node, t))
					for _, pa := range b.Plant.Paths {
						if pa.To == node.ID {
							q = q.Plus(b.flowHeat(pa, t))
						}
						if pa.From == node.ID {
							q = q.Minus(b.flowHeat(pa, t))
						}
					}
					for _, g := range b.Plant.Groups {
						for i, mode := range g.Modes {
							if h := mode.Heat[node.ID]; h != 0 {
								q = q.Term(b.Vars.Mode[g.ID][i][t], h)
							}
						}
					}
				}
				if nb > 1 {
					for _, j := range []int{k - 1, k + 1} {
						if j < 0 || j >= nb {
							continue
						}
						q = q.Term(temps[j][t], node.Conductance).Term(temps[k][t], -node.Conductance)
					}
				}
				// T1 = T0 + dt/C·(q + α·(ref − T1))
				lhs := milp.V(temps[k][t+1]).Scale(1 + dt*alpha/capacity)
				rhs := milp.V(temps[k][t]).Plus(q.AddConst(alpha * ref).Scale(dt / capacity))
				m.AddEQ(b.name("bal.%s.%d.%d", node.ID, k, t), lhs, rhs)
			}
			s := milp.V(b.Vars.Slack[node.ID][t])
			for k := 0; k < nb; k++ {
				T := milp.V(temps[k][t+1])
				m.AddGE(b.name("min.%s.%d.%d", node.ID, k, t+1), T.Plus(s), milp.C(node.Min))
				m.AddLE(b.name("max.%s.%d.%d", node.ID, k, t+1), T.Minus(s), milp.C(node.Max))
			}
		}
	}
}

// DeclareObjective adds energy, slack and in-band switching costs.
func (b *Band) DeclareObjective() {
	n := b.Steps()
	b.stepEnergy = make([]milp.Expr, n)
	b.stepSlack = make([]milp.Expr, n)
	b.stepSwitch = make([]milp.Expr, n)
	for t := 0; t < n; t++ {
		h := b.Grid.Seconds(t) / 3600
		var energy milp.Expr
		for _, g := range b.Plant.Groups {
			for i, mode := range g.Modes {
				if mode.Power != 0 {
					energy = energy.Term(b.Vars.Mode[g.ID][i][t], h*b.In.Price[t]*mode.Power)
				}
			}
		}
		var slack milp.Expr
		for _, node := range b.Plant.Nodes {
			slack = slack.Term(b.Vars.Slack[node.ID][t], h*b.Opt.SlackWeight)
		}
		b.stepEnergy[t], b.stepSlack[t] = energy, slack
		b.m.AddObjective(milp.Energy, energy)
		b.m.AddObjective(milp.SlackPenalty, slack)
	}
	if !b.Switching() {
		return
	}
	for _, g := range b.Plant.Groups {
		for t := 1; t < n; t++ {
			b.chargeToggle(g.ID, t)
		}
	}
}

// FixStart pins point 0 of every block. Nodes missing from temps take their
// configured default; a single value is spread over all blocks.
func (b *Band) FixStart(temps map[string][]float64) {
	for _, node := range b.Plant.Nodes {
		vals := temps[node.ID]
		for k, pts := range b.Vars.Temp[node.ID] {
			v := node.Default
			switch {
			case len(vals) == 0:
			case b.Lumped():
				v = mean(vals)
			case k < len(vals):
				v = vals[k]
			default:
				v = vals[len(vals)-1]
			}
			b.m.Fix(pts[0], v)
		}
	}
}

// PointExpr returns the mean temperature of a node over its blocks at point p.
func (b *Band) PointExpr(node string, p int) milp.Expr {
	blocks := b.Vars.Temp[node]
	var e milp.Expr
	for _, pts := range blocks {
		e = e.Term(pts[p], 1/float64(len(blocks)))
	}
	return e
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// OneHot returns constant mode expressions selecting mode idx out of n.
func OneHot(n, idx int) []milp.Expr {
	out := make([]milp.Expr, n)
	for i := range out {
		if i == idx {
			out[i] = milp.C(1)
		} else {
			out[i] = milp.C(0)
		}
	}
	return out
}
