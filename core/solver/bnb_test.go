package solver

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/infra/logger"
)

func knapsack() (*milp.Model, []milp.VarID) {
	m := milp.New()
	values := []float64{5, 4, 3}
	weights := []float64{2, 3, 1}
	var (
		ids []milp.VarID
		w   milp.Expr
	)
	for i, v := range values {
		id := m.Mode("item", milp.BinaryMode{}, milp.Tag{Role: milp.RoleMode, Mode: i})
		ids = append(ids, id)
		w = w.Term(id, weights[i])
		m.AddObjective(milp.Energy, milp.V(id).Scale(-v))
	}
	m.AddLE("capacity", w, milp.C(5))
	return m, ids
}

func newBB(cfg Config) *BranchAndBound {
	cfg.SetDefaults()
	return NewBranchAndBound(cfg, logger.NopLogger{})
}

func TestKnapsackOptimal(t *testing.T) {
	m, ids := knapsack()
	sol, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusOptimal, sol.Status)
	assert.InDelta(t, -9, sol.Objective, 1e-6)
	assert.Equal(t, 1.0, sol.Value(ids[0]))
	assert.Equal(t, 1.0, sol.Value(ids[1]))
	assert.Equal(t, 0.0, sol.Value(ids[2]))
	assert.Empty(t, m.Violations(sol.Values, 1e-6))
	assert.Greater(t, sol.Nodes, 1)
}

func TestThreadsGiveSameOptimum(t *testing.T) {
	m, _ := knapsack()
	one, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	four, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 4)
	require.NoError(t, err)
	assert.Equal(t, one.Status, four.Status)
	assert.InDelta(t, one.Objective, four.Objective, 1e-9)
	assert.Equal(t, one.Values, four.Values)
}

func TestGatedContinuous(t *testing.T) {
	m := milp.New()
	open := m.Mode("open", milp.BinaryMode{}, milp.Tag{Role: milp.RoleMode})
	x := m.Continuous("x", 0, 5, milp.Tag{Role: milp.RoleFlow})
	m.AddGE("need", milp.V(x), milp.C(2))
	m.AddLE("gate", milp.V(x), milp.V(open).Scale(5))
	m.AddObjective(milp.Energy, milp.V(open).Scale(10).Plus(milp.V(x)))

	sol, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusOptimal, sol.Status)
	assert.InDelta(t, 12, sol.Objective, 1e-6)
	assert.InDelta(t, 2, sol.Value(x), 1e-6)
}

func TestFreeVariablesAndEqualities(t *testing.T) {
	m := milp.New()
	inf := math.Inf(1)
	x := m.Continuous("x", -inf, inf, milp.Tag{})
	y := m.Continuous("y", -inf, 3, milp.Tag{})
	// x = y - 4, y <= 3, minimise -x
	m.AddEQ("link", milp.V(x), milp.V(y).AddConst(-4))
	m.AddObjective(milp.Energy, milp.V(x).Scale(-1))
	sol, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusOptimal, sol.Status)
	assert.InDelta(t, -1, sol.Value(x), 1e-6)
	assert.InDelta(t, 3, sol.Value(y), 1e-6)
}

func TestInfeasible(t *testing.T) {
	m := milp.New()
	a := m.Mode("a", milp.BinaryMode{}, milp.Tag{Role: milp.RoleMode, Mode: 0})
	b := m.Mode("b", milp.BinaryMode{}, milp.Tag{Role: milp.RoleMode, Mode: 1})
	m.AddEQ("sum", milp.V(a).Plus(milp.V(b)), milp.C(3))
	sol, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusInfeasible, sol.Status)
	assert.False(t, sol.Status.HasSolution())
}

func TestUnboundedRoot(t *testing.T) {
	m := milp.New()
	x := m.Continuous("x", 0, math.Inf(1), milp.Tag{})
	y := m.Continuous("y", 0, math.Inf(1), milp.Tag{})
	m.AddGE("row", milp.V(x).Minus(milp.V(y)), milp.C(1))
	m.AddObjective(milp.Energy, milp.V(x).Scale(-1))
	_, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	assert.True(t, errors.Is(err, ErrUnbounded))
}

func TestRejectsMissingLimit(t *testing.T) {
	m, _ := knapsack()
	_, err := newBB(Config{}).Solve(context.Background(), m, nil, 0, 1)
	assert.True(t, errors.Is(err, ErrNoTimeLimit))
}

func TestNodeLimitKeepsWarmIncumbent(t *testing.T) {
	m, ids := knapsack()
	warm := make([]float64, len(m.Vars))
	warm[ids[0]], warm[ids[2]] = 1, 1

	sol, err := newBB(Config{MaxNodes: 1}).Solve(context.Background(), m, warm, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusFeasible, sol.Status)
	assert.InDelta(t, -8, sol.Objective, 1e-6)

	sol, err = newBB(Config{MaxNodes: 1}).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusTimeoutNoIncumbent, sol.Status)
	assert.Nil(t, sol.Values)
}

func TestWarmStartDoesNotChangeOptimum(t *testing.T) {
	m, ids := knapsack()
	warm := make([]float64, len(m.Vars))
	warm[ids[2]] = 1
	sol, err := newBB(Config{}).Solve(context.Background(), m, warm, time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusOptimal, sol.Status)
	assert.InDelta(t, -9, sol.Objective, 1e-6)
}

func TestCancelledContextWithoutIncumbent(t *testing.T) {
	m, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := newBB(Config{}).Solve(ctx, m, nil, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusTimeoutNoIncumbent, sol.Status)
}

func TestNumericalFailureAtRoot(t *testing.T) {
	orig := lpSimplex
	lpSimplex = func(context.Context, *standardForm) ([]float64, lpStatus, error) {
		return nil, 0, errors.New("ill conditioned")
	}
	defer func() { lpSimplex = orig }()

	m, _ := knapsack()
	_, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	assert.True(t, errors.Is(err, ErrNumerical))
}

func TestLimitInterruptsRunningRelaxation(t *testing.T) {
	orig := lpSimplex
	lpSimplex = func(ctx context.Context, _ *standardForm) ([]float64, lpStatus, error) {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}
	defer func() { lpSimplex = orig }()

	m, _ := knapsack()
	start := time.Now()
	sol, err := newBB(Config{}).Solve(context.Background(), m, nil, 50*time.Millisecond, 2)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusTimeoutNoIncumbent, sol.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRelaxationHonoursCancelledContext(t *testing.T) {
	m, _ := knapsack()
	r := newRelaxation(m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.solve(ctx, []float64{0, 0, 0}, []float64{1, 1, 1})
	assert.ErrorIs(t, err, context.Canceled)
}

// Beale's example cycles under the textbook largest-coefficient rule.
func TestDegenerateProgramTerminates(t *testing.T) {
	m := milp.New()
	inf := math.Inf(1)
	x := make([]milp.VarID, 4)
	for i := range x {
		x[i] = m.Continuous("x", 0, inf, milp.Tag{})
	}
	m.AddLE("r1", milp.V(x[0]).Scale(0.25).Plus(milp.V(x[1]).Scale(-8)).Plus(milp.V(x[2]).Scale(-1)).Plus(milp.V(x[3]).Scale(9)), milp.C(0))
	m.AddLE("r2", milp.V(x[0]).Scale(0.5).Plus(milp.V(x[1]).Scale(-12)).Plus(milp.V(x[2]).Scale(-0.5)).Plus(milp.V(x[3]).Scale(3)), milp.C(0))
	m.AddLE("r3", milp.V(x[2]), milp.C(1))
	m.AddObjective(milp.Energy, milp.V(x[0]).Scale(-0.75).Plus(milp.V(x[1]).Scale(20)).Plus(milp.V(x[2]).Scale(-0.5)).Plus(milp.V(x[3]).Scale(6)))

	sol, err := newBB(Config{}).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, milp.StatusOptimal, sol.Status)
	assert.InDelta(t, -1.25, sol.Objective, 1e-6)
	assert.Empty(t, m.Violations(sol.Values, 1e-6))
}

func TestSolveLogsStructuredSummary(t *testing.T) {
	log := &fieldLog{}
	cfg := Config{}
	cfg.SetDefaults()
	m, _ := knapsack()
	_, err := NewBranchAndBound(cfg, log).Solve(context.Background(), m, nil, time.Minute, 1)
	require.NoError(t, err)
	require.NotEmpty(t, log.fields)
	last := log.fields[len(log.fields)-1]
	assert.Equal(t, "optimal", last["status"])
	assert.Equal(t, len(m.Vars), last["vars"])
}

type fieldLog struct {
	logger.NopLogger
	fields []map[string]any
}

func (l *fieldLog) Debugw(_ string, f map[string]any) { l.fields = append(l.fields, f) }

func TestPresolveSingletonsAndFixedColumns(t *testing.T) {
	m := milp.New()
	x := m.Continuous("x", 0, 10, milp.Tag{})
	y := m.Continuous("y", 0, 10, milp.Tag{})
	z := m.Continuous("z", 0, 10, milp.Tag{})
	m.Fix(z, 2)
	m.AddLE("single", milp.V(x).Scale(2), milp.C(6))
	m.AddEQ("pair", milp.V(y).Plus(milp.V(z)), milp.C(5))
	r := newRelaxation(m)
	lb := []float64{0, 0, 2}
	ub := []float64{10, 10, 2}
	p, st := r.presolve(lb, ub)
	require.Equal(t, lpOptimal, st)
	assert.Empty(t, p.rows)
	assert.True(t, p.fixed[y])
	assert.Equal(t, 3.0, p.val[y])
	// x has no cost and no remaining row, so it rests on its lower bound
	assert.True(t, p.fixed[x])
	assert.Equal(t, 0.0, p.val[x])
}
