package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/thermompc/core/logger"
	"github.com/kilianp07/thermompc/core/milp"
)

// BranchAndBound is the in-process backend. It searches depth first, dives
// towards the warm start first and evaluates sibling nodes concurrently when
// more than one thread is allowed. Relaxations are interrupted at the time
// limit. It suits small horizons; production horizons go to cbc.
type BranchAndBound struct {
	Gap      float64
	MaxNodes int
	log      logger.Logger
}

// NewBranchAndBound returns the in-process backend configured from cfg.
func NewBranchAndBound(cfg Config, log logger.Logger) *BranchAndBound {
	return &BranchAndBound{Gap: cfg.Gap, MaxNodes: cfg.MaxNodes, log: log}
}

type bbNode struct {
	lb, ub []float64
	root   bool
}

type search struct {
	rel       *relaxation
	ints      []int
	warm      []float64
	incumbent []float64
	incObj    float64
	nodes     int
}

// Solve implements Solver.
func (s *BranchAndBound) Solve(ctx context.Context, m *milp.Model, warm []float64, limit time.Duration, threads int) (milp.Solution, error) {
	if limit <= 0 {
		return milp.Solution{}, ErrNoTimeLimit
	}
	if threads < 1 {
		threads = 1
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	sr := &search{rel: newRelaxation(m), incObj: math.Inf(1)}
	lb := make([]float64, len(m.Vars))
	ub := make([]float64, len(m.Vars))
	for i, v := range m.Vars {
		lb[i], ub[i] = v.Lb, v.Ub
		if v.Kind == milp.Binary {
			sr.ints = append(sr.ints, i)
		}
	}
	if warm != nil && len(warm) != len(m.Vars) {
		s.log.Warnf("gonum: ignoring warm start with %d values for %d variables", len(warm), len(m.Vars))
		warm = nil
	}
	sr.warm = warm
	if warm != nil {
		sr.tryWarm(ctx, lb, ub)
	}

	stack := []bbNode{{lb: lb, ub: ub, root: true}}
	stopped := false
	for len(stack) > 0 {
		if ctx.Err() != nil || (s.MaxNodes > 0 && sr.nodes >= s.MaxNodes) {
			stopped = true
			break
		}
		k := threads
		if k > len(stack) {
			k = len(stack)
		}
		batch := make([]bbNode, k)
		for i := range batch {
			batch[i] = stack[len(stack)-1-i]
		}
		stack = stack[:len(stack)-k]

		results := make([]lpResult, k)
		errs := make([]error, k)
		var g errgroup.Group
		g.SetLimit(threads)
		for i := range batch {
			g.Go(func() error {
				results[i], errs[i] = sr.rel.solve(ctx, batch[i].lb, batch[i].ub)
				return nil
			})
		}
		_ = g.Wait()

		for i, nd := range batch {
			sr.nodes++
			res, err := results[i], errs[i]
			if err != nil && ctx.Err() != nil {
				stopped = true
				continue
			}
			if err != nil {
				if nd.root {
					return milp.Solution{}, fmt.Errorf("gonum root relaxation: %w", err)
				}
				s.log.Warnf("gonum: pruning node after %v", err)
				continue
			}
			switch res.status {
			case lpInfeasible:
				continue
			case lpUnbounded:
				if nd.root {
					return milp.Solution{}, ErrUnbounded
				}
				continue
			}
			if res.obj >= sr.incObj-s.tolerance(sr.incObj) {
				continue
			}
			j := sr.branchVar(res.x)
			if j < 0 {
				sr.incumbent, sr.incObj = res.x, res.obj
				continue
			}
			stack = append(stack, sr.children(nd, j, res.x[j])...)
		}
	}

	sol := milp.Solution{Nodes: sr.nodes, Elapsed: time.Since(start)}
	switch {
	case sr.incumbent == nil && stopped:
		sol.Status = milp.StatusTimeoutNoIncumbent
	case sr.incumbent == nil:
		sol.Status = milp.StatusInfeasible
	case stopped:
		sol.Status = milp.StatusFeasible
	default:
		sol.Status = milp.StatusOptimal
	}
	if sr.incumbent != nil {
		for _, j := range sr.ints {
			sr.incumbent[j] = math.Round(sr.incumbent[j])
		}
		sol.Values = sr.incumbent
		sol.Objective = m.Objective().Eval(sr.incumbent)
	}
	s.log.Debugw("gonum solve", map[string]any{
		"status": sol.Status.String(), "nodes": sol.Nodes, "elapsed": sol.Elapsed.String(), "objective": sol.Objective,
		"vars": len(m.Vars), "rows": len(m.Cons), "threads": threads,
	})
	return sol, nil
}

func (s *BranchAndBound) tolerance(inc float64) float64 {
	if math.IsInf(inc, 1) {
		return 0
	}
	return s.Gap * math.Max(1, math.Abs(inc))
}

// tryWarm fixes every binary with a known warm value (NaN marks unknown)
// and keeps the resulting relaxation as the first incumbent when it is
// feasible and integral.
func (sr *search) tryWarm(ctx context.Context, lb, ub []float64) {
	flb := append([]float64(nil), lb...)
	fub := append([]float64(nil), ub...)
	for _, j := range sr.ints {
		if math.IsNaN(sr.warm[j]) {
			continue
		}
		v := math.Min(math.Max(math.Round(sr.warm[j]), lb[j]), ub[j])
		flb[j], fub[j] = v, v
	}
	res, err := sr.rel.solve(ctx, flb, fub)
	if err != nil || res.status != lpOptimal || sr.branchVar(res.x) >= 0 {
		return
	}
	sr.incumbent, sr.incObj = res.x, res.obj
}

// branchVar returns the most fractional binary, or -1 when x is integral.
func (sr *search) branchVar(x []float64) int {
	best, idx := intTol, -1
	for _, j := range sr.ints {
		f := x[j] - math.Floor(x[j])
		d := math.Min(f, 1-f)
		if d > best {
			best, idx = d, j
		}
	}
	return idx
}

// children returns both branches with the preferred one last so that it is
// popped first.
func (sr *search) children(nd bbNode, j int, v float64) []bbNode {
	prefer := math.Round(v)
	if sr.warm != nil && !math.IsNaN(sr.warm[j]) {
		prefer = math.Min(math.Max(math.Round(sr.warm[j]), 0), 1)
	}
	mk := func(val float64) bbNode {
		c := bbNode{lb: append([]float64(nil), nd.lb...), ub: append([]float64(nil), nd.ub...)}
		c.lb[j], c.ub[j] = val, val
		return c
	}
	return []bbNode{mk(1 - prefer), mk(prefer)}
}
