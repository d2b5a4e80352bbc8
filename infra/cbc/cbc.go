// Package cbc runs the COIN-OR CBC binary as a solver backend. The model is
// written in CPLEX LP format, CBC is started with an explicit time limit and
// its solution file is parsed back into a milp.Solution.
package cbc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/thermompc/core/logger"
	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/core/solver"
)

// execCommand is overridden in tests.
var execCommand = exec.CommandContext

// ErrStatus is returned for a solution file whose status line is not understood.
var ErrStatus = errors.New("cbc: unknown solution status")

// Solver implements solver.Solver with the CBC executable.
type Solver struct {
	Path    string
	Gap     float64
	WorkDir string
	log     logger.Logger
}

// New returns a CBC backend configured from cfg.
func New(cfg solver.Config, log logger.Logger) *Solver {
	return &Solver{Path: cfg.CBCPath, Gap: cfg.Gap, WorkDir: cfg.WorkDir, log: log}
}

// Solve implements solver.Solver.
func (s *Solver) Solve(ctx context.Context, m *milp.Model, warm []float64, limit time.Duration, threads int) (milp.Solution, error) {
	if limit <= 0 {
		return milp.Solution{}, solver.ErrNoTimeLimit
	}
	start := time.Now()
	dir, err := os.MkdirTemp(s.WorkDir, "cbc-")
	if err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")
	if err := writeFile(lpPath, m.WriteLP); err != nil {
		return milp.Solution{}, err
	}
	args := []string{lpPath, "sec", strconv.FormatFloat(limit.Seconds(), 'f', 3, 64)}
	if threads > 1 {
		args = append(args, "threads", strconv.Itoa(threads))
	}
	if s.Gap > 0 {
		args = append(args, "ratio", strconv.FormatFloat(s.Gap, 'g', -1, 64))
	}
	if warm != nil && len(warm) == len(m.Vars) {
		warmPath := filepath.Join(dir, "warm.sol")
		if err := writeFile(warmPath, func(w io.Writer) error { return writeStart(w, m, warm) }); err != nil {
			return milp.Solution{}, err
		}
		args = append(args, "mips", warmPath)
	}
	args = append(args, "solve", "solu", solPath)

	// Leave CBC a grace period to write its incumbent after the limit.
	runCtx, cancel := context.WithTimeout(ctx, limit+10*time.Second)
	defer cancel()
	cmd := execCommand(runCtx, s.Path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		s.log.Warnf("cbc exited with %v: %s", err, tail(out))
		if _, statErr := os.Stat(solPath); statErr != nil {
			if ctx.Err() != nil {
				return milp.Solution{Status: milp.StatusTimeoutNoIncumbent, Elapsed: time.Since(start)}, nil
			}
			return milp.Solution{}, fmt.Errorf("cbc: run: %w", err)
		}
	}

	f, err := os.Open(solPath)
	if err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: %w", err)
	}
	defer f.Close()
	sol, err := ParseSolution(f, len(m.Vars))
	if err != nil {
		return milp.Solution{}, err
	}
	if sol.Status.HasSolution() {
		for _, v := range m.Vars {
			if v.Kind == milp.Binary {
				sol.Values[v.ID] = math.Round(sol.Values[v.ID])
			}
		}
		sol.Objective = m.Objective().Eval(sol.Values)
	}
	sol.Elapsed = time.Since(start)
	s.log.Debugw("cbc solve", map[string]any{
		"status": sol.Status.String(), "elapsed": sol.Elapsed.String(), "objective": sol.Objective, "warm": warm != nil,
	})
	return sol, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cbc: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("cbc: write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// writeStart writes a MIP start in CBC's own solution layout. NaN entries
// are unknown and left out.
func writeStart(w io.Writer, m *milp.Model, warm []float64) error {
	bw := bufio.NewWriter(w)
	obj := m.Objective().Eval(warm)
	if math.IsNaN(obj) {
		obj = 0
	}
	fmt.Fprintf(bw, "Stopped on iterations - objective value %s\n", strconv.FormatFloat(obj, 'g', -1, 64))
	for _, v := range m.Vars {
		if math.IsNaN(warm[v.ID]) {
			continue
		}
		fmt.Fprintf(bw, "%d %s %s\n", v.ID, milp.ColumnName(v.ID), strconv.FormatFloat(warm[v.ID], 'g', -1, 64))
	}
	return bw.Flush()
}

func status(line string) (milp.Status, error) {
	l := strings.ToLower(line)
	switch {
	case strings.HasPrefix(l, "optimal"):
		return milp.StatusOptimal, nil
	case strings.Contains(l, "no integer solution"):
		return milp.StatusTimeoutNoIncumbent, nil
	case strings.Contains(l, "infeasible"):
		return milp.StatusInfeasible, nil
	case strings.Contains(l, "unbounded"):
		return 0, solver.ErrUnbounded
	case strings.HasPrefix(l, "stopped"):
		return milp.StatusFeasible, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrStatus, line)
	}
}

// ParseSolution reads a CBC solution file for a model with n variables.
// Variables CBC does not print are zero.
func ParseSolution(r io.Reader, n int) (milp.Solution, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return milp.Solution{}, fmt.Errorf("cbc: empty solution file: %w", milp.ErrExtraction)
	}
	st, err := status(sc.Text())
	if err != nil {
		return milp.Solution{}, err
	}
	sol := milp.Solution{Status: st}
	if !st.HasSolution() {
		return sol, nil
	}
	sol.Values = make([]float64, n)
	for sc.Scan() {
		fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(sc.Text()), "**"))
		if len(fields) < 3 {
			continue
		}
		name := fields[1]
		if !strings.HasPrefix(name, "x") {
			continue
		}
		idx, err := strconv.Atoi(name[1:])
		if err != nil || idx < 0 || idx >= n {
			return milp.Solution{}, fmt.Errorf("cbc: column %q: %w", name, milp.ErrExtraction)
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return milp.Solution{}, fmt.Errorf("cbc: value of %s: %w", name, milp.ErrExtraction)
		}
		sol.Values[idx] = v
	}
	if err := sc.Err(); err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: read solution: %w", err)
	}
	return sol, nil
}

func tail(b []byte) string {
	const keep = 512
	if len(b) > keep {
		b = b[len(b)-keep:]
	}
	return strings.TrimSpace(string(b))
}
