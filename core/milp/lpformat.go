package milp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ColumnName is the name used for variable v in LP files. Model names are
// kept as comments since they may contain characters the format rejects.
func ColumnName(v VarID) string { return "x" + strconv.Itoa(int(v)) }

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func writeTerms(w *bufio.Writer, terms []Term) {
	for i, t := range terms {
		if i > 0 && i%8 == 0 {
			w.WriteString("\n   ")
		}
		sign := "+"
		c := t.Coef
		if c < 0 {
			sign, c = "-", -c
		}
		fmt.Fprintf(w, " %s %s %s", sign, num(c), ColumnName(t.Var))
	}
}

// WriteLP writes the model in CPLEX LP format. The objective constant is
// omitted; Objective().Eval recovers it.
func (m *Model) WriteLP(out io.Writer) error {
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "\\ %d variables, %d constraints\n", len(m.Vars), len(m.Cons))
	for _, v := range m.Vars {
		fmt.Fprintf(w, "\\ %s %s\n", ColumnName(v.ID), v.Name)
	}
	w.WriteString("Minimize\n obj:")
	obj := m.Objective()
	switch {
	case len(obj.Terms) > 0:
		writeTerms(w, obj.Terms)
	case len(m.Vars) > 0:
		fmt.Fprintf(w, " 0 %s", ColumnName(0))
	}
	w.WriteString("\nSubject To\n")
	for i, c := range m.Cons {
		fmt.Fprintf(w, " c%d:", i)
		if len(c.Terms) == 0 && len(m.Vars) > 0 {
			fmt.Fprintf(w, " 0 %s", ColumnName(0))
		}
		writeTerms(w, c.Terms)
		fmt.Fprintf(w, " %s %s\n", c.Sense, num(c.RHS))
	}
	w.WriteString("Bounds\n")
	var bins []VarID
	for _, v := range m.Vars {
		n := ColumnName(v.ID)
		lo, hi := !math.IsInf(v.Lb, -1), !math.IsInf(v.Ub, 1)
		switch {
		case lo && hi && v.Lb == v.Ub:
			fmt.Fprintf(w, " %s = %s\n", n, num(v.Lb))
		case lo && hi:
			fmt.Fprintf(w, " %s <= %s <= %s\n", num(v.Lb), n, num(v.Ub))
		case lo:
			fmt.Fprintf(w, " %s >= %s\n", n, num(v.Lb))
		case hi:
			fmt.Fprintf(w, " -inf <= %s <= %s\n", n, num(v.Ub))
		default:
			fmt.Fprintf(w, " %s free\n", n)
		}
		if v.Kind == Binary {
			bins = append(bins, v.ID)
		}
	}
	if len(bins) > 0 {
		w.WriteString("Binaries\n")
		for _, id := range bins {
			fmt.Fprintf(w, " %s\n", ColumnName(id))
		}
	}
	w.WriteString("End\n")
	return w.Flush()
}
