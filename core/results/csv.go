package results

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
)

// Row is the long format CSV layout: one value per line.
type Row struct {
	CycleID  string  `csv:"cycle_id"`
	Band     string  `csv:"band"`
	Step     int     `csv:"step"`
	Start    string  `csv:"start"`
	Quantity string  `csv:"quantity"`
	Key      string  `csv:"key"`
	Value    float64 `csv:"value"`
}

// Rows flattens records into sorted long format rows.
func Rows(recs []StepRecord) []Row {
	var out []Row
	for _, r := range recs {
		base := Row{CycleID: r.CycleID, Band: r.Band, Step: r.Step, Start: r.Start.UTC().Format(time.RFC3339)}
		add := func(q, k string, v float64) {
			row := base
			row.Quantity, row.Key, row.Value = q, k, v
			out = append(out, row)
		}
		add("cost", "energy", r.Energy)
		add("cost", "slack", r.Slack)
		add("cost", "switching", r.Switching)
		for _, k := range sortedKeys(r.Temps) {
			add("temperature", k, r.Temps[k])
		}
		for _, k := range sortedKeys(r.Slacks) {
			add("slack", k, r.Slacks[k])
		}
		groups := make([]string, 0, len(r.Modes))
		for g := range r.Modes {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			for i, v := range r.Modes[g] {
				add("mode", fmt.Sprintf("%s.%d", g, i), v)
			}
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CSVSink appends semicolon separated rows to a file. The header is written
// once when the file is empty.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &CSVSink{path: path}, nil
}

func (s *CSVSink) Write(_ context.Context, recs []StepRecord) error {
	rows := Rows(recs)
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return WriteCSV(f, rows, info.Size() == 0)
}

func (s *CSVSink) Close() error { return nil }

// WriteCSV writes rows separated by semicolons.
func WriteCSV(w io.Writer, rows []Row, header bool) error {
	cw := gocsv.NewSafeCSVWriter(csv.NewWriter(w))
	cw.Comma = ';'
	if header {
		return gocsv.MarshalCSV(rows, cw)
	}
	return gocsv.MarshalCSVWithoutHeaders(rows, cw)
}

// ReadCSV parses rows written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	var rows []Row
	if err := gocsv.UnmarshalCSV(cr, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
