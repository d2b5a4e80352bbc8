// Package csvfeed reads forecasts from a CSV file that an external
// forecaster rewrites between cycles.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/forecast"
	"github.com/kilianp07/thermompc/core/timegrid"
)

// ErrEmpty is returned for a file without rows.
var ErrEmpty = errors.New("csvfeed: no forecast rows")

// Row is one line of the file.
type Row struct {
	Time    string  `csv:"time"`
	Heat    float64 `csv:"heat_kw"`
	Cool    float64 `csv:"cool_kw"`
	Dry     float64 `csv:"dry_kw"`
	Ambient float64 `csv:"ambient"`
	Price   float64 `csv:"price"`
}

// Config locates the file.
type Config struct {
	Path  string `json:"path"`
	Comma string `json:"comma"`
	// FrostLimit flags steps at or below this ambient temperature.
	FrostLimit float64 `json:"frost_limit"`
}

// Feed implements forecast.Feed.
type Feed struct {
	cfg Config
	Now func() time.Time
}

// New returns a feed reading cfg.Path.
func New(cfg Config) (*Feed, error) {
	if cfg.Path == "" {
		return nil, errors.New("csvfeed: path is required")
	}
	if cfg.Comma == "" {
		cfg.Comma = ","
	}
	return &Feed{cfg: cfg, Now: time.Now}, nil
}

type sample struct {
	at  time.Time
	row *Row
}

func (f *Feed) load() ([]sample, error) {
	file, err := os.Open(f.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("csvfeed: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.Comma = []rune(f.cfg.Comma)[0]
	r.TrimLeadingSpace = true
	var rows []*Row
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("csvfeed: %s: %w", f.cfg.Path, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	out := make([]sample, 0, len(rows))
	for i, row := range rows {
		at, err := time.Parse(time.RFC3339, row.Time)
		if err != nil {
			return nil, fmt.Errorf("csvfeed: row %d: %w", i+1, err)
		}
		out = append(out, sample{at: at, row: row})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out, nil
}

// Fetch implements forecast.Feed. A step takes the mean of the rows inside
// it; a step without rows holds the last row before it, or the first row
// when it precedes the file.
func (f *Feed) Fetch(ctx context.Context, grid *timegrid.Grid) (forecast.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return forecast.Forecast{}, err
	}
	samples, err := f.load()
	if err != nil {
		return forecast.Forecast{}, err
	}
	n := grid.Len()
	out := forecast.Forecast{
		Heat: make([]float64, n), Cool: make([]float64, n), Dry: make([]float64, n),
		Ambient: make([]float64, n), Price: make([]float64, n),
	}
	start := f.Now().Truncate(time.Minute)
	for i, st := range grid.Steps() {
		end := start.Add(st.Duration)
		lo := sort.Search(len(samples), func(k int) bool { return !samples[k].at.Before(start) })
		hi := sort.Search(len(samples), func(k int) bool { return !samples[k].at.Before(end) })
		var acc Row
		cnt := 0
		if hi > lo {
			for _, s := range samples[lo:hi] {
				acc.Heat += s.row.Heat
				acc.Cool += s.row.Cool
				acc.Dry += s.row.Dry
				acc.Ambient += s.row.Ambient
				acc.Price += s.row.Price
			}
			cnt = hi - lo
		} else {
			k := lo - 1
			if k < 0 {
				k = 0
			}
			acc = *samples[k].row
			cnt = 1
		}
		c := float64(cnt)
		out.Heat[i] = acc.Heat / c
		out.Cool[i] = acc.Cool / c
		out.Dry[i] = acc.Dry / c
		out.Ambient[i] = acc.Ambient / c
		out.Price[i] = acc.Price / c
		start = end
	}
	out.Frost = forecast.FrostSteps(out.Ambient, f.cfg.FrostLimit)
	out.Freeze, out.FreezeCoarse = forecast.FreezeFlags(grid, out.Ambient)
	return out, nil
}

func init() {
	_ = forecast.Register("csv", func(conf map[string]any) (forecast.Feed, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(c)
	})
}
