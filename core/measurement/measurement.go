// Package measurement reads the current plant state: a temperature per node
// (optionally per storage block) and the active mode of every group.
package measurement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/thermompc/core/model"
)

// ErrStale reports that at least one reading was missing and replaced by its
// default.
var ErrStale = errors.New("stale measurement")

// StaleError lists the ids that Complete substituted. It matches ErrStale.
type StaleError struct {
	IDs []string
}

func (e *StaleError) Error() string { return fmt.Sprintf("%v: %s", ErrStale, strings.Join(e.IDs, ",")) }

// Is reports ErrStale.
func (e *StaleError) Is(target error) bool { return target == ErrStale }

// Snapshot is one reading of the plant.
type Snapshot struct {
	Time time.Time `json:"time"`
	// Temps maps node ids to block temperatures; a single value applies to
	// every block.
	Temps map[string][]float64 `json:"temps"`
	// Modes maps group ids to the index of the active mode.
	Modes map[string]int `json:"modes"`
}

// Feed reads the plant.
type Feed interface {
	Read(ctx context.Context) (Snapshot, error)
}

// DefaultTemps are the documented substitutes for missing node readings.
var DefaultTemps = map[string]float64{
	"hp_ht": 45,
	"hp_lt": 10,
	"hs":    35,
	"cs":    14,
	"rlts":  12,
	"is":    0.5,
	"gs":    10,
	"hxa":   20,
}

// GenericDefault is used for nodes without a documented or configured default.
const GenericDefault = 20.0

// DefaultTemp returns the substitute for node n: its configured default when
// set, else the documented value for its id, else GenericDefault.
func DefaultTemp(n model.Node) float64 {
	if n.Default != 0 {
		return n.Default
	}
	if v, ok := DefaultTemps[n.ID]; ok {
		return v
	}
	return GenericDefault
}

// Complete fills every node and group missing from s with its default. The
// returned error is a *StaleError listing the substituted ids; the snapshot
// is usable either way.
func Complete(plant *model.Plant, s Snapshot) (Snapshot, error) {
	out := Snapshot{Time: s.Time, Temps: map[string][]float64{}, Modes: map[string]int{}}
	var missing []string
	for _, n := range plant.Nodes {
		if v, ok := s.Temps[n.ID]; ok && len(v) > 0 {
			out.Temps[n.ID] = append([]float64(nil), v...)
			continue
		}
		out.Temps[n.ID] = []float64{DefaultTemp(n)}
		missing = append(missing, n.ID)
	}
	for _, g := range plant.Groups {
		if v, ok := s.Modes[g.ID]; ok && v >= 0 && v < len(g.Modes) {
			out.Modes[g.ID] = v
			continue
		}
		out.Modes[g.ID] = g.Default
		missing = append(missing, g.ID)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return out, &StaleError{IDs: missing}
	}
	return out, nil
}

// Static returns the same snapshot on every read.
type Static struct {
	Snapshot Snapshot
	Now      func() time.Time
}

// Read implements Feed.
func (s Static) Read(context.Context) (Snapshot, error) {
	out := Snapshot{Time: s.Snapshot.Time, Temps: map[string][]float64{}, Modes: map[string]int{}}
	for k, v := range s.Snapshot.Temps {
		out.Temps[k] = append([]float64(nil), v...)
	}
	for k, v := range s.Snapshot.Modes {
		out.Modes[k] = v
	}
	if s.Now != nil {
		out.Time = s.Now()
	}
	return out, nil
}
