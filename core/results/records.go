package results

import (
	"time"

	"github.com/kilianp07/thermompc/core/horizon"
	"github.com/kilianp07/thermompc/core/timegrid"
)

// FromResult flattens a solved horizon into step records. at is the start
// of the first fine step.
func FromResult(cycleID string, at time.Time, grid *timegrid.Grid, res horizon.Result) []StepRecord {
	var out []StepRecord
	start := at
	for _, tr := range res.Bands {
		band := grid.Band(tr.Band)
		for t, ts := range band.Steps {
			rec := StepRecord{
				CycleID:   cycleID,
				Band:      tr.Band.String(),
				Step:      ts.Index,
				Start:     start,
				Duration:  ts.Duration.Seconds(),
				Energy:    tr.Energy[t],
				Slack:     tr.SlackCost[t],
				Switching: tr.Switching[t],
				Temps:     make(map[string]float64, len(tr.Temps)),
				Modes:     make(map[string][]float64, len(tr.Modes)),
				Active:    make(map[string]int, len(tr.Modes)),
				Slacks:    make(map[string]float64, len(tr.Slack)),
			}
			for id := range tr.Temps {
				rec.Temps[id] = tr.MeanTemp(id, t+1)
			}
			for g, modes := range tr.Modes {
				vals := make([]float64, len(modes))
				for i, steps := range modes {
					vals[i] = steps[t]
				}
				rec.Modes[g] = vals
				rec.Active[g] = tr.ActiveMode(g, t)
			}
			for id, s := range tr.Slack {
				rec.Slacks[id] = s[t]
			}
			out = append(out, rec)
			start = start.Add(ts.Duration)
		}
	}
	return out
}
