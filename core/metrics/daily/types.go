// Package daily aggregates cycle outcomes per calendar day.
package daily

import "time"

// Record aggregates one day of control.
type Record struct {
	Date      time.Time `json:"date"`
	Cycles    int       `json:"cycles"`
	Fallbacks int       `json:"fallbacks"`
	// ElectricityKWh integrates the dispatched electrical draw over time.
	ElectricityKWh float64 `json:"electricity_kwh"`
	// SlackCycles counts cycles whose plan violated a comfort band.
	SlackCycles int `json:"slack_cycles"`
}

// CO2Grams returns the emissions of the day's electricity using factor in g/kWh.
func (r Record) CO2Grams(factor float64) float64 {
	return r.ElectricityKWh * factor
}

// FallbackRatio is the share of cycles that re-dispatched an earlier action.
func (r Record) FallbackRatio() float64 {
	if r.Cycles == 0 {
		return 0
	}
	return float64(r.Fallbacks) / float64(r.Cycles)
}

// Add merges o into r.
func (r *Record) Add(o Record) {
	r.Cycles += o.Cycles
	r.Fallbacks += o.Fallbacks
	r.ElectricityKWh += o.ElectricityKWh
	r.SlackCycles += o.SlackCycles
}
