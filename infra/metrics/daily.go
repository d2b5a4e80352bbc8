package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/core/metrics/daily"
)

// DailySink aggregates cycles into daily KPIs and exposes the current day
// as Prometheus gauges. Electricity is the dispatched power integrated over
// the time until the next cycle.
type DailySink struct {
	store  daily.Store
	factor float64

	mu       sync.Mutex
	lastTime time.Time
	lastKW   float64

	energy   *prometheus.GaugeVec
	co2      *prometheus.GaugeVec
	fallback *prometheus.GaugeVec
}

// NewDailySink creates a sink with gauges registered on reg.
func NewDailySink(store daily.Store, factor float64, reg prometheus.Registerer) (*DailySink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &DailySink{store: store, factor: factor}
	var err error
	if s.energy, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpc_daily_electricity_kwh",
		Help: "Electricity dispatched per day",
	}, []string{"day"})); err != nil {
		return nil, err
	}
	if s.co2, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpc_daily_co2_grams",
		Help: "Emissions of the dispatched electricity per day",
	}, []string{"day"})); err != nil {
		return nil, err
	}
	if s.fallback, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpc_daily_fallback_ratio",
		Help: "Share of cycles per day that re-dispatched an earlier action",
	}, []string{"day"})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordCycle implements coremetrics.MetricsSink.
func (s *DailySink) RecordCycle(ev events.CycleEvent) error {
	s.mu.Lock()
	rec := daily.Record{Date: ev.Time, Cycles: 1}
	if ev.Outcome == events.Fallback {
		rec.Fallbacks = 1
	}
	if ev.Slack > 0 {
		rec.SlackCycles = 1
	}
	if !s.lastTime.IsZero() && ev.Time.After(s.lastTime) {
		rec.ElectricityKWh = s.lastKW * ev.Time.Sub(s.lastTime).Hours()
	}
	s.lastTime, s.lastKW = ev.Time, ev.PowerKW
	s.mu.Unlock()

	if err := s.store.Add(rec); err != nil {
		return err
	}
	recs, err := s.store.Query(ev.Time, ev.Time)
	if err != nil || len(recs) == 0 {
		return err
	}
	day := daily.Day(ev.Time).Format("2006-01-02")
	s.energy.WithLabelValues(day).Set(recs[0].ElectricityKWh)
	s.co2.WithLabelValues(day).Set(recs[0].CO2Grams(s.factor))
	s.fallback.WithLabelValues(day).Set(recs[0].FallbackRatio())
	return nil
}
