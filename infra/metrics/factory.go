package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/thermompc/core/factory"
	coremetrics "github.com/kilianp07/thermompc/core/metrics"
	"github.com/kilianp07/thermompc/core/metrics/daily"
	"github.com/kilianp07/thermompc/infra/kpi"
)

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})

	_ = coremetrics.RegisterMetricsSink("daily", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			EmissionFactor float64 `json:"emission_factor"`
			Path           string  `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		var store daily.Store = daily.NewMemoryStore()
		if c.Path != "" {
			st, err := kpi.NewSQLiteStore(c.Path)
			if err != nil {
				return nil, err
			}
			store = st
		}
		return NewDailySink(store, c.EmissionFactor, prometheus.DefaultRegisterer)
	})
}
