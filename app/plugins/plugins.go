// Package plugins links every built-in backend into the binary. Importing it
// fills the forecast, measurement, actuation, results and metrics registries.
package plugins

import (
	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/forecast"
	"github.com/kilianp07/thermompc/core/measurement"
	coremetrics "github.com/kilianp07/thermompc/core/metrics"
	"github.com/kilianp07/thermompc/core/results"
	"github.com/kilianp07/thermompc/infra/logger"

	_ "github.com/kilianp07/thermompc/infra/csvfeed"
	_ "github.com/kilianp07/thermompc/infra/kafka"
	_ "github.com/kilianp07/thermompc/infra/metrics"
	_ "github.com/kilianp07/thermompc/infra/modbus"
	_ "github.com/kilianp07/thermompc/infra/mqtt"
	_ "github.com/kilianp07/thermompc/infra/postgres"
	_ "github.com/kilianp07/thermompc/infra/telemetry"
)

// Kind names a registry.
type Kind string

const (
	Forecast    Kind = "forecast"
	Measurement Kind = "measurement"
	Actuation   Kind = "actuation"
	Results     Kind = "results"
	Metrics     Kind = "metrics"
)

// Kinds lists the registries in display order.
var Kinds = []Kind{Forecast, Measurement, Actuation, Results, Metrics}

func init() {
	_ = actuation.Register("log", func(map[string]any) (actuation.Actuator, error) {
		return actuation.LogActuator{Log: logger.New("actuation")}, nil
	})
}

// Catalog returns the registered type names of every registry.
func Catalog() map[Kind][]string {
	return map[Kind][]string{
		Forecast:    forecast.Types(),
		Measurement: measurement.Types(),
		Actuation:   actuation.Types(),
		Results:     results.Types(),
		Metrics:     coremetrics.Types(),
	}
}
