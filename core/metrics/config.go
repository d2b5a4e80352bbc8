package metrics

import (
	"fmt"

	"github.com/kilianp07/thermompc/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// EmissionFactor converts kWh of electricity to grams of CO2 in the
	// daily KPIs.
	EmissionFactor float64 `json:"emission_factor"`
	// DailyPath keeps the daily KPIs in a SQLite file. Empty keeps them in
	// memory.
	DailyPath  string           `json:"daily_path"`
	Prometheus PrometheusConfig `json:"prometheus"`
}

// PrometheusConfig exposes the registry. Port starts a dedicated listener;
// the API serves /metrics as well when it is enabled.
type PrometheusConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.EmissionFactor == 0 {
		c.EmissionFactor = 52
	}
}

// Validate checks the sink list and the listener port.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	if c.EmissionFactor < 0 {
		return fmt.Errorf("metrics: emission factor must not be negative")
	}
	if c.Prometheus.Port < 0 || c.Prometheus.Port > 65535 {
		return fmt.Errorf("metrics: invalid prometheus port %d", c.Prometheus.Port)
	}
	return nil
}
