// Package config loads the controller configuration from a YAML or JSON
// file with TMPC_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/thermompc/core/controller"
	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/market"
	"github.com/kilianp07/thermompc/core/metrics"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/core/solver"
	"github.com/kilianp07/thermompc/core/timegrid"
	"github.com/kilianp07/thermompc/core/warmstart"
	"github.com/kilianp07/thermompc/infra/logger"
)

// EnvPrefix marks environment overrides. Nested keys are joined with a
// double underscore, e.g. TMPC_SOLVER__THREADS.
const EnvPrefix = "TMPC_"

// Config is the whole configuration surface.
type Config struct {
	Horizon     timegrid.Spec          `json:"horizon"`
	Encoding    EncodingConfig         `json:"encoding"`
	Plant       model.Plant            `json:"plant"`
	Solver      solver.Config          `json:"solver"`
	Warmstart   warmstart.Config       `json:"warmstart"`
	Controller  controller.Config      `json:"controller"`
	Market      market.Config          `json:"market"`
	Forecast    factory.ModuleConfig   `json:"forecast"`
	Measurement factory.ModuleConfig   `json:"measurement"`
	Actuation   []factory.ModuleConfig `json:"actuation"`
	Results     []factory.ModuleConfig `json:"results"`
	Metrics     metrics.Config         `json:"metrics"`
	API         APIConfig              `json:"api"`
	Logging     logger.Config          `json:"logging"`
}

// EncodingConfig tunes the model encoding.
type EncodingConfig struct {
	// McCormickParts overrides the partition count of the mid band.
	McCormickParts int `json:"mccormick_parts"`
}

// APIConfig enables the HTTP status API.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token protects the /api routes as a bearer token.
	Token string `json:"token"`
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Horizon.SetDefaults()
	c.Plant.SetDefaults()
	c.Solver.SetDefaults()
	c.Warmstart.SetDefaults()
	c.Controller.SetDefaults()
	c.Market.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

// Validate checks every section and stops at the first error.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"horizon", c.Horizon.Validate},
		{"plant", c.Plant.Validate},
		{"solver", c.Solver.Validate},
		{"warmstart", c.Warmstart.Validate},
		{"controller", c.Controller.Validate},
		{"market", c.Market.Validate},
		{"metrics", c.Metrics.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	if c.Encoding.McCormickParts < 0 {
		return fmt.Errorf("encoding: mccormick_parts must not be negative")
	}
	for i, a := range c.Actuation {
		if a.Type == "" {
			return fmt.Errorf("actuation %d: missing type", i)
		}
	}
	for i, r := range c.Results {
		if r.Type == "" {
			return fmt.Errorf("results %d: missing type", i)
		}
	}
	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api: addr is required")
	}
	return nil
}

// Load reads path, applies environment overrides, then defaults, then
// validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
