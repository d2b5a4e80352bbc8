package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/api/status"
	"github.com/kilianp07/thermompc/config"
	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/metrics/daily"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/core/results"
	"github.com/kilianp07/thermompc/core/timegrid"
)

func smallPlant() model.Plant {
	return model.Plant{
		Nodes: []model.Node{
			{ID: "hs", Mass: 2000, SpecificHeat: 4.18, Min: 30, Max: 50, Loss: 0.05, RefAmbient: true, Demand: model.DemandHeat, Default: 35},
		},
		Groups: []model.ModeGroup{
			{ID: "hp", Modes: []model.Mode{{Name: "off"}, {Name: "on", Power: 5, Heat: map[string]float64{"hs": 15}}}, SwitchCost: 2},
		},
	}
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	fc := filepath.Join(dir, "forecast.csv")
	require.NoError(t, os.WriteFile(fc, []byte("time,heat_kw,cool_kw,dry_kw,ambient,price\n2020-01-01T00:00:00Z,4,0,0,5,0.2\n"), 0o644))

	cfg := &config.Config{
		Horizon: timegrid.Spec{
			Fine:   timegrid.BandSpec{Steps: 3, StepSeconds: 600, ControlPeriod: 1},
			Mid:    timegrid.BandSpec{Disabled: true},
			Coarse: timegrid.BandSpec{Disabled: true},
		},
		Plant:    smallPlant(),
		Forecast: factory.ModuleConfig{Type: "csv", Conf: map[string]any{"path": fc}},
		Results: []factory.ModuleConfig{
			{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "results.jsonl")}},
		},
		API: config.APIConfig{Token: "t"},
	}
	cfg.Solver.Backend = "gonum"
	cfg.Solver.TimeLimitSeconds = 30
	cfg.Metrics.Prometheus.Enabled = true
	cfg.Metrics.DailyPath = filepath.Join(dir, "kpi.db")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestRunOnceSolvesAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc, err := New(testConfig(t), WithRegistry(reg))
	require.NoError(t, err)
	defer svc.Close()

	ev, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, events.Solved, ev.Outcome)
	assert.Contains(t, ev.Modes, "hp")
	assert.ElementsMatch(t, []string{"hp", "hs"}, ev.Stale)

	h := svc.Handler()
	var snap status.Snapshot
	require.Equal(t, http.StatusOK, get(t, h, "/status", &snap))
	assert.Equal(t, 1, snap.Cycles)
	require.NotNil(t, snap.Last)
	assert.Equal(t, ev.CycleID, snap.Last.CycleID)

	var recs []results.StepRecord
	require.Equal(t, http.StatusOK, get(t, h, "/api/results/"+ev.CycleID, &recs))
	assert.Len(t, recs, 3)

	var days []daily.Record
	require.Equal(t, http.StatusOK, get(t, h, "/api/kpi/daily", &days))
	require.Len(t, days, 1)
	assert.Equal(t, 1, days[0].Cycles)

	assert.Equal(t, http.StatusOK, get(t, h, "/metrics", nil))
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Actuation = []factory.ModuleConfig{{Type: "carrier-pigeon"}}
	_, err := New(cfg, WithRegistry(prometheus.NewRegistry()))
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Solver.Backend = "glpk"
	_, err = New(cfg, WithRegistry(prometheus.NewRegistry()))
	assert.Error(t, err)
}
