package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/thermompc/core/events"
	coremetrics "github.com/kilianp07/thermompc/core/metrics"
	"github.com/kilianp07/thermompc/infra/logger"
)

// InfluxConfig addresses an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes cycle outcomes to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCycle writes one mpc_cycle point plus one point per dispatched
// mode and set-point.
func (s *InfluxSink) RecordCycle(ev events.CycleEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("mpc_cycle").
		AddTag("cycle_id", ev.CycleID).
		AddTag("outcome", string(ev.Outcome)).
		AddField("objective", round3(ev.Objective)).
		AddField("energy_cost", round3(ev.Energy)).
		AddField("slack_penalty", round3(ev.Slack)).
		AddField("switching_penalty", round3(ev.Switching)).
		AddField("solve_ms", ev.Solve.Milliseconds()).
		AddField("power_kw", round3(ev.PowerKW)).
		AddField("stale", len(ev.Stale)).
		SetTime(ev.Time)
	if ev.Status != "" {
		p.AddTag("status", ev.Status)
	}
	if ev.Err != nil {
		p.AddField("error", ev.Err.Error())
	}
	points := []*write.Point{p}
	for g, m := range ev.Modes {
		points = append(points, write.NewPointWithMeasurement("mpc_mode").
			AddTag("group", g).
			AddField("mode", m).
			SetTime(ev.Time))
	}
	for n, v := range ev.SetPoints {
		points = append(points, write.NewPointWithMeasurement("mpc_setpoint").
			AddTag("node", n).
			AddField("celsius", round3(v)).
			SetTime(ev.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
