package metrics

import (
	"context"
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/results"
)

// InfluxResultSink writes the planned trajectory as mpc_step points, one per
// horizon step, stamped with the step start.
type InfluxResultSink struct {
	*InfluxSink
}

// NewInfluxResultSink shares the connection setup of NewInfluxSink.
func NewInfluxResultSink(cfg InfluxConfig) InfluxResultSink {
	return InfluxResultSink{NewInfluxSink(cfg)}
}

// StepPoint converts one record.
func StepPoint(r results.StepRecord) *write.Point {
	p := write.NewPointWithMeasurement("mpc_step").
		AddTag("cycle_id", r.CycleID).
		AddTag("band", r.Band).
		AddTag("step", strconv.Itoa(r.Step)).
		AddField("energy_cost", round3(r.Energy)).
		AddField("slack_penalty", round3(r.Slack)).
		AddField("switching_penalty", round3(r.Switching)).
		SetTime(r.Start)
	for n, v := range r.Temps {
		p.AddField("temp_"+n, round3(v))
	}
	for n, v := range r.Slacks {
		p.AddField("slack_"+n, round3(v))
	}
	for g, m := range r.Active {
		p.AddField("mode_"+g, m)
	}
	return p
}

// Write implements results.Sink.
func (s InfluxResultSink) Write(ctx context.Context, recs []results.StepRecord) error {
	if len(recs) == 0 {
		return nil
	}
	points := make([]*write.Point, len(recs))
	for i, r := range recs {
		points[i] = StepPoint(r)
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close implements results.Sink.
func (s InfluxResultSink) Close() error {
	s.InfluxSink.Close()
	return nil
}

func init() {
	_ = results.Register("influx", func(conf map[string]any) (results.Sink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxResultSink(c), nil
	})
}
