package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/thermompc/core/events"
	coremetrics "github.com/kilianp07/thermompc/core/metrics"
)

// PromSink exposes cycle outcomes as Prometheus metrics.
type PromSink struct {
	cycles    *prometheus.CounterVec
	solve     prometheus.Histogram
	cost      *prometheus.GaugeVec
	nodes     prometheus.Gauge
	mode      *prometheus.GaugeVec
	setPoint  *prometheus.GaugeVec
	power     prometheus.Gauge
	stale     *prometheus.CounterVec
	warmstart prometheus.Counter
	state     *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer. A
// nil registerer defaults to the global one. Collectors already registered
// by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpc_cycles_total",
		Help: "Finished control cycles by outcome",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.solve, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mpc_solve_seconds",
		Help:    "Wall time spent in the MILP solver per cycle",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpc_plan_cost",
		Help: "Objective terms of the last solved horizon",
	}, []string{"term"})); err != nil {
		return nil, err
	}
	if s.nodes, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mpc_solver_nodes",
		Help: "Branch and bound nodes explored in the last solve",
	})); err != nil {
		return nil, err
	}
	if s.mode, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpc_dispatched_mode",
		Help: "Mode index dispatched per group",
	}, []string{"group"})); err != nil {
		return nil, err
	}
	if s.setPoint, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpc_setpoint_celsius",
		Help: "Dispatched temperature set-point per node",
	}, []string{"node"})); err != nil {
		return nil, err
	}
	if s.power, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mpc_dispatched_power_kw",
		Help: "Electrical draw of the dispatched modes",
	})); err != nil {
		return nil, err
	}
	if s.stale, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpc_stale_readings_total",
		Help: "Measurements replaced by their default",
	}, []string{"reading"})); err != nil {
		return nil, err
	}
	if s.warmstart, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mpc_warmstart_failures_total",
		Help: "Cycles whose warm start kept the previous record",
	})); err != nil {
		return nil, err
	}
	if s.state, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpc_state",
		Help: "1 for the state the controller is in",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCycle implements coremetrics.MetricsSink.
func (s *PromSink) RecordCycle(ev events.CycleEvent) error {
	s.cycles.WithLabelValues(string(ev.Outcome)).Inc()
	for _, r := range ev.Stale {
		s.stale.WithLabelValues(r).Inc()
	}
	if ev.WarmstartErr != nil {
		s.warmstart.Inc()
	}
	for g, m := range ev.Modes {
		s.mode.WithLabelValues(g).Set(float64(m))
	}
	for n, v := range ev.SetPoints {
		s.setPoint.WithLabelValues(n).Set(v)
	}
	s.power.Set(ev.PowerKW)
	if ev.Outcome != events.Solved {
		return nil
	}
	s.solve.Observe(ev.Solve.Seconds())
	s.cost.WithLabelValues("objective").Set(ev.Objective)
	s.cost.WithLabelValues("energy").Set(ev.Energy)
	s.cost.WithLabelValues("slack").Set(ev.Slack)
	s.cost.WithLabelValues("switching").Set(ev.Switching)
	s.nodes.Set(float64(ev.Nodes))
	return nil
}

// RecordState implements coremetrics.StateRecorder.
func (s *PromSink) RecordState(ev events.StateEvent) error {
	for _, st := range []events.State{events.Gathering, events.Building, events.Solving, events.Dispatching, events.Sleeping} {
		v := 0.0
		if st == ev.State {
			v = 1
		}
		s.state.WithLabelValues(string(st)).Set(v)
	}
	return nil
}

var _ coremetrics.StateRecorder = (*PromSink)(nil)
