// Package app wires the configured backends around the controller and runs
// it with its status API and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/thermompc/api/status"
	_ "github.com/kilianp07/thermompc/app/plugins"
	"github.com/kilianp07/thermompc/config"
	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/controller"
	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/core/forecast"
	"github.com/kilianp07/thermompc/core/horizon"
	"github.com/kilianp07/thermompc/core/measurement"
	coremetrics "github.com/kilianp07/thermompc/core/metrics"
	"github.com/kilianp07/thermompc/core/metrics/daily"
	"github.com/kilianp07/thermompc/core/monitoring"
	"github.com/kilianp07/thermompc/core/results"
	"github.com/kilianp07/thermompc/core/solver"
	"github.com/kilianp07/thermompc/core/timegrid"
	"github.com/kilianp07/thermompc/core/warmstart"
	"github.com/kilianp07/thermompc/infra/cbc"
	"github.com/kilianp07/thermompc/infra/kpi"
	"github.com/kilianp07/thermompc/infra/logger"
	"github.com/kilianp07/thermompc/infra/metrics"
	inframon "github.com/kilianp07/thermompc/infra/monitoring"
	"github.com/kilianp07/thermompc/internal/eventbus"
)

// Service owns the controller and everything around it.
type Service struct {
	cfg        *config.Config
	Controller *controller.Controller
	Tracker    *status.Tracker

	cycles  *eventbus.TypedBus[events.CycleEvent]
	states  *eventbus.TypedBus[events.StateEvent]
	sink    coremetrics.MetricsSink
	results results.Sink
	daily   daily.Store
	reg     prometheus.Registerer
	gather  prometheus.Gatherer
	closers []io.Closer
	log     logger.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithRegistry registers metrics on reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Service) { s.reg, s.gather = reg, reg }
}

// NewSolver returns the backend selected by cfg.Backend.
func NewSolver(cfg solver.Config, log logger.Logger) (solver.Solver, error) {
	switch cfg.Backend {
	case "gonum":
		return solver.NewBranchAndBound(cfg, log), nil
	case "cbc":
		return cbc.New(cfg, log), nil
	}
	return nil, fmt.Errorf("unknown solver backend %q", cfg.Backend)
}

// New builds a Service from cfg. Logging must already be configured.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:     cfg,
		cycles:  eventbus.NewTyped[events.CycleEvent](),
		states:  eventbus.NewTyped[events.StateEvent](),
		Tracker: status.NewTracker(),
		reg:     prometheus.DefaultRegisterer,
		gather:  prometheus.DefaultGatherer,
		log:     logger.New("service"),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.build(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build() error {
	cfg := s.cfg
	mon, err := inframon.NewLogMonitor(logger.New("monitoring"), s.reg)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	monitoring.Init(mon)

	grid, err := timegrid.New(cfg.Horizon)
	if err != nil {
		return fmt.Errorf("horizon: %w", err)
	}
	plant := cfg.Plant
	slv, err := NewSolver(cfg.Solver, logger.New("solver"))
	if err != nil {
		return err
	}
	var planner *warmstart.Planner
	if cfg.Warmstart.Enabled {
		planner = warmstart.NewPlanner(cfg.Warmstart, &plant, slv, cfg.Solver.Threads, logger.New("warmstart"))
	}

	fc, err := forecast.New(cfg.Forecast)
	if err != nil {
		return fmt.Errorf("forecast %q: %w", cfg.Forecast.Type, err)
	}
	s.track(fc)
	meas, err := measurement.New(cfg.Measurement)
	if err != nil {
		return fmt.Errorf("measurement %q: %w", cfg.Measurement.Type, err)
	}
	s.track(meas)
	act, err := actuation.New(cfg.Actuation, logger.New("actuation"))
	if err != nil {
		return fmt.Errorf("actuation: %w", err)
	}
	s.track(act)
	if s.results, err = results.New(cfg.Results); err != nil {
		return err
	}

	if err := s.buildMetrics(); err != nil {
		return err
	}

	s.Controller = controller.New(cfg.Controller, controller.Deps{
		Plant:       &plant,
		Grid:        grid,
		Forecast:    fc,
		Measurement: meas,
		Market:      cfg.Market,
		Planner:     planner,
		Composer:    horizon.NewComposer(&plant, grid, cfg.Encoding.McCormickParts, logger.New("horizon")),
		Solver:      slv,
		SolverCfg:   cfg.Solver,
		Actuator:    act,
		Results:     s.results,
		Cycles:      s.cycles,
		States:      s.states,
		Log:         logger.New("controller"),
	})
	return nil
}

func (s *Service) buildMetrics() error {
	cfg := s.cfg.Metrics
	var sinks []coremetrics.MetricsSink
	if len(cfg.Sinks) > 0 {
		configured, err := coremetrics.NewMetricsSink(cfg.Sinks)
		if err != nil {
			return fmt.Errorf("metrics sinks: %w", err)
		}
		sinks = append(sinks, configured)
	}
	if cfg.Prometheus.Enabled {
		prom, err := metrics.NewPromSinkWithRegistry(s.reg)
		if err != nil {
			return fmt.Errorf("prometheus sink: %w", err)
		}
		sinks = append(sinks, prom)
	}
	if cfg.DailyPath != "" {
		st, err := kpi.NewSQLiteStore(cfg.DailyPath)
		if err != nil {
			return fmt.Errorf("daily kpi store: %w", err)
		}
		s.closers = append(s.closers, st)
		s.daily = st
	} else {
		s.daily = daily.NewMemoryStore()
	}
	ds, err := metrics.NewDailySink(s.daily, cfg.EmissionFactor, s.reg)
	if err != nil {
		return fmt.Errorf("daily sink: %w", err)
	}
	sinks = append(sinks, ds)
	s.sink = coremetrics.NewMultiSink(sinks...)
	return nil
}

// track remembers v for Close when it holds a resource.
func (s *Service) track(v any) {
	if c, ok := v.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

// queryable returns the first sink that can be queried back.
func queryable(sink results.Sink) results.Store {
	if m, ok := sink.(*results.MultiSink); ok {
		for _, inner := range m.Sinks {
			if st, ok := inner.(results.Store); ok {
				return st
			}
		}
		return nil
	}
	st, _ := sink.(results.Store)
	return st
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	opts := status.Options{
		Tracker: s.Tracker,
		Store:   queryable(s.results),
		Daily:   s.daily,
		Token:   s.cfg.API.Token,
	}
	if s.cfg.Metrics.Prometheus.Enabled {
		opts.Gatherer = s.gather
	}
	return status.NewRouter(opts)
}

func (s *Service) observe(ctx context.Context) (collected, tracked <-chan struct{}) {
	collected = metrics.StartEventCollector(ctx, s.cycles, s.states, s.sink, logger.New("metrics"))
	tracked = s.Tracker.Start(ctx, s.cycles, s.states)
	return collected, tracked
}

// Run starts the observers, the HTTP listeners and the control loop, and
// blocks until ctx is canceled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	defer monitoring.Recover()
	g, ctx := errgroup.WithContext(ctx)
	collected, tracked := s.observe(ctx)
	if s.cfg.API.Enabled {
		h := s.Handler()
		g.Go(func() error {
			s.log.Infof("status api listening on %s", s.cfg.API.Addr)
			return status.Serve(ctx, s.cfg.API.Addr, h)
		})
	}
	if p := s.cfg.Metrics.Prometheus; p.Enabled && p.Port > 0 {
		h := status.NewRouter(status.Options{Gatherer: s.gather})
		g.Go(func() error {
			return status.Serve(ctx, ":"+strconv.Itoa(p.Port), h)
		})
	}
	g.Go(func() error { return s.Controller.Run(ctx) })
	err := g.Wait()
	<-collected
	<-tracked
	return err
}

// RunOnce runs a single cycle and waits until its events are recorded.
func (s *Service) RunOnce(ctx context.Context) (events.CycleEvent, error) {
	collected, tracked := s.observe(ctx)
	ev, err := s.Controller.RunCycle(ctx)
	s.cycles.Close()
	s.states.Close()
	<-collected
	<-tracked
	return ev, err
}

// Close releases the sinks and the transports.
func (s *Service) Close() error {
	var errs []error
	if s.results != nil {
		errs = append(errs, s.results.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.cycles.Close()
	s.states.Close()
	monitoring.Flush(0)
	return errors.Join(errs...)
}
