// Package monitoring provides the process Monitor: failures are logged at
// error level and counted per module.
package monitoring

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/thermompc/core/logger"
	coremon "github.com/kilianp07/thermompc/core/monitoring"
)

// LogMonitor implements coremon.Monitor.
type LogMonitor struct {
	log        logger.Logger
	exceptions *prometheus.CounterVec
}

// NewLogMonitor registers mpc_exceptions_total on reg. A nil reg skips the
// counter.
func NewLogMonitor(log logger.Logger, reg prometheus.Registerer) (*LogMonitor, error) {
	m := &LogMonitor{log: log}
	if reg == nil {
		return m, nil
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpc_exceptions_total",
		Help: "Failures reported by the controller and its transports.",
	}, []string{"module"})
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		c = are.ExistingCollector.(*prometheus.CounterVec)
	}
	m.exceptions = c
	return m, nil
}

// CaptureException implements coremon.Monitor.
func (m *LogMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + tags[k]
	}
	m.log.Errorf("exception [%s]: %v", strings.Join(parts, " "), err)
	if m.exceptions != nil {
		module := tags["module"]
		if module == "" {
			module = "unknown"
		}
		m.exceptions.WithLabelValues(module).Inc()
	}
}

// Recover is a no-op; the package level coremon.Recover does the work.
func (m *LogMonitor) Recover() {}

// Flush is a no-op: reports are written synchronously.
func (m *LogMonitor) Flush(time.Duration) {}

var _ coremon.Monitor = (*LogMonitor)(nil)
