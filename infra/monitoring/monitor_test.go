package monitoring

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lines struct {
	errs []string
}

func (l *lines) Debugf(string, ...any)           {}
func (l *lines) Debugw(string, map[string]any)   {}
func (l *lines) Infof(string, ...any)            {}
func (l *lines) Warnf(string, ...any)            {}
func (l *lines) Errorf(format string, a ...any) { l.errs = append(l.errs, fmt.Sprintf(format, a...)) }

func TestLogMonitorCountsPerModule(t *testing.T) {
	reg := prometheus.NewRegistry()
	log := &lines{}
	m, err := NewLogMonitor(log, reg)
	require.NoError(t, err)

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("ack timeout"), map[string]string{"module": "mqtt", "cycle_id": "c1"})
	m.CaptureException(errors.New("no solution"), nil)

	require.Len(t, log.errs, 2)
	assert.Equal(t, "exception [cycle_id=c1 module=mqtt]: ack timeout", log.errs[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exceptions.WithLabelValues("mqtt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exceptions.WithLabelValues("unknown")))

	again, err := NewLogMonitor(log, reg)
	require.NoError(t, err)
	assert.Same(t, m.exceptions, again.exceptions)
}
