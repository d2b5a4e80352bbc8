// Package monitoring reports unexpected failures of the control loop and its
// transports. A process installs one Monitor at start-up; until then
// reports are dropped.
package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor receives failures.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Recover must be deferred directly; it reports a panic and re-raises it.
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the process monitor. A nil m is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException reports err with optional tags. A nil err is ignored.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover reports a panic of the calling goroutine and re-raises it.
func Recover() {
	if r := recover(); r != nil {
		get().CaptureException(panicError{r}, map[string]string{"panic": "true"})
		get().Flush(2 * time.Second)
		panic(r)
	}
}

// Flush flushes buffered reports.
func Flush(d time.Duration) { get().Flush(d) }

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }
