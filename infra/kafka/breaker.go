package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/thermompc/core/logger"
)

// ErrOpen is returned without calling the broker while the breaker is open.
var ErrOpen = errors.New("kafka: circuit breaker open")

// State of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker opens after MaxFailures consecutive failures and lets a single
// trial call through once ResetTimeout has passed.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	log          logger.Logger
	now          func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(name string, maxFailures int, resetTimeout time.Duration, log logger.Logger) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{name: name, maxFailures: maxFailures, resetTimeout: resetTimeout, log: log, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.log.Infof("breaker %s: half-open, trying one call", b.name)
	} else if b.state == HalfOpen {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := op(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.state != Closed {
			b.log.Infof("breaker %s: closed", b.name)
		}
		b.state, b.failures = Closed, 0
		return nil
	}
	b.failures++
	if b.state == HalfOpen || b.failures >= b.maxFailures {
		if b.state != Open {
			b.log.Warnf("breaker %s: open after %d failures: %v", b.name, b.failures, err)
		}
		b.state, b.openedAt = Open, b.now()
	}
	return err
}
