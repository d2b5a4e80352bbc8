package metrics

import (
	"context"

	"github.com/kilianp07/thermompc/core/events"
	"github.com/kilianp07/thermompc/core/logger"
	coremetrics "github.com/kilianp07/thermompc/core/metrics"
	"github.com/kilianp07/thermompc/internal/eventbus"
)

// StartEventCollector records the cycle and state events of the controller
// into sink. States are only recorded when sink is a StateRecorder and
// states is not nil. It stops when ctx is canceled or the cycle bus closes;
// the returned channel is closed once it has exited.
func StartEventCollector(ctx context.Context, cycles *eventbus.TypedBus[events.CycleEvent], states *eventbus.TypedBus[events.StateEvent], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if cycles == nil || sink == nil {
		close(done)
		return done
	}
	csub := cycles.Subscribe()
	var ssub <-chan events.StateEvent
	rec, recordStates := sink.(coremetrics.StateRecorder)
	if states != nil && recordStates {
		ssub = states.Subscribe()
	}
	go func() {
		defer close(done)
		defer cycles.Unsubscribe(csub)
		if ssub != nil {
			defer states.Unsubscribe(ssub)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-csub:
				if !ok {
					return
				}
				if err := sink.RecordCycle(e); err != nil {
					log.Warnf("record cycle %s: %v", e.CycleID, err)
				}
			case e, ok := <-ssub:
				if !ok {
					ssub = nil
					continue
				}
				if err := rec.RecordState(e); err != nil {
					log.Warnf("record state %s: %v", e.State, err)
				}
			}
		}
	}()
	return done
}
