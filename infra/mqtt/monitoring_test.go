package mqtt

import (
	"fmt"
	"testing"
	"time"

	coremon "github.com/kilianp07/thermompc/core/monitoring"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestSendActionErrorCaptured(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}}
	useMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", AckTopic: "a", MaxRetries: 1, BackoffMS: 1}
	cli, err := NewPahoClient(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err = cli.SendAction(newAction()); err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["cycle_id"] != "c1" || mon.tags["module"] != "mqtt" {
		t.Fatalf("tags not set")
	}
	if len(cli.ackChans) != 0 {
		t.Fatalf("failed command still tracked")
	}
}
