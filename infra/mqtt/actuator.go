package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/factory"
	coremqtt "github.com/kilianp07/thermompc/core/mqtt"
)

// Actuator publishes actions over MQTT. With a positive AckTimeout it waits
// for the plant to acknowledge every command.
type Actuator struct {
	Client     coremqtt.Client
	AckTimeout time.Duration
}

// Apply implements actuation.Actuator.
func (a *Actuator) Apply(ctx context.Context, act actuation.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := a.Client.SendAction(act)
	if err != nil {
		return fmt.Errorf("mqtt: send cycle %s: %w", act.CycleID, err)
	}
	if a.AckTimeout <= 0 {
		return nil
	}
	ok, err := a.Client.WaitForAck(id, a.AckTimeout)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if !ok {
		return fmt.Errorf("mqtt: command %s rejected", id)
	}
	return nil
}

// Close disconnects the client when it holds a connection.
func (a *Actuator) Close() error {
	if d, ok := a.Client.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	return nil
}

func init() {
	_ = actuation.Register("mqtt", func(conf map[string]any) (actuation.Actuator, error) {
		var cfg Config
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		cli, err := NewPahoClient(cfg)
		if err != nil {
			return nil, err
		}
		timeout := time.Duration(cfg.AckTimeoutMS) * time.Millisecond
		if cfg.AckTopic == "" {
			timeout = 0
		}
		return &Actuator{Client: cli, AckTimeout: timeout}, nil
	})
}
