package actuation

import (
	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/logger"
)

var registry = factory.NewRegistry[Actuator]()

// Register adds an actuator factory identified by name.
func Register(name string, f factory.Factory[Actuator]) error {
	return registry.Register(name, f)
}

// New creates the actuator described by cfgs. Several configurations give a
// Multi; none gives a LogActuator.
func New(cfgs []factory.ModuleConfig, log logger.Logger) (Actuator, error) {
	if len(cfgs) == 0 {
		return LogActuator{Log: log}, nil
	}
	if len(cfgs) == 1 {
		return registry.Create(cfgs[0])
	}
	acts := make([]Actuator, len(cfgs))
	for i, c := range cfgs {
		a, err := registry.Create(c)
		if err != nil {
			return nil, err
		}
		acts[i] = a
	}
	return &Multi{Actuators: acts}, nil
}

// Types lists the registered actuator types.
func Types() []string { return registry.Types() }
