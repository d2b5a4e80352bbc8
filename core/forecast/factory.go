package forecast

import (
	"github.com/kilianp07/thermompc/core/factory"
)

var registry = factory.NewRegistry[Feed]()

// Register adds a forecast feed factory identified by name.
func Register(name string, f factory.Factory[Feed]) error {
	return registry.Register(name, f)
}

// New creates the configured feed. An empty type selects the simulator.
func New(cfg factory.ModuleConfig) (Feed, error) {
	if cfg.Type == "" {
		cfg.Type = "sim"
	}
	return registry.Create(cfg)
}

func init() {
	_ = Register("sim", func(conf map[string]any) (Feed, error) {
		var c SimConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		c.SetDefaults()
		return NewSim(c), nil
	})
}

// Types lists the registered forecast feed types.
func Types() []string { return registry.Types() }
