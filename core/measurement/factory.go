package measurement

import (
	"github.com/kilianp07/thermompc/core/factory"
)

var registry = factory.NewRegistry[Feed]()

// Register adds a measurement feed factory identified by name.
func Register(name string, f factory.Factory[Feed]) error {
	return registry.Register(name, f)
}

// New creates the configured feed. An empty type selects an empty static
// snapshot, so every reading falls back to its default.
func New(cfg factory.ModuleConfig) (Feed, error) {
	if cfg.Type == "" {
		cfg.Type = "static"
	}
	return registry.Create(cfg)
}

func init() {
	_ = Register("static", func(conf map[string]any) (Feed, error) {
		var s Snapshot
		if err := factory.Decode(conf, &s); err != nil {
			return nil, err
		}
		return Static{Snapshot: s}, nil
	})
}

// Types lists the registered measurement feed types.
func Types() []string { return registry.Types() }
