package results

import (
	"fmt"

	"github.com/kilianp07/thermompc/core/factory"
)

// Config selects a sink by type.
type Config = factory.ModuleConfig

// FileConfig holds the options shared by the file based sinks.
type FileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

var registry = factory.NewRegistry[Sink]()

// Register adds a sink constructor.
func Register(name string, f factory.Factory[Sink]) error { return registry.Register(name, f) }

func fileFactory(open func(FileConfig) (Sink, error)) factory.Factory[Sink] {
	return func(conf map[string]any) (Sink, error) {
		var fc FileConfig
		if err := factory.Decode(conf, &fc); err != nil {
			return nil, err
		}
		if fc.Path == "" {
			return nil, fmt.Errorf("results: path required")
		}
		return open(fc)
	}
}

func init() {
	_ = Register("nop", func(map[string]any) (Sink, error) { return NopSink{}, nil })
	_ = Register("jsonl", fileFactory(func(c FileConfig) (Sink, error) { return NewJSONLStore(c.Path) }))
	_ = Register("jsonl_rotating", fileFactory(func(c FileConfig) (Sink, error) {
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}))
	_ = Register("sqlite", fileFactory(func(c FileConfig) (Sink, error) { return NewSQLiteStore(c.Path) }))
	_ = Register("csv", fileFactory(func(c FileConfig) (Sink, error) { return NewCSVSink(c.Path) }))
}

// New builds the configured sinks. No entry yields a NopSink and several
// entries a MultiSink.
func New(cfgs []Config) (Sink, error) {
	var sinks []Sink
	for _, c := range cfgs {
		s, err := registry.Create(c)
		if err != nil {
			for _, built := range sinks {
				_ = built.Close()
			}
			return nil, fmt.Errorf("results sink %q: %w", c.Type, err)
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks[0], nil
	}
	return &MultiSink{Sinks: sinks}, nil
}

// Types lists the registered results sink types.
func Types() []string { return registry.Types() }
