// Package modbus talks to the plant controller over Modbus TCP or RTU.
// Temperatures are signed 16 bit registers in tenths of a degree by default;
// a mode is the index held in one holding register per group.
package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/goburrow/modbus"

	"github.com/kilianp07/thermompc/core/actuation"
	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/measurement"
)

// NodeRegister locates the temperature of a node. Blocks consecutive
// registers hold the block temperatures top down.
type NodeRegister struct {
	Address uint16  `json:"address"`
	Blocks  uint16  `json:"blocks"`
	Scale   float64 `json:"scale"`
	// Holding reads holding registers instead of input registers.
	Holding bool `json:"holding"`
}

// Config describes the connection and the register map.
type Config struct {
	Address   string                  `json:"address"`
	Device    string                  `json:"device"`
	BaudRate  int                     `json:"baud_rate"`
	SlaveID   byte                    `json:"slave_id"`
	TimeoutMS int                     `json:"timeout_ms"`
	Nodes     map[string]NodeRegister `json:"nodes"`
	Groups    map[string]uint16       `json:"groups"`
	SetPoints map[string]uint16       `json:"set_points"`
	// SetPointScale multiplies set-points before they are written.
	SetPointScale float64 `json:"set_point_scale"`
}

// SetDefaults fills the timeout and the scales.
func (c *Config) SetDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 1000
	}
	if c.BaudRate == 0 {
		c.BaudRate = 9600
	}
	if c.SlaveID == 0 {
		c.SlaveID = 1
	}
	if c.SetPointScale == 0 {
		c.SetPointScale = 10
	}
	for id, n := range c.Nodes {
		if n.Blocks == 0 {
			n.Blocks = 1
		}
		if n.Scale == 0 {
			n.Scale = 10
		}
		c.Nodes[id] = n
	}
}

// Validate requires exactly one transport.
func (c Config) Validate() error {
	if (c.Address == "") == (c.Device == "") {
		return fmt.Errorf("modbus: set exactly one of address and device")
	}
	return nil
}

// registers is the part of modbus.Client the plant uses.
type registers interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// Plant reads measurements and applies actions through one connection. It
// implements measurement.Feed and actuation.Actuator.
type Plant struct {
	cfg    Config
	client registers
	close  func() error
}

// Dial connects according to cfg.
func Dial(cfg Config) (*Plant, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if cfg.Address != "" {
		h := modbus.NewTCPClientHandler(cfg.Address)
		h.SlaveId = cfg.SlaveID
		h.Timeout = timeout
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("modbus: connect %s: %w", cfg.Address, err)
		}
		return &Plant{cfg: cfg, client: modbus.NewClient(h), close: h.Close}, nil
	}
	h := modbus.NewRTUClientHandler(cfg.Device)
	h.BaudRate = cfg.BaudRate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = cfg.SlaveID
	h.Timeout = timeout
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus: connect %s: %w", cfg.Device, err)
	}
	return &Plant{cfg: cfg, client: modbus.NewClient(h), close: h.Close}, nil
}

func newPlant(cfg Config, client registers) *Plant {
	cfg.SetDefaults()
	return &Plant{cfg: cfg, client: client, close: func() error { return nil }}
}

// Read implements measurement.Feed. A failed register read leaves the id
// out of the snapshot so that its default applies.
func (p *Plant) Read(ctx context.Context) (measurement.Snapshot, error) {
	s := measurement.Snapshot{Time: time.Now(), Temps: map[string][]float64{}, Modes: map[string]int{}}
	var firstErr error
	for _, id := range sortedKeys(p.cfg.Nodes) {
		if err := ctx.Err(); err != nil {
			return measurement.Snapshot{}, err
		}
		n := p.cfg.Nodes[id]
		read := p.client.ReadInputRegisters
		if n.Holding {
			read = p.client.ReadHoldingRegisters
		}
		data, err := read(n.Address, n.Blocks)
		if err != nil || len(data) < int(2*n.Blocks) {
			if firstErr == nil {
				firstErr = fmt.Errorf("modbus: node %s: %v", id, err)
			}
			continue
		}
		temps := make([]float64, n.Blocks)
		for i := range temps {
			temps[i] = float64(int16(binary.BigEndian.Uint16(data[2*i:]))) / n.Scale
		}
		s.Temps[id] = temps
	}
	for _, id := range sortedKeys(p.cfg.Groups) {
		data, err := p.client.ReadHoldingRegisters(p.cfg.Groups[id], 1)
		if err != nil || len(data) < 2 {
			if firstErr == nil {
				firstErr = fmt.Errorf("modbus: group %s: %v", id, err)
			}
			continue
		}
		s.Modes[id] = int(binary.BigEndian.Uint16(data))
	}
	if len(s.Temps) == 0 && len(s.Modes) == 0 && firstErr != nil {
		return measurement.Snapshot{}, firstErr
	}
	return s, nil
}

// Apply implements actuation.Actuator. Every mapped group and set-point is
// written; the first failure is returned after all writes were tried.
func (p *Plant) Apply(ctx context.Context, a actuation.Action) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, g := range sortedKeys(p.cfg.Groups) {
		if err := ctx.Err(); err != nil {
			return err
		}
		mode, ok := a.Modes[g]
		if !ok {
			continue
		}
		if _, err := p.client.WriteSingleRegister(p.cfg.Groups[g], uint16(mode)); err != nil {
			keep(fmt.Errorf("modbus: write mode of %s: %w", g, err))
		}
	}
	for _, id := range sortedKeys(p.cfg.SetPoints) {
		v, ok := a.SetPoints[id]
		if !ok {
			continue
		}
		raw := int16(v * p.cfg.SetPointScale)
		if _, err := p.client.WriteSingleRegister(p.cfg.SetPoints[id], uint16(raw)); err != nil {
			keep(fmt.Errorf("modbus: write set-point of %s: %w", id, err))
		}
	}
	return firstErr
}

// Close closes the connection.
func (p *Plant) Close() error { return p.close() }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fromConf(conf map[string]any) (*Plant, error) {
	var c Config
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	return Dial(c)
}

func init() {
	_ = measurement.Register("modbus", func(conf map[string]any) (measurement.Feed, error) { return fromConf(conf) })
	_ = actuation.Register("modbus", func(conf map[string]any) (actuation.Actuator, error) { return fromConf(conf) })
}
