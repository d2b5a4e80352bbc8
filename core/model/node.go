package model

import (
	"errors"
	"fmt"
)

// Demand selects which forecast profile is drawn from a node.
type Demand string

const (
	DemandNone Demand = ""
	DemandHeat Demand = "heat"
	DemandCool Demand = "cool"
	DemandDry  Demand = "dry"
)

// Node is a thermal mass with a temperature trajectory. Min and Max are
// comfort bounds and may be violated at a penalty; HardMin and HardMax are
// physical limits that are never relaxed.
type Node struct {
	ID           string   `json:"id"`
	Mass         float64  `json:"mass_kg"`
	SpecificHeat float64  `json:"specific_heat"`
	Min          float64  `json:"min"`
	Max          float64  `json:"max"`
	HardMin      *float64 `json:"hard_min,omitempty"`
	HardMax      *float64 `json:"hard_max,omitempty"`
	Loss         float64  `json:"loss_kw_per_k"`
	RefTemp      float64  `json:"ref_temp"`
	RefAmbient   bool     `json:"ref_ambient"`
	Demand       Demand   `json:"demand"`
	Blocks       int      `json:"blocks"`
	Conductance  float64  `json:"block_conductance"`
	Default      float64  `json:"default"`
}

// BlockCount returns the number of storage blocks, at least one.
func (n Node) BlockCount() int {
	if n.Blocks < 1 {
		return 1
	}
	return n.Blocks
}

// Capacity returns mass·specificHeat of one block in kJ/K.
func (n Node) Capacity() float64 {
	return n.Mass * n.SpecificHeat / float64(n.BlockCount())
}

// Validate checks that the node is physically meaningful.
func (n Node) Validate() error {
	if n.ID == "" {
		return errors.New("node id is required")
	}
	if n.ID == Ambient {
		return fmt.Errorf("node id %q is reserved", Ambient)
	}
	if n.Mass <= 0 || n.SpecificHeat <= 0 {
		return fmt.Errorf("node %s: mass and specific heat must be positive", n.ID)
	}
	if n.Min > n.Max {
		return fmt.Errorf("node %s: min %g above max %g", n.ID, n.Min, n.Max)
	}
	if n.HardMin != nil && n.HardMax != nil && *n.HardMin > *n.HardMax {
		return fmt.Errorf("node %s: hard bounds inverted", n.ID)
	}
	if n.Loss < 0 || n.Conductance < 0 {
		return fmt.Errorf("node %s: loss and conductance must not be negative", n.ID)
	}
	switch n.Demand {
	case DemandNone, DemandHeat, DemandCool, DemandDry:
	default:
		return fmt.Errorf("node %s: unknown demand %q", n.ID, n.Demand)
	}
	return nil
}
