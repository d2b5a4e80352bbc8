package model

import (
	"errors"
	"fmt"
)

// Ambient is the pseudo node standing for outdoor air in a Path.From.
const Ambient = "ambient"

// Path moves fluid from From to To while one of the modes listed in Flow is
// active in Group. To gains c·mdot·(T_from - T_to); a node at From loses the
// same amount. DeltaMin/DeltaMax bound that difference for the Big-M gate and
// McCormickMin/McCormickMax for the mid band envelope. NominalDelta replaces
// the difference in the linear coarse band. A FrostGuard path carries no flow
// on steps flagged with frost risk.
type Path struct {
	ID           string             `json:"id"`
	From         string             `json:"from"`
	To           string             `json:"to"`
	SpecificHeat float64            `json:"specific_heat"`
	Group        string             `json:"group"`
	Flow         map[string]float64 `json:"flow_kg_s"`
	DeltaMin     float64            `json:"delta_min"`
	DeltaMax     float64            `json:"delta_max"`
	McCormickMin float64            `json:"mccormick_min"`
	McCormickMax float64            `json:"mccormick_max"`
	NominalDelta float64            `json:"nominal_delta"`
	FrostGuard   bool               `json:"frost_guard"`
}

// SetDefaults applies the generic bounds used when none are configured.
func (p *Path) SetDefaults() {
	if p.DeltaMin == 0 && p.DeltaMax == 0 {
		p.DeltaMin, p.DeltaMax = -100, 100
	}
	if p.McCormickMin == 0 && p.McCormickMax == 0 {
		p.McCormickMin, p.McCormickMax = -60, 60
	}
	if p.SpecificHeat == 0 {
		p.SpecificHeat = 4.18
	}
}

// Validate checks the static shape of the path.
func (p Path) Validate() error {
	if p.ID == "" {
		return errors.New("path id is required")
	}
	if p.To == "" || p.To == Ambient {
		return fmt.Errorf("path %s: invalid target %q", p.ID, p.To)
	}
	if p.From == p.To {
		return fmt.Errorf("path %s: loops on %s", p.ID, p.To)
	}
	if p.DeltaMin >= p.DeltaMax || p.McCormickMin >= p.McCormickMax {
		return fmt.Errorf("path %s: empty delta bounds", p.ID)
	}
	if p.SpecificHeat <= 0 {
		return fmt.Errorf("path %s: specific heat must be positive", p.ID)
	}
	for mode, f := range p.Flow {
		if f < 0 {
			return fmt.Errorf("path %s: negative flow in mode %s", p.ID, mode)
		}
	}
	return nil
}
