package model

func ptr(v float64) *float64 { return &v }

// HybridPlant is the reference installation: a heat pump between a heat
// store and four cold-side sources (cold store, regeneration store, ice store
// and an ambient air exchanger) with a seasonal ground store regenerating the
// low-temperature side. The ice store is charged from the heat store and
// discharged into the evaporator loop. The ambient exchanger is closed on
// frost steps.
func HybridPlant() Plant {
	const water, brine = 4.18, 3.56
	stage := func(name string, f float64) Mode {
		return Mode{Name: name, Power: 15 * f, Heat: map[string]float64{"hp_ht": 60 * f, "hp_lt": -45 * f}}
	}
	return Plant{
		Nodes: []Node{
			{ID: "hp_ht", Mass: 800, SpecificHeat: water, Min: 25, Max: 55, HardMax: ptr(60), Default: 45},
			{ID: "hp_lt", Mass: 800, SpecificHeat: brine, Min: -10, Max: 25, HardMin: ptr(-15), Default: 10},
			{ID: "hs", Mass: 6000, SpecificHeat: water, Min: 33, Max: 40, Loss: 0.05, RefTemp: 20, Demand: DemandHeat, Default: 35},
			{ID: "cs", Mass: 6000, SpecificHeat: water, Min: 10, Max: 18, Loss: 0.05, RefTemp: 20, Demand: DemandCool, Default: 14},
			{ID: "rlts", Mass: 4000, SpecificHeat: water, Min: 6, Max: 18, Loss: 0.05, RefTemp: 20, Demand: DemandDry, Default: 12},
			{ID: "hxa", Mass: 400, SpecificHeat: brine, Min: -20, Max: 40, Loss: 0.2, RefAmbient: true, Default: 20},
			{ID: "is", Mass: 9000, SpecificHeat: water, Min: -3, Max: 15, HardMin: ptr(-8), Loss: 0.05, RefTemp: 8, Blocks: 3, Conductance: 2, Default: 0.5},
			{ID: "gs", Mass: 180000, SpecificHeat: brine, Min: -5, Max: 25, Loss: 0.5, RefTemp: 10, Blocks: 3, Conductance: 4, Default: 10},
		},
		Groups: []ModeGroup{
			{ID: "hp", SwitchCost: 1, Modes: []Mode{
				{Name: "off"}, stage("s1", 0.25), stage("s2", 0.5), stage("s3", 0.75), stage("s4", 1),
			}},
			{ID: "ht_route", SwitchCost: 0.01, Modes: []Mode{{Name: "off"}, {Name: "hs", Power: 0.3}}},
			{ID: "lt_route", SwitchCost: 0.01, Modes: []Mode{
				{Name: "off"}, {Name: "cs", Power: 0.4}, {Name: "rlts", Power: 0.4}, {Name: "hxa", Power: 0.4}, {Name: "gs", Power: 0.6},
			}},
			{ID: "hxa_fan", SwitchCost: 0.1, Modes: []Mode{{Name: "off"}, {Name: "on", Power: 0.8}}},
			{ID: "is_route", SwitchCost: 0.01, Modes: []Mode{{Name: "off"}, {Name: "charge", Power: 0.25}, {Name: "discharge", Power: 0.25}}},
			{ID: "regen", SwitchCost: 0.005, Modes: []Mode{{Name: "off"}, {Name: "on", Power: 0.2}}},
		},
		Paths: []Path{
			{ID: "hp_hs", From: "hp_ht", To: "hs", SpecificHeat: water, Group: "ht_route", Flow: map[string]float64{"hs": 2.5}, NominalDelta: 8},
			{ID: "cs_hp", From: "cs", To: "hp_lt", SpecificHeat: water, Group: "lt_route", Flow: map[string]float64{"cs": 2.5}, NominalDelta: 6},
			{ID: "rlts_hp", From: "rlts", To: "hp_lt", SpecificHeat: water, Group: "lt_route", Flow: map[string]float64{"rlts": 2.5}, NominalDelta: 6},
			{ID: "hxa_hp", From: "hxa", To: "hp_lt", SpecificHeat: brine, Group: "lt_route", Flow: map[string]float64{"hxa": 3}, NominalDelta: 5, FrostGuard: true},
			{ID: "gs_hp", From: "gs", To: "hp_lt", SpecificHeat: brine, Group: "lt_route", Flow: map[string]float64{"gs": 3}, NominalDelta: 5},
			{ID: "air_hxa", From: Ambient, To: "hxa", SpecificHeat: 1.0, Group: "hxa_fan", Flow: map[string]float64{"on": 8}, NominalDelta: 4},
			{ID: "hs_is", From: "hs", To: "is", SpecificHeat: water, Group: "is_route", Flow: map[string]float64{"charge": 1.5}, NominalDelta: 10},
			{ID: "is_hp", From: "is", To: "hp_lt", SpecificHeat: water, Group: "is_route", Flow: map[string]float64{"discharge": 2.5}, NominalDelta: 4},
			{ID: "gs_rlts", From: "gs", To: "rlts", SpecificHeat: brine, Group: "regen", Flow: map[string]float64{"on": 1.5}, NominalDelta: -3},
		},
	}
}
