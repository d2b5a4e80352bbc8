package forecast

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/kilianp07/thermompc/core/timegrid"
)

// SimConfig parameterises the simulated source.
type SimConfig struct {
	Seed         int64   `json:"seed"`
	MeanAmbient  float64 `json:"mean_ambient"`
	DailySwing   float64 `json:"daily_swing"`
	Noise        float64 `json:"noise"`
	Price        float64 `json:"price"`
	HeatBase     float64 `json:"heat_base_kw"`
	HeatPerK     float64 `json:"heat_kw_per_k"`
	HeatingLimit float64 `json:"heating_limit"`
	CoolPerK     float64 `json:"cool_kw_per_k"`
	CoolingLimit float64 `json:"cooling_limit"`
	Dry          float64 `json:"dry_kw"`
	// FrostLimit is the ambient temperature at or below which a step is
	// flagged with frost risk.
	FrostLimit float64 `json:"frost_limit"`
}

// SetDefaults fills a mild shoulder-season profile.
func (c *SimConfig) SetDefaults() {
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.DailySwing == 0 {
		c.DailySwing = 5
	}
	if c.MeanAmbient == 0 {
		c.MeanAmbient = 8
	}
	if c.Price == 0 {
		c.Price = 0.16
	}
	if c.HeatPerK == 0 {
		c.HeatPerK = 1.5
	}
	if c.HeatingLimit == 0 {
		c.HeatingLimit = 16
	}
	if c.CoolPerK == 0 {
		c.CoolPerK = 1
	}
	if c.CoolingLimit == 0 {
		c.CoolingLimit = 22
	}
}

// Sim generates deterministic profiles from a seed. The same seed and start
// time always give the same forecast.
type Sim struct {
	Config SimConfig
	Now    func() time.Time
}

// NewSim returns a simulated source.
func NewSim(cfg SimConfig) *Sim {
	cfg.SetDefaults()
	return &Sim{Config: cfg, Now: time.Now}
}

// Fetch implements Feed.
func (s *Sim) Fetch(_ context.Context, grid *timegrid.Grid) (Forecast, error) {
	cfg := s.Config
	rng := rand.New(rand.NewSource(cfg.Seed))
	t := s.Now().Truncate(time.Minute)
	n := grid.Len()
	f := Forecast{
		Heat: make([]float64, n), Cool: make([]float64, n), Dry: make([]float64, n),
		Ambient: make([]float64, n), Price: make([]float64, n),
	}
	for i, st := range grid.Steps() {
		hour := float64(t.Hour()) + float64(t.Minute())/60
		amb := cfg.MeanAmbient + cfg.DailySwing*math.Sin(2*math.Pi*(hour-9)/24) + cfg.Noise*rng.NormFloat64()
		f.Ambient[i] = amb
		f.Heat[i] = cfg.HeatBase + cfg.HeatPerK*math.Max(0, cfg.HeatingLimit-amb)
		f.Cool[i] = cfg.CoolPerK * math.Max(0, amb-cfg.CoolingLimit)
		f.Dry[i] = cfg.Dry
		f.Price[i] = cfg.Price
		t = t.Add(st.Duration)
	}
	f.Frost = FrostSteps(f.Ambient, cfg.FrostLimit)
	f.Freeze, f.FreezeCoarse = FreezeFlags(grid, f.Ambient)
	return f, nil
}

// FrostSteps flags every step whose ambient temperature is at or below limit.
func FrostSteps(ambient []float64, limit float64) []bool {
	out := make([]bool, len(ambient))
	for i, a := range ambient {
		out[i] = a <= limit
	}
	return out
}

// FreezeFlags derives the freeze flags from the ambient series: a mean at or
// below 0 °C over the fine and mid bands sets Freeze, over the coarse band
// FreezeCoarse.
func FreezeFlags(grid *timegrid.Grid, ambient []float64) (bool, bool) {
	near := grid.Fine.Len() + grid.Mid.Len()
	freeze := meanAtMostZero(ambient[:near])
	coarse := grid.Coarse.Len() > 0 && meanAtMostZero(ambient[near:near+grid.Coarse.Len()])
	return freeze, coarse
}

func meanAtMostZero(xs []float64) bool {
	if len(xs) == 0 {
		return false
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s/float64(len(xs)) <= 0
}
