package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/thermompc/core/timegrid"
)

// ErrLength is returned when a forecast does not cover the horizon.
var ErrLength = errors.New("forecast does not cover the horizon")

// Forecast holds one value per step of the full horizon, fine band first.
// Demands are in kW, Ambient in °C and Price per kWh.
type Forecast struct {
	Heat    []float64 `json:"heat"`
	Cool    []float64 `json:"cool"`
	Dry     []float64 `json:"dry"`
	Ambient []float64 `json:"ambient"`
	Price   []float64 `json:"price"`
	// Frost flags the steps with frost risk at the ambient exchanger. It may
	// be shorter than the horizon; missing steps carry no risk.
	Frost []bool `json:"frost,omitempty"`
	// Freeze flags a freeze risk within the fine and mid bands.
	Freeze bool `json:"freeze"`
	// FreezeCoarse flags a freeze or regeneration need in the coarse band.
	FreezeCoarse bool `json:"freeze_coarse"`
}

// Feed delivers the forecast for a grid.
type Feed interface {
	Fetch(ctx context.Context, grid *timegrid.Grid) (Forecast, error)
}

// Validate checks that every series covers n steps.
func (f Forecast) Validate(n int) error {
	for name, s := range map[string][]float64{
		"heat": f.Heat, "cool": f.Cool, "dry": f.Dry, "ambient": f.Ambient, "price": f.Price,
	} {
		if len(s) < n {
			return fmt.Errorf("%w: %s has %d of %d steps", ErrLength, name, len(s), n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (f Forecast) Clone() Forecast {
	cp := func(s []float64) []float64 { return append([]float64(nil), s...) }
	return Forecast{
		Heat: cp(f.Heat), Cool: cp(f.Cool), Dry: cp(f.Dry),
		Ambient: cp(f.Ambient), Price: cp(f.Price),
		Frost:  append([]bool(nil), f.Frost...),
		Freeze: f.Freeze, FreezeCoarse: f.FreezeCoarse,
	}
}

// Constant returns a forecast with the same values at every step.
func Constant(n int, heat, cool, dry, ambient, price float64) Forecast {
	fill := func(v float64) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = v
		}
		return s
	}
	return Forecast{Heat: fill(heat), Cool: fill(cool), Dry: fill(dry), Ambient: fill(ambient), Price: fill(price)}
}

// Static returns a fixed forecast on every fetch.
type Static struct {
	Forecast Forecast
}

// Fetch returns a copy of the configured forecast.
func (s Static) Fetch(_ context.Context, grid *timegrid.Grid) (Forecast, error) {
	if err := s.Forecast.Validate(grid.Len()); err != nil {
		return Forecast{}, err
	}
	return s.Forecast.Clone(), nil
}
