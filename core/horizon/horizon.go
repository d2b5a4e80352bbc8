// Package horizon couples the fine, mid and coarse band models into one
// mixed-integer program per control cycle.
package horizon

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/thermompc/core/forecast"
	"github.com/kilianp07/thermompc/core/logger"
	"github.com/kilianp07/thermompc/core/measurement"
	"github.com/kilianp07/thermompc/core/milp"
	"github.com/kilianp07/thermompc/core/model"
	"github.com/kilianp07/thermompc/core/network"
	"github.com/kilianp07/thermompc/core/timegrid"
	"github.com/kilianp07/thermompc/core/warmstart"
)

// ErrPartialHorizon reports that the coarse band was left out. It is
// informational.
var ErrPartialHorizon = errors.New("coarse band not included")

// Horizon is the composed model of one cycle. Mid and Coarse are nil when
// the band is absent.
type Horizon struct {
	Model  *milp.Model
	Fine   *network.Band
	Mid    *network.Band
	Coarse *network.Band
	// Warm is the translated warm start, NaN where unknown. Nil means cold.
	Warm []float64
}

// Bands returns the present bands in time order.
func (h *Horizon) Bands() []*network.Band {
	out := []*network.Band{h.Fine}
	if h.Mid != nil {
		out = append(out, h.Mid)
	}
	if h.Coarse != nil {
		out = append(out, h.Coarse)
	}
	return out
}

// Composer builds horizons for a fixed plant and grid.
type Composer struct {
	Plant *model.Plant
	Grid  *timegrid.Grid
	// McCormickParts overrides the mid band partition count when positive.
	McCormickParts int
	log            logger.Logger
}

// NewComposer returns a composer.
func NewComposer(plant *model.Plant, grid *timegrid.Grid, parts int, log logger.Logger) *Composer {
	return &Composer{Plant: plant, Grid: grid, McCormickParts: parts, log: log}
}

// Options returns the encoding of band kind.
func (c *Composer) Options(kind timegrid.BandKind) network.Options {
	opt := network.DefaultOptions(kind, c.Plant.Slack)
	if kind == timegrid.Mid && c.McCormickParts > 0 {
		opt.McCormickParts = c.McCormickParts
	}
	return opt
}

// Inputs slices fc per band.
func (c *Composer) Inputs(fc forecast.Forecast) map[timegrid.BandKind]network.Inputs {
	return map[timegrid.BandKind]network.Inputs{
		timegrid.Fine:   network.InputsFor(fc, c.Grid.Fine),
		timegrid.Mid:    network.InputsFor(fc, c.Grid.Mid),
		timegrid.Coarse: network.InputsFor(fc, c.Grid.Coarse),
	}
}

// Compose builds the horizon from the measured state. hints are the modes
// expected right after the fine band; groups without a hint use the
// measured mode. warm may be nil.
func (c *Composer) Compose(state measurement.Snapshot, fc forecast.Forecast, hints map[string]int, warm *warmstart.Record) (*Horizon, error) {
	if err := fc.Validate(c.Grid.Len()); err != nil {
		return nil, err
	}
	in := c.Inputs(fc)
	m := milp.New()
	h := &Horizon{Model: m}

	h.Fine = network.New(c.Grid.Fine, c.Plant, in[timegrid.Fine], c.Options(timegrid.Fine))
	if err := h.Fine.Build(m); err != nil {
		return nil, err
	}
	h.Fine.FixStart(state.Temps)
	for _, g := range c.Plant.Groups {
		h.Fine.LinkStartModes(g.ID, network.OneHot(len(g.Modes), c.mode(g, state.Modes)))
		end := c.mode(g, state.Modes)
		if v, ok := hints[g.ID]; ok && v >= 0 && v < len(g.Modes) {
			end = v
		}
		h.Fine.LinkEndModes(g.ID, network.OneHot(len(g.Modes), end))
	}
	prev := h.Fine

	if c.Grid.Mid.Len() > 0 {
		h.Mid = network.New(c.Grid.Mid, c.Plant, in[timegrid.Mid], c.Options(timegrid.Mid))
		if err := h.Mid.Build(m); err != nil {
			return nil, err
		}
		c.link(m, prev, h.Mid)
		last := prev.Steps() - 1
		for _, g := range c.Plant.Groups {
			h.Mid.LinkStartModes(g.ID, prev.ModeExprs(g.ID, last))
		}
		prev = h.Mid
	}

	switch {
	case c.Grid.Coarse.Len() == 0:
	case !fc.FreezeCoarse:
		c.log.Debugf("horizon: %v: no freeze or regeneration need", ErrPartialHorizon)
	default:
		h.Coarse = network.New(c.Grid.Coarse, c.Plant, in[timegrid.Coarse], c.Options(timegrid.Coarse))
		if err := h.Coarse.Build(m); err != nil {
			return nil, err
		}
		c.link(m, prev, h.Coarse)
	}

	if warm != nil {
		h.Warm = Translate(m, warm)
	}
	return h, nil
}

func (c *Composer) mode(g model.ModeGroup, modes map[string]int) int {
	if v, ok := modes[g.ID]; ok && v >= 0 && v < len(g.Modes) {
		return v
	}
	return g.Default
}

// link ties the first point of next to the last point of prev, block by
// block when the counts agree and on block means otherwise.
func (c *Composer) link(m *milp.Model, prev, next *network.Band) {
	last := prev.Steps()
	for _, node := range c.Plant.Nodes {
		pb, nb := prev.Vars.Temp[node.ID], next.Vars.Temp[node.ID]
		name := fmt.Sprintf("link.%s.%s.%s", prev.Kind, next.Kind, node.ID)
		if len(pb) == len(nb) {
			for k := range nb {
				m.AddEQ(fmt.Sprintf("%s.%d", name, k), milp.V(nb[k][0]), milp.V(pb[k][last]))
			}
			continue
		}
		m.AddEQ(name, next.PointExpr(node.ID, 0), prev.PointExpr(node.ID, last))
	}
}

// Translate maps a warm-start record onto the variables of m. Mode and
// temperature variables found in the record get its value; everything else
// is NaN.
func Translate(m *milp.Model, rec *warmstart.Record) []float64 {
	out := make([]float64, len(m.Vars))
	for i, v := range m.Vars {
		out[i] = math.NaN()
		tag := v.Tag
		switch tag.Role {
		case milp.RoleMode:
			if val, ok := rec.Mode(warmstart.ModeKey{Band: tag.Band, Group: tag.Group, Mode: tag.Mode, Step: tag.Step}); ok {
				out[i] = val
			}
		case milp.RoleTemperature:
			if val, ok := rec.Temp(warmstart.TempKey{Band: tag.Band, Node: tag.Node, Block: tag.Block, Point: tag.Step}); ok {
				out[i] = val
			}
		}
	}
	return out
}
