package model

import (
	"fmt"
	"sort"
)

// SlackWeights are the per-band penalties (per K·h) on comfort violations.
type SlackWeights struct {
	Fine   float64 `json:"fine"`
	Mid    float64 `json:"mid"`
	Coarse float64 `json:"coarse"`
}

// Plant is the complete topology.
type Plant struct {
	Nodes  []Node       `json:"nodes"`
	Paths  []Path       `json:"paths"`
	Groups []ModeGroup  `json:"groups"`
	Slack  SlackWeights `json:"slack_weights"`
}

// SetDefaults installs the built-in hybrid plant when no topology is
// configured and fills per-path and slack defaults.
func (p *Plant) SetDefaults() {
	if len(p.Nodes) == 0 && len(p.Groups) == 0 {
		*p = HybridPlant()
	}
	for i := range p.Paths {
		p.Paths[i].SetDefaults()
	}
	if p.Slack == (SlackWeights{}) {
		p.Slack = SlackWeights{Fine: 500, Mid: 100, Coarse: 20}
	}
}

// Validate checks ids and cross references.
func (p Plant) Validate() error {
	if len(p.Nodes) == 0 {
		return fmt.Errorf("plant has no nodes")
	}
	nodes := map[string]bool{}
	for _, n := range p.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if nodes[n.ID] {
			return fmt.Errorf("duplicate node %s", n.ID)
		}
		nodes[n.ID] = true
	}
	groups := map[string]ModeGroup{}
	for _, g := range p.Groups {
		if err := g.Validate(); err != nil {
			return err
		}
		if _, ok := groups[g.ID]; ok {
			return fmt.Errorf("duplicate group %s", g.ID)
		}
		groups[g.ID] = g
		for _, m := range g.Modes {
			for id := range m.Heat {
				if !nodes[id] {
					return fmt.Errorf("group %s mode %s heats unknown node %s", g.ID, m.Name, id)
				}
			}
		}
	}
	paths := map[string]bool{}
	for _, pa := range p.Paths {
		if err := pa.Validate(); err != nil {
			return err
		}
		if paths[pa.ID] {
			return fmt.Errorf("duplicate path %s", pa.ID)
		}
		paths[pa.ID] = true
		if !nodes[pa.To] || (pa.From != Ambient && !nodes[pa.From]) {
			return fmt.Errorf("path %s references unknown node", pa.ID)
		}
		g, ok := groups[pa.Group]
		if !ok {
			return fmt.Errorf("path %s references unknown group %s", pa.ID, pa.Group)
		}
		for mode := range pa.Flow {
			if _, ok := g.Index(mode); !ok {
				return fmt.Errorf("path %s: group %s has no mode %s", pa.ID, g.ID, mode)
			}
		}
	}
	if p.Slack.Fine < 0 || p.Slack.Mid < 0 || p.Slack.Coarse < 0 {
		return fmt.Errorf("slack weights must not be negative")
	}
	return nil
}

// Node returns the node with the given id.
func (p Plant) Node(id string) (Node, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Group returns the mode group with the given id.
func (p Plant) Group(id string) (ModeGroup, bool) {
	for _, g := range p.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return ModeGroup{}, false
}

// FlowModes returns the mode indices of the path's group that carry flow, in
// mode order, with the matching mass flows.
func (p Plant) FlowModes(pa Path) ([]int, []float64) {
	g, _ := p.Group(pa.Group)
	var idx []int
	var flow []float64
	for i, m := range g.Modes {
		if f := pa.Flow[m.Name]; f > 0 {
			idx = append(idx, i)
			flow = append(flow, f)
		}
	}
	return idx, flow
}

// HeatedNodes returns the sorted ids of nodes receiving fixed mode heat.
func (g ModeGroup) HeatedNodes() []string {
	set := map[string]bool{}
	for _, m := range g.Modes {
		for id := range m.Heat {
			set[id] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
