package graph

import (
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// NodeInfo describes one node of a compiled graph.
type NodeInfo struct {
	Name         string   `json:"name" yaml:"name"`
	Destinations []string `json:"destinations,omitempty" yaml:"destinations,omitempty"`
}

// EdgeInfo describes one possible transition.
type EdgeInfo struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`

	// Conditional is set for router and goto transitions, which are taken
	// only when chosen at run time.
	Conditional bool `json:"conditional,omitempty" yaml:"conditional,omitempty"`

	// Label is "goto" for declared node destinations, empty otherwise.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// GraphStructure is a static description of a compiled graph. Nodes are in
// registration order; edges are grouped by source in the same order, START first.
type GraphStructure struct {
	Nodes []NodeInfo `json:"nodes" yaml:"nodes"`
	Edges []EdgeInfo `json:"edges" yaml:"edges"`
}

// Structure describes the nodes and transitions of the graph.
func (c *CompiledGraph) Structure() *GraphStructure {
	s := &GraphStructure{
		Nodes: make([]NodeInfo, 0, len(c.order)),
	}
	for _, name := range c.order {
		s.Nodes = append(s.Nodes, NodeInfo{
			Name:         name,
			Destinations: slices.Clone(c.nodes[name].Destinations),
		})
	}

	for _, from := range append([]string{START}, c.order...) {
		for _, to := range c.edges[from] {
			s.Edges = append(s.Edges, EdgeInfo{From: from, To: to})
		}
		for _, b := range c.branches[from] {
			for _, to := range b.destinations {
				s.Edges = append(s.Edges, EdgeInfo{From: from, To: to, Conditional: true})
			}
		}
		if n := c.nodes[from]; n != nil {
			for _, to := range n.Destinations {
				s.Edges = append(s.Edges, EdgeInfo{From: from, To: to, Conditional: true, Label: "goto"})
			}
		}
	}
	return s
}

// JSON encodes the structure as indented JSON.
func (s *GraphStructure) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph structure: %w", err)
	}
	return data, nil
}

// YAML encodes the structure as YAML.
func (s *GraphStructure) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph structure: %w", err)
	}
	return data, nil
}

// references reports whether any edge points at node.
func (s *GraphStructure) references(node string) bool {
	for _, e := range s.Edges {
		if e.To == node {
			return true
		}
	}
	return false
}

// outgoing returns the edges leaving node.
func (s *GraphStructure) outgoing(node string) []EdgeInfo {
	var out []EdgeInfo
	for _, e := range s.Edges {
		if e.From == node {
			out = append(out, e)
		}
	}
	return out
}
