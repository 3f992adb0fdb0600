// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graph holds the heterogeneous pattern graph: idea, pattern,
// domain, and paper nodes joined by typed, weighted, directed edges.
// A Graph is populated once (from JSON files, the SQLite store, or the
// edge builder) and is read-only while recall and refinement run.
package graph

import (
	"slices"

	"github.com/pdiddy/story-engine/pkg/types"
)

type edgeKey struct {
	source, target string
	rel            types.Relation
}

// Graph is an in-memory index over nodes and edges. Iteration order of
// nodes and edges is insertion order, so results built from it are
// deterministic.
type Graph struct {
	nodes    map[string]types.Node
	ideas    []string
	patterns []string
	domains  []string
	papers   []string

	edges   []types.Edge
	edgeIdx map[edgeKey]int
	out     map[string][]int
	in      map[string][]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]types.Node),
		edgeIdx: make(map[edgeKey]int),
		out:     make(map[string][]int),
		in:      make(map[string][]int),
	}
}

// AddNode inserts n. A node whose id is already present replaces the
// earlier one. It keeps its position unless its type changed, in which
// case it moves to the end of the new type's list.
func (g *Graph) AddNode(n types.Node) {
	id := n.NodeID()
	prev, ok := g.nodes[id]
	if ok && prev.NodeType() != n.NodeType() {
		list := g.typeList(prev.NodeType())
		*list = slices.DeleteFunc(*list, func(s string) bool { return s == id })
		ok = false
	}
	if !ok {
		if list := g.typeList(n.NodeType()); list != nil {
			*list = append(*list, id)
		}
	}
	g.nodes[id] = n
}

func (g *Graph) typeList(t types.NodeType) *[]string {
	switch t {
	case types.NodeIdea:
		return &g.ideas
	case types.NodePattern:
		return &g.patterns
	case types.NodeDomain:
		return &g.domains
	case types.NodePaper:
		return &g.papers
	}
	return nil
}

// AddEdge inserts e. At most one edge exists per (source, target, relation);
// adding it again replaces the attributes.
func (g *Graph) AddEdge(e types.Edge) {
	key := edgeKey{e.Source, e.Target, e.Relation()}
	if i, ok := g.edgeIdx[key]; ok {
		g.edges[i] = e
		return
	}
	i := len(g.edges)
	g.edges = append(g.edges, e)
	g.edgeIdx[key] = i
	g.out[e.Source] = append(g.out[e.Source], i)
	g.in[e.Target] = append(g.in[e.Target], i)
}

// HasNode reports whether id names a node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the node with id.
func (g *Graph) Node(id string) (types.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Pattern returns the pattern node with id.
func (g *Graph) Pattern(id string) (types.PatternNode, bool) {
	n, ok := g.nodes[id].(types.PatternNode)
	return n, ok
}

// Paper returns the paper node with id.
func (g *Graph) Paper(id string) (types.PaperNode, bool) {
	n, ok := g.nodes[id].(types.PaperNode)
	return n, ok
}

// Domain returns the domain node with id.
func (g *Graph) Domain(id string) (types.DomainNode, bool) {
	n, ok := g.nodes[id].(types.DomainNode)
	return n, ok
}

// Idea returns the idea node with id.
func (g *Graph) Idea(id string) (types.IdeaNode, bool) {
	n, ok := g.nodes[id].(types.IdeaNode)
	return n, ok
}

// Ideas returns idea nodes in insertion order.
func (g *Graph) Ideas() []types.IdeaNode { return collect[types.IdeaNode](g, g.ideas) }

// Patterns returns pattern nodes in insertion order.
func (g *Graph) Patterns() []types.PatternNode { return collect[types.PatternNode](g, g.patterns) }

// Domains returns domain nodes in insertion order.
func (g *Graph) Domains() []types.DomainNode { return collect[types.DomainNode](g, g.domains) }

// Papers returns paper nodes in insertion order.
func (g *Graph) Papers() []types.PaperNode { return collect[types.PaperNode](g, g.papers) }

func collect[T types.Node](g *Graph, ids []string) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.nodes[id].(T); ok {
			out = append(out, n)
		}
	}
	return out
}

// NeighborsOut returns edges leaving id with relation rel. An unknown id
// yields an empty slice.
func (g *Graph) NeighborsOut(id string, rel types.Relation) []types.Edge {
	return g.filter(g.out[id], rel)
}

// NeighborsIn returns edges entering id with relation rel. An unknown id
// yields an empty slice.
func (g *Graph) NeighborsIn(id string, rel types.Relation) []types.Edge {
	return g.filter(g.in[id], rel)
}

func (g *Graph) filter(idx []int, rel types.Relation) []types.Edge {
	var out []types.Edge
	for _, i := range idx {
		if g.edges[i].Relation() == rel {
			out = append(out, g.edges[i])
		}
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []types.Edge {
	out := make([]types.Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Nodes returns all nodes grouped by type: ideas, patterns, domains, papers.
func (g *Graph) Nodes() []types.Node {
	out := make([]types.Node, 0, len(g.nodes))
	for _, ids := range [][]string{g.ideas, g.patterns, g.domains, g.papers} {
		for _, id := range ids {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// Stats counts nodes per type and edges per relation.
type Stats struct {
	Nodes map[types.NodeType]int `json:"nodes" yaml:"nodes"`
	Edges map[types.Relation]int `json:"edges" yaml:"edges"`
}

// Stats summarizes the graph.
func (g *Graph) Stats() Stats {
	s := Stats{
		Nodes: map[types.NodeType]int{
			types.NodeIdea:    len(g.ideas),
			types.NodePattern: len(g.patterns),
			types.NodeDomain:  len(g.domains),
			types.NodePaper:   len(g.papers),
		},
		Edges: make(map[types.Relation]int, len(types.Relations)),
	}
	for _, rel := range types.Relations {
		s.Edges[rel] = 0
	}
	for _, e := range g.edges {
		s.Edges[e.Relation()]++
	}
	return s
}
