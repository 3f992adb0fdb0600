// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pdiddy/story-engine/internal/similarity"
	"github.com/pdiddy/story-engine/pkg/types"
)

// File names inside a graph data directory.
const (
	IdeaFile    = "nodes_idea.json"
	PatternFile = "nodes_pattern.json"
	DomainFile  = "nodes_domain.json"
	PaperFile   = "nodes_paper.json"
	NodesFile   = "nodes.json"
	EdgesFile   = "edges.json"
)

// LoadDir reads a graph from dir. Per-type node files need no node_type
// field; the combined nodes.json does. Missing files are treated as empty.
// When edges.json is absent the edges are derived with BuildEdges.
func LoadDir(dir string) (*Graph, error) {
	g := New()

	var ideas []types.IdeaNode
	var patterns []types.PatternNode
	var domains []types.DomainNode
	var papers []types.PaperNode
	for name, dst := range map[string]any{
		IdeaFile:    &ideas,
		PatternFile: &patterns,
		DomainFile:  &domains,
		PaperFile:   &papers,
	} {
		if _, err := readJSON(filepath.Join(dir, name), dst); err != nil {
			return nil, err
		}
	}
	for _, n := range ideas {
		g.AddNode(n)
	}
	for _, n := range patterns {
		g.AddNode(n)
	}
	for _, n := range domains {
		g.AddNode(n)
	}
	for _, n := range papers {
		g.AddNode(n)
	}

	var mixed []json.RawMessage
	if _, err := readJSON(filepath.Join(dir, NodesFile), &mixed); err != nil {
		return nil, err
	}
	for i, raw := range mixed {
		n, err := types.UnmarshalNode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", NodesFile, i, err)
		}
		g.AddNode(n)
	}

	var edges []types.Edge
	found, err := readJSON(filepath.Join(dir, EdgesFile), &edges)
	if err != nil {
		return nil, err
	}
	if !found {
		BuildEdges(g, similarity.Jaccard{})
		return g, nil
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	return g, nil
}

// WriteDir writes g to dir as nodes.json (with node_type discriminators)
// and edges.json.
func WriteDir(g *Graph, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating graph directory: %w", err)
	}

	nodes := make([]json.RawMessage, 0, len(g.nodes))
	for _, n := range g.Nodes() {
		data, err := types.MarshalNode(n)
		if err != nil {
			return err
		}
		nodes = append(nodes, data)
	}
	if err := writeJSON(filepath.Join(dir, NodesFile), nodes); err != nil {
		return err
	}
	return WriteEdges(g, dir)
}

// WriteEdges writes the edges of g to dir/edges.json.
func WriteEdges(g *Graph, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating graph directory: %w", err)
	}
	return writeJSON(filepath.Join(dir, EdgesFile), g.Edges())
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
