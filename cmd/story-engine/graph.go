// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/graph"
	"github.com/pdiddy/story-engine/internal/similarity"
	"github.com/pdiddy/story-engine/pkg/types"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build, inspect, and export the knowledge graph",
	Long: `Graph manages the heterogeneous knowledge graph of ideas, patterns,
domains, and papers. Node files (nodes_idea.json, nodes_pattern.json,
nodes_domain.json, nodes_paper.json) are read from the data directory.`,
}

// --- import subcommand ---

var graphImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load node and edge files into graph.db",
	Long: `Import reads the node files and edges.json from the data directory
and replaces the contents of graph.db with them. Edges are derived from
the nodes when edges.json is absent.`,
	RunE: runGraphImport,
}

func runGraphImport(cmd *cobra.Command, args []string) error {
	dir := dataDir()
	g, err := graph.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("loading graph files: %w", err)
	}

	store, err := graph.OpenStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, g); err != nil {
		return err
	}
	nodes, edges, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes and %d edges into %s\n",
		nodes, edges, filepath.Join(dir, graph.DBFile))
	return nil
}

// --- build-edges subcommand ---

var graphBuildEdgesCmd = &cobra.Command{
	Use:   "build-edges",
	Short: "Derive all edges from the node files and write edges.json",
	Long: `Build-edges rebuilds every relation (implements, uses_pattern,
in_domain, belongs_to, works_well_in, similar_to_paper) from the node
files, ignoring any existing edges.json, and writes the result.`,
	RunE: runGraphBuildEdges,
}

func runGraphBuildEdges(cmd *cobra.Command, args []string) error {
	dir := dataDir()
	loaded, err := graph.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("loading graph files: %w", err)
	}

	g := graph.New()
	for _, n := range loaded.Nodes() {
		g.AddNode(n)
	}
	graph.BuildEdges(g, similarity.Jaccard{})
	if err := graph.WriteEdges(g, dir); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", filepath.Join(dir, graph.EdgesFile))
	return printStats(cmd.OutOrStdout(), g.Stats(), false)
}

// --- stats subcommand ---

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print node counts per type and edge counts per relation",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(context.Background(), dataDir())
		if err != nil {
			return err
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return printStats(cmd.OutOrStdout(), g.Stats(), jsonOutput)
	},
}

func printStats(w io.Writer, s graph.Stats, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "%-18s  %s\n", "Node type", "Count")
	fmt.Fprintln(w, strings.Repeat("-", 26))
	for _, t := range []types.NodeType{types.NodeIdea, types.NodePattern, types.NodeDomain, types.NodePaper} {
		fmt.Fprintf(w, "%-18s  %d\n", t, s.Nodes[t])
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-18s  %s\n", "Relation", "Count")
	fmt.Fprintln(w, strings.Repeat("-", 26))
	for _, rel := range types.Relations {
		fmt.Fprintf(w, "%-18s  %d\n", rel, s.Edges[rel])
	}
	return nil
}

// --- export subcommand ---

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the graph as nodes.json and edges.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(context.Background(), dataDir())
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if err := graph.WriteDir(g, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported graph to %s\n", out)
		return nil
	},
}

// dataDir returns the configured data directory.
func dataDir() string {
	if d := viper.GetString("data_dir"); d != "" {
		return d
	}
	return types.DefaultConfig().DataDir
}

// loadGraph reads graph.db when it holds nodes and falls back to the JSON
// files in dir otherwise.
func loadGraph(ctx context.Context, dir string) (*graph.Graph, error) {
	dbPath := filepath.Join(dir, graph.DBFile)
	if _, err := os.Stat(dbPath); err == nil {
		store, err := graph.OpenStore(dir)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		g, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", dbPath, err)
		}
		if len(g.Nodes()) > 0 {
			logger.Debug("graph loaded from database", zap.String("path", dbPath))
			return g, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", dbPath, err)
	}

	g, err := graph.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading graph files: %w", err)
	}
	logger.Debug("graph loaded from files", zap.String("dir", dir))
	return g, nil
}

func init() {
	graphStatsCmd.Flags().Bool("json", false, "output statistics as JSON")
	graphExportCmd.Flags().String("out", "export", "directory to write nodes.json and edges.json")

	graphCmd.AddCommand(graphImportCmd, graphBuildEdgesCmd, graphStatsCmd, graphExportCmd)
	rootCmd.AddCommand(graphCmd)
}
