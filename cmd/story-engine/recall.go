// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/story-engine/internal/recall"
)

const summaryWidth = 60

var recallCmd = &cobra.Command{
	Use:   "recall [idea]",
	Short: "Rank writing patterns for a research idea",
	Long: `Recall scores every pattern in the graph along three paths (similar
ideas, related domains, similar papers), fuses the weighted scores, and
prints the top patterns with each path's contribution.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecall,
}

func runRecall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	g, err := loadGraph(context.Background(), cfg.DataDir)
	if err != nil {
		return err
	}

	idea := strings.Join(args, " ")
	engine := recall.NewEngine(g, cfg.Recall, recall.WithLogger(logger))
	ranked := engine.Recall(idea)

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatRecallOutput(cmd.OutOrStdout(), ranked, jsonOutput)
}

func formatRecallOutput(w io.Writer, ranked []recall.Candidate, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if ranked == nil {
			ranked = []recall.Candidate{}
		}
		return enc.Encode(ranked)
	}

	if len(ranked) == 0 {
		fmt.Fprintln(w, "No patterns recalled.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-12s  %-30s  %-7s  %-13s  %-13s  %-13s  %-7s\n",
		"Rank", "Pattern", "Name", "Score", "Path 1", "Path 2", "Path 3", "Cluster")
	fmt.Fprintln(w, strings.Repeat("-", 116))
	for i, c := range ranked {
		fmt.Fprintf(w, "%-4d  %-12s  %-30s  %-7.4f", i+1, c.PatternID, clip(c.Pattern.Name, 30), c.Score)
		for _, p := range c.PathScores {
			fmt.Fprintf(w, "  %-13s", pathShare(p, c.Score))
		}
		fmt.Fprintf(w, "  %-7d\n", c.Pattern.ClusterSize)
		if c.Pattern.Summary != "" {
			fmt.Fprintf(w, "      %s\n", clip(c.Pattern.Summary, summaryWidth))
		}
	}
	return nil
}

// pathShare formats a path contribution with its share of the total.
func pathShare(part, total float64) string {
	share := 0.0
	if total > 0 {
		share = part / total * 100
	}
	return fmt.Sprintf("%.4f (%.0f%%)", part, share)
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func init() {
	recallCmd.Flags().Bool("json", false, "output candidates as JSON")
	recallCmd.Flags().String("profile", "", "fusion weight profile: full or simplified")
	recallCmd.Flags().Int("top-k", 0, "number of patterns to return")

	_ = viper.BindPFlag("recall.profile", recallCmd.Flags().Lookup("profile"))
	_ = viper.BindPFlag("recall.final_top_k", recallCmd.Flags().Lookup("top-k"))

	rootCmd.AddCommand(recallCmd)
}
