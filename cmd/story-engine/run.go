// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/llm"
	"github.com/pdiddy/story-engine/internal/pipeline"
	"github.com/pdiddy/story-engine/internal/recall"
	"github.com/pdiddy/story-engine/internal/story"
	"github.com/pdiddy/story-engine/internal/verify"
)

var runCmd = &cobra.Command{
	Use:   "run [idea]",
	Short: "Turn a research idea into a reviewed paper story",
	Long: `Run recalls patterns for the idea, selects conservative, innovative,
and cross-domain candidates, drafts a story from the conservative one, and
refines it under three simulated reviewers. Refinement injects techniques
from long-tail patterns for novelty and from mature patterns for
stability; stalled novelty switches the whole session to a fresh pattern.
The final story is checked against sampled papers and regenerated once
from another pattern on collision.

Without an API key (or with --offline) the session runs on deterministic
defaults. Results are written to final_story.json and pipeline_result.json
in the output directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	ctx := context.Background()
	g, err := loadGraph(ctx, cfg.DataDir)
	if err != nil {
		return err
	}

	offline, _ := cmd.Flags().GetBool("offline")
	client := llm.New(cfg.LLM, offline, logger)

	orch := pipeline.New(
		recall.NewEngine(g, cfg.Recall, recall.WithLogger(logger)),
		story.NewGenerator(client, cfg.Story.Generate, logger),
		story.NewCritic(client, cfg.Story.Critique, cfg.Refine.PassScore, logger),
		verify.NewVerifier(g.Papers(), cfg.Verify, verify.WithLogger(logger)),
		cfg,
		pipeline.WithLogger(logger),
	)

	res, runErr := orch.Run(ctx, strings.Join(args, " "))
	if runErr != nil && !errors.Is(runErr, pipeline.ErrNoPattern) {
		return runErr
	}

	withYAML, _ := cmd.Flags().GetBool("yaml")
	paths, err := pipeline.WriteReport(cfg.OutputDir, res, withYAML)
	if err != nil {
		return err
	}
	logger.Debug("report written", zap.Strings("paths", paths))

	printSummary(cmd.OutOrStdout(), res, paths)
	return runErr
}

func printSummary(w io.Writer, res *pipeline.Result, paths []string) {
	fmt.Fprintf(w, "Session:    %s\n", res.SessionID)
	fmt.Fprintf(w, "Outcome:    %s\n", res.Outcome)
	fmt.Fprintf(w, "Iterations: %d\n", res.Iterations)
	if n := len(res.ReviewHistory); n > 0 {
		fmt.Fprintf(w, "Score:      %.2f\n", res.ReviewHistory[n-1].AvgScore)
	}
	if res.FinalPatternID != "" {
		fmt.Fprintf(w, "Pattern:    %s\n", res.FinalPatternID)
	}
	if res.Verification != nil {
		fmt.Fprintf(w, "Collision:  %t (max similarity %.3f)\n", res.Verification.Collision, res.Verification.MaxSimilarity)
	}
	if res.FinalStory != nil {
		fmt.Fprintf(w, "Title:      %s\n", res.FinalStory.Title)
	}
	for _, p := range paths {
		fmt.Fprintf(w, "Wrote %s\n", p)
	}
}

func init() {
	runCmd.Flags().Bool("offline", false, "run without calling the LLM")
	runCmd.Flags().Bool("yaml", false, "also write pipeline_result.yaml")
	runCmd.Flags().String("output-dir", "", "directory for final_story.json and pipeline_result.json")
	runCmd.Flags().Int("max-iterations", 0, "maximum refinement rounds")

	_ = viper.BindPFlag("output_dir", runCmd.Flags().Lookup("output-dir"))
	_ = viper.BindPFlag("refine.max_iterations", runCmd.Flags().Lookup("max-iterations"))

	rootCmd.AddCommand(runCmd)
}
