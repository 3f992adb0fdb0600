// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/story-engine/internal/recall"
	"github.com/pdiddy/story-engine/internal/refine"
	"github.com/pdiddy/story-engine/internal/selector"
	"github.com/pdiddy/story-engine/internal/story"
	"github.com/pdiddy/story-engine/internal/verify"
	"github.com/pdiddy/story-engine/pkg/types"
)

type fakeRecaller struct {
	ranked []recall.Candidate
}

func (f fakeRecaller) Recall(string) []recall.Candidate { return f.ranked }

type draftCall struct {
	kind     string
	request  story.Request
	revision story.Revision
}

type fakeDrafter struct {
	calls []draftCall
}

func (f *fakeDrafter) Generate(_ context.Context, req story.Request) types.Story {
	f.calls = append(f.calls, draftCall{kind: "generate", request: req})
	return types.Story{Title: fmt.Sprintf("draft %d", len(f.calls)), MethodSkeleton: "method from " + req.Pattern.ID}
}

func (f *fakeDrafter) Revise(_ context.Context, rev story.Revision) types.Story {
	f.calls = append(f.calls, draftCall{kind: "revise", revision: rev})
	s := rev.Previous
	s.Title = fmt.Sprintf("draft %d", len(f.calls))
	return s
}

func (f *fakeDrafter) kinds() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.kind
	}
	return out
}

// fakeReviewer returns critiques in order and repeats the last one.
type fakeReviewer struct {
	script []types.Critique
	calls  int
}

func (f *fakeReviewer) Review(context.Context, types.Story) types.Critique {
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i]
}

type fakeChecker struct {
	script []verify.Result
	calls  int
}

func (f *fakeChecker) Verify(types.Story) verify.Result {
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i]
}

var clean = verify.Result{Pass: true, MaxSimilarity: 0.1}

func critique(pass bool, issue types.Issue, novelty float64) types.Critique {
	return types.Critique{
		Pass:      pass,
		MainIssue: issue,
		Reviews: []types.ReviewerScore{
			{Reviewer: "Reviewer A", Role: types.RoleMethodology, Score: 7},
			{Reviewer: "Reviewer B", Role: types.RoleNovelty, Score: novelty},
			{Reviewer: "Reviewer C", Role: types.RoleStoryteller, Score: 7},
		},
	}
}

// candidates builds p1..pn with the given cluster sizes.
func candidates(clusters ...int) []recall.Candidate {
	out := make([]recall.Candidate, len(clusters))
	for i, size := range clusters {
		id := fmt.Sprintf("p%d", i+1)
		out[i] = recall.Candidate{
			PatternID: id,
			Score:     float64(len(clusters) - i),
			Pattern: types.PatternNode{
				ID:               id,
				Name:             "Pattern " + id,
				ClusterSize:      size,
				SkeletonExamples: []types.Skeleton{{MethodStory: "method of " + id}},
			},
		}
	}
	return out
}

func defaultRanked() []recall.Candidate {
	return candidates(40, 30, 8, 25, 20, 6, 18, 3, 50, 12)
}

type harness struct {
	drafter  *fakeDrafter
	reviewer *fakeReviewer
	checker  *fakeChecker
	orch     *Orchestrator
}

func newHarness(cfg types.Config, ranked []recall.Candidate, crits []types.Critique, checks ...verify.Result) *harness {
	if len(checks) == 0 {
		checks = []verify.Result{clean}
	}
	h := &harness{
		drafter:  &fakeDrafter{},
		reviewer: &fakeReviewer{script: crits},
		checker:  &fakeChecker{script: checks},
	}
	h.orch = New(fakeRecaller{ranked}, h.drafter, h.reviewer, h.checker, cfg,
		WithSessionIDs(func() string { return "session-1" }))
	return h
}

func TestRunPassesFirstCritique(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(), []types.Critique{critique(true, types.IssueNovelty, 8)})

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	assert.Equal(t, "session-1", res.SessionID)
	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.True(t, res.Success)
	assert.Zero(t, res.Iterations)
	assert.Len(t, res.ReviewHistory, 1)
	assert.Empty(t, res.RefinementHistory)
	assert.False(t, res.NeedsManualReview)
	assert.Equal(t, []string{"generate"}, h.drafter.kinds())
	assert.Equal(t, "p1", h.drafter.calls[0].request.Pattern.ID)
	assert.Empty(t, h.drafter.calls[0].request.Techniques, "initial draft has no injections")
	assert.Equal(t, map[selector.Slot]string{
		selector.Conservative: "p1", selector.Innovative: "p3", selector.CrossDomain: "p2",
	}, res.SelectedPatterns)
	require.NotNil(t, res.FinalStory)
	assert.Equal(t, "draft 1", res.FinalStory.Title)
	assert.Equal(t, "p1", res.FinalPatternID)
	assert.Nil(t, res.Pivot)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestRunTerminationBound(t *testing.T) {
	for maxIter := 0; maxIter <= 4; maxIter++ {
		t.Run(fmt.Sprintf("max_iterations=%d", maxIter), func(t *testing.T) {
			cfg := types.DefaultConfig()
			cfg.Refine.MaxIterations = maxIter
			h := newHarness(cfg, defaultRanked(), []types.Critique{critique(false, types.IssueStability, 7)})

			res, err := h.orch.Run(context.Background(), "idea")
			require.NoError(t, err)

			assert.Equal(t, maxIter+1, h.reviewer.calls)
			assert.Equal(t, maxIter, res.Iterations)
			assert.Len(t, res.RefinementHistory, maxIter)
			assert.True(t, res.NeedsManualReview)
			assert.Equal(t, OutcomeManualReview, res.Outcome)
			assert.False(t, res.Success)
			assert.Equal(t, 1, h.checker.calls, "the last draft is still verified")
		})
	}
}

func TestRunPassAfterRefinement(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(), []types.Critique{
		critique(false, types.IssueInterpretability, 7),
		critique(false, types.IssueStability, 7),
		critique(true, types.IssueStability, 7),
	})

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iterations)
	assert.False(t, res.NeedsManualReview)
	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.Equal(t, []string{"generate", "revise", "revise"}, h.drafter.kinds())

	first := h.drafter.calls[1].revision
	assert.Equal(t, refine.ExplanationNotes, first.Techniques)
	assert.Equal(t, "draft 1", first.Previous.Title)
	assert.Equal(t, types.IssueInterpretability, first.Critique.MainIssue)

	second := h.drafter.calls[2].revision
	require.Len(t, res.RefinementHistory, 2)
	assert.Equal(t, refine.StrategyHead, res.RefinementHistory[1].Strategy)
	assert.Equal(t, res.RefinementHistory[1].Notes, second.Techniques, "revision only receives the round's new notes")
	assert.Equal(t, "draft 2", second.Previous.Title)
}

func TestRunNotesDeduplicated(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(), []types.Critique{
		critique(false, types.IssueInterpretability, 7),
		critique(false, types.IssueInterpretability, 7),
		critique(true, types.IssueInterpretability, 7),
	})

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	require.Len(t, res.RefinementHistory, 2)
	assert.Equal(t, refine.ExplanationNotes, res.RefinementHistory[0].NewNotes)
	assert.Empty(t, res.RefinementHistory[1].NewNotes)
	assert.Empty(t, h.drafter.calls[2].revision.Techniques)
}

func TestRunStallSwitchesPattern(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(), []types.Critique{
		critique(false, types.IssueNovelty, 4.0),
		critique(false, types.IssueNovelty, 4.3),
		critique(true, types.IssueNovelty, 8),
	})

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	assert.Equal(t, []string{"generate", "revise", "generate"}, h.drafter.kinds())
	require.Len(t, res.RefinementHistory, 2)
	assert.Empty(t, res.RefinementHistory[0].SwitchedTo)

	// Round 1 takes the smallest niche cluster in ranks 5-10.
	assert.Equal(t, "p8", res.RefinementHistory[0].PatternID)

	// Round 2 stalls: the least-clustered unused pattern across the list is
	// p6, and the same round's tail injection draws on it.
	switched := res.RefinementHistory[1].SwitchedTo
	assert.Equal(t, "p6", switched)
	assert.Equal(t, "p6", res.RefinementHistory[1].PatternID)
	assert.False(t, res.RefinementHistory[1].Relaxed)
	regen := h.drafter.calls[2].request
	assert.Equal(t, "p6", regen.Pattern.ID)
	assert.Equal(t, types.IssueNovelty, regen.Issue)
	assert.Equal(t, res.RefinementHistory[1].NewNotes, regen.Techniques, "notes were cleared before the switch round")
	assert.Contains(t, regen.Techniques[0], "Pattern p6")
	assert.Equal(t, "p6", res.FinalPatternID)
	assert.Equal(t, []string{"p8", "p6"}, res.UsedPatterns)
}

func TestRunExclusionSetCountsOnlyInjectionsAcrossSwitch(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Refine.MaxIterations = 4
	h := newHarness(cfg, defaultRanked(), []types.Critique{
		critique(false, types.IssueNovelty, 4.0),
		critique(false, types.IssueNovelty, 4.3),
		critique(false, types.IssueStability, 7),
		critique(false, types.IssueNovelty, 5),
		critique(true, types.IssueNovelty, 8),
	})

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	var injected []string
	switches := 0
	for _, r := range res.RefinementHistory {
		if r.SwitchedTo != "" {
			switches++
		}
		require.NotEmpty(t, r.PatternID)
		injected = append(injected, r.PatternID)
	}
	assert.Equal(t, 1, switches)
	assert.Len(t, injected, 4)
	assert.Equal(t, injected, res.UsedPatterns, "the exclusion set holds exactly the injected patterns")

	seen := map[string]bool{}
	for _, id := range injected {
		assert.False(t, seen[id], "pattern %s injected twice", id)
		seen[id] = true
	}
}

func TestRunNoStallWhenNoveltyImproves(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(), []types.Critique{
		critique(false, types.IssueNovelty, 4.0),
		critique(false, types.IssueNovelty, 4.6),
		critique(true, types.IssueNovelty, 8),
	})

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	assert.Equal(t, []string{"generate", "revise", "revise"}, h.drafter.kinds())
	for _, r := range res.RefinementHistory {
		assert.Empty(t, r.SwitchedTo)
	}
}

func TestRunNoStallAcrossDifferentIssues(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(), []types.Critique{
		critique(false, types.IssueNovelty, 4.0),
		critique(false, types.IssueStability, 4.0),
		critique(false, types.IssueNovelty, 4.0),
		critique(true, types.IssueNovelty, 8),
	})

	_, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)
	assert.Equal(t, []string{"generate", "revise", "revise", "revise"}, h.drafter.kinds())
}

func TestRunExclusionSetMatchesInjections(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Refine.MaxIterations = 6
	h := newHarness(cfg, defaultRanked(), []types.Critique{
		critique(false, types.IssueStability, 7),
		critique(false, types.IssueNovelty, 4),
		critique(false, types.IssueStability, 7),
		critique(false, types.IssueNovelty, 6),
		critique(false, types.IssueStability, 7),
		critique(false, types.IssueNovelty, 8),
		critique(false, types.IssueStability, 7),
	})

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	var injected []string
	for _, r := range res.RefinementHistory {
		require.Empty(t, r.SwitchedTo)
		require.NotEmpty(t, r.PatternID)
		injected = append(injected, r.PatternID)
	}
	assert.Len(t, injected, 6)
	assert.Equal(t, injected, res.UsedPatterns)

	seen := map[string]bool{}
	for _, id := range injected {
		assert.False(t, seen[id], "pattern %s injected twice", id)
		seen[id] = true
	}
}

func TestRunNoPattern(t *testing.T) {
	h := newHarness(types.DefaultConfig(), nil, []types.Critique{critique(true, "", 8)})

	res, err := h.orch.Run(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPattern))
	require.NotNil(t, res)
	assert.Equal(t, OutcomeNoPattern, res.Outcome)
	assert.False(t, res.Success)
	assert.Empty(t, res.SelectedPatterns)
	assert.Empty(t, h.drafter.calls)
	assert.Zero(t, h.reviewer.calls)
	assert.Zero(t, h.checker.calls)
}

func collision(title string) verify.Result {
	return verify.Result{
		Collision:     true,
		MaxSimilarity: 0.9,
		Matches:       []verify.Match{{PaperID: "x", Title: title, Similarity: 0.9}},
	}
}

func TestRunPivotOnCollision(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(),
		[]types.Critique{critique(true, types.IssueNovelty, 8)},
		collision("Prior Work"), clean)

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	assert.Equal(t, 2, h.checker.calls)
	require.NotNil(t, res.Pivot)
	assert.Equal(t, selector.Innovative, res.Pivot.Slot)
	assert.Equal(t, "p3", res.Pivot.PatternID)
	assert.Equal(t, verify.PivotConstraints(collision("Prior Work")), res.Pivot.Constraints)

	require.Equal(t, []string{"generate", "generate"}, h.drafter.kinds())
	assert.Equal(t, res.Pivot.Constraints, h.drafter.calls[1].request.Constraints)
	assert.Equal(t, "p3", h.drafter.calls[1].request.Pattern.ID)

	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.False(t, res.Verification.Collision)
	assert.Equal(t, "p3", res.FinalPatternID)
}

func TestRunPivotOnlyOnce(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(),
		[]types.Critique{critique(true, types.IssueNovelty, 8)},
		collision("Prior Work"))

	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	assert.Equal(t, 2, h.checker.calls)
	assert.Equal(t, OutcomeCollision, res.Outcome)
	assert.False(t, res.Success)
	assert.True(t, res.Verification.Collision)
}

func TestRunPivotFallsBackToCrossDomain(t *testing.T) {
	sel := selector.Selection{
		{Slot: selector.Conservative, Candidate: candidates(40)[0]},
		{Slot: selector.CrossDomain, Candidate: candidates(40, 30)[1]},
	}
	h := newHarness(types.DefaultConfig(), defaultRanked(),
		[]types.Critique{critique(true, types.IssueNovelty, 8)},
		collision("Prior Work"), clean)
	s := &session{Result: &Result{}, current: sel[0].Candidate, log: h.orch.log}

	h.orch.verifyAndPivot(context.Background(), s, sel)
	require.NotNil(t, s.Pivot)
	assert.Equal(t, selector.CrossDomain, s.Pivot.Slot)
	assert.Equal(t, "p2", s.Pivot.PatternID)
}

func TestWriteReport(t *testing.T) {
	h := newHarness(types.DefaultConfig(), defaultRanked(), []types.Critique{
		critique(false, types.IssueNovelty, 4),
		critique(true, types.IssueNovelty, 8),
	})
	res, err := h.orch.Run(context.Background(), "idea")
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteReport(dir, res, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, FinalStoryFile),
		filepath.Join(dir, ResultJSONFile),
		filepath.Join(dir, ResultYAMLFile),
	}, paths)

	data, err := os.ReadFile(filepath.Join(dir, FinalStoryFile))
	require.NoError(t, err)
	var s types.Story
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, *res.FinalStory, s)

	data, err = os.ReadFile(filepath.Join(dir, ResultJSONFile))
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "session-1", generic["session_id"])
	assert.Equal(t, "passed", generic["outcome"])
	history := generic["refinement_history"].([]any)
	require.Len(t, history, 1)
	round := history[0].(map[string]any)
	assert.Equal(t, "tail", round["strategy"], "injection fields are flattened into the round")

	data, err = os.ReadFile(filepath.Join(dir, ResultYAMLFile))
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, "session-1", fromYAML["session_id"])
	assert.Equal(t, false, fromYAML["needs_manual_review"])
}

func TestWriteReportWithoutYAML(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteReport(dir, &Result{SessionID: "s", Outcome: OutcomeNoPattern}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, ResultJSONFile)}, paths)
	_, err = os.Stat(filepath.Join(dir, ResultYAMLFile))
	assert.True(t, os.IsNotExist(err))
}
