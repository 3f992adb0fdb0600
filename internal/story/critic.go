// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package story

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/jsonrepair"
	"github.com/pdiddy/story-engine/internal/llm"
	"github.com/pdiddy/story-engine/pkg/types"
)

const (
	// DefaultScore is used when a reviewer's score cannot be read.
	DefaultScore = 5.0

	// FallbackFeedback is used when a reviewer's feedback cannot be read.
	FallbackFeedback = "Review could not be parsed; see the raw model output."
)

// Reviewer is one critique persona.
type Reviewer struct {
	Name         string
	Role         types.ReviewerRole
	Focus        string
	Instructions string
}

// Panel is the reviewer line-up in diagnosis order.
var Panel = []Reviewer{
	{Name: "Reviewer A", Role: types.RoleMethodology, Focus: "technical soundness"},
	{Name: "Reviewer B", Role: types.RoleNovelty, Focus: "novelty", Instructions: noveltyInstructions},
	{Name: "Reviewer C", Role: types.RoleStoryteller, Focus: "narrative completeness"},
}

// issueSuggestions maps each diagnosis to its refinement hints.
var issueSuggestions = map[types.Issue][]string{
	types.IssueNovelty:          {"inject niche techniques to raise novelty", "look for a long-tail pattern"},
	types.IssueStability:        {"inject mature, robust techniques", "add robustness validation"},
	types.IssueInterpretability: {"add visualization analysis", "add a case study"},
	types.IssueDomainMismatch:   {"adjust the domain adaptation method", "add preprocessing steps"},
}

// Critic scores a story with every reviewer in Panel.
type Critic struct {
	client    llm.Client
	params    types.CompletionParams
	passScore float64
	log       *zap.Logger
}

// NewCritic returns a Critic that passes stories whose mean score is at
// least passScore.
func NewCritic(client llm.Client, params types.CompletionParams, passScore float64, log *zap.Logger) *Critic {
	if log == nil {
		log = zap.NewNop()
	}
	return &Critic{client: client, params: params, passScore: passScore, log: log}
}

// Review runs the whole panel over s.
func (c *Critic) Review(ctx context.Context, s types.Story) types.Critique {
	reviews := make([]types.ReviewerScore, 0, len(Panel))
	for _, r := range Panel {
		rs := c.single(ctx, s, r)
		c.log.Info("review",
			zap.String("reviewer", rs.Reviewer),
			zap.String("role", string(rs.Role)),
			zap.Float64("score", rs.Score))
		reviews = append(reviews, rs)
	}
	crit := Aggregate(reviews, c.passScore)
	c.log.Info("critique",
		zap.Float64("avg_score", crit.AvgScore),
		zap.Bool("pass", crit.Pass),
		zap.String("issue", string(crit.MainIssue)))
	return crit
}

// Aggregate averages reviews, applies the pass threshold inclusively, and
// diagnoses the main issue.
func Aggregate(reviews []types.ReviewerScore, passScore float64) types.Critique {
	var sum float64
	for _, r := range reviews {
		sum += r.Score
	}
	var avg float64
	if len(reviews) > 0 {
		avg = sum / float64(len(reviews))
	}
	issue, suggestions := Diagnose(reviews)
	return types.Critique{
		Pass:        len(reviews) > 0 && avg >= passScore,
		AvgScore:    avg,
		Reviews:     reviews,
		MainIssue:   issue,
		Suggestions: suggestions,
	}
}

// Diagnose maps the lowest-scoring reviewer's role to an issue. Ties go
// to the reviewer listed first.
func Diagnose(reviews []types.ReviewerScore) (types.Issue, []string) {
	if len(reviews) == 0 {
		return types.IssueDomainMismatch, issueSuggestions[types.IssueDomainMismatch]
	}
	worst := reviews[0]
	for _, r := range reviews[1:] {
		if r.Score < worst.Score {
			worst = r
		}
	}
	var issue types.Issue
	switch worst.Role {
	case types.RoleNovelty:
		issue = types.IssueNovelty
	case types.RoleMethodology:
		issue = types.IssueStability
	case types.RoleStoryteller:
		issue = types.IssueInterpretability
	default:
		issue = types.IssueDomainMismatch
	}
	return issue, append([]string(nil), issueSuggestions[issue]...)
}

type reviewData struct {
	Reviewer Reviewer
	Story    types.Story
}

type reviewResponse struct {
	Score    types.FlexString `json:"score"`
	Feedback string           `json:"feedback"`
}

func (c *Critic) single(ctx context.Context, s types.Story, r Reviewer) types.ReviewerScore {
	out := types.ReviewerScore{Reviewer: r.Name, Role: r.Role, Score: DefaultScore, Feedback: FallbackFeedback}

	prompt, err := render(reviewPromptTmpl, reviewData{Reviewer: r, Story: s})
	if err != nil {
		c.log.Error("rendering review prompt", zap.Error(err))
		return out
	}
	text, err := c.client.Complete(ctx, prompt, c.params)
	if err != nil {
		c.log.Warn("review completion failed, using default score",
			zap.String("reviewer", r.Name), zap.Error(err))
		return out
	}

	score, feedback := parseReview(text)
	if score >= 0 {
		out.Score = clampScore(score)
	}
	if feedback != "" {
		out.Feedback = feedback
	}
	return out
}

// parseReview reads a score and feedback from text. A negative score
// means none was found.
func parseReview(text string) (float64, string) {
	var resp reviewResponse
	if _, err := jsonrepair.Decode(text, &resp); err == nil {
		score := -1.0
		if v, ok := resp.Score.Float(); ok {
			score = v
		} else if resp.Score == "" {
			score = DefaultScore
		}
		return score, resp.Feedback
	}

	score := -1.0
	if v, ok := jsonrepair.ExtractNumber(text, "score"); ok {
		score = v
	}
	feedback, _ := jsonrepair.ExtractString(text, "feedback")
	return score, feedback
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultScore
	}
	return math.Max(0, math.Min(10, v))
}
