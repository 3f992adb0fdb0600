// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one idea through recall, selection, and the
// generate, critique, refine, and verify loop.
//
// The loop drafts a story from the conservative pattern, then alternates
// critique and refinement until a critique passes or the refinement
// budget runs out. Refinement normally edits the previous draft with the
// notes added that round. When novelty stalls across two consecutive
// critiques the session switches to the least-clustered unused pattern
// and the next draft is generated from scratch. The final draft is
// checked for collisions once, with a single pivot on collision.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/recall"
	"github.com/pdiddy/story-engine/internal/refine"
	"github.com/pdiddy/story-engine/internal/selector"
	"github.com/pdiddy/story-engine/internal/story"
	"github.com/pdiddy/story-engine/internal/verify"
	"github.com/pdiddy/story-engine/pkg/types"
)

// ErrNoPattern is returned when recall finds no pattern for the idea.
var ErrNoPattern = errors.New("no pattern available")

// Outcome summarizes how a session ended.
type Outcome string

const (
	OutcomePassed       Outcome = "passed"
	OutcomeManualReview Outcome = "needs_manual_review"
	OutcomeCollision    Outcome = "collision"
	OutcomeNoPattern    Outcome = "no_pattern"
)

// Recaller ranks patterns for an idea.
type Recaller interface {
	Recall(idea string) []recall.Candidate
}

// Drafter writes and revises stories.
type Drafter interface {
	Generate(ctx context.Context, req story.Request) types.Story
	Revise(ctx context.Context, rev story.Revision) types.Story
}

// Reviewer critiques a story.
type Reviewer interface {
	Review(ctx context.Context, s types.Story) types.Critique
}

// Checker verifies a story against prior work.
type Checker interface {
	Verify(s types.Story) verify.Result
}

// Refinement records one refinement round.
type Refinement struct {
	Iteration int `json:"iteration" yaml:"iteration"`
	refine.Injection `yaml:",inline"`

	// NewNotes are the notes this round added to the session's list.
	NewNotes []string `json:"new_notes" yaml:"new_notes"`

	// SwitchedTo is set when stalled novelty forced a pattern switch.
	SwitchedTo string `json:"switched_to,omitempty" yaml:"switched_to,omitempty"`
}

// Pivot records the regeneration that followed a collision.
type Pivot struct {
	Slot         selector.Slot `json:"slot,omitempty" yaml:"slot,omitempty"`
	PatternID    string        `json:"pattern_id" yaml:"pattern_id"`
	Constraints  []string      `json:"constraints" yaml:"constraints"`
	Verification verify.Result `json:"verification" yaml:"verification"`
}

// Result is the full record of one session.
type Result struct {
	SessionID         string                   `json:"session_id" yaml:"session_id"`
	Idea              string                   `json:"idea" yaml:"idea"`
	Outcome           Outcome                  `json:"outcome" yaml:"outcome"`
	Success           bool                     `json:"success" yaml:"success"`
	Iterations        int                      `json:"iterations" yaml:"iterations"`
	Recalled          []recall.Candidate       `json:"recalled,omitempty" yaml:"recalled,omitempty"`
	SelectedPatterns  map[selector.Slot]string `json:"selected_patterns" yaml:"selected_patterns"`
	FinalPatternID    string                   `json:"final_pattern_id,omitempty" yaml:"final_pattern_id,omitempty"`
	ReviewHistory     []types.Critique         `json:"review_history" yaml:"review_history"`
	RefinementHistory []Refinement             `json:"refinement_history" yaml:"refinement_history"`
	UsedPatterns      []string                 `json:"used_patterns" yaml:"used_patterns"`
	Verification      *verify.Result           `json:"verification_result,omitempty" yaml:"verification_result,omitempty"`
	Pivot             *Pivot                   `json:"pivot,omitempty" yaml:"pivot,omitempty"`
	FinalStory        *types.Story             `json:"final_story,omitempty" yaml:"final_story,omitempty"`
	NeedsManualReview bool                     `json:"needs_manual_review" yaml:"needs_manual_review"`
	StartedAt         time.Time                `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time                `json:"finished_at" yaml:"finished_at"`
}

// Orchestrator wires the session components together.
type Orchestrator struct {
	recaller Recaller
	drafter  Drafter
	reviewer Reviewer
	checker  Checker
	cfg      types.Config
	log      *zap.Logger
	newID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// New returns an Orchestrator using cfg's selector, refine, and story settings.
func New(r Recaller, d Drafter, rv Reviewer, c Checker, cfg types.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		recaller: r,
		drafter:  d,
		reviewer: rv,
		checker:  c,
		cfg:      cfg,
		log:      zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// session holds the mutable state of one Run.
type session struct {
	*Result
	idea    string
	ranked  []recall.Candidate
	current recall.Candidate
	engine  *refine.Engine
	notes   []string
	noted   map[string]bool
	draft   types.Story
	log     *zap.Logger
}

// addNotes appends notes not already present and returns the new ones.
func (s *session) addNotes(notes []string) []string {
	var added []string
	for _, n := range notes {
		if s.noted[n] {
			continue
		}
		s.noted[n] = true
		s.notes = append(s.notes, n)
		added = append(added, n)
	}
	return added
}

func (s *session) resetNotes() {
	s.notes = nil
	s.noted = make(map[string]bool)
}

// Run executes one session for idea. It returns ErrNoPattern, together
// with a Result carrying OutcomeNoPattern, when recall finds nothing.
func (o *Orchestrator) Run(ctx context.Context, idea string) (*Result, error) {
	res := &Result{
		SessionID:        o.newID(),
		Idea:             idea,
		SelectedPatterns: map[selector.Slot]string{},
		StartedAt:        time.Now().UTC(),
	}
	log := o.log.With(zap.String("session", res.SessionID))
	defer func() { res.FinishedAt = time.Now().UTC() }()

	ranked := o.recaller.Recall(idea)
	res.Recalled = ranked
	sel := selector.Select(ranked, o.cfg.Selector.NicheClusterSize)
	if len(sel) == 0 {
		res.Outcome = OutcomeNoPattern
		log.Warn("no pattern available", zap.String("idea", idea))
		return res, fmt.Errorf("running session %s: %w", res.SessionID, ErrNoPattern)
	}
	res.SelectedPatterns = sel.IDs()

	start, ok := sel.Get(selector.Conservative)
	if !ok {
		start = sel[0].Candidate
	}
	s := &session{
		Result:  res,
		idea:    idea,
		ranked:  ranked,
		current: start,
		engine:  refine.NewEngine(ranked, o.cfg.Refine, log),
		log:     log,
	}
	s.resetNotes()
	log.Info("session started",
		zap.String("pattern", start.PatternID),
		zap.Int("recalled", len(ranked)))

	s.draft = o.drafter.Generate(ctx, story.Request{Idea: idea, Pattern: start.Pattern})
	o.loop(ctx, s)
	o.verifyAndPivot(ctx, s, sel)

	res.UsedPatterns = s.engine.Used()
	res.FinalPatternID = s.current.PatternID
	final := s.draft
	res.FinalStory = &final
	switch {
	case res.Verification != nil && res.Verification.Collision:
		res.Outcome = OutcomeCollision
	case res.NeedsManualReview:
		res.Outcome = OutcomeManualReview
	default:
		res.Outcome = OutcomePassed
	}
	res.Success = res.Outcome == OutcomePassed
	log.Info("session finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("iterations", res.Iterations),
		zap.Bool("needs_manual_review", res.NeedsManualReview))
	return res, nil
}

// loop alternates critique and refinement. It makes at most
// MaxIterations+1 critique calls.
func (o *Orchestrator) loop(ctx context.Context, s *session) {
	var prev *types.Critique
	switchPending := false
	for {
		crit := o.reviewer.Review(ctx, s.draft)
		s.ReviewHistory = append(s.ReviewHistory, crit)
		if crit.Pass {
			s.log.Info("critique passed", zap.Float64("score", crit.AvgScore), zap.Int("iteration", s.Iterations))
			return
		}
		if s.Iterations >= o.cfg.Refine.MaxIterations {
			s.NeedsManualReview = true
			s.log.Warn("refinement budget exhausted", zap.Float64("score", crit.AvgScore))
			return
		}
		s.Iterations++

		round := Refinement{Iteration: s.Iterations}
		if o.stalled(prev, crit) {
			if c, ok := s.engine.LeastClusteredUnused(); ok {
				s.current = c
				s.resetNotes()
				switchPending = true
				round.SwitchedTo = c.PatternID
				s.log.Info("novelty stalled, switching pattern",
					zap.String("pattern", c.PatternID),
					zap.Int("cluster_size", c.Pattern.ClusterSize))
			} else {
				s.log.Warn("novelty stalled but no unused pattern remains")
			}
		}

		round.Injection = s.engine.Refine(crit.MainIssue)
		round.NewNotes = s.addNotes(round.Notes)
		s.RefinementHistory = append(s.RefinementHistory, round)

		if switchPending {
			s.draft = o.drafter.Generate(ctx, story.Request{
				Idea:       s.idea,
				Pattern:    s.current.Pattern,
				Techniques: append([]string(nil), s.notes...),
				Issue:      crit.MainIssue,
			})
			switchPending = false
		} else {
			s.draft = o.drafter.Revise(ctx, story.Revision{
				Idea:       s.idea,
				Pattern:    s.current.Pattern,
				Previous:   s.draft,
				Critique:   crit,
				Techniques: round.NewNotes,
			})
		}
		prev = &s.ReviewHistory[len(s.ReviewHistory)-1]
	}
}

// stalled reports whether novelty was diagnosed on both critiques without
// the novelty score rising by more than StallDelta.
func (o *Orchestrator) stalled(prev *types.Critique, cur types.Critique) bool {
	if prev == nil || prev.MainIssue != types.IssueNovelty || cur.MainIssue != types.IssueNovelty {
		return false
	}
	before, _ := prev.ScoreFor(types.RoleNovelty)
	after, _ := cur.ScoreFor(types.RoleNovelty)
	return after <= before+o.cfg.Refine.StallDelta
}

// verifyAndPivot checks the draft and, on collision, regenerates once from
// the innovative or cross-domain slot with pivot constraints.
func (o *Orchestrator) verifyAndPivot(ctx context.Context, s *session, sel selector.Selection) {
	vr := o.checker.Verify(s.draft)
	s.Verification = &vr
	if !vr.Collision {
		return
	}

	pivot := &Pivot{Constraints: verify.PivotConstraints(vr)}
	target := s.current
	for _, slot := range []selector.Slot{selector.Innovative, selector.CrossDomain} {
		if c, ok := sel.Get(slot); ok {
			target, pivot.Slot = c, slot
			break
		}
	}
	pivot.PatternID = target.PatternID
	s.log.Info("collision detected, pivoting",
		zap.String("pattern", target.PatternID),
		zap.String("slot", string(pivot.Slot)),
		zap.Float64("max_similarity", vr.MaxSimilarity))

	s.current = target
	s.draft = o.drafter.Generate(ctx, story.Request{
		Idea:        s.idea,
		Pattern:     target.Pattern,
		Constraints: pivot.Constraints,
		Techniques:  append([]string(nil), s.notes...),
	})
	pivot.Verification = o.checker.Verify(s.draft)
	s.Pivot = pivot
	final := pivot.Verification
	s.Verification = &final
}
