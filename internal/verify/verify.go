// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package verify checks a draft's method against prior papers and builds
// the pivot constraints used when the draft collides with one of them.
package verify

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/similarity"
	"github.com/pdiddy/story-engine/pkg/types"
)

const matchMethodRunes = 100

// Match is a prior paper whose method resembles the draft's.
type Match struct {
	PaperID    string  `json:"paper_id" yaml:"paper_id"`
	Title      string  `json:"title" yaml:"title"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
	Method     string  `json:"method" yaml:"method"`
}

// Result is the outcome of one verification.
type Result struct {
	Pass          bool    `json:"pass" yaml:"pass"`
	Collision     bool    `json:"collision_detected" yaml:"collision_detected"`
	MaxSimilarity float64 `json:"max_similarity" yaml:"max_similarity"`
	Checked       int     `json:"checked" yaml:"checked"`
	Matches       []Match `json:"similar_papers" yaml:"similar_papers"`
}

// Verifier compares drafts against a fixed paper sample.
type Verifier struct {
	papers []types.PaperNode
	cfg    types.VerifyConfig
	scorer similarity.Scorer
	log    *zap.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithScorer replaces the default Jaccard scorer.
func WithScorer(s similarity.Scorer) Option {
	return func(v *Verifier) { v.scorer = s }
}

// WithLogger sets the verifier's logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// NewVerifier samples the first cfg.SampleSize papers. Papers without a
// method narrative are skipped when verifying but still count toward the
// sample.
func NewVerifier(papers []types.PaperNode, cfg types.VerifyConfig, opts ...Option) *Verifier {
	if cfg.SampleSize > 0 && len(papers) > cfg.SampleSize {
		papers = papers[:cfg.SampleSize]
	}
	v := &Verifier{papers: papers, cfg: cfg, scorer: similarity.Jaccard{}, log: zap.NewNop()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify scores s.MethodSkeleton against every sampled method. A collision
// is declared when the maximum similarity exceeds the threshold. Matches
// above the floor are reported, best first, up to MaxMatches.
func (v *Verifier) Verify(s types.Story) Result {
	var res Result
	var matches []Match
	for _, p := range v.papers {
		method := p.Skeleton.MethodStory
		if method == "" {
			continue
		}
		res.Checked++
		sim := v.scorer.Similarity(s.MethodSkeleton, method)
		if sim > res.MaxSimilarity {
			res.MaxSimilarity = sim
		}
		if sim > v.cfg.MatchFloor {
			matches = append(matches, Match{
				PaperID:    p.ID,
				Title:      p.Title,
				Similarity: sim,
				Method:     truncate(method, matchMethodRunes),
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if v.cfg.MaxMatches > 0 && len(matches) > v.cfg.MaxMatches {
		matches = matches[:v.cfg.MaxMatches]
	}
	res.Matches = matches
	res.Collision = res.MaxSimilarity > v.cfg.CollisionThreshold
	res.Pass = !res.Collision

	v.log.Info("verification",
		zap.Int("checked", res.Checked),
		zap.Float64("max_similarity", res.MaxSimilarity),
		zap.Int("matches", len(res.Matches)),
		zap.Bool("collision", res.Collision))
	return res
}

// PivotConstraints returns the fixed pivot template for the best match in
// r, or nil when r has no matches.
func PivotConstraints(r Result) []string {
	if len(r.Matches) == 0 {
		return nil
	}
	return []string{
		fmt.Sprintf("Do not reuse the core technique of %q", r.Matches[0].Title),
		"Move the application to a new domain (e.g. law, finance, or medicine)",
		"Add an extra constraint to the setting (e.g. unsupervised or few-shot)",
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
