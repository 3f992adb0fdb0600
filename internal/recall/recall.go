// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recall ranks writing patterns for a free-text idea by fusing three
// independent scoring paths over the pattern graph:
//
//  1. similar ideas and the patterns their source papers use,
//  2. relevant domains and the patterns that work well in them,
//  3. similar papers and the patterns they use.
package recall

import (
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/graph"
	"github.com/pdiddy/story-engine/internal/similarity"
	"github.com/pdiddy/story-engine/pkg/types"
)

// effectivenessFloor keeps patterns that underperform their domain
// baseline from being zeroed out in path 2.
const effectivenessFloor = 0.1

// Candidate is one ranked pattern.
type Candidate struct {
	PatternID string            `json:"pattern_id" yaml:"pattern_id"`
	Pattern   types.PatternNode `json:"pattern" yaml:"pattern"`
	Score     float64           `json:"score" yaml:"score"`

	// PathScores holds the weighted contribution of each path.
	PathScores [3]float64 `json:"path_scores" yaml:"path_scores"`
}

// Engine runs multi-path recall against one graph.
type Engine struct {
	g      *graph.Graph
	cfg    types.RecallConfig
	scorer similarity.Scorer
	log    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer replaces the default Jaccard scorer.
func WithScorer(s similarity.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns a recall engine. Zero Top-K values fall back to the
// defaults (10 ideas, 5 domains, 20 papers, 10 final).
func NewEngine(g *graph.Graph, cfg types.RecallConfig, opts ...Option) *Engine {
	def := types.DefaultConfig().Recall
	if cfg.TopKIdeas <= 0 {
		cfg.TopKIdeas = def.TopKIdeas
	}
	if cfg.TopKDomains <= 0 {
		cfg.TopKDomains = def.TopKDomains
	}
	if cfg.TopKPapers <= 0 {
		cfg.TopKPapers = def.TopKPapers
	}
	if cfg.FinalTopK <= 0 {
		cfg.FinalTopK = def.FinalTopK
	}
	e := &Engine{g: g, cfg: cfg, scorer: similarity.Jaccard{}, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// scores accumulates per-pattern scores and remembers discovery order.
type scores struct {
	val   map[string]float64
	order []string
}

func newScores() *scores {
	return &scores{val: make(map[string]float64)}
}

func (s *scores) add(id string, v float64) {
	if _, ok := s.val[id]; !ok {
		s.order = append(s.order, id)
	}
	s.val[id] += v
}

type scoredID struct {
	id    string
	score float64
}

// topK sorts by descending score, keeping input order for ties, and truncates.
func topK(items []scoredID, k int) []scoredID {
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })
	if len(items) > k {
		items = items[:k]
	}
	return items
}

// Recall returns at most FinalTopK candidates sorted by non-increasing
// fused score. Ties keep discovery order: path 1, then path 2, then path 3.
// An idea that matches nothing yields an empty slice.
func (e *Engine) Recall(idea string) []Candidate {
	similar := e.similarIdeas(idea)
	p1 := e.path1(similar)
	p2 := e.path2(idea, similar)
	p3 := e.path3(idea)

	w := e.cfg.Fusion()
	weights := [3]float64{w.Path1, w.Path2, w.Path3}
	paths := [3]*scores{p1, p2, p3}

	var out []Candidate
	seen := make(map[string]bool)
	for _, p := range paths {
		for _, id := range p.order {
			if seen[id] {
				continue
			}
			seen[id] = true

			pat, ok := e.g.Pattern(id)
			if !ok {
				e.log.Debug("skipping pattern missing from graph", zap.String("pattern", id))
				continue
			}
			c := Candidate{PatternID: id, Pattern: pat}
			for i, ps := range paths {
				c.PathScores[i] = ps.val[id] * weights[i]
				c.Score += c.PathScores[i]
			}
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > e.cfg.FinalTopK {
		out = out[:e.cfg.FinalTopK]
	}

	e.log.Info("recall complete",
		zap.Int("path1", len(p1.order)),
		zap.Int("path2", len(p2.order)),
		zap.Int("path3", len(p3.order)),
		zap.Int("candidates", len(out)))
	return out
}

// similarIdeas returns the top-K ideas with positive similarity to idea.
func (e *Engine) similarIdeas(idea string) []scoredID {
	var sims []scoredID
	for _, n := range e.g.Ideas() {
		if s := e.scorer.Similarity(idea, n.Description); s > 0 {
			sims = append(sims, scoredID{n.ID, s})
		}
	}
	return topK(sims, e.cfg.TopKIdeas)
}

// path1 scores patterns used by the source papers of similar ideas:
// idea similarity times the quality on each uses_pattern edge.
func (e *Engine) path1(similar []scoredID) *scores {
	out := newScores()
	for _, si := range similar {
		idea, _ := e.g.Idea(si.id)
		for _, pid := range idea.SourcePaperIDs {
			for _, edge := range e.g.NeighborsOut(pid, types.RelUsesPattern) {
				q := edge.Attrs.(types.UsesPatternAttrs).Quality
				out.add(edge.Target, si.score*q)
			}
		}
	}
	return out
}

// path2 scores patterns that work well in domains relevant to idea.
// Domains come from keyword overlap with domain names, or else from the
// belongs_to edges of the most similar idea.
func (e *Engine) path2(idea string, similar []scoredID) *scores {
	query := similarity.TokenSet(idea)

	var domains []scoredID
	for _, d := range e.g.Domains() {
		name := similarity.TokenSet(d.Name)
		overlap := 0
		for tok := range name {
			if _, ok := query[tok]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			domains = append(domains, scoredID{d.ID, float64(overlap) / float64(max(len(query), 1))})
		}
	}

	if len(domains) == 0 && len(similar) > 0 {
		for _, edge := range e.g.NeighborsOut(similar[0].id, types.RelBelongsTo) {
			domains = append(domains, scoredID{edge.Target, edge.Attrs.(types.BelongsToAttrs).Weight})
		}
	}

	out := newScores()
	for _, d := range topK(domains, e.cfg.TopKDomains) {
		if !e.g.HasNode(d.id) {
			continue
		}
		for _, edge := range e.g.NeighborsIn(d.id, types.RelWorksWellIn) {
			a := edge.Attrs.(types.WorksWellInAttrs)
			out.add(edge.Source, d.score*max(a.Effectiveness, effectivenessFloor)*a.Confidence)
		}
	}
	return out
}

// path3 scores patterns used by papers whose core idea resembles idea.
// Papers below the similarity floor are dropped; the rest are ranked by
// similarity times quality.
func (e *Engine) path3(idea string) *scores {
	var papers []scoredID
	for _, p := range e.g.Papers() {
		if p.Idea.CoreIdea == "" {
			continue
		}
		s := e.scorer.Similarity(idea, p.Idea.CoreIdea)
		// s == 0 only matters when the floor is configured to 0.
		if s == 0 || s < e.cfg.PaperSimilarityFloor {
			continue
		}
		papers = append(papers, scoredID{p.ID, s * graph.PaperQuality(p)})
	}

	out := newScores()
	for _, p := range topK(papers, e.cfg.TopKPapers) {
		for _, edge := range e.g.NeighborsOut(p.id, types.RelUsesPattern) {
			q := edge.Attrs.(types.UsesPatternAttrs).Quality
			out.add(edge.Target, p.score*q)
		}
	}
	return out
}
