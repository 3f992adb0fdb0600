// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refine turns a critique diagnosis into technique notes for the
// next draft. Pattern-derived strategies draw from the session's recall
// list and never reuse a pattern within one Engine.
package refine

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/recall"
	"github.com/pdiddy/story-engine/pkg/types"
)

// Strategy names how an injection was produced.
type Strategy string

const (
	StrategyTail        Strategy = "tail"
	StrategyHead        Strategy = "head"
	StrategyExplanation Strategy = "explanation"
	StrategyDomain      Strategy = "domain"
	StrategyFallback    Strategy = "fallback"
)

const (
	maxInjectedTricks = 2
	scannedTricks     = 5
	insightRunes      = 150
	tailSkeletons     = 2
	headSkeletons     = 3
)

// Fixed note sets for strategies that do not draw on patterns.
var (
	ExplanationNotes = []string{
		"Add attention-weight visualization analysis",
		"Design a case study on representative samples",
		"Add ablation experiments explaining each component's contribution",
	}
	DomainNotes = []string{
		"Add domain-specific data preprocessing steps",
		"Design domain-related feature extraction",
		"Adapt the evaluation metrics to the target domain",
	}
	NoveltyFallbackNotes = []string{
		"Introduce contrastive negative-sampling optimization",
		"Design a multi-scale feature fusion mechanism",
		"Add adaptive dynamic weighting",
	}
	StabilityFallbackNotes = []string{
		"Add regularization to stabilize training",
		"Adopt a hybrid training strategy",
		"Validate robustness under adversarial perturbations",
	}
)

// genericTricks are experimental or presentational techniques that do not
// add technical novelty. Matching is by case-folded substring.
var genericTricks = []string{
	"消融实验", "多数据集验证", "对比实验", "case study", "案例分析",
	"可视化", "attention 可视化", "参数敏感性分析", "鲁棒性测试",
	"现有方法局限性", "逻辑递进", "叙事结构", "性能提升", "实验验证",
	"ablation", "multi-dataset", "multiple datasets", "comparative experiment",
	"comparison experiment", "visualization", "sensitivity analysis",
	"robustness test", "limitations of existing", "logical progression",
	"narrative structure", "performance improvement", "experimental validation",
}

// robustnessKeywords mark method passages that describe stability work.
var robustnessKeywords = []string{
	"稳定", "鲁棒", "一致", "对抗", "正则", "混合",
	"stabl", "robust", "consisten", "adversarial", "regulariz", "hybrid",
}

// Injection is the outcome of one refinement round.
type Injection struct {
	Issue     types.Issue `json:"issue" yaml:"issue"`
	Strategy  Strategy    `json:"strategy" yaml:"strategy"`
	PatternID string      `json:"pattern_id,omitempty" yaml:"pattern_id,omitempty"`
	Relaxed   bool        `json:"relaxed,omitempty" yaml:"relaxed,omitempty"`
	Notes     []string    `json:"notes" yaml:"notes"`
}

// Engine owns the exclusion set for one session.
type Engine struct {
	ranked []recall.Candidate
	cfg    types.RefineConfig
	used   map[string]bool
	order  []string
	log    *zap.Logger
}

// NewEngine returns an Engine over ranked, the full recall list in rank order.
func NewEngine(ranked []recall.Candidate, cfg types.RefineConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{ranked: ranked, cfg: cfg, used: make(map[string]bool), log: log}
}

// Refine produces notes for issue. Novelty and stability mark the chosen
// pattern as used.
func (e *Engine) Refine(issue types.Issue) Injection {
	var inj Injection
	switch issue {
	case types.IssueNovelty:
		inj = e.tail()
	case types.IssueStability:
		inj = e.head()
	case types.IssueInterpretability:
		inj = Injection{Strategy: StrategyExplanation, Notes: clone(ExplanationNotes)}
	default:
		inj = Injection{Strategy: StrategyDomain, Notes: clone(DomainNotes)}
	}
	inj.Issue = issue
	e.log.Info("refinement",
		zap.String("issue", string(issue)),
		zap.String("strategy", string(inj.Strategy)),
		zap.String("pattern", inj.PatternID),
		zap.Bool("relaxed", inj.Relaxed),
		zap.Int("used", len(e.order)))
	return inj
}

// MarkUsed adds id to the exclusion set and reports whether it was new.
func (e *Engine) MarkUsed(id string) bool {
	if e.used[id] {
		return false
	}
	e.used[id] = true
	e.order = append(e.order, id)
	return true
}

// IsUsed reports whether id is in the exclusion set.
func (e *Engine) IsUsed(id string) bool {
	return e.used[id]
}

// Used returns the exclusion set in insertion order.
func (e *Engine) Used() []string {
	return clone(e.order)
}

// LeastClusteredUnused returns the unused pattern with the smallest cluster
// across the full recall list. Ties keep rank order.
func (e *Engine) LeastClusteredUnused() (recall.Candidate, bool) {
	pool := e.unused(e.ranked)
	if len(pool) == 0 {
		return recall.Candidate{}, false
	}
	sortByCluster(pool, true)
	return pool[0], true
}

// tail picks the smallest-cluster niche pattern from the tail window.
func (e *Engine) tail() Injection {
	var candidates []recall.Candidate
	for _, c := range e.unused(e.window(e.cfg.TailRankFrom, e.cfg.TailRankTo)) {
		if c.Pattern.ClusterSize < e.cfg.NicheClusterSize {
			candidates = append(candidates, c)
		}
	}
	relaxed := false
	if len(candidates) == 0 {
		candidates = e.unused(e.ranked)
		relaxed = true
	}
	if len(candidates) == 0 {
		e.log.Warn("no unused pattern for tail injection, using fallback notes")
		return Injection{Strategy: StrategyFallback, Notes: clone(NoveltyFallbackNotes)}
	}
	sortByCluster(candidates, true)
	c := candidates[0]
	e.MarkUsed(c.PatternID)

	p := c.Pattern
	var notes []string
	if insight := firstMethod(p.SkeletonExamples, tailSkeletons, nil); insight != "" {
		notes = append(notes, "Method restructuring: follow the core technical route of "+p.Name+": "+insight)
	}
	if tricks := technicalTricks(p.TopTricks); len(tricks) > 0 {
		notes = append(notes, "Core techniques: integrate the key techniques of "+p.Name+": "+strings.Join(tricks, " + "))
	}
	if len(notes) == 0 {
		notes = append(notes, "Integrate the core idea of "+p.Name+" to rebuild the current method")
	}
	return Injection{Strategy: StrategyTail, PatternID: c.PatternID, Relaxed: relaxed, Notes: notes}
}

// head picks the largest-cluster mature pattern from the head window.
func (e *Engine) head() Injection {
	var candidates []recall.Candidate
	for _, c := range e.unused(e.window(e.cfg.HeadRankFrom, e.cfg.HeadRankTo)) {
		if c.Pattern.ClusterSize > e.cfg.MatureClusterSize {
			candidates = append(candidates, c)
		}
	}
	relaxed := false
	if len(candidates) == 0 {
		candidates = e.unused(e.ranked)
		relaxed = true
	}
	if len(candidates) == 0 {
		e.log.Warn("no unused pattern for head injection, using fallback notes")
		return Injection{Strategy: StrategyFallback, Notes: clone(StabilityFallbackNotes)}
	}
	sortByCluster(candidates, false)
	c := candidates[0]
	e.MarkUsed(c.PatternID)

	p := c.Pattern
	var notes []string
	method := firstMethod(p.SkeletonExamples, headSkeletons, hasRobustnessKeyword)
	if method == "" {
		method = firstMethod(p.SkeletonExamples, tailSkeletons, nil)
	}
	if method != "" {
		notes = append(notes, "Stability methodology: follow the robustness design of "+p.Name+": "+method)
	}
	if tricks := technicalTricks(p.TopTricks); len(tricks) > 0 {
		notes = append(notes, "Stability techniques: integrate the mature techniques of "+p.Name+": "+strings.Join(tricks, " + "))
	}
	if len(notes) == 0 {
		notes = append(notes, "Integrate the mature method of "+p.Name+" to strengthen technical stability")
	}
	return Injection{Strategy: StrategyHead, PatternID: c.PatternID, Relaxed: relaxed, Notes: notes}
}

// window returns the candidates at 1-based ranks from..to, clipped to the list.
func (e *Engine) window(from, to int) []recall.Candidate {
	if from < 1 {
		from = 1
	}
	if to > len(e.ranked) {
		to = len(e.ranked)
	}
	if from > to {
		return nil
	}
	return e.ranked[from-1 : to]
}

func (e *Engine) unused(in []recall.Candidate) []recall.Candidate {
	var out []recall.Candidate
	for _, c := range in {
		if !e.used[c.PatternID] {
			out = append(out, c)
		}
	}
	return out
}

func sortByCluster(cs []recall.Candidate, ascending bool) {
	sort.SliceStable(cs, func(i, j int) bool {
		if ascending {
			return cs[i].Pattern.ClusterSize < cs[j].Pattern.ClusterSize
		}
		return cs[i].Pattern.ClusterSize > cs[j].Pattern.ClusterSize
	})
}

// firstMethod returns the truncated method story of the first of the
// leading n skeletons that is non-empty and satisfies keep.
func firstMethod(sks []types.Skeleton, n int, keep func(string) bool) string {
	for i, sk := range sks {
		if i >= n {
			break
		}
		if sk.MethodStory == "" || (keep != nil && !keep(sk.MethodStory)) {
			continue
		}
		return truncate(sk.MethodStory, insightRunes)
	}
	return ""
}

// technicalTricks returns up to two non-generic names among the leading techniques.
func technicalTricks(tricks []types.Technique) []string {
	var out []string
	for i, t := range tricks {
		if i >= scannedTricks || len(out) >= maxInjectedTricks {
			break
		}
		if t.Name == "" || IsGeneric(t.Name) {
			continue
		}
		out = append(out, t.Name)
	}
	return out
}

// IsGeneric reports whether a technique name is on the generic denylist.
func IsGeneric(name string) bool {
	return containsAny(strings.ToLower(name), genericTricks)
}

func hasRobustnessKeyword(text string) bool {
	return containsAny(strings.ToLower(text), robustnessKeywords)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
