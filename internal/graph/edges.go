// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"slices"
	"sort"

	"github.com/pdiddy/story-engine/internal/similarity"
	"github.com/pdiddy/story-engine/pkg/types"
)

const (
	// ConfidenceCap is the supporting paper count at which works_well_in
	// confidence saturates at 1.
	ConfidenceCap = 20

	// DefaultBaseline is the domain baseline quality used when a domain has
	// no papers.
	DefaultBaseline = 0.7

	// SimilarPaperFloor is the minimum idea-to-paper similarity for a
	// similar_to_paper edge.
	SimilarPaperFloor = 0.1

	// MaxSimilarPapers caps similar_to_paper edges per idea.
	MaxSimilarPapers = 50
)

// BuildEdges derives all six relations from the nodes in g and adds them
// to g. Existing edges with the same (source, target, relation) are
// replaced.
func BuildEdges(g *Graph, scorer similarity.Scorer) {
	if scorer == nil {
		scorer = similarity.Jaccard{}
	}
	b := edgeBuilder{g: g, scorer: scorer, domainByName: make(map[string]string)}
	for _, d := range g.Domains() {
		if _, ok := b.domainByName[d.Name]; !ok {
			b.domainByName[d.Name] = d.ID
		}
	}
	b.quality = make(map[string]float64)
	for _, p := range g.Papers() {
		b.quality[p.ID] = PaperQuality(p)
	}

	b.paperEdges()
	b.belongsTo()
	b.worksWellIn()
	b.similarToPaper()
}

type edgeBuilder struct {
	g            *Graph
	scorer       similarity.Scorer
	domainByName map[string]string
	quality      map[string]float64
}

// domainIDs resolves a paper's domain names to domain ids, skipping unknown names.
func (b *edgeBuilder) domainIDs(p types.PaperNode) []string {
	var ids []string
	for _, name := range p.Domains {
		if id, ok := b.domainByName[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *edgeBuilder) paperEdges() {
	ideas := b.g.Ideas()
	for _, p := range b.g.Papers() {
		for _, idea := range ideas {
			if slices.Contains(idea.SourcePaperIDs, p.ID) {
				b.g.AddEdge(types.Edge{Source: p.ID, Target: idea.ID, Attrs: types.ImplementsAttrs{}})
				break
			}
		}
		for _, pid := range p.PatternIDs {
			if _, ok := b.g.Pattern(pid); ok {
				b.g.AddEdge(types.Edge{Source: p.ID, Target: pid, Attrs: types.UsesPatternAttrs{Quality: b.quality[p.ID]}})
			}
		}
		for _, did := range b.domainIDs(p) {
			b.g.AddEdge(types.Edge{Source: p.ID, Target: did, Attrs: types.InDomainAttrs{}})
		}
	}
}

// belongsTo weights each idea-domain edge by the domain's share of the
// idea's source-paper domain memberships, so an idea's weights sum to 1.
func (b *edgeBuilder) belongsTo() {
	for _, idea := range b.g.Ideas() {
		counts := make(map[string]int)
		var order []string
		total := 0
		for _, pid := range idea.SourcePaperIDs {
			p, ok := b.g.Paper(pid)
			if !ok {
				continue
			}
			for _, did := range b.domainIDs(p) {
				if counts[did] == 0 {
					order = append(order, did)
				}
				counts[did]++
				total++
			}
		}
		for _, did := range order {
			b.g.AddEdge(types.Edge{
				Source: idea.ID,
				Target: did,
				Attrs: types.BelongsToAttrs{
					Weight:      float64(counts[did]) / float64(total),
					PaperCount:  counts[did],
					TotalPapers: total,
				},
			})
		}
	}
}

func (b *edgeBuilder) worksWellIn() {
	papers := b.g.Papers()

	baseline := make(map[string]float64)
	domainCount := make(map[string]int)
	for _, p := range papers {
		for _, did := range b.domainIDs(p) {
			baseline[did] += b.quality[p.ID]
			domainCount[did]++
		}
	}
	for did, n := range domainCount {
		baseline[did] /= float64(n)
	}

	for _, pat := range b.g.Patterns() {
		freq := make(map[string]int)
		sum := make(map[string]float64)
		var order []string
		for _, p := range papers {
			if !slices.Contains(p.PatternIDs, pat.ID) {
				continue
			}
			for _, did := range b.domainIDs(p) {
				if freq[did] == 0 {
					order = append(order, did)
				}
				freq[did]++
				sum[did] += b.quality[p.ID]
			}
		}
		for _, did := range order {
			base, ok := baseline[did]
			if !ok {
				base = DefaultBaseline
			}
			avg := sum[did] / float64(freq[did])
			b.g.AddEdge(types.Edge{
				Source: pat.ID,
				Target: did,
				Attrs: types.WorksWellInAttrs{
					Frequency:     freq[did],
					Effectiveness: avg - base,
					Confidence:    Confidence(freq[did]),
					AvgQuality:    avg,
					Baseline:      base,
				},
			})
		}
	}
}

// Confidence is min(frequency / ConfidenceCap, 1).
func Confidence(frequency int) float64 {
	return min(float64(frequency)/ConfidenceCap, 1)
}

func (b *edgeBuilder) similarToPaper() {
	papers := b.g.Papers()
	for _, idea := range b.g.Ideas() {
		if idea.Description == "" {
			continue
		}
		var sims []types.SimilarToPaperAttrs
		var targets []string
		for _, p := range papers {
			if p.Idea.CoreIdea == "" {
				continue
			}
			s := b.scorer.Similarity(idea.Description, p.Idea.CoreIdea)
			if s < SimilarPaperFloor {
				continue
			}
			q := b.quality[p.ID]
			sims = append(sims, types.SimilarToPaperAttrs{Similarity: s, Quality: q, CombinedWeight: s * q})
			targets = append(targets, p.ID)
		}

		idx := make([]int, len(sims))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, c int) bool {
			return sims[idx[a]].CombinedWeight > sims[idx[c]].CombinedWeight
		})
		if len(idx) > MaxSimilarPapers {
			idx = idx[:MaxSimilarPapers]
		}
		for _, i := range idx {
			b.g.AddEdge(types.Edge{Source: idea.ID, Target: targets[i], Attrs: sims[i]})
		}
	}
}
