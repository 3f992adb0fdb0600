// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/story-engine/internal/similarity"
	"github.com/pdiddy/story-engine/pkg/types"
)

// fixtureGraph builds a small corpus: two ideas, three papers across two
// domains, and two patterns.
func fixtureGraph() *Graph {
	g := New()
	g.AddNode(types.IdeaNode{ID: "idea_0", Description: "graph neural network", SourcePaperIDs: []string{"p1", "p2"}})
	g.AddNode(types.IdeaNode{ID: "idea_1", Description: "speech synthesis with diffusion", SourcePaperIDs: []string{"p3"}})
	g.AddNode(types.PatternNode{ID: "pattern_a", Name: "Reframe", ClusterSize: 30})
	g.AddNode(types.PatternNode{ID: "pattern_b", Name: "Niche", ClusterSize: 4})
	g.AddNode(types.DomainNode{ID: "domain_0", Name: "NLP"})
	g.AddNode(types.DomainNode{ID: "domain_1", Name: "Graph Learning"})
	g.AddNode(types.PaperNode{
		ID: "p1", Title: "GNN one",
		Reviews:    []types.PaperReview{{OverallScore: "8"}, {OverallScore: "10/10"}},
		Domains:    []string{"NLP", "Graph Learning"},
		PatternIDs: []string{"pattern_a"},
		Idea:       types.PaperIdea{CoreIdea: "graph neural network message passing"},
	})
	g.AddNode(types.PaperNode{
		ID: "p2", Title: "GNN two",
		Reviews:    []types.PaperReview{{OverallScore: "4"}},
		Domains:    []string{"Graph Learning"},
		PatternIDs: []string{"pattern_a", "pattern_b", "pattern_missing"},
		Idea:       types.PaperIdea{CoreIdea: "graph neural network pooling"},
	})
	g.AddNode(types.PaperNode{
		ID: "p3", Title: "TTS",
		Domains:    []string{"Speech"},
		PatternIDs: []string{"pattern_b"},
		Idea:       types.PaperIdea{CoreIdea: "diffusion speech synthesis"},
	})
	return g
}

func TestNeighborsUnknownIDIsEmpty(t *testing.T) {
	g := fixtureGraph()
	assert.False(t, g.HasNode("nope"))
	assert.Empty(t, g.NeighborsOut("nope", types.RelUsesPattern))
	assert.Empty(t, g.NeighborsIn("nope", types.RelWorksWellIn))
}

func TestAddEdgeReplacesSameRelation(t *testing.T) {
	g := New()
	g.AddEdge(types.Edge{Source: "p", Target: "x", Attrs: types.UsesPatternAttrs{Quality: 0.1}})
	g.AddEdge(types.Edge{Source: "p", Target: "x", Attrs: types.UsesPatternAttrs{Quality: 0.9}})
	g.AddEdge(types.Edge{Source: "p", Target: "x", Attrs: types.InDomainAttrs{}})

	out := g.NeighborsOut("p", types.RelUsesPattern)
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].Attrs.(types.UsesPatternAttrs).Quality)
	assert.Len(t, g.NeighborsIn("x", types.RelInDomain), 1)
	assert.Len(t, g.Edges(), 2)
}

func TestAddNodeKeepsOrder(t *testing.T) {
	g := fixtureGraph()
	g.AddNode(types.PatternNode{ID: "pattern_a", Name: "Renamed", ClusterSize: 31})

	pats := g.Patterns()
	require.Len(t, pats, 2)
	assert.Equal(t, "Renamed", pats[0].Name)
	assert.Equal(t, "pattern_b", pats[1].ID)
}

func TestAddNodeTypeChangeMovesID(t *testing.T) {
	g := New()
	g.AddNode(types.IdeaNode{ID: "shared", Description: "first"})
	g.AddNode(types.PatternNode{ID: "pattern_a", Name: "A"})
	g.AddNode(types.PatternNode{ID: "shared", Name: "Now a pattern", ClusterSize: 4})

	assert.Empty(t, g.Ideas())
	pats := g.Patterns()
	require.Len(t, pats, 2)
	assert.Equal(t, "pattern_a", pats[0].ID)
	assert.Equal(t, "Now a pattern", pats[1].Name)

	p, ok := g.Pattern("shared")
	require.True(t, ok)
	assert.Equal(t, 4, p.ClusterSize)
	_, ok = g.Idea("shared")
	assert.False(t, ok)
}

func TestPaperQuality(t *testing.T) {
	tests := []struct {
		name    string
		reviews []types.PaperReview
		want    float64
	}{
		{"no reviews", nil, 0.5},
		{"all unparseable", []types.PaperReview{{OverallScore: "n/a"}, {OverallScore: ""}}, 0.5},
		{"mixed formats", []types.PaperReview{{OverallScore: "7/10"}, {OverallScore: "bad"}, {OverallScore: "9"}}, 7.0 / 9.0},
		{"clamped high", []types.PaperReview{{OverallScore: "12"}}, 1},
		{"clamped low", []types.PaperReview{{OverallScore: "0"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PaperQuality(types.PaperNode{Reviews: tt.reviews}), 1e-9)
		})
	}
}

func TestBuildEdgesBelongsToSumsToOne(t *testing.T) {
	g := fixtureGraph()
	BuildEdges(g, similarity.Jaccard{})

	for _, idea := range g.Ideas() {
		edges := g.NeighborsOut(idea.ID, types.RelBelongsTo)
		if len(edges) == 0 {
			continue
		}
		var sum float64
		for _, e := range edges {
			w := e.Attrs.(types.BelongsToAttrs).Weight
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9, idea.ID)
	}

	// idea_0: p1 in NLP and Graph Learning, p2 in Graph Learning.
	edges := g.NeighborsOut("idea_0", types.RelBelongsTo)
	require.Len(t, edges, 2)
	assert.Equal(t, types.BelongsToAttrs{Weight: 1.0 / 3.0, PaperCount: 1, TotalPapers: 3}, edges[0].Attrs)
	assert.Equal(t, "domain_1", edges[1].Target)

	// idea_1's only paper has an unknown domain.
	assert.Empty(t, g.NeighborsOut("idea_1", types.RelBelongsTo))
}

func TestBuildEdgesPaperEdges(t *testing.T) {
	g := fixtureGraph()
	BuildEdges(g, nil)

	impl := g.NeighborsOut("p2", types.RelImplements)
	require.Len(t, impl, 1)
	assert.Equal(t, "idea_0", impl[0].Target)

	uses := g.NeighborsOut("p2", types.RelUsesPattern)
	require.Len(t, uses, 2, "unknown pattern ids are skipped")
	assert.InDelta(t, 3.0/9.0, uses[0].Attrs.(types.UsesPatternAttrs).Quality, 1e-9)

	assert.Len(t, g.NeighborsOut("p1", types.RelInDomain), 2)
	assert.Empty(t, g.NeighborsOut("p3", types.RelInDomain))
}

func TestBuildEdgesWorksWellIn(t *testing.T) {
	g := fixtureGraph()
	BuildEdges(g, nil)

	in := g.NeighborsIn("domain_1", types.RelWorksWellIn)
	require.Len(t, in, 2)

	a := in[0].Attrs.(types.WorksWellInAttrs)
	assert.Equal(t, "pattern_a", in[0].Source)
	assert.Equal(t, 2, a.Frequency)
	q1, q2 := 8.0/9.0, 3.0/9.0
	assert.InDelta(t, (q1+q2)/2, a.AvgQuality, 1e-9)
	assert.InDelta(t, (q1+q2)/2, a.Baseline, 1e-9)
	assert.InDelta(t, 0, a.Effectiveness, 1e-9)
	assert.InDelta(t, 0.1, a.Confidence, 1e-9)
}

func TestConfidenceSaturates(t *testing.T) {
	for _, f := range []int{0, 1, 5, 19, 20, 21, 1000} {
		c := Confidence(f)
		assert.LessOrEqual(t, c, 1.0)
		assert.InDelta(t, math.Min(float64(f)/20, 1), c, 1e-12, "frequency %d", f)
	}
}

func TestBuildEdgesSimilarToPaperCap(t *testing.T) {
	g := New()
	g.AddNode(types.IdeaNode{ID: "idea", Description: "shared token"})
	for i := 0; i < MaxSimilarPapers+10; i++ {
		g.AddNode(types.PaperNode{
			ID:      fmt.Sprintf("p%02d", i),
			Reviews: []types.PaperReview{{OverallScore: types.FlexString(fmt.Sprint(1 + i%10))}},
			Idea:    types.PaperIdea{CoreIdea: "shared token"},
		})
	}
	g.AddNode(types.PaperNode{ID: "unrelated", Idea: types.PaperIdea{CoreIdea: "nothing alike"}})
	BuildEdges(g, nil)

	edges := g.NeighborsOut("idea", types.RelSimilarToPaper)
	require.Len(t, edges, MaxSimilarPapers)
	prev := math.Inf(1)
	for _, e := range edges {
		a := e.Attrs.(types.SimilarToPaperAttrs)
		assert.GreaterOrEqual(t, a.Similarity, SimilarPaperFloor)
		assert.InDelta(t, a.Similarity*a.Quality, a.CombinedWeight, 1e-12)
		assert.LessOrEqual(t, a.CombinedWeight, prev)
		prev = a.CombinedWeight
		assert.NotEqual(t, "unrelated", e.Target)
	}
}

func TestStats(t *testing.T) {
	g := fixtureGraph()
	BuildEdges(g, nil)
	s := g.Stats()
	assert.Equal(t, 2, s.Nodes[types.NodeIdea])
	assert.Equal(t, 3, s.Nodes[types.NodePaper])
	assert.Equal(t, 3, s.Edges[types.RelImplements])
	assert.Len(t, s.Edges, len(types.Relations))
}
