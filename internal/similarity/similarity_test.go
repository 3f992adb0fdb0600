// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"words and punctuation", "Graph-Neural networks, v2!", []string{"graph", "neural", "networks", "v2"}},
		{"underscore stays in word", "top_k recall", []string{"top_k", "recall"}},
		{"full-width folded", "ＢＥＲＴ model", []string{"bert", "model"}},
		{"han per character", "蒸馏Transformer", []string{"蒸", "馏", "transformer"}},
		{"empty", "", nil},
		{"only punctuation", " -- ,, ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestJaccard(t *testing.T) {
	var s Jaccard
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "contrastive pretraining of graphs", "contrastive pretraining of graphs", 1},
		{"disjoint", "graph neural network", "protein folding kinetics", 0},
		{"partial", "graph neural network", "graph neural network for text", 3.0 / 5.0},
		{"case insensitive", "Graph", "graph", 1},
		{"empty side", "", "graph", 0},
		{"both empty", "", "", 0},
		{"duplicates ignored", "graph graph graph", "graph", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Similarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.InDelta(t, got, s.Similarity(tt.b, tt.a), 1e-12, "symmetric")
		})
	}
}
