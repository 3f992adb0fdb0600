// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import "github.com/pdiddy/story-engine/pkg/types"

// DefaultQuality is the quality of a paper with no parseable review score.
const DefaultQuality = 0.5

// PaperQuality maps the mean review score of p from the 1-10 scale onto
// [0, 1]. Unparseable scores are skipped.
func PaperQuality(p types.PaperNode) float64 {
	var sum float64
	var n int
	for _, r := range p.Reviews {
		if v, ok := r.OverallScore.Float(); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return DefaultQuality
	}
	q := (sum/float64(n) - 1) / 9
	return min(max(q, 0), 1)
}
