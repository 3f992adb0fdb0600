// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package selector picks a small, diverse set of patterns from a ranked
// recall list: a conservative choice, an innovative one, and a third
// labelled cross-domain.
package selector

import (
	"github.com/pdiddy/story-engine/internal/recall"
)

// Slot names a selection strategy.
type Slot string

const (
	Conservative Slot = "conservative"
	Innovative   Slot = "innovative"
	CrossDomain  Slot = "cross_domain"
)

// Slots lists slot names in selection order.
var Slots = []Slot{Conservative, Innovative, CrossDomain}

// Pick is one filled slot.
type Pick struct {
	Slot      Slot             `json:"slot" yaml:"slot"`
	Candidate recall.Candidate `json:"candidate" yaml:"candidate"`
}

// Selection is an ordered set of at most three picks with distinct pattern ids.
type Selection []Pick

// Get returns the pick for slot.
func (s Selection) Get(slot Slot) (recall.Candidate, bool) {
	for _, p := range s {
		if p.Slot == slot {
			return p.Candidate, true
		}
	}
	return recall.Candidate{}, false
}

// IDs maps each filled slot to its pattern id.
func (s Selection) IDs() map[Slot]string {
	out := make(map[Slot]string, len(s))
	for _, p := range s {
		out[p.Slot] = p.Candidate.PatternID
	}
	return out
}

// Select fills the slots from ranked, which must already be sorted.
//
//   - conservative is the top candidate.
//   - innovative is the first remaining candidate with cluster size below
//     nicheClusterSize, or else the remaining candidate with the smallest
//     cluster.
//   - cross_domain is the next remaining candidate by rank. No domain
//     provenance is checked.
//
// An empty ranked list yields an empty selection.
func Select(ranked []recall.Candidate, nicheClusterSize int) Selection {
	if len(ranked) == 0 {
		return nil
	}
	used := make(map[string]bool)
	take := func(c recall.Candidate, slot Slot, sel Selection) Selection {
		used[c.PatternID] = true
		return append(sel, Pick{Slot: slot, Candidate: c})
	}

	sel := take(ranked[0], Conservative, nil)

	innovative := -1
	for i, c := range ranked {
		if !used[c.PatternID] && c.Pattern.ClusterSize < nicheClusterSize {
			innovative = i
			break
		}
	}
	if innovative < 0 {
		for i, c := range ranked {
			if used[c.PatternID] {
				continue
			}
			if innovative < 0 || c.Pattern.ClusterSize < ranked[innovative].Pattern.ClusterSize {
				innovative = i
			}
		}
	}
	if innovative >= 0 {
		sel = take(ranked[innovative], Innovative, sel)
	}

	for _, c := range ranked {
		if !used[c.PatternID] {
			sel = take(c, CrossDomain, sel)
			break
		}
	}
	return sel
}
