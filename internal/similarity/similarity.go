// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package similarity scores the textual overlap of two spans. The default
// scorer is token-set Jaccard; it is deliberately simple and stateless.
package similarity

import (
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Scorer computes a symmetric similarity in [0, 1].
type Scorer interface {
	Similarity(a, b string) float64
}

// Jaccard scores two spans by |A ∩ B| / |A ∪ B| over their token sets.
type Jaccard struct{}

// Similarity returns 0 when either span has no tokens.
func (Jaccard) Similarity(a, b string) float64 {
	return JaccardSets(TokenSet(a), TokenSet(b))
}

// JaccardSets scores two precomputed token sets.
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) map[string]struct{} {
	toks := Tokenize(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

// Tokenize normalizes s (NFKC, case folded) and splits it into tokens.
// Runs of letters, digits, and underscores form word tokens. Scripts
// written without spaces (Han, Hiragana, Katakana, Thai) yield one token
// per character so that overlap is still measurable.
func Tokenize(s string) []string {
	s = cases.Fold().String(norm.NFKC.String(s))

	var toks []string
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) > 0 {
			toks = append(toks, string(word))
			word = word[:0]
		}
	}
	for _, r := range s {
		switch {
		case isUnspaced(r):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '_':
			word = append(word, r)
		default:
			flush()
		}
	}
	flush()
	return toks
}

func isUnspaced(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai)
}
