// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package story drafts paper stories with an LLM and reviews them with a
// panel of reviewer personas. Model output is decoded through the
// jsonrepair ladder; anything that still cannot be read falls back to a
// fixed default so a session never stops on a malformed response.
package story

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/jsonrepair"
	"github.com/pdiddy/story-engine/internal/llm"
	"github.com/pdiddy/story-engine/pkg/types"
)

const (
	maxPromptSkeletons = 2
	maxPromptTricks    = 5
	restructureAfter   = 3
)

// placeholderClaims are key names some models emit in place of claims.
var placeholderClaims = map[string]bool{
	"novelty":                true,
	"specific_contributions": true,
	"innovative_points":      true,
}

// Request describes a fresh generation from one pattern.
type Request struct {
	Idea        string
	Pattern     types.PatternNode
	Constraints []string
	Techniques  []string

	// Issue is the diagnosis that produced Techniques, if any.
	Issue types.Issue
}

// Revision describes an editor-mode pass over the previous draft.
type Revision struct {
	Idea     string
	Pattern  types.PatternNode
	Previous types.Story
	Critique types.Critique

	// Techniques holds only the notes added since Previous was drafted.
	Techniques []string
}

// Generator drafts stories.
type Generator struct {
	client llm.Client
	params types.CompletionParams
	log    *zap.Logger
}

// NewGenerator returns a Generator that samples with params.
func NewGenerator(client llm.Client, params types.CompletionParams, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{client: client, params: params, log: log}
}

type generationData struct {
	Request
	Skeletons   []types.Skeleton
	Tricks      []types.Technique
	Restructure bool
}

// Generate drafts a new story. Fields the model leaves empty are taken
// from DefaultStory.
func (g *Generator) Generate(ctx context.Context, req Request) types.Story {
	data := generationData{
		Request:     req,
		Skeletons:   head(req.Pattern.SkeletonExamples, maxPromptSkeletons),
		Tricks:      head(req.Pattern.TopTricks, maxPromptTricks),
		Restructure: req.Issue == types.IssueNovelty || len(req.Techniques) > restructureAfter,
	}
	g.log.Info("generating story",
		zap.String("pattern", req.Pattern.ID),
		zap.Int("techniques", len(req.Techniques)),
		zap.Int("constraints", len(req.Constraints)))

	prompt, err := render(generationPromptTmpl, data)
	if err != nil {
		g.log.Error("rendering generation prompt", zap.Error(err))
		return DefaultStory(req.Idea)
	}
	s := g.parse(g.complete(ctx, prompt))
	return fillEmpty(s, DefaultStory(req.Idea))
}

// Revise edits the previous story in place of a full rewrite. Fields the
// model leaves empty keep their previous value, and claims that are empty
// or placeholders are restored from the previous draft.
func (g *Generator) Revise(ctx context.Context, rev Revision) types.Story {
	g.log.Info("revising story",
		zap.String("pattern", rev.Pattern.ID),
		zap.String("issue", string(rev.Critique.MainIssue)),
		zap.Int("new_techniques", len(rev.Techniques)))

	prompt, err := render(revisionPromptTmpl, rev)
	if err != nil {
		g.log.Error("rendering revision prompt", zap.Error(err))
		return rev.Previous
	}
	s := g.parse(g.complete(ctx, prompt))
	if invalidClaims(s.InnovationClaims) {
		if len(s.InnovationClaims) > 0 {
			g.log.Warn("restoring placeholder innovation claims", zap.Strings("claims", s.InnovationClaims))
		}
		s.InnovationClaims = nil
	}
	return fillEmpty(s, rev.Previous)
}

func (g *Generator) complete(ctx context.Context, prompt string) string {
	text, err := g.client.Complete(ctx, prompt, g.params)
	if err != nil {
		g.log.Warn("story completion failed, using defaults", zap.Error(err))
		return ""
	}
	return text
}

// parse runs the decoding ladder. An empty story means nothing could be read.
func (g *Generator) parse(text string) types.Story {
	if strings.TrimSpace(text) == "" {
		return types.Story{}
	}
	var raw rawStory
	stage, err := jsonrepair.Decode(text, &raw)
	if err == nil {
		g.log.Debug("decoded story", zap.Stringer("stage", stage))
		return raw.story(g.log)
	}
	g.log.Warn("story JSON unreadable, extracting fields", zap.Error(err))
	return extractStory(text)
}

// rawStory accepts any JSON shape per field so that objects and lists
// where text was expected can be flattened instead of failing the decode.
type rawStory struct {
	Title             json.RawMessage `json:"title"`
	Abstract          json.RawMessage `json:"abstract"`
	ProblemDefinition json.RawMessage `json:"problem_definition"`
	MethodSkeleton    json.RawMessage `json:"method_skeleton"`
	InnovationClaims  json.RawMessage `json:"innovation_claims"`
	ExperimentsPlan   json.RawMessage `json:"experiments_plan"`
}

func (r rawStory) story(log *zap.Logger) types.Story {
	text := func(field string, raw json.RawMessage) string {
		s, plain := flattenText(raw)
		if !plain {
			log.Warn("flattened non-string story field", zap.String("field", field))
		}
		return s
	}
	claims, plain := flattenList(r.InnovationClaims)
	if !plain {
		log.Warn("flattened non-list story field", zap.String("field", "innovation_claims"))
	}
	return types.Story{
		Title:             text("title", r.Title),
		Abstract:          text("abstract", r.Abstract),
		ProblemDefinition: text("problem_definition", r.ProblemDefinition),
		MethodSkeleton:    text("method_skeleton", r.MethodSkeleton),
		InnovationClaims:  claims,
		ExperimentsPlan:   text("experiments_plan", r.ExperimentsPlan),
	}
}

// flattenText renders raw as text. Strings pass through; arrays and
// objects are joined with "; " in document order. plain is false when
// raw was not a string, null, or absent.
func flattenText(raw json.RawMessage) (s string, plain bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	switch raw[0] {
	case '"':
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", false
		}
		return strings.TrimSpace(v), true
	case '[', '{':
		return strings.Join(flattenItems(raw), "; "), false
	default:
		return string(raw), false
	}
}

// flattenList renders raw as a list of strings. plain is false when raw
// was not an array, null, or absent.
func flattenList(raw json.RawMessage) (items []string, plain bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	switch raw[0] {
	case '[':
		return flattenItems(raw), true
	case '{':
		return flattenItems(raw), false
	default:
		if s, _ := flattenText(raw); s != "" {
			return []string{s}, false
		}
		return nil, false
	}
}

// flattenItems returns the non-empty text of each array element or object
// value in raw, in order.
func flattenItems(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	open, err := dec.Token()
	if err != nil {
		return nil
	}
	isObject := open == json.Delim('{')

	var out []string
	for dec.More() {
		if isObject {
			if _, err := dec.Token(); err != nil {
				return out
			}
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return out
		}
		if s, _ := flattenText(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractStory salvages individual fields from text that is not JSON.
func extractStory(text string) types.Story {
	var s types.Story
	s.Title, _ = jsonrepair.ExtractString(text, "title")
	s.Abstract, _ = jsonrepair.ExtractString(text, "abstract")
	s.ProblemDefinition, _ = jsonrepair.ExtractString(text, "problem_definition")
	s.MethodSkeleton, _ = jsonrepair.ExtractString(text, "method_skeleton")
	s.ExperimentsPlan, _ = jsonrepair.ExtractString(text, "experiments_plan")
	s.InnovationClaims, _ = jsonrepair.ExtractStringList(text, "innovation_claims")
	return s
}

func invalidClaims(claims []string) bool {
	if len(claims) == 0 {
		return true
	}
	for _, c := range claims {
		if placeholderClaims[c] {
			return true
		}
	}
	return false
}

// fillEmpty copies every empty field of s from fallback.
func fillEmpty(s, fallback types.Story) types.Story {
	pick := func(v, alt string) string {
		if strings.TrimSpace(v) == "" {
			return alt
		}
		return v
	}
	s.Title = pick(s.Title, fallback.Title)
	s.Abstract = pick(s.Abstract, fallback.Abstract)
	s.ProblemDefinition = pick(s.ProblemDefinition, fallback.ProblemDefinition)
	s.MethodSkeleton = pick(s.MethodSkeleton, fallback.MethodSkeleton)
	s.ExperimentsPlan = pick(s.ExperimentsPlan, fallback.ExperimentsPlan)
	if len(s.InnovationClaims) == 0 {
		s.InnovationClaims = append([]string(nil), fallback.InnovationClaims...)
	}
	return s
}

// DefaultStory is the stub used when the model produces nothing usable.
func DefaultStory(idea string) types.Story {
	return types.Story{
		Title:             "An Innovative Method Based on " + truncate(idea, 20),
		Abstract:          "We propose a new framework to address " + idea + ". Experiments demonstrate its effectiveness.",
		ProblemDefinition: "Existing methods perform poorly on " + idea + ".",
		MethodSkeleton:    "Step 1: build the base framework; Step 2: design the core algorithm; Step 3: optimize performance.",
		InnovationClaims: []string{
			"Propose a new method framework",
			"Design an efficient algorithm",
			"Validate effectiveness on multiple datasets",
		},
		ExperimentsPlan: "Compare against baseline methods on standard datasets and validate the contribution of each component.",
	}
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
