// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for story-engine: graph
// nodes and edges, stories and critiques, and configuration.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NodeType is the discriminator carried by node records.
type NodeType string

const (
	NodeIdea    NodeType = "Idea"
	NodePattern NodeType = "Pattern"
	NodeDomain  NodeType = "Domain"
	NodePaper   NodeType = "Paper"
)

// Node is implemented by the four node variants of the pattern graph.
// The set is closed: only types in this package implement it.
type Node interface {
	NodeID() string
	NodeType() NodeType
	isNode()
}

// IdeaNode is a short research proposal linked to the papers that realized it.
type IdeaNode struct {
	ID             string   `json:"idea_id" yaml:"idea_id"`
	Description    string   `json:"description" yaml:"description"`
	SourcePaperIDs []string `json:"source_paper_ids,omitempty" yaml:"source_paper_ids,omitempty"`
	PatternIDs     []string `json:"pattern_ids,omitempty" yaml:"pattern_ids,omitempty"`
}

// Skeleton is the structural narrative of one paper.
type Skeleton struct {
	Title            string `json:"title,omitempty" yaml:"title,omitempty"`
	ProblemFraming   string `json:"problem_framing,omitempty" yaml:"problem_framing,omitempty"`
	GapPattern       string `json:"gap_pattern,omitempty" yaml:"gap_pattern,omitempty"`
	MethodStory      string `json:"method_story,omitempty" yaml:"method_story,omitempty"`
	ExperimentsStory string `json:"experiments_story,omitempty" yaml:"experiments_story,omitempty"`
}

// Technique is a named method-level device associated with a pattern.
type Technique struct {
	Name       string     `json:"name" yaml:"name"`
	Count      int        `json:"count,omitempty" yaml:"count,omitempty"`
	Percentage FlexString `json:"percentage,omitempty" yaml:"percentage,omitempty"`
}

// PatternNode is a reusable writing strategy backed by a cluster of papers.
// ClusterSize is the maturity signal used by selection and injection.
type PatternNode struct {
	ID               string      `json:"pattern_id" yaml:"pattern_id"`
	Name             string      `json:"name" yaml:"name"`
	Summary          string      `json:"summary,omitempty" yaml:"summary,omitempty"`
	WritingGuide     string      `json:"writing_guide,omitempty" yaml:"writing_guide,omitempty"`
	ClusterSize      int         `json:"cluster_size" yaml:"cluster_size"`
	SkeletonExamples []Skeleton  `json:"skeleton_examples,omitempty" yaml:"skeleton_examples,omitempty"`
	TopTricks        []Technique `json:"top_tricks,omitempty" yaml:"top_tricks,omitempty"`
}

// DomainNode is a named research area.
type DomainNode struct {
	ID   string `json:"domain_id" yaml:"domain_id"`
	Name string `json:"name" yaml:"name"`
}

// PaperReview is one review attached to a paper. Scores arrive as numbers
// or as strings such as "7/10".
type PaperReview struct {
	OverallScore FlexString `json:"overall_score" yaml:"overall_score"`
}

// PaperIdea holds the paper's extracted core idea.
type PaperIdea struct {
	CoreIdea string `json:"core_idea,omitempty" yaml:"core_idea,omitempty"`
}

// PaperNode is a published paper with its reviews and narrative skeleton.
type PaperNode struct {
	ID         string        `json:"paper_id" yaml:"paper_id"`
	Title      string        `json:"title" yaml:"title"`
	Reviews    []PaperReview `json:"reviews,omitempty" yaml:"reviews,omitempty"`
	Domains    []string      `json:"domains,omitempty" yaml:"domains,omitempty"`
	PatternIDs []string      `json:"pattern_ids,omitempty" yaml:"pattern_ids,omitempty"`
	Idea       PaperIdea     `json:"idea" yaml:"idea"`
	Skeleton   Skeleton      `json:"skeleton" yaml:"skeleton"`
}

func (n IdeaNode) NodeID() string    { return n.ID }
func (n PatternNode) NodeID() string { return n.ID }
func (n DomainNode) NodeID() string  { return n.ID }
func (n PaperNode) NodeID() string   { return n.ID }

func (IdeaNode) NodeType() NodeType    { return NodeIdea }
func (PatternNode) NodeType() NodeType { return NodePattern }
func (DomainNode) NodeType() NodeType  { return NodeDomain }
func (PaperNode) NodeType() NodeType   { return NodePaper }

func (IdeaNode) isNode()    {}
func (PatternNode) isNode() {}
func (DomainNode) isNode()  {}
func (PaperNode) isNode()   {}

// MarshalNode encodes n with its node_type discriminator as the first field.
func MarshalNode(n Node) ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encoding %s node %s: %w", n.NodeType(), n.NodeID(), err)
	}
	return prependFields(body, map[string]string{"node_type": string(n.NodeType())}, []string{"node_type"}), nil
}

// UnmarshalNode decodes a node record using its node_type discriminator.
func UnmarshalNode(data []byte) (Node, error) {
	var head struct {
		NodeType NodeType `json:"node_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding node header: %w", err)
	}

	switch head.NodeType {
	case NodeIdea:
		var n IdeaNode
		err := json.Unmarshal(data, &n)
		return n, err
	case NodePattern:
		var n PatternNode
		err := json.Unmarshal(data, &n)
		return n, err
	case NodeDomain:
		var n DomainNode
		err := json.Unmarshal(data, &n)
		return n, err
	case NodePaper:
		var n PaperNode
		err := json.Unmarshal(data, &n)
		return n, err
	default:
		return nil, fmt.Errorf("unknown node_type %q", head.NodeType)
	}
}

// Relation is the tag of a directed edge.
type Relation string

const (
	RelImplements     Relation = "implements"
	RelUsesPattern    Relation = "uses_pattern"
	RelInDomain       Relation = "in_domain"
	RelBelongsTo      Relation = "belongs_to"
	RelWorksWellIn    Relation = "works_well_in"
	RelSimilarToPaper Relation = "similar_to_paper"
)

// Relations lists every valid relation tag.
var Relations = []Relation{
	RelImplements, RelUsesPattern, RelInDomain,
	RelBelongsTo, RelWorksWellIn, RelSimilarToPaper,
}

// EdgeAttrs is the relation-specific payload of an edge. Each relation has
// exactly one attribute struct, so the relation is derived from the payload.
type EdgeAttrs interface {
	Relation() Relation
}

// ImplementsAttrs links a paper to the idea it realizes.
type ImplementsAttrs struct{}

// UsesPatternAttrs links a paper to a pattern, weighted by paper quality.
type UsesPatternAttrs struct {
	Quality float64 `json:"quality"`
}

// InDomainAttrs links a paper to a domain.
type InDomainAttrs struct{}

// BelongsToAttrs links an idea to a domain. Weight is the share of the
// idea's source-paper domain memberships that fall in this domain.
type BelongsToAttrs struct {
	Weight      float64 `json:"weight"`
	PaperCount  int     `json:"paper_count"`
	TotalPapers int     `json:"total_papers"`
}

// WorksWellInAttrs links a pattern to a domain where it performs well.
type WorksWellInAttrs struct {
	Frequency     int     `json:"frequency"`
	Effectiveness float64 `json:"effectiveness"`
	Confidence    float64 `json:"confidence"`
	AvgQuality    float64 `json:"avg_quality"`
	Baseline      float64 `json:"baseline"`
}

// SimilarToPaperAttrs links an idea to a textually similar paper.
type SimilarToPaperAttrs struct {
	Similarity     float64 `json:"similarity"`
	Quality        float64 `json:"quality"`
	CombinedWeight float64 `json:"combined_weight"`
}

func (ImplementsAttrs) Relation() Relation     { return RelImplements }
func (UsesPatternAttrs) Relation() Relation    { return RelUsesPattern }
func (InDomainAttrs) Relation() Relation       { return RelInDomain }
func (BelongsToAttrs) Relation() Relation      { return RelBelongsTo }
func (WorksWellInAttrs) Relation() Relation    { return RelWorksWellIn }
func (SimilarToPaperAttrs) Relation() Relation { return RelSimilarToPaper }

// Edge is a directed, typed edge. On the wire it is a flat object:
// {"source": ..., "target": ..., "relation": ..., <attributes>}.
type Edge struct {
	Source string
	Target string
	Attrs  EdgeAttrs
}

// Relation returns the edge's relation tag.
func (e Edge) Relation() Relation {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs.Relation()
}

// MarshalJSON encodes the edge as a flat record.
func (e Edge) MarshalJSON() ([]byte, error) {
	if e.Attrs == nil {
		return nil, fmt.Errorf("edge %s -> %s has no attributes", e.Source, e.Target)
	}
	body, err := json.Marshal(e.Attrs)
	if err != nil {
		return nil, fmt.Errorf("encoding %s attributes: %w", e.Relation(), err)
	}
	return prependFields(body, map[string]string{
		"source":   e.Source,
		"target":   e.Target,
		"relation": string(e.Relation()),
	}, []string{"source", "target", "relation"}), nil
}

// UnmarshalJSON decodes a flat edge record. Unknown relations and
// attributes that do not belong to the relation are rejected.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding edge: %w", err)
	}

	var source, target string
	var rel Relation
	for key, dst := range map[string]any{"source": &source, "target": &target, "relation": &rel} {
		raw, ok := fields[key]
		if !ok {
			return fmt.Errorf("edge missing %q", key)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decoding edge %s: %w", key, err)
		}
		delete(fields, key)
	}

	rest, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("re-encoding edge attributes: %w", err)
	}
	attrs, err := decodeAttrs(rel, rest)
	if err != nil {
		return fmt.Errorf("edge %s -> %s: %w", source, target, err)
	}

	e.Source = source
	e.Target = target
	e.Attrs = attrs
	return nil
}

func decodeAttrs(rel Relation, raw []byte) (EdgeAttrs, error) {
	switch rel {
	case RelImplements:
		var a ImplementsAttrs
		return a, strictUnmarshal(raw, &a)
	case RelUsesPattern:
		var a UsesPatternAttrs
		return a, strictUnmarshal(raw, &a)
	case RelInDomain:
		var a InDomainAttrs
		return a, strictUnmarshal(raw, &a)
	case RelBelongsTo:
		var a BelongsToAttrs
		return a, strictUnmarshal(raw, &a)
	case RelWorksWellIn:
		var a WorksWellInAttrs
		return a, strictUnmarshal(raw, &a)
	case RelSimilarToPaper:
		var a SimilarToPaperAttrs
		return a, strictUnmarshal(raw, &a)
	default:
		return nil, fmt.Errorf("unknown relation %q", rel)
	}
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding attributes: %w", err)
	}
	return nil
}

// prependFields inserts string fields, in order, at the start of a JSON object.
func prependFields(body []byte, values map[string]string, order []string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		v, _ := json.Marshal(values[key])
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	inner := bytes.TrimSpace(body)
	inner = bytes.TrimPrefix(inner, []byte("{"))
	if len(bytes.TrimSpace(inner)) > 1 {
		buf.WriteByte(',')
	}
	buf.Write(inner)
	return buf.Bytes()
}

// FlexString decodes from either a JSON string or a JSON number and keeps
// the textual form.
type FlexString string

// UnmarshalJSON accepts strings, numbers, and null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// Float parses the leading numeric part, so "7/10" and " 7.5 " both parse.
func (f FlexString) Float() (float64, bool) {
	s := string(f)
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
