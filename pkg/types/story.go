// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Story is the structured draft of a paper narrative.
type Story struct {
	Title             string   `json:"title" yaml:"title"`
	Abstract          string   `json:"abstract" yaml:"abstract"`
	ProblemDefinition string   `json:"problem_definition" yaml:"problem_definition"`
	MethodSkeleton    string   `json:"method_skeleton" yaml:"method_skeleton"`
	InnovationClaims  []string `json:"innovation_claims" yaml:"innovation_claims"`
	ExperimentsPlan   string   `json:"experiments_plan" yaml:"experiments_plan"`
}

// ReviewerRole names a critique persona.
type ReviewerRole string

const (
	RoleMethodology ReviewerRole = "Methodology"
	RoleNovelty     ReviewerRole = "Novelty"
	RoleStoryteller ReviewerRole = "Storyteller"
)

// Issue is the diagnosis that selects a refinement strategy.
type Issue string

const (
	IssueNovelty          Issue = "novelty"
	IssueStability        Issue = "stability"
	IssueInterpretability Issue = "interpretability"
	IssueDomainMismatch   Issue = "domain_mismatch"
)

// ReviewerScore is one persona's verdict on a story.
type ReviewerScore struct {
	Reviewer string       `json:"reviewer" yaml:"reviewer"`
	Role     ReviewerRole `json:"role" yaml:"role"`
	Score    float64      `json:"score" yaml:"score"`
	Feedback string       `json:"feedback" yaml:"feedback"`
}

// Critique aggregates the reviewer panel's verdicts.
type Critique struct {
	Pass        bool            `json:"pass" yaml:"pass"`
	AvgScore    float64         `json:"avg_score" yaml:"avg_score"`
	Reviews     []ReviewerScore `json:"reviews" yaml:"reviews"`
	MainIssue   Issue           `json:"main_issue" yaml:"main_issue"`
	Suggestions []string        `json:"suggestions" yaml:"suggestions"`
}

// ScoreFor returns the score given by the first reviewer with role.
func (c Critique) ScoreFor(role ReviewerRole) (float64, bool) {
	for _, r := range c.Reviews {
		if r.Role == role {
			return r.Score, true
		}
	}
	return 0, false
}
