// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package story

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

var promptFuncs = template.FuncMap{
	"truncate": truncate,
	"inc":      func(i int) int { return i + 1 },
	"json": func(v any) string {
		data, _ := json.Marshal(v)
		return string(data)
	},
	"score":    formatScore,
}

// generationPromptTmpl asks for a fresh story built on one pattern.
var generationPromptTmpl = template.Must(template.New("generation").Funcs(promptFuncs).Parse(`You are an author at a top NLP venue. Using the research idea and writing pattern below, write a structured paper story.

[Research idea]
{{.Idea}}

[Writing pattern] {{.Pattern.Name}}
{{.Pattern.Summary}}
{{if .Skeletons}}
[Pattern examples]
{{- range $i, $sk := .Skeletons}}
Example {{inc $i}}:
  Title: {{$sk.Title}}
  Problem framing: {{truncate $sk.ProblemFraming 100}}...
  Method: {{truncate $sk.MethodStory 100}}...
{{- end}}
{{end}}
{{- if .Tricks}}
[Frequent techniques]
{{- range .Tricks}}
  - {{.Name}}{{if .Percentage}} (used by {{.Percentage}}){{end}}
{{- end}}
{{end}}
{{- if .Constraints}}
[Constraints]
{{- range .Constraints}}
  - {{.}}
{{- end}}
{{end}}
{{- if .Techniques}}
[Techniques that must be integrated]
{{- range .Techniques}}
  - {{.}}
{{- end}}

Integrate these techniques into the method itself rather than appending them.
{{- if .Restructure}}

IMPORTANT: reviewers found the current approach lacks novelty. Rebuild the core method around the techniques above:
1. Treat them as the first priority of the method, not as patches on the old framework.
2. The first two steps of method_skeleton must apply them directly.
3. innovation_claims must state how they replace a commonplace combination.
{{- end}}
{{end}}
[Task]
Produce the following fields as JSON:
1. title: concise and specific to the key innovation
2. abstract: 150-200 words covering problem, method, and contributions
3. problem_definition: a precise problem statement (50-80 words)
4. method_skeleton: 3-5 method steps in one string, separated by semicolons
5. innovation_claims: a list of 3 contributions
6. experiments_plan: the experimental design (50-80 words)

Output pure JSON with no other text:
{
  "title": "...",
  "abstract": "...",
  "problem_definition": "...",
  "method_skeleton": "...",
  "innovation_claims": ["...", "...", "..."],
  "experiments_plan": "..."
}
`))

// revisionPromptTmpl asks for an edited version of the previous story.
var revisionPromptTmpl = template.Must(template.New("revision").Funcs(promptFuncs).Parse(`You are a senior author at a top NLP venue who revises papers by folding new techniques deep into an existing method.

[Current story]
Title: {{.Previous.Title}}
Abstract: {{.Previous.Abstract}}
Problem: {{.Previous.ProblemDefinition}}
Method: {{.Previous.MethodSkeleton}}
Claims: {{json .Previous.InnovationClaims}}

[Reviewer feedback] (keep what was praised, rework what was criticised)
{{- range .Critique.Reviews}}
- {{.Reviewer}} ({{.Role}}): {{score .Score}}. Feedback: {{truncate .Feedback 250}}...
{{- end}}
{{if .Techniques}}
[Revision task]
Fold the following techniques into method_skeleton and innovation_claims so they address the feedback above:
{{- range .Techniques}}
  - {{.}}
{{- end}}
{{end}}
{{- if eq .Critique.MainIssue "novelty"}}
[Novelty guidance]
The method was judged a common combination. In method_skeleton, make the distinctive use of the new techniques explicit. In innovation_claims, state the essential difference from prior work. Avoid vague phrases such as "improves performance".
{{else if eq .Critique.MainIssue "stability"}}
[Stability guidance]
The method was judged under-specified or unproven. Add concrete stability mechanisms to method_skeleton, such as regularisation, hybrid training, or robustness design.
{{end}}
[Revision rules]
1. Preserve fields the reviewers did not criticise.
2. Embed new techniques into existing steps to form one coherent method, rather than listing them.
3. Describe how each technique is implemented and what problem it solves.

Output the complete revised story as pure JSON with every field filled:
{
  "title": "...",
  "abstract": "...",
  "problem_definition": "...",
  "method_skeleton": "step 1; step 2; step 3",
  "innovation_claims": ["contribution 1", "contribution 2", "contribution 3"],
  "experiments_plan": "..."
}

method_skeleton must be a single string of 3-5 steps separated by semicolons. innovation_claims must be an array of 3 strings.
`))

// reviewPromptTmpl asks one reviewer persona for a score and feedback.
var reviewPromptTmpl = template.Must(template.New("review").Funcs(promptFuncs).Parse(`You are {{.Reviewer.Name}}, a strict reviewer for a top NLP venue (ACL/ICLR) focused on {{.Reviewer.Focus}}.
Scores run from 1 to 10. Below 6 is a reject; above 8 is an accept.
{{- if .Reviewer.Instructions}}
{{.Reviewer.Instructions}}
{{- end}}

Review the following paper story.

[Title] {{.Story.Title}}

[Abstract] {{.Story.Abstract}}

[Problem] {{.Story.ProblemDefinition}}

[Method] {{.Story.MethodSkeleton}}

[Contributions]
{{- range .Story.InnovationClaims}}
  - {{.}}
{{- end}}

[Experiments] {{.Story.ExperimentsPlan}}

Review it for {{.Reviewer.Focus}}:
1. List 3 concrete evaluation dimensions.
2. Score each dimension from 1 to 10 with a reason.
3. The overall score must agree with the dimension scores.
4. Give a low score (below 6) for clear defects.

Output JSON:
{
  "score": 6.5,
  "feedback": "1. Dimension A (6.0): reason...\n2. Dimension B (7.0): reason...\n\nSummary: ..."
}
`))

// noveltyInstructions tighten the Novelty reviewer's bar.
const noveltyInstructions = `[Special attention]
As the novelty reviewer, be strict and do not be swayed by fashionable wording.
1. If the story is a common "A + B" combination seen widely in recent venues without deeper theory, score it 4-5.
2. Applying an existing model to a new task without a task-specific adaptation is not novelty.
3. Say so plainly in the feedback when the combination is common.
4. Only paradigm shifts, counter-intuitive findings, or fundamental improvements earn 8 or above.`

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatScore(f float64) string {
	return fmt.Sprintf("%.1f/10", f)
}
