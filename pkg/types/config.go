package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultLLMEndpoint is the OpenAI-compatible chat completions endpoint used
// when none is configured.
const DefaultLLMEndpoint = "https://api.siliconflow.cn/v1/chat/completions"

// DefaultLLMModel is the model identifier used when none is configured.
const DefaultLLMModel = "Qwen/Qwen2.5-7B-Instruct"

// LLMConfig holds settings for the chat-completion backend.
type LLMConfig struct {
	// Endpoint is the chat completions URL. A trailing "/chat/completions"
	// is accepted and stripped to form the API base URL.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint" validate:"required,url"`

	// APIKey authenticates requests. Empty selects the offline client.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the model identifier (e.g. "Qwen/Qwen2.5-7B-Instruct").
	Model string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`

	// Timeout bounds a single completion request (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// MaxRetries is the number of retries on HTTP 429 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`

	// BreakerFailures is the number of consecutive failures that opens the
	// circuit breaker (default 3).
	BreakerFailures uint32 `json:"breaker_failures" yaml:"breaker_failures" mapstructure:"breaker_failures" validate:"gt=0"`

	// BreakerCooldown is how long the breaker stays open before probing (default 30s).
	BreakerCooldown time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown" mapstructure:"breaker_cooldown" validate:"gt=0"`
}

// CompletionParams are the sampling parameters for one kind of LLM call.
type CompletionParams struct {
	Temperature float32 `json:"temperature" yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
}

// StoryConfig holds sampling parameters for generation and critique.
type StoryConfig struct {
	Generate CompletionParams `json:"generate" yaml:"generate" mapstructure:"generate"`
	Critique CompletionParams `json:"critique" yaml:"critique" mapstructure:"critique"`
}

// FusionWeights are the per-path weights applied when fusing recall scores.
type FusionWeights struct {
	Path1 float64 `json:"path1" yaml:"path1" mapstructure:"path1" validate:"gte=0"`
	Path2 float64 `json:"path2" yaml:"path2" mapstructure:"path2" validate:"gte=0"`
	Path3 float64 `json:"path3" yaml:"path3" mapstructure:"path3" validate:"gte=0"`
}

// Named fusion profiles.
const (
	ProfileFull       = "full"
	ProfileSimplified = "simplified"
)

// FusionProfiles maps profile names to their path weights.
var FusionProfiles = map[string]FusionWeights{
	ProfileFull:       {Path1: 0.4, Path2: 0.3, Path3: 0.3},
	ProfileSimplified: {Path1: 0.4, Path2: 0.2, Path3: 0.4},
}

// RecallConfig holds settings for multi-path pattern recall.
type RecallConfig struct {
	// TopKIdeas bounds the similar ideas used by path 1 (default 10).
	TopKIdeas int `json:"top_k_ideas" yaml:"top_k_ideas" mapstructure:"top_k_ideas" validate:"gt=0"`

	// TopKDomains bounds the domains used by path 2 (default 5).
	TopKDomains int `json:"top_k_domains" yaml:"top_k_domains" mapstructure:"top_k_domains" validate:"gt=0"`

	// TopKPapers bounds the similar papers used by path 3 (default 20).
	TopKPapers int `json:"top_k_papers" yaml:"top_k_papers" mapstructure:"top_k_papers" validate:"gt=0"`

	// FinalTopK bounds the fused ranking (default 10).
	FinalTopK int `json:"final_top_k" yaml:"final_top_k" mapstructure:"final_top_k" validate:"gt=0"`

	// PaperSimilarityFloor is the minimum similarity for a path 3 paper (default 0.1).
	PaperSimilarityFloor float64 `json:"paper_similarity_floor" yaml:"paper_similarity_floor" mapstructure:"paper_similarity_floor" validate:"gte=0,lte=1"`

	// Profile names the fusion weights: "full" or "simplified".
	Profile string `json:"profile" yaml:"profile" mapstructure:"profile" validate:"oneof=full simplified"`

	// Weights, when set, override the profile's weights.
	Weights *FusionWeights `json:"weights,omitempty" yaml:"weights,omitempty" mapstructure:"weights"`
}

// Fusion returns the effective fusion weights.
func (c RecallConfig) Fusion() FusionWeights {
	if c.Weights != nil {
		return *c.Weights
	}
	if w, ok := FusionProfiles[c.Profile]; ok {
		return w
	}
	return FusionProfiles[ProfileFull]
}

// SelectorConfig holds settings for pattern slot selection.
type SelectorConfig struct {
	// NicheClusterSize is the cluster size below which a pattern counts as
	// innovative (default 10).
	NicheClusterSize int `json:"niche_cluster_size" yaml:"niche_cluster_size" mapstructure:"niche_cluster_size" validate:"gt=0"`
}

// RefineConfig holds settings for the critique and refinement loop.
// Rank windows are 1-based and inclusive.
type RefineConfig struct {
	PassScore         float64 `json:"pass_score" yaml:"pass_score" mapstructure:"pass_score" validate:"gte=0,lte=10"`
	MaxIterations     int     `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations" validate:"gte=0"`
	TailRankFrom      int     `json:"tail_rank_from" yaml:"tail_rank_from" mapstructure:"tail_rank_from" validate:"gt=0"`
	TailRankTo        int     `json:"tail_rank_to" yaml:"tail_rank_to" mapstructure:"tail_rank_to" validate:"gtefield=TailRankFrom"`
	HeadRankFrom      int     `json:"head_rank_from" yaml:"head_rank_from" mapstructure:"head_rank_from" validate:"gt=0"`
	HeadRankTo        int     `json:"head_rank_to" yaml:"head_rank_to" mapstructure:"head_rank_to" validate:"gtefield=HeadRankFrom"`
	NicheClusterSize  int     `json:"niche_cluster_size" yaml:"niche_cluster_size" mapstructure:"niche_cluster_size" validate:"gt=0"`
	MatureClusterSize int     `json:"mature_cluster_size" yaml:"mature_cluster_size" mapstructure:"mature_cluster_size" validate:"gte=0"`

	// StallDelta is the minimum novelty gain between consecutive novelty
	// diagnoses that avoids a global pattern switch (default 0.5).
	StallDelta float64 `json:"stall_delta" yaml:"stall_delta" mapstructure:"stall_delta" validate:"gte=0"`
}

// VerifyConfig holds settings for collision verification.
type VerifyConfig struct {
	SampleSize         int     `json:"sample_size" yaml:"sample_size" mapstructure:"sample_size" validate:"gt=0"`
	CollisionThreshold float64 `json:"collision_threshold" yaml:"collision_threshold" mapstructure:"collision_threshold" validate:"gte=0,lte=1"`
	MatchFloor         float64 `json:"match_floor" yaml:"match_floor" mapstructure:"match_floor" validate:"gte=0,lte=1"`
	MaxMatches         int     `json:"max_matches" yaml:"max_matches" mapstructure:"max_matches" validate:"gt=0"`
}

// Config groups all settings for a story-engine run.
type Config struct {
	// DataDir holds the node and edge JSON files and graph.db.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir" validate:"required"`

	// OutputDir receives final_story.json and pipeline_result.json.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir" validate:"required"`

	LLM      LLMConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Story    StoryConfig    `json:"story" yaml:"story" mapstructure:"story"`
	Recall   RecallConfig   `json:"recall" yaml:"recall" mapstructure:"recall"`
	Selector SelectorConfig `json:"selector" yaml:"selector" mapstructure:"selector"`
	Refine   RefineConfig   `json:"refine" yaml:"refine" mapstructure:"refine"`
	Verify   VerifyConfig   `json:"verify" yaml:"verify" mapstructure:"verify"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		DataDir:   "output",
		OutputDir: "output",
		LLM: LLMConfig{
			Endpoint:        DefaultLLMEndpoint,
			Model:           DefaultLLMModel,
			Timeout:         60 * time.Second,
			MaxRetries:      3,
			BreakerFailures: 3,
			BreakerCooldown: 30 * time.Second,
		},
		Story: StoryConfig{
			Generate: CompletionParams{Temperature: 0.7, MaxTokens: 1500},
			Critique: CompletionParams{Temperature: 0.3, MaxTokens: 800},
		},
		Recall: RecallConfig{
			TopKIdeas:            10,
			TopKDomains:          5,
			TopKPapers:           20,
			FinalTopK:            10,
			PaperSimilarityFloor: 0.1,
			Profile:              ProfileFull,
		},
		Selector: SelectorConfig{NicheClusterSize: 10},
		Refine: RefineConfig{
			PassScore:         7.0,
			MaxIterations:     3,
			TailRankFrom:      5,
			TailRankTo:        10,
			HeadRankFrom:      1,
			HeadRankTo:        3,
			NicheClusterSize:  10,
			MatureClusterSize: 15,
			StallDelta:        0.5,
		},
		Verify: VerifyConfig{
			SampleSize:         50,
			CollisionThreshold: 0.75,
			MatchFloor:         0.3,
			MaxMatches:         3,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
