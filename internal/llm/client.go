// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides the chat-completion clients used to generate and
// critique stories. Every client takes a single user prompt and returns
// the raw text of the first choice.
package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/pkg/types"
)

// ErrEmptyResponse is returned when the backend answers without choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Client completes a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string, p types.CompletionParams) (string, error)
}

// Offline answers every prompt with an empty string. Callers fall back to
// their deterministic defaults, so the pipeline runs end to end without a
// network or an API key.
type Offline struct{}

// Complete returns "".
func (Offline) Complete(context.Context, string, types.CompletionParams) (string, error) {
	return "", nil
}

// New builds the client stack for cfg: the OpenAI-compatible client with
// 429 retries behind a circuit breaker. An empty API key, or offline set,
// yields Offline.
func New(cfg types.LLMConfig, offline bool, log *zap.Logger) Client {
	if log == nil {
		log = zap.NewNop()
	}
	if offline || cfg.APIKey == "" {
		log.Info("llm offline, using default outputs")
		return Offline{}
	}
	return NewBreaker(NewOpenAI(cfg, log), cfg.BreakerFailures, cfg.BreakerCooldown, log)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
