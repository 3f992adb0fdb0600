// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/internal/httputil"
	"github.com/pdiddy/story-engine/pkg/types"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// BaseURL turns a chat completions endpoint into the API base URL the
// SDK expects.
func BaseURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	return strings.TrimSuffix(endpoint, "/chat/completions")
}

// NewOpenAI returns a client for cfg. Requests retry on HTTP 429.
func NewOpenAI(cfg types.LLMConfig, log *zap.Logger) *OpenAI {
	if log == nil {
		log = zap.NewNop()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = BaseURL(cfg.Endpoint)
	oc.HTTPClient = httputil.NewRetryDoer(&http.Client{}, cfg.MaxRetries, log)
	return &OpenAI{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log,
	}
}

// Complete sends prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, prompt string, p types.CompletionParams) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion (model %s): %w", o.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	o.log.Debug("chat completion",
		zap.String("model", o.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}
