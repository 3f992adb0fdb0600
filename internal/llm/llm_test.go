// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/story-engine/internal/httputil"
	"github.com/pdiddy/story-engine/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

const completionBody = `{
  "id": "cmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "test-model",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "hello story"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
}`

func testConfig(url string) types.LLMConfig {
	cfg := types.DefaultConfig().LLM
	cfg.Endpoint = url + "/v1/chat/completions"
	cfg.APIKey = "sk-test"
	cfg.Model = "test-model"
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.siliconflow.cn/v1", BaseURL(types.DefaultLLMEndpoint))
	assert.Equal(t, "http://localhost:8000/v1", BaseURL("http://localhost:8000/v1/"))
	assert.Equal(t, "http://localhost:8000/v1", BaseURL("http://localhost:8000/v1/chat/completions/"))
}

func TestOpenAIComplete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth, path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody))
	}))
	defer ts.Close()

	c := NewOpenAI(testConfig(ts.URL), nil)
	out, err := c.Complete(context.Background(), "write a story", types.CompletionParams{Temperature: 0.7, MaxTokens: 1500})
	require.NoError(t, err)

	assert.Equal(t, "hello story", out)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "test-model", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	assert.Equal(t, 1500, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "write a story", got.Messages[0].Content)
}

func TestOpenAIRetriesOn429(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody))
	}))
	defer ts.Close()

	out, err := NewOpenAI(testConfig(ts.URL), nil).Complete(context.Background(), "p", types.CompletionParams{MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "hello story", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer ts.Close()

	_, err := NewOpenAI(testConfig(ts.URL), nil).Complete(context.Background(), "p", types.CompletionParams{MaxTokens: 10})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer ts.Close()

	_, err := NewOpenAI(testConfig(ts.URL), nil).Complete(context.Background(), "p", types.CompletionParams{MaxTokens: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion")
}

type failingClient struct {
	calls int
	err   error
}

func (f *failingClient) Complete(context.Context, string, types.CompletionParams) (string, error) {
	f.calls++
	return "", f.err
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &failingClient{err: errors.New("down")}
	b := NewBreaker(inner, 2, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), "p", types.CompletionParams{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Complete(context.Background(), "p", types.CompletionParams{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the backend")
}

type echoClient struct{}

func (echoClient) Complete(_ context.Context, prompt string, _ types.CompletionParams) (string, error) {
	return "echo: " + prompt, nil
}

func TestBreakerPassesThrough(t *testing.T) {
	b := NewBreaker(echoClient{}, 3, time.Minute, nil)
	out, err := b.Complete(context.Background(), "hi", types.CompletionParams{})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestNewSelectsOffline(t *testing.T) {
	cfg := types.DefaultConfig().LLM
	assert.IsType(t, Offline{}, New(cfg, false, nil))

	cfg.APIKey = "sk-x"
	assert.IsType(t, Offline{}, New(cfg, true, nil))
	assert.IsType(t, &Breaker{}, New(cfg, false, nil))

	out, err := Offline{}.Complete(context.Background(), "p", types.CompletionParams{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
