// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the retrying HTTP transport used by the LLM
// client.
package httputil

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// HTTP 429 responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const defaultMaxRetries = 3

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) with exponential backoff starting at RetryBaseDelay and
// doubling each attempt.
//
// When maxRetries is 0 the default (3) is used. Request bodies are rewound
// through req.GetBody before each retry. If the context is cancelled during
// a backoff wait the function returns ctx.Err(). After exhausting retries
// the last 429 response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int, log *zap.Logger) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewinding request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		log.Warn("rate limited, retrying",
			zap.Duration("backoff", backoff),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// RetryDoer wraps an http.Client so every request goes through
// DoWithRetry. It satisfies the Do(*http.Request) shape expected by
// SDK clients that accept a custom HTTP doer.
type RetryDoer struct {
	Client     *http.Client
	MaxRetries int
	Log        *zap.Logger
}

// NewRetryDoer returns a RetryDoer around client, or http.DefaultClient
// when client is nil.
func NewRetryDoer(client *http.Client, maxRetries int, log *zap.Logger) *RetryDoer {
	if client == nil {
		client = http.DefaultClient
	}
	return &RetryDoer{Client: client, MaxRetries: maxRetries, Log: log}
}

// Do sends req with 429 retries bound to the request's context.
func (d *RetryDoer) Do(req *http.Request) (*http.Response, error) {
	return DoWithRetry(req.Context(), d.Client, req, d.MaxRetries, d.Log)
}
