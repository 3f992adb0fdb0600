// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pdiddy/story-engine/pkg/types"
)

// Breaker stops calling a failing backend after consecutive errors and
// fails fast until the cooldown elapses.
type Breaker struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. The breaker opens after failures consecutive
// errors and half-opens after cooldown.
func NewBreaker(next Client, failures uint32, cooldown time.Duration, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	if failures == 0 {
		failures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Complete forwards to the wrapped client unless the breaker is open.
func (b *Breaker) Complete(ctx context.Context, prompt string, p types.CompletionParams) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, prompt, p)
	})
	if err != nil {
		return "", fmt.Errorf("llm breaker: %w", err)
	}
	return out.(string), nil
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
