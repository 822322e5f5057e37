// Package embedding defines the embedding client contract shared by the provider SDK wrappers,
// and decorators that bound each call in time and rate.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmbeddingUnavailable marks a recoverable provider failure: transport error, non-2xx response,
// timeout, empty data or a vector of the wrong size. Search degrades to lexical ranking when it sees it.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// Client generates embedding vectors for text.
// Implemented by provider-specific clients (OpenAI, Google Gemini).
type Client interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, input string) ([]float32, error)

// CreateEmbedding calls f.
func (f Func) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	return f(ctx, input)
}

// Unavailable wraps err so that errors.Is(err, ErrEmbeddingUnavailable) holds. Nil stays nil.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrEmbeddingUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}

// TimeoutClient bounds every call with its own deadline, detached from the caller's cancellation
// so a client disconnect does not abort an in-flight provider call whose result may be cached.
type TimeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout wraps next so each call runs for at most timeout.
func WithTimeout(next Client, timeout time.Duration) *TimeoutClient {
	return &TimeoutClient{next: next, timeout: timeout}
}

// CreateEmbedding implements Client.
func (c *TimeoutClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	vec, err := c.next.CreateEmbedding(ctx, input)
	if err != nil {
		return nil, Unavailable(err)
	}

	return vec, nil
}

// RateLimitedClient waits on a token bucket before each call.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewLimiter returns a token bucket admitting rps calls per second (burst 1).
// A non-positive rps admits every call.
func NewLimiter(rps float64) *rate.Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return rate.NewLimiter(limit, 1)
}

// WithLimiter wraps next so each call waits on lim. Clients sharing lim share one budget.
func WithLimiter(next Client, lim *rate.Limiter) *RateLimitedClient {
	return &RateLimitedClient{next: next, limiter: lim}
}

// WithRateLimit wraps next with its own limiter; see NewLimiter.
func WithRateLimit(next Client, rps float64) *RateLimitedClient {
	return WithLimiter(next, NewLimiter(rps))
}

// CreateEmbedding implements Client.
func (c *RateLimitedClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Unavailable(fmt.Errorf("rate limit wait: %w", err))
	}

	vec, err := c.next.CreateEmbedding(ctx, input)
	if err != nil {
		return nil, Unavailable(err)
	}

	return vec, nil
}
