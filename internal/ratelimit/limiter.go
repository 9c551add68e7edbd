// Package ratelimit implements the shared token bucket governing outbound
// request rate. Every detail fetch, regardless of content type or how many
// tasks are in flight, draws from this single bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/screenarc/tmdb-harvester/internal/telemetry"
)

// Limiter wraps a token bucket with capacity burst and refill rate rps.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter. A non-positive rps disables limiting entirely.
func New(rps float64, burst int) *Limiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(r, burst)}
}

// Wait blocks until a token is available, respecting the context. The bucket
// serializes all callers internally; tokens never exceed the burst capacity.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		telemetry.ObserveRateLimitDelay(d)
	}
	return nil
}

// Tokens reports the tokens currently available in the bucket.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}
