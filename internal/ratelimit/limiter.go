// Package ratelimit gates outbound generation calls behind a token bucket so
// batches never exceed the remote service's sustained request rate.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket refilling at a sustained rate up to a burst
// capacity. Acquire blocks until a token is available or ctx is done, so a run
// cancellation interrupts waiters immediately.
type Limiter struct {
	bucket *rate.Limiter
}

// New constructs a limiter allowing rps sustained requests per second with the
// given burst capacity.
func New(rps float64, burst int) (*Limiter, error) {
	if rps <= 0 {
		return nil, fmt.Errorf("ratelimit: rate must be positive, got %v", rps)
	}
	if burst < 1 {
		return nil, fmt.Errorf("ratelimit: burst must be at least 1, got %d", burst)
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}, nil
}

// Acquire consumes one token, waiting for the bucket to refill if necessary.
// It returns ctx.Err() when the context is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
