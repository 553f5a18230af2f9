// Package retry decides whether and when a failed generation attempt should
// run again.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"fluxbatch/internal/flux"
)

// Policy defines retry behavior for transient failures. Permanent failures
// never retry regardless of attempt count.
type Policy struct {
	MaxAttempts    int           // total remote calls allowed per job
	BaseBackoff    time.Duration // delay before the second attempt
	MaxBackoff     time.Duration // cap on any computed delay
	JitterFraction float64       // jitter as a fraction of the backoff (0.0-1.0)
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseBackoff:    1 * time.Second,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.2,
	}
}

// Decide is a pure function of the attempt count and the failure. attempt is
// the number of remote calls already made, so it is at least 1. It returns the
// delay before the next attempt and whether a retry should happen at all.
func (p Policy) Decide(attempt int, err error) (time.Duration, bool) {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0, false
	}
	if flux.IsPermanent(err) {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.backoff(attempt), true
}

// backoff grows exponentially with the attempt count: base * 2^(attempt-1),
// plus or minus jitter, capped at MaxBackoff.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.JitterFraction > 0 {
		jitter := time.Duration((rand.Float64()*2 - 1) * p.JitterFraction * float64(d))
		d += jitter
	}
	if d < 0 {
		d = 0
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}
