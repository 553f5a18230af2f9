package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fluxbatch/internal/flux"
)

func TestDecide(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{name: "nil error", attempt: 1, err: nil, want: false},
		{name: "cancelled", attempt: 1, err: context.Canceled, want: false},
		{
			name:    "permanent",
			attempt: 1,
			err:     &flux.Error{Class: flux.ClassPermanent, Op: "submit", Status: 422},
			want:    false,
		},
		{
			name:    "transient first attempt",
			attempt: 1,
			err:     &flux.Error{Class: flux.ClassTransient, Op: "submit", Status: 503},
			want:    true,
		},
		{
			name:    "transient second attempt",
			attempt: 2,
			err:     &flux.Error{Class: flux.ClassTransient, Op: "poll", Status: 429},
			want:    true,
		},
		{
			name:    "transient at the attempt cap",
			attempt: 3,
			err:     &flux.Error{Class: flux.ClassTransient, Op: "submit", Status: 500},
			want:    false,
		},
		{
			name:    "unclassified transport error",
			attempt: 1,
			err:     errors.New("connection reset by peer"),
			want:    true,
		},
		{
			name:    "wrapped permanent",
			attempt: 1,
			err:     fmt.Errorf("attempt: %w", &flux.Error{Class: flux.ClassPermanent, Op: "poll", Message: "moderated"}),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retryable := policy.Decide(tt.attempt, tt.err)
			if retryable != tt.want {
				t.Fatalf("Decide(%d, %v) retryable = %v, want %v", tt.attempt, tt.err, retryable, tt.want)
			}
			if !retryable && delay != 0 {
				t.Fatalf("non-retryable decision returned delay %v", delay)
			}
			if retryable && delay <= 0 {
				t.Fatalf("retryable decision returned delay %v", delay)
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	policy := Policy{MaxAttempts: 10, BaseBackoff: time.Second, MaxBackoff: 8 * time.Second}

	wants := []time.Duration{
		1 * time.Second, // after attempt 1
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second, // capped
		8 * time.Second,
	}
	for i, want := range wants {
		if got := policy.backoff(i + 1); got != want {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	policy := Policy{
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.2,
	}

	lo := 800 * time.Millisecond
	hi := 1200 * time.Millisecond
	for i := 0; i < 200; i++ {
		got := policy.backoff(1)
		if got < lo || got > hi {
			t.Fatalf("backoff(1) = %v, want within [%v, %v]", got, lo, hi)
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.BaseBackoff != time.Second {
		t.Errorf("BaseBackoff = %v, want 1s", p.BaseBackoff)
	}
	if p.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", p.MaxBackoff)
	}
}
