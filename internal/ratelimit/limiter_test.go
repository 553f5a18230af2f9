package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name  string
		rps   float64
		burst int
	}{
		{name: "zero rate", rps: 0, burst: 1},
		{name: "negative rate", rps: -1, burst: 1},
		{name: "zero burst", rps: 1, burst: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.rps, tt.burst); err == nil {
				t.Fatalf("New(%v, %d) succeeded, want error", tt.rps, tt.burst)
			}
		})
	}
}

func TestAcquireAllowsBurstImmediately(t *testing.T) {
	limiter, err := New(1, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d within burst: %v", i+1, err)
		}
	}
}

func TestAcquirePacesBeyondBurst(t *testing.T) {
	// 6 tokens at 100 rps with burst 2 means 4 refills, so at least 40ms.
	limiter, err := New(100, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("6 acquires took %v, want at least 40ms", elapsed)
	}
}

func TestAcquireUnblocksOnCancel(t *testing.T) {
	limiter, err := New(0.01, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Drain the bucket so the next Acquire must wait ~100s.
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("initial Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- limiter.Acquire(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Acquire returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Acquire did not return after cancellation")
	}
}
