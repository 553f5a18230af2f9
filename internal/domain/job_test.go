package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := map[JobState][]JobState{
		JobStatePending: {JobStateRunning, JobStateCancelled},
		JobStateRunning: {JobStatePending, JobStateSucceeded, JobStateFailed, JobStateCancelled},
	}

	states := []JobState{JobStatePending, JobStateRunning, JobStateSucceeded, JobStateFailed, JobStateCancelled}
	for _, from := range states {
		for _, to := range states {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobStatePending, false},
		{JobStateRunning, false},
		{JobStateSucceeded, true},
		{JobStateFailed, true},
		{JobStateCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
