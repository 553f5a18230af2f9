package domain

import "time"

// JobState enumerates the lifecycle states of a generation job.
type JobState string

const (
	JobStatePending   JobState = "PENDING"
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
)

// Terminal reports whether no transition may leave the state.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// RUNNING -> PENDING is the retry edge; it is the only way back into PENDING.
func (s JobState) CanTransition(next JobState) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobStatePending:
		return next == JobStateRunning || next == JobStateCancelled
	case JobStateRunning:
		return next == JobStatePending || next.Terminal()
	}
	return false
}

// RunState enumerates the lifecycle states of a batch run.
type RunState string

const (
	RunStateActive     RunState = "ACTIVE"
	RunStateCancelling RunState = "CANCELLING"
	RunStateCompleted  RunState = "COMPLETED"
)

// Job tracks a single prompt through a batch run. The scheduler owns a job
// exclusively while it is RUNNING; all reads from other goroutines go through
// the run's snapshot.
type Job struct {
	ID     string
	Index  int
	Prompt string
	Params GenerationParams

	State     JobState
	Attempts  int
	LastError error
	Result    *Artifact
	UpdatedAt time.Time
}

// Artifact is a generated image handed back by the remote service.
type Artifact struct {
	StorageKey string
	SourceURL  string
	Format     string
	Width      int
	Height     int
	Data       []byte
}
