package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fluxbatch/internal/domain"
)

// Event records one observable change on a job. Events for a single job are
// emitted in the order its state actually changed; delivery is at-least-once
// and events queue rather than overwrite, so slow consumers lose nothing.
//
// A result-store failure after a successful generation is reported as an event
// with OldState == NewState == SUCCEEDED and Error set; the job itself stays
// SUCCEEDED.
type Event struct {
	RunID     string          `json:"run_id"`
	JobID     string          `json:"job_id"`
	OldState  domain.JobState `json:"old_state"`
	NewState  domain.JobState `json:"new_state"`
	Attempt   int             `json:"attempt"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// Counters aggregates job states for one run.
type Counters struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	ID       string          `json:"id"`
	Index    int             `json:"index"`
	Prompt   string          `json:"prompt"`
	State    domain.JobState `json:"state"`
	Attempts int             `json:"attempts"`
	Result   string          `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Snapshot is a non-blocking read of a run's aggregated state.
type Snapshot struct {
	RunID       string          `json:"run_id"`
	Name        string          `json:"name"`
	State       domain.RunState `json:"state"`
	Counters    Counters        `json:"counters"`
	Jobs        []JobStatus     `json:"jobs"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Run is a handle on one batch of jobs. It is created by the Controller and
// driven by the Scheduler; consumers watch it through Events, Snapshot and
// Wait.
type Run struct {
	id         string
	name       string
	createdAt  time.Time
	credential string

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}

	mu          sync.Mutex
	state       domain.RunState
	jobs        []*domain.Job
	counters    Counters
	completedAt time.Time
}

func newRun(name string, prompts []string, template domain.GenerationParams, credential string, maxAttempts int) *Run {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	jobs := make([]*domain.Job, len(prompts))
	for i, prompt := range prompts {
		jobs[i] = &domain.Job{
			ID:        fmt.Sprintf("%s-%02d", id[:8], i+1),
			Index:     i,
			Prompt:    prompt,
			Params:    template.Clone(),
			State:     domain.JobStatePending,
			UpdatedAt: time.Now(),
		}
	}

	// Worst case per job: two events per attempt, a final cancellation from
	// PENDING, and one persistence report. Sizing the buffer to that bound
	// means emit never blocks and never drops.
	perJob := 2*maxAttempts + 2
	if perJob < 4 {
		perJob = 4
	}

	return &Run{
		id:         id,
		name:       name,
		createdAt:  time.Now(),
		credential: credential,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan Event, len(jobs)*perJob),
		done:       make(chan struct{}),
		state:      domain.RunStateActive,
		jobs:       jobs,
		counters:   Counters{Pending: len(jobs)},
	}
}

// ID returns the run handle used by the HTTP API and the result store.
func (r *Run) ID() string { return r.id }

// Name returns the display name given at submission.
func (r *Run) Name() string { return r.name }

// Events returns the progress stream. The channel is closed once the run
// completes and every queued event has been emitted.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed when every job is terminal.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run completes or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return nil
	}
}

// Cancel requests cooperative cancellation. Pending jobs move straight to
// CANCELLED; running jobs finish their in-flight attempt first. Idempotent and
// a no-op after completion.
func (r *Run) Cancel() {
	r.mu.Lock()
	if r.state == domain.RunStateActive {
		r.state = domain.RunStateCancelling
	}
	r.mu.Unlock()
	r.cancel()
}

// Snapshot returns a consistent copy of the run's current state.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]JobStatus, len(r.jobs))
	for i, j := range r.jobs {
		status := JobStatus{
			ID:       j.ID,
			Index:    j.Index,
			Prompt:   j.Prompt,
			State:    j.State,
			Attempts: j.Attempts,
		}
		if j.Result != nil {
			status.Result = j.Result.StorageKey
			if status.Result == "" {
				status.Result = j.Result.SourceURL
			}
		}
		if j.LastError != nil {
			status.Error = j.LastError.Error()
		}
		jobs[i] = status
	}

	snap := Snapshot{
		RunID:     r.id,
		Name:      r.name,
		State:     r.state,
		Counters:  r.counters,
		Jobs:      jobs,
		CreatedAt: r.createdAt,
	}
	if !r.completedAt.IsZero() {
		completed := r.completedAt
		snap.CompletedAt = &completed
	}
	return snap
}

// transition applies one state change under the run lock, updates counters,
// and queues the progress event. It reports whether the new state is terminal.
func (r *Run) transition(j *domain.Job, to domain.JobState, cause error) bool {
	r.mu.Lock()
	from := j.State
	if !from.CanTransition(to) {
		r.mu.Unlock()
		return from.Terminal()
	}

	now := time.Now()
	j.State = to
	j.UpdatedAt = now
	if cause != nil {
		j.LastError = cause
	}
	if to == domain.JobStateSucceeded {
		j.LastError = nil
	}

	r.bucket(from, -1)
	r.bucket(to, +1)

	ev := Event{
		RunID:     r.id,
		JobID:     j.ID,
		OldState:  from,
		NewState:  to,
		Attempt:   j.Attempts,
		Timestamp: now,
	}
	if cause != nil && to != domain.JobStateSucceeded {
		ev.Error = cause.Error()
	}
	r.mu.Unlock()

	r.emit(ev)
	return to.Terminal()
}

// finish marks the run completed and closes the event stream. The scheduler
// calls it exactly once, after every job is terminal and all post-completion
// work (result recording included) has run.
func (r *Run) finish() {
	r.mu.Lock()
	if r.state == domain.RunStateCompleted {
		r.mu.Unlock()
		return
	}
	r.state = domain.RunStateCompleted
	r.completedAt = time.Now()
	r.mu.Unlock()

	close(r.events)
	close(r.done)
	r.cancel()
}

// incrementAttempt bumps the call counter just before a remote call is issued.
func (r *Run) incrementAttempt(j *domain.Job) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.Attempts++
	return j.Attempts
}

// setResult attaches the artifact produced by a successful attempt.
func (r *Run) setResult(j *domain.Job, art *domain.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.Result = art
}

// setResultKey records where the artifact was durably stored.
func (r *Run) setResultKey(j *domain.Job, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.Result != nil {
		j.Result.StorageKey = key
	}
}

// reportStoreError emits a persistence-failure event without changing the
// job's SUCCEEDED state.
func (r *Run) reportStoreError(j *domain.Job, cause error) {
	r.mu.Lock()
	ev := Event{
		RunID:     r.id,
		JobID:     j.ID,
		OldState:  domain.JobStateSucceeded,
		NewState:  domain.JobStateSucceeded,
		Attempt:   j.Attempts,
		Timestamp: time.Now(),
		Error:     cause.Error(),
	}
	r.mu.Unlock()
	r.emit(ev)
}

func (r *Run) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		// The buffer is sized to the worst-case transition count, so this
		// only trips if a transition bug produces extra events.
	}
}

func (r *Run) bucket(state domain.JobState, delta int) {
	switch state {
	case domain.JobStatePending:
		r.counters.Pending += delta
	case domain.JobStateRunning:
		r.counters.Running += delta
	case domain.JobStateSucceeded:
		r.counters.Succeeded += delta
	case domain.JobStateFailed:
		r.counters.Failed += delta
	case domain.JobStateCancelled:
		r.counters.Cancelled += delta
	}
}
