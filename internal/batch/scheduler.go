package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fluxbatch/internal/domain"
	"fluxbatch/internal/flux"
	"fluxbatch/internal/metrics"
	"fluxbatch/internal/ratelimit"
	"fluxbatch/internal/retry"
)

// Record is the metadata handed to the result store for a succeeded job.
type Record struct {
	RunID     string
	JobID     string
	Prompt    string
	Params    domain.GenerationParams
	Artifact  *domain.Artifact
	CreatedAt time.Time
}

// ResultStore durably records completed artifacts for history and favorites.
// It returns the storage key under which the artifact landed. Implementations
// must be safe for concurrent use.
type ResultStore interface {
	Record(ctx context.Context, rec Record) (string, error)
}

const recordTimeout = 30 * time.Second

// Scheduler drives the pending jobs of a run to completion with a fixed pool
// of workers, gated by the rate limiter. One job's failure never aborts the
// others; every failure is scoped to its job and surfaces through the run's
// progress events.
type Scheduler struct {
	gen            flux.Generator
	limiter        *ratelimit.Limiter
	policy         retry.Policy
	store          ResultStore // nil disables durable recording
	workers        int
	requestTimeout time.Duration
	logger         zerolog.Logger
}

func NewScheduler(gen flux.Generator, limiter *ratelimit.Limiter, policy retry.Policy, store ResultStore, workers int, requestTimeout time.Duration, logger zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 3
	}
	return &Scheduler{
		gen:            gen,
		limiter:        limiter,
		policy:         policy,
		store:          store,
		workers:        workers,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// execution is the per-run scheduling state. The queue holds every job not
// currently owned by a worker or a retry timer; its capacity covers the whole
// run so a requeue can never block.
type execution struct {
	run       *Run
	queue     chan *domain.Job
	stop      chan struct{}
	remaining atomic.Int64
}

// jobDone reports the number of non-terminal jobs left after finalizing one.
func (e *execution) jobDone() int64 {
	return e.remaining.Add(-1)
}

// Start begins processing the run and returns immediately.
func (s *Scheduler) Start(run *Run) {
	e := &execution{
		run:   run,
		queue: make(chan *domain.Job, len(run.jobs)),
		stop:  make(chan struct{}),
	}
	e.remaining.Store(int64(len(run.jobs)))
	for _, j := range run.jobs {
		e.queue <- j
	}

	var g errgroup.Group
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			s.worker(e)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		run.finish()
	}()
}

func (s *Scheduler) worker(e *execution) {
	for {
		select {
		case <-e.stop:
			return
		case j := <-e.queue:
			if e.run.ctx.Err() != nil {
				s.conclude(e, j, domain.JobStateCancelled, nil)
				continue
			}
			s.attempt(e, j)
		}
	}
}

// attempt runs one remote call for the job: worker slot already held, token
// acquired here, then submit/poll/download through the generator.
func (s *Scheduler) attempt(e *execution, j *domain.Job) {
	run := e.run
	run.transition(j, domain.JobStateRunning, nil)
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	if err := s.limiter.Acquire(run.ctx); err != nil {
		s.conclude(e, j, domain.JobStateCancelled, nil)
		return
	}
	if run.ctx.Err() != nil {
		// Token arrival can race with cancellation; no new attempt may
		// start once cancellation is observed.
		s.conclude(e, j, domain.JobStateCancelled, nil)
		return
	}

	attempts := run.incrementAttempt(j)
	metrics.RemoteAttempts.Inc()

	actx := run.ctx
	cancel := func() {}
	if s.requestTimeout > 0 {
		actx, cancel = context.WithTimeout(run.ctx, s.requestTimeout)
	}
	art, err := s.gen.Generate(actx, flux.GenerateRequest{
		JobID:      j.ID,
		Prompt:     j.Prompt,
		Params:     j.Params,
		Credential: run.credential,
	})
	cancel()

	switch {
	case err == nil:
		run.setResult(j, art)
		s.conclude(e, j, domain.JobStateSucceeded, nil)
	case run.ctx.Err() != nil:
		// The run was cancelled while the attempt was in flight; the
		// attempt counts, the job does not fail.
		s.conclude(e, j, domain.JobStateCancelled, nil)
	default:
		delay, ok := s.policy.Decide(attempts, err)
		if !ok {
			s.logger.Error().Err(err).Str("run_id", run.id).Str("job_id", j.ID).Int("attempts", attempts).Msg("batch: job failed")
			s.conclude(e, j, domain.JobStateFailed, err)
			return
		}
		s.logger.Warn().Err(err).Str("run_id", run.id).Str("job_id", j.ID).Int("attempt", attempts).Dur("retry_after", delay).Msg("batch: attempt failed, retry scheduled")
		run.transition(j, domain.JobStatePending, err)
		s.scheduleRetry(e, j, delay)
	}
}

// scheduleRetry makes the job eligible for dequeue once the delay elapses,
// without occupying a worker slot while waiting.
func (s *Scheduler) scheduleRetry(e *execution, j *domain.Job, delay time.Duration) {
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			e.queue <- j
		case <-e.run.ctx.Done():
			s.conclude(e, j, domain.JobStateCancelled, nil)
		}
	}()
}

// conclude finalizes a job in a terminal state and, for successes, hands the
// artifact to the result store. When the last job settles it releases the
// workers.
func (s *Scheduler) conclude(e *execution, j *domain.Job, state domain.JobState, cause error) {
	if !e.run.transition(j, state, cause) {
		return
	}
	metrics.JobsFinished.WithLabelValues(string(state)).Inc()

	if state == domain.JobStateSucceeded {
		s.record(e.run, j)
	}
	if e.jobDone() == 0 {
		close(e.stop)
	}
}

// record persists a succeeded job's artifact. Store failures are reported as a
// distinct error on the job and never downgrade its SUCCEEDED state. Recording
// proceeds even when the run is being cancelled, so it runs on its own context.
func (s *Scheduler) record(run *Run, j *domain.Job) {
	if s.store == nil || j.Result == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	key, err := s.store.Record(ctx, Record{
		RunID:     run.id,
		JobID:     j.ID,
		Prompt:    j.Prompt,
		Params:    j.Params,
		Artifact:  j.Result,
		CreatedAt: time.Now(),
	})
	if err != nil {
		metrics.PersistenceFailures.Inc()
		s.logger.Error().Err(err).Str("run_id", run.id).Str("job_id", j.ID).Msg("batch: generation succeeded but result store failed")
		run.reportStoreError(j, err)
		return
	}
	run.setResultKey(j, key)
}
