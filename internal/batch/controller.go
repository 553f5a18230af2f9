package batch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fluxbatch/internal/domain"
	"fluxbatch/internal/flux"
	"fluxbatch/internal/metrics"
	"fluxbatch/internal/ratelimit"
	"fluxbatch/internal/retry"
)

// Config tunes the orchestrator. Zero values fall back to the documented
// defaults.
type Config struct {
	MaxConcurrency int
	RateLimitRPS   float64
	RateLimitBurst int
	Policy         retry.Policy
	RequestTimeout time.Duration
}

// BatchRequest is a submission of prompts sharing one parameter template.
// Credential is the remote API key for this run; it is held in memory only and
// never logged.
type BatchRequest struct {
	Name       string
	Prompts    []string
	Params     domain.GenerationParams
	Credential string
}

// Controller is the public entry point: it validates submissions, constructs
// runs, starts and cancels them, and answers status queries. All per-job
// failures are asynchronous; Start itself only fails on input validation.
type Controller struct {
	sched  *Scheduler
	policy retry.Policy
	logger zerolog.Logger

	mu   sync.Mutex
	runs map[string]*Run
}

func NewController(gen flux.Generator, store ResultStore, cfg Config, logger zerolog.Logger) (*Controller, error) {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 0.5
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 2
	}
	limiter, err := ratelimit.New(rps, burst)
	if err != nil {
		return nil, err
	}

	policy := cfg.Policy
	if policy.MaxAttempts < 1 {
		policy = retry.DefaultPolicy()
	}

	return &Controller{
		sched:  NewScheduler(gen, limiter, policy, store, cfg.MaxConcurrency, cfg.RequestTimeout, logger),
		policy: policy,
		logger: logger,
		runs:   make(map[string]*Run),
	}, nil
}

// Start validates the request, creates one PENDING job per prompt in input
// order, and begins processing. It returns immediately; progress is observed
// through the returned run.
func (c *Controller) Start(req BatchRequest) (*Run, error) {
	if len(req.Prompts) == 0 {
		return nil, fmt.Errorf("%w: prompt list is empty", domain.ErrInvalidInput)
	}
	prompts := make([]string, len(req.Prompts))
	for i, prompt := range req.Prompts {
		trimmed := strings.TrimSpace(prompt)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: prompt %d is blank", domain.ErrInvalidInput, i+1)
		}
		prompts[i] = trimmed
	}
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "batch-" + time.Now().Format("20060102-150405")
	}

	run := newRun(name, prompts, req.Params, req.Credential, c.policy.MaxAttempts)

	c.mu.Lock()
	c.runs[run.id] = run
	c.mu.Unlock()

	metrics.RunsStarted.Inc()
	c.logger.Info().
		Str("run_id", run.id).
		Str("name", name).
		Str("model", req.Params.Model).
		Int("jobs", len(prompts)).
		Msg("batch: run started")

	c.sched.Start(run)
	return run, nil
}

// Get returns the run for the given handle.
func (c *Controller) Get(runID string) (*Run, error) {
	c.mu.Lock()
	run, ok := c.runs[runID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	return run, nil
}

// Cancel requests cancellation of a run. Idempotent; a no-op after completion.
func (c *Controller) Cancel(runID string) error {
	run, err := c.Get(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	c.logger.Info().Str("run_id", runID).Msg("batch: cancellation requested")
	return nil
}

// Status returns a non-blocking snapshot of the run's aggregated state.
func (c *Controller) Status(runID string) (Snapshot, error) {
	run, err := c.Get(runID)
	if err != nil {
		return Snapshot{}, err
	}
	return run.Snapshot(), nil
}
