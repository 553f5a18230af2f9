// Package metrics exposes Prometheus instrumentation for the batch orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxbatch_runs_started_total",
		Help: "Batch runs accepted for processing.",
	})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxbatch_jobs_finished_total",
		Help: "Jobs that reached a terminal state, by state.",
	}, []string{"state"})

	RemoteAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxbatch_remote_attempts_total",
		Help: "Remote generation calls issued, including retries.",
	})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxbatch_persistence_failures_total",
		Help: "Result store failures after successful generation.",
	})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluxbatch_jobs_in_flight",
		Help: "Jobs currently holding a worker slot.",
	})
)
