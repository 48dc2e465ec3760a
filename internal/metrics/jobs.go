// Package metrics holds the Prometheus instrumentation for the dispatch loop,
// the job executor and the pgx connection pool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reportgen"

var (
	// DispatchTicks counts dispatch loop ticks by outcome: "run" when the
	// tick executed, "skipped" when an earlier tick was still in flight.
	DispatchTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_ticks_total",
		Help:      "Dispatch loop ticks by outcome",
	}, []string{"outcome"})

	// JobsDispatched counts per-job dispatch outcomes: "published",
	// "lost_claim", "no_route", "error".
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dispatched_total",
		Help:      "Per-job dispatch outcomes",
	}, []string{"outcome"})

	// JobsExecuted counts finished executions by final status.
	JobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_executed_total",
		Help:      "Completed job executions by final status",
	}, []string{"status"})

	// JobDuration observes wall-clock execution time of report jobs.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Report job execution duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
