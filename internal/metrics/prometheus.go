package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts completed executions by outcome status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pybox_executions_total",
			Help: "Total number of code executions by status",
		},
		[]string{"status"},
	)

	// ExecutionDuration tracks the wall-clock duration of executions in seconds.
	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pybox_execution_duration_seconds",
			Help:    "Duration of code executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	// ExecutionsActive tracks executions currently holding a concurrency slot.
	ExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pybox_executions_active",
			Help: "Number of executions currently past admission and before cleanup",
		},
	)

	// SandboxFailures counts sandbox infrastructure failures (not user code errors).
	SandboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pybox_sandbox_failures_total",
			Help: "Total number of sandbox infrastructure failures",
		},
	)

	// RequestsRejected counts requests refused before admission (validation, rate limit).
	RequestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pybox_requests_rejected_total",
			Help: "Total number of requests rejected before execution",
		},
		[]string{"reason"},
	)
)
