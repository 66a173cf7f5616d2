// Package metrics declares the Prometheus collectors shared across the
// processor, market, and httpapi packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcessorActiveTasks tracks the current size of the Processor's
	// active set.
	ProcessorActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processor_active_tasks",
			Help: "Number of tasks currently in the processor's active set",
		},
	)

	// ProcessorQueuedTasks tracks submissions waiting for an active slot.
	ProcessorQueuedTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processor_queued_tasks",
			Help: "Number of submissions waiting for an active slot",
		},
	)

	// ProcessorSubmissionsTotal counts every submission accepted.
	ProcessorSubmissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "processor_submissions_total",
			Help: "Total submissions accepted by the processor",
		},
	)

	// ProcessorFinishedTotal counts completed submissions.
	ProcessorFinishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "processor_finished_total",
			Help: "Total submissions the processor has finished running",
		},
	)

	// FetchAttemptsTotal counts HTTP GET attempts per fetch kind and
	// outcome (valid, invalid, transport_error).
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Universalis fetch attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// FetchRetriesTotal counts retry sleeps taken before a fetch
	// eventually succeeded or exhausted its attempt budget.
	FetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Retry sleeps taken by fetch kind",
		},
		[]string{"kind"},
	)

	// FetchDuration observes the wall time of a single fetch, including
	// retries, keyed by kind and final outcome.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Time spent running a single worker fetch to completion",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "outcome"},
	)

	// PacketsTotal counts aggregated packets by outcome (success,
	// failure).
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packets_total",
			Help: "Aggregated packets produced, by outcome",
		},
		[]string{"outcome"},
	)

	// CircuitBreakerState reports the gobreaker state per fetch kind:
	// 0=closed, 1=half-open, 2=open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per fetch kind (0=closed,1=half-open,2=open)",
		},
		[]string{"kind"},
	)

	// WSConnectionsActive tracks open WebSocket streaming connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Currently open WebSocket streaming connections",
		},
	)

	// WSConnectionsRejectedTotal counts connections rejected by the
	// connection limiter.
	WSConnectionsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_connections_rejected_total",
			Help: "WebSocket connections rejected by the admission limiter",
		},
	)

	// CatalogQueryDuration observes catalog filter-resolution time.
	CatalogQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_query_duration_seconds",
			Help:    "Time spent resolving a filter query against the catalog store",
			Buckets: prometheus.DefBuckets,
		},
	)
)
