// Package metrics holds the Prometheus instrumentation for session
// lifecycle, worker processes, the execution controller's termination
// ladder, and output filter spills.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session Manager

	SessionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_sessions_created_total",
			Help: "Total sessions created, by kind (default, named).",
		},
		[]string{"kind"},
	)

	SessionsDestroyedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_sessions_destroyed_total",
			Help: "Total sessions destroyed, by reason.",
		},
		[]string{"reason"}, // reason: explicit, idle_reaped, dead_reaped, shutdown
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stata_sessions_active",
			Help: "Current number of live sessions.",
		},
	)

	SessionAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_session_acquire_total",
			Help: "Total session lease acquisitions by outcome.",
		},
		[]string{"outcome"}, // outcome: ok, busy, not_found, pool_full
	)

	// Worker process

	WorkersSpawnedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stata_workers_spawned_total",
			Help: "Total engine worker processes started.",
		},
	)

	WorkersExitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_workers_exited_total",
			Help: "Total engine worker processes that exited, by cause.",
		},
		[]string{"cause"}, // cause: clean, crashed, killed
	)

	WorkerStartDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stata_worker_start_duration_seconds",
			Help:    "Time from process spawn to worker ready-for-commands.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
	)

	// Execution Controller / termination ladder

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stata_command_duration_seconds",
			Help:    "Time from command dispatch to terminal Result, by outcome.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"}, // outcome: ok, error, timeout, cancelled
	)

	TerminationLadderStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_termination_ladder_stage_total",
			Help: "Total times each termination ladder stage was entered.",
		},
		[]string{"stage"}, // stage: graceful, aggressive, forceful
	)

	TerminationOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_termination_outcome_total",
			Help: "Total termination outcomes.",
		},
		[]string{"outcome"}, // outcome: ok, timeout
	)

	// Streaming fan-out

	StreamChunksPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stata_stream_chunks_published_total",
			Help: "Total stream chunks published to sinks.",
		},
	)

	StreamChunksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_stream_chunks_dropped_total",
			Help: "Total stream chunks dropped due to sink backpressure.",
		},
		[]string{"transport"}, // transport: rest_sse, mcp
	)

	// Output filter

	FilterSpillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stata_filter_spills_total",
			Help: "Total results whose output exceeded the token bound and spilled to a temp file.",
		},
	)

	FilterBytesFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_filter_bytes_filtered_total",
			Help: "Raw output bytes processed by the filter, by policy.",
		},
		[]string{"policy"}, // policy: full, compact
	)

	// HTTP transports (REST/SSE and MCP)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stata_http_requests_total",
			Help: "Total HTTP requests, by route and status code.",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stata_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"route"},
	)
)

// ObserveCommandDuration records a command's wall-clock duration against the
// given terminal outcome.
func ObserveCommandDuration(outcome string, start time.Time) {
	CommandDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// RecordLadderStage increments the counter for a termination ladder stage
// transition (graceful, aggressive, forceful).
func RecordLadderStage(stage string) {
	TerminationLadderStageTotal.WithLabelValues(stage).Inc()
}

// Handler returns the Prometheus scrape endpoint for the metrics server.
func Handler() http.Handler {
	return promhttp.Handler()
}
