// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation Metrics
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_outcomes_total",
			Help: "Reconciliation decisions by approach, operation and outcome",
		},
		[]string{"approach", "operation", "outcome"},
	)

	RequeuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_requeues_total",
			Help: "Sync tasks scheduled for a backoff retry",
		},
		[]string{"approach"},
	)

	TerminalFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_terminal_failures_total",
			Help: "Lineages that reached a terminal failure",
		},
		[]string{"approach", "reason"},
	)

	BackoffDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexsync_backoff_delay_seconds",
			Help:    "Scheduled backoff delay before a retry",
			Buckets: []float64{1, 2, 4, 8, 10, 30, 60},
		},
		[]string{"approach"},
	)

	MetadataPersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_metadata_persist_errors_total",
			Help: "Failed sync metadata writes",
		},
		[]string{"approach"},
	)

	PendingRetries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexsync_pending_retries",
			Help: "Backoff retries waiting on a scheduler",
		},
		[]string{"component"},
	)

	// Secondary Index Metrics
	IndexRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexsync_index_request_duration_seconds",
			Help:    "Duration of search index requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	IndexRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_index_requests_total",
			Help: "Search index requests by operation and result kind",
		},
		[]string{"operation", "result"},
	)

	// Tailer Metrics
	TailerCheckpointSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexsync_tailer_checkpoint_sequence",
			Help: "Change log sequence of the last persisted tailer checkpoint",
		},
	)

	TailerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_tailer_events_total",
			Help: "Change log events handled by the tailer",
		},
		[]string{"operation"},
	)

	TailerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexsync_tailer_state",
			Help: "Tailer state (0=stopped, 1=tailing, 2=processing, 3=backoff)",
		},
	)

	// Queue Metrics
	QueueMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_queue_messages_published_total",
			Help: "Sync task messages published",
		},
		[]string{"topic"},
	)

	QueueMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_queue_messages_consumed_total",
			Help: "Sync task messages consumed",
		},
		[]string{"topic"},
	)

	QueueMessagesDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexsync_queue_messages_duplicate_total",
			Help: "Redelivered sync task messages acknowledged without effect",
		},
	)

	QueueMessagesPoisoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexsync_queue_messages_poisoned_total",
			Help: "Undecodable sync task messages sent to the poison topic",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexsync_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordOutcome counts one reconciliation decision.
func RecordOutcome(approach, operation, outcome string) {
	OutcomesTotal.WithLabelValues(approach, operation, outcome).Inc()
}

// RecordRequeue counts a scheduled retry and its delay.
func RecordRequeue(approach string, delay time.Duration) {
	RequeuesTotal.WithLabelValues(approach).Inc()
	BackoffDelaySeconds.WithLabelValues(approach).Observe(delay.Seconds())
}

// RecordTerminalFailure counts a lineage that will not be retried again.
// Reasons are the short tags produced by reason extraction, so cardinality stays low.
func RecordTerminalFailure(approach, reason string) {
	TerminalFailuresTotal.WithLabelValues(approach, truncate(reason, 50)).Inc()
}

// RecordMetadataPersistError counts a failed metadata write.
func RecordMetadataPersistError(approach string) {
	MetadataPersistErrors.WithLabelValues(approach).Inc()
}

// SetPendingRetries reports the number of timers waiting on a scheduler.
func SetPendingRetries(component string, n int) {
	PendingRetries.WithLabelValues(component).Set(float64(n))
}

// RecordIndexRequest records a search index call. result is the failure kind
// or "success".
func RecordIndexRequest(operation, result string, duration time.Duration) {
	IndexRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	IndexRequestsTotal.WithLabelValues(operation, result).Inc()
}

// SetCheckpointSequence reports the persisted tailer position.
func SetCheckpointSequence(seq uint64) {
	TailerCheckpointSequence.Set(float64(seq))
}

// RecordTailerEvent counts one change log event read by the tailer.
func RecordTailerEvent(operation string) {
	TailerEventsTotal.WithLabelValues(operation).Inc()
}

// SetTailerState reports the tailer state as its numeric code.
func SetTailerState(code int) {
	TailerState.Set(float64(code))
}

// RecordQueuePublish counts a published sync task message.
func RecordQueuePublish(topic string) {
	QueueMessagesPublished.WithLabelValues(topic).Inc()
}

// RecordQueueConsume counts a consumed sync task message.
func RecordQueueConsume(topic string) {
	QueueMessagesConsumed.WithLabelValues(topic).Inc()
}

// RecordQueueDuplicate counts a redelivery that was acknowledged without effect.
func RecordQueueDuplicate() {
	QueueMessagesDuplicate.Inc()
}

// RecordQueuePoisoned counts a message routed to the poison topic.
func RecordQueuePoisoned() {
	QueueMessagesPoisoned.Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
