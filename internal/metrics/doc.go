// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package metrics provides Prometheus collectors for the synchronization pipeline.

Collectors are registered with the default registry through promauto and are
exposed by the HTTP layer at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

Reconciliation:
  - indexsync_outcomes_total{approach,operation,outcome}
  - indexsync_requeues_total{approach}
  - indexsync_terminal_failures_total{approach,reason}
  - indexsync_backoff_delay_seconds{approach}
  - indexsync_metadata_persist_errors_total{approach}
  - indexsync_pending_retries{component}

Search index:
  - indexsync_index_request_duration_seconds{operation}
  - indexsync_index_requests_total{operation,result}
  - circuit_breaker_state{name} and related breaker counters

Tailer:
  - indexsync_tailer_checkpoint_sequence
  - indexsync_tailer_events_total{operation}
  - indexsync_tailer_state

Queue:
  - indexsync_queue_messages_published_total{topic}
  - indexsync_queue_messages_consumed_total{topic}
  - indexsync_queue_messages_duplicate_total
  - indexsync_queue_messages_poisoned_total

Failure reasons are short tags (ConnectTimeout, ReadTimeout, RateLimited, Stale,
or an error type name) so the reason label stays low-cardinality.
*/
package metrics
