// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package reconcile implements the decision core shared by every
// synchronization strategy.
//
// An Engine takes one SyncTask, writes it to the search index through an
// index.Gateway, classifies the result and records it on the lineage's
// SyncMetadata:
//
//	success            -> secondary_status=success, reason cleared
//	conflict (fenced)  -> failure, reason "Stale", terminal
//	client error (4xx) -> failure, gateway reason, terminal
//	transient          -> failure; Retry with min(2^attempt, MaxBackoff) delay
//	                      while attempts remain and the strategy can requeue,
//	                      terminal otherwise
//
// Strategies differ only in their Capability: whether writes carry a fencing
// version, whether the attempt runs inline, and whether a transient failure
// may be retried. The engine never schedules retries itself. Queue consumers
// re-publish Decision.Task; the tailer re-invokes its event handler.
package reconcile
