// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package synchronizer implements the write paths that keep the search index in
step with the primary store.

Every mutation starts the same way: the primary write, which is authoritative
and whose failure is returned to the caller as ErrPrimaryWrite, followed by a
pending SyncMetadata record with the next operation sequence for the entity and
approach. What happens to the index write depends on the approach:

	direct, direct_versioned  one inline attempt, no retry
	queue, queue_versioned    task published through the outbox; the Consumer
	                          applies it and requeues transient failures
	hybrid                    inline attempt; a retryable failure is handed to
	                          the queue
	cdc                       nothing here; the tailer picks the change up

The caller gets success once the primary write succeeded whatever the index
said. Secondary status is only visible through the metadata record.

Recover re-enqueues queue lineages whose in-memory retry timer was lost to a
shutdown. Replay gives a terminally failed lineage one more inline attempt.
*/
package synchronizer
