// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package wal is the queue producer's outbox.
//
// A sync task is written to BadgerDB before it is published, and confirmed
// once the broker acknowledged it. If the process dies between the primary
// write and the publish, or the broker is unreachable, the entry stays
// pending and the RetryLoop publishes it later. The Compactor drops confirmed
// entries and pending entries older than EntryTTL.
//
//	w, _ := wal.Open(cfg)
//	outbox := wal.NewOutbox(w, publisher)
//	loop := wal.NewRetryLoop(w, outbox)
//	_ = loop.Start(ctx)
//	_ = outbox.Publish(ctx, "indexsync.tasks", taskID, payload)
//
// Delivery is at least once: a publish that succeeded but whose confirmation
// was lost is published again, and the consumer's redelivery checks absorb
// the duplicate.
package wal
