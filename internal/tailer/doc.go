// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package tailer implements the change-capture strategy: a single cursor over
the primary store's change log that reconciles every committed mutation into
the search index.

# State Machine

	STOPPED ──Start──▶ TAILING ──event──▶ PROCESSING ──success/terminal──▶ TAILING
	                                          │
	                                          └──transient──▶ BACKOFF (timer) ──▶ PROCESSING

On start the tailer resumes strictly after the stored checkpoint. Without a
checkpoint it starts at the current head of the log and persists that
position, so a cold start never replays the whole primary store.

# Lineage Ownership

Each event is matched to a sync metadata record before it is applied:

  - Events carrying a cdc lineage id (see models.IsCDCMetadataID) use that
    lineage, creating it if the writer has not saved it yet. Deletes carry
    the id too: the store writes it on the tombstone in the same
    transaction.
  - Events without a back-reference come from writers outside this service
    and get a deterministic lineage id derived from entity id and version.
  - Events carrying any other lineage id are skipped, whether or not that
    record is visible yet; its approach indexes the write.

Lineages that are already settled are skipped, which makes replay after a
crash idempotent.

# Checkpoint

A transient failure schedules the event on a backoff timer and the cursor
moves on. The checkpoint is a low watermark: it only advances over a
contiguous prefix of handled events, and always after the metadata write of
the event that moved it. An event still in backoff therefore holds the
checkpoint behind it, and a crash replays it. Terminal failures count as
handled.

# Usage

	t := tailer.New(cfg.Tailer, primaryStore, mdStore, cpStore, engine, cfg.Retry)
	tree.AddSyncService(t) // Serve runs until the context is canceled
*/
package tailer
