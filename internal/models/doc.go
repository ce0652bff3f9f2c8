// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package models defines the data structures shared by every layer of indexsync.

Domain Types:

  - Entity: the record owned by the primary store and mirrored into the index
  - SyncMetadata: the durable audit record of one synchronization lineage
  - SyncTask: an immutable description of one pending or retried index write
  - ChangeEvent and Checkpoint: the change-capture tailer's input and position

Strategy Tags:

Approach names the strategy that produced a lineage (direct, direct_versioned,
queue, queue_versioned, hybrid, cdc). ParseApproach accepts user input in
either case and with '-' in place of '_'.

Lineage ids created by the change-capture path carry the "cdc:" prefix.
A change event without a back-reference was made outside this service and
maps to CDCMetadataID(entity, version).

API Types:

EntityRequest, MutationResponse, MetadataListResponse, ReplayResponse,
CheckpointResponse and HealthResponse are the JSON bodies of the HTTP API and
the indexsyncctl client.

Thread Safety:

Values in this package are plain data. Entity.Clone, SyncMetadata.Clone and
SyncTask.WithAttempt return copies that share no mutable state, so a task can
be handed to another goroutine while the caller keeps its own snapshot.
*/
package models
