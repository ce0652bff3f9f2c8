// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package models

import "time"

// DefaultCheckpointID is the key of the singleton tailer checkpoint.
const DefaultCheckpointID = "singleton"

// Checkpoint records the last change-log position whose decision is durable.
type Checkpoint struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChangeEvent is one committed mutation read from the primary store's change log.
//
// Document is the post-image for create and update and nil for delete.
// MetadataID carries the lineage back-reference when the writer set one.
type ChangeEvent struct {
	Token       string        `json:"token"`
	Sequence    uint64        `json:"sequence"`
	Operation   OperationKind `json:"operation"`
	EntityID    string        `json:"entity_id"`
	Version     int64         `json:"version"`
	MetadataID  string        `json:"metadata_id,omitempty"`
	Document    *Entity       `json:"document,omitempty"`
	CommittedAt time.Time     `json:"committed_at"`
}
