// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package models

import "time"

// EntityRequest is the body of create and update calls. On create an empty
// ID means the server picks one; on update the path id wins.
type EntityRequest struct {
	ID      string                 `json:"id" validate:"omitempty,entity_id"`
	Name    string                 `json:"name" validate:"required,min=1,max=512"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ToEntity converts the request into an entity for the given id.
func (r *EntityRequest) ToEntity(id string) *Entity {
	return &Entity{ID: id, Name: r.Name, Payload: r.Payload}
}

// MutationResponse is returned from create, update and delete endpoints.
// Deleted is only set for deletes. Outcome is set when the index write ran
// inline (direct, direct_versioned, hybrid).
type MutationResponse struct {
	Entity     *Entity       `json:"entity,omitempty"`
	Deleted    *bool         `json:"deleted,omitempty"`
	MetadataID string        `json:"metadata_id,omitempty"`
	Approach   Approach      `json:"approach"`
	Metadata   *SyncMetadata `json:"metadata,omitempty"`
	Outcome    string        `json:"outcome,omitempty"`
}

// MetadataListResponse wraps a metadata listing.
type MetadataListResponse struct {
	Items []*SyncMetadata `json:"items"`
	Count int             `json:"count"`
}

// ReplayResponse reports a manual replay.
type ReplayResponse struct {
	MetadataID string        `json:"metadata_id"`
	Outcome    string        `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Metadata   *SyncMetadata `json:"metadata,omitempty"`
}

// CheckpointResponse reports the tailer position. Cursor and InFlight are
// only known while the tailer runs in this process.
type CheckpointResponse struct {
	Token     string     `json:"token"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	State     string     `json:"state,omitempty"`
	Cursor    string     `json:"cursor,omitempty"`
	InFlight  int        `json:"in_flight"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
	Uptime     float64         `json:"uptime_seconds"`
}
