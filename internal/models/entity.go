// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entity is the domain record owned by the primary store and mirrored into the
// search index.
//
// Version is incremented by the primary store on every mutation and doubles as
// the fencing token for version-checked index writes. SyncMetadataID is the
// back-reference written by the change-capture strategy so the tailer can find
// the lineage of a create or update event.
type Entity struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Deleted        bool                   `json:"deleted"`
	Version        int64                  `json:"version"`
	SyncMetadataID string                 `json:"sync_metadata_id,omitempty"`
}

// Clone returns a copy that shares no mutable state with e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Payload != nil {
		c.Payload = make(map[string]interface{}, len(e.Payload))
		for k, v := range e.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// OperationKind is the mutation that produced a sync task.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// Valid reports whether k is one of the known operation kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Approach tags which synchronization strategy produced a lineage.
type Approach string

const (
	ApproachDirect          Approach = "direct"
	ApproachDirectVersioned Approach = "direct_versioned"
	ApproachQueue           Approach = "queue"
	ApproachQueueVersioned  Approach = "queue_versioned"
	ApproachHybrid          Approach = "hybrid"
	ApproachCDC             Approach = "cdc"
)

// Approaches lists every strategy in a stable order.
var Approaches = []Approach{
	ApproachDirect,
	ApproachDirectVersioned,
	ApproachQueue,
	ApproachQueueVersioned,
	ApproachHybrid,
	ApproachCDC,
}

// ParseApproach converts a user-supplied tag into an Approach.
// Matching is case-insensitive and accepts '-' in place of '_'.
func ParseApproach(s string) (Approach, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, a := range Approaches {
		if string(a) == norm {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown approach %q", s)
}

// Valid reports whether a is a known approach.
func (a Approach) Valid() bool {
	for _, known := range Approaches {
		if a == known {
			return true
		}
	}
	return false
}

// Queued reports whether the approach hands tasks to the queue consumer.
func (a Approach) Queued() bool {
	return a == ApproachQueue || a == ApproachQueueVersioned || a == ApproachHybrid
}

// CDCMetadataPrefix marks lineages owned by the change-capture tailer.
const CDCMetadataPrefix = "cdc:"

// NewCDCMetadataID returns a lineage id for a cdc write with the given
// unique suffix.
func NewCDCMetadataID(suffix string) string {
	return CDCMetadataPrefix + suffix
}

// CDCMetadataID is the lineage id of a change event that carries no
// back-reference, i.e. a write made outside this service. Replays of the
// event derive the same id.
func CDCMetadataID(entityID string, version int64) string {
	return CDCMetadataPrefix + entityID + ":" + strconv.FormatInt(version, 10)
}

// IsCDCMetadataID reports whether id belongs to a cdc lineage.
func IsCDCMetadataID(id string) bool {
	return strings.HasPrefix(id, CDCMetadataPrefix)
}
