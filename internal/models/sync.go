// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package models

import (
	"time"
)

// SecondaryStatus is the state of the search index side of a lineage.
type SecondaryStatus string

const (
	SecondaryPending  SecondaryStatus = "pending"
	SecondarySuccess  SecondaryStatus = "success"
	SecondaryFailure  SecondaryStatus = "failure"
	SecondaryNotFound SecondaryStatus = "not_found"
)

// PrimaryStatusSuccess is the only primary status a metadata record can carry:
// the record is created after the primary write committed.
const PrimaryStatusSuccess = "success"

// SyncMetadata is the durable audit record of one synchronization lineage.
//
// FirstFailureAt is written once, on the first failure, and never overwritten.
// AttemptCount never decreases. Once Terminal is set the lineage does not return
// to pending except through an explicit manual replay.
type SyncMetadata struct {
	ID               string          `json:"id"`
	EntityID         string          `json:"entity_id"`
	Approach         Approach        `json:"approach"`
	Operation        OperationKind   `json:"operation"`
	OperationSeq     int64           `json:"operation_seq"`
	EntityVersion    int64           `json:"entity_version"`
	PrimaryStatus    string          `json:"primary_status"`
	PrimaryWriteAt   time.Time       `json:"primary_write_at"`
	SecondaryStatus  SecondaryStatus `json:"secondary_status"`
	SecondaryWriteAt *time.Time      `json:"secondary_write_at,omitempty"`
	FirstFailureAt   *time.Time      `json:"first_failure_at,omitempty"`
	LastAttemptAt    *time.Time      `json:"last_attempt_at,omitempty"`
	NextRetryAt      *time.Time      `json:"next_retry_at,omitempty"`
	AttemptCount     int             `json:"attempt_count"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	Terminal         bool            `json:"terminal"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewSyncMetadata creates a pending record for a mutation whose primary write
// committed at primaryWriteAt.
func NewSyncMetadata(id, entityID string, approach Approach, op OperationKind, primaryWriteAt time.Time) *SyncMetadata {
	return &SyncMetadata{
		ID:              id,
		EntityID:        entityID,
		Approach:        approach,
		Operation:       op,
		PrimaryStatus:   PrimaryStatusSuccess,
		PrimaryWriteAt:  primaryWriteAt,
		SecondaryStatus: SecondaryPending,
		UpdatedAt:       primaryWriteAt,
	}
}

// Clone returns a deep copy of m.
func (m *SyncMetadata) Clone() *SyncMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.SecondaryWriteAt = cloneTime(m.SecondaryWriteAt)
	c.FirstFailureAt = cloneTime(m.FirstFailureAt)
	c.LastAttemptAt = cloneTime(m.LastAttemptAt)
	c.NextRetryAt = cloneTime(m.NextRetryAt)
	return &c
}

// IsSettled reports whether no further automatic work will happen on the lineage.
func (m *SyncMetadata) IsSettled() bool {
	switch m.SecondaryStatus {
	case SecondarySuccess, SecondaryNotFound:
		return true
	}
	return m.Terminal
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SyncTask is an immutable description of one pending or retried secondary write.
//
// Metadata is a snapshot of the lineage at enqueue time; its AttemptCount is the
// number of attempts already made. RetryCount mirrors it for transports that
// only look at the envelope.
type SyncTask struct {
	Operation  OperationKind `json:"operation"`
	Index      string        `json:"index"`
	DocumentID string        `json:"document_id"`
	Document   *Entity       `json:"document,omitempty"`
	Version    int64         `json:"version"`
	Metadata   SyncMetadata  `json:"metadata"`
	RetryCount int           `json:"retry_count"`
}

// WithAttempt returns a copy of t for the given attempt count.
func (t SyncTask) WithAttempt(attempt int) SyncTask {
	c := t
	c.Document = t.Document.Clone()
	c.Metadata = *t.Metadata.Clone()
	c.Metadata.AttemptCount = attempt
	c.RetryCount = attempt
	return c
}

// Key identifies the lineage the task belongs to.
func (t SyncTask) Key() string {
	return t.Metadata.ID
}
