// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package primary

import (
	"context"
	"errors"
	"strconv"

	"github.com/tomtom215/indexsync/internal/models"
)

var (
	// ErrNotFound is returned when no live entity has the requested id.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned by Create when a live entity has the id.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidEntity is returned for nil entities or entities without a name.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("primary store closed")

	// ErrInvalidToken is returned for resume tokens that are not a sequence.
	ErrInvalidToken = errors.New("invalid resume token")
)

// Store is the primary store gateway.
//
// Every successful write returns the entity with its new version. Delete
// reports whether a live row existed and, when it did, the version assigned
// to the delete. The metadata id of the delete is committed with the
// tombstone so its change event names the lineage that owns it.
type Store interface {
	Create(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Get(ctx context.Context, id string) (*models.Entity, error)
	Update(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Delete(ctx context.Context, id, metadataID string) (existed bool, version int64, err error)
	Close() error
}

// ChangeLog is the ordered, resumable stream of committed mutations.
type ChangeLog interface {
	// Head returns the token of the newest committed event.
	Head(ctx context.Context) (string, error)

	// ReadAfter returns up to limit events strictly after token, in commit order.
	ReadAfter(ctx context.Context, token string, limit int) ([]models.ChangeEvent, error)

	// Changes signals (coalesced) that new events may be available.
	Changes() <-chan struct{}
}

// FormatToken renders a change log sequence as a resume token.
func FormatToken(seq uint64) string {
	if seq == 0 {
		return ""
	}
	return strconv.FormatUint(seq, 10)
}

// ParseToken converts a resume token back into a sequence.
func ParseToken(token string) (uint64, error) {
	if token == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return seq, nil
}
