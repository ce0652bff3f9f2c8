// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package metadata persists SyncMetadata, the audit trail of every
// synchronization lineage. Records are created once and updated in place;
// they are never deleted.
package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/indexsync/internal/models"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("sync metadata not found")

	// ErrAlreadyExists is returned by Save when the id is taken.
	ErrAlreadyExists = errors.New("sync metadata already exists")

	// ErrInvalidRecord is returned for records without an id or entity id.
	ErrInvalidRecord = errors.New("invalid sync metadata record")
)

// Store is the sync metadata store.
type Store interface {
	// Save creates a record. A nil record is a no-op.
	Save(ctx context.Context, md *models.SyncMetadata) error

	// Update replaces the mutable fields of the record with the given id.
	Update(ctx context.Context, id string, md *models.SyncMetadata) error

	GetByID(ctx context.Context, id string) (*models.SyncMetadata, error)

	// LatestOperationSeq returns the highest recorded sequence for the
	// entity and approach, or 0.
	LatestOperationSeq(ctx context.Context, entityID string, approach models.Approach) (int64, error)

	List(ctx context.Context, f Filter) ([]*models.SyncMetadata, error)
}

// Filter narrows List. Zero values do not filter.
type Filter struct {
	EntityID      string
	Status        models.SecondaryStatus
	Approaches    []models.Approach
	Terminal      *bool
	UpdatedBefore time.Time
	Limit         int
}

// DefaultListLimit caps List when Filter.Limit is unset.
const DefaultListLimit = 500

func validate(md *models.SyncMetadata) error {
	if md.ID == "" || md.EntityID == "" {
		return ErrInvalidRecord
	}
	return nil
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f Filter) matches(md *models.SyncMetadata) bool {
	if f.EntityID != "" && md.EntityID != f.EntityID {
		return false
	}
	if f.Status != "" && md.SecondaryStatus != f.Status {
		return false
	}
	if len(f.Approaches) > 0 {
		found := false
		for _, a := range f.Approaches {
			if md.Approach == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Terminal != nil && md.Terminal != *f.Terminal {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !md.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}
