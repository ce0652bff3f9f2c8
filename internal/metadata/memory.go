// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package metadata

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/indexsync/internal/models"
)

// MemoryStore keeps metadata in process. Records are copied on the way in
// and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.SyncMetadata
	history map[string][]models.SyncMetadata
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.SyncMetadata),
		history: make(map[string][]models.SyncMetadata),
	}
}

func (s *MemoryStore) Save(ctx context.Context, md *models.SyncMetadata) error {
	if md == nil {
		return nil
	}
	if err := validate(md); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[md.ID]; ok {
		return ErrAlreadyExists
	}
	s.records[md.ID] = md.Clone()
	s.history[md.ID] = append(s.history[md.ID], *md.Clone())
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, md *models.SyncMetadata) error {
	if md == nil {
		return ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	next := md.Clone()
	next.ID = id
	next.EntityID = cur.EntityID
	next.Approach = cur.Approach
	next.Operation = cur.Operation
	s.records[id] = next
	s.history[id] = append(s.history[id], *next.Clone())
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.SyncMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return md.Clone(), nil
}

func (s *MemoryStore) LatestOperationSeq(ctx context.Context, entityID string, approach models.Approach) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest int64
	for _, md := range s.records {
		if md.EntityID == entityID && md.Approach == approach && md.OperationSeq > latest {
			latest = md.OperationSeq
		}
	}
	return latest, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*models.SyncMetadata, error) {
	s.mu.RLock()
	out := make([]*models.SyncMetadata, 0)
	for _, md := range s.records {
		if f.matches(md) {
			out = append(out, md.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

// History returns every version of the record written through Save and
// Update, oldest first.
func (s *MemoryStore) History(id string) []models.SyncMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[id]
	out := make([]models.SyncMetadata, len(h))
	copy(out, h)
	return out
}
