// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package checkpoint persists the change-capture resume position.
package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/indexsync/internal/models"
)

// ErrNotFound is returned by Load before the first Save.
var ErrNotFound = errors.New("checkpoint not found")

// Store holds one checkpoint row. Only one tailer writes it.
type Store interface {
	Load(ctx context.Context) (*models.Checkpoint, error)
	Save(ctx context.Context, token string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	id    string
	cp    *models.Checkpoint
	saves int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store for the default checkpoint id.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{id: models.DefaultCheckpointID}
}

func (s *MemoryStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return nil, ErrNotFound
	}
	cp := *s.cp
	return &cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = &models.Checkpoint{ID: s.id, Token: token, UpdatedAt: time.Now().UTC()}
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
