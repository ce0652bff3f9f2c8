// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package metadata

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/indexsync/internal/models"
)

// Sequencer allocates per-entity, per-approach operation sequence numbers as
// LatestOperationSeq + 1.
//
// Allocate holds a lock per (entity, approach) from the read until the record
// carrying the number is saved, so inside one process two callers never get
// the same number. Across processes sharing a store the number is an ordering
// hint only: two writers can still read the same latest value.
type Sequencer struct {
	store Store

	mu    sync.Mutex
	slots map[string]*seqSlot
}

type seqSlot struct {
	mu   sync.Mutex
	refs int
}

// NewSequencer creates a sequencer over store.
func NewSequencer(store Store) *Sequencer {
	return &Sequencer{store: store, slots: make(map[string]*seqSlot)}
}

// Allocate computes the next sequence and calls save with it while still
// holding the lock. save normally persists the record; its error is
// returned as is.
func (s *Sequencer) Allocate(ctx context.Context, entityID string, approach models.Approach, save func(seq int64) error) (int64, error) {
	key := string(approach) + "/" + entityID
	slot := s.acquire(key)
	defer s.release(key, slot)

	latest, err := s.store.LatestOperationSeq(ctx, entityID, approach)
	if err != nil {
		return 0, fmt.Errorf("latest operation seq: %w", err)
	}
	seq := latest + 1
	return seq, save(seq)
}

func (s *Sequencer) acquire(key string) *seqSlot {
	s.mu.Lock()
	slot, ok := s.slots[key]
	if !ok {
		slot = &seqSlot{}
		s.slots[key] = slot
	}
	slot.refs++
	s.mu.Unlock()

	slot.mu.Lock()
	return slot
}

func (s *Sequencer) release(key string, slot *seqSlot) {
	slot.mu.Unlock()

	s.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(s.slots, key)
	}
	s.mu.Unlock()
}
