// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/indexsync/internal/models"
)

// FaultFunc is consulted before every MemoryIndex call. A non-nil return is
// returned to the caller instead of performing the call.
type FaultFunc func(op Op, index, id string) error

type storedDoc struct {
	entity  *models.Entity
	version int64
	deleted bool
}

// MemoryIndex is an in-process Gateway with external-version fencing.
// Versioned deletes leave a tombstone so a stale write cannot resurrect the
// document.
type MemoryIndex struct {
	mu      sync.Mutex
	indices map[string]map[string]*storedDoc
	fault   FaultFunc
	calls   map[Op]int
}

var _ Gateway = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		indices: make(map[string]map[string]*storedDoc),
		calls:   make(map[Op]int),
	}
}

// SetFault installs (or clears, with nil) a fault hook.
func (m *MemoryIndex) SetFault(fn FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

// Calls returns how many times op was invoked, faults included.
func (m *MemoryIndex) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Document returns the live document and its stored version.
func (m *MemoryIndex) Document(index, id string) (*models.Entity, int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.indices[index][id]
	if !ok || d.deleted {
		return nil, 0, false
	}
	return d.entity.Clone(), d.version, true
}

// StoredVersion returns the version held for id, tombstones included.
func (m *MemoryIndex) StoredVersion(index, id string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.indices[index][id]
	if !ok {
		return 0, false
	}
	return d.version, true
}

func (m *MemoryIndex) CreateEntity(ctx context.Context, index string, e *models.Entity) (*models.Entity, error) {
	if e == nil {
		return nil, NewStatusError(400, "document is required")
	}
	return m.put(ctx, OpCreate, index, e.ID, e, 0)
}

func (m *MemoryIndex) UpdateEntity(ctx context.Context, index, id string, e *models.Entity) (*models.Entity, error) {
	return m.put(ctx, OpUpdate, index, id, e, 0)
}

func (m *MemoryIndex) DeleteEntity(ctx context.Context, index, id string) (bool, error) {
	return m.remove(ctx, OpDelete, index, id, 0)
}

func (m *MemoryIndex) CreateEntityWithVersion(ctx context.Context, index, id string, e *models.Entity, version int64) (*models.Entity, error) {
	return m.put(ctx, OpCreateVersioned, index, id, e, version)
}

func (m *MemoryIndex) UpdateEntityWithVersion(ctx context.Context, index, id string, e *models.Entity, version int64) (*models.Entity, error) {
	return m.put(ctx, OpUpdateVersioned, index, id, e, version)
}

func (m *MemoryIndex) DeleteEntityWithVersion(ctx context.Context, index, id string, version int64) (bool, error) {
	return m.remove(ctx, OpDeleteVersioned, index, id, version)
}

// put stores e. A positive version enables fencing.
func (m *MemoryIndex) put(ctx context.Context, op Op, index, id string, e *models.Entity, version int64) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, op, index, id); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, NewStatusError(400, "document is required")
	}
	if id == "" {
		return nil, NewStatusError(400, "document id is required")
	}

	docs := m.docs(index)
	stored := version
	if version > 0 {
		if cur, ok := docs[id]; ok && cur.version >= version {
			return nil, Conflict(fmt.Sprintf("[%s]: version conflict, current version [%d] is higher or equal to the one provided [%d]", id, cur.version, version))
		}
	} else {
		stored = e.Version
	}

	doc := e.Clone()
	doc.ID = id
	docs[id] = &storedDoc{entity: doc, version: stored}
	return doc.Clone(), nil
}

func (m *MemoryIndex) remove(ctx context.Context, op Op, index, id string, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, op, index, id); err != nil {
		return false, err
	}

	docs := m.docs(index)
	cur, ok := docs[id]
	if version <= 0 {
		delete(docs, id)
		return true, nil
	}
	if ok && cur.version >= version {
		return false, Conflict(fmt.Sprintf("[%s]: version conflict, current version [%d] is higher or equal to the one provided [%d]", id, cur.version, version))
	}
	docs[id] = &storedDoc{version: version, deleted: true}
	return true, nil
}

// enter counts the call and applies context and fault checks. Callers hold mu.
func (m *MemoryIndex) enter(ctx context.Context, op Op, index, id string) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return Transient("", err)
	}
	if m.fault != nil {
		if err := m.fault(op, index, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryIndex) docs(index string) map[string]*storedDoc {
	docs, ok := m.indices[index]
	if !ok {
		docs = make(map[string]*storedDoc)
		m.indices[index] = docs
	}
	return docs
}
