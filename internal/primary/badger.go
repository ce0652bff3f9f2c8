// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package primary

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/models"
)

const (
	prefixEntity    = "entity:"
	prefixChangeLog = "changelog:"
	keySequence     = "seq:changelog"

	sequenceBandwidth = 128
)

// Config configures the Badger-backed primary store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps all data in memory. Intended for tests and demos.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `koanf:"sync_writes"`
}

// BadgerStore implements Store and ChangeLog on BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence

	// writeMu orders sequence allocation and commit so log order is commit order.
	writeMu sync.Mutex

	notify chan struct{}

	mu     sync.RWMutex
	closed bool

	now func() time.Time
}

// Open opens (or creates) the store described by cfg.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("primary store path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lease change log sequence: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Primary store opened")

	return &BadgerStore{
		db:     db,
		seq:    seq,
		notify: make(chan struct{}, 1),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create inserts a new entity with version 1, or version n+1 when the id was
// previously deleted. An empty id is replaced with a UUID.
func (s *BadgerStore) Create(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	if e == nil || e.Name == "" {
		return nil, ErrInvalidEntity
	}

	out := e.Clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		prev, err := getEntity(txn, out.ID)
		switch {
		case err == nil && !prev.Deleted:
			return ErrAlreadyExists
		case err == nil:
			out.Version = prev.Version + 1
		case errors.Is(err, ErrNotFound):
			out.Version = 1
		default:
			return err
		}

		now := s.now()
		out.CreatedAt = now
		out.UpdatedAt = now
		out.Deleted = false
		return s.commit(txn, out, models.OperationCreate)
	})
	if err != nil {
		return nil, err
	}
	s.signal()
	return out, nil
}

// Get returns the live entity with the given id.
func (s *BadgerStore) Get(ctx context.Context, id string) (*models.Entity, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var out *models.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		e, err := getEntity(txn, id)
		if err != nil {
			return err
		}
		if e.Deleted {
			return ErrNotFound
		}
		out = e
		return nil
	})
	return out, err
}

// Update replaces the mutable fields of a live entity and bumps its version.
// The SyncMetadataID of e replaces the stored back-reference.
func (s *BadgerStore) Update(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	if e == nil || e.ID == "" || e.Name == "" {
		return nil, ErrInvalidEntity
	}

	var out *models.Entity
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		prev, err := getEntity(txn, e.ID)
		if err != nil {
			return err
		}
		if prev.Deleted {
			return ErrNotFound
		}

		out = e.Clone()
		out.CreatedAt = prev.CreatedAt
		out.UpdatedAt = s.now()
		out.Deleted = false
		out.Version = prev.Version + 1
		return s.commit(txn, out, models.OperationUpdate)
	})
	if err != nil {
		return nil, err
	}
	s.signal()
	return out, nil
}

// Delete tombstones a live entity. It returns false without error when there
// was nothing to delete. metadataID is recorded on the tombstone and its
// change event.
func (s *BadgerStore) Delete(ctx context.Context, id, metadataID string) (bool, int64, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, 0, err
	}

	var version int64
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		prev, err := getEntity(txn, id)
		if err != nil {
			return err
		}
		if prev.Deleted {
			return ErrNotFound
		}

		tomb := prev.Clone()
		tomb.Deleted = true
		tomb.Version = prev.Version + 1
		tomb.UpdatedAt = s.now()
		tomb.SyncMetadataID = metadataID
		version = tomb.Version
		return s.commit(txn, tomb, models.OperationDelete)
	})
	if errors.Is(err, ErrNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	s.signal()
	return true, version, nil
}

// commit writes the entity row and its change log event in txn.
// Callers hold writeMu.
func (s *BadgerStore) commit(txn *badger.Txn, e *models.Entity, op models.OperationKind) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	if err := txn.Set(entityKey(e.ID), data); err != nil {
		return fmt.Errorf("set entity: %w", err)
	}

	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next change log sequence: %w", err)
	}
	seq := n + 1

	ev := models.ChangeEvent{
		Token:       FormatToken(seq),
		Sequence:    seq,
		Operation:   op,
		EntityID:    e.ID,
		Version:     e.Version,
		MetadataID:  e.SyncMetadataID,
		CommittedAt: e.UpdatedAt,
	}
	if op != models.OperationDelete {
		ev.Document = e.Clone()
	}

	evData, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := txn.Set(changeLogKey(seq), evData); err != nil {
		return fmt.Errorf("append change event: %w", err)
	}
	return nil
}

// Head returns the token of the newest change log event, or "" for an empty log.
func (s *BadgerStore) Head(ctx context.Context) (string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return "", err
	}

	var head uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last key <= the seek key.
		seekKey := append([]byte(prefixChangeLog), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seekKey)
		if it.ValidForPrefix([]byte(prefixChangeLog)) {
			head = parseChangeLogKey(it.Item().Key())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read change log head: %w", err)
	}
	return FormatToken(head), nil
}

// ReadAfter returns up to limit events with a sequence greater than token.
func (s *BadgerStore) ReadAfter(ctx context.Context, token string, limit int) ([]models.ChangeEvent, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	after, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	events := make([]models.ChangeEvent, 0, limit)
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixChangeLog)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(changeLogKey(after + 1)); it.Valid() && len(events) < limit; it.Next() {
			var ev models.ChangeEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("unmarshal change event: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Changes returns a channel that receives a value after commits. Signals coalesce.
func (s *BadgerStore) Changes() <-chan struct{} {
	return s.notify
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close BadgerDB: %w", err))
	}
	return errors.Join(errs...)
}

func (s *BadgerStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *BadgerStore) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func getEntity(txn *badger.Txn, id string) (*models.Entity, error) {
	if id == "" || strings.ContainsRune(id, 0) {
		return nil, ErrNotFound
	}
	item, err := txn.Get(entityKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	var e models.Entity
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	return &e, nil
}

func entityKey(id string) []byte {
	return []byte(prefixEntity + id)
}

func changeLogKey(seq uint64) []byte {
	key := make([]byte, len(prefixChangeLog)+8)
	copy(key, prefixChangeLog)
	binary.BigEndian.PutUint64(key[len(prefixChangeLog):], seq)
	return key
}

func parseChangeLogKey(key []byte) uint64 {
	if len(key) != len(prefixChangeLog)+8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(prefixChangeLog):])
}
