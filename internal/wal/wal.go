// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/indexsync/internal/logging"
)

var (
	ErrWALClosed     = errors.New("wal is closed")
	ErrEmptyPayload  = errors.New("payload cannot be empty")
	ErrEmptyEntryID  = errors.New("entry id cannot be empty")
	ErrEntryNotFound = errors.New("entry not found")
)

const (
	prefixPending   = "pending:"
	prefixConfirmed = "confirmed:"
)

// Entry is one outbox record: a serialized message bound for a topic.
type Entry struct {
	ID            string     `json:"id"`
	Topic         string     `json:"topic"`
	Key           string     `json:"key"`
	Payload       []byte     `json:"payload"`
	CreatedAt     time.Time  `json:"created_at"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt time.Time  `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Confirmed     bool       `json:"confirmed"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`

	// LeaseExpiry and LeaseHolder implement a durable claim so the retry
	// loop and an in-flight Outbox.Publish never publish the same entry at
	// once. An expired lease is free to take.
	LeaseExpiry time.Time `json:"lease_expiry,omitempty"`
	LeaseHolder string    `json:"lease_holder,omitempty"`
}

// Stats is a point-in-time view of the outbox.
type Stats struct {
	PendingCount   int64
	ConfirmedCount int64
	DBSizeBytes    int64
}

// BadgerWAL stores outbox entries in BadgerDB under two key prefixes:
// pending entries await publish, confirmed entries await compaction.
type BadgerWAL struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the outbox.
func Open(cfg *Config) (*BadgerWAL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wal config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Outbox opened")
	return &BadgerWAL{db: db, config: *cfg}, nil
}

// Config returns the outbox configuration.
func (w *BadgerWAL) Config() Config {
	return w.config
}

func (w *BadgerWAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}
	return nil
}

// Write stores a pending entry and returns its ID.
func (w *BadgerWAL) Write(ctx context.Context, topic, key string, payload []byte) (string, error) {
	start := time.Now()
	defer func() { walWriteLatency.Observe(time.Since(start).Seconds()) }()

	if err := w.checkOpen(); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	entry := &Entry{
		ID:        uuid.New().String(),
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	err = w.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixPending+entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("write entry: %w", err)
	}

	walWritesTotal.Inc()
	return entry.ID, nil
}

// Confirm moves an entry from pending to confirmed.
func (w *BadgerWAL) Confirm(ctx context.Context, entryID string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if entryID == "" {
		return ErrEmptyEntryID
	}

	pendingKey := []byte(prefixPending + entryID)
	err := w.db.Update(func(txn *badger.Txn) error {
		entry, err := readEntry(txn, pendingKey)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		entry.Confirmed = true
		entry.ConfirmedAt = &now
		entry.LeaseHolder = ""
		entry.LeaseExpiry = time.Time{}
		if err := writeEntry(txn, []byte(prefixConfirmed+entryID), entry); err != nil {
			return err
		}
		return txn.Delete(pendingKey)
	})
	if err != nil {
		return err
	}

	walConfirmsTotal.Inc()
	return nil
}

// GetPending returns every unconfirmed entry from one consistent snapshot,
// ordered by key.
func (w *BadgerWAL) GetPending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable outbox entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}
	return entries, nil
}

// UpdateAttempt records a failed publish on a pending entry and releases its
// lease.
func (w *BadgerWAL) UpdateAttempt(ctx context.Context, entryID, lastError string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	key := []byte(prefixPending + entryID)
	return w.db.Update(func(txn *badger.Txn) error {
		entry, err := readEntry(txn, key)
		if err != nil {
			return err
		}
		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		entry.LastError = lastError
		entry.LeaseHolder = ""
		entry.LeaseExpiry = time.Time{}
		return writeEntry(txn, key, entry)
	})
}

// DeleteEntry removes an entry whichever state it is in.
func (w *BadgerWAL) DeleteEntry(ctx context.Context, entryID string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []string{prefixPending, prefixConfirmed} {
			key := []byte(prefix + entryID)
			if _, err := txn.Get(key); err == nil {
				return txn.Delete(key)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return ErrEntryNotFound
	})
}

// TryClaim takes the lease on a pending entry for holder. It returns false
// without error when another holder's lease is still live.
func (w *BadgerWAL) TryClaim(ctx context.Context, entryID, holder string) (bool, error) {
	if err := w.checkOpen(); err != nil {
		return false, err
	}

	now := time.Now()
	claimed := false
	key := []byte(prefixPending + entryID)
	err := w.db.Update(func(txn *badger.Txn) error {
		entry, err := readEntry(txn, key)
		if err != nil {
			return err
		}
		if entry.LeaseHolder != "" && entry.LeaseHolder != holder && now.Before(entry.LeaseExpiry) {
			return nil
		}
		entry.LeaseHolder = holder
		entry.LeaseExpiry = now.Add(w.config.LeaseDuration)
		claimed = true
		return writeEntry(txn, key, entry)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// Stats counts pending and confirmed entries.
func (w *BadgerWAL) Stats() Stats {
	if w.checkOpen() != nil {
		return Stats{}
	}

	var s Stats
	if err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, p := range []struct {
			prefix string
			count  *int64
		}{{prefixPending, &s.PendingCount}, {prefixConfirmed, &s.ConfirmedCount}} {
			prefix := []byte(p.prefix)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				*p.count++
			}
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("Outbox stats failed")
	}

	lsm, vlog := w.db.Size()
	s.DBSizeBytes = lsm + vlog
	walPendingEntries.Set(float64(s.PendingCount))
	return s
}

// RunGC reclaims value log space. It is a no-op for in-memory outboxes.
func (w *BadgerWAL) RunGC() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.config.InMemory {
		return nil
	}
	for {
		err := w.db.RunValueLogGC(w.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Close closes the database, giving up after CloseTimeout.
func (w *BadgerWAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	timeout := w.config.CloseTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() { done <- w.db.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close badger: %w", err)
		}
		logging.Info().Msg("Outbox closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badger close timed out after %v", timeout)
	}
}

func readEntry(txn *badger.Txn, key []byte) (*Entry, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	var entry Entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &entry, nil
}

func writeEntry(txn *badger.Txn, key []byte, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return txn.Set(key, data)
}
