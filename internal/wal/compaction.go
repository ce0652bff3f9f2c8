// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package wal

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/indexsync/internal/logging"
)

// Compactor periodically removes confirmed entries and pending entries past
// EntryTTL, then runs value log GC.
type Compactor struct {
	wal    *BadgerWAL
	config Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun time.Time
}

// NewCompactor creates a compactor over w.
func NewCompactor(w *BadgerWAL) *Compactor {
	return &Compactor{wal: w, config: w.Config()}
}

// Start launches the compaction loop.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.run(loopCtx)

	logging.Info().Dur("interval", c.config.CompactInterval).Msg("Outbox compactor started")
	return nil
}

// Stop stops the loop and waits for it.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Outbox compactor stopped")
}

// IsRunning reports whether the loop is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRun returns when the last compaction finished.
func (c *Compactor) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

func (c *Compactor) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CompactInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Compact()
		}
	}
}

// Compact runs one compaction pass and returns the number of removed entries.
func (c *Compactor) Compact() int64 {
	start := time.Now()
	if c.wal.checkOpen() != nil {
		return 0
	}

	confirmed, err := c.deleteConfirmed()
	if err != nil {
		logging.Error().Err(err).Msg("Outbox compaction: deleting confirmed entries failed")
	}
	expired, err := c.deleteExpired(start.Add(-c.config.EntryTTL))
	if err != nil {
		logging.Error().Err(err).Msg("Outbox compaction: deleting expired entries failed")
	}
	if err := c.wal.RunGC(); err != nil {
		logging.Error().Err(err).Msg("Outbox compaction: value log gc failed")
	}

	total := confirmed + expired
	walCompacted.Add(float64(total))
	if expired > 0 {
		walDropped.WithLabelValues("expired").Add(float64(expired))
	}

	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()

	if total > 0 {
		logging.Info().
			Int64("confirmed", confirmed).
			Int64("expired", expired).
			Dur("duration", time.Since(start)).
			Msg("Outbox compaction removed entries")
	}
	return total
}

func (c *Compactor) deleteConfirmed() (int64, error) {
	return c.deleteWhere(prefixConfirmed, nil)
}

func (c *Compactor) deleteExpired(cutoff time.Time) (int64, error) {
	return c.deleteWhere(prefixPending, func(e *Entry) bool {
		return e.CreatedAt.Before(cutoff)
	})
}

// deleteWhere deletes keys under prefix whose entry satisfies match, or
// every key when match is nil.
func (c *Compactor) deleteWhere(prefix string, match func(*Entry) bool) (int64, error) {
	var keys [][]byte
	err := c.wal.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = match != nil
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			if match != nil {
				var entry Entry
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &entry)
				}); err != nil || !match(&entry) {
					continue
				}
			}
			keys = append(keys, item.KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	wb := c.wal.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}
