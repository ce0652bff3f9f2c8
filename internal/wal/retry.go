// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package wal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/indexsync/internal/logging"
)

// Publisher publishes one outbox entry to the broker.
type Publisher interface {
	PublishEntry(ctx context.Context, entry *Entry) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, entry *Entry) error

// PublishEntry calls f.
func (f PublisherFunc) PublishEntry(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

// maxEntryBackoff caps the per-entry publish backoff.
const maxEntryBackoff = 5 * time.Minute

// RetryLoop periodically republishes pending outbox entries.
type RetryLoop struct {
	wal       *BadgerWAL
	publisher Publisher
	config    Config
	holder    string

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopDone chan struct{}
}

// NewRetryLoop creates a retry loop over w.
func NewRetryLoop(w *BadgerWAL, publisher Publisher) *RetryLoop {
	return &RetryLoop{
		wal:       w,
		publisher: publisher,
		config:    w.Config(),
		holder:    "retry-loop-" + uuid.New().String()[:8],
	}
}

// Start launches the loop. It recovers pending entries immediately, then on
// every RetryInterval tick. Calling Start on a running loop is a no-op.
func (r *RetryLoop) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.stopDone = make(chan struct{})
	go r.run(loopCtx, r.stopDone)

	logging.Info().
		Dur("interval", r.config.RetryInterval).
		Int("max_retries", r.config.MaxRetries).
		Msg("Outbox retry loop started")
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (r *RetryLoop) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	done := r.stopDone
	r.mu.Unlock()

	<-done
	logging.Info().Msg("Outbox retry loop stopped")
}

// IsRunning reports whether the loop is active.
func (r *RetryLoop) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *RetryLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.RetryPending(ctx)

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RetryPending(ctx)
		}
	}
}

// RetryResult summarizes one pass over the pending entries.
type RetryResult struct {
	Published int
	Failed    int
	Dropped   int
	Skipped   int
}

// RetryPending makes one pass over the pending entries.
func (r *RetryLoop) RetryPending(ctx context.Context) RetryResult {
	var res RetryResult

	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Outbox retry: listing pending entries failed")
		return res
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		switch {
		case time.Since(entry.CreatedAt) > r.config.EntryTTL:
			r.drop(ctx, entry, "expired")
			res.Dropped++
		case entry.Attempts >= r.config.MaxRetries:
			r.drop(ctx, entry, "max_retries")
			res.Dropped++
		case !r.due(entry):
			res.Skipped++
		default:
			switch r.publish(ctx, entry) {
			case nil:
				res.Published++
			case errNotClaimed:
				res.Skipped++
			default:
				res.Failed++
			}
		}
	}

	if res.Published+res.Failed+res.Dropped > 0 {
		logging.Info().
			Int("published", res.Published).
			Int("failed", res.Failed).
			Int("dropped", res.Dropped).
			Int("skipped", res.Skipped).
			Msg("Outbox retry pass complete")
	}
	r.wal.Stats()
	return res
}

var errNotClaimed = fmt.Errorf("entry claimed by another publisher")

func (r *RetryLoop) publish(ctx context.Context, entry *Entry) error {
	claimed, err := r.wal.TryClaim(ctx, entry.ID, r.holder)
	if err != nil {
		return err
	}
	if !claimed {
		return errNotClaimed
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = r.publisher.PublishEntry(pubCtx, entry)
	cancel()
	if err != nil {
		walPublishFailures.Inc()
		logging.Warn().Err(err).
			Str("entry_id", entry.ID).
			Str("topic", entry.Topic).
			Int("attempt", entry.Attempts+1).
			Msg("Outbox retry: publish failed")
		if uerr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); uerr != nil {
			logging.Error().Err(uerr).Str("entry_id", entry.ID).Msg("Outbox retry: recording attempt failed")
		}
		return err
	}
	if err := r.wal.Confirm(ctx, entry.ID); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("Outbox retry: confirm failed")
		return err
	}
	return nil
}

func (r *RetryLoop) drop(ctx context.Context, entry *Entry, reason string) {
	logging.Warn().
		Str("entry_id", entry.ID).
		Str("topic", entry.Topic).
		Str("key", entry.Key).
		Int("attempts", entry.Attempts).
		Str("reason", reason).
		Msg("Outbox entry dropped")
	if err := r.wal.DeleteEntry(ctx, entry.ID); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("Outbox retry: delete failed")
	}
	walDropped.WithLabelValues(reason).Inc()
}

func (r *RetryLoop) due(entry *Entry) bool {
	if entry.LastAttemptAt.IsZero() {
		return true
	}
	return time.Since(entry.LastAttemptAt) >= r.backoff(entry.Attempts)
}

// backoff is RetryBackoff * 2^attempts, capped at five minutes.
func (r *RetryLoop) backoff(attempts int) time.Duration {
	if attempts > 30 {
		return maxEntryBackoff
	}
	d := r.config.RetryBackoff << uint(attempts)
	if d <= 0 || d > maxEntryBackoff {
		return maxEntryBackoff
	}
	return d
}
