// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package tailer

import "sync"

type mark struct {
	seq   uint64
	token string
	done  bool
}

// watermark tracks events that were read but are not handled yet. The
// committed position is the newest token below which every event is handled;
// saved is the last position the checkpoint store accepted.
type watermark struct {
	mu           sync.Mutex
	open         []*mark
	committed    string
	committedSeq uint64
	saved        string
}

func newWatermark(committed string) *watermark {
	return &watermark{committed: committed, saved: committed}
}

// track registers an event in read order.
func (w *watermark) track(seq uint64, token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = append(w.open, &mark{seq: seq, token: token})
}

// complete marks seq handled. When the contiguous handled prefix grows, save
// is called with the new position while the lock is held, so positions are
// persisted in order. The in-memory position moves even if save fails; the
// next advance or flush persists it.
func (w *watermark) complete(seq uint64, save func(token string, seq uint64) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, m := range w.open {
		if m.seq == seq {
			m.done = true
			break
		}
	}

	n := 0
	for n < len(w.open) && w.open[n].done {
		n++
	}
	if n == 0 {
		return nil
	}
	last := w.open[n-1]
	w.open = w.open[n:]
	w.committed = last.token
	w.committedSeq = last.seq
	return w.persist(save)
}

// flush saves the committed position if the last save of it failed.
func (w *watermark) flush(save func(token string, seq uint64) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saved == w.committed {
		return nil
	}
	return w.persist(save)
}

func (w *watermark) persist(save func(token string, seq uint64) error) error {
	if err := save(w.committed, w.committedSeq); err != nil {
		return err
	}
	w.saved = w.committed
	return nil
}

// position returns the committed token.
func (w *watermark) position() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// inFlight returns the number of events read but not yet handled.
func (w *watermark) inFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, m := range w.open {
		if !m.done {
			n++
		}
	}
	return n
}
