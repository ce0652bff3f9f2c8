// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package scheduler

import (
	"sync"
	"time"
)

// ManualEntry is a task held by Manual.
type ManualEntry struct {
	Key   string
	Delay time.Duration
	Task  Task
}

// Manual is a Scheduler whose timers only fire when the test says so.
type Manual struct {
	mu      sync.Mutex
	entries []ManualEntry
	delays  []time.Duration
	stopped bool
}

var _ Scheduler = (*Manual)(nil)

// NewManual creates an empty manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Schedule(key string, delay time.Duration, task Task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	for i, e := range m.entries {
		if e.Key == key {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	m.entries = append(m.entries, ManualEntry{Key: key, Delay: delay, Task: task})
	m.delays = append(m.delays, delay)
	return true
}

func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.entries = nil
}

// RunNext fires the oldest pending entry. It returns false if none is pending.
func (m *Manual) RunNext() bool {
	m.mu.Lock()
	if len(m.entries) == 0 {
		m.mu.Unlock()
		return false
	}
	e := m.entries[0]
	m.entries = m.entries[1:]
	m.mu.Unlock()

	e.Task()
	return true
}

// RunAll fires entries, including ones scheduled by fired tasks, until none
// remain or limit tasks have run. It returns the number run.
func (m *Manual) RunAll(limit int) int {
	n := 0
	for n < limit && m.RunNext() {
		n++
	}
	return n
}

// Entries returns a snapshot of the pending entries.
func (m *Manual) Entries() []ManualEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ManualEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Delays returns every delay passed to Schedule, in call order.
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.delays))
	copy(out, m.delays)
	return out
}
