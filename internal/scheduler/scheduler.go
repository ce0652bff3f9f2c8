// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package scheduler runs delayed tasks for backoff retries.
//
// A scheduler is owned by one synchronizer: it is created with it and
// stopped with it. Stopping cancels timers that have not fired. A task that
// is already running is allowed to finish.
package scheduler

import (
	"sync"
	"time"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metrics"
)

// Task is the work run when a timer fires.
type Task func()

// Scheduler delays tasks. Scheduling the same key again replaces the pending
// timer for that key.
type Scheduler interface {
	// Schedule runs task after delay. It returns false once stopped.
	Schedule(key string, delay time.Duration, task Task) bool

	// Pending returns the number of timers that have not fired.
	Pending() int

	// Stop cancels pending timers and waits for a running task to finish.
	// It must not be called from inside a task.
	Stop()
}

// TimerScheduler fires timers with time.AfterFunc and runs the tasks one at a
// time on a single worker goroutine.
type TimerScheduler struct {
	name string

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	ready  chan Task
	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler starts a scheduler. name labels its metrics.
func NewTimerScheduler(name string) *TimerScheduler {
	s := &TimerScheduler{
		name:   name,
		timers: make(map[string]*time.Timer),
		ready:  make(chan Task),
		stopCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *TimerScheduler) Schedule(key string, delay time.Duration, task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	if old, ok := s.timers[key]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		metrics.SetPendingRetries(s.name, len(s.timers))
		s.mu.Unlock()

		select {
		case s.ready <- task:
		case <-s.stopCh:
		}
	})
	s.timers[key] = t
	metrics.SetPendingRetries(s.name, len(s.timers))
	return true
}

func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancelled := len(s.timers)
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	metrics.SetPendingRetries(s.name, 0)
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	if cancelled > 0 {
		logging.Info().Str("scheduler", s.name).Int("cancelled", cancelled).Msg("Scheduler stopped with pending retries")
	}
}

func (s *TimerScheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.ready:
			s.run(task)
		case <-s.stopCh:
			return
		}
	}
}

func (s *TimerScheduler) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("scheduler", s.name).Interface("panic", r).Msg("Scheduled task panicked")
		}
	}()
	task()
}
