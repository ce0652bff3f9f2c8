// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerScheduler_RunsAfterDelay(t *testing.T) {
	s := NewTimerScheduler("test")
	defer s.Stop()

	done := make(chan struct{})
	start := time.Now()
	if !s.Schedule("k", 20*time.Millisecond, func() { close(done) }) {
		t.Fatal("Schedule returned false")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Task did not run")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Task ran early after %v", elapsed)
	}
	if s.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", s.Pending())
	}
}

func TestTimerScheduler_ReplaceSameKey(t *testing.T) {
	s := NewTimerScheduler("test")
	defer s.Stop()

	var first, second atomic.Int32
	done := make(chan struct{})
	s.Schedule("k", 30*time.Millisecond, func() { first.Add(1) })
	s.Schedule("k", 10*time.Millisecond, func() { second.Add(1); close(done) })

	if s.Pending() != 1 {
		t.Errorf("Expected 1 pending timer, got %d", s.Pending())
	}

	<-done
	time.Sleep(50 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 1 {
		t.Errorf("Expected only the replacement to run, got first=%d second=%d", first.Load(), second.Load())
	}
}

func TestTimerScheduler_StopCancelsPending(t *testing.T) {
	s := NewTimerScheduler("test")

	var ran atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		s.Schedule(key, time.Hour, func() { ran.Add(1) })
	}
	if s.Pending() != 3 {
		t.Fatalf("Expected 3 pending, got %d", s.Pending())
	}

	s.Stop()
	if s.Pending() != 0 {
		t.Errorf("Expected 0 pending after Stop, got %d", s.Pending())
	}
	if s.Schedule("d", time.Millisecond, func() { ran.Add(1) }) {
		t.Error("Schedule after Stop must return false")
	}
	time.Sleep(10 * time.Millisecond)
	if ran.Load() != 0 {
		t.Errorf("No task should have run, got %d", ran.Load())
	}

	s.Stop()
}

func TestTimerScheduler_PanicDoesNotKillWorker(t *testing.T) {
	s := NewTimerScheduler("test")
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("boom", time.Millisecond, func() { panic("boom") })
	time.Sleep(10 * time.Millisecond)
	s.Schedule("ok", time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not survive a panicking task")
	}
}

func TestManual(t *testing.T) {
	m := NewManual()
	var order []string

	m.Schedule("a", time.Second, func() { order = append(order, "a") })
	m.Schedule("b", 2*time.Second, func() {
		order = append(order, "b")
		m.Schedule("c", 4*time.Second, func() { order = append(order, "c") })
	})

	if n := m.RunAll(10); n != 3 {
		t.Errorf("Expected 3 tasks run, got %d", n)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("Unexpected order %v", order)
	}

	delays := m.Delays()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}

	m.Stop()
	if m.Schedule("d", time.Second, func() {}) {
		t.Error("Schedule after Stop must return false")
	}
}
