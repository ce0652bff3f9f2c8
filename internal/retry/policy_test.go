// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package retry

import (
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/indexsync/internal/scheduler"
)

func TestPolicy_BackoffFormula(t *testing.T) {
	p := DefaultPolicy()
	want := map[int]int{1: 2, 2: 4, 3: 8, 4: 10, 5: 10, 6: 10, 7: 10, 8: 10}

	for k := 1; k <= 8; k++ {
		t.Run(fmt.Sprintf("attempt_%d", k), func(t *testing.T) {
			if got := p.BackoffUnits(k); got != want[k] {
				t.Errorf("BackoffUnits(%d) = %d, want %d", k, got, want[k])
			}
			if got := p.Delay(k); got != time.Duration(want[k])*time.Second {
				t.Errorf("Delay(%d) = %v", k, got)
			}
		})
	}

	if got := p.BackoffUnits(64); got != 10 {
		t.Errorf("Large attempts must cap, got %d", got)
	}
}

func TestPolicy_ScaledUnit(t *testing.T) {
	p := Policy{MaxRetries: 5, MaxBackoff: 10, Unit: 100 * time.Millisecond}
	if got := p.Delay(3); got != 800*time.Millisecond {
		t.Errorf("Expected 800ms, got %v", got)
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	p := DefaultPolicy()
	for next := 1; next <= 5; next++ {
		if p.Exhausted(next) {
			t.Errorf("attempt %d must still be retryable", next)
		}
	}
	if !p.Exhausted(6) {
		t.Error("attempt 6 must be exhausted")
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"negative retries", Policy{MaxRetries: -1, MaxBackoff: 10, Unit: time.Second}, true},
		{"zero backoff", Policy{MaxRetries: 5, MaxBackoff: 0, Unit: time.Second}, true},
		{"zero unit", Policy{MaxRetries: 5, MaxBackoff: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetrier_Schedule(t *testing.T) {
	sched := scheduler.NewManual()
	r := NewRetrier(DefaultPolicy(), sched, "test")

	ran := false
	delay, ok := r.Schedule("md-1", 3, func() { ran = true })
	if !ok || delay != 8*time.Second {
		t.Fatalf("Expected 8s scheduled, got %v %v", delay, ok)
	}
	if r.Pending() != 1 {
		t.Errorf("Expected 1 pending, got %d", r.Pending())
	}

	sched.RunNext()
	if !ran {
		t.Error("Action did not run")
	}

	r.Stop()
	if _, ok := r.Schedule("md-2", 1, func() {}); ok {
		t.Error("Schedule after Stop must fail")
	}
}
