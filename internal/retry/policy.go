// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package retry holds the backoff policy shared by every synchronizer and the
// helper that schedules a retry action after that backoff.
//
// The delay for attempt k is min(2^k, MaxBackoff) units. The cap is small on
// purpose; deployments that need longer waits scale Unit.
package retry

import (
	"fmt"
	"time"
)

// Policy is the retry budget and backoff shape.
type Policy struct {
	// MaxRetries is the last attempt number that may still be requeued.
	MaxRetries int `koanf:"max_retries"`

	// MaxBackoff caps the delay, in units.
	MaxBackoff int `koanf:"max_backoff"`

	// Unit is the duration of one backoff unit.
	Unit time.Duration `koanf:"unit"`
}

// DefaultPolicy returns MaxRetries=5, MaxBackoff=10, Unit=1s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, MaxBackoff: 10, Unit: time.Second}
}

// Validate checks that the policy can schedule at least one retry.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.MaxBackoff < 1 {
		return fmt.Errorf("max_backoff must be >= 1, got %d", p.MaxBackoff)
	}
	if p.Unit <= 0 {
		return fmt.Errorf("unit must be positive, got %v", p.Unit)
	}
	return nil
}

// BackoffUnits returns min(2^attempt, MaxBackoff).
func (p Policy) BackoffUnits(attempt int) int {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 30 {
		return p.MaxBackoff
	}
	units := 1 << uint(attempt)
	if units > p.MaxBackoff {
		return p.MaxBackoff
	}
	return units
}

// Delay returns the backoff for attempt as a duration.
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(p.BackoffUnits(attempt)) * p.Unit
}

// Exhausted reports whether nextAttempt is past the retry budget.
func (p Policy) Exhausted(nextAttempt int) bool {
	return nextAttempt > p.MaxRetries
}
