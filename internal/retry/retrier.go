// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package retry

import (
	"time"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/scheduler"
)

// Retrier schedules a retry action after the policy backoff. The action is
// whatever the caller needs: re-publishing a task to the retry topic on the
// queue path, or re-invoking the reconciliation of a change event on the
// tailer path.
type Retrier struct {
	policy    Policy
	scheduler scheduler.Scheduler
	component string
}

// NewRetrier creates a Retrier. component labels logs.
func NewRetrier(policy Policy, sched scheduler.Scheduler, component string) *Retrier {
	return &Retrier{policy: policy, scheduler: sched, component: component}
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Schedule runs action after Delay(attempt). It returns the delay and false
// when the scheduler is stopped.
func (r *Retrier) Schedule(key string, attempt int, action func()) (time.Duration, bool) {
	delay := r.policy.Delay(attempt)
	ok := r.scheduler.Schedule(key, delay, scheduler.Task(action))
	if !ok {
		logging.Warn().
			Str("component", r.component).
			Str("key", key).
			Int("attempt", attempt).
			Msg("Retry not scheduled: scheduler stopped")
		return delay, false
	}
	logging.Debug().
		Str("component", r.component).
		Str("key", key).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Retry scheduled")
	return delay, true
}

// Pending returns the number of scheduled retries.
func (r *Retrier) Pending() int {
	return r.scheduler.Pending()
}

// Stop cancels pending retries.
func (r *Retrier) Stop() {
	r.scheduler.Stop()
}
