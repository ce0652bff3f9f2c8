// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package queue

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metrics"
)

// NewCircuitBreaker creates the publish circuit breaker. It trips after
// maxFailures consecutive publish failures and tries again after timeout.
func NewCircuitBreaker(name string, maxFailures uint32, timeout time.Duration) *gobreaker.CircuitBreaker[interface{}] {
	if maxFailures == 0 {
		maxFailures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(counts.ConsecutiveFailures))
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			switch to {
			case gobreaker.StateClosed:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			case gobreaker.StateHalfOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(1)
			case gobreaker.StateOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(2)
			}
		},
	})
}
