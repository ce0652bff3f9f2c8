// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/indexsync/internal/logging"
)

// HealthChecker reports broker reachability. Satisfied by *queue.Transport.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// TransportService watches the queue transport and logs health transitions.
// The transport itself is opened and closed by the server around the tree;
// publishers and subscribers reconnect on their own.
type TransportService struct {
	transport HealthChecker
	interval  time.Duration
	name      string

	onChange func(healthy bool)
}

// NewTransportService creates the watcher. A non-positive interval means 15s.
func NewTransportService(transport HealthChecker, interval time.Duration) *TransportService {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &TransportService{
		transport: transport,
		interval:  interval,
		name:      "queue-transport",
	}
}

// Serve implements suture.Service.
func (s *TransportService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, s.interval)
			now := s.transport.Healthy(checkCtx)
			cancel()
			if now == healthy {
				continue
			}
			healthy = now
			if healthy {
				logging.Info().Msg("Queue transport recovered")
			} else {
				logging.Warn().Msg("Queue transport unhealthy")
			}
			if s.onChange != nil {
				s.onChange(healthy)
			}
		}
	}
}

func (s *TransportService) String() string {
	return s.name
}
