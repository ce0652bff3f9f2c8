// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package services

import (
	"context"
	"fmt"
)

// StartStopper is a background loop with an explicit lifecycle. Satisfied by
// *wal.RetryLoop and *wal.Compactor.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// StartStopService runs a StartStopper under the supervisor: Start, wait for
// cancellation, Stop. Stop blocks until the loop's goroutine has exited.
type StartStopService struct {
	component StartStopper
	name      string
}

// NewStartStopService wraps component under name.
func NewStartStopService(name string, component StartStopper) *StartStopService {
	return &StartStopService{component: component, name: name}
}

// NewWALRetryLoopService wraps the outbox retry loop.
func NewWALRetryLoopService(retryLoop StartStopper) *StartStopService {
	return NewStartStopService("wal-retry-loop", retryLoop)
}

// NewWALCompactorService wraps the outbox compactor.
func NewWALCompactorService(compactor StartStopper) *StartStopService {
	return NewStartStopService("wal-compactor", compactor)
}

// Serve implements suture.Service.
func (s *StartStopService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}
	<-ctx.Done()
	s.component.Stop()
	return ctx.Err()
}

func (s *StartStopService) String() string {
	return s.name
}
