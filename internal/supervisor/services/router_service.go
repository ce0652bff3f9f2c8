// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/indexsync/internal/logging"
)

// Router is a blocking message router. Satisfied by *queue.Router.
type Router interface {
	Run(ctx context.Context) error
	Running() chan struct{}
}

// RouterService runs the queue consumer's router. Once every handler is
// subscribed it calls onRunning, which the server uses for the startup
// recovery sweep: re-enqueued tasks then have a live consumer.
//
// A Watermill router cannot be run twice, so newRouter builds a fresh one
// on every (re)start.
type RouterService struct {
	newRouter func() (Router, error)
	onRunning func(ctx context.Context) error
	name      string
}

// NewRouterService creates the service. onRunning may be nil.
func NewRouterService(newRouter func() (Router, error), onRunning func(ctx context.Context) error) *RouterService {
	return &RouterService{
		newRouter: newRouter,
		onRunning: onRunning,
		name:      "queue-consumer",
	}
}

// Serve implements suture.Service.
func (s *RouterService) Serve(ctx context.Context) error {
	router, err := s.newRouter()
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Run(ctx)
	}()

	select {
	case <-router.Running():
		if s.onRunning != nil {
			// A failed sweep is retried on the next start; the router keeps
			// consuming meanwhile.
			if err := s.onRunning(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("Startup hook failed")
			}
		}
	case err := <-errCh:
		return routerExit(ctx, err)
	case <-ctx.Done():
	}

	return routerExit(ctx, <-errCh)
}

// routerExit maps the router's return to a supervisor result. A router that
// stops on its own without cancellation is restarted.
func routerExit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("router stopped: %w", err)
	}
	return fmt.Errorf("router stopped unexpectedly")
}

func (s *RouterService) String() string {
	return s.name
}
