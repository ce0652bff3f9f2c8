// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/indexsync/internal/metrics"
)

// Router wraps the Watermill router with the consumer middleware stack.
//
// Middleware, outer to inner:
//  1. Recoverer turns handler panics into errors.
//  2. Retry retries handler errors in place with backoff.
//  3. Throttle, when enabled.
//  4. Poison queue: errors marked Permanent are published to the poison
//     topic and the message is acked. Without a poison topic they are
//     logged and acked.
//
// Errors that survive the stack nack the message and the broker redelivers.
type Router struct {
	router *message.Router
	config Config
	logger watermill.LoggerAdapter
}

// NewRouter creates a router. poisonPublisher may be nil.
func NewRouter(cfg *Config, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 30 * time.Second
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: closeTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	if cfg.RouterRetries > 0 {
		retry := middleware.Retry{
			MaxRetries:      cfg.RouterRetries,
			InitialInterval: cfg.RouterRetryInterval,
			MaxInterval:     cfg.RouterMaxRetryInterval,
			Multiplier:      2.0,
			Logger:          logger,
		}
		wmRouter.AddMiddleware(retry.Middleware)
	}

	if cfg.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second)
		wmRouter.AddMiddleware(throttle.Middleware)
	}

	shouldPoison := func(err error) bool {
		if IsPermanent(err) {
			metrics.RecordQueuePoisoned()
			return true
		}
		return false
	}
	if poisonPublisher != nil && cfg.PoisonTopic != "" {
		poison, err := middleware.PoisonQueueWithFilter(poisonPublisher, cfg.PoisonTopic, shouldPoison)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	} else {
		wmRouter.AddMiddleware(dropPermanent(shouldPoison, logger))
	}

	return &Router{router: wmRouter, config: *cfg, logger: logger}, nil
}

func dropPermanent(match func(error) bool, logger watermill.LoggerAdapter) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			out, err := h(msg)
			if err != nil && match(err) {
				logger.Error("Dropping message that can never be processed", err, watermill.LogFields{
					"message_uuid": msg.UUID,
				})
				return nil, nil
			}
			return out, err
		}
	}
}

// AddConsumerHandler registers a handler that consumes topic.
func (r *Router) AddConsumerHandler(name, topic string, sub message.Subscriber, fn message.NoPublishHandlerFunc) {
	r.router.AddConsumerHandler(name, topic, sub, fn)
}

// Run blocks until ctx is cancelled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// IsRunning reports whether the router is running.
func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

// Close stops the router, waiting up to CloseTimeout for handlers.
func (r *Router) Close() error {
	return r.router.Close()
}
