// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/indexsync/internal/logging"
)

// Transport bundles the publisher and subscriber of one queue mode together
// with whatever they need to stay up: an embedded server, the admin
// connection used to provision the stream.
type Transport struct {
	Publisher  *Publisher
	Subscriber message.Subscriber

	config  Config
	server  *EmbeddedServer
	nc      *natsgo.Conn
	streams *StreamInitializer
	shared  bool
}

// Open starts the transport described by cfg.
func Open(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	breaker := NewCircuitBreaker("queue-publisher", cfg.BreakerMaxFailures, cfg.BreakerTimeout)

	if cfg.Mode == ModeMemory {
		gc := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputBuffer,
		}, logger)
		logging.Info().Str("mode", cfg.Mode).Msg("Queue transport started")
		return &Transport{
			Publisher:  NewPublisher(gc, breaker),
			Subscriber: gc,
			config:     cfg,
			shared:     true,
		}, nil
	}

	t := &Transport{config: cfg}
	if cfg.Embedded {
		srv, err := NewEmbeddedServer(&cfg.Server)
		if err != nil {
			return nil, err
		}
		t.server = srv
		t.config.URL = srv.ClientURL()
		logging.Info().Str("url", t.config.URL).Msg("Embedded NATS server started")
	}

	if err := t.provision(ctx); err != nil {
		t.Close(ctx)
		return nil, err
	}

	pub, err := NewNATSPublisher(&t.config, logger)
	if err != nil {
		t.Close(ctx)
		return nil, err
	}
	t.Publisher = NewPublisher(pub, breaker)

	sub, err := NewNATSSubscriber(&t.config, logger)
	if err != nil {
		t.Close(ctx)
		return nil, err
	}
	t.Subscriber = sub

	logging.Info().
		Str("mode", cfg.Mode).
		Str("url", t.config.URL).
		Str("stream", cfg.Stream.Name).
		Msg("Queue transport started")
	return t, nil
}

func (t *Transport) provision(ctx context.Context) error {
	nc, err := natsgo.Connect(t.config.URL, natsgo.Name("indexsync-admin"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	t.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	streams, err := NewStreamInitializer(js, &t.config.Stream)
	if err != nil {
		return err
	}
	if _, err := streams.EnsureStream(ctx); err != nil {
		return err
	}
	t.streams = streams
	return nil
}

// Config returns the effective configuration. With an embedded server URL is
// the server's client URL.
func (t *Transport) Config() Config {
	return t.config
}

// Healthy reports whether the broker side is reachable.
func (t *Transport) Healthy(ctx context.Context) bool {
	if t.config.Mode == ModeMemory {
		return true
	}
	if t.server != nil && !t.server.IsRunning() {
		return false
	}
	return t.streams != nil && t.streams.IsHealthy(ctx)
}

// Close shuts everything down in reverse start order.
func (t *Transport) Close(ctx context.Context) error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if t.Subscriber != nil && !t.shared {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if t.nc != nil {
		t.nc.Close()
	}
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown NATS server: %w", err))
		}
	}
	return errors.Join(errs...)
}
