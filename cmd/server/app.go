// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/indexsync/internal/api"
	"github.com/tomtom215/indexsync/internal/cache"
	"github.com/tomtom215/indexsync/internal/checkpoint"
	"github.com/tomtom215/indexsync/internal/config"
	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/index"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/queue"
	"github.com/tomtom215/indexsync/internal/reconcile"
	"github.com/tomtom215/indexsync/internal/retry"
	"github.com/tomtom215/indexsync/internal/scheduler"
	"github.com/tomtom215/indexsync/internal/supervisor"
	"github.com/tomtom215/indexsync/internal/supervisor/services"
	"github.com/tomtom215/indexsync/internal/synchronizer"
	"github.com/tomtom215/indexsync/internal/tailer"
	"github.com/tomtom215/indexsync/internal/wal"
)

// app holds the process-wide resources and the components built on them.
// Resources are opened by newApp and released by close; services only use
// them while the supervisor tree runs.
type app struct {
	cfg *config.Config

	primary     *primary.BadgerStore
	db          *database.DB
	metadata    *metadata.SQLStore
	checkpoints *checkpoint.SQLStore
	gateway     index.Gateway

	transport *queue.Transport
	wal       *wal.BadgerWAL
	outbox    *wal.Outbox
	retryLoop *wal.RetryLoop
	compactor *wal.Compactor

	requeuer *synchronizer.Requeuer
	sync     *synchronizer.Synchronizer
	consumer *synchronizer.Consumer
	tailer   *tailer.Tailer

	// router is the consumer router of the current RouterService run.
	router atomic.Pointer[queue.Router]

	handler http.Handler
	server  *http.Server
}

// newApp opens every resource and wires the components. On error whatever
// was already opened is closed again.
func newApp(ctx context.Context, cfg *config.Config, gateway index.Gateway) (*app, error) {
	a := &app{cfg: cfg, gateway: gateway}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"stores", a.openStores},
		{"queue", a.openQueue},
		{"sync", a.buildSync},
		{"http", a.buildHTTP},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("init %s: %w", step.name, err)
		}
	}
	return a, nil
}

// openStores opens the primary store and the SQL database behind the
// metadata and checkpoint stores.
func (a *app) openStores(ctx context.Context) error {
	ps, err := primary.Open(a.cfg.Primary)
	if err != nil {
		return fmt.Errorf("open primary store: %w", err)
	}
	a.primary = ps

	db, err := database.Open(ctx, a.cfg.Metadata)
	if err != nil {
		return fmt.Errorf("open metadata database: %w", err)
	}
	a.db = db

	a.metadata = metadata.NewSQLStore(db)
	if err := a.metadata.CreateTable(ctx); err != nil {
		return err
	}
	a.checkpoints = checkpoint.NewSQLStore(db, "")
	return a.checkpoints.CreateTable(ctx)
}

// openQueue starts the transport and puts the outbox in front of its
// publisher.
func (a *app) openQueue(ctx context.Context) error {
	t, err := queue.Open(ctx, a.cfg.Queue, logging.NewWatermillAdapter())
	if err != nil {
		return fmt.Errorf("open queue transport: %w", err)
	}
	a.transport = t

	if !a.cfg.WAL.Enabled {
		logging.Warn().Msg("Outbox disabled (WAL_ENABLED=false). Tasks published while the broker is down are lost until the recovery sweep")
		a.outbox = wal.NewOutbox(nil, t.Publisher)
		return nil
	}

	w, err := wal.Open(&a.cfg.WAL)
	if err != nil {
		return err
	}
	a.wal = w
	a.outbox = wal.NewOutbox(w, t.Publisher)
	a.retryLoop = wal.NewRetryLoop(w, a.outbox)
	a.compactor = wal.NewCompactor(w)
	return nil
}

// buildSync wires one reconciliation engine into the synchronizer, the queue
// consumer and the tailer.
func (a *app) buildSync(context.Context) error {
	engine := reconcile.NewEngine(a.gateway, a.metadata, a.cfg.Retry)

	retrier := retry.NewRetrier(a.cfg.Retry, scheduler.NewTimerScheduler("requeue"), "requeue")
	a.requeuer = synchronizer.NewRequeuer(retrier, a.outbox, a.cfg.Synchronizer.RetryTopic)
	a.sync = synchronizer.New(a.cfg.Synchronizer, a.primary, a.metadata, engine, a.outbox, a.requeuer)

	dedup := cache.NewLRU(a.cfg.Queue.DedupCapacity, a.cfg.Queue.DedupTTL)
	a.consumer = synchronizer.NewConsumer(engine, a.metadata, a.requeuer, dedup)

	if a.cfg.Tailer.Enabled {
		a.tailer = tailer.New(a.cfg.Tailer, a.primary, a.metadata, a.checkpoints, engine, a.cfg.Retry)
	} else {
		logging.Info().Msg("Change-capture tailer disabled (TAILER_ENABLED=false)")
	}
	return nil
}

func (a *app) buildHTTP(context.Context) error {
	deps := api.Deps{
		Sync:            a.sync,
		Metadata:        a.metadata,
		Checkpoints:     a.checkpoints,
		Checks:          a.healthChecks(),
		DefaultApproach: models.Approach(a.cfg.Server.DefaultApproach),
		MaxBodyBytes:    a.cfg.Server.MaxBodyBytes,
	}
	if a.tailer != nil {
		deps.Tailer = a.tailer
	}

	a.handler = api.NewRouter(api.NewHandler(deps, uuid.NewString), a.cfg.API)
	a.server = &http.Server{
		Addr:              net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
		Handler:           a.handler,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
		IdleTimeout:       a.cfg.Server.IdleTimeout,
	}
	return nil
}

// healthChecks lists the components /api/v1/health reports.
func (a *app) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"primary": func(ctx context.Context) bool {
			_, err := a.primary.Head(ctx)
			return err == nil
		},
		"metadata": func(ctx context.Context) bool {
			return a.db.PingContext(ctx) == nil
		},
		"queue": a.transport.Healthy,
		"consumer": func(context.Context) bool {
			r := a.router.Load()
			return r != nil && r.IsRunning()
		},
	}
	if hc, ok := a.gateway.(interface{ Healthy(context.Context) bool }); ok {
		checks["index"] = hc.Healthy
	}
	return checks
}

// newRouter builds a consumer router. RouterService calls it on every
// (re)start because a Watermill router cannot be run twice.
func (a *app) newRouter() (services.Router, error) {
	qcfg := a.transport.Config()
	r, err := queue.NewRouter(&qcfg, a.transport.Publisher.WatermillPublisher(), logging.NewWatermillAdapter())
	if err != nil {
		return nil, err
	}
	a.consumer.Register(r, a.transport.Subscriber, a.cfg.Synchronizer.TasksTopic, a.cfg.Synchronizer.RetryTopic)
	a.router.Store(r)
	return r, nil
}

// recoverLost runs once the consumer is subscribed, so re-enqueued tasks
// have somewhere to go.
func (a *app) recoverLost(ctx context.Context) error {
	n, err := a.sync.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	logging.Info().Int("requeued", n).Msg("Recovery sweep finished")
	return nil
}

// buildTree adds every long-running component to a new supervisor tree.
func (a *app) buildTree() (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), a.cfg.Supervisor)
	if err != nil {
		return nil, err
	}

	tree.AddDataService(services.NewTransportService(a.transport, 0))
	if a.retryLoop != nil {
		tree.AddDataService(services.NewWALRetryLoopService(a.retryLoop))
		tree.AddDataService(services.NewWALCompactorService(a.compactor))
		logging.Info().Msg("Outbox retry loop and compactor added to supervisor tree")
	}

	tree.AddSyncService(services.NewRouterService(a.newRouter, a.recoverLost))
	if a.tailer != nil {
		tree.AddSyncService(a.tailer)
		logging.Info().Msg("Change-capture tailer added to supervisor tree")
	}

	tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", a.server.Addr).Msg("HTTP server service added")
	return tree, nil
}

// close releases resources in reverse open order. It must only run after
// the supervisor tree has stopped.
func (a *app) close(ctx context.Context) {
	if a.requeuer != nil {
		a.requeuer.Stop()
	}
	if a.transport != nil {
		if err := a.transport.Close(ctx); err != nil {
			logging.Error().Err(err).Msg("Error closing queue transport")
		}
	}
	if a.wal != nil {
		if err := a.wal.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing outbox")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing metadata database")
		}
	}
	if a.primary != nil {
		if err := a.primary.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing primary store")
		}
	}
}
