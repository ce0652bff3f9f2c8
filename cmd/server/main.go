// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/indexsync/internal/config"
	"github.com/tomtom215/indexsync/internal/index"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging)

	logging.Info().
		Str("index_url", cfg.Index.URL).
		Str("index", cfg.Index.Name).
		Str("metadata_driver", cfg.Metadata.Driver).
		Str("queue_mode", cfg.Queue.Mode).
		Bool("wal_enabled", cfg.WAL.Enabled).
		Bool("tailer_enabled", cfg.Tailer.Enabled).
		Str("default_approach", cfg.Server.DefaultApproach).
		Msg("Starting indexsync with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := index.NewElasticGateway(cfg.Index)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create index gateway")
	}

	a, err := newApp(ctx, cfg, gateway)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	tree, err := a.buildTree()
	if err != nil {
		a.close(ctx)
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	runTree(ctx, tree)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	a.close(closeCtx)
	closeCancel()

	logging.Info().Msg("Application stopped gracefully")
}

// runTree serves the tree until ctx is canceled or the root supervisor
// gives up, then reports services that missed the shutdown timeout.
func runTree(ctx context.Context, tree *supervisor.SupervisorTree) {
	errCh := tree.ServeBackground(ctx)

	var err error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		err = <-errCh
	case err = <-errCh:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
}
