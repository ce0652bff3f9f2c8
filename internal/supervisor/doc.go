// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package supervisor runs the long-lived parts of indexsync under a suture v4
supervision tree.

# Layout

	"indexsync"
	├── "data-layer"
	│   ├── wal-retry-loop      (outbox re-publisher, when the WAL is enabled)
	│   ├── wal-compactor
	│   └── queue-transport     (broker health watch)
	├── "sync-layer"
	│   ├── queue-consumer      (Watermill router, recovery sweep on start)
	│   └── cdc-tailer          (when the tailer is enabled)
	└── "api-layer"
	    └── http-server

Each layer counts failures on its own. A tailer that keeps failing on an
unreachable metadata store backs off inside the sync layer while the API
keeps serving.

# Services

Anything with Serve(ctx) error is a suture.Service. Serve returns ctx.Err()
on shutdown and any other error to ask for a restart. The wrappers in the
services subpackage adapt components with other lifecycles:

  - HTTPServerService: ListenAndServe / Shutdown
  - StartStopService: Start(ctx) / Stop() (WAL retry loop and compactor)
  - RouterService: a blocking Run(ctx) plus a hook run once subscribed
  - TransportService: periodic Healthy(ctx) checks

The tailer implements Serve itself.

# Configuration

TreeConfig maps to the "supervisor" config section:

	supervisor:
	  failure_threshold: 5
	  failure_decay: 30
	  failure_backoff: 15s
	  shutdown_timeout: 10s

Zero values take suture's defaults. Events (start, stop, restart, backoff)
are logged through sutureslog into the application's slog logger, which
routes to zerolog.
*/
package supervisor
