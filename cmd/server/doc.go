// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package main is the entry point for the indexsync server.

The server owns the primary store, accepts entity mutations over HTTP and
keeps a search index in sync with them using the approach chosen per
request: direct, direct_versioned, queue, queue_versioned, hybrid, or cdc.

# Application Architecture

Long-running work runs under a Suture v4 supervisor tree:

	RootSupervisor ("indexsync")
	├── DataSupervisor ("data-layer")
	│   ├── Queue transport health watcher
	│   ├── Outbox retry loop (wal.enabled)
	│   └── Outbox compactor (wal.enabled)
	├── SyncSupervisor ("sync-layer")
	│   ├── Queue consumer router (runs the recovery sweep once subscribed)
	│   └── Change-capture tailer (tailer.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Resources that services share are opened before the tree starts and closed
after it stops:

 1. Configuration: koanf v2 (defaults, config file, environment)
 2. Primary store: BadgerDB with its commit log
 3. Metadata and checkpoint stores: DuckDB (default) or Postgres
 4. Search index gateway: Elasticsearch-compatible HTTP client
 5. Queue transport: embedded or external NATS JetStream, or in-process
 6. Outbox: BadgerDB WAL in front of the queue publisher

# Configuration

See internal/config. The most common environment variables:

	INDEX_URL         search cluster URL
	INDEX_NAME        target index
	PRIMARY_PATH      BadgerDB directory of the primary store
	METADATA_DRIVER   duckdb or postgres
	METADATA_DSN      DuckDB file or Postgres URL
	QUEUE_MODE        nats or memory
	NATS_EMBEDDED     start an in-process NATS server
	WAL_ENABLED       route queue publishes through the outbox
	TAILER_ENABLED    run the change-capture tailer
	DEFAULT_APPROACH  approach used when a request does not pass one
	HTTP_PORT         listen port

Any key can be set with the INDEXSYNC_ prefix and double underscores for
nesting, for example INDEXSYNC_QUEUE__DEDUP_TTL=10m.

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains, the router
finishes in-flight messages, the tailer persists its low watermark, and
pending backoff timers are dropped; queued lineages they belonged to are
picked up by the recovery sweep on the next start.
*/
package main
