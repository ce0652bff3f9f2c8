// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package config loads the indexsync configuration.

Configuration is layered with koanf, later layers overriding earlier ones:

 1. Defaults from defaultConfig (structs provider)
 2. An optional YAML file: $CONFIG_PATH, then config.yaml, config.yml,
    /etc/indexsync/config.yaml
 3. Environment variables listed in envMappings

# Sections

  - logging: level, format, caller
  - primary: BadgerDB path for entities and the change log
  - index: search index URL, index name, timeouts, rate limit, circuit breaker
  - metadata: SQL driver (duckdb or postgres) and DSN for sync metadata and
    the tailer checkpoint
  - queue: transport mode (nats or memory), NATS URL or embedded server,
    stream, topics, consumer settings
  - retry: max_retries, max_backoff and the backoff unit
  - tailer: change-capture tailer switch, poll interval, batch size, fencing
  - wal: producer outbox switch and BadgerDB settings
  - synchronizer: recovery sweep settings
  - server: HTTP listener and the default approach
  - api: CORS allow-list and per-client rate limit
  - supervisor: suture failure thresholds

The index name and queue topics are owned by the index and queue sections;
Load copies them into the synchronizer and tailer sections.

# Environment Variables

A few common settings have short names:

	LOG_LEVEL, LOG_FORMAT
	PRIMARY_PATH
	INDEX_URL, INDEX_NAME, INDEX_USERNAME, INDEX_PASSWORD
	METADATA_DRIVER, METADATA_DSN
	QUEUE_MODE, NATS_URL, NATS_EMBEDDED, NATS_STORE_DIR
	RETRY_MAX_RETRIES, RETRY_MAX_BACKOFF, RETRY_UNIT
	TAILER_ENABLED, TAILER_FENCED
	WAL_ENABLED, WAL_PATH
	HTTP_HOST, HTTP_PORT, DEFAULT_APPROACH
	CORS_ORIGINS, RATE_LIMIT_REQUESTS

Every other key can be set as INDEXSYNC_<SECTION>__<KEY>, for example
INDEXSYNC_QUEUE__DEDUP_TTL=10m sets queue.dedup_ttl.
*/
package config
