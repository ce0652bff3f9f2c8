// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package testinfra starts the external services indexsync talks to as
// containers for integration tests.
//
// Everything except this file is built only with the integration tag, so a
// plain go test never needs Docker:
//
//	go test -tags integration ./internal/index/... ./internal/metadata/... ./internal/checkpoint/...
//
// # Elasticsearch
//
// ElasticsearchContainer runs a single-node cluster with security disabled.
// The index gateway tests use it to check what the fakes cannot: the 409 a
// stale version_type=external write gets, the 404 on deleting a missing
// document, and the doc_as_upsert body of partial updates.
//
//	es, err := testinfra.NewElasticsearchContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, es.Container)
//
//	cfg := index.DefaultConfig()
//	cfg.URL = es.URL
//
// # Postgres
//
// PostgresContainer backs the lib/pq path of the metadata and checkpoint
// stores. DSN is ready for database.Open with the postgres driver.
//
// # CI Considerations
//
// Tests are skipped when Docker is unavailable. The first run pulls the
// images; later runs use the local cache.
package testinfra
