// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package database opens the SQL database that backs the metadata and
// checkpoint stores. DuckDB is the embedded default; Postgres is selected
// with driver "postgres" and a connection URL.
package database
