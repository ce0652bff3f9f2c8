// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver

	"github.com/tomtom215/indexsync/internal/logging"
)

// Supported drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Config selects and tunes the SQL database behind the metadata and
// checkpoint stores.
type Config struct {
	// Driver is "duckdb" or "postgres".
	Driver string `koanf:"driver"`

	// DSN is a DuckDB file path (empty for in-memory) or a Postgres URL.
	DSN string `koanf:"dsn"`

	MaxOpenConns int `koanf:"max_open_conns"`
}

// DB wraps *sql.DB with the driver it was opened with.
type DB struct {
	*sql.DB
	driver string
}

// Driver returns the driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Open opens and pings the configured database.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = DriverDuckDB
	}
	if driver != DriverDuckDB && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if driver == DriverPostgres && cfg.DSN == "" {
		return nil, fmt.Errorf("postgres requires a dsn")
	}

	conn, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = runtime.NumCPU()
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	logging.Info().Str("driver", driver).Bool("in_memory", driver == DriverDuckDB && cfg.DSN == "").Msg("Database opened")
	return &DB{DB: conn, driver: driver}, nil
}

// OpenInMemory opens an in-memory DuckDB database. Intended for tests.
func OpenInMemory(ctx context.Context) (*DB, error) {
	return Open(ctx, Config{Driver: DriverDuckDB, MaxOpenConns: 1})
}

// ExecSchema runs statements one at a time (DuckDB rejects multi-statement
// exec) and flushes the DuckDB WAL afterwards.
func (db *DB) ExecSchema(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	// WAL replay of CREATE TABLE with TIMESTAMPTZ defaults has failed on older
	// DuckDB releases; a checkpoint avoids replaying it.
	if db.driver == DriverDuckDB {
		if _, err := db.ExecContext(ctx, "CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint after schema creation")
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a primary key or unique constraint
// violation on either driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "PRIMARY KEY or UNIQUE constraint") ||
		strings.Contains(msg, "unique constraint")
}

// IsTransactionConflict checks if an error is a DuckDB transaction conflict
func IsTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "could not serialize access")
}

// RetryOnConflict runs fn, retrying transaction conflicts with a short
// exponential delay.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	delay := 5 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsTransactionConflict(err) {
			return err
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
