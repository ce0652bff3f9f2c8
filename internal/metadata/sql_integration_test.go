// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

//go:build integration

package metadata

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/testinfra"
)

// Usage:
//   go test -tags integration ./internal/metadata/...

var postgres struct {
	once      sync.Once
	container *testinfra.PostgresContainer
	err       error
}

func init() {
	extraStores["postgres"] = openPostgresStore
}

func TestMain(m *testing.M) {
	code := m.Run()
	if postgres.container != nil {
		_ = postgres.container.Terminate(context.Background())
	}
	os.Exit(code)
}

// openPostgresStore starts one shared Postgres container on first use and
// returns a store over an emptied sync_metadata table.
func openPostgresStore(t *testing.T) Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	postgres.once.Do(func() {
		startCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		postgres.container, postgres.err = testinfra.NewPostgresContainer(startCtx)
	})
	if postgres.err != nil {
		t.Fatalf("Failed to start Postgres container: %v", postgres.err)
	}

	db, err := database.Open(ctx, database.Config{Driver: database.DriverPostgres, DSN: postgres.container.DSN})
	if err != nil {
		t.Fatalf("Open postgres failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db)
	if err := s.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM sync_metadata`); err != nil {
		t.Fatalf("truncate sync_metadata: %v", err)
	}
	return s
}

func TestSQLStore_PostgresSequencer(t *testing.T) {
	s := openPostgresStore(t)
	ctx := context.Background()
	seq := NewSequencer(s)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := seq.Allocate(ctx, "e1", models.ApproachQueueVersioned, func(v int64) error {
				md := models.NewSyncMetadata(fmt.Sprintf("pg-%d", i), "e1", models.ApproachQueueVersioned, models.OperationUpdate, time.Now())
				md.OperationSeq = v
				return s.Save(ctx, md)
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Allocate: %v", err)
		}
	}

	latest, err := s.LatestOperationSeq(ctx, "e1", models.ApproachQueueVersioned)
	if err != nil || latest != n {
		t.Errorf("LatestOperationSeq = %d, %v, want %d", latest, err, n)
	}
}
