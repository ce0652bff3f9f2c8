// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/models"
)

func TestStores_LoadSave(t *testing.T) {
	ctx := context.Background()

	db, err := database.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer db.Close()

	sqlStore := NewSQLStore(db, "")
	if err := sqlStore.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"duckdb": sqlStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Expected ErrNotFound before first save, got %v", err)
			}

			for _, token := range []string{"1", "7", "12"} {
				if err := s.Save(ctx, token); err != nil {
					t.Fatalf("Save(%s) failed: %v", token, err)
				}
			}

			cp, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cp.Token != "12" {
				t.Errorf("Expected token 12, got %q", cp.Token)
			}
			if cp.ID != models.DefaultCheckpointID {
				t.Errorf("Expected id %q, got %q", models.DefaultCheckpointID, cp.ID)
			}
			if cp.UpdatedAt.IsZero() {
				t.Error("Expected UpdatedAt to be set")
			}
		})
	}
}

func TestSQLStore_SeparateNames(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenInMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	a := NewSQLStore(db, "entities")
	b := NewSQLStore(db, "orders")
	if err := a.CreateTable(ctx); err != nil {
		t.Fatal(err)
	}

	if err := a.Save(ctx, "5"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected separate checkpoint rows, got %v", err)
	}
}
