// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/models"
)

// extraStores are backends registered by tagged test files. Each call returns
// an empty store.
var extraStores = map[string]func(t *testing.T) Store{}

// forEachStore runs fn against the in-memory store, a DuckDB-backed store and
// any registered extra backend.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})

	t.Run("duckdb", func(t *testing.T) {
		ctx := context.Background()
		db, err := database.OpenInMemory(ctx)
		if err != nil {
			t.Fatalf("OpenInMemory failed: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		s := NewSQLStore(db)
		if err := s.CreateTable(ctx); err != nil {
			t.Fatalf("CreateTable failed: %v", err)
		}
		fn(t, s)
	})

	for name, open := range extraStores {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func newRecord(id, entityID string, approach models.Approach, op models.OperationKind, at time.Time) *models.SyncMetadata {
	md := models.NewSyncMetadata(id, entityID, approach, op, at)
	md.UpdatedAt = at
	return md
}

func TestStore_SaveGetUpdate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if err := s.Save(ctx, nil); err != nil {
			t.Fatalf("Save(nil) must be a no-op, got %v", err)
		}

		md := newRecord("md-1", "e1", models.ApproachQueue, models.OperationCreate, now)
		md.OperationSeq = 1
		if err := s.Save(ctx, md); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := s.Save(ctx, md); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}

		got, err := s.GetByID(ctx, "md-1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.SecondaryStatus != models.SecondaryPending || got.PrimaryStatus != models.PrimaryStatusSuccess {
			t.Errorf("Unexpected initial state: %+v", got)
		}
		if !got.PrimaryWriteAt.Equal(now) {
			t.Errorf("Expected primary write %v, got %v", now, got.PrimaryWriteAt)
		}

		failedAt := now.Add(time.Second)
		got.SecondaryStatus = models.SecondaryFailure
		got.AttemptCount = 1
		got.FailureReason = "ReadTimeout"
		got.FirstFailureAt = &failedAt
		got.LastAttemptAt = &failedAt
		got.UpdatedAt = failedAt
		if err := s.Update(ctx, "md-1", got); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		again, err := s.GetByID(ctx, "md-1")
		if err != nil {
			t.Fatal(err)
		}
		if again.AttemptCount != 1 || again.FailureReason != "ReadTimeout" {
			t.Errorf("Update not persisted: %+v", again)
		}
		if again.FirstFailureAt == nil || !again.FirstFailureAt.Equal(failedAt) {
			t.Errorf("Expected first failure %v, got %v", failedAt, again.FirstFailureAt)
		}
		if again.SecondaryWriteAt != nil {
			t.Error("Expected nil secondary write time")
		}

		if err := s.Update(ctx, "missing", got); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_LatestOperationSeq(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		seq, err := s.LatestOperationSeq(ctx, "e1", models.ApproachDirect)
		if err != nil || seq != 0 {
			t.Fatalf("Expected 0 for no records, got %d, %v", seq, err)
		}

		for i, a := range []models.Approach{models.ApproachDirect, models.ApproachDirect, models.ApproachQueue} {
			md := newRecord("md-"+string(rune('a'+i)), "e1", a, models.OperationUpdate, now)
			md.OperationSeq = int64(i + 1)
			if err := s.Save(ctx, md); err != nil {
				t.Fatal(err)
			}
		}

		seq, err = s.LatestOperationSeq(ctx, "e1", models.ApproachDirect)
		if err != nil || seq != 2 {
			t.Errorf("Expected 2, got %d, %v", seq, err)
		}
		seq, err = s.LatestOperationSeq(ctx, "e1", models.ApproachQueue)
		if err != nil || seq != 3 {
			t.Errorf("Expected 3, got %d, %v", seq, err)
		}
	})
}

func TestStore_List(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		records := []struct {
			id       string
			approach models.Approach
			status   models.SecondaryStatus
			terminal bool
			at       time.Time
		}{
			{"a", models.ApproachQueue, models.SecondaryFailure, true, base},
			{"b", models.ApproachQueue, models.SecondaryFailure, false, base.Add(time.Minute)},
			{"c", models.ApproachDirect, models.SecondarySuccess, false, base.Add(2 * time.Minute)},
			{"d", models.ApproachQueueVersioned, models.SecondaryPending, false, base.Add(3 * time.Minute)},
		}
		for _, r := range records {
			md := newRecord(r.id, "e-"+r.id, r.approach, models.OperationCreate, r.at)
			md.SecondaryStatus = r.status
			md.Terminal = r.terminal
			if err := s.Save(ctx, md); err != nil {
				t.Fatal(err)
			}
		}

		no := false
		tests := []struct {
			name   string
			filter Filter
			want   []string
		}{
			{"all", Filter{}, []string{"a", "b", "c", "d"}},
			{"failures", Filter{Status: models.SecondaryFailure}, []string{"a", "b"}},
			{"non-terminal failures", Filter{Status: models.SecondaryFailure, Terminal: &no}, []string{"b"}},
			{"queue approaches", Filter{Approaches: []models.Approach{models.ApproachQueue, models.ApproachQueueVersioned}}, []string{"a", "b", "d"}},
			{"updated before", Filter{UpdatedBefore: base.Add(90 * time.Second)}, []string{"a", "b"}},
			{"entity", Filter{EntityID: "e-c"}, []string{"c"}},
			{"limit", Filter{Limit: 2}, []string{"a", "b"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.List(ctx, tt.filter)
				if err != nil {
					t.Fatalf("List failed: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("Expected %d records, got %d", len(tt.want), len(got))
				}
				for i, md := range got {
					if md.ID != tt.want[i] {
						t.Errorf("record %d: expected %s, got %s", i, tt.want[i], md.ID)
					}
				}
			})
		}
	})
}

func TestStore_InvalidRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		err := s.Save(context.Background(), &models.SyncMetadata{ID: "x"})
		if !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("Expected ErrInvalidRecord, got %v", err)
		}
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	md := newRecord("md-1", "e1", models.ApproachQueue, models.OperationCreate, time.Now())
	if err := s.Save(ctx, md); err != nil {
		t.Fatal(err)
	}

	md.AttemptCount = 99
	got, _ := s.GetByID(ctx, "md-1")
	if got.AttemptCount != 0 {
		t.Error("Stored record must not alias the caller's value")
	}
	got.AttemptCount = 42
	again, _ := s.GetByID(ctx, "md-1")
	if again.AttemptCount != 0 {
		t.Error("Returned record must not alias stored state")
	}

	if len(s.History("md-1")) != 1 {
		t.Errorf("Expected one history entry, got %d", len(s.History("md-1")))
	}
}
