// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package reconcile

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/indexsync/internal/index"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/retry"
)

const testIndex = "entities"

type fixture struct {
	idx    *index.MemoryIndex
	store  *metadata.MemoryStore
	engine *Engine
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		idx:   index.NewMemoryIndex(),
		store: metadata.NewMemoryStore(),
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(f.idx, f.store, retry.DefaultPolicy())
	f.engine.SetClock(func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	})
	return f
}

func (f *fixture) task(t *testing.T, op models.OperationKind, approach models.Approach, e *models.Entity) models.SyncTask {
	t.Helper()
	md := models.NewSyncMetadata("md-"+e.ID+"-"+string(op), e.ID, approach, op, f.clock)
	md.EntityVersion = e.Version
	require.NoError(t, f.store.Save(context.Background(), md))
	return models.SyncTask{
		Operation:  op,
		Index:      testIndex,
		DocumentID: e.ID,
		Document:   e,
		Version:    e.Version,
		Metadata:   *md,
	}
}

func alwaysUnavailable(index.Op, string, string) error {
	return index.NewStatusError(http.StatusServiceUnavailable, "")
}

func TestApply_QueueCreateSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, models.OperationCreate, models.ApproachQueue, &models.Entity{ID: "e1", Name: "Alice", Version: 1})

	d := f.engine.Apply(ctx, task, CapabilityFor(models.ApproachQueue))

	assert.Equal(t, OutcomeSuccess, d.Outcome)
	assert.False(t, d.Retry)
	require.NoError(t, d.PersistErr)

	md, err := f.store.GetByID(ctx, task.Metadata.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SecondarySuccess, md.SecondaryStatus)
	assert.Equal(t, 1, md.AttemptCount)
	assert.Empty(t, md.FailureReason)
	assert.NotNil(t, md.SecondaryWriteAt)
	assert.Nil(t, md.FirstFailureAt)

	doc, _, ok := f.idx.Document(testIndex, "e1")
	require.True(t, ok)
	assert.Equal(t, "Alice", doc.Name)
}

func TestApply_TransientFailuresExhaustAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.idx.SetFault(alwaysUnavailable)
	task := f.task(t, models.OperationCreate, models.ApproachQueue, &models.Entity{ID: "e1", Name: "Alice", Version: 1})
	capa := CapabilityFor(models.ApproachQueue)

	requeues := 0
	var delays []time.Duration
	d := f.engine.Apply(ctx, task, capa)
	for d.Retry {
		requeues++
		delays = append(delays, d.Delay)
		require.Equal(t, d.NextAttempt, d.Task.Metadata.AttemptCount)
		require.Less(t, requeues, 20, "requeue loop did not terminate")
		d = f.engine.Apply(ctx, d.Task, capa)
	}

	assert.Equal(t, 5, requeues)
	assert.Equal(t, OutcomeExhausted, d.Outcome)
	assert.True(t, d.Terminal())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}, delays)

	md, err := f.store.GetByID(ctx, task.Metadata.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SecondaryFailure, md.SecondaryStatus)
	assert.Equal(t, 6, md.AttemptCount)
	assert.True(t, md.Terminal)
	assert.Nil(t, md.NextRetryAt)
	assert.Equal(t, 6, f.idx.Calls(index.OpCreate))
}

func TestApply_FirstFailureAtNeverOverwritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.idx.SetFault(alwaysUnavailable)
	task := f.task(t, models.OperationUpdate, models.ApproachQueue, &models.Entity{ID: "e2", Name: "Bob", Version: 2})
	capa := CapabilityFor(models.ApproachQueue)

	d := f.engine.Apply(ctx, task, capa)
	require.True(t, d.Retry)
	first := *d.Metadata.FirstFailureAt

	for d.Retry {
		d = f.engine.Apply(ctx, d.Task, capa)
	}

	history := f.store.History(task.Metadata.ID)
	require.Len(t, history, 7)
	prev := 0
	for _, h := range history[1:] {
		require.NotNil(t, h.FirstFailureAt)
		assert.True(t, first.Equal(*h.FirstFailureAt))
		assert.GreaterOrEqual(t, h.AttemptCount, prev)
		prev = h.AttemptCount
	}
}

func TestApply_FencedStaleWriteIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	capa := CapabilityFor(models.ApproachQueueVersioned)

	newer := f.task(t, models.OperationUpdate, models.ApproachQueueVersioned, &models.Entity{ID: "e1", Name: "v3", Version: 3})
	d := f.engine.Apply(ctx, newer, capa)
	require.Equal(t, OutcomeSuccess, d.Outcome)

	stale := f.task(t, models.OperationCreate, models.ApproachQueueVersioned, &models.Entity{ID: "e1", Name: "v2", Version: 2})
	d = f.engine.Apply(ctx, stale, capa)

	assert.Equal(t, OutcomeStale, d.Outcome)
	assert.Equal(t, ReasonStale, d.Reason)
	assert.False(t, d.Retry)
	assert.True(t, d.Terminal())

	doc, version, ok := f.idx.Document(testIndex, "e1")
	require.True(t, ok)
	assert.Equal(t, "v3", doc.Name)
	assert.Equal(t, int64(3), version)
}

func TestApply_UnfencedConflictIsClientFailure(t *testing.T) {
	f := newFixture(t)
	f.idx.SetFault(func(index.Op, string, string) error { return index.Conflict("document already exists") })
	task := f.task(t, models.OperationCreate, models.ApproachQueue, &models.Entity{ID: "e1", Version: 1})

	d := f.engine.Apply(context.Background(), task, CapabilityFor(models.ApproachQueue))

	assert.Equal(t, OutcomeClientFailure, d.Outcome)
	assert.Equal(t, "document already exists", d.Reason)
	assert.True(t, d.Terminal())
}

func TestApply_ClientFailureKeepsCountingAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, models.OperationUpdate, models.ApproachQueue, &models.Entity{ID: "e1", Version: 2})
	task = task.WithAttempt(3)
	f.idx.SetFault(func(index.Op, string, string) error {
		return index.NewStatusError(http.StatusBadRequest, "mapper_parsing_exception")
	})

	d := f.engine.Apply(ctx, task, CapabilityFor(models.ApproachQueue))

	assert.Equal(t, OutcomeClientFailure, d.Outcome)
	assert.Equal(t, 4, d.Metadata.AttemptCount)
	assert.Equal(t, "mapper_parsing_exception", d.Metadata.FailureReason)
	assert.False(t, d.Retry)
}

func TestApply_DirectTransientFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.idx.SetFault(alwaysUnavailable)
	task := f.task(t, models.OperationCreate, models.ApproachDirect, &models.Entity{ID: "e1", Version: 1})

	d := f.engine.Apply(context.Background(), task, CapabilityFor(models.ApproachDirect))

	assert.Equal(t, OutcomeTransientFailure, d.Outcome)
	assert.False(t, d.Retry)
	assert.True(t, d.Terminal())
	assert.Equal(t, 1, d.Metadata.AttemptCount)
}

func TestApply_DeleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	capa := CapabilityFor(models.ApproachQueue)

	for _, id := range []string{"md-del-1", "md-del-2"} {
		md := models.NewSyncMetadata(id, "ghost", models.ApproachQueue, models.OperationDelete, f.clock)
		task := models.SyncTask{
			Operation:  models.OperationDelete,
			Index:      testIndex,
			DocumentID: "ghost",
			Version:    2,
			Metadata:   *md,
		}
		d := f.engine.Apply(ctx, task, capa)
		assert.Equal(t, OutcomeSuccess, d.Outcome, id)
	}
}

func TestApply_DeleteNotFoundCountsAsSuccess(t *testing.T) {
	f := newFixture(t)
	f.idx.SetFault(func(index.Op, string, string) error {
		return index.NewStatusError(http.StatusNotFound, "not_found")
	})
	task := f.task(t, models.OperationDelete, models.ApproachQueue, &models.Entity{ID: "e1", Version: 2})

	d := f.engine.Apply(context.Background(), task, CapabilityFor(models.ApproachQueue))

	assert.Equal(t, OutcomeSuccess, d.Outcome)
	assert.Equal(t, models.SecondarySuccess, d.Metadata.SecondaryStatus)
}

func TestApply_MissingDocumentIsClientFailure(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, models.OperationCreate, models.ApproachQueue, &models.Entity{ID: "e1", Version: 1})
	task.Document = nil

	d := f.engine.Apply(context.Background(), task, CapabilityFor(models.ApproachQueue))

	assert.Equal(t, OutcomeClientFailure, d.Outcome)
	assert.Equal(t, ReasonMissingDoc, d.Reason)
	assert.Equal(t, 0, f.idx.Calls(index.OpCreate))
}

func TestApply_SavesMetadataWhenMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	md := models.NewSyncMetadata("md-new", "e9", models.ApproachCDC, models.OperationCreate, f.clock)
	task := models.SyncTask{
		Operation:  models.OperationCreate,
		Index:      testIndex,
		DocumentID: "e9",
		Document:   &models.Entity{ID: "e9", Version: 1},
		Version:    1,
		Metadata:   *md,
	}

	d := f.engine.Apply(ctx, task, CapabilityFor(models.ApproachCDC))
	require.NoError(t, d.PersistErr)

	got, err := f.store.GetByID(ctx, "md-new")
	require.NoError(t, err)
	assert.Equal(t, models.SecondarySuccess, got.SecondaryStatus)
}

type failingStore struct {
	*metadata.MemoryStore
}

func (failingStore) Update(context.Context, string, *models.SyncMetadata) error {
	return errors.New("disk full")
}

func TestApply_PersistFailureDoesNotChangeDecision(t *testing.T) {
	f := newFixture(t)
	f.idx.SetFault(alwaysUnavailable)
	engine := NewEngine(f.idx, failingStore{f.store}, retry.DefaultPolicy())
	task := f.task(t, models.OperationCreate, models.ApproachQueue, &models.Entity{ID: "e1", Version: 1})

	d := engine.Apply(context.Background(), task, CapabilityFor(models.ApproachQueue))

	assert.Error(t, d.PersistErr)
	assert.Equal(t, OutcomeRetry, d.Outcome)
	assert.True(t, d.Retry)
}

func TestCapabilityFor(t *testing.T) {
	tests := []struct {
		approach models.Approach
		want     Capability
	}{
		{models.ApproachDirect, Capability{Inline: true}},
		{models.ApproachDirectVersioned, Capability{Inline: true, Fenced: true}},
		{models.ApproachQueue, Capability{Requeue: true}},
		{models.ApproachQueueVersioned, Capability{Fenced: true, Requeue: true}},
		{models.ApproachHybrid, Capability{Inline: true, Requeue: true}},
		{models.ApproachCDC, Capability{Requeue: true}},
		{models.Approach("bogus"), Capability{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.approach), func(t *testing.T) {
			assert.Equal(t, tt.want, CapabilityFor(tt.approach))
		})
	}
}
