// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package synchronizer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/indexsync/internal/cache"
	"github.com/tomtom215/indexsync/internal/index"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/queue"
	"github.com/tomtom215/indexsync/internal/reconcile"
	"github.com/tomtom215/indexsync/internal/retry"
	"github.com/tomtom215/indexsync/internal/scheduler"
)

type published struct {
	topic   string
	key     string
	payload []byte
}

// fakeOutbox records publishes instead of sending them.
type fakeOutbox struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (o *fakeOutbox) Publish(ctx context.Context, topic, key string, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, published{topic: topic, key: key, payload: payload})
	return nil
}

// take removes every recorded message.
func (o *fakeOutbox) take(t *testing.T) []published {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.msgs
	o.msgs = nil
	return out
}

type harness struct {
	primary  *primary.BadgerStore
	idx      *index.MemoryIndex
	store    *metadata.MemoryStore
	outbox   *fakeOutbox
	sched    *scheduler.Manual
	sync     *Synchronizer
	consumer *Consumer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ps, err := primary.Open(primary.Config{InMemory: true})
	if err != nil {
		t.Fatalf("primary.Open: %v", err)
	}
	t.Cleanup(func() { _ = ps.Close() })

	h := &harness{
		primary: ps,
		idx:     index.NewMemoryIndex(),
		store:   metadata.NewMemoryStore(),
		outbox:  &fakeOutbox{},
		sched:   scheduler.NewManual(),
	}
	engine := reconcile.NewEngine(h.idx, h.store, retry.DefaultPolicy())
	requeuer := NewRequeuer(retry.NewRetrier(retry.DefaultPolicy(), h.sched, "test"), h.outbox, queue.DefaultRetryTopic)

	cfg := DefaultConfig()
	cfg.RecoveryGrace = 0
	h.sync = New(cfg, ps, h.store, engine, h.outbox, requeuer)
	h.consumer = NewConsumer(engine, h.store, requeuer, cache.NewLRU(100, time.Minute))
	return h
}

func (h *harness) failIndex(status int) {
	h.idx.SetFault(func(op index.Op, _, _ string) error {
		return index.NewStatusError(status, http.StatusText(status))
	})
}

// drain delivers every published message to the consumer, firing requeue
// timers until nothing is left. It returns the number of deliveries.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	deliveries := 0
	for i := 0; i < 100; i++ {
		msgs := h.outbox.take(t)
		if len(msgs) == 0 && !h.sched.RunNext() {
			return deliveries
		}
		for _, m := range msgs {
			task, err := queue.DecodeTask(m.payload)
			if err != nil {
				t.Fatalf("DecodeTask: %v", err)
			}
			if _, err := h.consumer.Process(context.Background(), *task); err != nil {
				t.Fatalf("Process: %v", err)
			}
			deliveries++
		}
	}
	t.Fatal("queue did not drain")
	return deliveries
}

func (h *harness) metadata(t *testing.T, id string) *models.SyncMetadata {
	t.Helper()
	md, err := h.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return md
}

func TestDirect_Success(t *testing.T) {
	h := newHarness(t)
	res, err := h.sync.Create(context.Background(), models.ApproachDirect, &models.Entity{ID: "e1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Decision == nil || res.Decision.Outcome != reconcile.OutcomeSuccess {
		t.Fatalf("decision = %+v", res.Decision)
	}
	md := h.metadata(t, res.Metadata.ID)
	if md.SecondaryStatus != models.SecondarySuccess || md.AttemptCount != 1 || md.OperationSeq != 1 {
		t.Errorf("metadata = %+v", md)
	}
	if _, _, ok := h.idx.Document("entities", "e1"); !ok {
		t.Error("document not indexed")
	}
	if e, _ := h.primary.Get(context.Background(), "e1"); e.SyncMetadataID != md.ID {
		t.Errorf("back-reference = %q, want %q", e.SyncMetadataID, md.ID)
	}
}

func TestDirect_IndexFailureStillSucceedsForCaller(t *testing.T) {
	h := newHarness(t)
	h.failIndex(http.StatusServiceUnavailable)

	res, err := h.sync.Create(context.Background(), models.ApproachDirect, &models.Entity{ID: "e1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create returned %v; the primary write succeeded", err)
	}
	md := h.metadata(t, res.Metadata.ID)
	if md.SecondaryStatus != models.SecondaryFailure || !md.Terminal || md.FailureReason == "" {
		t.Errorf("metadata = %+v", md)
	}
	if h.sched.Pending() != 0 || len(h.outbox.take(t)) != 0 {
		t.Error("direct approach must not retry")
	}
}

func TestPrimaryFailurePropagates(t *testing.T) {
	h := newHarness(t)
	_, err := h.sync.Update(context.Background(), models.ApproachQueue, &models.Entity{ID: "missing", Name: "x"})
	if !errors.Is(err, ErrPrimaryWrite) || !errors.Is(err, primary.ErrNotFound) {
		t.Errorf("error = %v, want ErrPrimaryWrite wrapping primary.ErrNotFound", err)
	}
	if mds, _ := h.store.List(context.Background(), metadata.Filter{}); len(mds) != 0 {
		t.Errorf("no metadata expected after a failed primary write, got %d", len(mds))
	}
}

func TestQueue_CreateScenario(t *testing.T) {
	h := newHarness(t)
	res, err := h.sync.Create(context.Background(), models.ApproachQueue, &models.Entity{ID: "e1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Entity.Version != 1 {
		t.Errorf("version = %d, want 1", res.Entity.Version)
	}
	if md := h.metadata(t, res.Metadata.ID); md.SecondaryStatus != models.SecondaryPending {
		t.Errorf("status before consume = %s", md.SecondaryStatus)
	}

	h.outbox.mu.Lock()
	first := h.outbox.msgs[0]
	h.outbox.mu.Unlock()
	if first.topic != queue.DefaultTasksTopic || first.key != res.Metadata.ID+":0" {
		t.Errorf("published %s/%s", first.topic, first.key)
	}

	if n := h.drain(t); n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
	md := h.metadata(t, res.Metadata.ID)
	if md.SecondaryStatus != models.SecondarySuccess || md.AttemptCount != 1 || md.FailureReason != "" {
		t.Errorf("metadata = %+v", md)
	}
}

func TestQueue_AlwaysUnavailableExhaustsAfterFiveRequeues(t *testing.T) {
	h := newHarness(t)
	h.failIndex(http.StatusServiceUnavailable)

	res, err := h.sync.Create(context.Background(), models.ApproachQueue, &models.Entity{ID: "e1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n := h.drain(t); n != 6 {
		t.Errorf("deliveries = %d, want 6", n)
	}

	md := h.metadata(t, res.Metadata.ID)
	if md.SecondaryStatus != models.SecondaryFailure || md.AttemptCount != 6 || !md.Terminal {
		t.Errorf("metadata = %+v", md)
	}
	delays := h.sched.Delays()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("requeues = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestQueue_RedeliveryIsIgnored(t *testing.T) {
	h := newHarness(t)
	if _, err := h.sync.Create(context.Background(), models.ApproachQueue, &models.Entity{ID: "e1", Name: "Alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	msgs := h.outbox.take(t)
	task, _ := queue.DecodeTask(msgs[0].payload)

	d1, _ := h.consumer.Process(context.Background(), *task)
	d2, _ := h.consumer.Process(context.Background(), *task)
	if d1.Outcome != reconcile.OutcomeSuccess || d2.Outcome != reconcile.OutcomeDuplicate {
		t.Errorf("outcomes = %s, %s", d1.Outcome, d2.Outcome)
	}
	if n := h.idx.Calls(index.OpCreate); n != 1 {
		t.Errorf("index creates = %d, want 1", n)
	}
	if md := h.metadata(t, task.Metadata.ID); md.AttemptCount != 1 {
		t.Errorf("attempt = %d, want 1", md.AttemptCount)
	}
}

func TestQueueVersioned_StaleUpdateRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.sync.Create(ctx, models.ApproachQueueVersioned, &models.Entity{ID: "e1", Name: "v1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.sync.Update(ctx, models.ApproachQueueVersioned, &models.Entity{ID: "e1", Name: "v2"}); err != nil {
		t.Fatalf("Update v2: %v", err)
	}
	if _, err := h.sync.Update(ctx, models.ApproachQueueVersioned, &models.Entity{ID: "e1", Name: "v3"}); err != nil {
		t.Fatalf("Update v3: %v", err)
	}

	msgs := h.outbox.take(t)
	if len(msgs) != 3 {
		t.Fatalf("published %d tasks, want 3", len(msgs))
	}
	// Deliver v1, v3, then the late v2.
	var v2ID string
	for _, i := range []int{0, 2, 1} {
		task, _ := queue.DecodeTask(msgs[i].payload)
		d, err := h.consumer.Process(ctx, *task)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if i == 1 {
			v2ID = task.Metadata.ID
			if d.Outcome != reconcile.OutcomeStale || d.Reason != reconcile.ReasonStale {
				t.Errorf("late v2 outcome = %s (%s)", d.Outcome, d.Reason)
			}
		}
	}

	doc, version, _ := h.idx.Document("entities", "e1")
	if doc.Name != "v3" || version != 3 {
		t.Errorf("index holds %q at version %d, want v3 at 3", doc.Name, version)
	}
	if md := h.metadata(t, v2ID); !md.Terminal || md.OperationSeq != 2 {
		t.Errorf("v2 metadata = %+v", md)
	}
	if h.sched.Pending() != 0 {
		t.Error("a stale write must not be requeued")
	}
}

func TestHybrid_RetryableFailureGoesToQueue(t *testing.T) {
	h := newHarness(t)
	h.failIndex(http.StatusBadGateway)

	res, err := h.sync.Create(context.Background(), models.ApproachHybrid, &models.Entity{ID: "e1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Decision == nil || res.Decision.Outcome != reconcile.OutcomeRetry {
		t.Fatalf("inline decision = %+v", res.Decision)
	}
	if h.sched.Pending() != 1 {
		t.Fatalf("pending requeues = %d, want 1", h.sched.Pending())
	}

	h.idx.SetFault(nil)
	h.sched.RunNext()
	msgs := h.outbox.take(t)
	if len(msgs) != 1 || msgs[0].topic != queue.DefaultRetryTopic || msgs[0].key != res.Metadata.ID+":1" {
		t.Fatalf("requeued = %+v", msgs)
	}
	task, _ := queue.DecodeTask(msgs[0].payload)
	d, _ := h.consumer.Process(context.Background(), *task)
	if d.Outcome != reconcile.OutcomeSuccess || d.Metadata.AttemptCount != 2 {
		t.Errorf("queued attempt = %s at %d", d.Outcome, d.Metadata.AttemptCount)
	}
	if d.Metadata.FirstFailureAt == nil {
		t.Error("first failure time lost")
	}
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.sync.Delete(ctx, models.ApproachDirect, "nope")
	if err != nil || res.Existed || res.Metadata != nil {
		t.Errorf("delete of missing id = %+v, %v", res, err)
	}

	if _, err := h.sync.Create(ctx, models.ApproachDirectVersioned, &models.Entity{ID: "e1", Name: "Alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err = h.sync.Delete(ctx, models.ApproachDirectVersioned, "e1")
	if err != nil || !res.Existed {
		t.Fatalf("Delete = %+v, %v", res, err)
	}
	if res.Decision.Outcome != reconcile.OutcomeSuccess {
		t.Errorf("delete outcome = %s", res.Decision.Outcome)
	}
	if v, _ := h.idx.StoredVersion("entities", "e1"); v != 2 {
		t.Errorf("tombstone version = %d, want 2", v)
	}
	if _, _, ok := h.idx.Document("entities", "e1"); ok {
		t.Error("document still live")
	}
}

func TestCDC_RecordsLineageOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.sync.Create(ctx, models.ApproachCDC, &models.Entity{ID: "e1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Decision != nil || h.idx.Calls(index.OpCreate) != 0 || len(h.outbox.take(t)) != 0 {
		t.Error("cdc writes must be left to the tailer")
	}
	if md := h.metadata(t, res.Metadata.ID); md.SecondaryStatus != models.SecondaryPending {
		t.Errorf("status = %s", md.SecondaryStatus)
	}
	if !models.IsCDCMetadataID(res.Metadata.ID) {
		t.Errorf("cdc lineage id %q lacks the cdc prefix", res.Metadata.ID)
	}

	res, err = h.sync.Delete(ctx, models.ApproachCDC, "e1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !models.IsCDCMetadataID(res.Metadata.ID) {
		t.Errorf("delete lineage id %q lacks the cdc prefix", res.Metadata.ID)
	}
	if res.Metadata.EntityVersion != 2 {
		t.Errorf("delete lineage version = %d, want 2", res.Metadata.EntityVersion)
	}
}

func TestOperationSeqIncreasesPerApproach(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1, _ := h.sync.Create(ctx, models.ApproachDirect, &models.Entity{ID: "e1", Name: "a"})
	r2, _ := h.sync.Update(ctx, models.ApproachDirect, &models.Entity{ID: "e1", Name: "b"})
	r3, _ := h.sync.Update(ctx, models.ApproachQueue, &models.Entity{ID: "e1", Name: "c"})

	if r1.Metadata.OperationSeq != 1 || r2.Metadata.OperationSeq != 2 || r3.Metadata.OperationSeq != 1 {
		t.Errorf("seqs = %d, %d, %d; want 1, 2, 1", r1.Metadata.OperationSeq, r2.Metadata.OperationSeq, r3.Metadata.OperationSeq)
	}
}

func TestQueueWithoutOutbox(t *testing.T) {
	h := newHarness(t)
	h.sync.outbox = nil
	if _, err := h.sync.Create(context.Background(), models.ApproachQueue, &models.Entity{ID: "e1", Name: "a"}); !errors.Is(err, ErrQueueUnavailable) {
		t.Errorf("error = %v, want ErrQueueUnavailable", err)
	}
	if _, err := h.sync.Create(context.Background(), models.Approach("bogus"), &models.Entity{ID: "e1", Name: "a"}); err == nil {
		t.Error("unknown approach accepted")
	}
}

func TestRecover_ReenqueuesLostLineages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.outbox.err = errors.New("broker down")
	res, err := h.sync.Create(ctx, models.ApproachQueue, &models.Entity{ID: "e1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.outbox.err = nil
	h.sync.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }

	n, err := h.sync.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	msgs := h.outbox.take(t)
	if len(msgs) != 1 || msgs[0].topic != queue.DefaultRetryTopic || msgs[0].key != res.Metadata.ID+":0" {
		t.Fatalf("recovered = %+v", msgs)
	}

	task, _ := queue.DecodeTask(msgs[0].payload)
	if _, err := h.consumer.Process(ctx, *task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n, _ := h.sync.Recover(ctx); n != 0 {
		t.Errorf("second Recover = %d, want 0", n)
	}
}

func TestReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.failIndex(http.StatusServiceUnavailable)

	res, _ := h.sync.Create(ctx, models.ApproachDirect, &models.Entity{ID: "e1", Name: "Alice"})
	failed := h.metadata(t, res.Metadata.ID)

	h.idx.SetFault(nil)
	d, err := h.sync.Replay(ctx, failed.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if d.Outcome != reconcile.OutcomeSuccess || d.Metadata.AttemptCount != 2 {
		t.Errorf("replay = %s at attempt %d", d.Outcome, d.Metadata.AttemptCount)
	}
	if d.Metadata.FirstFailureAt == nil || !d.Metadata.FirstFailureAt.Equal(*failed.FirstFailureAt) {
		t.Error("first failure time changed")
	}

	if _, err := h.sync.Replay(ctx, failed.ID); !errors.Is(err, ErrNotReplayable) {
		t.Errorf("replaying a success: %v", err)
	}
	if _, err := h.sync.Replay(ctx, "nope"); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("replaying unknown id: %v", err)
	}
}

func TestRecover_ClosesSupersededLineage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.outbox.err = errors.New("broker down")
	lost, err := h.sync.Create(ctx, models.ApproachQueueVersioned, &models.Entity{ID: "e1", Name: "v1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.outbox.err = nil
	if _, err := h.sync.Update(ctx, models.ApproachQueueVersioned, &models.Entity{ID: "e1", Name: "v2"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n := h.drain(t); n != 1 {
		t.Fatalf("deliveries = %d, want 1", n)
	}
	h.sync.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }

	n, err := h.sync.Recover(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	if msgs := h.outbox.take(t); len(msgs) != 0 {
		t.Errorf("superseded lineage re-enqueued: %+v", msgs)
	}

	md := h.metadata(t, lost.Metadata.ID)
	if md.SecondaryStatus != models.SecondaryFailure || !md.Terminal || md.FailureReason != reconcile.ReasonStale {
		t.Errorf("superseded lineage = %s terminal=%v reason=%q", md.SecondaryStatus, md.Terminal, md.FailureReason)
	}
	doc, version, ok := h.idx.Document("entities", "e1")
	if !ok || doc.Name != "v2" || version != 2 {
		t.Errorf("indexed = %+v at %d", doc, version)
	}
	if n, _ := h.sync.Recover(ctx); n != 0 {
		t.Errorf("second Recover = %d, want 0", n)
	}
}

func TestReplay_Superseded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.failIndex(http.StatusServiceUnavailable)

	res, _ := h.sync.Create(ctx, models.ApproachDirectVersioned, &models.Entity{ID: "e1", Name: "v1"})
	h.idx.SetFault(nil)
	if _, err := h.sync.Update(ctx, models.ApproachDirectVersioned, &models.Entity{ID: "e1", Name: "v2"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := h.sync.Replay(ctx, res.Metadata.ID); !errors.Is(err, ErrSuperseded) {
		t.Errorf("replaying a superseded lineage: %v", err)
	}
	if _, version, _ := h.idx.Document("entities", "e1"); version != 2 {
		t.Errorf("indexed version = %d, want 2", version)
	}
}

func TestConsumerHandle(t *testing.T) {
	h := newHarness(t)
	err := h.consumer.Handle(message.NewMessage("bad", []byte("{")))
	if !queue.IsPermanent(err) {
		t.Errorf("undecodable payload error = %v, want permanent", err)
	}

	if _, err := h.sync.Create(context.Background(), models.ApproachQueue, &models.Entity{ID: "e1", Name: "Alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := h.outbox.take(t)[0]
	for i := 0; i < 2; i++ {
		if err := h.consumer.Handle(message.NewMessage(m.key, m.payload)); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if n := h.idx.Calls(index.OpCreate); n != 1 {
		t.Errorf("index creates = %d, want 1", n)
	}
}
