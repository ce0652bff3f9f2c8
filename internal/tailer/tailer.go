// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package tailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/indexsync/internal/checkpoint"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/metrics"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/reconcile"
	"github.com/tomtom215/indexsync/internal/retry"
	"github.com/tomtom215/indexsync/internal/scheduler"
)

// ErrNotStarted is returned by Poll before Start.
var ErrNotStarted = errors.New("tailer not started")

// State is the tailer lifecycle state.
type State int

const (
	StateStopped State = iota
	StateTailing
	StateProcessing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateTailing:
		return "tailing"
	case StateProcessing:
		return "processing"
	case StateBackoff:
		return "backoff"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tailer reconciles the primary store's change log into the search index.
type Tailer struct {
	cfg         Config
	changes     primary.ChangeLog
	metadata    metadata.Store
	checkpoints checkpoint.Store
	engine      *reconcile.Engine
	seq         *metadata.Sequencer
	policy      retry.Policy

	newScheduler func() scheduler.Scheduler
	now          func() time.Time

	mu      sync.Mutex
	state   State
	started bool
	cursor  string
	retrier *retry.Retrier
	wm      *watermark
}

// New creates a tailer. Backoff timers run on a scheduler created per run.
func New(cfg Config, changes primary.ChangeLog, md metadata.Store, cp checkpoint.Store, engine *reconcile.Engine, policy retry.Policy) *Tailer {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultConfig().IndexName
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Tailer{
		cfg:         cfg,
		changes:     changes,
		metadata:    md,
		checkpoints: cp,
		engine:      engine,
		seq:         metadata.NewSequencer(md),
		policy:      policy,
		newScheduler: func() scheduler.Scheduler {
			return scheduler.NewTimerScheduler("tailer")
		},
		now: func() time.Time { return time.Now().UTC() },
		wm:  newWatermark(""),
	}
}

// Start loads the resume position and moves the tailer to TAILING.
func (t *Tailer) Start(ctx context.Context) error {
	token, err := t.resumePosition(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.cursor = token
	t.wm = newWatermark(token)
	t.retrier = retry.NewRetrier(t.policy, t.newScheduler(), "tailer")
	t.started = true
	t.mu.Unlock()
	t.setState(StateTailing)

	logging.Info().Str("token", token).Bool("fenced", t.cfg.Fenced).Msg("Change-capture tailer started")
	return nil
}

// resumePosition returns the stored checkpoint, or the current log head on a
// cold start. The head is persisted immediately: events committed between a
// cold start and the first handled event must not be skipped by a restart.
func (t *Tailer) resumePosition(ctx context.Context) (string, error) {
	cp, err := t.checkpoints.Load(ctx)
	switch {
	case err == nil:
		seq, perr := primary.ParseToken(cp.Token)
		if perr != nil {
			return "", fmt.Errorf("checkpoint %q: %w", cp.Token, perr)
		}
		metrics.SetCheckpointSequence(seq)
		return cp.Token, nil

	case errors.Is(err, checkpoint.ErrNotFound):
		head, err := t.changes.Head(ctx)
		if err != nil {
			return "", fmt.Errorf("read change log head: %w", err)
		}
		if err := t.checkpoints.Save(ctx, head); err != nil {
			return "", fmt.Errorf("save initial checkpoint: %w", err)
		}
		logging.Info().Str("token", head).Msg("No tailer checkpoint, starting at the head of the change log")
		return head, nil

	default:
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
}

// Poll reads one batch after the cursor and processes it in commit order. It
// first retries a checkpoint save that failed. It returns the number of events
// processed. An error means the metadata store
// or the change log could not be read; the cursor stays on the failing event.
func (t *Tailer) Poll(ctx context.Context) (int, error) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return 0, ErrNotStarted
	}
	cursor := t.cursor
	t.mu.Unlock()

	t.flush(ctx)

	events, err := t.changes.ReadAfter(ctx, cursor, t.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read change log after %q: %w", cursor, err)
	}

	for i, ev := range events {
		if err := t.handle(ctx, ev); err != nil {
			return i, err
		}
		t.mu.Lock()
		t.cursor = ev.Token
		t.mu.Unlock()
	}
	return len(events), nil
}

// Run tails the log until ctx is canceled. Pending backoff timers are
// cancelled on return; their events are replayed from the checkpoint by the
// next run.
func (t *Tailer) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	defer t.stop()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n, err := t.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if n == t.cfg.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.changes.Changes():
		case <-ticker.C:
		}
	}
}

// Serve implements suture.Service.
func (t *Tailer) Serve(ctx context.Context) error {
	return t.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (t *Tailer) String() string {
	return "cdc-tailer"
}

func (t *Tailer) stop() {
	t.mu.Lock()
	retrier := t.retrier
	t.started = false
	t.mu.Unlock()

	if retrier != nil {
		retrier.Stop()
		metrics.SetPendingRetries("tailer", 0)
	}
	t.setState(StateStopped)
	logging.Info().Str("checkpoint", t.wm.position()).Msg("Change-capture tailer stopped")
}

// State returns the current state. The main loop keeps tailing while events
// wait on backoff timers; that is reported as BACKOFF.
func (t *Tailer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateTailing && t.retrier != nil && t.retrier.Pending() > 0 {
		return StateBackoff
	}
	return t.state
}

// Checkpoint returns the committed position.
func (t *Tailer) Checkpoint() string {
	t.mu.Lock()
	wm := t.wm
	t.mu.Unlock()
	return wm.position()
}

// Cursor returns the token of the last event read.
func (t *Tailer) Cursor() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// InFlight returns the number of events read but not yet handled.
func (t *Tailer) InFlight() int {
	t.mu.Lock()
	wm := t.wm
	t.mu.Unlock()
	return wm.inFlight()
}

func (t *Tailer) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	metrics.SetTailerState(int(s))
}

// handle processes one event: resolve its lineage, then apply it.
func (t *Tailer) handle(ctx context.Context, ev models.ChangeEvent) error {
	t.setState(StateProcessing)
	defer t.setState(StateTailing)

	metrics.RecordTailerEvent(string(ev.Operation))

	t.mu.Lock()
	wm := t.wm
	t.mu.Unlock()
	wm.track(ev.Sequence, ev.Token)

	task, skip, err := t.resolve(ctx, ev)
	if err != nil {
		return fmt.Errorf("resolve lineage of event %s: %w", ev.Token, err)
	}
	if task == nil {
		logging.Ctx(ctx).Debug().
			Str("token", ev.Token).
			Str("entity_id", ev.EntityID).
			Str("operation", string(ev.Operation)).
			Str("reason", skip).
			Msg("Change event skipped")
		t.complete(ctx, ev.Sequence)
		return nil
	}

	t.attempt(ctx, ev.Sequence, *task)
	return nil
}

// attempt applies task once. A retryable failure is put on a backoff timer
// that calls attempt again with the next attempt count.
func (t *Tailer) attempt(ctx context.Context, seq uint64, task models.SyncTask) {
	capa := reconcile.Capability{Fenced: t.cfg.Fenced, Requeue: true}
	d := t.engine.Apply(ctx, task, capa)
	if !d.Retry {
		t.complete(ctx, seq)
		return
	}

	t.mu.Lock()
	retrier := t.retrier
	t.mu.Unlock()

	next := d.Task
	bg := context.WithoutCancel(ctx)
	delay, ok := retrier.Schedule(next.Key(), d.NextAttempt, func() {
		t.attempt(bg, seq, next)
		metrics.SetPendingRetries("tailer", retrier.Pending())
	})
	metrics.SetPendingRetries("tailer", retrier.Pending())
	if !ok {
		// Stopping. The checkpoint stays behind the event.
		return
	}
	metrics.RecordRequeue(string(models.ApproachCDC), delay)
}

// complete marks the event handled and persists the checkpoint if the low
// watermark moved.
func (t *Tailer) complete(ctx context.Context, seq uint64) {
	t.mu.Lock()
	wm := t.wm
	t.mu.Unlock()

	if err := wm.complete(seq, t.saveCheckpoint(ctx)); err != nil {
		logging.Ctx(ctx).Error().Err(err).Uint64("sequence", seq).Msg("Failed to save tailer checkpoint")
	}
}

// flush retries a checkpoint save that failed earlier. Nothing else may
// advance the watermark for a long time when the log is idle.
func (t *Tailer) flush(ctx context.Context) {
	t.mu.Lock()
	wm := t.wm
	t.mu.Unlock()

	if err := wm.flush(t.saveCheckpoint(ctx)); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("checkpoint", wm.position()).Msg("Tailer checkpoint still not saved")
	}
}

func (t *Tailer) saveCheckpoint(ctx context.Context) func(token string, seq uint64) error {
	return func(token string, seq uint64) error {
		if err := t.checkpoints.Save(ctx, token); err != nil {
			return err
		}
		metrics.SetCheckpointSequence(seq)
		return nil
	}
}

// resolve finds or creates the lineage of ev and builds its task. A nil task
// with a reason means the event needs no work.
func (t *Tailer) resolve(ctx context.Context, ev models.ChangeEvent) (*models.SyncTask, string, error) {
	id, owner, err := t.owner(ctx, ev)
	if err != nil {
		return nil, "", err
	}
	if owner != models.ApproachCDC {
		return nil, "owned by " + string(owner), nil
	}

	md, err := t.lineage(ctx, id, ev)
	if err != nil {
		return nil, "", err
	}
	if md.IsSettled() {
		return nil, "lineage already settled", nil
	}

	task := &models.SyncTask{
		Operation:  ev.Operation,
		Index:      t.cfg.IndexName,
		DocumentID: ev.EntityID,
		Document:   ev.Document.Clone(),
		Version:    ev.Version,
		Metadata:   *md,
		RetryCount: md.AttemptCount,
	}
	return task, "", nil
}

// owner returns the lineage id and the approach that owns ev.
func (t *Tailer) owner(ctx context.Context, ev models.ChangeEvent) (string, models.Approach, error) {
	switch {
	case ev.MetadataID == "":
		return models.CDCMetadataID(ev.EntityID, ev.Version), models.ApproachCDC, nil
	case models.IsCDCMetadataID(ev.MetadataID):
		return ev.MetadataID, models.ApproachCDC, nil
	}
	md, err := t.metadata.GetByID(ctx, ev.MetadataID)
	switch {
	case err == nil:
		return md.ID, md.Approach, nil
	case errors.Is(err, metadata.ErrNotFound):
		// Written by another approach whose record is not visible yet.
		return ev.MetadataID, "other approach", nil
	default:
		return "", "", err
	}
}

// lineage loads the record id, creating a pending cdc record when the writer
// has not saved one.
func (t *Tailer) lineage(ctx context.Context, id string, ev models.ChangeEvent) (*models.SyncMetadata, error) {
	md, err := t.metadata.GetByID(ctx, id)
	if err == nil {
		return md, nil
	}
	if !errors.Is(err, metadata.ErrNotFound) {
		return nil, err
	}

	committed := ev.CommittedAt
	if committed.IsZero() {
		committed = t.now()
	}
	md = models.NewSyncMetadata(id, ev.EntityID, models.ApproachCDC, ev.Operation, committed)
	md.EntityVersion = ev.Version
	_, err = t.seq.Allocate(ctx, ev.EntityID, models.ApproachCDC, func(seq int64) error {
		md.OperationSeq = seq
		return t.metadata.Save(ctx, md)
	})
	switch {
	case err == nil:
		return md, nil
	case errors.Is(err, metadata.ErrAlreadyExists):
		// The writer saved it in the meantime.
		return t.metadata.GetByID(ctx, id)
	default:
		return nil, err
	}
}
