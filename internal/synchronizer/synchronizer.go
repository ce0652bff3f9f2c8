// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/metrics"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/queue"
	"github.com/tomtom215/indexsync/internal/reconcile"
)

var (
	// ErrPrimaryWrite wraps every primary store failure on a mutation.
	ErrPrimaryWrite = errors.New("primary store write failed")

	// ErrQueueUnavailable is returned for queued approaches when the
	// synchronizer has no outbox.
	ErrQueueUnavailable = errors.New("queue transport not configured")

	// ErrNotReplayable is returned by Replay for lineages that are not in a
	// terminal failure.
	ErrNotReplayable = errors.New("sync lineage is not a terminal failure")

	// ErrSuperseded means the primary store holds a newer version than the
	// lineage wrote; the newer write's lineage owns the document.
	ErrSuperseded = errors.New("sync lineage superseded by a newer write")
)

// Enqueuer hands a serialized task to the queue. wal.Outbox implements it.
type Enqueuer interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Config configures the synchronizer.
type Config struct {
	// IndexName is the search index every task targets.
	IndexName string `koanf:"index_name"`

	// TasksTopic receives first attempts of queued tasks.
	TasksTopic string `koanf:"tasks_topic"`

	// RetryTopic receives requeued and recovered tasks.
	RetryTopic string `koanf:"retry_topic"`

	// RecoveryGrace is how old a pending queue lineage must be before the
	// recovery sweep treats it as lost.
	RecoveryGrace time.Duration `koanf:"recovery_grace"`

	// RecoveryBatch caps the lineages re-enqueued per sweep.
	RecoveryBatch int `koanf:"recovery_batch"`
}

// DefaultConfig returns default settings.
func DefaultConfig() Config {
	return Config{
		IndexName:     "entities",
		TasksTopic:    queue.DefaultTasksTopic,
		RetryTopic:    queue.DefaultRetryTopic,
		RecoveryGrace: 2 * time.Minute,
		RecoveryBatch: metadata.DefaultListLimit,
	}
}

// Result is what a mutation returns to its caller.
type Result struct {
	Entity   *models.Entity
	Existed  bool
	Metadata *models.SyncMetadata

	// Decision is set when an inline attempt ran.
	Decision *reconcile.Decision
}

// Synchronizer runs mutations for every approach over one primary store,
// metadata store and engine.
type Synchronizer struct {
	cfg      Config
	primary  primary.Store
	metadata metadata.Store
	engine   *reconcile.Engine
	seq      *metadata.Sequencer
	outbox   Enqueuer
	requeuer *Requeuer

	newID func() string
	now   func() time.Time
}

// New creates a synchronizer. outbox and requeuer may be nil when no queue is
// configured; queued approaches then fail with ErrQueueUnavailable.
func New(cfg Config, store primary.Store, md metadata.Store, engine *reconcile.Engine, outbox Enqueuer, requeuer *Requeuer) *Synchronizer {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultConfig().IndexName
	}
	return &Synchronizer{
		cfg:      cfg,
		primary:  store,
		metadata: md,
		engine:   engine,
		seq:      metadata.NewSequencer(md),
		outbox:   outbox,
		requeuer: requeuer,
		newID:    func() string { return uuid.New().String() },
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get reads an entity from the primary store.
func (s *Synchronizer) Get(ctx context.Context, id string) (*models.Entity, error) {
	return s.primary.Get(ctx, id)
}

// Create writes a new entity and synchronizes it with the given approach.
func (s *Synchronizer) Create(ctx context.Context, approach models.Approach, e *models.Entity) (*Result, error) {
	if err := s.checkApproach(approach); err != nil {
		return nil, err
	}
	mdID := s.lineageID(approach)
	in := e.Clone()
	if in != nil {
		in.SyncMetadataID = mdID
	}
	out, err := s.primary.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
	}
	return s.dispatch(ctx, approach, models.OperationCreate, mdID, out, out.Version)
}

// Update replaces an entity and synchronizes it with the given approach.
func (s *Synchronizer) Update(ctx context.Context, approach models.Approach, e *models.Entity) (*Result, error) {
	if err := s.checkApproach(approach); err != nil {
		return nil, err
	}
	mdID := s.lineageID(approach)
	in := e.Clone()
	if in != nil {
		in.SyncMetadataID = mdID
	}
	out, err := s.primary.Update(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
	}
	return s.dispatch(ctx, approach, models.OperationUpdate, mdID, out, out.Version)
}

// Delete removes an entity and synchronizes the removal. Deleting an id that
// does not exist is not an error: Result.Existed is false and nothing is
// synchronized.
func (s *Synchronizer) Delete(ctx context.Context, approach models.Approach, id string) (*Result, error) {
	if err := s.checkApproach(approach); err != nil {
		return nil, err
	}
	mdID := s.lineageID(approach)
	existed, version, err := s.primary.Delete(ctx, id, mdID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
	}
	if !existed {
		return &Result{Existed: false}, nil
	}
	return s.dispatch(ctx, approach, models.OperationDelete, mdID, &models.Entity{ID: id, Deleted: true, Version: version}, version)
}

// lineageID returns a new metadata id. Ids of cdc lineages carry a prefix so
// the tailer can tell them from writes other approaches already index.
func (s *Synchronizer) lineageID(approach models.Approach) string {
	if approach == models.ApproachCDC {
		return models.NewCDCMetadataID(s.newID())
	}
	return s.newID()
}

func (s *Synchronizer) checkApproach(approach models.Approach) error {
	if !approach.Valid() {
		return fmt.Errorf("unknown approach %q", approach)
	}
	if approach.Queued() && approach != models.ApproachHybrid && s.outbox == nil {
		return ErrQueueUnavailable
	}
	return nil
}

// dispatch records the lineage and starts the index side of the mutation.
func (s *Synchronizer) dispatch(ctx context.Context, approach models.Approach, op models.OperationKind, mdID string, e *models.Entity, version int64) (*Result, error) {
	res := &Result{Entity: e, Existed: true}
	if op == models.OperationDelete {
		res.Entity = nil
	}

	log := logging.Ctx(ctx).With().
		Str("metadata_id", mdID).
		Str("entity_id", e.ID).
		Str("approach", string(approach)).
		Logger()

	md := models.NewSyncMetadata(mdID, e.ID, approach, op, s.now())
	md.EntityVersion = version
	_, err := s.seq.Allocate(ctx, e.ID, approach, func(seq int64) error {
		md.OperationSeq = seq
		return s.metadata.Save(ctx, md)
	})
	switch {
	case err == nil:
	case approach == models.ApproachCDC && errors.Is(err, metadata.ErrAlreadyExists):
		// The tailer got there first.
		log.Debug().Msg("Lineage already recorded by the tailer")
	default:
		// The task carries its metadata; the engine saves it on the first
		// attempt if this write was lost.
		metrics.RecordMetadataPersistError(string(approach))
		log.Error().Err(err).Msg("Failed to record sync metadata")
	}
	res.Metadata = md

	task := models.SyncTask{
		Operation:  op,
		Index:      s.cfg.IndexName,
		DocumentID: e.ID,
		Version:    version,
		Metadata:   *md.Clone(),
	}
	if op != models.OperationDelete {
		task.Document = e.Clone()
	}

	capa := reconcile.CapabilityFor(approach)
	switch {
	case approach == models.ApproachCDC:
		return res, nil

	case capa.Inline:
		d := s.engine.Apply(ctx, task, capa)
		res.Decision = &d
		res.Metadata = d.Metadata
		if d.Retry {
			if s.requeuer == nil {
				log.Warn().Msg("Retryable failure but no queue configured, lineage left for recovery")
				return res, nil
			}
			s.requeuer.Requeue(ctx, d)
		}
		return res, nil

	default:
		if err := s.enqueue(ctx, s.cfg.TasksTopic, &task); err != nil {
			// The metadata record stays pending and the recovery sweep
			// re-enqueues it.
			log.Error().Err(err).Msg("Failed to enqueue sync task")
		}
		return res, nil
	}
}

func (s *Synchronizer) enqueue(ctx context.Context, topic string, task *models.SyncTask) error {
	if s.outbox == nil {
		return ErrQueueUnavailable
	}
	payload, err := queue.EncodeTask(task)
	if err != nil {
		return err
	}
	return s.outbox.Publish(ctx, topic, queue.MessageKey(task), payload)
}
