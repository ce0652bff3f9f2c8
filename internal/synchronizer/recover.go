// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package synchronizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/reconcile"
)

var queuedApproaches = []models.Approach{
	models.ApproachQueue,
	models.ApproachQueueVersioned,
	models.ApproachHybrid,
}

// Recover re-enqueues queued lineages that lost their way: pending records
// older than RecoveryGrace (the first publish never happened) and non-terminal
// failures (the requeue timer died with the previous process). Tasks are
// rebuilt from the primary store's current document and keep the recorded
// attempt count, so a lineage whose message is still in flight is dropped as a
// duplicate by whichever delivery comes second. A lineage whose entity has a
// newer version is closed as stale instead.
func (s *Synchronizer) Recover(ctx context.Context) (int, error) {
	if s.outbox == nil {
		return 0, nil
	}
	notTerminal := false

	pending, err := s.metadata.List(ctx, metadata.Filter{
		Status:        models.SecondaryPending,
		Approaches:    queuedApproaches,
		UpdatedBefore: s.now().Add(-s.cfg.RecoveryGrace),
		Limit:         s.cfg.RecoveryBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list pending lineages: %w", err)
	}
	failed, err := s.metadata.List(ctx, metadata.Filter{
		Status:     models.SecondaryFailure,
		Approaches: queuedApproaches,
		Terminal:   &notTerminal,
		Limit:      s.cfg.RecoveryBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list retrying lineages: %w", err)
	}

	recovered := 0
	for _, md := range append(pending, failed...) {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		task, err := s.rebuildTask(ctx, md)
		if errors.Is(err, ErrSuperseded) {
			s.closeSuperseded(ctx, md)
			continue
		}
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("metadata_id", md.ID).Msg("Cannot rebuild sync task")
			continue
		}
		if err := s.enqueue(ctx, s.cfg.RetryTopic, task); err != nil {
			return recovered, fmt.Errorf("re-enqueue %s: %w", md.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		logging.Ctx(ctx).Info().Int("recovered", recovered).Msg("Re-enqueued interrupted sync lineages")
	}
	return recovered, nil
}

// Replay gives a terminally failed lineage one more inline attempt built from
// the primary store's current state. The attempt count keeps increasing and
// the first failure time is kept. A failed replay is terminal again; nothing
// is requeued. ErrSuperseded is returned when the entity has a newer version.
func (s *Synchronizer) Replay(ctx context.Context, metadataID string) (reconcile.Decision, error) {
	md, err := s.metadata.GetByID(ctx, metadataID)
	if err != nil {
		return reconcile.Decision{}, err
	}
	if md.SecondaryStatus != models.SecondaryFailure || !md.Terminal {
		return reconcile.Decision{}, ErrNotReplayable
	}

	task, err := s.rebuildTask(ctx, md)
	if err != nil {
		return reconcile.Decision{}, err
	}

	capa := reconcile.CapabilityFor(md.Approach)
	capa.Inline = true
	capa.Requeue = false

	logging.Ctx(ctx).Info().
		Str("metadata_id", md.ID).
		Str("entity_id", md.EntityID).
		Str("approach", string(md.Approach)).
		Int("attempt", md.AttemptCount).
		Msg("Replaying sync lineage")
	return s.engine.Apply(ctx, *task, capa), nil
}

// rebuildTask builds a task for md from the primary store. The task keeps the
// lineage's version as its fence; when the primary store has moved past it
// the lineage is superseded. A create or update whose entity has since been
// deleted becomes a client failure in the engine: the delete lineage owns the
// document now.
func (s *Synchronizer) rebuildTask(ctx context.Context, md *models.SyncMetadata) (*models.SyncTask, error) {
	task := &models.SyncTask{
		Operation:  md.Operation,
		Index:      s.cfg.IndexName,
		DocumentID: md.EntityID,
		Version:    md.EntityVersion,
		Metadata:   *md.Clone(),
		RetryCount: md.AttemptCount,
	}
	if md.Operation == models.OperationDelete {
		return task, nil
	}

	e, err := s.primary.Get(ctx, md.EntityID)
	switch {
	case err == nil:
		if md.EntityVersion > 0 && e.Version > md.EntityVersion {
			return nil, fmt.Errorf("%w: entity %s is at version %d, lineage %s wrote %d",
				ErrSuperseded, md.EntityID, e.Version, md.ID, md.EntityVersion)
		}
		task.Document = e
		if task.Version == 0 {
			task.Version = e.Version
		}
	case errors.Is(err, primary.ErrNotFound):
		// Left without a document on purpose.
	default:
		return nil, fmt.Errorf("read entity %s: %w", md.EntityID, err)
	}
	return task, nil
}

// closeSuperseded records md as a terminal stale failure so recovery stops
// picking it up.
func (s *Synchronizer) closeSuperseded(ctx context.Context, md *models.SyncMetadata) {
	closed := md.Clone()
	closed.SecondaryStatus = models.SecondaryFailure
	closed.FailureReason = reconcile.ReasonStale
	closed.Terminal = true
	closed.NextRetryAt = nil
	closed.UpdatedAt = s.now()

	log := logging.Ctx(ctx).With().
		Str("metadata_id", md.ID).
		Str("entity_id", md.EntityID).
		Str("approach", string(md.Approach)).
		Logger()
	if err := s.metadata.Update(ctx, md.ID, closed); err != nil {
		log.Error().Err(err).Msg("Failed to close superseded sync lineage")
		return
	}
	log.Info().Int64("entity_version", md.EntityVersion).Msg("Closed superseded sync lineage")
}
