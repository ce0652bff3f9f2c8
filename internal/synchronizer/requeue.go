// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package synchronizer

import (
	"context"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metrics"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/queue"
	"github.com/tomtom215/indexsync/internal/reconcile"
	"github.com/tomtom215/indexsync/internal/retry"
)

// Requeuer re-publishes retryable tasks to the retry topic once their
// backoff elapses. The timer lives in process; a shutdown cancels it and the
// recovery sweep picks the lineage up on the next start.
type Requeuer struct {
	retrier *retry.Retrier
	outbox  Enqueuer
	topic   string
}

// NewRequeuer creates a requeuer publishing to topic through outbox.
func NewRequeuer(retrier *retry.Retrier, outbox Enqueuer, topic string) *Requeuer {
	return &Requeuer{retrier: retrier, outbox: outbox, topic: topic}
}

// Requeue schedules d.Task. It returns false when the scheduler is stopped.
func (r *Requeuer) Requeue(ctx context.Context, d reconcile.Decision) bool {
	task := d.Task
	approach := string(task.Metadata.Approach)
	// The timer fires after the request or message that produced it is done.
	bg := context.WithoutCancel(ctx)

	delay, ok := r.retrier.Schedule(task.Key(), d.NextAttempt, func() {
		r.publish(bg, &task)
		metrics.SetPendingRetries("requeue", r.retrier.Pending())
	})
	metrics.SetPendingRetries("requeue", r.retrier.Pending())
	if !ok {
		return false
	}
	metrics.RecordRequeue(approach, delay)
	return true
}

func (r *Requeuer) publish(ctx context.Context, task *models.SyncTask) {
	payload, err := queue.EncodeTask(task)
	if err == nil {
		err = r.outbox.Publish(ctx, r.topic, queue.MessageKey(task), payload)
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("metadata_id", task.Metadata.ID).
			Str("entity_id", task.Metadata.EntityID).
			Int("attempt", task.Metadata.AttemptCount).
			Msg("Requeue publish failed, lineage left for recovery")
	}
}

// Pending returns the number of scheduled requeues.
func (r *Requeuer) Pending() int {
	return r.retrier.Pending()
}

// Stop cancels scheduled requeues.
func (r *Requeuer) Stop() {
	r.retrier.Stop()
}
