// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package synchronizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/indexsync/internal/cache"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/metrics"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/queue"
	"github.com/tomtom215/indexsync/internal/reconcile"
)

// Consumer is the queue side of the queued approaches: it decodes a task,
// drops redeliveries, applies the task through the engine and requeues
// retryable failures.
type Consumer struct {
	engine   *reconcile.Engine
	metadata metadata.Store
	requeuer *Requeuer
	dedup    *cache.LRU
}

// NewConsumer creates a consumer. dedup may be nil.
func NewConsumer(engine *reconcile.Engine, store metadata.Store, requeuer *Requeuer, dedup *cache.LRU) *Consumer {
	return &Consumer{engine: engine, metadata: store, requeuer: requeuer, dedup: dedup}
}

// Register subscribes the consumer to the task and retry topics.
func (c *Consumer) Register(r *queue.Router, sub message.Subscriber, tasksTopic, retryTopic string) {
	r.AddConsumerHandler("sync-tasks", tasksTopic, sub, c.Handle)
	r.AddConsumerHandler("sync-retries", retryTopic, sub, c.Handle)
}

// Handle is the Watermill handler. A returned error nacks the message; an
// undecodable payload is marked permanent and goes to the poison topic.
func (c *Consumer) Handle(msg *message.Message) error {
	task, err := queue.DecodeTask(msg.Payload)
	if err != nil {
		return queue.Permanent(fmt.Errorf("message %s: %w", msg.UUID, err))
	}
	metrics.RecordQueueConsume(message.SubscribeTopicFromCtx(msg.Context()))

	key := queue.MessageKey(task)
	if c.dedup != nil && c.dedup.Seen(key) {
		metrics.RecordQueueDuplicate()
		logging.Debug().Str("message_key", key).Msg("Duplicate delivery dropped")
		return nil
	}

	ctx := msg.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.ContextWithCorrelationID(ctx, key)

	if _, err := c.Process(ctx, *task); err != nil {
		if c.dedup != nil {
			c.dedup.Forget(key)
		}
		return err
	}
	return nil
}

// Process applies one delivery of task.
//
// The stored metadata record is the source of truth for the lineage. A
// delivery is a duplicate when the lineage is already settled or the record
// has counted more attempts than the task carries; duplicates return
// OutcomeDuplicate without touching the index. An error is returned only when
// the metadata store cannot be read.
func (c *Consumer) Process(ctx context.Context, task models.SyncTask) (reconcile.Decision, error) {
	stored, err := c.metadata.GetByID(ctx, task.Metadata.ID)
	switch {
	case err == nil:
		if isDuplicate(stored, &task) {
			metrics.RecordQueueDuplicate()
			logging.Ctx(ctx).Debug().
				Str("metadata_id", stored.ID).
				Int("stored_attempt", stored.AttemptCount).
				Int("task_attempt", task.Metadata.AttemptCount).
				Str("secondary_status", string(stored.SecondaryStatus)).
				Msg("Redelivered task ignored")
			return reconcile.Decision{Outcome: reconcile.OutcomeDuplicate, Metadata: stored}, nil
		}
		task.Metadata = *stored
	case errors.Is(err, metadata.ErrNotFound):
		// The producer's metadata write was lost; the engine saves it.
	default:
		return reconcile.Decision{}, fmt.Errorf("load sync metadata %s: %w", task.Metadata.ID, err)
	}

	d := c.engine.Apply(ctx, task, reconcile.CapabilityFor(task.Metadata.Approach))
	if d.Retry && c.requeuer != nil {
		c.requeuer.Requeue(ctx, d)
	}
	return d, nil
}

func isDuplicate(stored *models.SyncMetadata, task *models.SyncTask) bool {
	return stored.IsSettled() || stored.AttemptCount > task.Metadata.AttemptCount
}
