// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/indexsync/internal/index"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/metrics"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/retry"
)

// Outcome is the engine's decision for one attempt.
type Outcome string

const (
	// OutcomeSuccess: the index accepted the write (or the delete found nothing).
	OutcomeSuccess Outcome = "success"
	// OutcomeStale: a fenced write lost to an equal or newer version.
	OutcomeStale Outcome = "stale"
	// OutcomeClientFailure: the index rejected the request shape. Terminal.
	OutcomeClientFailure Outcome = "client_failure"
	// OutcomeRetry: transient failure, a requeue after Delay is due.
	OutcomeRetry Outcome = "retry"
	// OutcomeExhausted: transient failure with no attempts left. Terminal.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeTransientFailure: transient failure on a path that cannot requeue. Terminal.
	OutcomeTransientFailure Outcome = "transient_failure"
	// OutcomeDuplicate: a redelivery of an attempt already recorded. Consumers
	// report it; Apply never returns it.
	OutcomeDuplicate Outcome = "duplicate"
)

// Decision is the result of Apply.
type Decision struct {
	Outcome Outcome

	// Retry is set together with OutcomeRetry: the caller must schedule Task
	// after Delay.
	Retry       bool
	NextAttempt int
	Delay       time.Duration

	// Task is the task to requeue, already carrying NextAttempt.
	Task models.SyncTask

	Reason   string
	Metadata *models.SyncMetadata

	// Err is the index error, nil on success.
	Err error
	// PersistErr is set when the metadata write failed. The decision stands.
	PersistErr error
}

// Terminal reports whether the lineage reached a final failure state.
func (d Decision) Terminal() bool {
	return d.Metadata != nil && d.Metadata.Terminal
}

// Engine applies one sync task to the index, classifies the result and
// records it on the lineage's metadata. It never re-enqueues by itself: a
// Retry decision is handed back so the caller can use its own transport.
type Engine struct {
	gateway  index.Gateway
	metadata metadata.Store
	policy   retry.Policy
	now      func() time.Time
}

// NewEngine creates an engine.
func NewEngine(gateway index.Gateway, store metadata.Store, policy retry.Policy) *Engine {
	return &Engine{
		gateway:  gateway,
		metadata: store,
		policy:   policy,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Policy returns the retry policy the engine classifies against.
func (e *Engine) Policy() retry.Policy {
	return e.policy
}

// Apply runs one attempt of task.
//
// The attempt count recorded is task.Metadata.AttemptCount+1 whatever the
// outcome. FirstFailureAt is set on the first failure only. The metadata write
// happens before Apply returns; a failure to persist is logged and counted
// but does not change the decision.
func (e *Engine) Apply(ctx context.Context, task models.SyncTask, capa Capability) Decision {
	md := task.Metadata.Clone()
	if md.EntityID == "" {
		md.EntityID = task.DocumentID
	}
	if md.Operation == "" {
		md.Operation = task.Operation
	}
	next := md.AttemptCount + 1
	now := e.now().UTC()

	md.AttemptCount = next
	md.LastAttemptAt = &now
	md.UpdatedAt = now

	err := e.dispatch(ctx, task, capa)

	d := Decision{NextAttempt: next, Err: err}
	if err == nil {
		md.SecondaryStatus = models.SecondarySuccess
		md.SecondaryWriteAt = &now
		md.FailureReason = ""
		md.NextRetryAt = nil
		md.Terminal = false
		d.Outcome = OutcomeSuccess
	} else {
		e.classify(&d, md, task, capa, err, now)
	}
	d.Metadata = md

	if perr := e.persist(ctx, md); perr != nil {
		d.PersistErr = perr
		metrics.RecordMetadataPersistError(string(md.Approach))
		logging.Ctx(ctx).Error().Err(perr).
			Str("metadata_id", md.ID).
			Str("entity_id", md.EntityID).
			Str("approach", string(md.Approach)).
			Msg("Failed to persist sync metadata")
	}

	e.observe(ctx, d, md)
	return d
}

func (e *Engine) classify(d *Decision, md *models.SyncMetadata, task models.SyncTask, capa Capability, err error, now time.Time) {
	if md.FirstFailureAt == nil {
		first := now
		md.FirstFailureAt = &first
	}
	md.SecondaryStatus = models.SecondaryFailure
	md.NextRetryAt = nil

	switch kind := index.KindOf(err); {
	case kind == index.KindConflict && capa.Fenced:
		d.Outcome = OutcomeStale
		d.Reason = ReasonStale
		md.Terminal = true
	case kind == index.KindConflict, kind == index.KindClient, kind == index.KindNotFound:
		d.Outcome = OutcomeClientFailure
		d.Reason = ExtractReason(err)
		md.Terminal = true
	case capa.Requeue && !e.policy.Exhausted(d.NextAttempt):
		d.Outcome = OutcomeRetry
		d.Reason = ExtractReason(err)
		d.Retry = true
		d.Delay = e.policy.Delay(d.NextAttempt)
		at := now.Add(d.Delay)
		md.NextRetryAt = &at
		md.Terminal = false
	case capa.Requeue:
		d.Outcome = OutcomeExhausted
		d.Reason = ExtractReason(err)
		md.Terminal = true
	default:
		d.Outcome = OutcomeTransientFailure
		d.Reason = ExtractReason(err)
		md.Terminal = true
	}
	md.FailureReason = d.Reason

	if d.Retry {
		d.Task = task.WithAttempt(d.NextAttempt)
		d.Task.Metadata = *md.Clone()
	}
}

// clientError marks a task that cannot be dispatched at all.
func clientError(reason, detail string) error {
	return &index.Error{Kind: index.KindClient, Reason: reason, Cause: errors.New(detail)}
}

func (e *Engine) dispatch(ctx context.Context, task models.SyncTask, capa Capability) error {
	id := task.DocumentID
	if id == "" && task.Document != nil {
		id = task.Document.ID
	}
	version := task.Version
	if version <= 0 && task.Document != nil {
		version = task.Document.Version
	}

	switch task.Operation {
	case models.OperationCreate, models.OperationUpdate:
		if task.Document == nil {
			return clientError(ReasonMissingDoc, fmt.Sprintf("%s task for %q carries no document", task.Operation, id))
		}
		doc := task.Document.Clone()
		doc.ID = id
		var err error
		switch {
		case capa.Fenced && task.Operation == models.OperationCreate:
			_, err = e.gateway.CreateEntityWithVersion(ctx, task.Index, id, doc, version)
		case capa.Fenced:
			_, err = e.gateway.UpdateEntityWithVersion(ctx, task.Index, id, doc, version)
		case task.Operation == models.OperationCreate:
			_, err = e.gateway.CreateEntity(ctx, task.Index, doc)
		default:
			_, err = e.gateway.UpdateEntity(ctx, task.Index, id, doc)
		}
		return err

	case models.OperationDelete:
		var err error
		if capa.Fenced {
			_, err = e.gateway.DeleteEntityWithVersion(ctx, task.Index, id, version)
		} else {
			_, err = e.gateway.DeleteEntity(ctx, task.Index, id)
		}
		if index.KindOf(err) == index.KindNotFound {
			return nil
		}
		return err

	default:
		return clientError(ReasonUnknownOp, fmt.Sprintf("unknown operation %q", task.Operation))
	}
}

func (e *Engine) persist(ctx context.Context, md *models.SyncMetadata) error {
	err := e.metadata.Update(ctx, md.ID, md)
	if errors.Is(err, metadata.ErrNotFound) {
		return e.metadata.Save(ctx, md)
	}
	return err
}

func (e *Engine) observe(ctx context.Context, d Decision, md *models.SyncMetadata) {
	approach := string(md.Approach)
	metrics.RecordOutcome(approach, string(md.Operation), string(d.Outcome))
	if md.Terminal {
		metrics.RecordTerminalFailure(approach, d.Reason)
	}

	event := logging.Ctx(ctx).Info()
	switch {
	case d.Outcome == OutcomeRetry:
		event = logging.Ctx(ctx).Warn().Dur("delay", d.Delay)
	case md.Terminal:
		event = logging.Ctx(ctx).Error()
	}
	event.
		Str("metadata_id", md.ID).
		Str("entity_id", md.EntityID).
		Str("approach", approach).
		Str("operation", string(md.Operation)).
		Int("attempt", md.AttemptCount).
		Str("outcome", string(d.Outcome)).
		Str("reason", d.Reason).
		Msg("Index sync attempt recorded")
}
