// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package wal

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/indexsync/internal/logging"
)

// Sender delivers a serialized message to the broker.
type Sender interface {
	Send(ctx context.Context, topic, key string, payload []byte) error
}

// Outbox publishes through the WAL: write, publish, confirm. A nil WAL
// publishes directly.
type Outbox struct {
	wal    *BadgerWAL
	sender Sender
	holder string
}

// NewOutbox creates an outbox. w may be nil.
func NewOutbox(w *BadgerWAL, sender Sender) *Outbox {
	return &Outbox{wal: w, sender: sender, holder: "outbox-" + uuid.New().String()[:8]}
}

// Publish durably hands a message to the broker. Once the WAL write succeeds
// Publish returns nil even if the broker is unreachable: the entry stays
// pending and the retry loop publishes it.
func (o *Outbox) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if o.wal == nil {
		return o.sender.Send(ctx, topic, key, payload)
	}

	id, err := o.wal.Write(ctx, topic, key, payload)
	if err != nil {
		return fmt.Errorf("outbox write: %w", err)
	}
	if ok, err := o.wal.TryClaim(ctx, id, o.holder); err != nil || !ok {
		// The retry loop owns it now.
		return nil
	}

	if err := o.sender.Send(ctx, topic, key, payload); err != nil {
		walPublishFailures.Inc()
		logging.Ctx(ctx).Warn().Err(err).
			Str("entry_id", id).
			Str("topic", topic).
			Str("key", key).
			Msg("Publish failed, left in outbox for retry")
		if uerr := o.wal.UpdateAttempt(ctx, id, err.Error()); uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Str("entry_id", id).Msg("Recording outbox attempt failed")
		}
		return nil
	}

	if err := o.wal.Confirm(ctx, id); err != nil {
		// The message is out; a later retry pass republishes it and the
		// consumer drops the duplicate.
		logging.Ctx(ctx).Warn().Err(err).Str("entry_id", id).Msg("Outbox confirm failed")
	}
	return nil
}

// PublishEntry lets the retry loop republish through the same sender.
func (o *Outbox) PublishEntry(ctx context.Context, entry *Entry) error {
	return o.sender.Send(ctx, entry.Topic, entry.Key, entry.Payload)
}

// Durable reports whether publishes go through the WAL.
func (o *Outbox) Durable() bool {
	return o.wal != nil
}
