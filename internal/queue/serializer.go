// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package queue

import (
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/indexsync/internal/models"
)

// Message metadata keys set on every task message.
const (
	MetaMetadataID = "metadata_id"
	MetaEntityID   = "entity_id"
	MetaApproach   = "approach"
	MetaOperation  = "operation"
	MetaAttempt    = "attempt"
)

// EncodeTask converts a task to JSON bytes.
func EncodeTask(task *models.SyncTask) ([]byte, error) {
	if task == nil {
		return nil, fmt.Errorf("encode task: nil task")
	}
	if task.Metadata.ID == "" {
		return nil, fmt.Errorf("encode task: missing metadata id")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return data, nil
}

// DecodeTask converts JSON bytes back to a task. A payload without a lineage
// id or a known operation is rejected.
func DecodeTask(data []byte) (*models.SyncTask, error) {
	var task models.SyncTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if task.Metadata.ID == "" {
		return nil, fmt.Errorf("decode task: missing metadata id")
	}
	if !task.Operation.Valid() {
		return nil, fmt.Errorf("decode task: unknown operation %q", task.Operation)
	}
	return &task, nil
}

// MessageKey is the deterministic message id of one attempt of a lineage.
// Publishing the same attempt twice produces the same id, which lets
// JetStream and the consumer drop the duplicate.
func MessageKey(task *models.SyncTask) string {
	return task.Metadata.ID + ":" + strconv.Itoa(task.Metadata.AttemptCount)
}

// NewTaskMessage builds the Watermill message for a task.
func NewTaskMessage(task *models.SyncTask) (*message.Message, error) {
	data, err := EncodeTask(task)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(MessageKey(task), data)
	SetTaskMetadata(msg, task)
	return msg, nil
}

// SetTaskMetadata copies the routing fields of task into msg metadata.
func SetTaskMetadata(msg *message.Message, task *models.SyncTask) {
	msg.Metadata.Set(MetaMetadataID, task.Metadata.ID)
	msg.Metadata.Set(MetaEntityID, task.Metadata.EntityID)
	msg.Metadata.Set(MetaApproach, string(task.Metadata.Approach))
	msg.Metadata.Set(MetaOperation, string(task.Operation))
	msg.Metadata.Set(MetaAttempt, strconv.Itoa(task.Metadata.AttemptCount))
}
