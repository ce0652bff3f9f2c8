// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package index is the secondary search index gateway.
//
// Two implementations are provided: ElasticGateway speaks the Elasticsearch
// document API over HTTP and MemoryIndex keeps documents in process. Both
// report failures as *Error with a Kind.
package index

import (
	"context"

	"github.com/tomtom215/indexsync/internal/models"
)

// Gateway is the CRUD contract of the search index.
//
// Plain writes overwrite. Versioned writes carry an external version and fail
// with KindConflict when the stored version is greater than or equal to it.
// Deletes return true for both "deleted" and "not found".
type Gateway interface {
	CreateEntity(ctx context.Context, index string, e *models.Entity) (*models.Entity, error)
	UpdateEntity(ctx context.Context, index, id string, e *models.Entity) (*models.Entity, error)
	DeleteEntity(ctx context.Context, index, id string) (bool, error)

	CreateEntityWithVersion(ctx context.Context, index, id string, e *models.Entity, version int64) (*models.Entity, error)
	UpdateEntityWithVersion(ctx context.Context, index, id string, e *models.Entity, version int64) (*models.Entity, error)
	DeleteEntityWithVersion(ctx context.Context, index, id string, version int64) (bool, error)
}

// Op names a gateway call for metrics and fault injection.
type Op string

const (
	OpCreate          Op = "create"
	OpUpdate          Op = "update"
	OpDelete          Op = "delete"
	OpCreateVersioned Op = "create_versioned"
	OpUpdateVersioned Op = "update_versioned"
	OpDeleteVersioned Op = "delete_versioned"
)
