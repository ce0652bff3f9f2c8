// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/models"
)

// SQLStore persists the checkpoint in the sync_checkpoints table.
type SQLStore struct {
	db *database.DB
	id string
	mu sync.Mutex
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store for the checkpoint named id. An empty id uses
// models.DefaultCheckpointID.
func NewSQLStore(db *database.DB, id string) *SQLStore {
	if id == "" {
		id = models.DefaultCheckpointID
	}
	return &SQLStore{db: db, id: id}
}

// CreateTable creates the sync_checkpoints table if it doesn't exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	err := s.db.ExecSchema(ctx,
		`CREATE TABLE IF NOT EXISTS sync_checkpoints (
			id VARCHAR PRIMARY KEY,
			token VARCHAR NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	)
	if err != nil {
		return err
	}
	logging.Info().Str("checkpoint", s.id).Msg("Sync checkpoints table created/verified")
	return nil
}

// Load returns the stored checkpoint or ErrNotFound.
func (s *SQLStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token, updated_at FROM sync_checkpoints WHERE id = $1`, s.id,
	).Scan(&cp.ID, &cp.Token, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return &cp, nil
}

// Save upserts the checkpoint token.
func (s *SQLStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sync_checkpoints (id, token, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			token = EXCLUDED.token,
			updated_at = EXCLUDED.updated_at
	`
	err := database.RetryOnConflict(ctx, 3, func() error {
		_, err := s.db.ExecContext(ctx, query, s.id, token, time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
