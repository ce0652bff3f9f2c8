// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/models"
)

const selectColumns = `id, entity_id, approach, operation, operation_seq, entity_version,
	primary_status, primary_write_at, secondary_status, secondary_write_at,
	first_failure_at, last_attempt_at, next_retry_at, attempt_count,
	failure_reason, terminal, updated_at`

// SQLStore persists metadata in the sync_metadata table. Queries use $n
// placeholders, which both DuckDB and Postgres accept.
type SQLStore struct {
	db *database.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the store. Call CreateTable before use.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateTable creates the sync_metadata table and its lookup index.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	err := s.db.ExecSchema(ctx,
		`CREATE TABLE IF NOT EXISTS sync_metadata (
			id VARCHAR PRIMARY KEY,
			entity_id VARCHAR NOT NULL,
			approach VARCHAR NOT NULL,
			operation VARCHAR NOT NULL,
			operation_seq BIGINT NOT NULL DEFAULT 0,
			entity_version BIGINT NOT NULL DEFAULT 0,
			primary_status VARCHAR NOT NULL,
			primary_write_at TIMESTAMPTZ NOT NULL,
			secondary_status VARCHAR NOT NULL,
			secondary_write_at TIMESTAMPTZ,
			first_failure_at TIMESTAMPTZ,
			last_attempt_at TIMESTAMPTZ,
			next_retry_at TIMESTAMPTZ,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			failure_reason VARCHAR NOT NULL DEFAULT '',
			terminal BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_metadata_entity ON sync_metadata(entity_id, approach)`,
	)
	if err != nil {
		return err
	}
	logging.Info().Msg("Sync metadata table created/verified")
	return nil
}

func (s *SQLStore) Save(ctx context.Context, md *models.SyncMetadata) error {
	if md == nil {
		return nil
	}
	if err := validate(md); err != nil {
		return err
	}

	query := `
		INSERT INTO sync_metadata (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := s.db.ExecContext(ctx, query,
		md.ID,
		md.EntityID,
		string(md.Approach),
		string(md.Operation),
		md.OperationSeq,
		md.EntityVersion,
		primaryStatus(md),
		md.PrimaryWriteAt.UTC(),
		string(md.SecondaryStatus),
		nullTime(md.SecondaryWriteAt),
		nullTime(md.FirstFailureAt),
		nullTime(md.LastAttemptAt),
		nullTime(md.NextRetryAt),
		md.AttemptCount,
		md.FailureReason,
		md.Terminal,
		updatedAt(md),
	)
	if database.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to save sync metadata: %w", err)
	}
	return nil
}

// Update rewrites the record's state. The lineage identity (entity, approach
// and operation) is fixed at Save and not changed here.
func (s *SQLStore) Update(ctx context.Context, id string, md *models.SyncMetadata) error {
	if md == nil {
		return ErrInvalidRecord
	}

	query := `
		UPDATE sync_metadata SET
			operation_seq = $2,
			entity_version = $3,
			primary_status = $4,
			primary_write_at = $5,
			secondary_status = $6,
			secondary_write_at = $7,
			first_failure_at = $8,
			last_attempt_at = $9,
			next_retry_at = $10,
			attempt_count = $11,
			failure_reason = $12,
			terminal = $13,
			updated_at = $14
		WHERE id = $1
	`
	var result sql.Result
	err := database.RetryOnConflict(ctx, 3, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			id,
			md.OperationSeq,
			md.EntityVersion,
			primaryStatus(md),
			md.PrimaryWriteAt.UTC(),
			string(md.SecondaryStatus),
			nullTime(md.SecondaryWriteAt),
			nullTime(md.FirstFailureAt),
			nullTime(md.LastAttemptAt),
			nullTime(md.NextRetryAt),
			md.AttemptCount,
			md.FailureReason,
			md.Terminal,
			updatedAt(md),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to update sync metadata: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get updated count: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*models.SyncMetadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sync_metadata WHERE id = $1`, id)
	return scanOne(row)
}

func (s *SQLStore) LatestOperationSeq(ctx context.Context, entityID string, approach models.Approach) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(operation_seq) FROM sync_metadata WHERE entity_id = $1 AND approach = $2`,
		entityID, string(approach),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest operation seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]*models.SyncMetadata, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.EntityID != "" {
		where = append(where, "entity_id = "+arg(f.EntityID))
	}
	if f.Status != "" {
		where = append(where, "secondary_status = "+arg(string(f.Status)))
	}
	if len(f.Approaches) > 0 {
		ph := make([]string, len(f.Approaches))
		for i, a := range f.Approaches {
			ph[i] = arg(string(a))
		}
		where = append(where, "approach IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Terminal != nil {
		where = append(where, "terminal = "+arg(*f.Terminal))
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < "+arg(f.UpdatedBefore.UTC()))
	}

	query := `SELECT ` + selectColumns + ` FROM sync_metadata`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at ASC, id ASC LIMIT ` + arg(f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync metadata: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SyncMetadata, 0)
	for rows.Next() {
		md, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOne(row *sql.Row) (*models.SyncMetadata, error) {
	md, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return md, err
}

func scan(row scanner) (*models.SyncMetadata, error) {
	var (
		md                                           models.SyncMetadata
		approach, operation, status                  string
		secondaryAt, firstFailure, lastAttempt, next sql.NullTime
	)
	err := row.Scan(
		&md.ID,
		&md.EntityID,
		&approach,
		&operation,
		&md.OperationSeq,
		&md.EntityVersion,
		&md.PrimaryStatus,
		&md.PrimaryWriteAt,
		&status,
		&secondaryAt,
		&firstFailure,
		&lastAttempt,
		&next,
		&md.AttemptCount,
		&md.FailureReason,
		&md.Terminal,
		&md.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync metadata: %w", err)
	}

	md.Approach = models.Approach(approach)
	md.Operation = models.OperationKind(operation)
	md.SecondaryStatus = models.SecondaryStatus(status)
	md.PrimaryWriteAt = md.PrimaryWriteAt.UTC()
	md.UpdatedAt = md.UpdatedAt.UTC()
	md.SecondaryWriteAt = fromNullTime(secondaryAt)
	md.FirstFailureAt = fromNullTime(firstFailure)
	md.LastAttemptAt = fromNullTime(lastAttempt)
	md.NextRetryAt = fromNullTime(next)
	return &md, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func primaryStatus(md *models.SyncMetadata) string {
	if md.PrimaryStatus == "" {
		return models.PrimaryStatusSuccess
	}
	return md.PrimaryStatus
}

func updatedAt(md *models.SyncMetadata) time.Time {
	if md.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return md.UpdatedAt.UTC()
}
