package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
)

// FailureRecordRepository persists the durable view of failed attempts.
// Records are never deleted, only cleared.
type FailureRecordRepository struct {
	db *database.DB
}

// NewFailureRecordRepository creates a new FailureRecordRepository
func NewFailureRecordRepository(db *database.DB) *FailureRecordRepository {
	return &FailureRecordRepository{db: db}
}

// Upsert writes the current state of an identifier
func (r *FailureRecordRepository) Upsert(ctx context.Context, rec *models.FailureRecord) error {
	query := `
		INSERT INTO failure_records (
			identifier, identifier_type, attempt_count, window_start, is_locked,
			locked_until, lockout_count, last_ip_address, last_reason, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		ON CONFLICT (identifier) DO UPDATE SET
			identifier_type = EXCLUDED.identifier_type,
			attempt_count   = EXCLUDED.attempt_count,
			window_start    = EXCLUDED.window_start,
			is_locked       = EXCLUDED.is_locked,
			locked_until    = EXCLUDED.locked_until,
			lockout_count   = GREATEST(failure_records.lockout_count, EXCLUDED.lockout_count),
			last_ip_address = EXCLUDED.last_ip_address,
			last_reason     = EXCLUDED.last_reason,
			updated_at      = CURRENT_TIMESTAMP
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.Identifier,
		rec.IdentifierType,
		rec.AttemptCount,
		rec.WindowStart,
		rec.IsLocked,
		rec.LockedUntil,
		rec.LockoutCount,
		rec.LastIPAddress,
		rec.LastReason,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert failure record: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetByIdentifier returns models.ErrNotFound when no record exists
func (r *FailureRecordRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.FailureRecord, error) {
	query := `
		SELECT identifier, identifier_type, attempt_count, window_start, is_locked,
		       locked_until, lockout_count, last_ip_address, last_reason, updated_at
		FROM failure_records
		WHERE identifier = $1
	`

	var rec models.FailureRecord
	err := r.db.Pool.QueryRow(ctx, query, identifier).Scan(
		&rec.Identifier, &rec.IdentifierType, &rec.AttemptCount, &rec.WindowStart, &rec.IsLocked,
		&rec.LockedUntil, &rec.LockoutCount, &rec.LastIPAddress, &rec.LastReason, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

// Clear logically resets an identifier; it is a no-op when no record exists
func (r *FailureRecordRepository) Clear(ctx context.Context, identifier string) error {
	query := `
		UPDATE failure_records
		SET attempt_count = 0, is_locked = false, locked_until = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE identifier = $1
	`

	if _, err := r.db.Pool.Exec(ctx, query, identifier); err != nil {
		return fmt.Errorf("failed to clear failure record: %w", err)
	}
	return nil
}
