package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginEventRepository handles the append-only login history
type LoginEventRepository struct {
	db *database.DB
}

// NewLoginEventRepository creates a new LoginEventRepository
func NewLoginEventRepository(db *database.DB) *LoginEventRepository {
	return &LoginEventRepository{db: db}
}

const loginEventColumns = `id, user_id, ip_address, country_code, city, latitude, longitude,
		       device_fingerprint, success, created_at`

func scanLoginEvent(row rowScanner) (*models.LoginEvent, error) {
	var e models.LoginEvent
	err := row.Scan(
		&e.ID, &e.UserID, &e.IPAddress, &e.CountryCode, &e.City, &e.Latitude, &e.Longitude,
		&e.DeviceFingerprint, &e.Success, &e.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &e, nil
}

func scanLoginEvents(rows pgx.Rows) ([]*models.LoginEvent, error) {
	defer rows.Close()

	events := make([]*models.LoginEvent, 0)
	for rows.Next() {
		e, err := scanLoginEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating login event rows: %w", err)
	}
	return events, nil
}

// Create appends a login event
func (r *LoginEventRepository) Create(ctx context.Context, e *models.LoginEvent) error {
	query := `
		INSERT INTO login_events (
			id, user_id, ip_address, country_code, city, latitude, longitude,
			device_fingerprint, success, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		e.ID, e.UserID, e.IPAddress, e.CountryCode, e.City, e.Latitude, e.Longitude,
		e.DeviceFingerprint, e.Success, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create login event: %w", err)
	}
	return nil
}

// GetLastSuccessfulWithLocation returns the most recent successful login with
// coordinates before the given time, or models.ErrNotFound
func (r *LoginEventRepository) GetLastSuccessfulWithLocation(ctx context.Context, userID string, before time.Time) (*models.LoginEvent, error) {
	query := `
		SELECT ` + loginEventColumns + `
		FROM login_events
		WHERE user_id = $1 AND success = true
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		  AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanLoginEvent(r.db.Pool.QueryRow(ctx, query, userID, before))
}

// GetRecentSuccessful returns up to limit successful logins, newest first
func (r *LoginEventRepository) GetRecentSuccessful(ctx context.Context, userID string, limit int) ([]*models.LoginEvent, error) {
	query := `
		SELECT ` + loginEventColumns + `
		FROM login_events
		WHERE user_id = $1 AND success = true
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login events: %w", err)
	}
	return scanLoginEvents(rows)
}

// DeleteOlderThan prunes history past the retention period
func (r *LoginEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM login_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune login events: %w", err)
	}
	return result.RowsAffected(), nil
}
