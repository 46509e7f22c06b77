package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
)

// AnomalyRepository stores anomaly records
type AnomalyRepository struct {
	db *database.DB
}

// NewAnomalyRepository creates a new AnomalyRepository
func NewAnomalyRepository(db *database.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

func (r *AnomalyRepository) Create(ctx context.Context, a *models.AnomalyRecord) error {
	query := `
		INSERT INTO anomalies (id, user_id, anomaly_type, severity, details, source_ip, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb), $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		a.ID, a.UserID, a.Type, a.Severity, a.Details, a.SourceIP, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create anomaly: %w", database.MapPostgresError(err))
	}
	return nil
}

// ListUnresolved returns open anomalies for a user, newest first
func (r *AnomalyRepository) ListUnresolved(ctx context.Context, userID string) ([]*models.AnomalyRecord, error) {
	query := `
		SELECT id, user_id, anomaly_type, severity, details, source_ip, created_at, resolved_at
		FROM anomalies
		WHERE user_id = $1 AND resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT 50
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	anomalies := make([]*models.AnomalyRecord, 0)
	for rows.Next() {
		var a models.AnomalyRecord
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Severity, &a.Details, &a.SourceIP, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomalies = append(anomalies, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomaly rows: %w", err)
	}

	return anomalies, nil
}
