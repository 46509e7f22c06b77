package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
)

// IPReputationRepository tracks threat scores and blocks per IP address
type IPReputationRepository struct {
	db *database.DB
}

// NewIPReputationRepository creates a new IPReputationRepository
func NewIPReputationRepository(db *database.DB) *IPReputationRepository {
	return &IPReputationRepository{db: db}
}

// Get returns models.ErrNotFound for unseen addresses
func (r *IPReputationRepository) Get(ctx context.Context, ip string) (*models.IPReputation, error) {
	query := `
		SELECT ip_address, threat_score, blocked_until, reasons, last_seen
		FROM ip_reputation
		WHERE ip_address = $1
	`

	var rep models.IPReputation
	err := r.db.Pool.QueryRow(ctx, query, ip).Scan(
		&rep.IPAddress, &rep.ThreatScore, &rep.BlockedUntil, &rep.Reasons, &rep.LastSeen,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rep, nil
}

// Upsert replaces the reputation of an address
func (r *IPReputationRepository) Upsert(ctx context.Context, rep *models.IPReputation) error {
	query := `
		INSERT INTO ip_reputation (ip_address, threat_score, blocked_until, reasons, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ip_address) DO UPDATE SET
			threat_score  = EXCLUDED.threat_score,
			blocked_until = EXCLUDED.blocked_until,
			reasons       = EXCLUDED.reasons,
			last_seen     = EXCLUDED.last_seen
	`

	reasons := rep.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	_, err := r.db.Pool.Exec(ctx, query, rep.IPAddress, rep.ThreatScore, rep.BlockedUntil, reasons, rep.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert ip reputation: %w", err)
	}
	return nil
}

// RecordHoneypot stores a honeypot interaction
func (r *IPReputationRepository) RecordHoneypot(ctx context.Context, h *models.HoneypotInteraction) error {
	query := `
		INSERT INTO honeypot_interactions (id, ip_address, field_name, value, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.Pool.Exec(ctx, query, h.ID, h.IPAddress, h.FieldName, h.Value, h.CreatedAt); err != nil {
		return fmt.Errorf("failed to record honeypot interaction: %w", err)
	}
	return nil
}

// ExpireBlocks clears elapsed blocks and decays idle scores
func (r *IPReputationRepository) ExpireBlocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE ip_reputation
		SET blocked_until = NULL, threat_score = 0
		WHERE blocked_until IS NOT NULL AND blocked_until <= $1
	`

	result, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire ip reputation blocks: %w", err)
	}
	return result.RowsAffected(), nil
}
