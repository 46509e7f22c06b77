package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
)

// GeoRuleRepository reads and manages geo access rules and writes the access log
type GeoRuleRepository struct {
	db *database.DB
}

// NewGeoRuleRepository creates a new GeoRuleRepository
func NewGeoRuleRepository(db *database.DB) *GeoRuleRepository {
	return &GeoRuleRepository{db: db}
}

func scanGeoRule(row rowScanner) (*models.GeoAccessRule, error) {
	var rule models.GeoAccessRule
	if err := row.Scan(&rule.ID, &rule.CountryCode, &rule.Action, &rule.TenantID, &rule.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rule, nil
}

// FindForCountry returns the global rule and, when tenantID is set, the
// tenant rule for a country
func (r *GeoRuleRepository) FindForCountry(ctx context.Context, countryCode string, tenantID *string) ([]*models.GeoAccessRule, error) {
	query := `
		SELECT id, country_code, action, tenant_id, created_at
		FROM geo_access_rules
		WHERE country_code = $1 AND (tenant_id IS NULL OR tenant_id = $2)
	`

	rows, err := r.db.Pool.Query(ctx, query, countryCode, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query geo rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.GeoAccessRule, 0, 2)
	for rows.Next() {
		rule, err := scanGeoRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan geo rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating geo rule rows: %w", err)
	}
	return rules, nil
}

// List returns all rules for a tenant, or the global rules when tenantID is nil
func (r *GeoRuleRepository) List(ctx context.Context, tenantID *string) ([]*models.GeoAccessRule, error) {
	query := `
		SELECT id, country_code, action, tenant_id, created_at
		FROM geo_access_rules
		WHERE tenant_id IS NOT DISTINCT FROM $1
		ORDER BY country_code
	`

	rows, err := r.db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list geo rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.GeoAccessRule, 0)
	for rows.Next() {
		rule, err := scanGeoRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan geo rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create inserts a rule; a duplicate country for the same scope is models.ErrConflict
func (r *GeoRuleRepository) Create(ctx context.Context, rule *models.GeoAccessRule) (*models.GeoAccessRule, error) {
	query := `
		INSERT INTO geo_access_rules (country_code, action, tenant_id)
		VALUES ($1, $2, $3)
		RETURNING id, country_code, action, tenant_id, created_at
	`

	created, err := scanGeoRule(r.db.Pool.QueryRow(ctx, query, rule.CountryCode, rule.Action, rule.TenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to create geo rule: %w", err)
	}
	return created, nil
}

// Delete removes a rule by ID
func (r *GeoRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM geo_access_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete geo rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// LogAccess records one geo check
func (r *GeoRuleRepository) LogAccess(ctx context.Context, entry *models.GeoAccessLog) error {
	query := `
		INSERT INTO geo_access_logs (id, ip_address, country_code, tenant_id, action, allowed, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID, entry.IPAddress, entry.CountryCode, entry.TenantID,
		entry.Action, entry.Allowed, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write geo access log: %w", err)
	}
	return nil
}

// DeleteLogsOlderThan prunes geo access logs created before cutoff
func (r *GeoRuleRepository) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM geo_access_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup geo access logs: %w", err)
	}
	return result.RowsAffected(), nil
}
