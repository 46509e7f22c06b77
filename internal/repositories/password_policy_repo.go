package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/sentinel/internal/database"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	"github.com/jackc/pgx/v5"
)

// PasswordPolicyRepository reads tenant password policies and password history
type PasswordPolicyRepository struct {
	db *database.DB
}

// NewPasswordPolicyRepository creates a new PasswordPolicyRepository
func NewPasswordPolicyRepository(db *database.DB) *PasswordPolicyRepository {
	return &PasswordPolicyRepository{db: db}
}

// GetByTenant returns models.ErrNotFound when the tenant has no policy
func (r *PasswordPolicyRepository) GetByTenant(ctx context.Context, tenantID string) (*pkgauth.PasswordPolicy, error) {
	query := `
		SELECT min_length, require_uppercase, require_lowercase, require_numbers,
		       require_special_chars, min_special_chars, max_repeated_chars,
		       prevent_common_passwords, prevent_username_in_password,
		       password_history_count, max_age_days
		FROM password_policies
		WHERE tenant_id = $1
	`

	var p pkgauth.PasswordPolicy
	err := r.db.Pool.QueryRow(ctx, query, tenantID).Scan(
		&p.MinLength, &p.RequireUppercase, &p.RequireLowercase, &p.RequireNumbers,
		&p.RequireSpecialChars, &p.MinSpecialChars, &p.MaxRepeatedChars,
		&p.PreventCommonPasswords, &p.PreventUsernameInPassword,
		&p.PasswordHistoryCount, &p.MaxAgeDays,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &p, nil
}

// RecentHashes returns the last limit password hashes of a user
func (r *PasswordPolicyRepository) RecentHashes(ctx context.Context, userID string, limit int) ([]string, error) {
	query := `
		SELECT password_hash FROM password_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query password history: %w", err)
	}
	defer rows.Close()

	hashes := make([]string, 0, limit)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan password hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// AddHash appends a hash to a user's history and drops all but the newest
// keep entries in the same transaction
func (r *PasswordPolicyRepository) AddHash(ctx context.Context, userID, hash string, keep int) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO password_history (user_id, password_hash) VALUES ($1, $2)`,
			userID, hash,
		); err != nil {
			return fmt.Errorf("failed to add password history: %w", err)
		}

		trim := `
			DELETE FROM password_history
			WHERE user_id = $1 AND id NOT IN (
				SELECT id FROM password_history
				WHERE user_id = $1
				ORDER BY created_at DESC, id
				LIMIT $2
			)
		`
		if _, err := tx.Exec(ctx, trim, userID, keep); err != nil {
			return fmt.Errorf("failed to trim password history: %w", err)
		}
		return nil
	})
}
