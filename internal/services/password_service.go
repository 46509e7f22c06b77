package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/sentinel/internal/models"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
)

// PasswordPolicyRepository reads tenant policies and password history
type PasswordPolicyRepository interface {
	GetByTenant(ctx context.Context, tenantID string) (*pkgauth.PasswordPolicy, error)
	RecentHashes(ctx context.Context, userID string, limit int) ([]string, error)
	AddHash(ctx context.Context, userID, hash string, keep int) error
}

// CommonPasswordSource supplies the current common password list
type CommonPasswordSource interface {
	CommonPasswords() *pkgauth.CommonPasswordList
}

const reusedPasswordError = "Password was used recently"

// PasswordService validates passwords against tenant policy and history
type PasswordService struct {
	repo   PasswordPolicyRepository
	common CommonPasswordSource
	logger *slog.Logger
}

// NewPasswordService creates a new PasswordService
func NewPasswordService(repo PasswordPolicyRepository, common CommonPasswordSource, logger *slog.Logger) *PasswordService {
	return &PasswordService{
		repo:   repo,
		common: common,
		logger: logger,
	}
}

// Policy returns the tenant policy or the default policy
func (s *PasswordService) Policy(ctx context.Context, tenantID string) pkgauth.PasswordPolicy {
	if tenantID == "" {
		return pkgauth.DefaultPasswordPolicy()
	}

	policy, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.WarnContext(ctx, "password policy lookup failed, using default",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
		}
		return pkgauth.DefaultPasswordPolicy()
	}
	if err := policy.Validate(); err != nil {
		s.logger.WarnContext(ctx, "stored password policy invalid, using default",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return pkgauth.DefaultPasswordPolicy()
	}
	return *policy
}

// Validate checks password against the tenant policy and, when userID is
// set, against the user's recent passwords
func (s *PasswordService) Validate(ctx context.Context, tenantID, userID, username, password string) (*pkgauth.ValidationResult, error) {
	policy := s.Policy(ctx, tenantID)
	result := pkgauth.ValidatePassword(password, policy, username, s.common.CommonPasswords())

	if userID == "" || policy.PasswordHistoryCount == 0 {
		return &result, nil
	}

	hashes, err := s.repo.RecentHashes(ctx, userID, policy.PasswordHistoryCount)
	if err != nil {
		s.logger.WarnContext(ctx, "password history lookup failed",
			slog.String("collaborator", "password_history"),
			slog.Any("error", err),
		)
		return &result, nil
	}

	reused, err := pkgauth.MatchesHistory(password, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to check password history: %w", err)
	}
	if reused {
		result.Errors = append(result.Errors, reusedPasswordError)
		result.IsValid = false
	}

	return &result, nil
}

// RecordPassword adds the hash of password to the user's history. History is
// trimmed to the largest count any policy may check.
func (s *PasswordService) RecordPassword(ctx context.Context, userID, password string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required: %w", models.ErrBadRequest)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrBadRequest, err)
	}
	return s.repo.AddHash(ctx, userID, hash, pkgauth.MaxPasswordHistory)
}

// Generate returns a random password containing every character class
func (s *PasswordService) Generate(length int) (string, error) {
	pw, err := pkgauth.GenerateSecurePassword(length)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrBadRequest, err)
	}
	return pw, nil
}
