package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPasswordService(t *testing.T, repo *services.MockPasswordPolicyRepository) *services.PasswordService {
	t.Helper()
	rules, err := config.NewRulesStore("", testLogger())
	require.NoError(t, err)
	return services.NewPasswordService(repo, rules, testLogger())
}

func TestPasswordService_Validate(t *testing.T) {
	svc := newPasswordService(t, &services.MockPasswordPolicyRepository{})
	ctx := context.Background()

	res, err := svc.Validate(ctx, "", "", "", "Password1!")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "Password is too common and easily guessed")

	res, err = svc.Validate(ctx, "", "", "", "Tr0ub4dor&3xY!")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, pkgauth.StrengthVeryStrong, res.Strength)
}

func TestPasswordService_TenantPolicy(t *testing.T) {
	relaxed := pkgauth.PasswordPolicy{MinLength: 6, RequireLowercase: true}
	repo := &services.MockPasswordPolicyRepository{
		GetByTenantFunc: func(ctx context.Context, tenantID string) (*pkgauth.PasswordPolicy, error) {
			switch tenantID {
			case "relaxed":
				return &relaxed, nil
			case "broken":
				return &pkgauth.PasswordPolicy{MinLength: 0}, nil
			case "down":
				return nil, errors.New("connection refused")
			}
			return nil, models.ErrNotFound
		},
	}
	svc := newPasswordService(t, repo)
	ctx := context.Background()

	assert.Equal(t, relaxed, svc.Policy(ctx, "relaxed"))
	assert.Equal(t, pkgauth.DefaultPasswordPolicy(), svc.Policy(ctx, "unknown"))
	assert.Equal(t, pkgauth.DefaultPasswordPolicy(), svc.Policy(ctx, "broken"))
	assert.Equal(t, pkgauth.DefaultPasswordPolicy(), svc.Policy(ctx, "down"))

	res, err := svc.Validate(ctx, "relaxed", "", "", "gardenia")
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", res.Errors)

	res, err = svc.Validate(ctx, "unknown", "", "", "gardenia")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
}

func TestPasswordService_History(t *testing.T) {
	const previous = "Tr0ub4dor&3xY!"
	hash, err := pkgauth.HashPassword(previous)
	require.NoError(t, err)

	var gotLimit int
	repo := &services.MockPasswordPolicyRepository{
		RecentHashesFunc: func(ctx context.Context, userID string, limit int) ([]string, error) {
			gotLimit = limit
			if userID == "user-1" {
				return []string{hash}, nil
			}
			return []string{}, nil
		},
	}
	svc := newPasswordService(t, repo)
	ctx := context.Background()

	res, err := svc.Validate(ctx, "", "user-1", "", previous)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "Password was used recently")
	assert.Equal(t, pkgauth.DefaultPasswordPolicy().PasswordHistoryCount, gotLimit)

	res, err = svc.Validate(ctx, "", "user-2", "", previous)
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	res, err = svc.Validate(ctx, "", "user-1", "", "N3w&Differ3nt!x")
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", res.Errors)
}

func TestPasswordService_HistoryLookupFailureIgnored(t *testing.T) {
	repo := &services.MockPasswordPolicyRepository{
		RecentHashesFunc: func(ctx context.Context, userID string, limit int) ([]string, error) {
			return nil, errors.New("timeout")
		},
	}
	svc := newPasswordService(t, repo)

	res, err := svc.Validate(context.Background(), "", "user-1", "", "Tr0ub4dor&3xY!")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestPasswordService_RecordPassword(t *testing.T) {
	var stored string
	var kept int
	repo := &services.MockPasswordPolicyRepository{
		AddHashFunc: func(ctx context.Context, userID, hash string, keep int) error {
			stored = hash
			kept = keep
			return nil
		},
	}
	svc := newPasswordService(t, repo)
	ctx := context.Background()

	require.NoError(t, svc.RecordPassword(ctx, "user-1", "Tr0ub4dor&3xY!"))
	assert.NotEqual(t, "Tr0ub4dor&3xY!", stored)
	assert.NoError(t, pkgauth.ComparePassword(stored, "Tr0ub4dor&3xY!"))
	assert.Equal(t, pkgauth.MaxPasswordHistory, kept)

	assert.ErrorIs(t, svc.RecordPassword(ctx, "", "Tr0ub4dor&3xY!"), models.ErrBadRequest)
}

func TestPasswordService_Generate(t *testing.T) {
	svc := newPasswordService(t, &services.MockPasswordPolicyRepository{})

	pw, err := svc.Generate(16)
	require.NoError(t, err)
	assert.Len(t, pw, 16)

	_, err = svc.Generate(3)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
