package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds operator claims to request context
func WithAdminContext(req *http.Request, subject string) *http.Request {
	claims := &models.TokenClaims{
		Type:             models.TokenTypeAccess,
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// TestLogger discards log output
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockRiskEvaluator implements RiskEvaluator and LockoutClearer for testing
type MockRiskEvaluator struct {
	EvaluateFunc     func(ctx context.Context, rc models.RiskContext) (*models.RiskDecision, error)
	TrackFailureFunc func(ctx context.Context, rc models.RiskContext, reason string) (*models.LockoutResult, error)
	ClearLockoutFunc func(ctx context.Context, rc models.RiskContext, actor string) error
	StatusFunc       func(ctx context.Context, rc models.RiskContext) (*models.RiskStatus, error)
}

func (m *MockRiskEvaluator) Evaluate(ctx context.Context, rc models.RiskContext) (*models.RiskDecision, error) {
	if m.EvaluateFunc == nil {
		return &models.RiskDecision{Allowed: true, Action: models.ActionAllow}, nil
	}
	return m.EvaluateFunc(ctx, rc)
}

func (m *MockRiskEvaluator) TrackFailure(ctx context.Context, rc models.RiskContext, reason string) (*models.LockoutResult, error) {
	if m.TrackFailureFunc == nil {
		return &models.LockoutResult{Attempts: 1, Remaining: 4}, nil
	}
	return m.TrackFailureFunc(ctx, rc, reason)
}

func (m *MockRiskEvaluator) ClearLockout(ctx context.Context, rc models.RiskContext, actor string) error {
	if m.ClearLockoutFunc == nil {
		return nil
	}
	return m.ClearLockoutFunc(ctx, rc, actor)
}

func (m *MockRiskEvaluator) Status(ctx context.Context, rc models.RiskContext) (*models.RiskStatus, error) {
	if m.StatusFunc == nil {
		return &models.RiskStatus{Anomalies: []*models.AnomalyRecord{}}, nil
	}
	return m.StatusFunc(ctx, rc)
}

// MockRateLimiter implements RateLimiter for testing
type MockRateLimiter struct {
	CheckAndConsumeFunc func(ctx context.Context, operation, callerKey string) (*models.RateLimitResult, error)
	ResetFunc           func(ctx context.Context, operation, callerKey string) error
}

func (m *MockRateLimiter) CheckAndConsume(ctx context.Context, operation, callerKey string) (*models.RateLimitResult, error) {
	if m.CheckAndConsumeFunc == nil {
		return &models.RateLimitResult{Allowed: true, Remaining: 9}, nil
	}
	return m.CheckAndConsumeFunc(ctx, operation, callerKey)
}

func (m *MockRateLimiter) Reset(ctx context.Context, operation, callerKey string) error {
	if m.ResetFunc == nil {
		return nil
	}
	return m.ResetFunc(ctx, operation, callerKey)
}

// MockPasswordValidator implements PasswordValidator for testing
type MockPasswordValidator struct {
	ValidateFunc func(ctx context.Context, tenantID, userID, username, password string) (*pkgauth.ValidationResult, error)
	GenerateFunc func(length int) (string, error)
	RecordFunc   func(ctx context.Context, userID, password string) error
}

func (m *MockPasswordValidator) Validate(ctx context.Context, tenantID, userID, username, password string) (*pkgauth.ValidationResult, error) {
	if m.ValidateFunc == nil {
		return &pkgauth.ValidationResult{IsValid: true, Errors: []string{}, Strength: "strong", Score: 90}, nil
	}
	return m.ValidateFunc(ctx, tenantID, userID, username, password)
}

func (m *MockPasswordValidator) Generate(length int) (string, error) {
	if m.GenerateFunc == nil {
		return "", models.ErrBadRequest
	}
	return m.GenerateFunc(length)
}

func (m *MockPasswordValidator) RecordPassword(ctx context.Context, userID, password string) error {
	if m.RecordFunc == nil {
		return nil
	}
	return m.RecordFunc(ctx, userID, password)
}

// MockNetworkClassifier implements NetworkClassifier for testing
type MockNetworkClassifier struct {
	ClassifyFunc func(ctx context.Context, ip string) (*models.NetworkProfile, error)
}

func (m *MockNetworkClassifier) Classify(ctx context.Context, ip string) (*models.NetworkProfile, error) {
	if m.ClassifyFunc == nil {
		return &models.NetworkProfile{IP: ip, CountryCode: models.UnknownCountryCode}, nil
	}
	return m.ClassifyFunc(ctx, ip)
}

// MockGeoService implements GeoAccessChecker and GeoRuleManager for testing
type MockGeoService struct {
	CheckAccessFunc func(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error)
	CheckIPFunc     func(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error)
	ListRulesFunc   func(ctx context.Context, tenantID *string) ([]*models.GeoAccessRule, error)
	CreateRuleFunc  func(ctx context.Context, rule *models.GeoAccessRule, actor string) (*models.GeoAccessRule, error)
	DeleteRuleFunc  func(ctx context.Context, id uuid.UUID, actor string) error
}

func (m *MockGeoService) CheckAccess(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error) {
	if m.CheckAccessFunc == nil {
		return &models.GeoAccessResult{Allowed: true, Action: models.GeoAllowed, CountryCode: countryCode}, nil
	}
	return m.CheckAccessFunc(ctx, countryCode, tenantID)
}

func (m *MockGeoService) CheckIP(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error) {
	if m.CheckIPFunc == nil {
		return &models.GeoAccessResult{Allowed: true, Action: models.GeoAllowed, CountryCode: models.UnknownCountryCode}, nil
	}
	return m.CheckIPFunc(ctx, ip, tenantID)
}

func (m *MockGeoService) ListRules(ctx context.Context, tenantID *string) ([]*models.GeoAccessRule, error) {
	if m.ListRulesFunc == nil {
		return nil, nil
	}
	return m.ListRulesFunc(ctx, tenantID)
}

func (m *MockGeoService) CreateRule(ctx context.Context, rule *models.GeoAccessRule, actor string) (*models.GeoAccessRule, error) {
	if m.CreateRuleFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateRuleFunc(ctx, rule, actor)
}

func (m *MockGeoService) DeleteRule(ctx context.Context, id uuid.UUID, actor string) error {
	if m.DeleteRuleFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteRuleFunc(ctx, id, actor)
}

// MockAuditLister implements AuditLister for testing
type MockAuditLister struct {
	ListFunc func(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error)
}

func (m *MockAuditLister) List(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error) {
	if m.ListFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.ListFunc(ctx, eventType, limit, offset)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
