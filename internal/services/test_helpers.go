package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	"github.com/google/uuid"
)

// MockAuditor records every audit entry
type MockAuditor struct {
	mu      sync.Mutex
	Entries []*models.AuditLog
}

func (m *MockAuditor) Record(ctx context.Context, entry *models.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

// EventTypes returns the recorded event types in order
func (m *MockAuditor) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		types = append(types, e.EventType)
	}
	return types
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	CreateFunc func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListFunc   func(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	return log, nil
}

func (m *MockAuditLogRepository) List(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, eventType, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

// MockFailureRecordRepository implements FailureRecordRepository for testing
type MockFailureRecordRepository struct {
	UpsertFunc func(ctx context.Context, rec *models.FailureRecord) error
	ClearFunc  func(ctx context.Context, identifier string) error
}

func (m *MockFailureRecordRepository) Upsert(ctx context.Context, rec *models.FailureRecord) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, rec)
	}
	return nil
}

func (m *MockFailureRecordRepository) Clear(ctx context.Context, identifier string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, identifier)
	}
	return nil
}

// MockLoginEventRepository is an in-memory LoginEventRepository. Set the
// Func fields to inject failures.
type MockLoginEventRepository struct {
	mu     sync.Mutex
	Events []*models.LoginEvent

	GetLastFunc   func(ctx context.Context, userID string, before time.Time) (*models.LoginEvent, error)
	GetRecentFunc func(ctx context.Context, userID string, limit int) ([]*models.LoginEvent, error)
}

func (m *MockLoginEventRepository) Create(ctx context.Context, e *models.LoginEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockLoginEventRepository) GetLastSuccessfulWithLocation(ctx context.Context, userID string, before time.Time) (*models.LoginEvent, error) {
	if m.GetLastFunc != nil {
		return m.GetLastFunc(ctx, userID, before)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.LoginEvent
	for _, e := range m.Events {
		if e.UserID != userID || !e.Success || !e.HasLocation() || e.CreatedAt.After(before) {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	return latest, nil
}

func (m *MockLoginEventRepository) GetRecentSuccessful(ctx context.Context, userID string, limit int) ([]*models.LoginEvent, error) {
	if m.GetRecentFunc != nil {
		return m.GetRecentFunc(ctx, userID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.LoginEvent, 0, limit)
	for i := len(m.Events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.Events[i]
		if e.UserID == userID && e.Success {
			out = append(out, e)
		}
	}
	return out, nil
}

// MockAnomalyRepository is an in-memory AnomalyRepository
type MockAnomalyRepository struct {
	mu        sync.Mutex
	Anomalies []*models.AnomalyRecord

	ListUnresolvedFunc func(ctx context.Context, userID string) ([]*models.AnomalyRecord, error)
}

func (m *MockAnomalyRepository) Create(ctx context.Context, a *models.AnomalyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Anomalies = append(m.Anomalies, a)
	return nil
}

func (m *MockAnomalyRepository) ListUnresolved(ctx context.Context, userID string) ([]*models.AnomalyRecord, error) {
	if m.ListUnresolvedFunc != nil {
		return m.ListUnresolvedFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.AnomalyRecord, 0)
	for _, a := range m.Anomalies {
		if a.UserID == userID && a.ResolvedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// MockIPLookup implements IPLookup for testing
type MockIPLookup struct {
	LookupFunc func(ctx context.Context, ip string) (*models.IPInfo, error)
}

func (m *MockIPLookup) Lookup(ctx context.Context, ip string) (*models.IPInfo, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, ip)
	}
	return &models.IPInfo{CountryCode: "US", Country: "United States"}, nil
}

// MockGeoRuleRepository is an in-memory GeoRuleRepository
type MockGeoRuleRepository struct {
	mu    sync.Mutex
	Rules []*models.GeoAccessRule
	Logs  []*models.GeoAccessLog

	FindFunc func(ctx context.Context, countryCode string, tenantID *string) ([]*models.GeoAccessRule, error)
}

func (m *MockGeoRuleRepository) FindForCountry(ctx context.Context, countryCode string, tenantID *string) ([]*models.GeoAccessRule, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, countryCode, tenantID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.GeoAccessRule, 0)
	for _, r := range m.Rules {
		if r.CountryCode != countryCode {
			continue
		}
		if r.TenantID == nil || (tenantID != nil && *r.TenantID == *tenantID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockGeoRuleRepository) List(ctx context.Context, tenantID *string) ([]*models.GeoAccessRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.GeoAccessRule, 0)
	for _, r := range m.Rules {
		if (r.TenantID == nil && tenantID == nil) || (r.TenantID != nil && tenantID != nil && *r.TenantID == *tenantID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockGeoRuleRepository) Create(ctx context.Context, rule *models.GeoAccessRule) (*models.GeoAccessRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.Rules {
		sameScope := (r.TenantID == nil && rule.TenantID == nil) ||
			(r.TenantID != nil && rule.TenantID != nil && *r.TenantID == *rule.TenantID)
		if r.CountryCode == rule.CountryCode && sameScope {
			return nil, models.ErrConflict
		}
	}
	created := *rule
	created.ID = uuid.New()
	created.CreatedAt = time.Now().UTC()
	m.Rules = append(m.Rules, &created)
	return &created, nil
}

func (m *MockGeoRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.Rules {
		if r.ID == id {
			m.Rules = append(m.Rules[:i], m.Rules[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MockGeoRuleRepository) LogAccess(ctx context.Context, entry *models.GeoAccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, entry)
	return nil
}

// MockIPReputationRepository is an in-memory IPReputationRepository
type MockIPReputationRepository struct {
	mu        sync.Mutex
	Reps      map[string]*models.IPReputation
	Honeypots []*models.HoneypotInteraction

	GetFunc func(ctx context.Context, ip string) (*models.IPReputation, error)
}

func NewMockIPReputationRepository() *MockIPReputationRepository {
	return &MockIPReputationRepository{Reps: make(map[string]*models.IPReputation)}
}

func (m *MockIPReputationRepository) Get(ctx context.Context, ip string) (*models.IPReputation, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, ip)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rep, ok := m.Reps[ip]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *rep
	cp.Reasons = append([]string{}, rep.Reasons...)
	return &cp, nil
}

func (m *MockIPReputationRepository) Upsert(ctx context.Context, rep *models.IPReputation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rep
	m.Reps[rep.IPAddress] = &cp
	return nil
}

func (m *MockIPReputationRepository) RecordHoneypot(ctx context.Context, h *models.HoneypotInteraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Honeypots = append(m.Honeypots, h)
	return nil
}

// MockPasswordPolicyRepository implements PasswordPolicyRepository for testing
type MockPasswordPolicyRepository struct {
	GetByTenantFunc  func(ctx context.Context, tenantID string) (*pkgauth.PasswordPolicy, error)
	RecentHashesFunc func(ctx context.Context, userID string, limit int) ([]string, error)
	AddHashFunc      func(ctx context.Context, userID, hash string, keep int) error
}

func (m *MockPasswordPolicyRepository) GetByTenant(ctx context.Context, tenantID string) (*pkgauth.PasswordPolicy, error) {
	if m.GetByTenantFunc != nil {
		return m.GetByTenantFunc(ctx, tenantID)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasswordPolicyRepository) RecentHashes(ctx context.Context, userID string, limit int) ([]string, error) {
	if m.RecentHashesFunc != nil {
		return m.RecentHashesFunc(ctx, userID, limit)
	}
	return []string{}, nil
}

func (m *MockPasswordPolicyRepository) AddHash(ctx context.Context, userID, hash string, keep int) error {
	if m.AddHashFunc != nil {
		return m.AddHashFunc(ctx, userID, hash, keep)
	}
	return nil
}

// StaticOperationLimits returns one limit for every operation
type StaticOperationLimits struct {
	Limit models.OperationLimit
}

func (s StaticOperationLimits) OperationLimit(string) models.OperationLimit {
	return s.Limit
}

// MockLockoutManager implements LockoutManager; nil funcs report an unlocked identifier
type MockLockoutManager struct {
	TrackFailureFunc  func(ctx context.Context, identifier string, identifierType models.IdentifierType, ipAddress, reason string) (*models.LockoutResult, error)
	CheckStatusFunc   func(ctx context.Context, identifier string) (*models.LockoutStatus, error)
	ClearLockoutFunc  func(ctx context.Context, identifier, actor string) error
	ResetFailuresFunc func(ctx context.Context, identifier string) error
}

func (m *MockLockoutManager) TrackFailure(ctx context.Context, identifier string, identifierType models.IdentifierType, ipAddress, reason string) (*models.LockoutResult, error) {
	if m.TrackFailureFunc != nil {
		return m.TrackFailureFunc(ctx, identifier, identifierType, ipAddress, reason)
	}
	return &models.LockoutResult{Attempts: 1, Remaining: 4}, nil
}

func (m *MockLockoutManager) CheckStatus(ctx context.Context, identifier string) (*models.LockoutStatus, error) {
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, identifier)
	}
	return &models.LockoutStatus{}, nil
}

func (m *MockLockoutManager) ClearLockout(ctx context.Context, identifier, actor string) error {
	if m.ClearLockoutFunc != nil {
		return m.ClearLockoutFunc(ctx, identifier, actor)
	}
	return nil
}

func (m *MockLockoutManager) ResetFailures(ctx context.Context, identifier string) error {
	if m.ResetFailuresFunc != nil {
		return m.ResetFailuresFunc(ctx, identifier)
	}
	return nil
}

// MockGeoChecker implements GeoChecker; nil funcs allow
type MockGeoChecker struct {
	CheckAccessFunc func(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error)
	CheckIPFunc     func(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error)
}

func (m *MockGeoChecker) CheckAccess(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error) {
	if m.CheckAccessFunc != nil {
		return m.CheckAccessFunc(ctx, countryCode, tenantID)
	}
	return &models.GeoAccessResult{Allowed: true, Action: models.GeoAllowed, CountryCode: countryCode}, nil
}

func (m *MockGeoChecker) CheckIP(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error) {
	if m.CheckIPFunc != nil {
		return m.CheckIPFunc(ctx, ip, tenantID)
	}
	return &models.GeoAccessResult{Allowed: true, Action: models.GeoAllowed, CountryCode: "US"}, nil
}

// MockBehaviorAssessor implements BehaviorAssessor; nil func allows
type MockBehaviorAssessor struct {
	AssessFunc func(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error)
}

func (m *MockBehaviorAssessor) Assess(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error) {
	if m.AssessFunc != nil {
		return m.AssessFunc(ctx, ip, signals, networkScore)
	}
	return &models.ThreatAssessment{Allowed: true, Action: models.ActionAllow, Score: networkScore}, nil
}

// MockNetworkClassifier implements NetworkClassifier; nil func returns a clean profile
type MockNetworkClassifier struct {
	ClassifyFunc func(ctx context.Context, ip string) (*models.NetworkProfile, error)
}

func (m *MockNetworkClassifier) Classify(ctx context.Context, ip string) (*models.NetworkProfile, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, ip)
	}
	return &models.NetworkProfile{IP: ip, CountryCode: "US"}, nil
}

// MockAnomalyDetector implements AnomalyDetector; nil funcs report nothing
type MockAnomalyDetector struct {
	CheckLoginFunc      func(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error)
	ActiveAnomaliesFunc func(ctx context.Context, userID string) ([]*models.AnomalyRecord, error)
}

func (m *MockAnomalyDetector) CheckLogin(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error) {
	if m.CheckLoginFunc != nil {
		return m.CheckLoginFunc(ctx, check)
	}
	return &models.AnomalyResult{Anomalies: []*models.AnomalyRecord{}}, nil
}

func (m *MockAnomalyDetector) ActiveAnomalies(ctx context.Context, userID string) ([]*models.AnomalyRecord, error) {
	if m.ActiveAnomaliesFunc != nil {
		return m.ActiveAnomaliesFunc(ctx, userID)
	}
	return []*models.AnomalyRecord{}, nil
}
