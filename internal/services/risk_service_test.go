package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type riskFixture struct {
	lockout  *services.MockLockoutManager
	geo      *services.MockGeoChecker
	behavior *services.MockBehaviorAssessor
	network  *services.MockNetworkClassifier
	anomaly  *services.MockAnomalyDetector
	audit    *services.MockAuditor
}

func newRiskFixture() *riskFixture {
	return &riskFixture{
		lockout:  &services.MockLockoutManager{},
		geo:      &services.MockGeoChecker{},
		behavior: &services.MockBehaviorAssessor{},
		network:  &services.MockNetworkClassifier{},
		anomaly:  &services.MockAnomalyDetector{},
		audit:    &services.MockAuditor{},
	}
}

func (f *riskFixture) service() *services.RiskService {
	return services.NewRiskService(f.lockout, f.geo, f.behavior, f.network, f.anomaly, f.audit, services.DefaultRiskConfig(), testLogger())
}

func loginContext() models.RiskContext {
	return models.RiskContext{
		Identifier:   "alice@example.com",
		UserID:       "user-1",
		IPAddress:    "198.51.100.7",
		LoginContext: true,
	}
}

func sources(d *models.RiskDecision) []string {
	out := make([]string, 0, len(d.Signals))
	for _, s := range d.Signals {
		out = append(out, s.Source)
	}
	return out
}

func TestResolveIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		rc       models.RiskContext
		wantID   string
		wantType models.IdentifierType
	}{
		{"email", models.RiskContext{Identifier: "a@b.co", UserID: "u1", IPAddress: "1.1.1.1"}, "a@b.co", models.IdentifierEmail},
		{"plain identifier", models.RiskContext{Identifier: "alice"}, "alice", models.IdentifierUserID},
		{"explicit type", models.RiskContext{Identifier: "1.1.1.1", IdentifierType: models.IdentifierIP}, "1.1.1.1", models.IdentifierIP},
		{"user id", models.RiskContext{UserID: "u1", IPAddress: "1.1.1.1"}, "u1", models.IdentifierUserID},
		{"ip", models.RiskContext{IPAddress: "1.1.1.1"}, "1.1.1.1", models.IdentifierIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, typ := services.ResolveIdentifier(tt.rc)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantType, typ)
		})
	}
}

func TestRiskService_AllowsCleanLogin(t *testing.T) {
	f := newRiskFixture()
	var reset []string
	f.lockout.ResetFailuresFunc = func(ctx context.Context, identifier string) error {
		reset = append(reset, identifier)
		return nil
	}

	d, err := f.service().Evaluate(context.Background(), loginContext())
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.Equal(t, models.ActionAllow, d.Action)
	assert.Empty(t, d.Reason)
	assert.Empty(t, d.Degraded)
	assert.Equal(t, []string{services.SourceGeo, services.SourceBehavior, services.SourceNetwork, services.SourceAnomaly}, sources(d))
	assert.Equal(t, []string{"alice@example.com", "198.51.100.7"}, reset, "identifier and client address are both reset")
	assert.Equal(t, []string{models.AuditEventRiskDecision}, f.audit.EventTypes())
}

func TestRiskService_ResetSkipsAddressUsedAsIdentifier(t *testing.T) {
	f := newRiskFixture()
	var reset []string
	f.lockout.ResetFailuresFunc = func(ctx context.Context, identifier string) error {
		reset = append(reset, identifier)
		return nil
	}

	_, err := f.service().Evaluate(context.Background(), models.RiskContext{IPAddress: "198.51.100.7", LoginContext: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"198.51.100.7"}, reset)
}

func TestRiskService_LockedShortCircuits(t *testing.T) {
	f := newRiskFixture()
	until := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	f.lockout.CheckStatusFunc = func(ctx context.Context, identifier string) (*models.LockoutStatus, error) {
		return &models.LockoutStatus{IsLocked: true, LockedUntil: &until}, nil
	}
	f.geo.CheckIPFunc = func(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error) {
		t.Fatal("geo must not run for a locked identifier")
		return nil, nil
	}

	d, err := f.service().Evaluate(context.Background(), loginContext())
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.Equal(t, models.ActionBlock, d.Action)
	assert.Equal(t, services.ReasonAccountLocked, d.Reason)
	require.NotNil(t, d.LockedUntil)
	assert.Equal(t, until, *d.LockedUntil)
	assert.Equal(t, []string{models.AuditEventRiskDecision}, f.audit.EventTypes())
	assert.Equal(t, models.SeverityWarn, f.audit.Entries[0].Severity)
}

func TestRiskService_LockoutStoreFailureFailsClosed(t *testing.T) {
	f := newRiskFixture()
	f.lockout.CheckStatusFunc = func(ctx context.Context, identifier string) (*models.LockoutStatus, error) {
		return nil, fmt.Errorf("lockout store: %w: %w", models.ErrServiceUnavailable, errBackendDown)
	}

	_, err := f.service().Evaluate(context.Background(), loginContext())
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.Empty(t, f.audit.Entries)
}

func TestRiskService_GeoBlockStopsEvaluation(t *testing.T) {
	f := newRiskFixture()
	f.geo.CheckAccessFunc = func(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error) {
		assert.Equal(t, "KP", countryCode)
		return &models.GeoAccessResult{Action: models.GeoBlocked, CountryCode: countryCode, Reason: services.GeoReasonCountryBlocked}, nil
	}
	f.network.ClassifyFunc = func(ctx context.Context, ip string) (*models.NetworkProfile, error) {
		t.Fatal("network must not run after a block")
		return nil, nil
	}

	rc := loginContext()
	rc.Geo = &models.GeoPoint{CountryCode: "KP"}

	d, err := f.service().Evaluate(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBlock, d.Action)
	assert.Equal(t, services.ReasonGeoBlocked, d.Reason)
	assert.Equal(t, []string{services.SourceGeo}, sources(d))
}

func TestRiskService_HoneypotBlocks(t *testing.T) {
	f := newRiskFixture()
	f.behavior.AssessFunc = func(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error) {
		return &models.ThreatAssessment{Action: models.ActionBlock, Score: 100, Reasons: []string{services.ReasonHoneypot}}, nil
	}

	d, err := f.service().Evaluate(context.Background(), loginContext())
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, services.ReasonHoneypot, d.Reason)
	assert.Equal(t, []string{services.SourceGeo, services.SourceBehavior}, sources(d))
}

func TestRiskService_HoneypotWithoutIPBlocks(t *testing.T) {
	f := newRiskFixture()
	behavior := services.NewBehaviorService(services.NewMockIPReputationRepository(), f.audit, services.DefaultBehaviorConfig(), testLogger())
	svc := services.NewRiskService(f.lockout, f.geo, behavior, f.network, f.anomaly, f.audit, services.DefaultRiskConfig(), testLogger())

	d, err := svc.Evaluate(context.Background(), models.RiskContext{
		Identifier:   "bot@example.com",
		Behavior:     &models.BehaviorSignals{HoneypotValue: "http://spam"},
		LoginContext: true,
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ActionBlock, d.Action)
	assert.Equal(t, services.ReasonHoneypot, d.Reason)
}

func TestRiskService_HoneypotBlocksWhenBehaviorFails(t *testing.T) {
	f := newRiskFixture()
	f.behavior.AssessFunc = func(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error) {
		return nil, errBackendDown
	}

	rc := loginContext()
	rc.Behavior = &models.BehaviorSignals{HoneypotField: "website", HoneypotValue: "x"}

	d, err := f.service().Evaluate(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBlock, d.Action)
	assert.Equal(t, services.ReasonHoneypot, d.Reason)
	assert.Equal(t, []string{services.SourceBehavior}, d.Degraded)
}

func TestRiskService_NetworkScoreFeedsBehavior(t *testing.T) {
	f := newRiskFixture()
	f.network.ClassifyFunc = func(ctx context.Context, ip string) (*models.NetworkProfile, error) {
		return &models.NetworkProfile{IP: ip, IsVPN: true, IsDatacenter: true, RiskScore: 50, RequiresVerification: true}, nil
	}
	var gotScore int
	f.behavior.AssessFunc = func(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error) {
		gotScore = networkScore
		return &models.ThreatAssessment{Allowed: true, Action: models.ActionWarn, Score: networkScore, Reasons: []string{}}, nil
	}

	d, err := f.service().Evaluate(context.Background(), loginContext())
	require.NoError(t, err)
	assert.Equal(t, 50, gotScore)
	assert.Equal(t, models.ActionChallenge, d.Action, "most severe signal wins")
	assert.True(t, d.RequiresVerification)
	assert.Equal(t, services.ReasonNetworkVerification, d.Reason)
}

func TestRiskService_TorBlocks(t *testing.T) {
	f := newRiskFixture()
	f.network.ClassifyFunc = func(ctx context.Context, ip string) (*models.NetworkProfile, error) {
		return &models.NetworkProfile{IP: ip, IsTor: true, RiskScore: 50, Deny: true}, nil
	}
	f.anomaly.CheckLoginFunc = func(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error) {
		t.Fatal("anomaly must not run after a block")
		return nil, nil
	}

	d, err := f.service().Evaluate(context.Background(), loginContext())
	require.NoError(t, err)
	assert.Equal(t, models.ActionBlock, d.Action)
	assert.Equal(t, services.ReasonTorExitNode, d.Reason)
}

func TestRiskService_ReasonsJoined(t *testing.T) {
	f := newRiskFixture()
	f.geo.CheckIPFunc = func(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error) {
		return &models.GeoAccessResult{Allowed: true, Action: models.GeoChallenge, Reason: services.GeoReasonChallengeRequired}, nil
	}
	f.behavior.AssessFunc = func(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error) {
		return &models.ThreatAssessment{Allowed: true, Action: models.ActionWarn, Score: 25, Reasons: []string{services.ReasonFastFormSubmission}}, nil
	}

	d, err := f.service().Evaluate(context.Background(), loginContext())
	require.NoError(t, err)
	assert.Equal(t, models.ActionChallenge, d.Action)
	assert.False(t, d.Allowed)
	assert.Equal(t, services.ReasonGeoChallenge+","+services.ReasonFastFormSubmission, d.Reason)
}

func TestRiskService_AnomalyChallenges(t *testing.T) {
	f := newRiskFixture()
	var got models.LoginCheck
	f.anomaly.CheckLoginFunc = func(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error) {
		got = check
		return &models.AnomalyResult{
			Anomalies:            []*models.AnomalyRecord{{Type: models.AnomalyImpossibleTravel, UserID: check.UserID}},
			RequiresVerification: true,
		}, nil
	}
	resetCalled := false
	f.lockout.ResetFailuresFunc = func(ctx context.Context, identifier string) error {
		resetCalled = true
		return nil
	}

	rc := loginContext()
	rc.DeviceFingerprint = "fp-1"

	d, err := f.service().Evaluate(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "fp-1", got.DeviceFingerprint)
	assert.Equal(t, models.ActionChallenge, d.Action)
	assert.Equal(t, 1, d.AnomaliesDetected)
	assert.Equal(t, string(models.AnomalyImpossibleTravel), d.Reason)
	assert.False(t, resetCalled, "failures are only reset for allowed logins")
}

func TestRiskService_AnomalyOnlyForLogins(t *testing.T) {
	f := newRiskFixture()
	f.anomaly.CheckLoginFunc = func(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error) {
		t.Fatal("anomaly detection runs only for logins")
		return nil, nil
	}

	rc := loginContext()
	rc.LoginContext = false

	d, err := f.service().Evaluate(context.Background(), rc)
	require.NoError(t, err)
	assert.NotContains(t, sources(d), services.SourceAnomaly)
}

func TestRiskService_DegradedCollaborators(t *testing.T) {
	f := newRiskFixture()
	f.geo.CheckIPFunc = func(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error) {
		return &models.GeoAccessResult{Allowed: true, Action: models.GeoAllowed, CountryCode: "XX", Reason: services.GeoReasonRuleLookupFailed}, nil
	}
	f.network.ClassifyFunc = func(ctx context.Context, ip string) (*models.NetworkProfile, error) {
		return &models.NetworkProfile{IP: ip, CountryCode: models.UnknownCountryCode, LookupFailed: true}, nil
	}
	f.behavior.AssessFunc = func(ctx context.Context, ip string, signals *models.BehaviorSignals, networkScore int) (*models.ThreatAssessment, error) {
		return nil, errors.New("reputation store down")
	}
	f.anomaly.CheckLoginFunc = func(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error) {
		return nil, errors.New("history timeout")
	}

	d, err := f.service().Evaluate(context.Background(), loginContext())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.ElementsMatch(t, []string{services.SourceGeo, services.SourceBehavior, services.SourceNetwork, services.SourceAnomaly}, d.Degraded)
	assert.Equal(t, "geo,behavior,network,anomaly", f.audit.Entries[0].Metadata["degraded"])
}

func TestRiskService_RequiresIdentifier(t *testing.T) {
	f := newRiskFixture()

	_, err := f.service().Evaluate(context.Background(), models.RiskContext{})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.service().TrackFailure(context.Background(), models.RiskContext{}, "bad_password")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	err = f.service().ClearLockout(context.Background(), models.RiskContext{IPAddress: "1.1.1.1"}, "admin")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestRiskService_TrackFailure(t *testing.T) {
	f := newRiskFixture()
	var gotType models.IdentifierType
	f.lockout.TrackFailureFunc = func(ctx context.Context, identifier string, identifierType models.IdentifierType, ipAddress, reason string) (*models.LockoutResult, error) {
		gotType = identifierType
		if identifier == "locked@example.com" {
			return &models.LockoutResult{Locked: true, Attempts: 5}, nil
		}
		return &models.LockoutResult{Attempts: 2, Remaining: 3}, nil
	}
	svc := f.service()

	res, err := svc.TrackFailure(context.Background(), loginContext(), "bad_password")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, models.IdentifierEmail, gotType)
	assert.Equal(t, []string{models.AuditEventLoginFailure}, f.audit.EventTypes())

	_, err = svc.TrackFailure(context.Background(), models.RiskContext{Identifier: "locked@example.com"}, "")
	require.NoError(t, err)
	assert.Len(t, f.audit.Entries, 1, "the lockout service audits the lock itself")
}

func TestRiskService_Status(t *testing.T) {
	f := newRiskFixture()
	f.anomaly.ActiveAnomaliesFunc = func(ctx context.Context, userID string) ([]*models.AnomalyRecord, error) {
		return []*models.AnomalyRecord{{Type: models.AnomalyNewDevice, UserID: userID}}, nil
	}

	st, err := f.service().Status(context.Background(), models.RiskContext{UserID: "user-1"})
	require.NoError(t, err)
	assert.False(t, st.IsLocked)
	assert.Equal(t, 1, st.ActiveAnomalies)

	st, err = f.service().Status(context.Background(), models.RiskContext{IPAddress: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, 0, st.ActiveAnomalies)
	assert.NotNil(t, st.Anomalies)
}
