//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/store"
)

func newServer(t *testing.T) *TestServer {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))

	ts := NewTestServer(testDB.DB, store.NewPostgresStore(testDB.DB))
	t.Cleanup(ts.Close)
	return ts
}

func TestRiskFlow_LockoutAndClear(t *testing.T) {
	ts := newServer(t)
	identifier := TestIdentifier("lockout")

	for i := 1; i <= 4; i++ {
		resp, err := ts.Evaluate(map[string]interface{}{
			"action":         "track_failure",
			"identifier":     identifier,
			"ip_address":     ResidentialIP,
			"failure_reason": "invalid_password",
		})
		require.NoError(t, err)
		var body map[string]interface{}
		require.NoError(t, ParseJSONResponse(resp, &body))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(i), body["attempts"])
		assert.Equal(t, float64(5-i), body["remaining"])
	}

	// Fifth failure locks the identifier
	resp, err := ts.Evaluate(map[string]interface{}{
		"action":     "track_failure",
		"identifier": identifier,
		"ip_address": ResidentialIP,
	})
	require.NoError(t, err)
	var locked map[string]interface{}
	require.NoError(t, ParseJSONResponse(resp, &locked))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, false, locked["allowed"])
	assert.NotEmpty(t, locked["locked_until"])

	// Login attempts are refused while locked
	resp, err = ts.Evaluate(map[string]interface{}{
		"action":     "check_login",
		"identifier": identifier,
		"ip_address": ResidentialIP,
	})
	require.NoError(t, err)
	var decision models.RiskDecision
	require.NoError(t, ParseJSONResponse(resp, &decision))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.ActionBlock, decision.Action)
	require.NotNil(t, decision.LockedUntil)

	resp, err = ts.Evaluate(map[string]interface{}{
		"action":     "get_status",
		"identifier": identifier,
	})
	require.NoError(t, err)
	var status models.RiskStatus
	require.NoError(t, ParseJSONResponse(resp, &status))
	assert.True(t, status.IsLocked)

	// An operator clears the lockout
	token, err := ts.AdminToken("operator-1")
	require.NoError(t, err)
	resp, err = ts.RequestWithAuth(http.MethodPost, "/api/v1/admin/lockouts/clear", token, map[string]string{
		"identifier": identifier,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Evaluate(map[string]interface{}{
		"action":     "check_login",
		"identifier": identifier,
		"ip_address": ResidentialIP,
	})
	require.NoError(t, err)
	decision = models.RiskDecision{}
	require.NoError(t, ParseJSONResponse(resp, &decision))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decision.Allowed)

	// Both the lock and the clear are audited
	logs, err := ts.Audit.List(context.Background(), models.AuditEventAccountLocked, 10, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	logs, err = ts.Audit.List(context.Background(), models.AuditEventLockoutCleared, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "operator-1", logs[0].Metadata["actor"])
}

func TestRiskFlow_GeoRuleBlocksCountry(t *testing.T) {
	ts := newServer(t)
	token, err := ts.AdminToken("operator-1")
	require.NoError(t, err)

	resp, err := ts.RequestWithAuth(http.MethodPost, "/api/v1/admin/geo-rules", token, map[string]string{
		"country_code": "KP",
		"action":       "block",
	})
	require.NoError(t, err)
	var rule models.GeoAccessRule
	require.NoError(t, ParseJSONResponse(resp, &rule))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "KP", rule.CountryCode)

	// Direct geo check
	resp, err = ts.Request(http.MethodPost, "/api/v1/geo/check", map[string]string{"ip_address": BlockedIP}, nil)
	require.NoError(t, err)
	var geo models.GeoAccessResult
	require.NoError(t, ParseJSONResponse(resp, &geo))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, geo.Allowed)
	assert.Equal(t, "KP", geo.CountryCode)

	// Login from the blocked country
	resp, err = ts.Evaluate(map[string]interface{}{
		"action":     "check_login",
		"identifier": TestIdentifier("geo"),
		"ip_address": BlockedIP,
	})
	require.NoError(t, err)
	var decision models.RiskDecision
	require.NoError(t, ParseJSONResponse(resp, &decision))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.ActionBlock, decision.Action)

	// Other countries are unaffected
	resp, err = ts.Evaluate(map[string]interface{}{
		"action":     "check_login",
		"identifier": TestIdentifier("geo-ok"),
		"ip_address": ResidentialIP,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Removing the rule lifts the block
	resp, err = ts.RequestWithAuth(http.MethodDelete, "/api/v1/admin/geo-rules/"+rule.ID.String(), token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request(http.MethodPost, "/api/v1/geo/check", map[string]string{"ip_address": BlockedIP}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRiskFlow_NetworkClassification(t *testing.T) {
	ts := newServer(t)

	tests := []struct {
		name       string
		ip         string
		datacenter bool
		vpn        bool
	}{
		{"residential", ResidentialIP, false, false},
		{"datacenter", DatacenterIP, true, false},
		{"vpn", VPNIP, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ts.Request(http.MethodGet, "/api/v1/network/"+tt.ip, nil, nil)
			require.NoError(t, err)
			var profile models.NetworkProfile
			require.NoError(t, ParseJSONResponse(resp, &profile))
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.datacenter, profile.IsDatacenter)
			assert.Equal(t, tt.vpn, profile.IsVPN)
			assert.Equal(t, StubIPInfo[tt.ip].CountryCode, profile.CountryCode)
		})
	}
}

func TestRiskFlow_AdminRequiresToken(t *testing.T) {
	ts := newServer(t)

	resp, err := ts.Request(http.MethodGet, "/api/v1/admin/geo-rules", nil, nil)
	require.NoError(t, err)
	msg, err := GetErrorMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, msg)
}

func TestRateLimit_SharedAcrossServers(t *testing.T) {
	require.NoError(t, testDB.CleanupTables(context.Background()))

	// Two replicas backed by the same database see one counter
	a := NewTestServer(testDB.DB, store.NewPostgresStore(testDB.DB))
	defer a.Close()
	b := NewTestServer(testDB.DB, store.NewPostgresStore(testDB.DB))
	defer b.Close()

	key := TestIdentifier("ratelimit")
	allowed := 0
	for i := 0; i < 10; i++ {
		ts := a
		if i%2 == 1 {
			ts = b
		}
		resp, err := ts.Request(http.MethodPost, "/api/v1/ratelimit/check", map[string]string{
			"operation": "password_reset",
			"key":       key,
		}, nil)
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			allowed++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		}
	}

	// password_reset allows 3 per window
	assert.Equal(t, 3, allowed)
}

func TestPasswordValidation_TenantPolicy(t *testing.T) {
	ts := newServer(t)
	require.NoError(t, SeedPasswordPolicy(context.Background(), testDB.Pool, "tenant-strict", 20))

	body := map[string]string{"password": "Tr1cky!Horse#Battery", "username": "alice"}

	resp, err := ts.Request(http.MethodPost, "/api/v1/password/validate", body, nil)
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, ParseJSONResponse(resp, &result))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, result["is_valid"])

	body["tenant_id"] = "tenant-strict"
	body["password"] = "Tr1cky!Horse#"
	resp, err = ts.Request(http.MethodPost, "/api/v1/password/validate", body, nil)
	require.NoError(t, err)
	result = map[string]interface{}{}
	require.NoError(t, ParseJSONResponse(resp, &result))
	assert.Equal(t, false, result["is_valid"])

	// A recorded password cannot be reused
	resp, err = ts.Request(http.MethodPost, "/api/v1/password/history", map[string]string{
		"user_id":  "user-1",
		"password": "Tr1cky!Horse#Battery",
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request(http.MethodPost, "/api/v1/password/validate", map[string]string{
		"password": "Tr1cky!Horse#Battery",
		"user_id":  "user-1",
	}, nil)
	require.NoError(t, err)
	result = map[string]interface{}{}
	require.NoError(t, ParseJSONResponse(resp, &result))
	assert.Equal(t, false, result["is_valid"])
}
