package auth_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func protected(tm *auth.TokenManager, role string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Actor", auth.ActorFromContext(r))
		w.WriteHeader(http.StatusOK)
	})
	h := auth.RequireRole(role)(ok)
	return auth.AuthMiddleware(tm, nil, discardLogger())(h)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, "sentinel")

	token, err := tm.GenerateAccessToken("ops-1", "ops@example.com", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, "sentinel")

	expired, err := tm.GenerateAccessToken("ops-1", "", models.RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = tm.ValidateToken(expired)
	assert.Error(t, err)

	other, err := auth.NewTokenManager("another-secret-with-32-characters!!", "sentinel").
		GenerateAccessToken("ops-1", "", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = tm.ValidateToken(other)
	assert.Error(t, err, "wrong signing key")

	wrongIssuer, err := auth.NewTokenManager(testSecret, "someone-else").
		GenerateAccessToken("ops-1", "", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = tm.ValidateToken(wrongIssuer)
	assert.Error(t, err, "wrong issuer")

	noSubject, err := tm.GenerateAccessToken("", "", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = tm.ValidateToken(noSubject)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = tm.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, "sentinel")
	admin, err := tm.GenerateAccessToken("ops-1", "", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	viewer, err := tm.GenerateAccessToken("ops-2", "", "viewer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
		{"lowercase scheme", "bearer " + admin, http.StatusOK},
	}

	h := protected(tm, models.RoleAdmin)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/admin/geo-rules", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ops-1", w.Header().Get("X-Actor"))
			}
		})
	}
}

func TestRequireRole_WithoutClaims(t *testing.T) {
	h := auth.RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
