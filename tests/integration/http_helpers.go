package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/events"
	"github.com/BradenHooton/sentinel/internal/geoip"
	"github.com/BradenHooton/sentinel/internal/handlers"
	middlewareCustom "github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/routes"
	"github.com/BradenHooton/sentinel/internal/services"
	"github.com/BradenHooton/sentinel/internal/store"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// TestJWTSecret signs operator tokens in integration tests
const TestJWTSecret = "integration-test-secret-0123456789abcdef"

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	GeoServer    *httptest.Server
	DB           *database.DB
	Repos        Repositories
	TokenManager *auth.TokenManager
	Audit        *services.AuditService
	logger       *slog.Logger
}

// newGeoServer serves StubIPInfo in the ip-api response format
func newGeoServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := strings.TrimPrefix(r.URL.Path, "/")
		info, ok := StubIPInfo[ip]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			json.NewEncoder(w).Encode(map[string]string{"status": "fail", "message": "reserved range"})
			return
		}
		json.NewEncoder(w).Encode(struct {
			Status string `json:"status"`
			models.IPInfo
		}{Status: "success", IPInfo: info})
	}))
}

// NewTestServer initializes the full HTTP stack with a real database and
// the given authoritative window store
func NewTestServer(db *database.DB, ws store.WindowStore) *TestServer {
	logger := quietLogger()
	repos := InitializeRepositories(db)
	geoServer := newGeoServer()

	rules, err := config.NewRulesStore("", logger)
	if err != nil {
		panic(fmt.Sprintf("failed to load default rules: %v", err))
	}

	geoClient := geoip.NewClient(geoServer.URL, 2*time.Second, geoip.NewBreaker(5, 30*time.Second), logger)
	publisher := events.NewAuditPublisher("", "security-audit", false, logger)

	auditService := services.NewAuditService(repos.AuditLogs, publisher, logger)
	lockoutService := services.NewLockoutService(ws, repos.FailureRecords, auditService, services.DefaultLockoutPolicy(), logger)
	geoService := services.NewGeoService(repos.GeoRules, geoClient, auditService, logger)
	networkService := services.NewNetworkService(geoClient, rules, services.NewExitListTorDetector(rules), logger)
	behaviorService := services.NewBehaviorService(repos.IPReputation, auditService, services.DefaultBehaviorConfig(), logger)
	anomalyService := services.NewAnomalyService(repos.LoginEvents, repos.Anomalies, services.DefaultAnomalyConfig(), logger)
	passwordService := services.NewPasswordService(repos.Policies, rules, logger)
	riskService := services.NewRiskService(lockoutService, geoService, behaviorService, networkService, anomalyService,
		auditService, services.DefaultRiskConfig(), logger)

	authoritative := services.NewRateLimitService(ws, rules, auditService, services.Authoritative, logger)
	advisory := services.NewRateLimitService(store.NewMemoryStore(), rules, auditService, services.Advisory, logger)

	tokenManager := auth.NewTokenManager(TestJWTSecret, "sentinel")

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, routes.Handlers{
		Risk:      handlers.NewRiskHandler(riskService, logger),
		RateLimit: handlers.NewRateLimitHandler(authoritative, advisory, logger),
		Password:  handlers.NewPasswordHandler(passwordService, logger),
		Network:   handlers.NewNetworkHandler(networkService, geoService, logger),
		Admin:     handlers.NewAdminHandler(geoService, riskService, logger),
		Audit:     handlers.NewAuditHandler(auditService, logger),
		Health:    handlers.NewHealthHandler(map[string]handlers.HealthChecker{"database": db}),
	}, routes.Options{
		TokenManager:  tokenManager,
		IPConfig:      &pkghttp.IPConfig{},
		EdgeRateLimit: 10000,
		Logger:        logger,
	})

	return &TestServer{
		Server:       httptest.NewServer(router),
		GeoServer:    geoServer,
		DB:           db,
		Repos:        repos,
		TokenManager: tokenManager,
		Audit:        auditService,
		logger:       logger,
	}
}

// Close shuts down the HTTP and geolocation servers
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.GeoServer.Close()
}

// AdminToken issues an operator token
func (ts *TestServer) AdminToken(subject string) (string, error) {
	return ts.TokenManager.GenerateAccessToken(subject, subject+"@example.com", models.RoleAdmin, time.Hour)
}

// Request makes an HTTP request with an optional JSON body
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, ts.Server.URL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return ts.Server.Client().Do(req)
}

// RequestWithAuth makes a request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// Evaluate posts to the risk endpoint
func (ts *TestServer) Evaluate(body map[string]interface{}) (*http.Response, error) {
	return ts.Request(http.MethodPost, "/api/v1/risk/evaluate", body, nil)
}

// ParseJSONResponse decodes the response body into target and closes it
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts the message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Message, nil
}
