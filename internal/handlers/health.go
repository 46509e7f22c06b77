package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// HealthChecker is implemented by the database and the redis window store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports dependency health
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are skipped.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	live := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			live[name] = c
		}
	}
	return &HealthHandler{checks: live}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "healthy"}
	for name, c := range h.checks {
		if err := c.HealthCheck(ctx); err != nil {
			body[name] = "down"
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			continue
		}
		body[name] = "up"
	}
	pkghttp.WriteJSON(w, status, body)
}
