package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// RateLimiter defines the operation rate limiter contract
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, operation, callerKey string) (*models.RateLimitResult, error)
	Reset(ctx context.Context, operation, callerKey string) error
}

// Rate limit modes accepted in requests
const (
	ModeAuthoritative = "authoritative"
	ModeAdvisory      = "advisory"
)

// RateLimitHandler serves operation rate limit checks. Authoritative checks
// use the shared store; advisory checks use the process-local one.
type RateLimitHandler struct {
	authoritative RateLimiter
	advisory      RateLimiter
	logger        *slog.Logger
}

// NewRateLimitHandler creates a new RateLimitHandler. A nil advisory
// limiter sends every check to the authoritative one.
func NewRateLimitHandler(authoritative, advisory RateLimiter, logger *slog.Logger) *RateLimitHandler {
	if advisory == nil {
		advisory = authoritative
	}
	return &RateLimitHandler{authoritative: authoritative, advisory: advisory, logger: logger}
}

// RateLimitRequest is the body of POST /api/v1/ratelimit/check
type RateLimitRequest struct {
	Operation string `json:"operation" validate:"required,max=64"`
	Key       string `json:"key" validate:"required,max=320"`
	Mode      string `json:"mode" validate:"omitempty,oneof=authoritative advisory"`
	BatchSize *int   `json:"batch_size"`
}

// RateLimitResetRequest is the body of POST /api/v1/admin/ratelimit/reset
type RateLimitResetRequest struct {
	Operation string `json:"operation" validate:"required,max=64"`
	Key       string `json:"key" validate:"required,max=320"`
	Mode      string `json:"mode" validate:"omitempty,oneof=authoritative advisory"`
}

func (h *RateLimitHandler) limiter(mode string) RateLimiter {
	if mode == ModeAdvisory {
		return h.advisory
	}
	return h.authoritative
}

// Check handles POST /api/v1/ratelimit/check
func (h *RateLimitHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req RateLimitRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if req.BatchSize != nil {
		if err := services.ValidateBatchSize(*req.BatchSize); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
	}

	result, err := h.limiter(req.Mode).CheckAndConsume(r.Context(), req.Operation, req.Key)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if !result.Allowed {
		status = http.StatusTooManyRequests
	}
	pkghttp.WriteJSON(w, status, result)
}

// Reset handles POST /api/v1/admin/ratelimit/reset, clearing the counter and
// any block for one caller
func (h *RateLimitHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req RateLimitResetRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.limiter(req.Mode).Reset(r.Context(), req.Operation, req.Key); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "rate limit reset",
		slog.String("operation", req.Operation),
		slog.String("actor", auth.ActorFromContext(r)),
	)
	w.WriteHeader(http.StatusNoContent)
}
