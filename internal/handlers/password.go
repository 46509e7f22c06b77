package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// PasswordValidator defines the password policy contract
type PasswordValidator interface {
	Validate(ctx context.Context, tenantID, userID, username, password string) (*pkgauth.ValidationResult, error)
	Generate(length int) (string, error)
	RecordPassword(ctx context.Context, userID, password string) error
}

// PasswordHandler serves password validation and generation
type PasswordHandler struct {
	service PasswordValidator
	logger  *slog.Logger
}

// NewPasswordHandler creates a new PasswordHandler
func NewPasswordHandler(service PasswordValidator, logger *slog.Logger) *PasswordHandler {
	return &PasswordHandler{service: service, logger: logger}
}

// PasswordValidateRequest is the body of POST /api/v1/password/validate
type PasswordValidateRequest struct {
	Password string `json:"password" validate:"required"`
	Username string `json:"username" validate:"max=320"`
	TenantID string `json:"tenant_id" validate:"max=128"`
	UserID   string `json:"user_id" validate:"max=128"`
}

// PasswordHistoryRequest is the body of POST /api/v1/password/history
type PasswordHistoryRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Password string `json:"password" validate:"required"`
}

// defaultGeneratedLength is used when ?length= is absent
const defaultGeneratedLength = 16

// Validate handles POST /api/v1/password/validate
func (h *PasswordHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req PasswordValidateRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Validate(r.Context(), req.TenantID, req.UserID, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Generate handles GET /api/v1/password/generate
func (h *PasswordHandler) Generate(w http.ResponseWriter, r *http.Request) {
	length := defaultGeneratedLength
	if l := r.URL.Query().Get("length"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			pkghttp.WriteBadRequest(w, "length must be a number")
			return
		}
		length = n
	}

	password, err := h.service.Generate(length)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"password": password,
		"length":   length,
	})
}

// RecordHistory handles POST /api/v1/password/history. Callers report a
// password change so later validations can reject reuse.
func (h *PasswordHandler) RecordHistory(w http.ResponseWriter, r *http.Request) {
	var req PasswordHistoryRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.RecordPassword(r.Context(), req.UserID, req.Password); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
