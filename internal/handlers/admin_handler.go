package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// GeoRuleManager defines the geo rule administration contract
type GeoRuleManager interface {
	ListRules(ctx context.Context, tenantID *string) ([]*models.GeoAccessRule, error)
	CreateRule(ctx context.Context, rule *models.GeoAccessRule, actor string) (*models.GeoAccessRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID, actor string) error
}

// LockoutClearer clears lockouts on operator request
type LockoutClearer interface {
	ClearLockout(ctx context.Context, rc models.RiskContext, actor string) error
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	geo     GeoRuleManager
	lockout LockoutClearer
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(geo GeoRuleManager, lockout LockoutClearer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{geo: geo, lockout: lockout, logger: logger}
}

// CreateGeoRuleRequest is the body of POST /admin/geo-rules
type CreateGeoRuleRequest struct {
	CountryCode string  `json:"country_code" validate:"required,len=2,alpha"`
	Action      string  `json:"action" validate:"required,oneof=allow block challenge"`
	TenantID    *string `json:"tenant_id" validate:"omitempty,min=1,max=128"`
}

// ClearLockoutRequest is the body of POST /admin/lockouts/clear
type ClearLockoutRequest struct {
	Identifier string `json:"identifier" validate:"required_without=UserID,max=320"`
	UserID     string `json:"user_id" validate:"required_without=Identifier,max=128"`
}

// ListGeoRules handles GET /admin/geo-rules. ?tenant_id= narrows the list
// to global rules plus that tenant's rules.
func (h *AdminHandler) ListGeoRules(w http.ResponseWriter, r *http.Request) {
	var tenantID *string
	if t := r.URL.Query().Get("tenant_id"); t != "" {
		tenantID = &t
	}

	rules, err := h.geo.ListRules(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if rules == nil {
		rules = []*models.GeoAccessRule{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"total": len(rules),
	})
}

// CreateGeoRule handles POST /admin/geo-rules
func (h *AdminHandler) CreateGeoRule(w http.ResponseWriter, r *http.Request) {
	var req CreateGeoRuleRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	rule, err := h.geo.CreateRule(r.Context(), &models.GeoAccessRule{
		CountryCode: req.CountryCode,
		Action:      models.GeoRuleAction(req.Action),
		TenantID:    req.TenantID,
	}, auth.ActorFromContext(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, rule)
}

// DeleteGeoRule handles DELETE /admin/geo-rules/{id}
func (h *AdminHandler) DeleteGeoRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid rule id")
		return
	}

	if err := h.geo.DeleteRule(r.Context(), id, auth.ActorFromContext(r)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearLockout handles POST /admin/lockouts/clear
func (h *AdminHandler) ClearLockout(w http.ResponseWriter, r *http.Request) {
	var req ClearLockoutRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	rc := models.RiskContext{Identifier: req.Identifier, UserID: req.UserID}
	if err := h.lockout.ClearLockout(r.Context(), rc, auth.ActorFromContext(r)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
