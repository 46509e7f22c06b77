package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
)

// NetworkClassifier defines the network reputation contract
type NetworkClassifier interface {
	Classify(ctx context.Context, ip string) (*models.NetworkProfile, error)
}

// GeoAccessChecker defines the geo access contract used by public endpoints
type GeoAccessChecker interface {
	CheckAccess(ctx context.Context, countryCode string, tenantID *string) (*models.GeoAccessResult, error)
	CheckIP(ctx context.Context, ip string, tenantID *string) (*models.GeoAccessResult, error)
}

// NetworkHandler serves network classification and geo checks
type NetworkHandler struct {
	network NetworkClassifier
	geo     GeoAccessChecker
	logger  *slog.Logger
}

// NewNetworkHandler creates a new NetworkHandler
func NewNetworkHandler(network NetworkClassifier, geo GeoAccessChecker, logger *slog.Logger) *NetworkHandler {
	return &NetworkHandler{network: network, geo: geo, logger: logger}
}

// GeoCheckRequest is the body of POST /api/v1/geo/check
type GeoCheckRequest struct {
	IPAddress   string  `json:"ip_address" validate:"required_without=CountryCode,omitempty,ip"`
	CountryCode string  `json:"country_code" validate:"required_without=IPAddress,omitempty,len=2,alpha"`
	TenantID    *string `json:"tenant_id" validate:"omitempty,max=128"`
}

// Classify handles GET /api/v1/network/{ip}
func (h *NetworkHandler) Classify(w http.ResponseWriter, r *http.Request) {
	ip := strings.TrimSpace(chi.URLParam(r, "ip"))
	if !pkghttp.IsValidIP(ip) {
		pkghttp.WriteBadRequest(w, "invalid ip address")
		return
	}

	profile, err := h.network.Classify(r.Context(), ip)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// CheckGeo handles POST /api/v1/geo/check. A blocked result is 403.
func (h *NetworkHandler) CheckGeo(w http.ResponseWriter, r *http.Request) {
	var req GeoCheckRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var (
		result *models.GeoAccessResult
		err    error
	)
	if req.CountryCode != "" {
		result, err = h.geo.CheckAccess(r.Context(), req.CountryCode, req.TenantID)
	} else {
		result, err = h.geo.CheckIP(r.Context(), req.IPAddress, req.TenantID)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Action == models.GeoBlocked {
		status = http.StatusForbidden
	}
	pkghttp.WriteJSON(w, status, result)
}
