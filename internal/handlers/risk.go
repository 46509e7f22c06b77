package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// RiskEvaluator defines the risk engine contract used by RiskHandler
type RiskEvaluator interface {
	Evaluate(ctx context.Context, rc models.RiskContext) (*models.RiskDecision, error)
	TrackFailure(ctx context.Context, rc models.RiskContext, reason string) (*models.LockoutResult, error)
	ClearLockout(ctx context.Context, rc models.RiskContext, actor string) error
	Status(ctx context.Context, rc models.RiskContext) (*models.RiskStatus, error)
}

// RiskHandler serves the risk evaluation endpoint
type RiskHandler struct {
	engine RiskEvaluator
	logger *slog.Logger
}

// NewRiskHandler creates a new RiskHandler
func NewRiskHandler(engine RiskEvaluator, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{engine: engine, logger: logger}
}

// EvaluateRequest is the body of POST /api/v1/risk/evaluate
type EvaluateRequest struct {
	Action            string                  `json:"action" validate:"required,oneof=check_login track_failure clear_lockout get_status"`
	Identifier        string                  `json:"identifier" validate:"max=320"`
	IdentifierType    string                  `json:"identifier_type" validate:"omitempty,oneof=email user_id ip"`
	IPAddress         string                  `json:"ip_address" validate:"omitempty,ip"`
	Geo               *models.GeoPoint        `json:"geo"`
	DeviceFingerprint string                  `json:"device_fingerprint" validate:"max=512"`
	FailureReason     string                  `json:"failure_reason" validate:"max=128"`
	UserID            string                  `json:"user_id" validate:"max=128"`
	TenantID          *string                 `json:"tenant_id" validate:"omitempty,max=128"`
	Behavior          *models.BehaviorSignals `json:"behavior"`
}

func (req EvaluateRequest) riskContext() models.RiskContext {
	return models.RiskContext{
		Identifier:        strings.TrimSpace(req.Identifier),
		IdentifierType:    models.IdentifierType(req.IdentifierType),
		UserID:            req.UserID,
		TenantID:          req.TenantID,
		IPAddress:         req.IPAddress,
		Geo:               req.Geo,
		DeviceFingerprint: req.DeviceFingerprint,
		Behavior:          req.Behavior,
		LoginContext:      req.Action == models.RequestCheckLogin,
	}
}

// FailureResponse is returned for track_failure
type FailureResponse struct {
	Allowed     bool          `json:"allowed"`
	Action      models.Action `json:"action"`
	Reason      string        `json:"reason,omitempty"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	Attempts    int           `json:"attempts"`
	Remaining   int           `json:"remaining"`
}

// Evaluate handles POST /api/v1/risk/evaluate
func (h *RiskHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	rc := req.riskContext()

	switch req.Action {
	case models.RequestCheckLogin:
		decision, err := h.engine.Evaluate(ctx, rc)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		if len(decision.Degraded) > 0 {
			h.logger.WarnContext(ctx, "risk evaluated without some collaborators",
				slog.String("degraded", strings.Join(decision.Degraded, ",")),
			)
		}
		pkghttp.WriteJSON(w, decisionStatus(decision), decision)

	case models.RequestTrackFailure:
		result, err := h.engine.TrackFailure(ctx, rc, req.FailureReason)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		resp := FailureResponse{
			Allowed:   !result.Locked,
			Action:    models.ActionAllow,
			Attempts:  result.Attempts,
			Remaining: result.Remaining,
		}
		status := http.StatusOK
		if result.Locked {
			resp.Action = models.ActionBlock
			resp.Reason = services.ReasonAccountLocked
			resp.LockedUntil = result.LockedUntil
			status = http.StatusTooManyRequests
		}
		pkghttp.WriteJSON(w, status, resp)

	case models.RequestClearLockout:
		if err := h.engine.ClearLockout(ctx, rc, "service"); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"allowed": true,
			"action":  models.ActionAllow,
			"cleared": true,
		})

	case models.RequestGetStatus:
		status, err := h.engine.Status(ctx, rc)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, status)
	}
}

// decisionStatus maps a decision to its HTTP status: lockouts and throttles
// are 429, geo blocks 403 and everything else 200
func decisionStatus(d *models.RiskDecision) int {
	if d.LockedUntil != nil || d.Action == models.ActionThrottle {
		return http.StatusTooManyRequests
	}
	if d.Action == models.ActionBlock {
		for _, sig := range d.Signals {
			if sig.Source == services.SourceGeo && sig.Action == models.ActionBlock {
				return http.StatusForbidden
			}
		}
	}
	return http.StatusOK
}
