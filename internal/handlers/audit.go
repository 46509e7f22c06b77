package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// AuditLister defines the audit log query contract
type AuditLister interface {
	List(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	audit  AuditLister
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit AuditLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// AuditLogResponse represents an audit log entry in HTTP response
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	EventType     string                 `json:"event_type"`
	Severity      string                 `json:"severity"`
	Identifier    *string                `json:"identifier,omitempty"`
	IPAddress     *string                `json:"ip_address,omitempty"`
	Action        string                 `json:"action"`
	Success       bool                   `json:"success"`
	FailureReason *string                `json:"failure_reason,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

// List handles GET /admin/audit-logs?event_type=&limit=&offset=
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	offset := 0
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	logs, err := h.audit.List(r.Context(), q.Get("event_type"), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	response := make([]*AuditLogResponse, len(logs))
	for i, log := range logs {
		response[i] = auditLogToResponse(log)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   response,
		"limit":  limit,
		"offset": offset,
	})
}

// auditLogToResponse converts an audit log model to a response DTO
func auditLogToResponse(log *models.AuditLog) *AuditLogResponse {
	return &AuditLogResponse{
		ID:            log.ID.String(),
		EventType:     log.EventType,
		Severity:      log.Severity,
		Identifier:    log.Identifier,
		IPAddress:     log.IPAddress,
		Action:        log.Action,
		Success:       log.Success,
		FailureReason: log.FailureReason,
		Metadata:      log.Metadata,
		CreatedAt:     log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
