package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
	"github.com/google/uuid"
)

// AuditLogRepository defines the audit log persistence used by AuditService
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	List(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error)
}

// AuditPublisher forwards audit logs to an external sink
type AuditPublisher interface {
	Publish(ctx context.Context, log *models.AuditLog) error
}

// Auditor records security events. Recording never fails the caller.
type Auditor interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// AuditService handles audit logging with dual-write pattern (slog + database),
// optionally forwarding each event to a publisher
type AuditService struct {
	repo      AuditLogRepository
	publisher AuditPublisher
	audit     *pkglogger.AuditLogger
	logger    *slog.Logger
}

// NewAuditService creates a new AuditService; repo and publisher may be nil
func NewAuditService(repo AuditLogRepository, publisher AuditPublisher, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:      repo,
		publisher: publisher,
		audit:     pkglogger.NewAuditLogger(logger),
		logger:    logger,
	}
}

// Record writes the event to slog, then persists and publishes it.
// Persistence and publish failures are logged only.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	// Dual-write: immediate slog output
	event := pkglogger.SecurityEvent{
		EventType: entry.EventType,
		Severity:  entry.Severity,
		Action:    entry.Action,
		Success:   entry.Success,
		Metadata:  entry.Metadata,
	}
	if entry.Identifier != nil {
		event.Identifier = *entry.Identifier
	}
	if entry.IPAddress != nil {
		event.IPAddress = *entry.IPAddress
	}
	if entry.FailureReason != nil {
		event.FailureReason = *entry.FailureReason
	}
	s.audit.LogSecurityEvent(ctx, event)

	if s.repo != nil {
		if _, err := s.repo.Create(ctx, entry); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist audit log",
				slog.String("event_type", entry.EventType),
				slog.Any("error", err),
			)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, entry); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish audit log",
				slog.String("event_type", entry.EventType),
				slog.Any("error", err),
			)
		}
	}
}

// List retrieves audit logs newest first, optionally filtered by event type
func (s *AuditService) List(ctx context.Context, eventType string, limit int, offset int) ([]*models.AuditLog, error) {
	if s.repo == nil {
		return []*models.AuditLog{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.repo.List(ctx, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return logs, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
