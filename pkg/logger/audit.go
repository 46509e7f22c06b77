package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityEvent represents a security audit event
type SecurityEvent struct {
	EventType     string
	Severity      string
	Identifier    string
	IPAddress     string
	Action        string
	Success       bool
	FailureReason string
	Metadata      map[string]interface{}
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent writes one event; identifiers are masked
func (al *AuditLogger) LogSecurityEvent(ctx context.Context, event SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Action != "" {
		attrs = append(attrs, slog.String("action", event.Action))
	}
	if event.Identifier != "" {
		attrs = append(attrs, slog.String("identifier", MaskIdentifier(event.Identifier)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	al.logger.LogAttrs(ctx, levelFor(event), "audit", attrs...)
}

func levelFor(event SecurityEvent) slog.Level {
	switch event.Severity {
	case "critical":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	}
	if !event.Success {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
