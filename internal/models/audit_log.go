package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for security audit logging
const (
	AuditEventRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	AuditEventAccountLocked     = "ACCOUNT_LOCKED"
	AuditEventLockoutCleared    = "LOCKOUT_CLEARED"
	AuditEventLoginFailure      = "LOGIN_FAILURE"
	AuditEventRiskDecision      = "RISK_DECISION"
	AuditEventHoneypotTriggered = "HONEYPOT_TRIGGERED"
	AuditEventGeoRuleChange     = "GEO_RULE_CHANGE"
)

// Audit severities
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

type AuditLog struct {
	ID            uuid.UUID `db:"id" json:"id"`
	EventType     string    `db:"event_type" json:"event_type"`
	Severity      string    `db:"severity" json:"severity"`
	Identifier    *string   `db:"identifier" json:"identifier,omitempty"`
	IPAddress     *string   `db:"ip_address" json:"ip_address,omitempty"`
	Action        string    `db:"action" json:"action"`
	Success       bool      `db:"success" json:"success"`
	FailureReason *string   `db:"failure_reason" json:"failure_reason,omitempty"`
	Metadata      Metadata  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Metadata holds additional JSONB context for audit events and anomalies
type Metadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return ErrBadRequest
	}

	var out map[string]interface{}
	if err := json.Unmarshal(bytes, &out); err != nil {
		return err
	}
	*m = Metadata(out)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(m))
}
