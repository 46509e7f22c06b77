package models

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyType names a detection rule
type AnomalyType string

const (
	AnomalyImpossibleTravel AnomalyType = "impossible_travel"
	AnomalyNewDevice        AnomalyType = "new_device"
)

// AnomalySeverity grades an anomaly
type AnomalySeverity string

const (
	AnomalyLow      AnomalySeverity = "low"
	AnomalyMedium   AnomalySeverity = "medium"
	AnomalyHigh     AnomalySeverity = "high"
	AnomalyCritical AnomalySeverity = "critical"
)

// RequiresVerification reports whether the severity forces step-up verification
func (s AnomalySeverity) RequiresVerification() bool {
	return s == AnomalyHigh || s == AnomalyCritical
}

// AnomalyRecord is created when a detection rule fires
type AnomalyRecord struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	UserID     string          `db:"user_id" json:"user_id"`
	Type       AnomalyType     `db:"anomaly_type" json:"type"`
	Severity   AnomalySeverity `db:"severity" json:"severity"`
	Details    Metadata        `db:"details" json:"details,omitempty"`
	SourceIP   string          `db:"source_ip" json:"source_ip"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// AnomalyResult is returned by a login check
type AnomalyResult struct {
	Anomalies            []*AnomalyRecord `json:"anomalies"`
	RequiresVerification bool             `json:"requires_verification"`
}
