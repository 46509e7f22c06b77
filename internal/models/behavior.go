package models

import (
	"time"

	"github.com/google/uuid"
)

// BehaviorSignals is client-collected interaction telemetry
type BehaviorSignals struct {
	MouseMovements    int    `json:"mouse_movements" validate:"gte=0,lte=1000000"`
	Keystrokes        int    `json:"keystrokes" validate:"gte=0,lte=1000000"`
	FormFillTimeMs    int64  `json:"form_fill_time_ms" validate:"gte=0,lte=86400000"`
	RequestsPerMinute int    `json:"requests_per_minute" validate:"gte=0,lte=100000"`
	HoneypotField     string `json:"honeypot_field,omitempty" validate:"max=128"`
	HoneypotValue     string `json:"honeypot_value,omitempty" validate:"max=1024"`
}

// ThreatAssessment is the behavioral detector's verdict
type ThreatAssessment struct {
	Allowed bool     `json:"allowed"`
	Action  Action   `json:"action"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// IPReputation accumulates threat observations per address
type IPReputation struct {
	IPAddress    string     `db:"ip_address" json:"ip_address"`
	ThreatScore  int        `db:"threat_score" json:"threat_score"`
	BlockedUntil *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
	Reasons      []string   `db:"reasons" json:"reasons,omitempty"`
	LastSeen     time.Time  `db:"last_seen" json:"last_seen"`
}

// HoneypotInteraction records a filled honeypot field
type HoneypotInteraction struct {
	ID        uuid.UUID `db:"id" json:"id"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	FieldName string    `db:"field_name" json:"field_name"`
	Value     string    `db:"value" json:"value"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
