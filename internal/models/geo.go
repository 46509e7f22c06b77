package models

import (
	"time"

	"github.com/google/uuid"
)

// GeoRuleAction is the configured action of a geo rule
type GeoRuleAction string

const (
	GeoRuleAllow     GeoRuleAction = "allow"
	GeoRuleBlock     GeoRuleAction = "block"
	GeoRuleChallenge GeoRuleAction = "challenge"
)

// GeoAccess is the resolved outcome of a geo check
type GeoAccess string

const (
	GeoAllowed   GeoAccess = "allowed"
	GeoBlocked   GeoAccess = "blocked"
	GeoChallenge GeoAccess = "challenge"
)

// GeoAccessRule allows, blocks or challenges one country; TenantID nil means global
type GeoAccessRule struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	CountryCode string        `db:"country_code" json:"country_code"`
	Action      GeoRuleAction `db:"action" json:"action"`
	TenantID    *string       `db:"tenant_id" json:"tenant_id,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// GeoAccessResult is returned by a geo check
type GeoAccessResult struct {
	Allowed     bool      `json:"allowed"`
	Action      GeoAccess `json:"action"`
	CountryCode string    `json:"country_code"`
	Reason      string    `json:"reason,omitempty"`
}

// GeoAccessLog records every geo check
type GeoAccessLog struct {
	ID          uuid.UUID `db:"id" json:"id"`
	IPAddress   *string   `db:"ip_address" json:"ip_address,omitempty"`
	CountryCode string    `db:"country_code" json:"country_code"`
	TenantID    *string   `db:"tenant_id" json:"tenant_id,omitempty"`
	Action      GeoAccess `db:"action" json:"action"`
	Allowed     bool      `db:"allowed" json:"allowed"`
	Reason      *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
