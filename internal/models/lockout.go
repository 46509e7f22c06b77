package models

import "time"

// IdentifierType classifies the key used for rate and lockout tracking
type IdentifierType string

const (
	IdentifierEmail  IdentifierType = "email"
	IdentifierUserID IdentifierType = "user_id"
	IdentifierIP     IdentifierType = "ip"
)

// Valid reports whether t is a known identifier type
func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierEmail, IdentifierUserID, IdentifierIP:
		return true
	}
	return false
}

// FailureRecord is the durable view of an identifier's failed attempts
type FailureRecord struct {
	Identifier     string         `db:"identifier" json:"identifier"`
	IdentifierType IdentifierType `db:"identifier_type" json:"identifier_type"`
	AttemptCount   int            `db:"attempt_count" json:"attempt_count"`
	WindowStart    time.Time      `db:"window_start" json:"window_start"`
	IsLocked       bool           `db:"is_locked" json:"is_locked"`
	LockedUntil    *time.Time     `db:"locked_until" json:"locked_until,omitempty"`
	LockoutCount   int            `db:"lockout_count" json:"lockout_count"`
	LastIPAddress  *string        `db:"last_ip_address" json:"last_ip_address,omitempty"`
	LastReason     *string        `db:"last_reason" json:"last_reason,omitempty"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// LockoutResult is returned after recording a failed attempt
type LockoutResult struct {
	Locked      bool       `json:"locked"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Attempts    int        `json:"attempts"`
	Remaining   int        `json:"remaining"`
}

// LockoutStatus is the current lock state of an identifier
type LockoutStatus struct {
	IsLocked    bool       `json:"is_locked"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}
