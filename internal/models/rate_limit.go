package models

import "time"

// OperationLimit is the (max requests, window, block duration) triple for one operation type
type OperationLimit struct {
	MaxRequests   int           `toml:"max_requests" json:"max_requests"`
	Window        time.Duration `toml:"window" json:"window"`
	BlockDuration time.Duration `toml:"block_duration" json:"block_duration"`
}

// RateLimitResult is the outcome of a rate limit check
type RateLimitResult struct {
	Allowed      bool       `json:"allowed"`
	Remaining    int        `json:"remaining"`
	ResetAt      time.Time  `json:"reset_at"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}
