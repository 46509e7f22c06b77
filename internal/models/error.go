package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Risk engine decisions
	ErrAccountLocked      = errors.New("identifier is temporarily locked")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrGeoBlocked         = errors.New("access from this location is blocked")
	ErrServiceUnavailable = errors.New("service temporarily unavailable, retry")
)
