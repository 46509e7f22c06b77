package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/store"
)

// FailureRecordRepository persists the durable view of failure counters
type FailureRecordRepository interface {
	Upsert(ctx context.Context, rec *models.FailureRecord) error
	Clear(ctx context.Context, identifier string) error
}

// LockoutPolicy controls when and for how long identifiers are locked.
// EscalationMultiplier 1.0 keeps every lockout at BaseDuration; larger values
// multiply the duration by the number of lockouts seen within EscalationWindow.
type LockoutPolicy struct {
	MaxAttempts          int
	Window               time.Duration
	BaseDuration         time.Duration
	EscalationMultiplier float64
	MaxDuration          time.Duration
	EscalationWindow     time.Duration
}

// DefaultLockoutPolicy is 5 failures per 60s locking for a flat 15m
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:          5,
		Window:               60 * time.Second,
		BaseDuration:         15 * time.Minute,
		EscalationMultiplier: 1.0,
		MaxDuration:          24 * time.Hour,
		EscalationWindow:     24 * time.Hour,
	}
}

// Duration returns the lock length for the nth lockout (n starts at 1)
func (p LockoutPolicy) Duration(n int) time.Duration {
	if n < 1 || p.EscalationMultiplier <= 1.0 {
		return p.BaseDuration
	}
	d := time.Duration(float64(p.BaseDuration) * math.Pow(p.EscalationMultiplier, float64(n-1)))
	if p.MaxDuration > 0 && (d > p.MaxDuration || d < 0) {
		return p.MaxDuration
	}
	return d
}

// LockoutService tracks failed attempts per identifier and locks identifiers
// that exceed the policy. Store failures fail closed.
type LockoutService struct {
	store  store.WindowStore
	repo   FailureRecordRepository
	audit  Auditor
	policy LockoutPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService; repo may be nil
func NewLockoutService(ws store.WindowStore, repo FailureRecordRepository, audit Auditor, policy LockoutPolicy, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		store:  ws,
		repo:   repo,
		audit:  audit,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for lock deadlines
func (s *LockoutService) WithClock(now func() time.Time) *LockoutService {
	s.now = now
	return s
}

// Policy returns the active policy
func (s *LockoutService) Policy() LockoutPolicy {
	return s.policy
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func lockoutKey(identifier string) string {
	return "lockout:" + normalizeIdentifier(identifier)
}

func lockoutHistoryKey(identifier string) string {
	return "lockouts:" + normalizeIdentifier(identifier)
}

func (s *LockoutService) unavailable(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "lockout store unavailable",
		slog.String("op", op),
		slog.Any("error", err),
	)
	return fmt.Errorf("lockout %s: %w: %w", op, models.ErrServiceUnavailable, err)
}

// TrackFailure records a failed attempt. While an identifier is locked the
// attempt is not counted and the existing lock is returned.
func (s *LockoutService) TrackFailure(ctx context.Context, identifier string, identifierType models.IdentifierType, ipAddress, reason string) (*models.LockoutResult, error) {
	if normalizeIdentifier(identifier) == "" {
		return nil, fmt.Errorf("identifier is required: %w", models.ErrBadRequest)
	}

	key := lockoutKey(identifier)

	until, err := s.store.GetBlock(ctx, key)
	if err != nil {
		return nil, s.unavailable(ctx, "get_block", err)
	}
	if until != nil {
		return &models.LockoutResult{
			Locked:      true,
			LockedUntil: until,
			Attempts:    s.policy.MaxAttempts,
			Remaining:   0,
		}, nil
	}

	w, err := s.store.Increment(ctx, key, s.policy.Window)
	if err != nil {
		return nil, s.unavailable(ctx, "increment", err)
	}

	result := &models.LockoutResult{
		Attempts:  w.Count,
		Remaining: max(0, s.policy.MaxAttempts-w.Count),
	}

	rec := &models.FailureRecord{
		Identifier:     normalizeIdentifier(identifier),
		IdentifierType: identifierType,
		AttemptCount:   w.Count,
		WindowStart:    w.WindowStart,
		LastIPAddress:  strPtr(ipAddress),
		LastReason:     strPtr(reason),
		UpdatedAt:      s.now().UTC(),
	}

	if w.Count >= s.policy.MaxAttempts {
		history, err := s.store.Increment(ctx, lockoutHistoryKey(identifier), s.policy.EscalationWindow)
		if err != nil {
			return nil, s.unavailable(ctx, "increment_history", err)
		}

		lockedUntil := s.now().Add(s.policy.Duration(history.Count)).UTC()

		// Reset first so the next window after expiry starts from zero
		if err := s.store.Reset(ctx, key); err != nil {
			return nil, s.unavailable(ctx, "reset", err)
		}
		if err := s.store.SetBlock(ctx, key, lockedUntil); err != nil {
			return nil, s.unavailable(ctx, "set_block", err)
		}

		result.Locked = true
		result.LockedUntil = &lockedUntil
		result.Remaining = 0

		rec.IsLocked = true
		rec.LockedUntil = &lockedUntil
		rec.LockoutCount = history.Count

		s.audit.Record(ctx, &models.AuditLog{
			EventType:     models.AuditEventAccountLocked,
			Severity:      models.SeverityWarn,
			Identifier:    strPtr(rec.Identifier),
			IPAddress:     strPtr(ipAddress),
			Action:        models.RequestTrackFailure,
			Success:       false,
			FailureReason: strPtr(reason),
			Metadata: models.Metadata{
				"identifier_type": string(identifierType),
				"attempts":        w.Count,
				"locked_until":    lockedUntil.Format(time.RFC3339),
				"lockout_count":   history.Count,
			},
		})
	}

	s.persist(ctx, rec)

	return result, nil
}

func (s *LockoutService) persist(ctx context.Context, rec *models.FailureRecord) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "failed to persist failure record",
			slog.Any("error", err),
		)
	}
}

// CheckStatus reports whether identifier is currently locked. Expired locks
// read as unlocked.
func (s *LockoutService) CheckStatus(ctx context.Context, identifier string) (*models.LockoutStatus, error) {
	until, err := s.store.GetBlock(ctx, lockoutKey(identifier))
	if err != nil {
		return nil, s.unavailable(ctx, "get_block", err)
	}
	return &models.LockoutStatus{
		IsLocked:    until != nil,
		LockedUntil: until,
	}, nil
}

// ClearLockout removes any lock and failure count. Clearing an unknown
// identifier succeeds.
func (s *LockoutService) ClearLockout(ctx context.Context, identifier, actor string) error {
	if normalizeIdentifier(identifier) == "" {
		return fmt.Errorf("identifier is required: %w", models.ErrBadRequest)
	}

	if err := s.store.Reset(ctx, lockoutKey(identifier)); err != nil {
		return s.unavailable(ctx, "reset", err)
	}

	if s.repo != nil {
		if err := s.repo.Clear(ctx, normalizeIdentifier(identifier)); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to clear failure record", slog.Any("error", err))
		}
	}

	s.audit.Record(ctx, &models.AuditLog{
		EventType:  models.AuditEventLockoutCleared,
		Severity:   models.SeverityInfo,
		Identifier: strPtr(normalizeIdentifier(identifier)),
		Action:     models.RequestClearLockout,
		Success:    true,
		Metadata:   models.Metadata{"actor": actor},
	})

	return nil
}

// ResetFailures zeroes the failure count after a successful login. A locked
// identifier keeps its lock.
func (s *LockoutService) ResetFailures(ctx context.Context, identifier string) error {
	key := lockoutKey(identifier)

	until, err := s.store.GetBlock(ctx, key)
	if err != nil {
		return s.unavailable(ctx, "get_block", err)
	}
	if until != nil {
		return nil
	}
	if err := s.store.Reset(ctx, key); err != nil {
		return s.unavailable(ctx, "reset", err)
	}
	return nil
}
