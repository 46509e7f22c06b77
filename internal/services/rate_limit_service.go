package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/store"
)

// MaxBatchSize caps bulk operations
const MaxBatchSize = 100

// OperationLimits resolves the limit triple for an operation type
type OperationLimits interface {
	OperationLimit(op string) models.OperationLimit
}

// RateLimitMode decides what happens when the store is unreachable
type RateLimitMode int

const (
	// Advisory limiters allow requests when the store fails
	Advisory RateLimitMode = iota
	// Authoritative limiters reject requests when the store fails
	Authoritative
)

// RateLimitService enforces fixed-window limits per operation and caller key
type RateLimitService struct {
	store  store.WindowStore
	limits OperationLimits
	audit  Auditor
	mode   RateLimitMode
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(ws store.WindowStore, limits OperationLimits, audit Auditor, mode RateLimitMode, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  ws,
		limits: limits,
		audit:  audit,
		mode:   mode,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for block deadlines
func (s *RateLimitService) WithClock(now func() time.Time) *RateLimitService {
	s.now = now
	return s
}

func rateLimitKey(operation, key string) string {
	return "rl:" + operation + ":" + key
}

// CheckAndConsume counts one request. Exactly MaxRequests requests pass per
// window; the next one is rejected and blocks the key for BlockDuration.
func (s *RateLimitService) CheckAndConsume(ctx context.Context, operation, callerKey string) (*models.RateLimitResult, error) {
	if operation == "" || callerKey == "" {
		return nil, fmt.Errorf("operation and key are required: %w", models.ErrBadRequest)
	}

	limit := s.limits.OperationLimit(operation)
	key := rateLimitKey(operation, callerKey)

	until, err := s.store.GetBlock(ctx, key)
	if err != nil {
		return s.storeFailure(ctx, operation, limit, err)
	}
	if until != nil {
		return &models.RateLimitResult{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      *until,
			BlockedUntil: until,
		}, nil
	}

	w, err := s.store.Increment(ctx, key, limit.Window)
	if err != nil {
		return s.storeFailure(ctx, operation, limit, err)
	}

	if w.Count > limit.MaxRequests {
		blockedUntil := s.now().Add(limit.BlockDuration).UTC()
		if err := s.store.Reset(ctx, key); err != nil {
			return s.storeFailure(ctx, operation, limit, err)
		}
		if err := s.store.SetBlock(ctx, key, blockedUntil); err != nil {
			return s.storeFailure(ctx, operation, limit, err)
		}

		s.audit.Record(ctx, &models.AuditLog{
			EventType:  models.AuditEventRateLimitExceeded,
			Severity:   models.SeverityWarn,
			Identifier: strPtr(callerKey),
			Action:     operation,
			Success:    false,
			Metadata: models.Metadata{
				"max_requests":  limit.MaxRequests,
				"window":        limit.Window.String(),
				"blocked_until": blockedUntil.Format(time.RFC3339),
			},
		})

		return &models.RateLimitResult{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      blockedUntil,
			BlockedUntil: &blockedUntil,
		}, nil
	}

	return &models.RateLimitResult{
		Allowed:   true,
		Remaining: limit.MaxRequests - w.Count,
		ResetAt:   w.WindowStart.Add(limit.Window),
	}, nil
}

func (s *RateLimitService) storeFailure(ctx context.Context, operation string, limit models.OperationLimit, err error) (*models.RateLimitResult, error) {
	if s.mode == Advisory {
		s.logger.WarnContext(ctx, "rate limit store unavailable, allowing request",
			slog.String("operation", operation),
			slog.Any("error", err),
		)
		return &models.RateLimitResult{
			Allowed:   true,
			Remaining: limit.MaxRequests,
			ResetAt:   s.now().Add(limit.Window).UTC(),
		}, nil
	}

	s.logger.ErrorContext(ctx, "rate limit store unavailable",
		slog.String("operation", operation),
		slog.Any("error", err),
	)
	return nil, fmt.Errorf("rate limit %s: %w: %w", operation, models.ErrServiceUnavailable, err)
}

// Reset clears the counter and block for a caller
func (s *RateLimitService) Reset(ctx context.Context, operation, callerKey string) error {
	if err := s.store.Reset(ctx, rateLimitKey(operation, callerKey)); err != nil {
		return fmt.Errorf("rate limit reset: %w: %w", models.ErrServiceUnavailable, err)
	}
	return nil
}

// ValidateBatchSize rejects empty batches and batches above MaxBatchSize
func ValidateBatchSize(n int) error {
	if n < 1 || n > MaxBatchSize {
		return fmt.Errorf("batch size must be between 1 and %d: %w", MaxBatchSize, models.ErrBadRequest)
	}
	return nil
}
