// Package store provides fixed-window counters and blocks shared by the
// rate limiter and the lockout manager.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is wrapped by every backend failure
var ErrUnavailable = errors.New("window store unavailable")

// Window is the state of one counter
type Window struct {
	Count       int
	WindowStart time.Time
}

// WindowStore counts events in fixed windows and holds time-boxed blocks.
// Increment must be atomic: when now - WindowStart > window the count
// restarts at 1 with WindowStart = now in the same step.
type WindowStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (Window, error)
	Get(ctx context.Context, key string) (Window, error)
	// Reset clears both the counter and any block for key
	Reset(ctx context.Context, key string) error
	SetBlock(ctx context.Context, key string, until time.Time) error
	// GetBlock returns nil when key is not blocked or the block has expired
	GetBlock(ctx context.Context, key string) (*time.Time, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
