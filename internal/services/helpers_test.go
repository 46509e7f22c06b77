package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore fails every operation the way a backend outage does
type failingStore struct{}

var errBackendDown = errors.New("connection refused")

func (failingStore) fail(op string) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, errBackendDown)
}

func (s failingStore) Increment(ctx context.Context, key string, window time.Duration) (store.Window, error) {
	return store.Window{}, s.fail("increment")
}

func (s failingStore) Get(ctx context.Context, key string) (store.Window, error) {
	return store.Window{}, s.fail("get")
}

func (s failingStore) Reset(ctx context.Context, key string) error {
	return s.fail("reset")
}

func (s failingStore) SetBlock(ctx context.Context, key string, until time.Time) error {
	return s.fail("set_block")
}

func (s failingStore) GetBlock(ctx context.Context, key string) (*time.Time, error) {
	return nil, s.fail("get_block")
}

func strptr(s string) *string {
	return &s
}
