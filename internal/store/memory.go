package store

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count     int
	start     time.Time
	expiresAt time.Time
}

// MemoryStore is a process-local WindowStore. It is suitable for advisory
// limiting and tests; counts are not shared between replicas.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	blocks  map[string]time.Time
	now     func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*memoryWindow),
		blocks:  make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, unavailable("increment", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) > window {
		w = &memoryWindow{start: now}
		s.windows[key] = w
	}
	w.count++
	w.expiresAt = w.start.Add(window)

	return Window{Count: w.count, WindowStart: w.start}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return Window{}, nil
	}
	return Window{Count: w.count, WindowStart: w.start}, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	delete(s.blocks, key)
	return nil
}

func (s *MemoryStore) SetBlock(ctx context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[key] = until
	return nil
}

func (s *MemoryStore) GetBlock(ctx context.Context, key string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.blocks[key]
	if !ok || !s.now().Before(until) {
		return nil, nil
	}
	return &until, nil
}

// Sweep drops expired windows and blocks and returns how many entries were removed
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if now.After(w.expiresAt) {
			delete(s.windows, key)
			removed++
		}
	}
	for key, until := range s.blocks {
		if !now.Before(until) {
			delete(s.blocks, key)
			removed++
		}
	}
	return removed
}
