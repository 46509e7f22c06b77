package store

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a WindowStore backed by the window_counters and
// window_blocks tables. Increment is a single upsert so concurrent callers
// never lose updates.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a PostgresStore on an existing connection pool
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{pool: db.Pool, now: time.Now}
}

func (s *PostgresStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	query := `
		INSERT INTO window_counters (key, count, window_start, updated_at)
		VALUES ($1, 1, $2::timestamptz, $2::timestamptz)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN $2::timestamptz - window_counters.window_start > $3::bigint * INTERVAL '1 millisecond' THEN 1
				ELSE window_counters.count + 1
			END,
			window_start = CASE
				WHEN $2::timestamptz - window_counters.window_start > $3::bigint * INTERVAL '1 millisecond' THEN $2::timestamptz
				ELSE window_counters.window_start
			END,
			updated_at = $2::timestamptz
		RETURNING count, window_start
	`

	var w Window
	err := s.pool.QueryRow(ctx, query, key, s.now().UTC(), window.Milliseconds()).Scan(&w.Count, &w.WindowStart)
	if err != nil {
		return Window{}, unavailable("increment", err)
	}
	return w, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Window, error) {
	query := `SELECT count, window_start FROM window_counters WHERE key = $1`

	var w Window
	err := s.pool.QueryRow(ctx, query, key).Scan(&w.Count, &w.WindowStart)
	if errors.Is(err, pgx.ErrNoRows) {
		return Window{}, nil
	}
	if err != nil {
		return Window{}, unavailable("get", err)
	}
	return w, nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	query := `
		WITH cleared AS (
			DELETE FROM window_counters WHERE key = $1
		)
		DELETE FROM window_blocks WHERE key = $1
	`

	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

func (s *PostgresStore) SetBlock(ctx context.Context, key string, until time.Time) error {
	query := `
		INSERT INTO window_blocks (key, blocked_until)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET blocked_until = EXCLUDED.blocked_until
	`

	if _, err := s.pool.Exec(ctx, query, key, until.UTC()); err != nil {
		return unavailable("set block", err)
	}
	return nil
}

func (s *PostgresStore) GetBlock(ctx context.Context, key string) (*time.Time, error) {
	query := `SELECT blocked_until FROM window_blocks WHERE key = $1 AND blocked_until > $2`

	var until time.Time
	err := s.pool.QueryRow(ctx, query, key, s.now().UTC()).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get block", err)
	}
	return &until, nil
}

// PurgeExpired removes elapsed blocks and counters idle for longer than idle
func (s *PostgresStore) PurgeExpired(ctx context.Context, idle time.Duration) (int64, error) {
	now := s.now().UTC()

	blocks, err := s.pool.Exec(ctx, `DELETE FROM window_blocks WHERE blocked_until <= $1`, now)
	if err != nil {
		return 0, unavailable("purge blocks", err)
	}
	counters, err := s.pool.Exec(ctx, `DELETE FROM window_counters WHERE updated_at < $1`, now.Add(-idle))
	if err != nil {
		return 0, unavailable("purge counters", err)
	}

	return blocks.RowsAffected() + counters.RowsAffected(), nil
}
