package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript resets the window when it has elapsed, otherwise increments.
// KEYS[1] counter hash; ARGV[1] now (ms); ARGV[2] window (ms).
// Returns {count, window_start_ms}.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
local count
if start == nil or (now - start) > window then
    start = now
    count = 1
    redis.call('HSET', KEYS[1], 'start', start, 'count', 1)
else
    count = redis.call('HINCRBY', KEYS[1], 'count', 1)
end
redis.call('PEXPIRE', KEYS[1], window * 2)
return {count, start}
`)

// RedisStore is a WindowStore shared by all service instances
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies connectivity.
// The returned store is safe for concurrent use.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	return NewRedisStoreFromClient(rdb, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// Close shuts down the Redis client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// HealthCheck pings Redis
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) counterKey(key string) string {
	return s.prefix + "win:" + key
}

func (s *RedisStore) blockKey(key string) string {
	return s.prefix + "blk:" + key
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	now := s.now().UnixMilli()
	vals, err := incrementScript.Run(ctx, s.rdb, []string{s.counterKey(key)}, now, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, unavailable("increment", err)
	}
	if len(vals) != 2 {
		return Window{}, unavailable("increment", fmt.Errorf("unexpected script reply length %d", len(vals)))
	}

	return Window{Count: int(vals[0]), WindowStart: time.UnixMilli(vals[1])}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Window, error) {
	vals, err := s.rdb.HMGet(ctx, s.counterKey(key), "count", "start").Result()
	if err != nil {
		return Window{}, unavailable("get", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Window{}, nil
	}

	count, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return Window{}, unavailable("get", err)
	}
	start, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return Window{}, unavailable("get", err)
	}

	return Window{Count: count, WindowStart: time.UnixMilli(start)}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.counterKey(key), s.blockKey(key)).Err(); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

func (s *RedisStore) SetBlock(ctx context.Context, key string, until time.Time) error {
	err := s.rdb.SetArgs(ctx, s.blockKey(key), until.UnixMilli(), redis.SetArgs{ExpireAt: until}).Err()
	if err != nil {
		return unavailable("set block", err)
	}
	return nil
}

func (s *RedisStore) GetBlock(ctx context.Context, key string) (*time.Time, error) {
	ms, err := s.rdb.Get(ctx, s.blockKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get block", err)
	}

	until := time.UnixMilli(ms)
	if !s.now().Before(until) {
		return nil, nil
	}
	return &until, nil
}
