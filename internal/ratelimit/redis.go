package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces limiter keys in a shared Redis.
const DefaultKeyPrefix = "club:apply:rl:"

// slidingWindowScript prunes, counts and records in one atomic step.
//
// KEYS[1]  sorted set of attempt timestamps (ms)
// ARGV[1]  window (ms)
// ARGV[2]  limit
// ARGV[3]  now (ms)
// ARGV[4]  member id
//
// Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    return {0, count, tonumber(oldest[2])}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// Redis is a sliding-window limiter shared between instances through Redis.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
}

// NewRedis returns a Redis-backed limiter. An empty prefix uses
// DefaultKeyPrefix.
func NewRedis(client redis.UniversalClient, cfg Config, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, cfg: cfg.withDefaults(), prefix: prefix}
}

// NewRedisFromURL parses a redis:// URL and returns a limiter using it.
func NewRedisFromURL(url string, cfg Config) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), cfg, ""), nil
}

// Check implements Limiter. On a Redis failure it allows the attempt and
// returns the error.
func (r *Redis) Check(ctx context.Context, identity string, now time.Time) (Decision, error) {
	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.prefix + identity},
		r.cfg.Window.Milliseconds(),
		r.cfg.Limit,
		now.UnixMilli(),
		strconv.FormatInt(now.UnixMilli(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 3 {
		return Decision{Allowed: true}, fmt.Errorf("redis sliding window: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Remaining: r.cfg.Limit - int(res[1])}, nil
	}
	return Decision{RetryAfter: retryAfter(time.UnixMilli(res[2]), now, r.cfg.Window)}, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
