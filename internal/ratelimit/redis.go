package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces limiter keys in a shared Redis.
const DefaultRedisKeyPrefix = "ratelimit:"

// slidingWindow trims expired members, counts the rest and admits the new
// request only when under budget. Scores are unix milliseconds.
//
// Returns {allowed, count before admission, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end

local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  allowed = 1
end
redis.call('PEXPIRE', key, window)
return {allowed, count, oldest}
`)

// RedisLimiter shares one sliding window per identifier across every API
// replica. Each identifier is a sorted set of request timestamps.
type RedisLimiter struct {
	client    redis.UniversalClient
	config    Config
	keyPrefix string
	now       func() time.Time
}

// NewRedisLimiter creates a limiter on an existing client. The client is not
// closed by the limiter.
func NewRedisLimiter(client redis.UniversalClient, cfg Config, keyPrefix string) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisLimiter{
		client:    client,
		config:    cfg,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

func (l *RedisLimiter) key(identifier string) string {
	return l.keyPrefix + identifier
}

// Allow runs the sliding-window script for identifier.
func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (*Result, error) {
	now := l.now()
	vals, err := slidingWindow.Run(ctx, l.client,
		[]string{l.key(identifier)},
		now.UnixMilli(),
		l.config.Window.Milliseconds(),
		l.config.Requests,
		fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(vals))
	}

	count := int(vals[1])
	return l.config.decide(count, time.UnixMilli(vals[2]), time.UnixMilli(now.UnixMilli())), nil
}

// Reset deletes the window for identifier.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) error {
	return l.client.Del(ctx, l.key(identifier)).Err()
}

// Close is a no-op; the client belongs to the caller.
func (l *RedisLimiter) Close() error {
	return nil
}
