package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow prunes, counts and records in one step so concurrent instances cannot
// both admit the last slot.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
    return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLimiter shares the window across service instances.
type RedisLimiter struct {
	rdb    *redis.Client
	cfg    Config
	clock  Clock
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, cfg Config, clock Clock) *RedisLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{
		rdb:    rdb,
		cfg:    cfg.withDefaults(),
		clock:  clock,
		prefix: "ratelimit:",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.clock().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	res, err := slidingWindow.Run(ctx, l.rdb,
		[]string{l.prefix + key},
		now, l.cfg.Window.Milliseconds(), l.cfg.MaxRequests, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis: %w", err)
	}
	return res == 1, nil
}
