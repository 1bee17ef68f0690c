package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bustrack/internal/config"
)

var tokenBucket = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local interval_ms = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + intervals)
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RedisLimiter is a token bucket shared by every api instance. Redis
// failures fail open.
type RedisLimiter struct {
	client   *redis.Client
	capacity int
	interval time.Duration
	ttl      time.Duration
	prefix   string
	log      zerolog.Logger
}

func NewRedisLimiter(client *redis.Client, cfg config.RateLimitConfig, log zerolog.Logger) *RedisLimiter {
	ttl := cfg.Window
	if ttl < time.Second {
		ttl = time.Second
	}
	return &RedisLimiter{
		client:   client,
		capacity: cfg.Capacity,
		interval: refillInterval(cfg.Capacity, cfg.Window),
		ttl:      ttl,
		prefix:   cfg.Prefix,
		log:      log,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	args := []interface{}{
		time.Now().UnixMilli(),
		l.capacity,
		l.interval.Milliseconds(),
		int64(l.ttl / time.Second),
	}

	vals, err := tokenBucket.Run(ctx, l.client, []string{redisKey}, args...).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("key", redisKey).Msg("rate limit check failed, allowing")
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		l.log.Warn().Interface("result", vals).Str("key", redisKey).Msg("unexpected rate limit result, allowing")
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	return Decision{
		Allowed:    asInt64(arr[0]) == 1,
		Remaining:  int(asInt64(arr[1])),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
