package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a per-caller sliding window rate limit on the
// webhook ingress using Redis. Each caller gets a sorted set of request
// timestamps; a Lua script atomically trims the window, checks the
// count, and admits or rejects.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
}

// Lua script for atomic sliding window rate limiting:
// 1. Remove entries older than the window
// 2. Count remaining entries
// 3. Under the limit: add this request, return 1 (allowed)
// 4. At/over the limit: return 0 (denied)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func rlKey(caller string) string {
	return fmt.Sprintf("rl:ingress:%s", caller)
}

// Allow checks whether an ingress request from this caller is within the
// rate limit. A limit of zero disables limiting, and Redis failures fail
// open — a throttling outage must never drop consent events.
func (rl *RateLimiter) Allow(ctx context.Context, caller string, limit int) bool {
	if limit <= 0 {
		return true
	}

	key := rlKey(caller)
	now := time.Now().UnixMilli()
	window := int64(1000) // 1 second window in milliseconds
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key},
		now, window, limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "caller", caller)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", "caller", caller, "limit", limit)
		return false
	}

	return true
}
