// Package ratelimit throttles mutating requests with a redis-backed token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/config"
)

// The bucket state lives in a hash so refill and take happen atomically.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
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

// Connect opens a redis client and pings it. It returns nil, nil when redis
// is disabled.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to redis", zap.String("addr", cfg.Addr))
	return rdb, nil
}

// Limiter applies a token bucket per client and route
type Limiter struct {
	cfg    config.RateLimitConfig
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// New creates a limiter. A nil client or a disabled config yields a limiter
// whose middleware lets everything through.
func New(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) *Limiter {
	return &Limiter{cfg: cfg, rdb: rdb, logger: logger, now: time.Now}
}

// Enabled reports whether requests are actually being limited
func (l *Limiter) Enabled() bool {
	return l != nil && l.cfg.Enabled && l.rdb != nil
}

// Key builds the bucket key for a request: the authenticated user when there
// is one, otherwise the client IP, followed by the route.
func (l *Limiter) Key(c *gin.Context) string {
	who := "ip:" + c.ClientIP()
	if id, ok := auth.GetUserID(c); ok {
		who = "user:" + strconv.FormatUint(uint64(id), 10)
	}
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return strings.Join([]string{l.cfg.Prefix, who, c.Request.Method + " " + route}, ":")
}

// Middleware limits mutating requests. Safe methods always pass, and redis
// errors fail open.
func (l *Limiter) Middleware() gin.HandlerFunc {
	if !l.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		key := l.Key(c)
		args := []interface{}{
			l.now().UnixMilli(),
			l.cfg.Capacity,
			l.cfg.RefillTokens,
			l.cfg.RefillInterval.Milliseconds(),
			int64(l.cfg.TTL / time.Second),
		}
		vals, err := bucketScript.Run(c.Request.Context(), l.rdb, []string{key}, args...).Int64Slice()
		if err != nil || len(vals) != 3 {
			l.logger.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(vals[1], 10))

		if vals[0] != 1 {
			secs := int(math.Ceil(float64(vals[2]) / 1000.0))
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": secs,
			})
			return
		}
		c.Next()
	}
}
