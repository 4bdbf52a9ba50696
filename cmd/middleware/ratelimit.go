package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"eventDesk/internal/dto"
)

type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
	Block       time.Duration
	Prefix      string
}

// DefaultRateLimitConfig allows 10 submissions per 15 minutes and blocks
// an address for an hour once it goes over.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:     true,
		MaxRequests: 10,
		Window:      15 * time.Minute,
		Block:       time.Hour,
		Prefix:      "rl",
	}
}

// Limiter decides whether key may make another request. retryAfter is set
// when the answer is no.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// A fixed window counter; overflowing it sets a block key that outlives the window.
var windowScript = redis.NewScript(`
local hits = KEYS[1]
local block = KEYS[2]
local max = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local block_ms = tonumber(ARGV[3])

local blocked = redis.call('PTTL', block)
if blocked > 0 then
	return {0, blocked}
end

local n = redis.call('INCR', hits)
if n == 1 then
	redis.call('PEXPIRE', hits, window_ms)
end
if n > max then
	redis.call('SET', block, '1', 'PX', block_ms)
	redis.call('DEL', hits)
	return {0, block_ms}
end
return {1, 0}
`)

type RedisLimiter struct {
	rdb *redis.Client
	cfg RateLimitConfig
}

func NewRedisLimiter(rdb *redis.Client, cfg RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	keys := []string{
		l.cfg.Prefix + ":hits:" + key,
		l.cfg.Prefix + ":block:" + key,
	}
	vals, err := windowScript.Run(ctx, l.rdb, keys,
		l.cfg.MaxRequests,
		l.cfg.Window.Milliseconds(),
		l.cfg.Block.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected result %v", vals)
	}
	return vals[0] == 1, time.Duration(vals[1]) * time.Millisecond, nil
}

// RateLimit rejects clients over the limit with 429. A nil limiter or a
// disabled config lets everything through, and limiter errors fail open.
func RateLimit(l Limiter, cfg RateLimitConfig, log *zerolog.Logger) gin.HandlerFunc {
	if !cfg.Enabled || l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		allowed, retry, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			log.Warn().Err(err).Str("client_ip", ip).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			secs := int(math.Ceil(retry.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			log.Info().Str("client_ip", ip).Int("retry_after", secs).Msg("request rate limited")
			dto.ErrorResponse(c, http.StatusTooManyRequests, dto.TooManyRequests,
				fmt.Sprintf("Too many submissions, try again in %d minutes", int(math.Ceil(retry.Minutes()))))
			return
		}
		c.Next()
	}
}
