package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/config"
)

// tokenBucketScript refills the bucket continuously at
// refill/interval tokens per millisecond and takes one token if it can.
// It returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
	local cap, refill, every_ms, ttl = tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
	local now = tonumber(ARGV[1])
	local rate = 0
	if every_ms > 0 then rate = refill / every_ms end

	local level = tonumber(redis.call('HGET', KEYS[1], 'level')) or cap
	local seen = tonumber(redis.call('HGET', KEYS[1], 'seen_ms')) or now
	if now > seen then
		level = math.min(cap, level + (now - seen) * rate)
	end

	local ok, wait = 0, 0
	if level >= 1 then
		ok = 1
		level = level - 1
	elseif rate > 0 then
		wait = math.ceil((1 - level) / rate)
	else
		wait = ttl * 1000
	end

	redis.call('HSET', KEYS[1], 'level', tostring(level), 'seen_ms', now)
	redis.call('EXPIRE', KEYS[1], ttl)
	return { ok, math.floor(level), wait }
`)

// decision is the outcome of one bucket check.
type decision struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

// RateLimiter is a Redis token bucket shared by every API instance.
type RateLimiter struct {
	cfg config.RateLimitConfig
	rdb redis.Scripter
	log logrus.FieldLogger
	now func() time.Time
}

// NewRateLimiter returns a limiter, or nil when limiting is disabled or
// Redis is unavailable.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) *RateLimiter {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RateLimiter{cfg: cfg, rdb: rdb, log: log, now: time.Now}
}

func (l *RateLimiter) take(ctx context.Context, key string) (decision, error) {
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{key},
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		int64(l.cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return decision{}, err
	}
	return parseDecision(vals)
}

func parseDecision(vals interface{}) (decision, error) {
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return decision{}, fmt.Errorf("unexpected script result %#v", vals)
	}
	return decision{
		allowed:    asInt64(arr[0]) == 1,
		remaining:  asInt64(arr[1]),
		retryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

// Middleware applies the limiter.  A nil limiter or a Redis error lets the
// request through.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l == nil {
			return next
		}
		return func(c echo.Context) error {
			key := rateKey(l.cfg, c)
			d, err := l.take(c.Request().Context(), key)
			if err != nil {
				if l.cfg.Debug {
					l.log.WithError(err).WithField("key", key).Warn("ratelimit: redis check failed")
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if !d.allowed {
				secs := int(math.Ceil(d.retryAfter.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "Too many requests. Please slow down.",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// asInt64 reads one element of the script reply.
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

// rateKey builds the bucket key for the configured strategy.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	segments := map[string][]string{
		"ip":    {"ip", ip},
		"user":  {"user", CurrentUserID(c)},
		"route": {"route", c.Request().Method + " " + c.Path()},
	}
	var pick []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip", "user", "route":
		pick = []string{strings.ToLower(cfg.KeyStrategy)}
	case "user_route":
		pick = []string{"user", "route"}
	default:
		pick = []string{"ip", "user", "route"}
	}
	key := []string{cfg.Prefix}
	for _, p := range pick {
		key = append(key, segments[p]...)
	}
	return strings.Join(key, ":")
}
