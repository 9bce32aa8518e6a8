package config

import (
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig configures the Redis token bucket in front of the API.
// Confirm and decline are cheap but public-facing, so the default key
// strategy buckets by user and route.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

var rateLimitDefaults = map[string]interface{}{
	"RATE_LIMIT_ENABLED":         true,
	"RATE_LIMIT_CAPACITY":        60,
	"RATE_LIMIT_REFILL_TOKENS":   1,
	"RATE_LIMIT_REFILL_INTERVAL": "1s",
	"RATE_LIMIT_TTL":             "10m",
	"RATE_LIMIT_KEY_STRATEGY":    "user_route",
	"RATE_LIMIT_PREFIX":          "rl",
	"RATE_LIMIT_DEBUG":           false,
}

func loadRateLimitConfig(v *viper.Viper) RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        v.GetBool("RATE_LIMIT_ENABLED"),
		Capacity:       v.GetInt("RATE_LIMIT_CAPACITY"),
		RefillTokens:   v.GetInt("RATE_LIMIT_REFILL_TOKENS"),
		RefillInterval: v.GetDuration("RATE_LIMIT_REFILL_INTERVAL"),
		TTL:            v.GetDuration("RATE_LIMIT_TTL"),
		KeyStrategy:    v.GetString("RATE_LIMIT_KEY_STRATEGY"),
		Prefix:         v.GetString("RATE_LIMIT_PREFIX"),
		Debug:          v.GetBool("RATE_LIMIT_DEBUG"),
	}
	return c.normalized()
}

// normalized clamps values into a usable range.  The TTL must outlive
// several refill intervals or idle buckets would reset to full capacity.
func (c RateLimitConfig) normalized() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
