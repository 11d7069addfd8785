package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

const (
	rateLimitKeyPrefix = "ratelimit:"
	windowSeconds      = 3600
)

// tokenBucketScript runs the whole admission check server-side so that
// concurrent callers never interleave a read-modify-write. Returns the
// remaining tokens, or -1 when the request is denied.
//
// An absent or expired key starts a fresh window at limit-1. A live
// window decrements without touching the TTL, so the window boundary is
// fixed by the first request in it.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local tokens = redis.call('GET', key)
if not tokens then
  redis.call('SET', key, limit - 1, 'EX', window)
  return limit - 1
end

local ttl = redis.call('TTL', key)
if ttl < 0 then
  redis.call('SET', key, limit - 1, 'EX', window)
  return limit - 1
end

tokens = tonumber(tokens)
if tokens > 0 then
  redis.call('DECRBY', key, 1)
  return tokens - 1
end
return -1
`)

// RateLimiter implements ports.RateLimiter on Redis. A limiter outage
// must not take payments down with it, so store failures fail open and
// the allowance is logged.
type RateLimiter struct {
	client *redis.Client
	logger ports.Logger
}

// NewRateLimiter creates a Redis-backed rate limiter
func NewRateLimiter(client *redis.Client, logger ports.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
	}
}

// IsAllowed atomically admits or denies one request for the identifier.
// The hourly window holds exactly limitPerHour tokens; burst headroom for
// short spikes is absorbed by the in-process per-IP gate, never by
// inflating the hourly quota.
func (l *RateLimiter) IsAllowed(ctx context.Context, identifier string, limitPerHour, _ int) (ports.RateDecision, error) {
	key := rateLimitKeyPrefix + identifier

	remaining, err := tokenBucketScript.Run(ctx, l.client, []string{key}, limitPerHour, windowSeconds).Int64()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("rate limiter store unavailable, allowing request",
				ports.String("identifier", identifier),
				ports.Err(err),
			)
		}
		return ports.RateDecision{Allowed: true, Remaining: -1, FailedOpen: true}, nil
	}

	if remaining < 0 {
		return ports.RateDecision{Allowed: false, Remaining: -1}, nil
	}
	return ports.RateDecision{Allowed: true, Remaining: remaining}, nil
}
