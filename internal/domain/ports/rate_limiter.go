package ports

import (
	"context"
)

// Rate limit identifier prefixes.
const (
	RateLimitPrefixIP   = "ip:"
	RateLimitPrefixUser = "user:"
	RateLimitPrefixAPI  = "api:"
)

// RateDecision is the result of one admission check. Remaining is -1
// when the request is denied.
type RateDecision struct {
	Allowed   bool
	Remaining int64
	// FailedOpen is true when the backing store was unavailable and the
	// request was allowed by policy.
	FailedOpen bool
}

// RateLimiter is a distributed token-bucket admission check. Identifiers
// carry a prefix (ip:, user:, api:). Implementations must be atomic per
// key; no read-modify-write over the wire.
type RateLimiter interface {
	IsAllowed(ctx context.Context, identifier string, limitPerHour, burst int) (RateDecision, error)
}
