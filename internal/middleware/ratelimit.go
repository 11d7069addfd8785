package middleware

import (
	"net/http"
	"strconv"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/handlers/respond"
	"github.com/recurpay/billing-gateway/pkg/observability"
)

// RateLimit applies the distributed token bucket per caller. Identifiers
// prefer the authenticated principal over the client address, so keyed
// callers behind one NAT are limited independently.
type RateLimit struct {
	limiter ports.RateLimiter
	logger  ports.Logger
	perHour int
	burst   int
}

// NewRateLimit creates the rate limiting middleware
func NewRateLimit(limiter ports.RateLimiter, perHour, burst int, logger ports.Logger) *RateLimit {
	return &RateLimit{
		limiter: limiter,
		logger:  logger,
		perHour: perHour,
		burst:   burst,
	}
}

// Middleware admits or rejects the request. Limiter errors fail open; a
// broken limiter must not take payment traffic down with it.
func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := rl.identify(r)

		decision, err := rl.limiter.IsAllowed(r.Context(), identifier, rl.perHour, rl.burst)
		if err != nil {
			rl.logger.Warn("rate limiter error, allowing request",
				ports.String("identifier", identifier),
				ports.Err(err))
			observability.RecordRateLimitDecision("failed_open")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perHour))
		if !decision.Allowed {
			w.Header().Set("X-RateLimit-Remaining", "0")
			observability.RecordRateLimitDecision("denied")
			respond.Error(w, rl.logger, domain.ErrRateLimited)
			return
		}

		if decision.FailedOpen {
			observability.RecordRateLimitDecision("failed_open")
		} else {
			observability.RecordRateLimitDecision("allowed")
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		}
		next.ServeHTTP(w, r)
	})
}

// identify picks the bucket key for this request
func (rl *RateLimit) identify(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		switch {
		case p.APIKeyID != nil:
			return ports.RateLimitPrefixAPI + *p.APIKeyID
		case p.UserID != nil:
			return ports.RateLimitPrefixUser + *p.UserID
		}
	}

	ip := auth.ClientIPFrom(r.Context())
	if ip == "" {
		ip = clientIP(r)
	}
	return ports.RateLimitPrefixIP + ip
}
