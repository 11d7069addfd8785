package auth

import (
	"context"

	"github.com/recurpay/billing-gateway/internal/domain"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	requestIDKey contextKey = "request_id"
	clientIPKey  contextKey = "client_ip"
)

// WithPrincipal attaches the authenticated caller to the context
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the authenticated caller, if any
func PrincipalFrom(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*domain.Principal)
	return p, ok && p != nil
}

// IsAuthenticated reports whether the context carries a principal
func IsAuthenticated(ctx context.Context) bool {
	_, ok := PrincipalFrom(ctx)
	return ok
}

// RequireScope checks that the caller holds a scope. Missing principal
// maps to AUTH_MISSING, missing scope to AUTH_ACCESS_DENIED.
func RequireScope(ctx context.Context, scope string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return domain.ErrAuthMissing
	}
	if !p.HasScope(scope) {
		return domain.NewDomainError(domain.ErrorCodeAuthAccessDenied, "missing required scope").
			WithDetail("scope", scope)
	}
	return nil
}

// Actor returns the audit label for the caller, "anonymous" when
// unauthenticated.
func Actor(ctx context.Context) string {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return "anonymous"
	}
	return p.ActorLabel()
}

// WithRequestID attaches the request correlation id to the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom extracts the request correlation id, empty if unset
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP attaches the resolved client address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFrom extracts the resolved client address, empty if unset
func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
