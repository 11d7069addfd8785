package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims represents the JWT token claims for authorization
type TokenClaims struct {
	jwt.RegisteredClaims

	TokenType string  `json:"token_type"` // "user" | "service" | "admin"
	UserID    *string `json:"user_id"`

	// Permissions
	Scopes []string `json:"scopes"` // ["payments:create", "subscriptions:write", etc.]
}

// TokenType constants
const (
	TokenTypeUser    = "user"
	TokenTypeService = "service"
	TokenTypeAdmin   = "admin"
)

// Scope constants
const (
	ScopePaymentsCreate     = "payments:create"
	ScopePaymentsRead       = "payments:read"
	ScopePaymentsVoid       = "payments:void"
	ScopePaymentsRefund     = "payments:refund"
	ScopeSubscriptionsRead  = "subscriptions:read"
	ScopeSubscriptionsWrite = "subscriptions:write"
	ScopePlansRead          = "plans:read"
	ScopePlansWrite         = "plans:write"
	ScopeWebhooksRead       = "webhooks:read"
	ScopeAll                = "*"
)

// HasScope checks if the token has a specific scope
func (c *TokenClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
	}
	return false
}

// Principal identifies the authenticated caller for auditing. Exactly
// one of UserID or APIKeyID is set depending on the auth path.
type Principal struct {
	UserID   *string
	APIKeyID *string
	Scopes   []string
}

// HasScope checks if the principal carries a specific scope
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
	}
	return false
}

// ActorLabel returns a stable identifier for audit log rows.
func (p *Principal) ActorLabel() string {
	switch {
	case p.UserID != nil:
		return "user:" + *p.UserID
	case p.APIKeyID != nil:
		return "apikey:" + *p.APIKeyID
	default:
		return "anonymous"
	}
}
