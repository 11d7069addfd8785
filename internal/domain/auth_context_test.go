package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/testutil/fixtures"
)

func TestTokenClaims_HasScope(t *testing.T) {
	claims := &domain.TokenClaims{
		TokenType: domain.TokenTypeService,
		Scopes:    []string{domain.ScopePaymentsCreate, domain.ScopeSubscriptionsRead},
	}

	assert.True(t, claims.HasScope(domain.ScopePaymentsCreate))
	assert.True(t, claims.HasScope(domain.ScopeSubscriptionsRead))
	assert.False(t, claims.HasScope(domain.ScopePaymentsRefund))
	assert.False(t, claims.HasScope(domain.ScopePlansWrite))
}

func TestTokenClaims_WildcardScope(t *testing.T) {
	admin := &domain.TokenClaims{
		TokenType: domain.TokenTypeAdmin,
		Scopes:    []string{domain.ScopeAll},
	}

	assert.True(t, admin.HasScope(domain.ScopePaymentsCreate))
	assert.True(t, admin.HasScope(domain.ScopePlansWrite))
	assert.True(t, admin.HasScope(domain.ScopeWebhooksRead))
}

func TestTokenClaims_EmptyScopes(t *testing.T) {
	empty := &domain.TokenClaims{TokenType: domain.TokenTypeUser}
	assert.False(t, empty.HasScope(domain.ScopePaymentsRead))
}

func TestPrincipal_HasScope(t *testing.T) {
	p := &domain.Principal{
		APIKeyID: fixtures.StringPtr("key-1"),
		Scopes:   []string{domain.ScopePaymentsCreate},
	}

	assert.True(t, p.HasScope(domain.ScopePaymentsCreate))
	assert.False(t, p.HasScope(domain.ScopePaymentsVoid))

	wildcard := &domain.Principal{
		UserID: fixtures.StringPtr("user-1"),
		Scopes: []string{domain.ScopeAll},
	}
	assert.True(t, wildcard.HasScope(domain.ScopePaymentsVoid))
}

func TestPrincipal_ActorLabel(t *testing.T) {
	user := &domain.Principal{UserID: fixtures.StringPtr("u-42")}
	assert.Equal(t, "user:u-42", user.ActorLabel())

	key := &domain.Principal{APIKeyID: fixtures.StringPtr("k-7")}
	assert.Equal(t, "apikey:k-7", key.ActorLabel())

	assert.Equal(t, "anonymous", (&domain.Principal{}).ActorLabel())
}
