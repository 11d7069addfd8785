package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/middleware"
	"github.com/recurpay/billing-gateway/test/mocks"
)

const authTestSecret = "mw-test-secret"

type authFixture struct {
	verifier *auth.TokenVerifier
	keychain *auth.Keychain
	mw       *middleware.Authenticator
}

func newAuthFixture() *authFixture {
	verifier := auth.NewTokenVerifier([]byte(authTestSecret), "identity.recurpay")
	keychain := auth.NewKeychain(mocks.NewMockAPIKeyRepository(), mocks.NewMockLogger())
	return &authFixture{
		verifier: verifier,
		keychain: keychain,
		mw:       middleware.NewAuthenticator(verifier, keychain, mocks.NewMockLogger()),
	}
}

// capture records the principal the middleware installed.
func capture(principal **domain.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.PrincipalFrom(r.Context()); ok {
			*principal = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator_AcceptsBearerToken(t *testing.T) {
	f := newAuthFixture()
	token, err := f.verifier.Issue("user-7", domain.TokenTypeUser,
		[]string{domain.ScopePaymentsCreate}, time.Hour)
	require.NoError(t, err)

	var principal *domain.Principal
	req := httptest.NewRequest(http.MethodGet, "/payments/txn-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	f.mw.Middleware(capture(&principal)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
	require.NotNil(t, principal.UserID)
	assert.Equal(t, "user-7", *principal.UserID)
	assert.True(t, principal.HasScope(domain.ScopePaymentsCreate))
}

func TestAuthenticator_AcceptsAPIKey(t *testing.T) {
	f := newAuthFixture()
	raw, key, err := f.keychain.Mint(context.Background(), "worker", "development", nil,
		[]string{domain.ScopeAll}, nil)
	require.NoError(t, err)

	var principal *domain.Principal
	req := httptest.NewRequest(http.MethodGet, "/payments/txn-1", nil)
	req.Header.Set(middleware.APIKeyHeader, raw)
	rec := httptest.NewRecorder()

	f.mw.Middleware(capture(&principal)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
	require.NotNil(t, principal.APIKeyID)
	assert.Equal(t, key.ID, *principal.APIKeyID)
	assert.True(t, principal.HasScope(domain.ScopePlansWrite), "wildcard covers all scopes")
}

func TestAuthenticator_RejectsMissingCredentials(t *testing.T) {
	f := newAuthFixture()

	req := httptest.NewRequest(http.MethodGet, "/payments/txn-1", nil)
	rec := httptest.NewRecorder()

	f.mw.Middleware(capture(new(*domain.Principal))).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.ErrorCodeAuthMissing))
}

func TestAuthenticator_RejectsBadToken(t *testing.T) {
	f := newAuthFixture()

	req := httptest.NewRequest(http.MethodGet, "/payments/txn-1", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	f.mw.Middleware(capture(new(*domain.Principal))).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.ErrorCodeAuthInvalid))
}

func TestAuthenticator_RejectsUnknownAPIKey(t *testing.T) {
	f := newAuthFixture()

	req := httptest.NewRequest(http.MethodGet, "/payments/txn-1", nil)
	req.Header.Set(middleware.APIKeyHeader, "rk_test_unknown")
	rec := httptest.NewRecorder()

	f.mw.Middleware(capture(new(*domain.Principal))).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScopes_EnforcesScope(t *testing.T) {
	f := newAuthFixture()
	token, err := f.verifier.Issue("user-7", domain.TokenTypeUser,
		[]string{domain.ScopePaymentsRead}, time.Hour)
	require.NoError(t, err)

	handler := f.mw.Middleware(
		f.mw.RequireScopes(domain.ScopePaymentsRefund)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	req := httptest.NewRequest(http.MethodPost, "/payments/txn-1/refund", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.ErrorCodeAuthAccessDenied))
}

func TestRequireScopes_PassesWithScope(t *testing.T) {
	f := newAuthFixture()
	token, err := f.verifier.Issue("user-7", domain.TokenTypeUser,
		[]string{domain.ScopePaymentsRefund}, time.Hour)
	require.NoError(t, err)

	handler := f.mw.Middleware(
		f.mw.RequireScopes(domain.ScopePaymentsRefund)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	req := httptest.NewRequest(http.MethodPost, "/payments/txn-1/refund", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
