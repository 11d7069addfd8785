package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/test/mocks"
)

func newKeychain() (*auth.Keychain, *mocks.MockAPIKeyRepository) {
	repo := mocks.NewMockAPIKeyRepository()
	return auth.NewKeychain(repo, mocks.NewMockLogger()), repo
}

func TestGenerateKey_PrefixesByEnvironment(t *testing.T) {
	live, err := auth.GenerateKey("production")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(live, "rk_live_"), live)

	test, err := auth.GenerateKey("development")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(test, "rk_test_"), test)

	again, err := auth.GenerateKey("production")
	require.NoError(t, err)
	assert.NotEqual(t, live, again, "key material must be random")
}

func TestKeychain_MintAndAuthenticate(t *testing.T) {
	kc, _ := newKeychain()
	ctx := context.Background()

	raw, key, err := kc.Mint(ctx, "billing-worker", "production", nil,
		[]string{domain.ScopePaymentsCreate}, nil)
	require.NoError(t, err)
	assert.Equal(t, auth.HashKey(raw), key.KeyHash)
	assert.Equal(t, raw[:12], key.Prefix)
	assert.True(t, key.IsActive)

	got, err := kc.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, []string{domain.ScopePaymentsCreate}, got.Scopes)
}

func TestKeychain_RecordsKeyUse(t *testing.T) {
	kc, repo := newKeychain()
	ctx := context.Background()

	raw, key, err := kc.Mint(ctx, "k", "development", nil, nil, nil)
	require.NoError(t, err)

	_, err = kc.Authenticate(ctx, raw)
	require.NoError(t, err)

	stored, err := repo.GetByHash(ctx, nil, key.KeyHash)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
}

func TestKeychain_RejectsEmptyKey(t *testing.T) {
	kc, _ := newKeychain()

	_, err := kc.Authenticate(context.Background(), "")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAuthMissing))
}

func TestKeychain_RejectsUnknownKey(t *testing.T) {
	kc, _ := newKeychain()

	_, err := kc.Authenticate(context.Background(), "rk_test_does-not-exist")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAuthInvalid),
		"unknown keys must not be distinguishable from revoked ones")
}

func TestKeychain_RejectsRevokedKey(t *testing.T) {
	kc, _ := newKeychain()
	ctx := context.Background()

	raw, key, err := kc.Mint(ctx, "k", "development", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, kc.Revoke(ctx, key.ID))

	_, err = kc.Authenticate(ctx, raw)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAuthInvalid))
}

func TestKeychain_RejectsExpiredKey(t *testing.T) {
	kc, _ := newKeychain()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	raw, _, err := kc.Mint(ctx, "k", "development", nil, nil, &past)
	require.NoError(t, err)

	_, err = kc.Authenticate(ctx, raw)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAuthInvalid))
}
