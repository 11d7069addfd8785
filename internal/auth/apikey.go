package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// Key prefixes mark the environment a key was minted for without
// revealing key material.
const (
	KeyPrefixLive = "rk_live"
	KeyPrefixTest = "rk_test"
)

// prefixLen is how many leading characters are persisted alongside the
// hash so operators can match a key in listings.
const prefixLen = 12

// GenerateKey returns fresh API key material: <prefix>_<random>.
// The raw key is shown exactly once; only its hash is stored.
func GenerateKey(environment string) (string, error) {
	prefix := KeyPrefixTest
	if environment == "production" {
		prefix = KeyPrefixLive
	}

	randomBytes := make([]byte, 24)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	encoded := strings.TrimRight(base64.URLEncoding.EncodeToString(randomBytes), "=")

	return fmt.Sprintf("%s_%s", prefix, encoded), nil
}

// HashKey returns the SHA-256 hex digest stored in place of the key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the identifying prefix persisted with the hash.
func KeyPrefix(raw string) string {
	if len(raw) > prefixLen {
		return raw[:prefixLen]
	}
	return raw
}

// Keychain authenticates server-to-server callers by API key and mints
// new keys for the seed and admin paths.
type Keychain struct {
	keys   ports.APIKeyRepository
	logger ports.Logger
}

// NewKeychain creates a keychain over the API key repository
func NewKeychain(keys ports.APIKeyRepository, logger ports.Logger) *Keychain {
	return &Keychain{keys: keys, logger: logger}
}

// Authenticate resolves raw key material to a usable key. Unknown,
// revoked, and expired keys all return AUTH_INVALID so callers cannot
// probe which keys exist.
func (k *Keychain) Authenticate(ctx context.Context, raw string) (*domain.APIKey, error) {
	if raw == "" {
		return nil, domain.ErrAuthMissing
	}

	key, err := k.keys.GetByHash(ctx, nil, HashKey(raw))
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeAPIKeyNotFound) {
			return nil, domain.NewDomainError(domain.ErrorCodeAuthInvalid, "unknown api key")
		}
		return nil, fmt.Errorf("look up api key: %w", err)
	}

	now := time.Now().UTC()
	if !key.IsUsable(now) {
		return nil, domain.NewDomainError(domain.ErrorCodeAuthInvalid, "api key revoked or expired")
	}

	// Usage tracking is best-effort; a failed touch never blocks auth.
	if err := k.keys.TouchLastUsed(ctx, nil, key.ID, now); err != nil {
		k.logger.Warn("failed to record api key use",
			ports.String("key_id", key.ID),
			ports.Err(err))
	}

	return key, nil
}

// Mint creates a new key and returns the raw material once, together
// with the stored row.
func (k *Keychain) Mint(ctx context.Context, name, environment string, userID *string, scopes []string, expiresAt *time.Time) (string, *domain.APIKey, error) {
	raw, err := GenerateKey(environment)
	if err != nil {
		return "", nil, err
	}

	key := &domain.APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyHash:   HashKey(raw),
		Prefix:    KeyPrefix(raw),
		UserID:    userID,
		Scopes:    scopes,
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := k.keys.Create(ctx, nil, key); err != nil {
		return "", nil, fmt.Errorf("store api key: %w", err)
	}

	k.logger.Info("api key minted",
		ports.String("key_id", key.ID),
		ports.String("prefix", key.Prefix),
		ports.String("name", name))

	return raw, key, nil
}

// Revoke deactivates a key by id
func (k *Keychain) Revoke(ctx context.Context, id string) error {
	return k.keys.Deactivate(ctx, nil, id)
}
