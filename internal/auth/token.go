package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// Leeway absorbs clock skew between this service and the token issuer.
const clockSkewLeeway = 30 * time.Second

// TokenVerifier validates bearer tokens signed with the shared HMAC
// secret. Token issuance lives in the identity service; this side only
// verifies.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier for HS256 tokens. An empty issuer
// skips the iss check.
func NewTokenVerifier(secret []byte, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: secret, issuer: issuer}
}

// Verify parses and validates a bearer token, returning its claims.
// Expired, malformed, or foreign-signed tokens all map to AUTH_INVALID.
func (v *TokenVerifier) Verify(raw string) (*domain.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkewLeeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &domain.TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeAuthInvalid, "invalid bearer token", err)
	}
	if !token.Valid {
		return nil, domain.NewDomainError(domain.ErrorCodeAuthInvalid, "invalid bearer token")
	}
	if claims.Subject == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeAuthInvalid, "token missing subject")
	}
	return claims, nil
}

// Issue mints a token against the shared secret. Used by the seed
// command and tests; production tokens come from the identity service.
func (v *TokenVerifier) Issue(subject, tokenType string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := domain.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		TokenType: tokenType,
		Scopes:    scopes,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
