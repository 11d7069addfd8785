package middleware

import (
	"net/http"
	"strings"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/handlers/respond"
)

// APIKeyHeader carries raw API key material for server-to-server calls.
const APIKeyHeader = "X-API-Key"

// Authenticator resolves bearer tokens and API keys to a principal.
type Authenticator struct {
	verifier *auth.TokenVerifier
	keychain *auth.Keychain
	logger   ports.Logger
}

// NewAuthenticator creates the authentication middleware
func NewAuthenticator(verifier *auth.TokenVerifier, keychain *auth.Keychain, logger ports.Logger) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		keychain: keychain,
		logger:   logger,
	}
}

// Middleware authenticates the request via Authorization: Bearer or
// X-API-Key and attaches the principal to the context. Requests
// presenting neither are rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			principal *domain.Principal
			err       error
		)

		switch {
		case bearerToken(r) != "":
			principal, err = a.fromBearer(bearerToken(r))
		case r.Header.Get(APIKeyHeader) != "":
			principal, err = a.fromAPIKey(r)
		default:
			err = domain.ErrAuthMissing
		}

		if err != nil {
			a.logger.Warn("authentication failed",
				ports.String("path", r.URL.Path),
				ports.String("remote", clientIP(r)),
				ports.Err(err))
			respond.Error(w, a.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// RequireScopes enforces that the principal carries every listed scope.
// Must run after Middleware.
func (a *Authenticator) RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, scope := range scopes {
				if err := auth.RequireScope(r.Context(), scope); err != nil {
					respond.Error(w, a.logger, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) fromBearer(token string) (*domain.Principal, error) {
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	subject := claims.Subject
	userID := &subject
	if claims.UserID != nil {
		userID = claims.UserID
	}
	return &domain.Principal{UserID: userID, Scopes: claims.Scopes}, nil
}

func (a *Authenticator) fromAPIKey(r *http.Request) (*domain.Principal, error) {
	key, err := a.keychain.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
	if err != nil {
		return nil, err
	}
	return &domain.Principal{APIKeyID: &key.ID, UserID: key.UserID, Scopes: key.Scopes}, nil
}

// bearerToken extracts the token from the Authorization header, empty
// when the scheme is not Bearer.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
