package domain

import (
	"time"
)

// User is an operator account. Token issuance lives outside this
// service; users exist here for audit attribution and key ownership.
type User struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
}

// APIKey authenticates server-to-server callers. Only the SHA-256 hash
// of the key material is stored.
type APIKey struct {
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	UserID     *string    `json:"user_id"`
	Scopes     []string   `json:"scopes"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	Prefix     string     `json:"prefix"` // first 12 chars, for identification
	IsActive   bool       `json:"is_active"`
}

// IsUsable returns true if the key may authenticate requests
func (k *APIKey) IsUsable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}

// AuditLog records one mutating operation for traceability.
type AuditLog struct {
	CreatedAt  time.Time         `json:"created_at"`
	Detail     map[string]string `json:"detail,omitempty"`
	ID         string            `json:"id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
}
