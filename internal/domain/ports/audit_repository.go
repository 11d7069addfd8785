package ports

import (
	"context"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// AuditLogRepository records mutating operations for traceability.
// Audit writes are best-effort: failures are logged, never propagated.
type AuditLogRepository interface {
	// Create inserts an audit row
	Create(ctx context.Context, tx DBTX, entry *domain.AuditLog) error

	// ListByEntity lists audit rows for one entity, newest first
	ListByEntity(ctx context.Context, db DBTX, entityType, entityID string, limit int32) ([]*domain.AuditLog, error)

	// DeleteOlderThan prunes audit rows created before cutoff
	DeleteOlderThan(ctx context.Context, tx DBTX, cutoff time.Time) (int64, error)
}

// APIKeyRepository defines the interface for API key persistence
type APIKeyRepository interface {
	// Create inserts a new API key row (hash, never the key material)
	Create(ctx context.Context, tx DBTX, key *domain.APIKey) error

	// GetByHash retrieves an API key by its SHA-256 hash
	GetByHash(ctx context.Context, db DBTX, keyHash string) (*domain.APIKey, error)

	// TouchLastUsed records key usage; best-effort
	TouchLastUsed(ctx context.Context, db DBTX, id string, at time.Time) error

	// Deactivate revokes a key
	Deactivate(ctx context.Context, tx DBTX, id string) error
}
