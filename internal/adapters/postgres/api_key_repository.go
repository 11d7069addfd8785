package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/recurpay/billing-gateway/internal/converters"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// APIKeyRepository implements ports.APIKeyRepository
type APIKeyRepository struct {
	db ports.DBPort
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db ports.DBPort) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `
	id, name, key_hash, prefix, user_id, scopes, is_active,
	expires_at, last_used_at, created_at`

// Create inserts a new API key row. Only the hash is stored.
func (r *APIKeyRepository) Create(ctx context.Context, tx ports.DBTX, key *domain.APIKey) error {
	query := `
	INSERT INTO api_keys (
		id, name, key_hash, prefix, user_id, scopes, is_active,
		expires_at, last_used_at, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&key.ID),
		key.Name,
		key.KeyHash,
		key.Prefix,
		converters.ToNullableUUID(key.UserID),
		key.Scopes,
		key.IsActive,
		converters.ToNullableTimestamptz(key.ExpiresAt),
		converters.ToNullableTimestamptz(key.LastUsedAt),
		key.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("api key hash already exists: %w", err)
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetByHash retrieves an API key by its SHA-256 hash
func (r *APIKeyRepository) GetByHash(ctx context.Context, db ports.DBTX, keyHash string) (*domain.APIKey, error) {
	query := `SELECT` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	key, err := scanAPIKey(exec(r.db, db).QueryRow(ctx, query, keyHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

// TouchLastUsed records key usage
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, db ports.DBTX, id string, at time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`

	_, err := exec(r.db, db).Exec(ctx, query, converters.ToNullableUUID(&id), at)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// Deactivate revokes a key
func (r *APIKeyRepository) Deactivate(ctx context.Context, tx ports.DBTX, id string) error {
	query := `UPDATE api_keys SET is_active = FALSE WHERE id = $1`

	tag, err := exec(r.db, tx).Exec(ctx, query, converters.ToNullableUUID(&id))
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var (
		id                    pgtype.UUID
		name, keyHash, prefix string
		userID                pgtype.UUID
		scopes                []string
		isActive              bool
		expiresAt, lastUsedAt pgtype.Timestamptz
		createdAt             time.Time
	)

	err := row.Scan(&id, &name, &keyHash, &prefix, &userID, &scopes, &isActive,
		&expiresAt, &lastUsedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	return &domain.APIKey{
		ID:         uuidString(id),
		Name:       name,
		KeyHash:    keyHash,
		Prefix:     prefix,
		UserID:     uuidPtr(userID),
		Scopes:     scopes,
		IsActive:   isActive,
		ExpiresAt:  converters.FromNullableTimestamptz(expiresAt),
		LastUsedAt: converters.FromNullableTimestamptz(lastUsedAt),
		CreatedAt:  createdAt.UTC(),
	}, nil
}
