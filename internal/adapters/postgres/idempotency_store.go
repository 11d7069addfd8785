package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// IdempotencyStore implements ports.IdempotencyStore on the
// idempotency_keys table. The unique index on (family, key) makes the
// insert the single-writer gate.
type IdempotencyStore struct {
	db ports.DBPort
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(db ports.DBPort) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Lookup returns the stored record for (family, key), or nil when absent
func (s *IdempotencyStore) Lookup(ctx context.Context, db ports.DBTX, family, key string) (*ports.IdempotencyRecord, error) {
	query := `
	SELECT family, key, request_hash, response_body, created_at
	FROM idempotency_keys
	WHERE family = $1 AND key = $2`

	var (
		rec       ports.IdempotencyRecord
		createdAt time.Time
	)
	err := exec(s.db, db).QueryRow(ctx, query, family, key).Scan(
		&rec.Family, &rec.Key, &rec.RequestHash, &rec.ResponseBody, &createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	rec.CreatedAt = createdAt.UTC()
	return &rec, nil
}

// Record stores the outcome for (family, key). A prior record under the
// same key with a different request hash fails with IDEMPOTENCY_CONFLICT;
// the same hash leaves the original record in place. ON CONFLICT keeps the
// enclosing transaction healthy when another writer got there first.
func (s *IdempotencyStore) Record(ctx context.Context, tx ports.DBTX, family, key, requestHash string, responseBody []byte) error {
	query := `
	INSERT INTO idempotency_keys (family, key, request_hash, response_body, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (family, key) DO NOTHING`

	tag, err := exec(s.db, tx).Exec(ctx, query, family, key, requestHash, responseBody, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existing, err := s.Lookup(ctx, tx, family, key)
	if err != nil {
		return err
	}
	if existing != nil && existing.RequestHash == requestHash {
		return nil
	}
	return domain.ErrIdempotencyConflict
}
