package ports

import (
	"context"
	"time"
)

// Operation families scoping idempotency keys. The same key may be used
// independently across families.
const (
	IdempotencyFamilyPayment            = "payment"
	IdempotencyFamilySubscriptionCreate = "subscription-create"
	IdempotencyFamilyRefund             = "refund"
	IdempotencyFamilyBillingAttempt     = "billing-attempt"
)

// IdempotencyRecord is a stored operation outcome. ResponseBody is
// returned byte-for-byte on replay.
type IdempotencyRecord struct {
	CreatedAt    time.Time
	Family       string
	Key          string
	RequestHash  string
	ResponseBody []byte
}

// IdempotencyStore persists operation outcomes under caller-supplied keys.
// Record must execute inside the same database transaction as the outcome
// it protects; a unique index on (family, key) makes the insert the
// single-writer gate.
type IdempotencyStore interface {
	// Lookup returns the stored record for (family, key), or nil when absent
	Lookup(ctx context.Context, db DBTX, family, key string) (*IdempotencyRecord, error)

	// Record stores the outcome for (family, key). A prior record under
	// the same key with a different requestHash fails with
	// IDEMPOTENCY_CONFLICT.
	Record(ctx context.Context, tx DBTX, family, key, requestHash string, responseBody []byte) error
}
