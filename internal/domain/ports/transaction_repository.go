package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// TransactionRepository defines the interface for transaction persistence
type TransactionRepository interface {
	// Create inserts a new transaction row
	Create(ctx context.Context, tx DBTX, txn *domain.Transaction) error

	// GetByID retrieves a transaction by its ID
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Transaction, error)

	// GetByIDForUpdate retrieves a transaction and locks its row for the
	// duration of the surrounding transaction
	GetByIDForUpdate(ctx context.Context, tx DBTX, id string) (*domain.Transaction, error)

	// GetByIdempotencyKey retrieves a transaction by its idempotency key
	GetByIdempotencyKey(ctx context.Context, db DBTX, key string) (*domain.Transaction, error)

	// GetByProcessorID retrieves a transaction by the processor's
	// transaction id, used by inbound webhooks and reconciliation
	GetByProcessorID(ctx context.Context, db DBTX, processorID string) (*domain.Transaction, error)

	// Update persists mutable transaction fields (status, processor id,
	// response fields, processed_at, response blob)
	Update(ctx context.Context, tx DBTX, txn *domain.Transaction) error

	// SumSettledRefunds sums the amounts of SETTLED refund children of the
	// given parent transaction
	SumSettledRefunds(ctx context.Context, db DBTX, parentID string) (decimal.Decimal, error)

	// ListByCustomer lists transactions for a customer, newest first
	ListByCustomer(ctx context.Context, db DBTX, customerID string, limit, offset int32) ([]*domain.Transaction, error)

	// ListByOrder lists transactions linked to an order, oldest first,
	// for deriving order amounts
	ListByOrder(ctx context.Context, db DBTX, orderID string) ([]*domain.Transaction, error)

	// ListPendingOlderThan lists PENDING transactions created before the
	// cutoff that have a processor id, for the reconciliation sweep
	ListPendingOlderThan(ctx context.Context, db DBTX, cutoff time.Time, limit int32) ([]*domain.Transaction, error)
}
