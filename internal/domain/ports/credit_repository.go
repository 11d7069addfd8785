package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// CreditRepository defines the interface for the customer credit ledger.
// Credit originates from downgrade proration and prorated cancellation
// refunds; billing consumes it oldest entry first.
type CreditRepository interface {
	// Create inserts a credit ledger entry
	Create(ctx context.Context, tx DBTX, entry *domain.CreditLedgerEntry) error

	// ListOpenForUpdate lists open entries for a customer in the given
	// currency, oldest first, locking the rows
	ListOpenForUpdate(ctx context.Context, tx DBTX, customerID, currency string) ([]*domain.CreditLedgerEntry, error)

	// Consume reduces an entry's remaining balance, recording the invoice
	// number that consumed it once the entry is exhausted
	Consume(ctx context.Context, tx DBTX, entryID string, amount decimal.Decimal, invoiceNumber string) error

	// OpenBalance sums the remaining credit for a customer and currency
	OpenBalance(ctx context.Context, db DBTX, customerID, currency string) (decimal.Decimal, error)
}
