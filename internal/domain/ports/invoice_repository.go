package ports

import (
	"context"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// InvoiceRepository defines the interface for subscription invoice persistence
type InvoiceRepository interface {
	// Create inserts a new invoice. Number is unique.
	Create(ctx context.Context, tx DBTX, inv *domain.SubscriptionInvoice) error

	// GetByID retrieves an invoice by ID
	GetByID(ctx context.Context, db DBTX, id string) (*domain.SubscriptionInvoice, error)

	// GetByIDForUpdate retrieves an invoice and locks its row so a single
	// worker claims the payment attempt
	GetByIDForUpdate(ctx context.Context, tx DBTX, id string) (*domain.SubscriptionInvoice, error)

	// GetByNumber retrieves an invoice by its unique number
	GetByNumber(ctx context.Context, db DBTX, number string) (*domain.SubscriptionInvoice, error)

	// Update persists mutable invoice fields
	Update(ctx context.Context, tx DBTX, inv *domain.SubscriptionInvoice) error

	// GetBillForPeriod returns the PENDING, PROCESSING or PAID BILL
	// invoice covering the subscription period starting at periodStart,
	// or nil when the period has no live invoice. SETUP and PRORATE
	// invoices never count: they share period dates without covering
	// the period's charge.
	GetBillForPeriod(ctx context.Context, db DBTX, subscriptionID string, periodStart time.Time) (*domain.SubscriptionInvoice, error)

	// ListRetryable lists FAILED invoices whose next_payment_attempt <= now
	// and payment_attempts < maxAttempts
	ListRetryable(ctx context.Context, db DBTX, now time.Time, maxAttempts int, limit int32) ([]*domain.SubscriptionInvoice, error)

	// ListBySubscription lists invoices for a subscription, newest first
	ListBySubscription(ctx context.Context, db DBTX, subscriptionID string, limit, offset int32) ([]*domain.SubscriptionInvoice, error)

	// NextNumber allocates the next invoice number from the database
	// sequence, formatted INV-YYYYMM-NNNNNN
	NextNumber(ctx context.Context, db DBTX, now time.Time) (string, error)
}
