package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// TransactionBuilder provides a fluent API for building test transactions.
type TransactionBuilder struct {
	txn *domain.Transaction
}

// NewTransaction creates a transaction builder with sensible defaults:
// a $100.00 card purchase sitting in PENDING.
func NewTransaction() *TransactionBuilder {
	now := time.Now().UTC()
	return &TransactionBuilder{
		txn: &domain.Transaction{
			ID:                uuid.NewString(),
			CorrelationID:     uuid.NewString(),
			Type:              domain.TransactionTypePurchase,
			Status:            domain.PaymentStatusPending,
			PaymentMethodKind: domain.PaymentMethodCard,
			Amount:            decimal.RequireFromString("100.00"),
			Currency:          "USD",
			CustomerID:        StringPtr(uuid.NewString()),
			CreatedAt:         now,
		},
	}
}

func (b *TransactionBuilder) WithID(id string) *TransactionBuilder {
	b.txn.ID = id
	return b
}

func (b *TransactionBuilder) WithType(t domain.TransactionType) *TransactionBuilder {
	b.txn.Type = t
	return b
}

func (b *TransactionBuilder) WithStatus(s domain.PaymentStatus) *TransactionBuilder {
	b.txn.Status = s
	return b
}

func (b *TransactionBuilder) WithAmount(amount string) *TransactionBuilder {
	b.txn.Amount = decimal.RequireFromString(amount)
	return b
}

func (b *TransactionBuilder) WithCurrency(currency string) *TransactionBuilder {
	b.txn.Currency = currency
	return b
}

func (b *TransactionBuilder) WithParent(parentID string) *TransactionBuilder {
	b.txn.ParentID = StringPtr(parentID)
	return b
}

func (b *TransactionBuilder) WithCustomerID(customerID string) *TransactionBuilder {
	b.txn.CustomerID = StringPtr(customerID)
	return b
}

func (b *TransactionBuilder) WithProcessorID(externalID string) *TransactionBuilder {
	b.txn.ExternalProcessorID = StringPtr(externalID)
	return b
}

func (b *TransactionBuilder) WithIdempotencyKey(key string) *TransactionBuilder {
	b.txn.IdempotencyKey = StringPtr(key)
	return b
}

// Authorized shapes the row as a successful authorization.
func (b *TransactionBuilder) Authorized() *TransactionBuilder {
	b.txn.Type = domain.TransactionTypeAuthorize
	b.txn.Status = domain.PaymentStatusAuthorized
	b.txn.ExternalProcessorID = StringPtr("proc-" + uuid.NewString()[:8])
	b.txn.AuthCode = StringPtr("AUTH01")
	b.txn.ProcessedAt = TimePtr(time.Now().UTC())
	return b
}

// Settled shapes the row as a settled purchase.
func (b *TransactionBuilder) Settled() *TransactionBuilder {
	b.txn.Type = domain.TransactionTypePurchase
	b.txn.Status = domain.PaymentStatusSettled
	b.txn.ExternalProcessorID = StringPtr("proc-" + uuid.NewString()[:8])
	b.txn.AuthCode = StringPtr("AUTH01")
	b.txn.ProcessedAt = TimePtr(time.Now().UTC())
	return b
}

// RefundOf shapes the row as a settled refund child of parent.
func (b *TransactionBuilder) RefundOf(parent *domain.Transaction, amount string) *TransactionBuilder {
	b.txn.Type = domain.TransactionTypeRefund
	b.txn.Status = domain.PaymentStatusSettled
	b.txn.ParentID = StringPtr(parent.ID)
	b.txn.Amount = decimal.RequireFromString(amount)
	b.txn.Currency = parent.Currency
	return b
}

// Build returns the constructed transaction.
func (b *TransactionBuilder) Build() *domain.Transaction {
	txn := *b.txn
	return &txn
}
