package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the payment state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "PENDING"
	InvoiceStatusProcessing InvoiceStatus = "PROCESSING"
	InvoiceStatusPaid       InvoiceStatus = "PAID"
	InvoiceStatusFailed     InvoiceStatus = "FAILED"
	InvoiceStatusCancelled  InvoiceStatus = "CANCELLED"
)

// InvoiceType classifies why the invoice was issued
type InvoiceType string

const (
	InvoiceTypeBill    InvoiceType = "BILL"    // regular period charge
	InvoiceTypeSetup   InvoiceType = "SETUP"   // one-time setup fee
	InvoiceTypeProrate InvoiceType = "PRORATE" // mid-period plan change charge
)

// SubscriptionInvoice represents one charge owed by a subscription.
// Number is unique and human-readable; PaymentAttempts counts processor
// attempts made by the dunning loop.
type SubscriptionInvoice struct {
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	PeriodStart        time.Time  `json:"period_start"`
	PeriodEnd          time.Time  `json:"period_end"`
	DueDate            time.Time  `json:"due_date"`
	NextPaymentAttempt *time.Time `json:"next_payment_attempt"`
	PaidAt             *time.Time `json:"paid_at"`

	LinkedTransactionID *string `json:"linked_transaction_id"`

	ID              string          `json:"id"`
	Number          string          `json:"number"` // unique
	SubscriptionID  string          `json:"subscription_id"`
	Currency        string          `json:"currency"`
	Type            InvoiceType     `json:"type"`
	Status          InvoiceStatus   `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentAttempts int             `json:"payment_attempts"`
}

// IsOpen returns true while the invoice can still be collected
func (i *SubscriptionInvoice) IsOpen() bool {
	return i.Status == InvoiceStatusPending ||
		i.Status == InvoiceStatusProcessing ||
		i.Status == InvoiceStatusFailed
}

// IsSettledState returns true for PAID and CANCELLED invoices
func (i *SubscriptionInvoice) IsSettledState() bool {
	return i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled
}

// CanRetry reports whether another payment attempt is allowed under the
// given maximum.
func (i *SubscriptionInvoice) CanRetry(maxAttempts int) bool {
	return i.Status == InvoiceStatusFailed && i.PaymentAttempts < maxAttempts
}
