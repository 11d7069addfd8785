package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditLedgerEntry records a credit owed to a customer, typically from
// downgrade proration or prorated cancellation refunds. Open credit is
// consumed by future billing attempts, oldest entry first.
type CreditLedgerEntry struct {
	CreatedAt      time.Time  `json:"created_at"`
	AppliedAt      *time.Time `json:"applied_at"`
	AppliedInvoice *string    `json:"applied_invoice"` // invoice number that consumed it

	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id"`
	SubscriptionID string          `json:"subscription_id"`
	Currency       string          `json:"currency"`
	Reason         string          `json:"reason"`
	Amount         decimal.Decimal `json:"amount"` // positive value owed to the customer
	Remaining      decimal.Decimal `json:"remaining"`
}

// IsOpen returns true while credit remains to apply
func (c *CreditLedgerEntry) IsOpen() bool {
	return c.Remaining.IsPositive()
}
