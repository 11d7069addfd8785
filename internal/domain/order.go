package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order groups one customer purchase. Monetary totals are derived: Total
// from the order's own components, paid/refunded amounts from the linked
// transactions.
type Order struct {
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Currency   string          `json:"currency"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Discount   decimal.Decimal `json:"discount"`
}

// Total returns subtotal + tax + shipping - discount
func (o *Order) Total() decimal.Decimal {
	return o.Subtotal.Add(o.Tax).Add(o.Shipping).Sub(o.Discount)
}

// OrderAmounts summarizes the money state of an order, computed by
// aggregating its transactions.
type OrderAmounts struct {
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Refunded    decimal.Decimal `json:"refunded"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// ComputeOrderAmounts derives paid/refunded/outstanding amounts from the
// order's linked transactions. Only settled money counts: purchases and
// captures in SETTLED (or beyond, for refund states) add to paid; refund
// children in SETTLED add to refunded.
func ComputeOrderAmounts(o *Order, txns []*Transaction) OrderAmounts {
	total := o.Total()
	paid := decimal.Zero
	refunded := decimal.Zero

	for _, t := range txns {
		switch {
		case t.IsRefundType():
			if t.Status == PaymentStatusSettled {
				refunded = refunded.Add(t.Amount)
			}
		case t.Type == TransactionTypePurchase || t.Type == TransactionTypeCapture:
			switch t.Status {
			case PaymentStatusSettled, PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
				paid = paid.Add(t.Amount)
			}
		}
	}

	return OrderAmounts{
		Total:       total,
		Paid:        paid,
		Refunded:    refunded,
		Outstanding: total.Sub(paid).Add(refunded),
	}
}
