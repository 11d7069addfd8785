package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// PurchaseRequest charges a payment method in one step (auth + capture).
// Exactly one funding source must be set: Card carries raw details for a
// one-time payment, PaymentMethodID references a stored method.
// SavePaymentMethod tokenizes an approved card at the processor and
// stores it for reuse; tokenization failure never fails the payment.
type PurchaseRequest struct {
	Card            *domain.CardDetails
	BillingAddress  *domain.BillingAddress
	PaymentMethodID *string
	CustomerID      *string
	OrderID         *string

	SavePaymentMethod bool

	Amount         decimal.Decimal
	Currency       string
	CustomerEmail  string
	FirstName      string
	LastName       string
	Description    string
	InvoiceNumber  string
	CorrelationID  string
	IdempotencyKey string
}

// AuthorizeRequest reserves funds without capturing them. Same funding
// source rules as PurchaseRequest.
type AuthorizeRequest struct {
	Card            *domain.CardDetails
	BillingAddress  *domain.BillingAddress
	PaymentMethodID *string
	CustomerID      *string
	OrderID         *string

	SavePaymentMethod bool

	Amount         decimal.Decimal
	Currency       string
	CustomerEmail  string
	FirstName      string
	LastName       string
	Description    string
	InvoiceNumber  string
	CorrelationID  string
	IdempotencyKey string
}

// CaptureRequest settles a prior authorization. Amount nil captures the
// full authorized amount; a partial amount must not exceed it.
type CaptureRequest struct {
	Amount         *decimal.Decimal
	TransactionID  string
	CorrelationID  string
	IdempotencyKey string
}

// VoidRequest cancels an authorization before capture.
type VoidRequest struct {
	TransactionID  string
	CorrelationID  string
	IdempotencyKey string
}

// RefundRequest returns funds from a captured or settled transaction.
// Amount nil refunds the full remaining amount.
type RefundRequest struct {
	Amount         *decimal.Decimal
	TransactionID  string
	Reason         string
	CorrelationID  string
	IdempotencyKey string
}

// CreateOrderRequest registers an order ahead of the payments that
// settle it. The total derives from the components; paid and refunded
// amounts derive from linked transactions at read time.
type CreateOrderRequest struct {
	CustomerID string
	Currency   string
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	Discount   decimal.Decimal
}

// OrderDetail pairs an order with its derived money state.
type OrderDetail struct {
	Order   *domain.Order       `json:"order"`
	Amounts domain.OrderAmounts `json:"amounts"`
}

// OrderService is the order ledger contract, implemented by the payment
// orchestrator alongside PaymentService.
type OrderService interface {
	// CreateOrder registers a new order for a customer
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error)

	// GetOrder retrieves an order with paid/refunded/outstanding amounts
	// aggregated from its transactions
	GetOrder(ctx context.Context, id string) (*OrderDetail, error)

	// ListOrders lists a customer's orders, newest first
	ListOrders(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Order, error)
}

// ReconcileReport summarizes one reconciliation sweep over stale PENDING
// transactions.
type ReconcileReport struct {
	Scanned    int
	Settled    int
	Failed     int
	Unresolved int
}

// PaymentService is the public contract of the payment orchestrator.
// Every mutating operation runs one database transaction and makes at
// most one processor call; an idempotency key replays the stored
// response without contacting the processor again.
type PaymentService interface {
	// Purchase authorizes and captures in one step
	Purchase(ctx context.Context, req *PurchaseRequest) (*domain.Transaction, error)

	// Authorize holds funds on a payment method without capturing
	Authorize(ctx context.Context, req *AuthorizeRequest) (*domain.Transaction, error)

	// Capture completes a previously authorized payment
	Capture(ctx context.Context, req *CaptureRequest) (*domain.Transaction, error)

	// Void cancels an authorization that has not been captured
	Void(ctx context.Context, req *VoidRequest) (*domain.Transaction, error)

	// Refund returns funds to the customer, fully or partially
	Refund(ctx context.Context, req *RefundRequest) (*domain.Transaction, error)

	// GetTransaction retrieves the current transaction view
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// ListTransactions lists a customer's transactions, newest first
	ListTransactions(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Transaction, error)

	// ReconcilePending converges PENDING transactions older than the
	// cutoff against the processor's view
	ReconcilePending(ctx context.Context, olderThan time.Duration, batch int32) (*ReconcileReport, error)
}
