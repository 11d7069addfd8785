package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents where a transaction sits in its lifecycle.
// Transitions are restricted to the edges encoded in CanTransitionTo;
// terminal statuses never change.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusAuthorized        PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured          PaymentStatus = "CAPTURED"
	PaymentStatusSettled           PaymentStatus = "SETTLED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusVoided            PaymentStatus = "VOIDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusPendingReview     PaymentStatus = "PENDING_REVIEW"
)

// paymentStatusEdges encodes every legal lifecycle transition.
var paymentStatusEdges = map[PaymentStatus][]PaymentStatus{
	// PENDING->SETTLED covers approved purchases (auth+capture in one step);
	// PENDING->PENDING_REVIEW covers fraud holds reported by the processor.
	PaymentStatusPending:    {PaymentStatusAuthorized, PaymentStatusSettled, PaymentStatusFailed, PaymentStatusPendingReview},
	PaymentStatusAuthorized: {PaymentStatusCaptured, PaymentStatusVoided, PaymentStatusFailed},
	PaymentStatusCaptured:   {PaymentStatusSettled, PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
	PaymentStatusSettled:    {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
	// Repeated partial refunds stay PARTIALLY_REFUNDED until the full
	// amount is returned.
	PaymentStatusPartiallyRefunded: {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
	PaymentStatusPendingReview:     {PaymentStatusSettled, PaymentStatusFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentStatusEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status never changes again.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusVoided || s == PaymentStatusRefunded
}

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeAuthorize     TransactionType = "AUTHORIZE"
	TransactionTypeCapture       TransactionType = "CAPTURE"
	TransactionTypeVoid          TransactionType = "VOID"
	TransactionTypeRefund        TransactionType = "REFUND"
	TransactionTypePartialRefund TransactionType = "PARTIAL_REFUND"
	TransactionTypePurchase      TransactionType = "PURCHASE"
)

// PaymentMethodKind represents the payment method family used on a transaction
type PaymentMethodKind string

const (
	PaymentMethodCard PaymentMethodKind = "CARD"
	PaymentMethodACH  PaymentMethodKind = "ACH"
)

// Transaction represents one ledger entry of money movement.
// Rows are immutable once Status is terminal. ParentID links captures,
// voids and refunds to their originating authorization or purchase.
type Transaction struct {
	CreatedAt           time.Time         `json:"created_at"`
	ProcessedAt         *time.Time        `json:"processed_at"`
	ParentID            *string           `json:"parent_id"`
	CustomerID          *string           `json:"customer_id"`
	PaymentMethodID     *string           `json:"payment_method_id"`
	OrderID             *string           `json:"order_id"`
	ExternalProcessorID *string           `json:"external_processor_id"`
	IdempotencyKey      *string           `json:"idempotency_key"`
	AuthCode            *string           `json:"auth_code"`
	ResponseCode        *string           `json:"response_code"`
	AVSResult           *string           `json:"avs_result"`
	CVVResult           *string           `json:"cvv_result"`
	RequestBlob         []byte            `json:"request_blob,omitempty"`
	ResponseBlob        []byte            `json:"response_blob,omitempty"`
	ID                  string            `json:"id"`
	CorrelationID       string            `json:"correlation_id"`
	Currency            string            `json:"currency"`
	Type                TransactionType   `json:"type"`
	Status              PaymentStatus     `json:"status"`
	PaymentMethodKind   PaymentMethodKind `json:"payment_method_kind"`
	Amount              decimal.Decimal   `json:"amount"`
}

// CanBeCaptured returns true if the transaction can be captured
func (t *Transaction) CanBeCaptured() bool {
	return t.Status == PaymentStatusAuthorized && t.Type == TransactionTypeAuthorize
}

// CanBeVoided returns true if the transaction can be voided
func (t *Transaction) CanBeVoided() bool {
	return t.Status == PaymentStatusAuthorized
}

// CanBeRefunded returns true if the transaction can accept refunds
func (t *Transaction) CanBeRefunded() bool {
	return t.Status == PaymentStatusCaptured ||
		t.Status == PaymentStatusSettled ||
		t.Status == PaymentStatusPartiallyRefunded
}

// IsRefundType returns true for full and partial refund entries
func (t *Transaction) IsRefundType() bool {
	return t.Type == TransactionTypeRefund || t.Type == TransactionTypePartialRefund
}

// GetCustomerID safely retrieves the customer ID
func (t *Transaction) GetCustomerID() string {
	if t.CustomerID != nil {
		return *t.CustomerID
	}
	return ""
}

// GetExternalProcessorID safely retrieves the processor transaction ID
func (t *Transaction) GetExternalProcessorID() string {
	if t.ExternalProcessorID != nil {
		return *t.ExternalProcessorID
	}
	return ""
}
