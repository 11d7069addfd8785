package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// OutcomeKind discriminates the processor outcome union.
type OutcomeKind string

const (
	OutcomeApproved OutcomeKind = "APPROVED"
	OutcomeDeclined OutcomeKind = "DECLINED"
	OutcomeError    OutcomeKind = "ERROR"
)

// Approval carries the processor's success payload.
type Approval struct {
	SettleAmount *decimal.Decimal
	ExternalID   string
	AuthCode     string
	AVSResult    string
	CVVResult    string
}

// Decline carries a processor decline (the processor answered; the answer
// was no). ExternalID is set when the processor assigned a transaction id
// to the declined attempt, so later webhooks can be matched to it.
type Decline struct {
	Code       string
	Reason     string
	ExternalID string
}

// Fault carries a processor or transport error. Transient faults may be
// retried or resolved later by reconciliation. ExternalID is set when the
// processor answered with a transaction id despite the error.
type Fault struct {
	Code       string
	Message    string
	ExternalID string
	Transient  bool
}

// FaultCodeHeldForReview marks a transaction the processor is holding for
// manual fraud review. Not transient: the hold resolves out of band.
const FaultCodeHeldForReview = "HELD_FOR_REVIEW"

// Outcome is the tagged union returned by every processor operation.
// Exactly one variant pointer is non-nil, matching Kind. Downstream code
// branches on Kind, never on field presence.
type Outcome struct {
	Approved *Approval
	Declined *Decline
	Fault    *Fault

	// RawResponse is the processor's response body, persisted for audit.
	RawResponse  []byte
	ResponseCode string
	Kind         OutcomeKind
}

// NewApprovedOutcome constructs an APPROVED outcome.
func NewApprovedOutcome(a Approval, responseCode string, raw []byte) *Outcome {
	return &Outcome{Kind: OutcomeApproved, Approved: &a, ResponseCode: responseCode, RawResponse: raw}
}

// NewDeclinedOutcome constructs a DECLINED outcome.
func NewDeclinedOutcome(d Decline, responseCode string, raw []byte) *Outcome {
	return &Outcome{Kind: OutcomeDeclined, Declined: &d, ResponseCode: responseCode, RawResponse: raw}
}

// NewErrorOutcome constructs an ERROR outcome.
func NewErrorOutcome(f Fault, responseCode string, raw []byte) *Outcome {
	return &Outcome{Kind: OutcomeError, Fault: &f, ResponseCode: responseCode, RawResponse: raw}
}

// IsApproved reports whether the processor approved the operation.
func (o *Outcome) IsApproved() bool { return o.Kind == OutcomeApproved }

// IsTransient reports whether the outcome is a retryable fault.
func (o *Outcome) IsTransient() bool {
	return o.Kind == OutcomeError && o.Fault != nil && o.Fault.Transient
}

// ChargeRequest represents a purchase or authorization request.
// Exactly one funding source is set: raw Card details for one-time
// payments, or CustomerProfileID+PaymentProfileID for stored methods.
type ChargeRequest struct {
	Card    *domain.CardDetails
	Billing *domain.BillingAddress

	Metadata map[string]string

	Amount            decimal.Decimal
	Currency          string
	CustomerProfileID string
	PaymentProfileID  string
	CustomerEmail     string
	OrderID           string
	InvoiceNumber     string
	CorrelationID     string
}

// CaptureRequest captures a prior authorization. Amount nil captures the
// full authorized amount.
type CaptureRequest struct {
	Amount     *decimal.Decimal
	ExternalID string
}

// RefundRequest refunds a settled transaction. Amount nil refunds the
// full remaining amount. LastFour is required by the processor to
// reference the card without the PAN.
type RefundRequest struct {
	Amount     *decimal.Decimal
	ExternalID string
	LastFour   string
}

// CustomerProfileRequest creates a processor-side customer profile.
type CustomerProfileRequest struct {
	Email             string
	FirstName         string
	LastName          string
	ExternalReference string
}

// PaymentProfileRequest attaches a tokenized payment method to an
// existing customer profile.
type PaymentProfileRequest struct {
	Card              *domain.CardDetails
	Billing           *domain.BillingAddress
	CustomerProfileID string
}

// RecurringRequest creates a processor-side recurring charge (ARB).
type RecurringRequest struct {
	StartDate         time.Time
	TotalOccurrences  *int
	Amount            decimal.Decimal
	Currency          string
	CustomerProfileID string
	PaymentProfileID  string
	IntervalUnit      domain.IntervalUnit
	IntervalCount     int
	Description       string
}

// TransactionInquiry is the processor's current view of a transaction,
// used by the reconciliation sweep to converge local PENDING rows.
type TransactionInquiry struct {
	SettleAmount *decimal.Decimal
	ExternalID   string
	Status       domain.PaymentStatus
	ResponseCode string
}

// ProcessorGateway is the intent-level interface to the card processor.
// Every call carries a deadline via ctx; implementations must not retry
// mutating operations internally.
type ProcessorGateway interface {
	// Purchase authorizes and captures in one step.
	Purchase(ctx context.Context, req *ChargeRequest) (*Outcome, error)

	// Authorize reserves funds without capturing.
	Authorize(ctx context.Context, req *ChargeRequest) (*Outcome, error)

	// Capture settles a prior authorization.
	Capture(ctx context.Context, req *CaptureRequest) (*Outcome, error)

	// Void cancels an authorization that has not been captured.
	Void(ctx context.Context, externalID string) (*Outcome, error)

	// Refund returns settled funds to the cardholder.
	Refund(ctx context.Context, req *RefundRequest) (*Outcome, error)

	// CreateCustomerProfile registers a customer at the processor.
	// Approved.ExternalID carries the profile id.
	CreateCustomerProfile(ctx context.Context, req *CustomerProfileRequest) (*Outcome, error)

	// CreatePaymentProfile tokenizes a payment method under a customer
	// profile. Approved.ExternalID carries the payment profile id.
	CreatePaymentProfile(ctx context.Context, req *PaymentProfileRequest) (*Outcome, error)

	// CreateRecurring creates a processor-managed recurring charge.
	// Approved.ExternalID carries the recurring subscription id.
	CreateRecurring(ctx context.Context, req *RecurringRequest) (*Outcome, error)

	// CancelRecurring cancels a processor-managed recurring charge.
	// Cancelling an already-cancelled subscription is not an error.
	CancelRecurring(ctx context.Context, recurringID string) (*Outcome, error)

	// GetTransaction fetches the processor's view of a transaction.
	GetTransaction(ctx context.Context, externalID string) (*TransactionInquiry, error)
}
