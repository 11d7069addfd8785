package ports

import (
	"context"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// ChangeTiming selects when a plan change or cancellation takes effect.
type ChangeTiming string

const (
	ChangeImmediate   ChangeTiming = "IMMEDIATE"
	ChangeEndOfPeriod ChangeTiming = "END_OF_PERIOD"
)

// CreateSubscriptionRequest contains parameters for creating a subscription
type CreateSubscriptionRequest struct {
	StartDate          *time.Time
	BillingCycleAnchor *time.Time
	Metadata           map[string]string

	CustomerID      string
	PlanCode        string
	PaymentMethodID string
	CorrelationID   string
	IdempotencyKey  string

	// WithTrial starts the subscription in trial when the plan grants
	// trial days.
	WithTrial bool

	// Prorated creates an immediate first-period invoice instead of
	// waiting for the first cycle to complete.
	Prorated bool
}

// UpdateSubscriptionRequest contains parameters for updating a subscription
type UpdateSubscriptionRequest struct {
	NewPlanCode     *string
	PaymentMethodID *string

	SubscriptionID string
	CorrelationID  string

	// Timing selects an immediate plan change or one scheduled for the
	// period end. Defaults to IMMEDIATE.
	Timing ChangeTiming

	// Prorated applies mid-period proration on an immediate plan change:
	// a charge issues a PRORATE invoice, a credit lands in the ledger.
	Prorated bool
}

// CancelSubscriptionRequest contains parameters for cancelling a subscription
type CancelSubscriptionRequest struct {
	// CancelAt overrides the period end for a scheduled cancellation.
	CancelAt *time.Time

	SubscriptionID string
	Reason         string
	CorrelationID  string
	Timing         ChangeTiming

	// RefundUnused credits the unused remainder of the current period
	// on an immediate cancellation.
	RefundUnused bool
}

// SubscriptionService defines the port for subscription lifecycle operations
type SubscriptionService interface {
	// Create creates a new recurring billing subscription
	Create(ctx context.Context, req *CreateSubscriptionRequest) (*domain.Subscription, error)

	// Update changes the plan or payment method of a subscription
	Update(ctx context.Context, req *UpdateSubscriptionRequest) (*domain.Subscription, error)

	// Cancel cancels a subscription immediately or at period end
	Cancel(ctx context.Context, req *CancelSubscriptionRequest) (*domain.Subscription, error)

	// Pause pauses an active subscription
	Pause(ctx context.Context, subscriptionID string) (*domain.Subscription, error)

	// Resume resumes a paused subscription
	Resume(ctx context.Context, subscriptionID string) (*domain.Subscription, error)

	// Get retrieves subscription details
	Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error)

	// ListByCustomer lists a customer's subscriptions, newest first
	ListByCustomer(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Subscription, error)

	// DueForBilling lists ACTIVE subscriptions whose next billing date
	// has passed
	DueForBilling(ctx context.Context, now time.Time, limit int32) ([]*domain.Subscription, error)

	// AuditTrail lists the audit rows for one subscription, newest first
	AuditTrail(ctx context.Context, subscriptionID string, limit int32) ([]*domain.AuditLog, error)

	// PruneAuditLogs deletes audit rows older than the retention window
	PruneAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error)
}
