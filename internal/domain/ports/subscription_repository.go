package ports

import (
	"context"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// SubscriptionRepository defines the interface for subscription persistence
type SubscriptionRepository interface {
	// Create inserts a new subscription
	Create(ctx context.Context, tx DBTX, sub *domain.Subscription) error

	// GetByID retrieves a subscription by its ID
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Subscription, error)

	// GetByIDForUpdate retrieves a subscription and locks its row,
	// serializing billing per subscription
	GetByIDForUpdate(ctx context.Context, tx DBTX, id string) (*domain.Subscription, error)

	// Update persists mutable subscription fields
	Update(ctx context.Context, tx DBTX, sub *domain.Subscription) error

	// ListByCustomer lists subscriptions for a customer, newest first
	ListByCustomer(ctx context.Context, db DBTX, customerID string, limit, offset int32) ([]*domain.Subscription, error)

	// ListDueForBilling lists ACTIVE subscriptions with
	// next_billing_date <= now
	ListDueForBilling(ctx context.Context, db DBTX, now time.Time, limit int32) ([]*domain.Subscription, error)

	// ListTrialsEnding lists ACTIVE subscriptions whose trial has ended
	// but whose billing has not moved past the trial
	ListTrialsEnding(ctx context.Context, db DBTX, now time.Time, limit int32) ([]*domain.Subscription, error)

	// ListScheduledCancellations lists subscriptions with
	// scheduled_cancel_at <= now still awaiting enactment
	ListScheduledCancellations(ctx context.Context, db DBTX, now time.Time, limit int32) ([]*domain.Subscription, error)

	// ListScheduledPlanChanges lists subscriptions with
	// scheduled_plan_change_at <= now still awaiting enactment
	ListScheduledPlanChanges(ctx context.Context, db DBTX, now time.Time, limit int32) ([]*domain.Subscription, error)
}
