package ports

import (
	"context"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// PlanRepository defines the interface for subscription plan persistence
type PlanRepository interface {
	// Create inserts a new plan. Code is unique.
	Create(ctx context.Context, tx DBTX, plan *domain.SubscriptionPlan) error

	// GetByCode retrieves a plan by its unique code
	GetByCode(ctx context.Context, db DBTX, code string) (*domain.SubscriptionPlan, error)

	// Update persists mutable plan fields (name, amount, active flag).
	// Interval fields are immutable once a subscription references the plan.
	Update(ctx context.Context, tx DBTX, plan *domain.SubscriptionPlan) error

	// List lists plans, optionally including inactive ones
	List(ctx context.Context, db DBTX, includeInactive bool) ([]*domain.SubscriptionPlan, error)

	// CountSubscriptions counts subscriptions referencing the plan code,
	// used to enforce interval immutability
	CountSubscriptions(ctx context.Context, db DBTX, code string) (int64, error)
}
