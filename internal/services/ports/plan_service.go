package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// CreatePlanRequest contains parameters for creating a plan
type CreatePlanRequest struct {
	Code          string
	Name          string
	Currency      string
	IntervalUnit  domain.IntervalUnit
	IntervalCount int
	TrialDays     int
	Amount        decimal.Decimal
	SetupFee      decimal.Decimal
}

// UpdatePlanRequest contains mutable plan fields. Interval fields are
// immutable once any subscription references the plan.
type UpdatePlanRequest struct {
	Name     *string
	Amount   *decimal.Decimal
	IsActive *bool
	Code     string
}

// PlanService defines the port for plan catalog operations
type PlanService interface {
	// Create registers a new plan under a unique code
	Create(ctx context.Context, req *CreatePlanRequest) (*domain.SubscriptionPlan, error)

	// Update changes name, price or active flag
	Update(ctx context.Context, req *UpdatePlanRequest) (*domain.SubscriptionPlan, error)

	// Get retrieves a plan by code
	Get(ctx context.Context, code string) (*domain.SubscriptionPlan, error)

	// List lists plans, optionally including inactive ones
	List(ctx context.Context, includeInactive bool) ([]*domain.SubscriptionPlan, error)
}
