package plan

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// Service implements serviceports.PlanService, the plan catalog.
// Interval fields are frozen once any subscription references a plan;
// price and name stay editable and apply to the next billing cycle.
type Service struct {
	db     ports.DBPort
	plans  ports.PlanRepository
	logger ports.Logger
}

// NewService creates a new plan service
func NewService(db ports.DBPort, plans ports.PlanRepository, logger ports.Logger) *Service {
	return &Service{db: db, plans: plans, logger: logger}
}

// Create registers a new plan under a unique code
func (s *Service) Create(ctx context.Context, req *serviceports.CreatePlanRequest) (*domain.SubscriptionPlan, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	plan := &domain.SubscriptionPlan{
		Code:          req.Code,
		Name:          req.Name,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		IntervalUnit:  req.IntervalUnit,
		IntervalCount: req.IntervalCount,
		TrialDays:     req.TrialDays,
		SetupFee:      req.SetupFee,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.plans.Create(ctx, tx, plan)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("plan created",
		ports.String("code", plan.Code),
		ports.String("amount", plan.Amount.StringFixed(2)),
		ports.String("interval", string(plan.IntervalUnit)))

	return plan, nil
}

// Update changes name, price or active flag. Deactivating a plan stops
// new subscriptions; existing ones keep billing at the stored amount.
func (s *Service) Update(ctx context.Context, req *serviceports.UpdatePlanRequest) (*domain.SubscriptionPlan, error) {
	if req.Code == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "code is required")
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must not be negative")
	}

	var plan *domain.SubscriptionPlan
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		plan, err = s.plans.GetByCode(ctx, tx, req.Code)
		if err != nil {
			return err
		}

		if req.Name != nil {
			plan.Name = *req.Name
		}
		if req.Amount != nil {
			plan.Amount = *req.Amount
		}
		if req.IsActive != nil {
			plan.IsActive = *req.IsActive
		}
		plan.UpdatedAt = time.Now().UTC()

		return s.plans.Update(ctx, tx, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Get retrieves a plan by code
func (s *Service) Get(ctx context.Context, code string) (*domain.SubscriptionPlan, error) {
	if code == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "code is required")
	}
	return s.plans.GetByCode(ctx, nil, code)
}

// List lists plans, optionally including inactive ones
func (s *Service) List(ctx context.Context, includeInactive bool) ([]*domain.SubscriptionPlan, error) {
	return s.plans.List(ctx, nil, includeInactive)
}

func validateCreate(req *serviceports.CreatePlanRequest) error {
	if req.Code == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "code is required")
	}
	if req.Name == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "name is required")
	}
	if len(req.Currency) != 3 {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "currency must be a 3-letter code")
	}
	if !domain.ValidIntervalUnit(req.IntervalUnit) {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "interval_unit must be DAY, WEEK, MONTH or YEAR")
	}
	if req.IntervalCount < 1 {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "interval_count must be at least 1")
	}
	if req.TrialDays < 0 {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "trial_days must not be negative")
	}
	if req.Amount.IsNegative() {
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must not be negative")
	}
	if req.SetupFee.IsNegative() {
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "setup_fee must not be negative")
	}
	return nil
}
