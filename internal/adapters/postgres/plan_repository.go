package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/recurpay/billing-gateway/internal/converters"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// PlanRepository implements ports.PlanRepository
type PlanRepository struct {
	db ports.DBPort
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db ports.DBPort) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `
	code, name, amount, currency, interval_unit, interval_count,
	trial_days, setup_fee, is_active, created_at, updated_at`

// Create inserts a new plan; duplicate codes surface as PLAN_CODE_TAKEN
func (r *PlanRepository) Create(ctx context.Context, tx ports.DBTX, plan *domain.SubscriptionPlan) error {
	query := `
	INSERT INTO subscription_plans (
		code, name, amount, currency, interval_unit, interval_count,
		trial_days, setup_fee, is_active, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := exec(r.db, tx).Exec(ctx, query,
		plan.Code,
		plan.Name,
		converters.ToNumeric(plan.Amount),
		plan.Currency,
		string(plan.IntervalUnit),
		plan.IntervalCount,
		plan.TrialDays,
		converters.ToNumeric(plan.SetupFee),
		plan.IsActive,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPlanCodeTaken
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// GetByCode retrieves a plan by its unique code
func (r *PlanRepository) GetByCode(ctx context.Context, db ports.DBTX, code string) (*domain.SubscriptionPlan, error) {
	query := `SELECT` + planColumns + ` FROM subscription_plans WHERE code = $1`

	plan, err := scanPlan(exec(r.db, db).QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// Update persists mutable plan fields
func (r *PlanRepository) Update(ctx context.Context, tx ports.DBTX, plan *domain.SubscriptionPlan) error {
	query := `
	UPDATE subscription_plans SET
		name = $2,
		amount = $3,
		trial_days = $4,
		setup_fee = $5,
		is_active = $6,
		updated_at = $7
	WHERE code = $1`

	tag, err := exec(r.db, tx).Exec(ctx, query,
		plan.Code,
		plan.Name,
		converters.ToNumeric(plan.Amount),
		plan.TrialDays,
		converters.ToNumeric(plan.SetupFee),
		plan.IsActive,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

// List lists plans, optionally including inactive ones
func (r *PlanRepository) List(ctx context.Context, db ports.DBTX, includeInactive bool) ([]*domain.SubscriptionPlan, error) {
	query := `SELECT` + planColumns + ` FROM subscription_plans WHERE is_active OR $1 ORDER BY code`

	rows, err := exec(r.db, db).Query(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.SubscriptionPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

// CountSubscriptions counts subscriptions referencing the plan code
func (r *PlanRepository) CountSubscriptions(ctx context.Context, db ports.DBTX, code string) (int64, error) {
	query := `SELECT COUNT(*) FROM subscriptions WHERE plan_code = $1`

	var count int64
	if err := exec(r.db, db).QueryRow(ctx, query, code).Scan(&count); err != nil {
		return 0, fmt.Errorf("count plan subscriptions: %w", err)
	}
	return count, nil
}

func scanPlan(row pgx.Row) (*domain.SubscriptionPlan, error) {
	var (
		code, name, currency, intervalUnit string
		amount, setupFee                   pgtype.Numeric
		intervalCount, trialDays           int
		isActive                           bool
		createdAt, updatedAt               time.Time
	)

	err := row.Scan(
		&code, &name, &amount, &currency, &intervalUnit, &intervalCount,
		&trialDays, &setupFee, &isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &domain.SubscriptionPlan{
		Code:          code,
		Name:          name,
		Amount:        converters.FromNumeric(amount),
		Currency:      currency,
		IntervalUnit:  domain.IntervalUnit(intervalUnit),
		IntervalCount: intervalCount,
		TrialDays:     trialDays,
		SetupFee:      converters.FromNumeric(setupFee),
		IsActive:      isActive,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     updatedAt.UTC(),
	}, nil
}
