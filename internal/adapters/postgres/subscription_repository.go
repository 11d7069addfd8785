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

// SubscriptionRepository implements ports.SubscriptionRepository
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, customer_id, plan_code, payment_method_id, status,
	current_period_start, current_period_end, billing_cycle_anchor,
	next_billing_date, trial_start, trial_end, cancelled_at,
	scheduled_cancel_at, scheduled_plan_code, scheduled_plan_change_at,
	cancellation_reason, processor_recurring_id, metadata,
	created_at, updated_at`

// Create inserts a new subscription
func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	query := `
	INSERT INTO subscriptions (
		id, customer_id, plan_code, payment_method_id, status,
		current_period_start, current_period_end, billing_cycle_anchor,
		next_billing_date, trial_start, trial_end, cancelled_at,
		scheduled_cancel_at, scheduled_plan_code, scheduled_plan_change_at,
		cancellation_reason, processor_recurring_id, metadata,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)`

	metadata, err := marshalMap(sub.Metadata)
	if err != nil {
		return err
	}

	_, err = exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&sub.ID),
		converters.ToNullableUUID(&sub.CustomerID),
		sub.PlanCode,
		converters.ToNullableUUID(&sub.PaymentMethodID),
		string(sub.Status),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.BillingCycleAnchor,
		converters.ToNullableTimestamptz(sub.NextBillingDate),
		converters.ToNullableTimestamptz(sub.TrialStart),
		converters.ToNullableTimestamptz(sub.TrialEnd),
		converters.ToNullableTimestamptz(sub.CancelledAt),
		converters.ToNullableTimestamptz(sub.ScheduledCancelAt),
		converters.ToNullableText(sub.ScheduledPlanCode),
		converters.ToNullableTimestamptz(sub.ScheduledPlanChangeAt),
		converters.ToNullableText(sub.CancellationReason),
		converters.ToNullableText(sub.ProcessorRecurringID),
		metadata,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by its ID
func (r *SubscriptionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.getOne(ctx, db, query, converters.ToNullableUUID(&id))
}

// GetByIDForUpdate retrieves a subscription and locks its row
func (r *SubscriptionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, tx, query, converters.ToNullableUUID(&id))
}

// Update persists mutable subscription fields
func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	query := `
	UPDATE subscriptions SET
		plan_code = $2,
		payment_method_id = $3,
		status = $4,
		current_period_start = $5,
		current_period_end = $6,
		next_billing_date = $7,
		trial_start = $8,
		trial_end = $9,
		cancelled_at = $10,
		scheduled_cancel_at = $11,
		scheduled_plan_code = $12,
		scheduled_plan_change_at = $13,
		cancellation_reason = $14,
		processor_recurring_id = $15,
		metadata = $16,
		updated_at = $17
	WHERE id = $1`

	metadata, err := marshalMap(sub.Metadata)
	if err != nil {
		return err
	}

	tag, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&sub.ID),
		sub.PlanCode,
		converters.ToNullableUUID(&sub.PaymentMethodID),
		string(sub.Status),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		converters.ToNullableTimestamptz(sub.NextBillingDate),
		converters.ToNullableTimestamptz(sub.TrialStart),
		converters.ToNullableTimestamptz(sub.TrialEnd),
		converters.ToNullableTimestamptz(sub.CancelledAt),
		converters.ToNullableTimestamptz(sub.ScheduledCancelAt),
		converters.ToNullableText(sub.ScheduledPlanCode),
		converters.ToNullableTimestamptz(sub.ScheduledPlanChangeAt),
		converters.ToNullableText(sub.CancellationReason),
		converters.ToNullableText(sub.ProcessorRecurringID),
		metadata,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubNotFound
	}
	return nil
}

// ListByCustomer lists subscriptions for a customer, newest first
func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string, limit, offset int32) ([]*domain.Subscription, error) {
	query := `
	SELECT` + subscriptionColumns + `
	FROM subscriptions
	WHERE customer_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	return r.list(ctx, db, query, converters.ToNullableUUID(&customerID), limit, offset)
}

// ListDueForBilling lists ACTIVE subscriptions with next_billing_date <= now
func (r *SubscriptionRepository) ListDueForBilling(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	query := `
	SELECT` + subscriptionColumns + `
	FROM subscriptions
	WHERE status = $1
	  AND next_billing_date IS NOT NULL
	  AND next_billing_date <= $2
	ORDER BY next_billing_date ASC
	LIMIT $3`

	return r.list(ctx, db, query, string(domain.SubscriptionStatusActive), now, limit)
}

// ListTrialsEnding lists ACTIVE subscriptions whose trial has ended but
// whose period still sits inside the trial window
func (r *SubscriptionRepository) ListTrialsEnding(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	query := `
	SELECT` + subscriptionColumns + `
	FROM subscriptions
	WHERE status = $1
	  AND trial_end IS NOT NULL
	  AND trial_end <= $2
	  AND current_period_end <= trial_end
	ORDER BY trial_end ASC
	LIMIT $3`

	return r.list(ctx, db, query, string(domain.SubscriptionStatusActive), now, limit)
}

// ListScheduledCancellations lists subscriptions with a due scheduled cancel
func (r *SubscriptionRepository) ListScheduledCancellations(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	query := `
	SELECT` + subscriptionColumns + `
	FROM subscriptions
	WHERE status <> $1
	  AND scheduled_cancel_at IS NOT NULL
	  AND scheduled_cancel_at <= $2
	ORDER BY scheduled_cancel_at ASC
	LIMIT $3`

	return r.list(ctx, db, query, string(domain.SubscriptionStatusCancelled), now, limit)
}

// ListScheduledPlanChanges lists subscriptions with a due scheduled plan change
func (r *SubscriptionRepository) ListScheduledPlanChanges(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	query := `
	SELECT` + subscriptionColumns + `
	FROM subscriptions
	WHERE status <> $1
	  AND scheduled_plan_change_at IS NOT NULL
	  AND scheduled_plan_change_at <= $2
	ORDER BY scheduled_plan_change_at ASC
	LIMIT $3`

	return r.list(ctx, db, query, string(domain.SubscriptionStatusCancelled), now, limit)
}

func (r *SubscriptionRepository) getOne(ctx context.Context, db ports.DBTX, query string, args ...interface{}) (*domain.Subscription, error) {
	sub, err := scanSubscription(exec(r.db, db).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) list(ctx context.Context, db ports.DBTX, query string, args ...interface{}) ([]*domain.Subscription, error) {
	rows, err := exec(r.db, db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		id, customerID, pmID                           pgtype.UUID
		planCode, status                               string
		periodStart, periodEnd, anchor                 time.Time
		nextBilling, trialStart, trialEnd, cancelledAt pgtype.Timestamptz
		schedCancelAt, schedChangeAt                   pgtype.Timestamptz
		schedPlanCode, cancelReason, recurringID       pgtype.Text
		metadataJSON                                   []byte
		createdAt, updatedAt                           time.Time
	)

	err := row.Scan(
		&id, &customerID, &planCode, &pmID, &status,
		&periodStart, &periodEnd, &anchor,
		&nextBilling, &trialStart, &trialEnd, &cancelledAt,
		&schedCancelAt, &schedPlanCode, &schedChangeAt,
		&cancelReason, &recurringID,
		&metadataJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	metadata, err := unmarshalMap(metadataJSON)
	if err != nil {
		return nil, err
	}

	return &domain.Subscription{
		ID:                    uuidString(id),
		CustomerID:            uuidString(customerID),
		PlanCode:              planCode,
		PaymentMethodID:       uuidString(pmID),
		Status:                domain.SubscriptionStatus(status),
		CurrentPeriodStart:    periodStart.UTC(),
		CurrentPeriodEnd:      periodEnd.UTC(),
		BillingCycleAnchor:    anchor.UTC(),
		NextBillingDate:       converters.FromNullableTimestamptz(nextBilling),
		TrialStart:            converters.FromNullableTimestamptz(trialStart),
		TrialEnd:              converters.FromNullableTimestamptz(trialEnd),
		CancelledAt:           converters.FromNullableTimestamptz(cancelledAt),
		ScheduledCancelAt:     converters.FromNullableTimestamptz(schedCancelAt),
		ScheduledPlanCode:     converters.FromNullableText(schedPlanCode),
		ScheduledPlanChangeAt: converters.FromNullableTimestamptz(schedChangeAt),
		CancellationReason:    converters.FromNullableText(cancelReason),
		ProcessorRecurringID:  converters.FromNullableText(recurringID),
		Metadata:              metadata,
		CreatedAt:             createdAt.UTC(),
		UpdatedAt:             updatedAt.UTC(),
	}, nil
}
