package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	"github.com/recurpay/billing-gateway/pkg/observability"
)

// Config tunes the dunning loop and invoice due dates.
type Config struct {
	// RetryDelayDays is the dunning schedule: the delay after the nth
	// failed attempt, in days.
	RetryDelayDays []int

	// MaxRetryAttempts is the number of processor attempts before the
	// invoice and its subscription cancel for non-payment.
	MaxRetryAttempts int

	// GracePeriodDays offsets an invoice's due date from its creation.
	GracePeriodDays int

	// SweepBatch caps the rows pulled per sweep.
	SweepBatch int32
}

// DefaultConfig returns the stock dunning schedule.
func DefaultConfig() Config {
	return Config{
		RetryDelayDays:   []int{1, 3, 7, 14, 30},
		MaxRetryAttempts: 5,
		GracePeriodDays:  3,
		SweepBatch:       100,
	}
}

// Service implements serviceports.BillingService. Sweeps open one
// database transaction per subscription or invoice, locking the
// subscription row first, so a slow or failing entity never stalls the
// rest of the batch and lock order stays consistent with retries.
type Service struct {
	db            ports.DBPort
	subscriptions ports.SubscriptionRepository
	invoices      ports.InvoiceRepository
	plans         ports.PlanRepository
	credits       ports.CreditRepository
	payments      serviceports.PaymentService
	logger        ports.Logger
	cfg           Config
}

// NewService creates a new billing service
func NewService(
	db ports.DBPort,
	subscriptions ports.SubscriptionRepository,
	invoices ports.InvoiceRepository,
	plans ports.PlanRepository,
	credits ports.CreditRepository,
	payments serviceports.PaymentService,
	logger ports.Logger,
	cfg Config,
) *Service {
	if len(cfg.RetryDelayDays) == 0 {
		cfg.RetryDelayDays = DefaultConfig().RetryDelayDays
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = DefaultConfig().MaxRetryAttempts
	}
	if cfg.GracePeriodDays < 0 {
		cfg.GracePeriodDays = DefaultConfig().GracePeriodDays
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = DefaultConfig().SweepBatch
	}
	return &Service{
		db:            db,
		subscriptions: subscriptions,
		invoices:      invoices,
		plans:         plans,
		credits:       credits,
		payments:      payments,
		logger:        logger,
		cfg:           cfg,
	}
}

// ProcessDueBilling invoices and collects every ACTIVE subscription
// whose next billing date has passed. A declined charge is a handled
// outcome, not a sweep failure: the invoice lands on the dunning track
// and the subscription goes PAST_DUE.
func (s *Service) ProcessDueBilling(ctx context.Context, now time.Time) (*serviceports.SweepReport, error) {
	report := &serviceports.SweepReport{}

	due, err := s.subscriptions.ListDueForBilling(ctx, nil, now, s.cfg.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}

	for _, row := range due {
		report.Processed++
		if err := s.billSubscription(ctx, row.ID, now); err != nil {
			report.Failed++
			s.logger.Error("due billing: subscription failed",
				ports.String("subscription_id", row.ID),
				ports.Err(err))
			continue
		}
		report.Succeeded++
	}

	if report.Processed > 0 {
		s.logger.Info("due billing sweep finished",
			ports.Int("processed", report.Processed),
			ports.Int("succeeded", report.Succeeded),
			ports.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *Service) billSubscription(ctx context.Context, subscriptionID string, now time.Time) error {
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err := s.subscriptions.GetByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if !sub.IsBillable(now) {
			// Resolved between the scan and the lock.
			return nil
		}

		plan, err := s.plans.GetByCode(ctx, tx, sub.PlanCode)
		if err != nil {
			return err
		}

		inv, err := s.invoices.GetBillForPeriod(ctx, tx, sub.ID, sub.CurrentPeriodStart)
		if err != nil {
			return err
		}
		if inv != nil && inv.Status == domain.InvoiceStatusPaid {
			// The period was settled up front. Roll the cycle forward.
			s.advancePeriod(sub, plan, now)
			return s.subscriptions.Update(ctx, tx, sub)
		}
		if inv == nil {
			inv, err = s.openInvoice(ctx, tx, sub, domain.InvoiceTypeBill, plan.Amount, plan.Currency,
				sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now)
			if err != nil {
				return err
			}
		}

		paid, err := s.collect(ctx, tx, inv, sub, now)
		if err != nil {
			return err
		}
		if paid {
			s.advancePeriod(sub, plan, now)
			return s.subscriptions.Update(ctx, tx, sub)
		}
		return s.recordFailure(ctx, tx, inv, sub, now)
	})
}

// RetryFailedPayments retries FAILED invoices whose next attempt is
// due. Success pulls a PAST_DUE subscription back to ACTIVE; exhaustion
// cancels the invoice and the subscription for non-payment.
func (s *Service) RetryFailedPayments(ctx context.Context, now time.Time) (*serviceports.SweepReport, error) {
	report := &serviceports.SweepReport{}

	rows, err := s.invoices.ListRetryable(ctx, nil, now, s.cfg.MaxRetryAttempts, s.cfg.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list retryable invoices: %w", err)
	}

	for _, row := range rows {
		report.Processed++
		if err := s.retryInvoice(ctx, row.ID, now); err != nil {
			report.Failed++
			s.logger.Error("payment retry: invoice failed",
				ports.String("invoice_id", row.ID),
				ports.Err(err))
			continue
		}
		report.Succeeded++
	}

	if report.Processed > 0 {
		s.logger.Info("payment retry sweep finished",
			ports.Int("processed", report.Processed),
			ports.Int("succeeded", report.Succeeded),
			ports.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *Service) retryInvoice(ctx context.Context, invoiceID string, now time.Time) error {
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		peek, err := s.invoices.GetByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		// Subscription row first, then the invoice.
		sub, err := s.subscriptions.GetByIDForUpdate(ctx, tx, peek.SubscriptionID)
		if err != nil {
			return err
		}
		inv, err := s.invoices.GetByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.CanRetry(s.cfg.MaxRetryAttempts) ||
			inv.NextPaymentAttempt == nil || inv.NextPaymentAttempt.After(now) {
			return nil
		}

		if sub.IsCancelled() {
			inv.Status = domain.InvoiceStatusCancelled
			inv.NextPaymentAttempt = nil
			inv.UpdatedAt = now
			return s.invoices.Update(ctx, tx, inv)
		}

		paid, err := s.collect(ctx, tx, inv, sub, now)
		if err != nil {
			return err
		}
		if paid {
			if sub.Status == domain.SubscriptionStatusPastDue {
				sub.Status = domain.SubscriptionStatusActive
				sub.UpdatedAt = now
				return s.subscriptions.Update(ctx, tx, sub)
			}
			return nil
		}
		return s.recordFailure(ctx, tx, inv, sub, now)
	})
}

// RunLifecycle expires trials, enacts scheduled cancellations and
// applies scheduled plan changes, in that order.
func (s *Service) RunLifecycle(ctx context.Context, now time.Time) (*serviceports.SweepReport, error) {
	report := &serviceports.SweepReport{}

	trials, err := s.subscriptions.ListTrialsEnding(ctx, nil, now, s.cfg.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list ending trials: %w", err)
	}
	for _, row := range trials {
		s.runLifecycleStep(ctx, report, "trial expiration", row.ID, func(ctx context.Context, tx pgx.Tx) error {
			return s.expireTrial(ctx, tx, row.ID, now)
		})
	}

	cancels, err := s.subscriptions.ListScheduledCancellations(ctx, nil, now, s.cfg.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list scheduled cancellations: %w", err)
	}
	for _, row := range cancels {
		s.runLifecycleStep(ctx, report, "scheduled cancellation", row.ID, func(ctx context.Context, tx pgx.Tx) error {
			return s.enactCancellation(ctx, tx, row.ID, now)
		})
	}

	changes, err := s.subscriptions.ListScheduledPlanChanges(ctx, nil, now, s.cfg.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list scheduled plan changes: %w", err)
	}
	for _, row := range changes {
		s.runLifecycleStep(ctx, report, "scheduled plan change", row.ID, func(ctx context.Context, tx pgx.Tx) error {
			return s.enactPlanChange(ctx, tx, row.ID, now)
		})
	}

	if report.Processed > 0 {
		s.logger.Info("lifecycle sweep finished",
			ports.Int("processed", report.Processed),
			ports.Int("succeeded", report.Succeeded),
			ports.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *Service) runLifecycleStep(ctx context.Context, report *serviceports.SweepReport, step, subscriptionID string, fn func(ctx context.Context, tx pgx.Tx) error) {
	report.Processed++
	if err := s.db.WithTransaction(ctx, fn); err != nil {
		report.Failed++
		s.logger.Error("lifecycle step failed",
			ports.String("step", step),
			ports.String("subscription_id", subscriptionID),
			ports.Err(err))
		return
	}
	report.Succeeded++
}

// expireTrial moves a subscription off its trial onto the first real
// billing period and collects the first invoice immediately.
func (s *Service) expireTrial(ctx context.Context, tx pgx.Tx, subscriptionID string, now time.Time) error {
	sub, err := s.subscriptions.GetByIDForUpdate(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if !sub.IsActive() || sub.TrialEnd == nil || sub.TrialEnd.After(now) {
		return nil
	}
	if sub.CurrentPeriodEnd.After(*sub.TrialEnd) {
		// Already moved off the trial.
		return nil
	}

	plan, err := s.plans.GetByCode(ctx, tx, sub.PlanCode)
	if err != nil {
		return err
	}

	sub.CurrentPeriodStart = *sub.TrialEnd
	sub.CurrentPeriodEnd = domain.AdvancePeriod(sub.CurrentPeriodStart, plan.IntervalUnit, plan.IntervalCount)
	next := sub.CurrentPeriodEnd
	sub.NextBillingDate = &next
	sub.UpdatedAt = now
	if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
		return err
	}

	inv, err := s.openInvoice(ctx, tx, sub, domain.InvoiceTypeBill, plan.Amount, plan.Currency,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now)
	if err != nil {
		return err
	}

	paid, err := s.collect(ctx, tx, inv, sub, now)
	if err != nil {
		return err
	}
	if paid {
		s.logger.Info("trial converted",
			ports.String("subscription_id", sub.ID),
			ports.String("invoice_number", inv.Number))
		observability.RecordLifecycleEvent("trial_converted")
		return nil
	}
	return s.recordFailure(ctx, tx, inv, sub, now)
}

// enactCancellation flips a scheduled end-of-period cancellation into a
// terminal CANCELLED state. The processor recurring mirror was already
// cancelled when the schedule was recorded.
func (s *Service) enactCancellation(ctx context.Context, tx pgx.Tx, subscriptionID string, now time.Time) error {
	sub, err := s.subscriptions.GetByIDForUpdate(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.ScheduledCancelAt == nil || sub.ScheduledCancelAt.After(now) || sub.IsCancelled() {
		return nil
	}
	if !sub.Status.CanTransitionTo(domain.SubscriptionStatusCancelled) {
		return domain.ErrSubInvalidState
	}

	sub.Status = domain.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.NextBillingDate = nil
	sub.ScheduledCancelAt = nil
	sub.UpdatedAt = now
	if sub.CancellationReason == nil {
		reason := "scheduled cancellation"
		sub.CancellationReason = &reason
	}
	if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
		return err
	}

	s.logger.Info("scheduled cancellation enacted",
		ports.String("subscription_id", sub.ID))
	observability.RecordLifecycleEvent("cancelled")
	return nil
}

// enactPlanChange settles the expiring period under the old plan, then
// swaps the plan and recomputes the cycle from the scheduled change
// point.
func (s *Service) enactPlanChange(ctx context.Context, tx pgx.Tx, subscriptionID string, now time.Time) error {
	sub, err := s.subscriptions.GetByIDForUpdate(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if !sub.HasScheduledPlanChange() || sub.ScheduledPlanChangeAt.After(now) || sub.IsCancelled() {
		return nil
	}

	newPlan, err := s.plans.GetByCode(ctx, tx, *sub.ScheduledPlanCode)
	if err != nil {
		return err
	}
	if !newPlan.IsActive {
		s.logger.Warn("scheduled plan no longer active, keeping current plan",
			ports.String("subscription_id", sub.ID),
			ports.String("plan_code", newPlan.Code))
		sub.ScheduledPlanCode = nil
		sub.ScheduledPlanChangeAt = nil
		sub.UpdatedAt = now
		return s.subscriptions.Update(ctx, tx, sub)
	}

	// Bill the expiring period at the old price before it disappears.
	if sub.IsBillable(now) {
		oldPlan, err := s.plans.GetByCode(ctx, tx, sub.PlanCode)
		if err != nil {
			return err
		}
		inv, err := s.invoices.GetBillForPeriod(ctx, tx, sub.ID, sub.CurrentPeriodStart)
		if err != nil {
			return err
		}
		if inv == nil {
			inv, err = s.openInvoice(ctx, tx, sub, domain.InvoiceTypeBill, oldPlan.Amount, oldPlan.Currency,
				sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now)
			if err != nil {
				return err
			}
		}
		if inv.Status != domain.InvoiceStatusPaid {
			paid, err := s.collect(ctx, tx, inv, sub, now)
			if err != nil {
				return err
			}
			if !paid {
				if err := s.recordFailure(ctx, tx, inv, sub, now); err != nil {
					return err
				}
			}
		}
	}

	at := *sub.ScheduledPlanChangeAt
	sub.PlanCode = newPlan.Code
	sub.CurrentPeriodStart = at
	sub.CurrentPeriodEnd = domain.AdvancePeriod(at, newPlan.IntervalUnit, newPlan.IntervalCount)
	next := sub.CurrentPeriodEnd
	sub.NextBillingDate = &next
	sub.ScheduledPlanCode = nil
	sub.ScheduledPlanChangeAt = nil
	sub.UpdatedAt = now
	if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
		return err
	}

	s.logger.Info("scheduled plan change applied",
		ports.String("subscription_id", sub.ID),
		ports.String("plan_code", newPlan.Code))
	observability.RecordLifecycleEvent("plan_changed")
	return nil
}

// AttemptPayment collects one open invoice outside the sweeps, for the
// manual retry endpoint. A failed attempt lands back on the dunning
// schedule exactly as a sweep failure would.
func (s *Service) AttemptPayment(ctx context.Context, invoiceID string) (*domain.SubscriptionInvoice, error) {
	now := time.Now().UTC()
	var result *domain.SubscriptionInvoice

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		peek, err := s.invoices.GetByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		sub, err := s.subscriptions.GetByIDForUpdate(ctx, tx, peek.SubscriptionID)
		if err != nil {
			return err
		}
		inv, err := s.invoices.GetByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		if !inv.IsOpen() {
			return domain.NewDomainError(domain.ErrorCodeInvoiceNotDue, "invoice is not open for collection")
		}
		if inv.PaymentAttempts >= s.cfg.MaxRetryAttempts {
			return domain.ErrInvoiceExhausted
		}
		if sub.IsCancelled() {
			return domain.ErrSubCancelled
		}

		paid, err := s.collect(ctx, tx, inv, sub, now)
		if err != nil {
			return err
		}
		if paid && sub.Status == domain.SubscriptionStatusPastDue {
			sub.Status = domain.SubscriptionStatusActive
			sub.UpdatedAt = now
			if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
				return err
			}
		}
		if !paid {
			if err := s.recordFailure(ctx, tx, inv, sub, now); err != nil {
				return err
			}
		}
		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// creditApplication is one planned deduction from an open ledger entry.
// Deductions are only written once the invoice actually collects.
type creditApplication struct {
	entryID string
	amount  decimal.Decimal
}

// collect drives one payment attempt on a locked invoice: resolve any
// charge already in flight, apply open credit, and charge the remainder
// through the payment orchestrator. The idempotency key is derived from
// the invoice number and attempt count, so a crashed attempt replays
// instead of charging twice. Returns true when the invoice is PAID.
func (s *Service) collect(ctx context.Context, tx pgx.Tx, inv *domain.SubscriptionInvoice, sub *domain.Subscription, now time.Time) (bool, error) {
	inv.Status = domain.InvoiceStatusProcessing
	inv.UpdatedAt = now
	if err := s.invoices.Update(ctx, tx, inv); err != nil {
		return false, err
	}

	if inv.LinkedTransactionID != nil {
		return s.resolveLinked(ctx, tx, inv, sub, now)
	}

	entries, err := s.credits.ListOpenForUpdate(ctx, tx, sub.CustomerID, inv.Currency)
	if err != nil {
		return false, err
	}
	remainder := inv.Amount
	var plan []creditApplication
	for _, entry := range entries {
		if !remainder.IsPositive() {
			break
		}
		take := entry.Remaining
		if take.GreaterThan(remainder) {
			take = remainder
		}
		plan = append(plan, creditApplication{entryID: entry.ID, amount: take})
		remainder = remainder.Sub(take)
	}

	if !remainder.IsPositive() {
		if err := s.consumeCredit(ctx, tx, plan, inv.Number); err != nil {
			return false, err
		}
		s.markPaid(inv, nil, now)
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return false, err
		}
		s.logger.Info("invoice settled from credit ledger",
			ports.String("invoice_number", inv.Number),
			ports.String("amount", inv.Amount.StringFixed(2)))
		observability.RecordBillingAttempt("succeeded", inv.Currency, inv.Amount.Shift(2).IntPart())
		return true, nil
	}

	attempt := inv.PaymentAttempts + 1
	txn, err := s.payments.Purchase(ctx, &serviceports.PurchaseRequest{
		PaymentMethodID: &sub.PaymentMethodID,
		CustomerID:      &sub.CustomerID,
		Amount:          remainder,
		Currency:        inv.Currency,
		Description:     fmt.Sprintf("subscription %s invoice %s", sub.PlanCode, inv.Number),
		InvoiceNumber:   inv.Number,
		CorrelationID:   uuid.NewString(),
		IdempotencyKey:  fmt.Sprintf("billing:%s:attempt:%d", inv.Number, attempt),
	})
	if err != nil {
		inv.Status = domain.InvoiceStatusFailed
		inv.PaymentAttempts = attempt
		inv.UpdatedAt = now
		if uerr := s.invoices.Update(ctx, tx, inv); uerr != nil {
			return false, uerr
		}
		s.logger.Warn("invoice charge errored",
			ports.String("invoice_number", inv.Number),
			ports.Int("attempt", attempt),
			ports.Err(err))
		return false, nil
	}

	inv.LinkedTransactionID = &txn.ID
	switch txn.Status {
	case domain.PaymentStatusSettled:
		if err := s.consumeCredit(ctx, tx, plan, inv.Number); err != nil {
			return false, err
		}
		s.markPaid(inv, &txn.ID, now)
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return false, err
		}
		s.logger.Info("invoice paid",
			ports.String("invoice_number", inv.Number),
			ports.String("transaction_id", txn.ID),
			ports.Int("attempt", attempt))
		observability.RecordBillingAttempt("succeeded", inv.Currency, inv.Amount.Shift(2).IntPart())
		return true, nil

	case domain.PaymentStatusPending, domain.PaymentStatusPendingReview:
		// Charge unresolved at the processor. Do not burn the attempt:
		// the next try replays the same idempotency key and folds in
		// whatever reconciliation found.
		inv.Status = domain.InvoiceStatusFailed
		inv.UpdatedAt = now
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return false, err
		}
		s.logger.Warn("invoice charge unresolved",
			ports.String("invoice_number", inv.Number),
			ports.String("transaction_id", txn.ID),
			ports.String("status", string(txn.Status)))
		return false, nil

	default:
		inv.Status = domain.InvoiceStatusFailed
		inv.PaymentAttempts = attempt
		inv.UpdatedAt = now
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return false, err
		}
		s.logger.Warn("invoice charge declined",
			ports.String("invoice_number", inv.Number),
			ports.String("transaction_id", txn.ID),
			ports.Int("attempt", attempt))
		return false, nil
	}
}

// resolveLinked folds the current state of an earlier, unresolved
// charge into the invoice instead of charging again. Only a terminally
// failed charge clears the way for a fresh attempt.
func (s *Service) resolveLinked(ctx context.Context, tx pgx.Tx, inv *domain.SubscriptionInvoice, sub *domain.Subscription, now time.Time) (bool, error) {
	txn, err := s.payments.GetTransaction(ctx, *inv.LinkedTransactionID)
	if err != nil {
		return false, fmt.Errorf("resolve linked transaction %s: %w", *inv.LinkedTransactionID, err)
	}

	switch txn.Status {
	case domain.PaymentStatusSettled, domain.PaymentStatusCaptured,
		domain.PaymentStatusPartiallyRefunded, domain.PaymentStatusRefunded:
		// The charge went through after all. Consume the credit the
		// original attempt had planned around.
		creditDue := inv.Amount.Sub(txn.Amount)
		if creditDue.IsPositive() {
			if err := s.consumePlannedCredit(ctx, tx, sub.CustomerID, inv, creditDue); err != nil {
				return false, err
			}
		}
		s.markPaid(inv, &txn.ID, now)
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return false, err
		}
		s.logger.Info("invoice paid by earlier charge",
			ports.String("invoice_number", inv.Number),
			ports.String("transaction_id", txn.ID))
		return true, nil

	case domain.PaymentStatusPending, domain.PaymentStatusPendingReview, domain.PaymentStatusAuthorized:
		inv.Status = domain.InvoiceStatusFailed
		inv.UpdatedAt = now
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return false, err
		}
		s.logger.Warn("invoice charge still unresolved",
			ports.String("invoice_number", inv.Number),
			ports.String("transaction_id", txn.ID))
		return false, nil

	default:
		// Terminal failure: detach and charge fresh.
		inv.LinkedTransactionID = nil
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return false, err
		}
		return s.collect(ctx, tx, inv, sub, now)
	}
}

// consumePlannedCredit deducts up to creditDue from the customer's open
// ledger. A shortfall means the ledger moved between attempts; the
// invoice still settles, the gap is logged.
func (s *Service) consumePlannedCredit(ctx context.Context, tx pgx.Tx, customerID string, inv *domain.SubscriptionInvoice, creditDue decimal.Decimal) error {
	entries, err := s.credits.ListOpenForUpdate(ctx, tx, customerID, inv.Currency)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !creditDue.IsPositive() {
			break
		}
		take := entry.Remaining
		if take.GreaterThan(creditDue) {
			take = creditDue
		}
		if err := s.credits.Consume(ctx, tx, entry.ID, take, inv.Number); err != nil {
			return err
		}
		creditDue = creditDue.Sub(take)
	}
	if creditDue.IsPositive() {
		s.logger.Warn("credit shortfall while settling invoice",
			ports.String("invoice_number", inv.Number),
			ports.String("shortfall", creditDue.StringFixed(2)))
	}
	return nil
}

func (s *Service) consumeCredit(ctx context.Context, tx pgx.Tx, plan []creditApplication, invoiceNumber string) error {
	for _, app := range plan {
		if err := s.credits.Consume(ctx, tx, app.entryID, app.amount, invoiceNumber); err != nil {
			return fmt.Errorf("consume credit entry %s: %w", app.entryID, err)
		}
	}
	return nil
}

// recordFailure applies the dunning policy after a failed attempt:
// cancel invoice and subscription once attempts are exhausted, schedule
// the next retry otherwise, and push the subscription PAST_DUE on its
// first failure.
func (s *Service) recordFailure(ctx context.Context, tx pgx.Tx, inv *domain.SubscriptionInvoice, sub *domain.Subscription, now time.Time) error {
	if inv.Status != domain.InvoiceStatusFailed {
		return nil
	}

	if inv.PaymentAttempts >= s.cfg.MaxRetryAttempts {
		inv.Status = domain.InvoiceStatusCancelled
		inv.NextPaymentAttempt = nil
		inv.UpdatedAt = now
		if err := s.invoices.Update(ctx, tx, inv); err != nil {
			return err
		}

		if !sub.IsCancelled() && sub.Status.CanTransitionTo(domain.SubscriptionStatusCancelled) {
			reason := domain.CancellationReasonNonPayment
			sub.Status = domain.SubscriptionStatusCancelled
			sub.CancelledAt = &now
			sub.CancellationReason = &reason
			sub.NextBillingDate = nil
			sub.UpdatedAt = now
			if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
				return err
			}
		}

		s.logger.Warn("dunning exhausted, subscription cancelled",
			ports.String("invoice_number", inv.Number),
			ports.String("subscription_id", sub.ID),
			ports.Int("attempts", inv.PaymentAttempts))
		observability.RecordBillingAttempt("exhausted", inv.Currency, inv.Amount.Shift(2).IntPart())
		observability.RecordLifecycleEvent("dunning_exhausted")
		return nil
	}

	next := now.AddDate(0, 0, retryDelay(s.cfg.RetryDelayDays, inv.PaymentAttempts))
	inv.NextPaymentAttempt = &next
	inv.UpdatedAt = now
	if err := s.invoices.Update(ctx, tx, inv); err != nil {
		return err
	}
	observability.RecordBillingAttempt("retry_scheduled", inv.Currency, inv.Amount.Shift(2).IntPart())

	if sub.Status == domain.SubscriptionStatusActive {
		sub.Status = domain.SubscriptionStatusPastDue
		sub.UpdatedAt = now
		if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
			return err
		}
		observability.RecordLifecycleEvent("past_due")
	}
	return nil
}

func (s *Service) openInvoice(ctx context.Context, tx pgx.Tx, sub *domain.Subscription, typ domain.InvoiceType, amount decimal.Decimal, currency string, periodStart, periodEnd, now time.Time) (*domain.SubscriptionInvoice, error) {
	number, err := s.invoices.NextNumber(ctx, tx, now)
	if err != nil {
		return nil, fmt.Errorf("allocate invoice number: %w", err)
	}

	inv := &domain.SubscriptionInvoice{
		CreatedAt:      now,
		UpdatedAt:      now,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		DueDate:        now.AddDate(0, 0, s.cfg.GracePeriodDays),
		ID:             uuid.NewString(),
		Number:         number,
		SubscriptionID: sub.ID,
		Currency:       currency,
		Type:           typ,
		Status:         domain.InvoiceStatusPending,
		Amount:         amount,
	}
	if err := s.invoices.Create(ctx, tx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

func (s *Service) advancePeriod(sub *domain.Subscription, plan *domain.SubscriptionPlan, now time.Time) {
	sub.CurrentPeriodStart = sub.CurrentPeriodEnd
	sub.CurrentPeriodEnd = domain.AdvancePeriod(sub.CurrentPeriodStart, plan.IntervalUnit, plan.IntervalCount)
	next := sub.CurrentPeriodEnd
	sub.NextBillingDate = &next
	sub.UpdatedAt = now
}

func (s *Service) markPaid(inv *domain.SubscriptionInvoice, txnID *string, now time.Time) {
	inv.Status = domain.InvoiceStatusPaid
	inv.PaidAt = &now
	inv.NextPaymentAttempt = nil
	inv.UpdatedAt = now
	if txnID != nil {
		inv.LinkedTransactionID = txnID
	}
}

// retryDelay indexes the dunning schedule by the attempts already made,
// clamping to the final delay.
func retryDelay(days []int, attempts int) int {
	if len(days) == 0 {
		return 1
	}
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(days) {
		idx = len(days) - 1
	}
	return days[idx]
}
