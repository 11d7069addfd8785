package subscription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/services/billing"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// auditEntity is the entity_type value for subscription audit rows.
const auditEntity = "subscription"

// Config tunes invoice due dates issued by subscription operations.
type Config struct {
	// GracePeriodDays offsets the due date of a first-period BILL
	// invoice from its creation.
	GracePeriodDays int

	// FeeDueDays offsets the due date of SETUP and PRORATE invoices.
	FeeDueDays int
}

// DefaultConfig returns the stock due-date offsets.
func DefaultConfig() Config {
	return Config{GracePeriodDays: 3, FeeDueDays: 1}
}

// Service implements serviceports.SubscriptionService. Mutations run in
// one database transaction locking the subscription row; the processor
// recurring mirror is maintained after commit and never fails an
// operation, since collection is driven by the billing sweeps rather
// than the processor schedule.
type Service struct {
	db             ports.DBPort
	subscriptions  ports.SubscriptionRepository
	plans          ports.PlanRepository
	invoices       ports.InvoiceRepository
	credits        ports.CreditRepository
	customers      ports.CustomerRepository
	paymentMethods ports.PaymentMethodRepository
	idempotency    ports.IdempotencyStore
	auditLogs      ports.AuditLogRepository
	gateway        ports.ProcessorGateway
	events         ports.EventPublisher
	logger         ports.Logger
	cfg            Config
}

// NewService creates a new subscription service
func NewService(
	db ports.DBPort,
	subscriptions ports.SubscriptionRepository,
	plans ports.PlanRepository,
	invoices ports.InvoiceRepository,
	credits ports.CreditRepository,
	customers ports.CustomerRepository,
	paymentMethods ports.PaymentMethodRepository,
	idempotency ports.IdempotencyStore,
	auditLogs ports.AuditLogRepository,
	gateway ports.ProcessorGateway,
	events ports.EventPublisher,
	logger ports.Logger,
	cfg Config,
) *Service {
	if cfg.GracePeriodDays <= 0 {
		cfg.GracePeriodDays = DefaultConfig().GracePeriodDays
	}
	if cfg.FeeDueDays <= 0 {
		cfg.FeeDueDays = DefaultConfig().FeeDueDays
	}
	return &Service{
		db:             db,
		subscriptions:  subscriptions,
		plans:          plans,
		invoices:       invoices,
		credits:        credits,
		customers:      customers,
		paymentMethods: paymentMethods,
		idempotency:    idempotency,
		auditLogs:      auditLogs,
		gateway:        gateway,
		events:         events,
		logger:         logger,
		cfg:            cfg,
	}
}

// Create creates a new recurring billing subscription
func (s *Service) Create(ctx context.Context, req *serviceports.CreateSubscriptionRequest) (*domain.Subscription, error) {
	requestHash := createHash(req)
	if sub, err := s.replay(ctx, req.CustomerID, req.IdempotencyKey, requestHash); err != nil || sub != nil {
		return sub, err
	}

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		sub    *domain.Subscription
		plan   *domain.SubscriptionPlan
		method *domain.PaymentMethod
	)
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		customer, err := s.customers.GetByID(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		if !customer.IsActive {
			return domain.ErrCustomerInactive
		}

		plan, err = s.plans.GetByCode(ctx, tx, req.PlanCode)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return domain.ErrPlanInactive
		}

		method, err = s.checkPaymentMethod(ctx, tx, req.PaymentMethodID, req.CustomerID)
		if err != nil {
			return err
		}

		sub = newSubscription(req, plan, now)
		if err := transition(sub, domain.SubscriptionStatusActive); err != nil {
			return err
		}
		if err := s.subscriptions.Create(ctx, tx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}

		if plan.HasSetupFee() {
			if _, err := s.openInvoice(ctx, tx, sub, domain.InvoiceTypeSetup, plan.SetupFee, plan.Currency,
				sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now.AddDate(0, 0, s.cfg.FeeDueDays), now); err != nil {
				return err
			}
		}
		if req.Prorated && !sub.IsInTrial(now) {
			if _, err := s.openInvoice(ctx, tx, sub, domain.InvoiceTypeBill, plan.Amount, plan.Currency,
				sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now.AddDate(0, 0, s.cfg.GracePeriodDays), now); err != nil {
				return err
			}
		}

		if err := s.record(ctx, tx, req.CustomerID, req.IdempotencyKey, requestHash, sub); err != nil {
			return err
		}
		s.writeAudit(ctx, tx, "subscription.create", sub, map[string]string{
			"plan_code":   plan.Code,
			"customer_id": sub.CustomerID,
		})
		return s.publish(ctx, tx, domain.EventSubscriptionCreated, sub)
	})
	if err != nil {
		s.logger.Error("subscription create failed",
			ports.String("customer_id", req.CustomerID),
			ports.String("plan_code", req.PlanCode),
			ports.Err(err))
		return nil, err
	}

	// Informational mirror at the processor. Collection runs through the
	// billing sweeps, so a missing mirror costs nothing but parity.
	s.createRecurringMirror(ctx, sub, plan, method)

	s.logger.Info("subscription created",
		ports.String("subscription_id", sub.ID),
		ports.String("customer_id", sub.CustomerID),
		ports.String("plan_code", sub.PlanCode),
		ports.Bool("trial", sub.TrialEnd != nil))
	return sub, nil
}

// Update changes the plan or payment method of a subscription
func (s *Service) Update(ctx context.Context, req *serviceports.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	if req.NewPlanCode == nil && req.PaymentMethodID == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField,
			"update requires a new plan code or payment method")
	}
	timing := req.Timing
	if timing == "" {
		timing = serviceports.ChangeImmediate
	}

	now := time.Now().UTC()
	var (
		sub         *domain.Subscription
		planChanged bool
		newPlan     *domain.SubscriptionPlan
	)
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		sub, err = s.subscriptions.GetByIDForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.IsCancelled() {
			return domain.ErrSubCancelled
		}

		if req.PaymentMethodID != nil {
			method, err := s.checkPaymentMethod(ctx, tx, *req.PaymentMethodID, sub.CustomerID)
			if err != nil {
				return err
			}
			sub.PaymentMethodID = method.ID
		}

		if req.NewPlanCode != nil && *req.NewPlanCode != sub.PlanCode {
			newPlan, err = s.plans.GetByCode(ctx, tx, *req.NewPlanCode)
			if err != nil {
				return err
			}
			if !newPlan.IsActive {
				return domain.ErrPlanInactive
			}
			oldPlan, err := s.plans.GetByCode(ctx, tx, sub.PlanCode)
			if err != nil {
				return err
			}
			if newPlan.Currency != oldPlan.Currency {
				return domain.NewDomainError(domain.ErrorCodeValidationFailed,
					"plan change across currencies is not supported")
			}

			switch timing {
			case serviceports.ChangeEndOfPeriod:
				at := sub.CurrentPeriodEnd
				code := newPlan.Code
				sub.ScheduledPlanCode = &code
				sub.ScheduledPlanChangeAt = &at
			case serviceports.ChangeImmediate:
				if req.Prorated {
					if err := s.applyProration(ctx, tx, sub, oldPlan, newPlan, now); err != nil {
						return err
					}
				}
				sub.PlanCode = newPlan.Code
				sub.CurrentPeriodStart = now
				sub.CurrentPeriodEnd = domain.AdvancePeriod(now, newPlan.IntervalUnit, newPlan.IntervalCount)
				next := sub.CurrentPeriodEnd
				sub.NextBillingDate = &next
				sub.ScheduledPlanCode = nil
				sub.ScheduledPlanChangeAt = nil
				planChanged = true
			default:
				return domain.NewDomainError(domain.ErrorCodeValidationFailed,
					"unknown change timing").WithDetail("timing", string(timing))
			}
		}

		sub.UpdatedAt = now
		if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		detail := map[string]string{"timing": string(timing)}
		if req.NewPlanCode != nil {
			detail["new_plan_code"] = *req.NewPlanCode
		}
		if req.PaymentMethodID != nil {
			detail["payment_method_id"] = *req.PaymentMethodID
		}
		s.writeAudit(ctx, tx, "subscription.update", sub, detail)
		return s.publish(ctx, tx, domain.EventSubscriptionUpdated, sub)
	})
	if err != nil {
		s.logger.Error("subscription update failed",
			ports.String("subscription_id", req.SubscriptionID),
			ports.Err(err))
		return nil, err
	}

	if planChanged {
		// The mirror still carries the old amount. Replace it.
		s.refreshRecurringMirror(ctx, sub, newPlan)
	}

	s.logger.Info("subscription updated",
		ports.String("subscription_id", sub.ID),
		ports.String("plan_code", sub.PlanCode),
		ports.String("timing", string(timing)))
	return sub, nil
}

// Cancel cancels a subscription immediately or at period end
func (s *Service) Cancel(ctx context.Context, req *serviceports.CancelSubscriptionRequest) (*domain.Subscription, error) {
	timing := req.Timing
	if timing == "" {
		timing = serviceports.ChangeImmediate
	}

	now := time.Now().UTC()
	var sub *domain.Subscription
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		sub, err = s.subscriptions.GetByIDForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.IsCancelled() {
			return domain.ErrSubCancelled
		}

		switch timing {
		case serviceports.ChangeImmediate:
			if err := transition(sub, domain.SubscriptionStatusCancelled); err != nil {
				return err
			}
			sub.CancelledAt = &now
			sub.NextBillingDate = nil
			sub.ScheduledCancelAt = nil
			sub.ScheduledPlanCode = nil
			sub.ScheduledPlanChangeAt = nil
			if req.Reason != "" {
				reason := req.Reason
				sub.CancellationReason = &reason
			}

			if req.RefundUnused {
				plan, err := s.plans.GetByCode(ctx, tx, sub.PlanCode)
				if err != nil {
					return err
				}
				res := billing.CalculateCancellationRefund(sub, plan, now)
				if res.Applies {
					if err := s.issueCredit(ctx, tx, sub, res.NetAmount.Abs(), res.Currency, "cancellation refund", now); err != nil {
						return err
					}
				}
			}

			sub.UpdatedAt = now
			if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
				return fmt.Errorf("update subscription: %w", err)
			}
			s.writeAudit(ctx, tx, "subscription.cancel", sub, map[string]string{
				"timing": string(timing),
				"reason": req.Reason,
			})
			return s.publish(ctx, tx, domain.EventSubscriptionCancelled, sub)

		case serviceports.ChangeEndOfPeriod:
			cancelAt := sub.CurrentPeriodEnd
			if req.CancelAt != nil {
				cancelAt = *req.CancelAt
			}
			if cancelAt.Before(now) {
				return domain.NewDomainError(domain.ErrorCodeValidationFailed,
					"scheduled cancellation date is in the past")
			}
			sub.ScheduledCancelAt = &cancelAt
			if req.Reason != "" {
				reason := req.Reason
				sub.CancellationReason = &reason
			}
			sub.UpdatedAt = now
			if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
				return fmt.Errorf("update subscription: %w", err)
			}
			s.writeAudit(ctx, tx, "subscription.cancel", sub, map[string]string{
				"timing":    string(timing),
				"reason":    req.Reason,
				"cancel_at": cancelAt.Format(time.RFC3339),
			})
			return s.publish(ctx, tx, domain.EventSubscriptionUpdated, sub)

		default:
			return domain.NewDomainError(domain.ErrorCodeValidationFailed,
				"unknown change timing").WithDetail("timing", string(timing))
		}
	})
	if err != nil {
		s.logger.Error("subscription cancel failed",
			ports.String("subscription_id", req.SubscriptionID),
			ports.Err(err))
		return nil, err
	}

	// The mirror stops at schedule time for both timings: nothing should
	// charge at the processor once cancellation is decided.
	s.cancelRecurringMirror(ctx, sub)

	s.logger.Info("subscription cancelled",
		ports.String("subscription_id", sub.ID),
		ports.String("timing", string(timing)),
		ports.String("status", string(sub.Status)))
	return sub, nil
}

// Pause pauses an active subscription
func (s *Service) Pause(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	now := time.Now().UTC()
	var sub *domain.Subscription
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		sub, err = s.subscriptions.GetByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if err := transition(sub, domain.SubscriptionStatusPaused); err != nil {
			return err
		}
		sub.UpdatedAt = now
		if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		s.writeAudit(ctx, tx, "subscription.pause", sub, nil)
		return s.publish(ctx, tx, domain.EventSubscriptionPaused, sub)
	})
	if err != nil {
		s.logger.Error("subscription pause failed",
			ports.String("subscription_id", subscriptionID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("subscription paused", ports.String("subscription_id", sub.ID))
	return sub, nil
}

// Resume resumes a paused subscription. The billing cycle restarts at
// the resume time; the paused remainder is not carried over.
func (s *Service) Resume(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	now := time.Now().UTC()
	var sub *domain.Subscription
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		sub, err = s.subscriptions.GetByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status != domain.SubscriptionStatusPaused {
			return domain.ErrSubInvalidState
		}
		plan, err := s.plans.GetByCode(ctx, tx, sub.PlanCode)
		if err != nil {
			return err
		}

		if err := transition(sub, domain.SubscriptionStatusActive); err != nil {
			return err
		}
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = domain.AdvancePeriod(now, plan.IntervalUnit, plan.IntervalCount)
		next := sub.CurrentPeriodEnd
		sub.NextBillingDate = &next
		sub.UpdatedAt = now
		if err := s.subscriptions.Update(ctx, tx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		s.writeAudit(ctx, tx, "subscription.resume", sub, nil)
		return s.publish(ctx, tx, domain.EventSubscriptionResumed, sub)
	})
	if err != nil {
		s.logger.Error("subscription resume failed",
			ports.String("subscription_id", subscriptionID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("subscription resumed",
		ports.String("subscription_id", sub.ID),
		ports.String("next_billing_date", sub.NextBillingDate.Format(time.RFC3339)))
	return sub, nil
}

// Get retrieves subscription details
func (s *Service) Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	return s.subscriptions.GetByID(ctx, nil, subscriptionID)
}

// ListByCustomer lists a customer's subscriptions, newest first
func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Subscription, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.subscriptions.ListByCustomer(ctx, nil, customerID, limit, offset)
}

// DueForBilling lists ACTIVE subscriptions whose next billing date has passed
func (s *Service) DueForBilling(ctx context.Context, now time.Time, limit int32) ([]*domain.Subscription, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.subscriptions.ListDueForBilling(ctx, nil, now, limit)
}

// AuditTrail lists the audit rows for one subscription, newest first
func (s *Service) AuditTrail(ctx context.Context, subscriptionID string, limit int32) ([]*domain.AuditLog, error) {
	if _, err := s.subscriptions.GetByID(ctx, nil, subscriptionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.auditLogs.ListByEntity(ctx, nil, auditEntity, subscriptionID, limit)
}

// PruneAuditLogs deletes audit rows older than the retention window
func (s *Service) PruneAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var deleted int64
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		deleted, err = s.auditLogs.DeleteOlderThan(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune audit logs: %w", err)
	}
	return deleted, nil
}

// writeAudit records who performed a mutation, inside the same database
// transaction. Best-effort: a failed write is logged, never surfaced.
func (s *Service) writeAudit(ctx context.Context, tx ports.DBTX, action string, sub *domain.Subscription, detail map[string]string) {
	if s.auditLogs == nil {
		return
	}
	entry := &domain.AuditLog{
		CreatedAt:  time.Now().UTC(),
		Detail:     detail,
		ID:         uuid.NewString(),
		Actor:      auth.Actor(ctx),
		Action:     action,
		EntityType: auditEntity,
		EntityID:   sub.ID,
	}
	if err := s.auditLogs.Create(ctx, tx, entry); err != nil {
		s.logger.Warn("audit write failed",
			ports.String("action", action),
			ports.String("subscription_id", sub.ID),
			ports.Err(err))
	}
}

// applyProration prices an immediate plan change mid-period. A net
// charge opens a PRORATE invoice collected by the dunning loop; a net
// credit lands in the ledger for future invoices to consume.
func (s *Service) applyProration(ctx context.Context, tx pgx.Tx, sub *domain.Subscription, oldPlan, newPlan *domain.SubscriptionPlan, now time.Time) error {
	res := billing.CalculatePlanChange(sub, oldPlan, newPlan, now)
	if !res.Applies {
		s.logger.Info("proration does not apply",
			ports.String("subscription_id", sub.ID),
			ports.String("reason", res.Reason))
		return nil
	}

	switch res.Type {
	case billing.ProrationCharge:
		inv, err := s.openInvoice(ctx, tx, sub, domain.InvoiceTypeProrate, res.NetAmount, res.Currency,
			now, sub.CurrentPeriodEnd, now.AddDate(0, 0, s.cfg.FeeDueDays), now)
		if err != nil {
			return err
		}
		s.logger.Info("proration charge invoiced",
			ports.String("subscription_id", sub.ID),
			ports.String("invoice_number", inv.Number),
			ports.String("amount", res.NetAmount.StringFixed(2)))
		return nil

	case billing.ProrationCredit:
		if err := s.issueCredit(ctx, tx, sub, res.NetAmount.Abs(), res.Currency, "plan downgrade proration", now); err != nil {
			return err
		}
		s.logger.Info("proration credit issued",
			ports.String("subscription_id", sub.ID),
			ports.String("amount", res.NetAmount.Abs().StringFixed(2)))
		return nil
	}
	return nil
}

func (s *Service) issueCredit(ctx context.Context, tx pgx.Tx, sub *domain.Subscription, amount decimal.Decimal, currency, reason string, now time.Time) error {
	entry := &domain.CreditLedgerEntry{
		CreatedAt:      now,
		ID:             uuid.NewString(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Currency:       currency,
		Reason:         reason,
		Amount:         amount,
		Remaining:      amount,
	}
	if err := s.credits.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("create credit entry: %w", err)
	}
	return nil
}

func (s *Service) openInvoice(ctx context.Context, tx pgx.Tx, sub *domain.Subscription, typ domain.InvoiceType, amount decimal.Decimal, currency string, periodStart, periodEnd, dueDate, now time.Time) (*domain.SubscriptionInvoice, error) {
	number, err := s.invoices.NextNumber(ctx, tx, now)
	if err != nil {
		return nil, fmt.Errorf("allocate invoice number: %w", err)
	}

	inv := &domain.SubscriptionInvoice{
		CreatedAt:      now,
		UpdatedAt:      now,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		DueDate:        dueDate,
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

// checkPaymentMethod loads a payment method and verifies it is usable
// and owned by the subscribing customer.
func (s *Service) checkPaymentMethod(ctx context.Context, tx ports.DBTX, paymentMethodID, customerID string) (*domain.PaymentMethod, error) {
	method, err := s.paymentMethods.GetByID(ctx, tx, paymentMethodID)
	if err != nil {
		return nil, err
	}
	if method.CustomerID != customerID {
		return nil, domain.NewDomainError(domain.ErrorCodePMInvalid,
			"payment method belongs to a different customer")
	}
	if !method.CanBeUsed() {
		if method.IsCard() && method.IsExpired() {
			return nil, domain.ErrPMExpired
		}
		return nil, domain.ErrPMInvalid
	}
	return method, nil
}

// replay returns the stored response when the idempotency key has been
// recorded. Keys are scoped per customer, so two customers may reuse
// the same literal key.
func (s *Service) replay(ctx context.Context, customerID, key, requestHash string) (*domain.Subscription, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := s.idempotency.Lookup(ctx, nil, ports.IdempotencyFamilySubscriptionCreate, scopedKey(customerID, key))
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.RequestHash != requestHash {
		return nil, domain.ErrIdempotencyConflict
	}

	var sub domain.Subscription
	if err := json.Unmarshal(rec.ResponseBody, &sub); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	s.logger.Info("replaying stored response for idempotency key",
		ports.String("idempotency_key", key),
		ports.String("subscription_id", sub.ID))
	return &sub, nil
}

func (s *Service) record(ctx context.Context, tx ports.DBTX, customerID, key, requestHash string, sub *domain.Subscription) error {
	if key == "" {
		return nil
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode response for idempotency record: %w", err)
	}
	if err := s.idempotency.Record(ctx, tx, ports.IdempotencyFamilySubscriptionCreate, scopedKey(customerID, key), requestHash, body); err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, tx ports.DBTX, suffix string, sub *domain.Subscription) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.PublishSubscriptionEvent(ctx, tx, domain.OutboundEvent(suffix), sub); err != nil {
		return fmt.Errorf("enqueue subscription event: %w", err)
	}
	return nil
}

// createRecurringMirror registers the schedule at the processor after
// the subscription commits. Failures are logged, never surfaced: the
// mirror is bookkeeping, not the billing engine.
func (s *Service) createRecurringMirror(ctx context.Context, sub *domain.Subscription, plan *domain.SubscriptionPlan, method *domain.PaymentMethod) {
	if s.gateway == nil || sub.NextBillingDate == nil {
		return
	}
	customer, err := s.customers.GetByID(ctx, nil, sub.CustomerID)
	if err != nil || !customer.HasProcessorProfile() {
		s.logger.Warn("recurring mirror skipped: no processor profile",
			ports.String("subscription_id", sub.ID))
		return
	}

	outcome, err := s.gateway.CreateRecurring(ctx, &ports.RecurringRequest{
		StartDate:         *sub.NextBillingDate,
		Amount:            plan.Amount,
		Currency:          plan.Currency,
		CustomerProfileID: *customer.ProcessorProfileID,
		PaymentProfileID:  method.Token,
		IntervalUnit:      plan.IntervalUnit,
		IntervalCount:     plan.IntervalCount,
		Description:       fmt.Sprintf("subscription %s plan %s", sub.ID, plan.Code),
	})
	if err != nil || !outcome.IsApproved() {
		s.logger.Warn("recurring mirror create failed",
			ports.String("subscription_id", sub.ID),
			ports.Err(err))
		return
	}

	recurringID := outcome.Approved.ExternalID
	sub.ProcessorRecurringID = &recurringID
	if err := s.subscriptions.Update(ctx, nil, sub); err != nil {
		s.logger.Warn("persist recurring mirror id failed",
			ports.String("subscription_id", sub.ID),
			ports.Err(err))
		return
	}
	s.logger.Info("recurring mirror created",
		ports.String("subscription_id", sub.ID),
		ports.String("recurring_id", recurringID))
}

// refreshRecurringMirror replaces the processor schedule after an
// immediate plan change.
func (s *Service) refreshRecurringMirror(ctx context.Context, sub *domain.Subscription, plan *domain.SubscriptionPlan) {
	if s.gateway == nil || plan == nil {
		return
	}
	s.cancelRecurringMirror(ctx, sub)

	method, err := s.paymentMethods.GetByID(ctx, nil, sub.PaymentMethodID)
	if err != nil {
		s.logger.Warn("recurring mirror refresh skipped",
			ports.String("subscription_id", sub.ID),
			ports.Err(err))
		return
	}
	s.createRecurringMirror(ctx, sub, plan, method)
}

func (s *Service) cancelRecurringMirror(ctx context.Context, sub *domain.Subscription) {
	if s.gateway == nil || sub.ProcessorRecurringID == nil {
		return
	}
	recurringID := *sub.ProcessorRecurringID
	if _, err := s.gateway.CancelRecurring(ctx, recurringID); err != nil {
		s.logger.Warn("recurring mirror cancel failed",
			ports.String("subscription_id", sub.ID),
			ports.String("recurring_id", recurringID),
			ports.Err(err))
		return
	}
	sub.ProcessorRecurringID = nil
	if err := s.subscriptions.Update(ctx, nil, sub); err != nil {
		s.logger.Warn("clear recurring mirror id failed",
			ports.String("subscription_id", sub.ID),
			ports.Err(err))
	}
}

func newSubscription(req *serviceports.CreateSubscriptionRequest, plan *domain.SubscriptionPlan, now time.Time) *domain.Subscription {
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	anchor := start
	if req.BillingCycleAnchor != nil {
		anchor = req.BillingCycleAnchor.UTC()
	}

	sub := &domain.Subscription{
		CreatedAt:          now,
		UpdatedAt:          now,
		CurrentPeriodStart: start,
		BillingCycleAnchor: anchor,
		Metadata:           req.Metadata,
		ID:                 uuid.NewString(),
		CustomerID:         req.CustomerID,
		PlanCode:           plan.Code,
		PaymentMethodID:    req.PaymentMethodID,
		Status:             domain.SubscriptionStatusPending,
	}

	if req.WithTrial && plan.HasTrial() {
		trialEnd := start.AddDate(0, 0, plan.TrialDays)
		sub.TrialStart = &start
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodEnd = trialEnd
		sub.NextBillingDate = &trialEnd
		return sub
	}

	sub.CurrentPeriodEnd = domain.AdvancePeriod(start, plan.IntervalUnit, plan.IntervalCount)
	next := sub.CurrentPeriodEnd
	sub.NextBillingDate = &next
	return sub
}

func validateCreate(req *serviceports.CreateSubscriptionRequest) error {
	if req.CustomerID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer_id is required")
	}
	if req.PlanCode == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "plan_code is required")
	}
	if req.PaymentMethodID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "payment_method_id is required")
	}
	return nil
}

// transition moves a subscription along a legal lifecycle edge.
func transition(sub *domain.Subscription, next domain.SubscriptionStatus) error {
	if !sub.Status.CanTransitionTo(next) {
		return domain.ErrSubInvalidState
	}
	sub.Status = next
	return nil
}

func scopedKey(customerID, key string) string {
	return customerID + ":" + key
}

// createHash fingerprints the request for idempotency conflict
// detection.
func createHash(req *serviceports.CreateSubscriptionRequest) string {
	start := ""
	if req.StartDate != nil {
		start = req.StartDate.UTC().Format(time.RFC3339)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%t|%t|%s",
		req.CustomerID, req.PlanCode, req.PaymentMethodID,
		req.WithTrial, req.Prorated, start)
	return hex.EncodeToString(h.Sum(nil))
}
