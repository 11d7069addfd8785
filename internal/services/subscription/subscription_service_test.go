package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	"github.com/recurpay/billing-gateway/internal/services/subscription"
	"github.com/recurpay/billing-gateway/test/mocks"
)

type subscriptionFixture struct {
	db       *mocks.MockDB
	subs     *mocks.MockSubscriptionRepository
	plans    *mocks.MockPlanRepository
	invoices *mocks.MockInvoiceRepository
	credits  *mocks.MockCreditRepository
	cust     *mocks.MockCustomerRepository
	methods  *mocks.MockPaymentMethodRepository
	idem     *mocks.MockIdempotencyStore
	audit    *mocks.MockAuditLogRepository
	gateway  *mocks.MockProcessorGateway
	events   *mocks.MockEventPublisher
	logger   *mocks.MockLogger
	service  *subscription.Service
}

func newSubscriptionFixture() *subscriptionFixture {
	f := &subscriptionFixture{
		db:       mocks.NewMockDB(),
		subs:     mocks.NewMockSubscriptionRepository(),
		plans:    mocks.NewMockPlanRepository(),
		invoices: mocks.NewMockInvoiceRepository(),
		credits:  mocks.NewMockCreditRepository(),
		cust:     mocks.NewMockCustomerRepository(),
		methods:  mocks.NewMockPaymentMethodRepository(),
		idem:     mocks.NewMockIdempotencyStore(),
		audit:    mocks.NewMockAuditLogRepository(),
		gateway:  mocks.NewMockProcessorGateway(),
		events:   mocks.NewMockEventPublisher(),
		logger:   mocks.NewMockLogger(),
	}
	f.service = subscription.NewService(
		f.db, f.subs, f.plans, f.invoices, f.credits, f.cust, f.methods,
		f.idem, f.audit, f.gateway, f.events, f.logger, subscription.DefaultConfig())
	return f
}

func seedCustomerAndMethod(f *subscriptionFixture) {
	profile := "prof-1"
	f.cust.Seed(&domain.Customer{
		ID:                 "cust-1",
		Email:              "ada@example.com",
		FirstName:          "Ada",
		LastName:           "Lovelace",
		IsActive:           true,
		ProcessorProfileID: &profile,
	})
	month, year := 12, time.Now().Year()+2
	f.methods.Seed(&domain.PaymentMethod{
		ID:          "pm-1",
		CustomerID:  "cust-1",
		Kind:        domain.PaymentMethodCard,
		Token:       "pay-1",
		Brand:       "visa",
		LastFour:    "1111",
		ExpiryMonth: &month,
		ExpiryYear:  &year,
		IsActive:    true,
	})
}

func seedPlan(f *subscriptionFixture, code string, amount string, trialDays int, setupFee string) *domain.SubscriptionPlan {
	plan := &domain.SubscriptionPlan{
		Code:          code,
		Name:          code,
		Currency:      "USD",
		IntervalUnit:  domain.IntervalUnitMonth,
		IntervalCount: 1,
		TrialDays:     trialDays,
		Amount:        decimal.RequireFromString(amount),
		SetupFee:      decimal.RequireFromString(setupFee),
		IsActive:      true,
	}
	f.plans.Seed(plan)
	return plan
}

func createRequest() *serviceports.CreateSubscriptionRequest {
	return &serviceports.CreateSubscriptionRequest{
		CustomerID:      "cust-1",
		PlanCode:        "pro-monthly",
		PaymentMethodID: "pm-1",
		IdempotencyKey:  "create-1",
	}
}

func approvedRecurring(recurringID string) *ports.Outcome {
	return ports.NewApprovedOutcome(ports.Approval{ExternalID: recurringID}, "1", nil)
}

func TestCreate_ActivatesAndSchedulesFirstBilling(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "pro-monthly", "29.99", 0, "0")
	f.gateway.SetRecurringOutcome(approvedRecurring("arb-1"), nil)

	sub, err := f.service.Create(context.Background(), createRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, plan.Code, sub.PlanCode)
	assert.Nil(t, sub.TrialEnd)

	wantEnd := domain.AdvancePeriod(sub.CurrentPeriodStart, plan.IntervalUnit, plan.IntervalCount)
	assert.True(t, sub.CurrentPeriodEnd.Equal(wantEnd))
	require.NotNil(t, sub.NextBillingDate)
	assert.True(t, sub.NextBillingDate.Equal(wantEnd))
	assert.True(t, sub.BillingCycleAnchor.Equal(sub.CurrentPeriodStart))

	// No setup fee, no proration: arrears billing cuts the first invoice
	// when the period completes.
	invs, err := f.invoices.ListBySubscription(context.Background(), nil, sub.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, invs)

	// Processor mirror recorded after commit.
	got, err := f.subs.GetByID(context.Background(), nil, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProcessorRecurringID)
	assert.Equal(t, "arb-1", *got.ProcessorRecurringID)
	assert.Equal(t, 1, f.gateway.RecurringCalls)
	assert.True(t, f.gateway.LastRecurringReq.Amount.Equal(plan.Amount))

	assert.Equal(t, []string{"recurpay.subscription.created"}, f.events.EventTypes())
}

func TestCreate_TrialDefersBillingToTrialEnd(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	seedPlan(f, "pro-monthly", "29.99", 14, "0")
	f.gateway.SetRecurringOutcome(approvedRecurring("arb-1"), nil)

	req := createRequest()
	req.WithTrial = true
	req.Prorated = true
	sub, err := f.service.Create(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.TrialStart)
	require.NotNil(t, sub.TrialEnd)
	assert.True(t, sub.TrialEnd.Equal(sub.TrialStart.AddDate(0, 0, 14)))
	assert.True(t, sub.CurrentPeriodEnd.Equal(*sub.TrialEnd))
	require.NotNil(t, sub.NextBillingDate)
	assert.True(t, sub.NextBillingDate.Equal(*sub.TrialEnd))

	// Prorated is ignored during trial: nothing to charge yet.
	invs, err := f.invoices.ListBySubscription(context.Background(), nil, sub.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestCreate_SetupFeeAndProratedFirstInvoice(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "pro-monthly", "29.99", 0, "10.00")
	f.gateway.SetRecurringOutcome(approvedRecurring("arb-1"), nil)

	req := createRequest()
	req.Prorated = true
	sub, err := f.service.Create(context.Background(), req)

	require.NoError(t, err)
	invs, err := f.invoices.ListBySubscription(context.Background(), nil, sub.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, invs, 2)

	byType := map[domain.InvoiceType]*domain.SubscriptionInvoice{}
	for _, inv := range invs {
		byType[inv.Type] = inv
	}
	setup := byType[domain.InvoiceTypeSetup]
	require.NotNil(t, setup)
	assert.True(t, setup.Amount.Equal(plan.SetupFee))
	assert.True(t, setup.DueDate.Equal(setup.CreatedAt.AddDate(0, 0, 1)))

	first := byType[domain.InvoiceTypeBill]
	require.NotNil(t, first)
	assert.True(t, first.Amount.Equal(plan.Amount))
	assert.True(t, first.DueDate.Equal(first.CreatedAt.AddDate(0, 0, 3)))
	assert.Equal(t, domain.InvoiceStatusPending, first.Status)
}

func TestCreate_ReplaysStoredResponse(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	seedPlan(f, "pro-monthly", "29.99", 0, "0")
	f.gateway.SetRecurringOutcome(approvedRecurring("arb-1"), nil)

	first, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)

	second, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// One subscription row, one published event, one mirror.
	assert.Equal(t, 1, f.subs.CreateCalls)
	assert.Equal(t, 1, f.gateway.RecurringCalls)
	assert.Len(t, f.events.EventTypes(), 1)
}

func TestCreate_SameKeyDifferentRequestConflicts(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	seedPlan(f, "pro-monthly", "29.99", 0, "0")
	seedPlan(f, "biz-monthly", "99.00", 0, "0")
	f.gateway.SetRecurringOutcome(approvedRecurring("arb-1"), nil)

	_, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)

	req := createRequest()
	req.PlanCode = "biz-monthly"
	_, err = f.service.Create(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestCreate_RejectsInactivePlan(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "pro-monthly", "29.99", 0, "0")
	plan.IsActive = false
	f.plans.Seed(plan)

	_, err := f.service.Create(context.Background(), createRequest())
	assert.ErrorIs(t, err, domain.ErrPlanInactive)
	assert.Equal(t, 0, f.subs.CreateCalls)
}

func TestCreate_RejectsForeignPaymentMethod(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	seedPlan(f, "pro-monthly", "29.99", 0, "0")
	f.methods.Seed(&domain.PaymentMethod{
		ID:         "pm-other",
		CustomerID: "cust-2",
		Kind:       domain.PaymentMethodCard,
		Token:      "pay-2",
		IsActive:   true,
	})

	req := createRequest()
	req.PaymentMethodID = "pm-other"
	_, err := f.service.Create(context.Background(), req)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePMInvalid))
}

// seedActiveSubscription places an already-running monthly subscription
// mid-period: 10 days in, 20 remaining of a 30-day period.
func seedActiveSubscription(f *subscriptionFixture, plan *domain.SubscriptionPlan, now time.Time) *domain.Subscription {
	periodStart := now.AddDate(0, 0, -10)
	periodEnd := periodStart.AddDate(0, 0, 30)
	next := periodEnd
	recurringID := "arb-1"
	sub := &domain.Subscription{
		ID:                   "sub-1",
		CustomerID:           "cust-1",
		PlanCode:             plan.Code,
		PaymentMethodID:      "pm-1",
		Status:               domain.SubscriptionStatusActive,
		CreatedAt:            periodStart,
		UpdatedAt:            periodStart,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
		BillingCycleAnchor:   periodStart,
		NextBillingDate:      &next,
		ProcessorRecurringID: &recurringID,
	}
	f.subs.Seed(sub)
	return sub
}

func TestUpdate_ImmediateUpgradeProratesAndInvoices(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	oldPlan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	seedPlan(f, "pro-monthly", "60.00", 0, "0")
	sub := seedActiveSubscription(f, oldPlan, now)
	f.gateway.SetRecurringOutcome(approvedRecurring("arb-2"), nil)
	f.gateway.SetCancelRecurringOutcome(approvedRecurring("arb-1"), nil)

	newCode := "pro-monthly"
	got, err := f.service.Update(context.Background(), &serviceports.UpdateSubscriptionRequest{
		SubscriptionID: sub.ID,
		NewPlanCode:    &newCode,
		Timing:         serviceports.ChangeImmediate,
		Prorated:       true,
	})

	require.NoError(t, err)
	assert.Equal(t, "pro-monthly", got.PlanCode)
	// Cycle restarts at the change.
	assert.True(t, got.CurrentPeriodStart.After(sub.CurrentPeriodStart))
	require.NotNil(t, got.NextBillingDate)
	assert.True(t, got.NextBillingDate.Equal(got.CurrentPeriodEnd))

	// 20 of 30 days remain: daily rates 1.00 and 2.00, net charge 20.00.
	invs, err := f.invoices.ListBySubscription(context.Background(), nil, sub.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, domain.InvoiceTypeProrate, invs[0].Type)
	assert.True(t, invs[0].Amount.Equal(decimal.RequireFromString("20.00")),
		"got %s", invs[0].Amount)

	// Mirror replaced with the new amount.
	assert.Equal(t, 1, f.gateway.CancelRecurringCalls)
	assert.Equal(t, 1, f.gateway.RecurringCalls)
	assert.True(t, f.gateway.LastRecurringReq.Amount.Equal(decimal.RequireFromString("60.00")))

	assert.Equal(t, []string{"recurpay.subscription.updated"}, f.events.EventTypes())
}

func TestUpdate_ImmediateDowngradeIssuesCredit(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	oldPlan := seedPlan(f, "pro-monthly", "60.00", 0, "0")
	seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, oldPlan, now)
	f.gateway.SetRecurringOutcome(approvedRecurring("arb-2"), nil)
	f.gateway.SetCancelRecurringOutcome(approvedRecurring("arb-1"), nil)

	newCode := "basic-monthly"
	_, err := f.service.Update(context.Background(), &serviceports.UpdateSubscriptionRequest{
		SubscriptionID: sub.ID,
		NewPlanCode:    &newCode,
		Timing:         serviceports.ChangeImmediate,
		Prorated:       true,
	})

	require.NoError(t, err)
	entries := f.credits.Entries()
	require.Len(t, entries, 1)
	// Inverse of the upgrade: credit 20.00.
	assert.True(t, entries[0].Remaining.Equal(decimal.RequireFromString("20.00")),
		"got %s", entries[0].Remaining)
	assert.Equal(t, "plan downgrade proration", entries[0].Reason)
	assert.Equal(t, "cust-1", entries[0].CustomerID)

	invs, err := f.invoices.ListBySubscription(context.Background(), nil, sub.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestUpdate_EndOfPeriodSchedulesChange(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	oldPlan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	seedPlan(f, "pro-monthly", "60.00", 0, "0")
	sub := seedActiveSubscription(f, oldPlan, now)

	newCode := "pro-monthly"
	got, err := f.service.Update(context.Background(), &serviceports.UpdateSubscriptionRequest{
		SubscriptionID: sub.ID,
		NewPlanCode:    &newCode,
		Timing:         serviceports.ChangeEndOfPeriod,
	})

	require.NoError(t, err)
	// Plan unchanged until the lifecycle sweep enacts it.
	assert.Equal(t, "basic-monthly", got.PlanCode)
	require.NotNil(t, got.ScheduledPlanCode)
	assert.Equal(t, "pro-monthly", *got.ScheduledPlanCode)
	require.NotNil(t, got.ScheduledPlanChangeAt)
	assert.True(t, got.ScheduledPlanChangeAt.Equal(sub.CurrentPeriodEnd))
	// No proration, no mirror churn.
	assert.Equal(t, 0, f.gateway.RecurringCalls)
	assert.Equal(t, 0, f.gateway.CancelRecurringCalls)
}

func TestUpdate_PaymentMethodOnly(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, plan, now)
	month, year := 11, now.Year()+3
	f.methods.Seed(&domain.PaymentMethod{
		ID:          "pm-2",
		CustomerID:  "cust-1",
		Kind:        domain.PaymentMethodCard,
		Token:       "pay-2",
		LastFour:    "4242",
		ExpiryMonth: &month,
		ExpiryYear:  &year,
		IsActive:    true,
	})

	newPM := "pm-2"
	got, err := f.service.Update(context.Background(), &serviceports.UpdateSubscriptionRequest{
		SubscriptionID:  sub.ID,
		PaymentMethodID: &newPM,
	})

	require.NoError(t, err)
	assert.Equal(t, "pm-2", got.PaymentMethodID)
	assert.Equal(t, plan.Code, got.PlanCode)
	// Billing cycle untouched.
	assert.True(t, got.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd))
}

func TestUpdate_RejectsCurrencyMismatch(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	oldPlan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	euro := seedPlan(f, "euro-monthly", "25.00", 0, "0")
	euro.Currency = "EUR"
	f.plans.Seed(euro)
	sub := seedActiveSubscription(f, oldPlan, now)

	newCode := "euro-monthly"
	_, err := f.service.Update(context.Background(), &serviceports.UpdateSubscriptionRequest{
		SubscriptionID: sub.ID,
		NewPlanCode:    &newCode,
	})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
}

func TestCancel_ImmediateWithRefundCredit(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, plan, now)
	f.gateway.SetCancelRecurringOutcome(approvedRecurring("arb-1"), nil)

	got, err := f.service.Cancel(context.Background(), &serviceports.CancelSubscriptionRequest{
		SubscriptionID: sub.ID,
		Timing:         serviceports.ChangeImmediate,
		Reason:         "customer request",
		RefundUnused:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.Nil(t, got.NextBillingDate)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "customer request", *got.CancellationReason)

	// 20 of 30 days unused at 1.00/day.
	entries := f.credits.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Remaining.Equal(decimal.RequireFromString("20.00")),
		"got %s", entries[0].Remaining)
	assert.Equal(t, "cancellation refund", entries[0].Reason)

	// Mirror cancelled and cleared.
	assert.Equal(t, 1, f.gateway.CancelRecurringCalls)
	stored, err := f.subs.GetByID(context.Background(), nil, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ProcessorRecurringID)

	assert.Equal(t, []string{"recurpay.subscription.cancelled"}, f.events.EventTypes())
}

func TestCancel_EndOfPeriodSchedules(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, plan, now)
	f.gateway.SetCancelRecurringOutcome(approvedRecurring("arb-1"), nil)

	got, err := f.service.Cancel(context.Background(), &serviceports.CancelSubscriptionRequest{
		SubscriptionID: sub.ID,
		Timing:         serviceports.ChangeEndOfPeriod,
	})

	require.NoError(t, err)
	// Still active; the lifecycle sweep enacts the cancellation.
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)
	require.NotNil(t, got.ScheduledCancelAt)
	assert.True(t, got.ScheduledCancelAt.Equal(sub.CurrentPeriodEnd))
	// The mirror stops now so the processor cannot charge past the end.
	assert.Equal(t, 1, f.gateway.CancelRecurringCalls)
}

func TestCancel_CancelledSubscriptionRejected(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, plan, now)
	sub.Status = domain.SubscriptionStatusCancelled
	f.subs.Seed(sub)

	_, err := f.service.Cancel(context.Background(), &serviceports.CancelSubscriptionRequest{
		SubscriptionID: sub.ID,
	})
	assert.ErrorIs(t, err, domain.ErrSubCancelled)
}

func TestPauseAndResume_RestartsCycle(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, plan, now)

	paused, err := f.service.Pause(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPaused, paused.Status)

	// Paused subscriptions never surface as billable.
	due, err := f.service.DueForBilling(context.Background(), now.AddDate(0, 2, 0), 100)
	require.NoError(t, err)
	assert.Empty(t, due)

	resumed, err := f.service.Resume(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, resumed.Status)
	// Cycle restarted from the resume point, not the old period.
	assert.True(t, resumed.CurrentPeriodStart.After(sub.CurrentPeriodStart))
	wantEnd := domain.AdvancePeriod(resumed.CurrentPeriodStart, plan.IntervalUnit, plan.IntervalCount)
	assert.True(t, resumed.CurrentPeriodEnd.Equal(wantEnd))

	assert.Equal(t, []string{"recurpay.subscription.paused", "recurpay.subscription.resumed"}, f.events.EventTypes())
}

func TestPause_RequiresActive(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, plan, now)
	sub.Status = domain.SubscriptionStatusPastDue
	f.subs.Seed(sub)

	_, err := f.service.Pause(context.Background(), sub.ID)
	assert.ErrorIs(t, err, domain.ErrSubInvalidState)
}

func TestResume_RequiresPaused(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	sub := seedActiveSubscription(f, plan, now)

	_, err := f.service.Resume(context.Background(), sub.ID)
	assert.ErrorIs(t, err, domain.ErrSubInvalidState)
}

func TestDueForBilling_ReturnsOnlyRipeActives(t *testing.T) {
	now := time.Now().UTC()
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	plan := seedPlan(f, "basic-monthly", "30.00", 0, "0")
	ripe := seedActiveSubscription(f, plan, now)

	future := now.AddDate(0, 1, 0)
	f.subs.Seed(&domain.Subscription{
		ID:                 "sub-future",
		CustomerID:         "cust-1",
		PlanCode:           plan.Code,
		PaymentMethodID:    "pm-1",
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   future,
		NextBillingDate:    &future,
	})

	due, err := f.service.DueForBilling(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, ripe.ID, due[0].ID)
}
