package fixtures

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// PlanBuilder provides a fluent API for building test plans.
type PlanBuilder struct {
	plan *domain.SubscriptionPlan
}

// NewPlan creates a plan builder with sensible defaults: an active
// $29.99/month plan with no trial and no setup fee.
func NewPlan() *PlanBuilder {
	now := time.Now().UTC()
	return &PlanBuilder{
		plan: &domain.SubscriptionPlan{
			Code:          "basic-monthly",
			Name:          "Basic Monthly",
			Amount:        decimal.RequireFromString("29.99"),
			SetupFee:      decimal.Zero,
			Currency:      "USD",
			IntervalUnit:  domain.IntervalUnitMonth,
			IntervalCount: 1,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

func (b *PlanBuilder) WithCode(code string) *PlanBuilder {
	b.plan.Code = code
	return b
}

func (b *PlanBuilder) WithAmount(amount string) *PlanBuilder {
	b.plan.Amount = decimal.RequireFromString(amount)
	return b
}

func (b *PlanBuilder) WithInterval(unit domain.IntervalUnit, count int) *PlanBuilder {
	b.plan.IntervalUnit = unit
	b.plan.IntervalCount = count
	return b
}

func (b *PlanBuilder) WithTrialDays(days int) *PlanBuilder {
	b.plan.TrialDays = days
	return b
}

func (b *PlanBuilder) WithSetupFee(fee string) *PlanBuilder {
	b.plan.SetupFee = decimal.RequireFromString(fee)
	return b
}

func (b *PlanBuilder) Inactive() *PlanBuilder {
	b.plan.IsActive = false
	return b
}

// Build returns the constructed plan.
func (b *PlanBuilder) Build() *domain.SubscriptionPlan {
	plan := *b.plan
	return &plan
}

// SubscriptionBuilder provides a fluent API for building test subscriptions.
type SubscriptionBuilder struct {
	sub *domain.Subscription
}

// NewSubscription creates a subscription builder with sensible defaults:
// ACTIVE on a monthly plan, current period starting now.
func NewSubscription() *SubscriptionBuilder {
	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	return &SubscriptionBuilder{
		sub: &domain.Subscription{
			ID:                 uuid.NewString(),
			CustomerID:         uuid.NewString(),
			PlanCode:           "basic-monthly",
			PaymentMethodID:    uuid.NewString(),
			Status:             domain.SubscriptionStatusActive,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   periodEnd,
			BillingCycleAnchor: now,
			NextBillingDate:    TimePtr(periodEnd),
			Metadata:           map[string]string{},
			CreatedAt:          now,
			UpdatedAt:          now,
		},
	}
}

func (b *SubscriptionBuilder) WithID(id string) *SubscriptionBuilder {
	b.sub.ID = id
	return b
}

func (b *SubscriptionBuilder) WithCustomerID(customerID string) *SubscriptionBuilder {
	b.sub.CustomerID = customerID
	return b
}

func (b *SubscriptionBuilder) WithPlanCode(code string) *SubscriptionBuilder {
	b.sub.PlanCode = code
	return b
}

func (b *SubscriptionBuilder) WithStatus(status domain.SubscriptionStatus) *SubscriptionBuilder {
	b.sub.Status = status
	return b
}

// WithPeriod pins the current billing period and aligns the next
// billing date to its end.
func (b *SubscriptionBuilder) WithPeriod(start, end time.Time) *SubscriptionBuilder {
	b.sub.CurrentPeriodStart = start
	b.sub.CurrentPeriodEnd = end
	b.sub.BillingCycleAnchor = start
	b.sub.NextBillingDate = TimePtr(end)
	return b
}

func (b *SubscriptionBuilder) WithTrial(start, end time.Time) *SubscriptionBuilder {
	b.sub.TrialStart = TimePtr(start)
	b.sub.TrialEnd = TimePtr(end)
	b.sub.NextBillingDate = TimePtr(end)
	return b
}

func (b *SubscriptionBuilder) PastDue() *SubscriptionBuilder {
	b.sub.Status = domain.SubscriptionStatusPastDue
	return b
}

func (b *SubscriptionBuilder) Cancelled(at time.Time, reason string) *SubscriptionBuilder {
	b.sub.Status = domain.SubscriptionStatusCancelled
	b.sub.CancelledAt = TimePtr(at)
	b.sub.CancellationReason = StringPtr(reason)
	b.sub.NextBillingDate = nil
	return b
}

func (b *SubscriptionBuilder) WithScheduledCancel(at time.Time) *SubscriptionBuilder {
	b.sub.ScheduledCancelAt = TimePtr(at)
	return b
}

func (b *SubscriptionBuilder) WithScheduledPlanChange(code string, at time.Time) *SubscriptionBuilder {
	b.sub.ScheduledPlanCode = StringPtr(code)
	b.sub.ScheduledPlanChangeAt = TimePtr(at)
	return b
}

func (b *SubscriptionBuilder) WithProcessorRecurringID(id string) *SubscriptionBuilder {
	b.sub.ProcessorRecurringID = StringPtr(id)
	return b
}

// Build returns the constructed subscription.
func (b *SubscriptionBuilder) Build() *domain.Subscription {
	sub := *b.sub
	sub.Metadata = map[string]string{}
	for k, v := range b.sub.Metadata {
		sub.Metadata[k] = v
	}
	return &sub
}

// InvoiceBuilder provides a fluent API for building test invoices.
type InvoiceBuilder struct {
	inv *domain.SubscriptionInvoice
}

var invoiceSeq int

// NewInvoice creates an invoice builder with sensible defaults: a
// PENDING BILL invoice for the month ending today, due in three days.
func NewInvoice() *InvoiceBuilder {
	now := time.Now().UTC()
	invoiceSeq++
	return &InvoiceBuilder{
		inv: &domain.SubscriptionInvoice{
			ID:             uuid.NewString(),
			Number:         fmt.Sprintf("INV-TEST-%06d", invoiceSeq),
			SubscriptionID: uuid.NewString(),
			Type:           domain.InvoiceTypeBill,
			Status:         domain.InvoiceStatusPending,
			Amount:         decimal.RequireFromString("29.99"),
			Currency:       "USD",
			PeriodStart:    now.AddDate(0, -1, 0),
			PeriodEnd:      now,
			DueDate:        now.AddDate(0, 0, 3),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
}

func (b *InvoiceBuilder) WithSubscriptionID(id string) *InvoiceBuilder {
	b.inv.SubscriptionID = id
	return b
}

func (b *InvoiceBuilder) WithNumber(number string) *InvoiceBuilder {
	b.inv.Number = number
	return b
}

func (b *InvoiceBuilder) WithType(t domain.InvoiceType) *InvoiceBuilder {
	b.inv.Type = t
	return b
}

func (b *InvoiceBuilder) WithStatus(s domain.InvoiceStatus) *InvoiceBuilder {
	b.inv.Status = s
	return b
}

func (b *InvoiceBuilder) WithAmount(amount string) *InvoiceBuilder {
	b.inv.Amount = decimal.RequireFromString(amount)
	return b
}

func (b *InvoiceBuilder) WithPeriod(start, end time.Time) *InvoiceBuilder {
	b.inv.PeriodStart = start
	b.inv.PeriodEnd = end
	return b
}

// Failed shapes the invoice as having failed n payment attempts, with
// the next retry due at nextAttempt.
func (b *InvoiceBuilder) Failed(attempts int, nextAttempt time.Time) *InvoiceBuilder {
	b.inv.Status = domain.InvoiceStatusFailed
	b.inv.PaymentAttempts = attempts
	b.inv.NextPaymentAttempt = TimePtr(nextAttempt)
	return b
}

func (b *InvoiceBuilder) Paid(transactionID string) *InvoiceBuilder {
	b.inv.Status = domain.InvoiceStatusPaid
	b.inv.LinkedTransactionID = StringPtr(transactionID)
	b.inv.PaidAt = TimePtr(time.Now().UTC())
	return b
}

// Build returns the constructed invoice.
func (b *InvoiceBuilder) Build() *domain.SubscriptionInvoice {
	inv := *b.inv
	return &inv
}
