package domain

import (
	"time"

	"github.com/recurpay/billing-gateway/pkg/timeutil"
)

// SubscriptionStatus represents the subscription lifecycle state
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

var subscriptionStatusEdges = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusPending: {SubscriptionStatusActive, SubscriptionStatusCancelled},
	SubscriptionStatusActive:  {SubscriptionStatusPastDue, SubscriptionStatusPaused, SubscriptionStatusCancelled},
	SubscriptionStatusPastDue: {SubscriptionStatusActive, SubscriptionStatusCancelled},
	SubscriptionStatusPaused:  {SubscriptionStatusActive, SubscriptionStatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, allowed := range subscriptionStatusEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status never changes again.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled
}

// CancellationReasonNonPayment is recorded when dunning exhausts all
// retry attempts.
const CancellationReasonNonPayment = "non-payment"

// Subscription represents a recurring billing agreement.
//
// Invariants: CurrentPeriodStart <= CurrentPeriodEnd;
// NextBillingDate equals CurrentPeriodEnd while status is ACTIVE or
// PAST_DUE and is nil once CANCELLED.
type Subscription struct {
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	BillingCycleAnchor time.Time `json:"billing_cycle_anchor"`

	NextBillingDate *time.Time `json:"next_billing_date"`
	TrialStart      *time.Time `json:"trial_start"`
	TrialEnd        *time.Time `json:"trial_end"`
	CancelledAt     *time.Time `json:"cancelled_at"`

	// Scheduled changes, enacted by the lifecycle sweep.
	ScheduledCancelAt     *time.Time `json:"scheduled_cancel_at"`
	ScheduledPlanCode     *string    `json:"scheduled_plan_code"`
	ScheduledPlanChangeAt *time.Time `json:"scheduled_plan_change_at"`

	CancellationReason   *string           `json:"cancellation_reason"`
	ProcessorRecurringID *string           `json:"processor_recurring_id"`
	Metadata             map[string]string `json:"metadata"` // client annotations only

	ID              string             `json:"id"`
	CustomerID      string             `json:"customer_id"`
	PlanCode        string             `json:"plan_code"`
	PaymentMethodID string             `json:"payment_method_id"`
	Status          SubscriptionStatus `json:"status"`
}

// IsActive returns true if the subscription is currently active
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsCancelled returns true if the subscription has been cancelled
func (s *Subscription) IsCancelled() bool {
	return s.Status == SubscriptionStatusCancelled
}

// IsInTrial returns true while now falls inside the trial window
func (s *Subscription) IsInTrial(now time.Time) bool {
	if s.TrialStart == nil || s.TrialEnd == nil {
		return false
	}
	return !now.Before(*s.TrialStart) && now.Before(*s.TrialEnd)
}

// IsBillable returns true if the subscription is due for billing at now
func (s *Subscription) IsBillable(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	return s.NextBillingDate != nil && !now.Before(*s.NextBillingDate)
}

// HasScheduledCancel returns true when an end-of-period cancel is pending
func (s *Subscription) HasScheduledCancel() bool {
	return s.ScheduledCancelAt != nil
}

// HasScheduledPlanChange returns true when a deferred plan change is pending
func (s *Subscription) HasScheduledPlanChange() bool {
	return s.ScheduledPlanCode != nil && s.ScheduledPlanChangeAt != nil
}

// AdvancePeriod returns the end of a billing period that starts at start.
// MONTH and YEAR intervals clamp the day-of-month to the target month's
// maximum (Jan 31 + 1 month = Feb 28/29).
func AdvancePeriod(start time.Time, unit IntervalUnit, count int) time.Time {
	if count < 1 {
		count = 1
	}
	start = timeutil.ToUTC(start)

	switch unit {
	case IntervalUnitDay:
		return start.AddDate(0, 0, count)
	case IntervalUnitWeek:
		return start.AddDate(0, 0, count*7)
	case IntervalUnitMonth:
		return timeutil.AddMonths(start, count)
	case IntervalUnitYear:
		return timeutil.AddYears(start, count)
	default:
		return timeutil.AddMonths(start, count)
	}
}
