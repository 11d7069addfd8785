package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/pkg/timeutil"
)

// ProrationType classifies the net result of mid-period proration.
type ProrationType string

const (
	ProrationCharge ProrationType = "CHARGE"
	ProrationCredit ProrationType = "CREDIT"
	ProrationNone   ProrationType = "NONE"
)

// Sanity bounds. A result outside them never applies: a net above the
// cap or a period outside [1, 400] days points at corrupted period
// data, not a price to collect.
var maxProrationNet = decimal.NewFromInt(10000)

const maxPeriodDays = 400

// ProrationResult describes what a mid-period change costs or credits.
// Daily rates are taken at 4 decimal places and the net at 2, half-up.
// NetAmount is positive for a charge and negative for a credit;
// UnusedAmount and ProratedAmount are informational, truncated to
// cents.
type ProrationResult struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	ChangeDate  time.Time `json:"change_date"`

	OriginalAmount decimal.Decimal `json:"original_amount"`
	NewAmount      decimal.Decimal `json:"new_amount"`
	UnusedAmount   decimal.Decimal `json:"unused_amount"`
	ProratedAmount decimal.Decimal `json:"prorated_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`

	Type        ProrationType `json:"type"`
	Currency    string        `json:"currency"`
	Reason      string        `json:"reason"`
	Explanation string        `json:"explanation"`

	TotalDaysInPeriod int `json:"total_days_in_period"`
	DaysUsed          int `json:"days_used"`
	DaysRemaining     int `json:"days_remaining"`

	// Applies is false when nothing should be charged or credited.
	Applies bool `json:"applies"`
}

// CalculatePlanChange prices switching the subscription from
// currentPlan to newPlan at changeDate. The unused remainder of the old
// plan is credited against the prorated remainder of the new plan;
// the sign of the net decides CHARGE or CREDIT. Changes on equal
// amounts, outside the open period interval, or with nothing remaining
// do not apply.
func CalculatePlanChange(sub *domain.Subscription, currentPlan, newPlan *domain.SubscriptionPlan, changeDate time.Time) ProrationResult {
	res := ProrationResult{
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		ChangeDate:     changeDate,
		OriginalAmount: currentPlan.Amount,
		NewAmount:      newPlan.Amount,
		UnusedAmount:   decimal.Zero,
		ProratedAmount: decimal.Zero,
		NetAmount:      decimal.Zero,
		Type:           ProrationNone,
		Currency:       newPlan.Currency,
	}

	if currentPlan.Amount.Equal(newPlan.Amount) {
		res.Reason = "plan amounts are equal"
		return res
	}
	if !changeDate.After(sub.CurrentPeriodStart) || !changeDate.Before(sub.CurrentPeriodEnd) {
		res.Reason = "change date falls outside the current period"
		return res
	}
	if !fillPeriodDays(&res) {
		return res
	}

	total := decimal.NewFromInt(int64(res.TotalDaysInPeriod))
	remaining := decimal.NewFromInt(int64(res.DaysRemaining))
	dailyOld := currentPlan.Amount.Div(total).Round(4)
	dailyNew := newPlan.Amount.Div(total).Round(4)

	unused := dailyOld.Mul(remaining)
	prorated := dailyNew.Mul(remaining)
	net := prorated.Sub(unused).Round(2)

	res.UnusedAmount = unused.Truncate(2)
	res.ProratedAmount = prorated.Truncate(2)

	if net.Abs().GreaterThan(maxProrationNet) {
		res.Reason = "net amount exceeds the proration bound"
		return res
	}

	switch {
	case net.IsPositive():
		res.Type = ProrationCharge
	case net.IsNegative():
		res.Type = ProrationCredit
	default:
		res.Reason = "prorated amounts cancel out"
		return res
	}

	res.NetAmount = net
	res.Applies = true
	res.Reason = "plan change"
	res.Explanation = fmt.Sprintf("%d of %d days remain: unused %s %s against prorated %s %s, net %s %s",
		res.DaysRemaining, res.TotalDaysInPeriod,
		res.UnusedAmount.StringFixed(2), res.Currency,
		res.ProratedAmount.StringFixed(2), res.Currency,
		net.StringFixed(2), res.Currency)
	return res
}

// CalculateCancellationRefund values the unused remainder of the
// current period when a subscription cancels at changeDate. The net is
// always a credit; a change on or after the period end caps it at
// zero.
func CalculateCancellationRefund(sub *domain.Subscription, currentPlan *domain.SubscriptionPlan, changeDate time.Time) ProrationResult {
	res := ProrationResult{
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		ChangeDate:     changeDate,
		OriginalAmount: currentPlan.Amount,
		NewAmount:      decimal.Zero,
		UnusedAmount:   decimal.Zero,
		ProratedAmount: decimal.Zero,
		NetAmount:      decimal.Zero,
		Type:           ProrationNone,
		Currency:       currentPlan.Currency,
	}

	if !changeDate.Before(sub.CurrentPeriodEnd) {
		res.Reason = "period fully used"
		return res
	}
	if changeDate.Before(sub.CurrentPeriodStart) {
		res.Reason = "change date falls outside the current period"
		return res
	}
	if !fillPeriodDays(&res) {
		return res
	}

	total := decimal.NewFromInt(int64(res.TotalDaysInPeriod))
	remaining := decimal.NewFromInt(int64(res.DaysRemaining))
	dailyOld := currentPlan.Amount.Div(total).Round(4)

	unused := dailyOld.Mul(remaining)
	net := unused.Neg().Round(2)

	res.UnusedAmount = unused.Truncate(2)

	if net.Abs().GreaterThan(maxProrationNet) {
		res.Reason = "net amount exceeds the proration bound"
		return res
	}
	if net.IsZero() {
		res.Reason = "nothing remains in the period"
		return res
	}

	res.Type = ProrationCredit
	res.NetAmount = net
	res.Applies = true
	res.Reason = "cancellation refund"
	res.Explanation = fmt.Sprintf("%d of %d days unused: credit %s %s",
		res.DaysRemaining, res.TotalDaysInPeriod,
		net.Abs().StringFixed(2), res.Currency)
	return res
}

// fillPeriodDays computes the day counts, clamping days used into the
// period. It reports false when the period length fails the sanity
// bound.
func fillPeriodDays(res *ProrationResult) bool {
	total := timeutil.DaysBetween(res.PeriodStart, res.PeriodEnd)
	if total < 1 || total > maxPeriodDays {
		res.Reason = "period length out of range"
		return false
	}

	used := timeutil.DaysBetween(res.PeriodStart, res.ChangeDate)
	if used < 0 {
		used = 0
	}
	if used > total {
		used = total
	}

	res.TotalDaysInPeriod = total
	res.DaysUsed = used
	res.DaysRemaining = total - used
	return true
}
