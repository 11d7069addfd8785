package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntervalUnit defines the time unit for billing intervals
type IntervalUnit string

const (
	IntervalUnitDay   IntervalUnit = "DAY"
	IntervalUnitWeek  IntervalUnit = "WEEK"
	IntervalUnitMonth IntervalUnit = "MONTH"
	IntervalUnitYear  IntervalUnit = "YEAR"
)

// ValidIntervalUnit reports whether u is a supported interval unit
func ValidIntervalUnit(u IntervalUnit) bool {
	switch u {
	case IntervalUnitDay, IntervalUnitWeek, IntervalUnitMonth, IntervalUnitYear:
		return true
	}
	return false
}

// SubscriptionPlan defines a recurring price.
// The interval is immutable once any subscription references the plan.
type SubscriptionPlan struct {
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Code          string          `json:"code"` // unique
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	IntervalUnit  IntervalUnit    `json:"interval_unit"`
	IntervalCount int             `json:"interval_count"` // >= 1
	TrialDays     int             `json:"trial_days"`     // >= 0
	Amount        decimal.Decimal `json:"amount"`
	SetupFee      decimal.Decimal `json:"setup_fee"`
	IsActive      bool            `json:"is_active"`
}

// HasTrial returns true when the plan grants trial days
func (p *SubscriptionPlan) HasTrial() bool {
	return p.TrialDays > 0
}

// HasSetupFee returns true when a one-time setup fee applies
func (p *SubscriptionPlan) HasSetupFee() bool {
	return p.SetupFee.IsPositive()
}
