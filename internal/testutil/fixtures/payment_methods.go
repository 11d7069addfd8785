package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// PaymentMethodBuilder provides a fluent API for building test payment methods.
type PaymentMethodBuilder struct {
	pm *domain.PaymentMethod
}

// NewPaymentMethod creates a payment method builder with sensible defaults:
// an active, non-default Visa card expiring well in the future.
func NewPaymentMethod() *PaymentMethodBuilder {
	now := time.Now().UTC()
	return &PaymentMethodBuilder{
		pm: &domain.PaymentMethod{
			ID:          uuid.NewString(),
			CustomerID:  uuid.NewString(),
			Kind:        domain.PaymentMethodCard,
			Token:       "tok_" + uuid.NewString()[:8],
			Brand:       "visa",
			LastFour:    "4242",
			ExpiryMonth: IntPtr(12),
			ExpiryYear:  IntPtr(now.Year() + 3),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

func (b *PaymentMethodBuilder) WithID(id string) *PaymentMethodBuilder {
	b.pm.ID = id
	return b
}

func (b *PaymentMethodBuilder) WithCustomerID(customerID string) *PaymentMethodBuilder {
	b.pm.CustomerID = customerID
	return b
}

func (b *PaymentMethodBuilder) WithToken(token string) *PaymentMethodBuilder {
	b.pm.Token = token
	return b
}

func (b *PaymentMethodBuilder) WithBrand(brand, lastFour string) *PaymentMethodBuilder {
	b.pm.Brand = brand
	b.pm.LastFour = lastFour
	return b
}

func (b *PaymentMethodBuilder) WithExpiry(month, year int) *PaymentMethodBuilder {
	b.pm.ExpiryMonth = IntPtr(month)
	b.pm.ExpiryYear = IntPtr(year)
	return b
}

// Expired dates the card to the month before now.
func (b *PaymentMethodBuilder) Expired() *PaymentMethodBuilder {
	prev := time.Now().UTC().AddDate(0, -1, 0)
	return b.WithExpiry(int(prev.Month()), prev.Year())
}

func (b *PaymentMethodBuilder) ACH() *PaymentMethodBuilder {
	b.pm.Kind = domain.PaymentMethodACH
	b.pm.Brand = ""
	b.pm.ExpiryMonth = nil
	b.pm.ExpiryYear = nil
	return b
}

func (b *PaymentMethodBuilder) Default() *PaymentMethodBuilder {
	b.pm.IsDefault = true
	return b
}

func (b *PaymentMethodBuilder) Inactive() *PaymentMethodBuilder {
	b.pm.IsActive = false
	return b
}

// Build returns the constructed payment method.
func (b *PaymentMethodBuilder) Build() *domain.PaymentMethod {
	pm := *b.pm
	return &pm
}
