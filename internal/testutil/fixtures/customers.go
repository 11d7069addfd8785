package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// CustomerBuilder provides a fluent API for building test customers.
type CustomerBuilder struct {
	customer *domain.Customer
}

// NewCustomer creates a customer builder with sensible defaults: an
// active customer with a billing address and no processor profile yet.
func NewCustomer() *CustomerBuilder {
	now := time.Now().UTC()
	id := uuid.NewString()
	return &CustomerBuilder{
		customer: &domain.Customer{
			ID:        id,
			Email:     "customer-" + id[:8] + "@example.com",
			FirstName: "Test",
			LastName:  "Customer",
			BillingAddress: &domain.BillingAddress{
				Line1:      "1 Main St",
				City:       "Springfield",
				State:      "IL",
				PostalCode: "62701",
				Country:    "US",
			},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *CustomerBuilder) WithID(id string) *CustomerBuilder {
	b.customer.ID = id
	return b
}

func (b *CustomerBuilder) WithEmail(email string) *CustomerBuilder {
	b.customer.Email = email
	return b
}

func (b *CustomerBuilder) WithName(first, last string) *CustomerBuilder {
	b.customer.FirstName = first
	b.customer.LastName = last
	return b
}

func (b *CustomerBuilder) WithProcessorProfile(profileID string) *CustomerBuilder {
	b.customer.ProcessorProfileID = StringPtr(profileID)
	return b
}

func (b *CustomerBuilder) WithExternalReference(ref string) *CustomerBuilder {
	b.customer.ExternalReference = StringPtr(ref)
	return b
}

func (b *CustomerBuilder) Inactive() *CustomerBuilder {
	b.customer.IsActive = false
	return b
}

// Build returns the constructed customer.
func (b *CustomerBuilder) Build() *domain.Customer {
	customer := *b.customer
	if b.customer.BillingAddress != nil {
		addr := *b.customer.BillingAddress
		customer.BillingAddress = &addr
	}
	return &customer
}
