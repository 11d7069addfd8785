package domain

import (
	"time"
)

// BillingAddress is the address attached to a customer or a single payment
type BillingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Customer represents a paying customer.
// A customer is created on first payment for a given email.
// ProcessorProfileID is set lazily after successful profile creation at
// the processor and is immutable afterwards.
type Customer struct {
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ProcessorProfileID *string         `json:"processor_profile_id"`
	ExternalReference  *string         `json:"external_reference"`
	Phone              *string         `json:"phone"`
	BillingAddress     *BillingAddress `json:"billing_address"`
	ID                 string          `json:"id"`
	Email              string          `json:"email"`
	FirstName          string          `json:"first_name"`
	LastName           string          `json:"last_name"`
	IsActive           bool            `json:"is_active"`
}

// FullName returns the display name for the customer
func (c *Customer) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// HasProcessorProfile returns true once a processor profile has been created
func (c *Customer) HasProcessorProfile() bool {
	return c.ProcessorProfileID != nil && *c.ProcessorProfileID != ""
}

// CardDetails carries raw card input for a single request.
// It is never persisted; only the processor token is stored.
type CardDetails struct {
	Number         string `json:"card_number"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
}

// LastFour returns the last four digits of the card number
func (cd *CardDetails) LastFour() string {
	if len(cd.Number) < 4 {
		return cd.Number
	}
	return cd.Number[len(cd.Number)-4:]
}
