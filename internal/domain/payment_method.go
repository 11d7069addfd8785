package domain

import (
	"time"
)

// PaymentMethod represents a saved payment method (tokenized)
type PaymentMethod struct {
	// Identity
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`

	// Payment type
	Kind PaymentMethodKind `json:"kind"` // CARD or ACH

	// Tokenization. Only the processor token is stored, never the PAN.
	Token string `json:"token"`

	// Display metadata
	Brand    string `json:"brand"` // "visa", "mastercard", "amex", "discover"
	LastFour string `json:"last_four"`

	// Card expiry (optional for ACH)
	ExpiryMonth *int `json:"expiry_month"`
	ExpiryYear  *int `json:"expiry_year"`

	// Status
	IsDefault bool `json:"is_default"`
	IsActive  bool `json:"is_active"`

	// Timestamps
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// IsCard returns true if this is a card payment method
func (pm *PaymentMethod) IsCard() bool {
	return pm.Kind == PaymentMethodCard
}

// IsExpired returns true if the card is past its expiry month
func (pm *PaymentMethod) IsExpired() bool {
	if !pm.IsCard() || pm.ExpiryMonth == nil || pm.ExpiryYear == nil {
		return false
	}

	now := time.Now().UTC()
	if *pm.ExpiryYear < now.Year() {
		return true
	}
	if *pm.ExpiryYear == now.Year() && *pm.ExpiryMonth < int(now.Month()) {
		return true
	}

	return false
}

// CanBeUsed returns true if the payment method can be charged
func (pm *PaymentMethod) CanBeUsed() bool {
	if !pm.IsActive {
		return false
	}
	if pm.IsCard() && pm.IsExpired() {
		return false
	}
	return true
}
