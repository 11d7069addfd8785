package payment

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// normalizePAN strips whitespace so "4111 1111 1111 1111" and its
// compact form hash and validate identically.
func normalizePAN(number string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, number)
}

func lastFourOf(pan string) string {
	if len(pan) < 4 {
		return pan
	}
	return pan[len(pan)-4:]
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validationError(field, message string) error {
	return domain.NewDomainError(domain.ErrorCodeValidationFailed, message).
		WithDetail("field", field)
}

// validateCard checks raw card input before it is sent anywhere. The
// PAN is normalized in place.
func validateCard(card *domain.CardDetails, now time.Time) error {
	if card == nil {
		return domain.ErrPMRequired
	}

	card.Number = normalizePAN(card.Number)
	if !allDigits(card.Number) || len(card.Number) < 13 || len(card.Number) > 19 {
		return validationError("card_number", "card number must be 13 to 19 digits")
	}
	if !allDigits(card.CVV) || len(card.CVV) < 3 || len(card.CVV) > 4 {
		return validationError("cvv", "cvv must be 3 or 4 digits")
	}
	if card.ExpiryMonth < 1 || card.ExpiryMonth > 12 {
		return validationError("expiry_month", "expiry month must be between 1 and 12")
	}
	if card.ExpiryYear < now.Year() ||
		(card.ExpiryYear == now.Year() && card.ExpiryMonth < int(now.Month())) {
		return validationError("expiry", "card is expired")
	}
	if strings.TrimSpace(card.CardholderName) == "" {
		return validationError("cardholder_name", "cardholder name is required")
	}
	return nil
}

// validateCharge checks the parts of a charge that do not need database
// state. Funding checks against stored rows happen inside the
// transaction.
func validateCharge(req *chargeParams) error {
	if !req.amount.IsPositive() {
		return domain.ErrValidationAmountInvalid
	}
	if len(req.currency) != 3 {
		return validationError("currency", "currency must be a 3-letter ISO code")
	}
	if req.paymentMethodID != nil {
		if req.card != nil {
			return validationError("card", "provide either a stored payment method or card details, not both")
		}
		return nil
	}
	if err := validateCard(req.card, time.Now().UTC()); err != nil {
		return err
	}
	if req.customerID == nil && req.email == "" {
		return validationError("customer_email", "customer email is required for card payments")
	}
	return nil
}

// cardBrand classifies the PAN by issuer prefix for display metadata.
// Unrecognized ranges fall back to a generic label.
func cardBrand(pan string) string {
	switch {
	case strings.HasPrefix(pan, "4"):
		return "visa"
	case prefixInRange(pan, 2, 51, 55), prefixInRange(pan, 4, 2221, 2720):
		return "mastercard"
	case strings.HasPrefix(pan, "34"), strings.HasPrefix(pan, "37"):
		return "amex"
	case strings.HasPrefix(pan, "6011"), strings.HasPrefix(pan, "65"):
		return "discover"
	default:
		return "card"
	}
}

func prefixInRange(pan string, width, low, high int) bool {
	if len(pan) < width {
		return false
	}
	n, err := strconv.Atoi(pan[:width])
	if err != nil {
		return false
	}
	return n >= low && n <= high
}
