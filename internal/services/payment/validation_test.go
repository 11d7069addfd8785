package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/domain"
)

func TestNormalizePAN(t *testing.T) {
	assert.Equal(t, "4111111111111111", normalizePAN("4111 1111 1111 1111"))
	assert.Equal(t, "4111111111111111", normalizePAN("4111111111111111"))
	assert.Equal(t, "4111111111111111", normalizePAN("\t4111 1111 1111 1111\n"))
	assert.Equal(t, "", normalizePAN("   "))
}

func TestValidateCard(t *testing.T) {
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	valid := func() *domain.CardDetails {
		return &domain.CardDetails{
			Number:         "4111111111111111",
			CVV:            "123",
			CardholderName: "Ada Lovelace",
			ExpiryMonth:    12,
			ExpiryYear:     2027,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *domain.CardDetails)
		wantErr bool
	}{
		{"valid card", func(c *domain.CardDetails) {}, false},
		{"valid with spaces", func(c *domain.CardDetails) { c.Number = "4111 1111 1111 1111" }, false},
		{"valid four digit cvv", func(c *domain.CardDetails) { c.CVV = "1234" }, false},
		{"valid expires this month", func(c *domain.CardDetails) { c.ExpiryMonth = 8; c.ExpiryYear = 2026 }, false},
		{"valid 13 digit pan", func(c *domain.CardDetails) { c.Number = "4111111111111" }, false},
		{"valid 19 digit pan", func(c *domain.CardDetails) { c.Number = "4111111111111111119" }, false},
		{"pan too short", func(c *domain.CardDetails) { c.Number = "411111111111" }, true},
		{"pan too long", func(c *domain.CardDetails) { c.Number = "41111111111111111112" }, true},
		{"pan with letters", func(c *domain.CardDetails) { c.Number = "4111x11111111111" }, true},
		{"cvv too short", func(c *domain.CardDetails) { c.CVV = "12" }, true},
		{"cvv too long", func(c *domain.CardDetails) { c.CVV = "12345" }, true},
		{"cvv with letters", func(c *domain.CardDetails) { c.CVV = "12a" }, true},
		{"month zero", func(c *domain.CardDetails) { c.ExpiryMonth = 0 }, true},
		{"month thirteen", func(c *domain.CardDetails) { c.ExpiryMonth = 13 }, true},
		{"expired last year", func(c *domain.CardDetails) { c.ExpiryYear = 2025 }, true},
		{"expired last month", func(c *domain.CardDetails) { c.ExpiryMonth = 7; c.ExpiryYear = 2026 }, true},
		{"blank cardholder", func(c *domain.CardDetails) { c.CardholderName = "  " }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := valid()
			tt.mutate(card)
			err := validateCard(card, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.ErrorCodeValidationFailed, domain.GetErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCard_NilCardRequired(t *testing.T) {
	err := validateCard(nil, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePMRequired))
}

func TestValidateCharge_RejectsBothFundingSources(t *testing.T) {
	pmID := "pm-1"
	req := &chargeParams{
		amount:          decimal.NewFromFloat(10),
		currency:        "USD",
		paymentMethodID: &pmID,
		card:            &domain.CardDetails{Number: "4111111111111111"},
	}
	err := validateCharge(req)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeValidationFailed, domain.GetErrorCode(err))
}

func TestValidateCharge_CardPathNeedsEmailOrCustomer(t *testing.T) {
	req := &chargeParams{
		amount:   decimal.NewFromFloat(10),
		currency: "USD",
		card: &domain.CardDetails{
			Number:         "4111111111111111",
			CVV:            "123",
			CardholderName: "Ada Lovelace",
			ExpiryMonth:    12,
			ExpiryYear:     time.Now().UTC().Year() + 1,
		},
	}
	err := validateCharge(req)
	require.Error(t, err)

	req.email = "ada@example.com"
	assert.NoError(t, validateCharge(req))
}

func TestCardBrand(t *testing.T) {
	tests := []struct {
		pan   string
		brand string
	}{
		{"4111111111111111", "visa"},
		{"4000000000000002", "visa"},
		{"5111111111111118", "mastercard"},
		{"5555555555554444", "mastercard"},
		{"2221000000000009", "mastercard"},
		{"2720990000000007", "mastercard"},
		{"2130000000000001", "card"}, // outside the 2221-2720 range
		{"340000000000009", "amex"},
		{"370000000000002", "amex"},
		{"6011000000000004", "discover"},
		{"6500000000000002", "discover"},
		{"9999999999999999", "card"},
	}

	for _, tt := range tests {
		t.Run(tt.pan, func(t *testing.T) {
			assert.Equal(t, tt.brand, cardBrand(tt.pan))
		})
	}
}

func TestChargeHashIgnoresPANFormatting(t *testing.T) {
	base := chargeParams{
		amount:   decimal.NewFromFloat(49.99),
		currency: "USD",
		email:    "ada@example.com",
		card: &domain.CardDetails{
			Number:      "4111111111111111",
			ExpiryMonth: 12,
			ExpiryYear:  2027,
		},
	}
	spaced := base
	spaced.card = &domain.CardDetails{
		Number:      "4111 1111 1111 1111",
		ExpiryMonth: 12,
		ExpiryYear:  2027,
	}

	assert.Equal(t,
		chargeHash(domain.TransactionTypePurchase, base),
		chargeHash(domain.TransactionTypePurchase, spaced))

	other := base
	other.amount = decimal.NewFromFloat(50.00)
	assert.NotEqual(t,
		chargeHash(domain.TransactionTypePurchase, base),
		chargeHash(domain.TransactionTypePurchase, other))
}

func TestTransitionEnforcesLifecycle(t *testing.T) {
	txn := &domain.Transaction{Status: domain.PaymentStatusPending}
	require.NoError(t, transition(txn, domain.PaymentStatusAuthorized))
	assert.Equal(t, domain.PaymentStatusAuthorized, txn.Status)

	err := transition(txn, domain.PaymentStatusRefunded)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnInvalidState))
	assert.Equal(t, domain.PaymentStatusAuthorized, txn.Status, "failed transition leaves status unchanged")
}
