package authnet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/recurpay/billing-gateway/pkg/errors"
)

func TestGetReasonCodeInfo_KnownCodes(t *testing.T) {
	tests := []struct {
		code      string
		display   string
		category  pkgerrors.ErrorCategory
		retriable bool
	}{
		{"2", "CARD_DECLINED", pkgerrors.CategoryCardDeclined, false},
		{"5", "INVALID_AMOUNT", pkgerrors.CategoryInvalidAmount, false},
		{"6", "INVALID_CARD_NUMBER", pkgerrors.CategoryValidation, false},
		{"8", "CARD_EXPIRED", pkgerrors.CategoryCardDeclined, false},
		{"11", "DUPLICATE_TRANSACTION", pkgerrors.CategoryDuplicateTransaction, false},
		{"13", "INVALID_MERCHANT", pkgerrors.CategoryInvalidMerchant, false},
		{"16", "TRANSACTION_NOT_FOUND", pkgerrors.CategoryNotFound, false},
		{"19", "PROCESSING_ERROR", pkgerrors.CategoryProcessingError, true},
		{"27", "AVS_MISMATCH", pkgerrors.CategoryAVSMismatch, false},
		{"44", "CVV_MISMATCH", pkgerrors.CategoryCVVMismatch, false},
		{"45", "AVS_MISMATCH", pkgerrors.CategoryAVSMismatch, false},
		{"141", "FRAUD_DECLINE", pkgerrors.CategoryRiskManagement, false},
		{"250", "FRAUD_DECLINE", pkgerrors.CategoryRiskManagement, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			info := GetReasonCodeInfo(tt.code)
			assert.Equal(t, tt.display, info.Display)
			assert.Equal(t, tt.category, info.Category)
			assert.Equal(t, tt.retriable, info.IsRetriable)
		})
	}
}

func TestGetReasonCodeInfo_HeldForReview(t *testing.T) {
	info := GetReasonCodeInfo("252")
	assert.True(t, info.IsHeld)
	assert.False(t, info.IsRetriable)
}

func TestGetReasonCodeInfo_UnknownCodeFallsBackRetriable(t *testing.T) {
	info := GetReasonCodeInfo("9999")
	assert.Equal(t, "9999", info.Code)
	assert.Equal(t, "PAYMENT_FAILED", info.Display)
	assert.Equal(t, pkgerrors.CategoryProcessingError, info.Category)
	assert.True(t, info.IsRetriable)
}

func TestReasonCodeInfo_ToPaymentError(t *testing.T) {
	pe := GetReasonCodeInfo("27").ToPaymentError("The transaction resulted in an AVS mismatch.")

	assert.Equal(t, "AVS_MISMATCH", pe.Code)
	assert.Equal(t, pkgerrors.CategoryAVSMismatch, pe.Category)
	assert.Equal(t, "The transaction resulted in an AVS mismatch.", pe.GatewayMessage)
	assert.Equal(t, "verify_payment_details", pe.SuggestedAction)
	assert.False(t, pe.IsRetriable)

	retry := GetReasonCodeInfo("19").ToPaymentError("")
	assert.Equal(t, "retry_later", retry.SuggestedAction)
	assert.True(t, retry.IsRetriable)
}
