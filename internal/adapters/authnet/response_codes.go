package authnet

import (
	pkgerrors "github.com/recurpay/billing-gateway/pkg/errors"
)

// ReasonCodeInfo describes one processor reason code. Reason codes arrive
// in the errors block of a transaction response and are stable across API
// versions, unlike the free-text messages next to them.
type ReasonCodeInfo struct {
	Code               string
	Display            string
	Description        string
	IsRetriable        bool
	RequiresUserAction bool
	IsHeld             bool
	Category           pkgerrors.ErrorCategory
	UserMessage        string
}

var reasonCodeMap = map[string]ReasonCodeInfo{
	"2": {
		Code:               "2",
		Display:            "CARD_DECLINED",
		Description:        "This transaction has been declined",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryCardDeclined,
		UserMessage:        "Your card was declined. Please try a different payment method.",
	},
	"3": {
		Code:               "3",
		Display:            "CARD_DECLINED",
		Description:        "This transaction has been declined, contact issuer",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryCardDeclined,
		UserMessage:        "Your card was declined. Please contact your card issuer.",
	},
	"4": {
		Code:               "4",
		Display:            "CARD_DECLINED",
		Description:        "This transaction has been declined, card reported lost or stolen",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryCardDeclined,
		UserMessage:        "Your card was declined. Please use a different payment method.",
	},
	"5": {
		Code:        "5",
		Display:     "INVALID_AMOUNT",
		Description: "A valid amount is required",
		IsRetriable: false,
		Category:    pkgerrors.CategoryInvalidAmount,
		UserMessage: "The payment amount is invalid.",
	},
	"6": {
		Code:               "6",
		Display:            "INVALID_CARD_NUMBER",
		Description:        "The credit card number is invalid",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryValidation,
		UserMessage:        "The card number is invalid. Please check and try again.",
	},
	"7": {
		Code:               "7",
		Display:            "INVALID_EXPIRY",
		Description:        "The credit card expiration date is invalid",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryValidation,
		UserMessage:        "The card expiration date is invalid. Please check and try again.",
	},
	"8": {
		Code:               "8",
		Display:            "CARD_EXPIRED",
		Description:        "The credit card has expired",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryCardDeclined,
		UserMessage:        "Your card has expired. Please use a different payment method.",
	},
	"11": {
		Code:        "11",
		Display:     "DUPLICATE_TRANSACTION",
		Description: "A duplicate transaction has been submitted",
		IsRetriable: false,
		Category:    pkgerrors.CategoryDuplicateTransaction,
		UserMessage: "This payment was already submitted.",
	},
	"13": {
		Code:        "13",
		Display:     "INVALID_MERCHANT",
		Description: "The merchant login ID or password is invalid or the account is inactive",
		IsRetriable: false,
		Category:    pkgerrors.CategoryInvalidMerchant,
		UserMessage: "Payment processing is temporarily unavailable.",
	},
	"16": {
		Code:        "16",
		Display:     "TRANSACTION_NOT_FOUND",
		Description: "The transaction cannot be found",
		IsRetriable: false,
		Category:    pkgerrors.CategoryNotFound,
		UserMessage: "The referenced transaction could not be found.",
	},
	"17": {
		Code:               "17",
		Display:            "CARD_TYPE_NOT_ACCEPTED",
		Description:        "The merchant does not accept this type of credit card",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryValidation,
		UserMessage:        "This card type is not accepted. Please use a different card.",
	},
	"19": {
		Code:        "19",
		Display:     "PROCESSING_ERROR",
		Description: "An error occurred during processing, please try again",
		IsRetriable: true,
		Category:    pkgerrors.CategoryProcessingError,
		UserMessage: "A temporary error occurred. Please try again.",
	},
	"20": {
		Code:        "20",
		Display:     "PROCESSING_ERROR",
		Description: "An error occurred during processing, please try again",
		IsRetriable: true,
		Category:    pkgerrors.CategoryProcessingError,
		UserMessage: "A temporary error occurred. Please try again.",
	},
	"27": {
		Code:               "27",
		Display:            "AVS_MISMATCH",
		Description:        "The transaction resulted in an AVS mismatch",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryAVSMismatch,
		UserMessage:        "The billing address does not match the card. Please verify and try again.",
	},
	"28": {
		Code:               "28",
		Display:            "CARD_TYPE_NOT_ACCEPTED",
		Description:        "The merchant does not accept this type of credit card",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryValidation,
		UserMessage:        "This card type is not accepted. Please use a different card.",
	},
	"33": {
		Code:        "33",
		Display:     "MISSING_FIELD",
		Description: "A required field is missing from the request",
		IsRetriable: false,
		Category:    pkgerrors.CategoryValidation,
		UserMessage: "The payment request is incomplete.",
	},
	"37": {
		Code:               "37",
		Display:            "INVALID_CARD_NUMBER",
		Description:        "The credit card number is invalid",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryValidation,
		UserMessage:        "The card number is invalid. Please check and try again.",
	},
	"44": {
		Code:               "44",
		Display:            "CVV_MISMATCH",
		Description:        "The card code is invalid",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryCVVMismatch,
		UserMessage:        "The card security code is incorrect. Please check and try again.",
	},
	"45": {
		Code:               "45",
		Display:            "AVS_MISMATCH",
		Description:        "The card was declined by address and card code verification",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryAVSMismatch,
		UserMessage:        "The billing details do not match the card. Please verify and try again.",
	},
	"78": {
		Code:               "78",
		Display:            "CVV_MISMATCH",
		Description:        "The card code is invalid",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryCVVMismatch,
		UserMessage:        "The card security code is invalid. Please check and try again.",
	},
	"92": {
		Code:        "92",
		Display:     "INVALID_MERCHANT",
		Description: "The gateway does not support the requested integration for this merchant",
		IsRetriable: false,
		Category:    pkgerrors.CategoryInvalidMerchant,
		UserMessage: "Payment processing is temporarily unavailable.",
	},
	"141": {
		Code:        "141",
		Display:     "FRAUD_DECLINE",
		Description: "This transaction has been declined by the fraud screening service",
		IsRetriable: false,
		Category:    pkgerrors.CategoryRiskManagement,
		UserMessage: "This payment could not be processed.",
	},
	"165": {
		Code:        "165",
		Display:     "FRAUD_DECLINE",
		Description: "This transaction has been declined by the card code filter",
		IsRetriable: false,
		Category:    pkgerrors.CategoryRiskManagement,
		UserMessage: "This payment could not be processed.",
	},
	"200": {
		Code:               "200",
		Display:            "INVALID_CARD_NUMBER",
		Description:        "The credit card number is invalid (processor response)",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryValidation,
		UserMessage:        "The card number is invalid. Please check and try again.",
	},
	"201": {
		Code:               "201",
		Display:            "INVALID_EXPIRY",
		Description:        "The expiration date is invalid (processor response)",
		IsRetriable:        false,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryValidation,
		UserMessage:        "The card expiration date is invalid. Please check and try again.",
	},
	"250": {
		Code:        "250",
		Display:     "FRAUD_DECLINE",
		Description: "This transaction was submitted from a blocked IP address",
		IsRetriable: false,
		Category:    pkgerrors.CategoryRiskManagement,
		UserMessage: "This payment could not be processed.",
	},
	"251": {
		Code:        "251",
		Display:     "FRAUD_DECLINE",
		Description: "This transaction was declined by the fraud filter",
		IsRetriable: false,
		Category:    pkgerrors.CategoryRiskManagement,
		UserMessage: "This payment could not be processed.",
	},
	"252": {
		Code:        "252",
		Display:     "HELD_FOR_REVIEW",
		Description: "The transaction was accepted but is being held for merchant review",
		IsRetriable: false,
		IsHeld:      true,
		Category:    pkgerrors.CategoryRiskManagement,
		UserMessage: "Your payment is under review and will be confirmed shortly.",
	},
}

// GetReasonCodeInfo returns the mapping for a processor reason code.
// Unknown codes fall back to a retriable generic failure so that new codes
// the processor introduces degrade safely instead of terminally failing
// payments that might have succeeded on retry.
func GetReasonCodeInfo(code string) ReasonCodeInfo {
	if info, exists := reasonCodeMap[code]; exists {
		return info
	}
	return ReasonCodeInfo{
		Code:        code,
		Display:     "PAYMENT_FAILED",
		Description: "Unrecognized processor reason code",
		IsRetriable: true,
		Category:    pkgerrors.CategoryProcessingError,
		UserMessage: "The payment could not be completed. Please try again.",
	}
}

// ToPaymentError converts the reason code mapping into a PaymentError,
// preserving the processor's message for diagnostics.
func (r ReasonCodeInfo) ToPaymentError(gatewayMessage string) *pkgerrors.PaymentError {
	pe := pkgerrors.NewPaymentError(r.Display, r.UserMessage, r.Category, r.IsRetriable)
	pe.GatewayMessage = gatewayMessage
	if r.RequiresUserAction {
		pe.SuggestedAction = "verify_payment_details"
	} else if r.IsRetriable {
		pe.SuggestedAction = "retry_later"
	}
	return pe
}
