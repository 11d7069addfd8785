package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryValidation           ErrorCategory = "validation"
	CategoryNotFound             ErrorCategory = "not_found"
	CategoryIdempotencyConflict  ErrorCategory = "idempotency_conflict"
	CategoryCardDeclined         ErrorCategory = "card_declined"
	CategoryInsufficientFunds    ErrorCategory = "insufficient_funds"
	CategoryAVSMismatch          ErrorCategory = "avs_mismatch"
	CategoryCVVMismatch          ErrorCategory = "cvv_mismatch"
	CategoryDuplicateTransaction ErrorCategory = "duplicate_transaction"
	CategoryInvalidMerchant      ErrorCategory = "invalid_merchant"
	CategoryInvalidAmount        ErrorCategory = "invalid_amount"
	CategoryProcessingError      ErrorCategory = "processing_error"
	CategoryVelocityLimit        ErrorCategory = "velocity_limit"
	CategoryRiskManagement       ErrorCategory = "risk_management"
	CategoryNetworkError         ErrorCategory = "network_error"
	CategoryTimeoutError         ErrorCategory = "timeout_error"
	CategorySignatureError       ErrorCategory = "signature_error"
	CategoryRateLimited          ErrorCategory = "rate_limited"
)

// Retryable reports whether operations failing with this category may be
// retried at all. Card declines are retryable only after user action;
// callers distinguish that via the retry policy.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryCardDeclined, CategoryInsufficientFunds, CategoryAVSMismatch,
		CategoryCVVMismatch, CategoryProcessingError, CategoryVelocityLimit,
		CategoryNetworkError, CategoryTimeoutError, CategoryRateLimited:
		return true
	}
	return false
}

// RetryPolicy is the classifier's advice for automated retries of a
// failed processor or transport call.
type RetryPolicy struct {
	RetryAfter time.Duration
	MaxRetries int
}

// RetryPolicyFor returns the retry policy for a category.
func RetryPolicyFor(c ErrorCategory) RetryPolicy {
	switch c {
	case CategoryNetworkError, CategoryTimeoutError:
		return RetryPolicy{RetryAfter: 30 * time.Second, MaxRetries: 3}
	case CategoryProcessingError:
		return RetryPolicy{RetryAfter: 60 * time.Second, MaxRetries: 2}
	case CategoryVelocityLimit:
		return RetryPolicy{RetryAfter: 300 * time.Second, MaxRetries: 1}
	default:
		return RetryPolicy{RetryAfter: 10 * time.Second, MaxRetries: 1}
	}
}

// PaymentError represents a payment processing error with detailed context
type PaymentError struct {
	Code            string
	Message         string
	GatewayMessage  string
	SuggestedAction string
	IsRetriable     bool
	Category        ErrorCategory
	Details         map[string]interface{}
}

func (e *PaymentError) Error() string {
	if e.GatewayMessage != "" {
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Code, e.Message, e.GatewayMessage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, category ErrorCategory, retriable bool) *PaymentError {
	return &PaymentError{
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
		Details:     make(map[string]interface{}),
	}
}

// RetryPolicy returns the automated-retry advice for this error.
func (e *PaymentError) RetryPolicy() RetryPolicy {
	return RetryPolicyFor(e.Category)
}

// AsPaymentError unwraps err into a *PaymentError if possible.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetriable reports whether err is a retriable payment error.
// Non-payment errors are treated as transient transport failures.
func IsRetriable(err error) bool {
	if pe, ok := AsPaymentError(err); ok {
		return pe.IsRetriable
	}
	return err != nil
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
