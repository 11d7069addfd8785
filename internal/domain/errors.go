package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Transaction Errors (TXN_*)
	ErrorCodeTxnNotFound         ErrorCode = "TXN_NOT_FOUND"
	ErrorCodeTxnInvalidState     ErrorCode = "TXN_INVALID_STATE"
	ErrorCodeTxnAlreadyProcessed ErrorCode = "TXN_ALREADY_PROCESSED"
	ErrorCodeTxnProcessingFailed ErrorCode = "TXN_PROCESSING_FAILED"

	// Customer Errors (CUSTOMER_*)
	ErrorCodeCustomerNotFound ErrorCode = "CUSTOMER_NOT_FOUND"
	ErrorCodeCustomerInactive ErrorCode = "CUSTOMER_INACTIVE"

	// Order Errors (ORDER_*)
	ErrorCodeOrderNotFound ErrorCode = "ORDER_NOT_FOUND"

	// Payment Method Errors (PM_*)
	ErrorCodePMNotFound ErrorCode = "PM_NOT_FOUND"
	ErrorCodePMRequired ErrorCode = "PM_REQUIRED"
	ErrorCodePMInvalid  ErrorCode = "PM_INVALID"
	ErrorCodePMExpired  ErrorCode = "PM_EXPIRED"

	// Subscription Errors (SUB_*)
	ErrorCodeSubNotFound      ErrorCode = "SUB_NOT_FOUND"
	ErrorCodeSubInvalidState  ErrorCode = "SUB_INVALID_STATE"
	ErrorCodeSubNotActive     ErrorCode = "SUB_NOT_ACTIVE"
	ErrorCodeSubCancelled     ErrorCode = "SUB_CANCELLED"
	ErrorCodePlanNotFound     ErrorCode = "PLAN_NOT_FOUND"
	ErrorCodePlanInactive     ErrorCode = "PLAN_INACTIVE"
	ErrorCodePlanCodeTaken    ErrorCode = "PLAN_CODE_TAKEN"
	ErrorCodeInvoiceNotFound  ErrorCode = "INVOICE_NOT_FOUND"
	ErrorCodeInvoiceNotDue    ErrorCode = "INVOICE_NOT_DUE"
	ErrorCodeInvoiceExhausted ErrorCode = "INVOICE_RETRIES_EXHAUSTED"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError    ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout  ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayDeclined ErrorCode = "GATEWAY_DECLINED"

	// Idempotency Errors (IDEMPOTENCY_*)
	ErrorCodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"

	// Webhook Errors (WEBHOOK_*)
	ErrorCodeWebhookSignature ErrorCode = "WEBHOOK_SIGNATURE_ERROR"
	ErrorCodeWebhookDuplicate ErrorCode = "WEBHOOK_DUPLICATE_EVENT"
	ErrorCodeWebhookNotFound  ErrorCode = "WEBHOOK_NOT_FOUND"

	// Rate Limiting (RATE_*)
	ErrorCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Authentication Errors (AUTH_*)
	ErrorCodeAuthMissing      ErrorCode = "AUTH_MISSING"
	ErrorCodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	ErrorCodeAuthAccessDenied ErrorCode = "AUTH_ACCESS_DENIED"
	ErrorCodeAPIKeyNotFound   ErrorCode = "AUTH_API_KEY_NOT_FOUND"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeTxnNotFound ||
		code == ErrorCodeCustomerNotFound ||
		code == ErrorCodeOrderNotFound ||
		code == ErrorCodePMNotFound ||
		code == ErrorCodeSubNotFound ||
		code == ErrorCodePlanNotFound ||
		code == ErrorCodeInvoiceNotFound ||
		code == ErrorCodeWebhookNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayDeclined
}

// IsAuthError checks if an error is authentication/authorization related
func IsAuthError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeAuthMissing ||
		code == ErrorCodeAuthInvalid ||
		code == ErrorCodeAuthAccessDenied
}

// Structured error instances
var (
	ErrTxnNotFound         = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")
	ErrTxnInvalidState     = NewDomainError(ErrorCodeTxnInvalidState, "transaction is in invalid state for this operation")
	ErrTxnAlreadyProcessed = NewDomainError(ErrorCodeTxnAlreadyProcessed, "transaction already processed")

	ErrCustomerNotFound = NewDomainError(ErrorCodeCustomerNotFound, "customer not found")
	ErrCustomerInactive = NewDomainError(ErrorCodeCustomerInactive, "customer is not active")

	ErrOrderNotFound = NewDomainError(ErrorCodeOrderNotFound, "order not found")

	ErrPMNotFound = NewDomainError(ErrorCodePMNotFound, "payment method not found")
	ErrPMRequired = NewDomainError(ErrorCodePMRequired, "payment method required")
	ErrPMInvalid  = NewDomainError(ErrorCodePMInvalid, "invalid payment method")
	ErrPMExpired  = NewDomainError(ErrorCodePMExpired, "payment method has expired")

	ErrSubNotFound     = NewDomainError(ErrorCodeSubNotFound, "subscription not found")
	ErrSubInvalidState = NewDomainError(ErrorCodeSubInvalidState, "subscription is in invalid state for this operation")
	ErrSubNotActive    = NewDomainError(ErrorCodeSubNotActive, "subscription is not active")
	ErrSubCancelled    = NewDomainError(ErrorCodeSubCancelled, "subscription is cancelled")

	ErrPlanNotFound  = NewDomainError(ErrorCodePlanNotFound, "plan not found")
	ErrPlanInactive  = NewDomainError(ErrorCodePlanInactive, "plan is not active")
	ErrPlanCodeTaken = NewDomainError(ErrorCodePlanCodeTaken, "plan code already exists")

	ErrInvoiceNotFound  = NewDomainError(ErrorCodeInvoiceNotFound, "invoice not found")
	ErrInvoiceExhausted = NewDomainError(ErrorCodeInvoiceExhausted, "invoice payment retries exhausted")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrGatewayError    = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")
	ErrGatewayDeclined = NewDomainError(ErrorCodeGatewayDeclined, "payment declined by gateway")

	ErrIdempotencyConflict = NewDomainError(ErrorCodeIdempotencyConflict, "idempotency key conflict")

	ErrWebhookSignature = NewDomainError(ErrorCodeWebhookSignature, "webhook signature verification failed")
	ErrWebhookDuplicate = NewDomainError(ErrorCodeWebhookDuplicate, "duplicate webhook event")
	ErrWebhookNotFound  = NewDomainError(ErrorCodeWebhookNotFound, "webhook not found")

	ErrRateLimited = NewDomainError(ErrorCodeRateLimited, "rate limit exceeded")

	ErrAuthMissing      = NewDomainError(ErrorCodeAuthMissing, "authentication required")
	ErrAuthInvalid      = NewDomainError(ErrorCodeAuthInvalid, "invalid authentication")
	ErrAuthAccessDenied = NewDomainError(ErrorCodeAuthAccessDenied, "access denied")
	ErrAPIKeyNotFound   = NewDomainError(ErrorCodeAPIKeyNotFound, "api key not found")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
