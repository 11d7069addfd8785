package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestDomainErrors_Codes verifies every structured error carries its code
// in the rendered message.
func TestDomainErrors_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		code ErrorCode
	}{
		{"txn_not_found", ErrTxnNotFound, ErrorCodeTxnNotFound},
		{"txn_invalid_state", ErrTxnInvalidState, ErrorCodeTxnInvalidState},
		{"customer_not_found", ErrCustomerNotFound, ErrorCodeCustomerNotFound},
		{"pm_not_found", ErrPMNotFound, ErrorCodePMNotFound},
		{"pm_expired", ErrPMExpired, ErrorCodePMExpired},
		{"sub_not_found", ErrSubNotFound, ErrorCodeSubNotFound},
		{"sub_not_active", ErrSubNotActive, ErrorCodeSubNotActive},
		{"plan_not_found", ErrPlanNotFound, ErrorCodePlanNotFound},
		{"plan_inactive", ErrPlanInactive, ErrorCodePlanInactive},
		{"invoice_not_found", ErrInvoiceNotFound, ErrorCodeInvoiceNotFound},
		{"validation_failed", ErrValidationFailed, ErrorCodeValidationFailed},
		{"validation_amount", ErrValidationAmountInvalid, ErrorCodeValidationAmountInvalid},
		{"gateway_error", ErrGatewayError, ErrorCodeGatewayError},
		{"gateway_timeout", ErrGatewayTimedOut, ErrorCodeGatewayTimeout},
		{"gateway_declined", ErrGatewayDeclined, ErrorCodeGatewayDeclined},
		{"idempotency_conflict", ErrIdempotencyConflict, ErrorCodeIdempotencyConflict},
		{"webhook_signature", ErrWebhookSignature, ErrorCodeWebhookSignature},
		{"webhook_duplicate", ErrWebhookDuplicate, ErrorCodeWebhookDuplicate},
		{"rate_limited", ErrRateLimited, ErrorCodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatal("expected error to be defined, got nil")
			}
			if tt.err.Code != tt.code {
				t.Errorf("code = %q, want %q", tt.err.Code, tt.code)
			}
			if !strings.Contains(tt.err.Error(), string(tt.code)) {
				t.Errorf("error message %q does not contain code %q", tt.err.Error(), tt.code)
			}
		})
	}
}

func TestDomainErrors_Wrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	wrapped := WrapError(ErrorCodeDatabaseError, "query customers", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var de *DomainError
	if !errors.As(wrapped, &de) {
		t.Fatal("errors.As should extract *DomainError")
	}
	if de.Code != ErrorCodeDatabaseError {
		t.Errorf("code = %q, want %q", de.Code, ErrorCodeDatabaseError)
	}

	if !strings.Contains(wrapped.Error(), "connection refused") {
		t.Errorf("wrapped message %q should contain the cause", wrapped.Error())
	}
}

func TestDomainErrors_WrappedThroughFmt(t *testing.T) {
	inner := ErrTxnNotFound
	outer := fmt.Errorf("loading parent: %w", inner)

	if !IsDomainError(outer, ErrorCodeTxnNotFound) {
		t.Error("IsDomainError should see through fmt.Errorf wrapping")
	}
	if GetErrorCode(outer) != ErrorCodeTxnNotFound {
		t.Errorf("GetErrorCode = %q, want %q", GetErrorCode(outer), ErrorCodeTxnNotFound)
	}
}

func TestDomainErrors_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorCodeTxnInvalidState, "cannot capture").
		WithDetail("transaction_id", "txn-123").
		WithDetail("status", "SETTLED")

	if err.Details["transaction_id"] != "txn-123" {
		t.Errorf("detail transaction_id = %v", err.Details["transaction_id"])
	}
	if err.Details["status"] != "SETTLED" {
		t.Errorf("detail status = %v", err.Details["status"])
	}
}

func TestDomainErrors_Classifiers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   bool
		validation bool
		gateway    bool
	}{
		{"txn_not_found", ErrTxnNotFound, true, false, false},
		{"customer_not_found", ErrCustomerNotFound, true, false, false},
		{"sub_not_found", ErrSubNotFound, true, false, false},
		{"plan_not_found", ErrPlanNotFound, true, false, false},
		{"invoice_not_found", ErrInvoiceNotFound, true, false, false},
		{"validation_failed", ErrValidationFailed, false, true, false},
		{"validation_amount", ErrValidationAmountInvalid, false, true, false},
		{"gateway_error", ErrGatewayError, false, false, true},
		{"gateway_declined", ErrGatewayDeclined, false, false, true},
		{"plain_error", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.notFound {
				t.Errorf("IsNotFoundError = %v, want %v", got, tt.notFound)
			}
			if got := IsValidationError(tt.err); got != tt.validation {
				t.Errorf("IsValidationError = %v, want %v", got, tt.validation)
			}
			if got := IsGatewayError(tt.err); got != tt.gateway {
				t.Errorf("IsGatewayError = %v, want %v", got, tt.gateway)
			}
		})
	}
}

func TestDomainErrors_UniqueCodes(t *testing.T) {
	all := []*DomainError{
		ErrTxnNotFound, ErrTxnInvalidState, ErrTxnAlreadyProcessed,
		ErrCustomerNotFound, ErrCustomerInactive,
		ErrPMNotFound, ErrPMRequired, ErrPMInvalid, ErrPMExpired,
		ErrSubNotFound, ErrSubInvalidState, ErrSubNotActive, ErrSubCancelled,
		ErrPlanNotFound, ErrPlanInactive, ErrPlanCodeTaken,
		ErrInvoiceNotFound, ErrInvoiceExhausted,
		ErrValidationFailed, ErrValidationAmountInvalid, ErrValidationMissingField,
		ErrGatewayError, ErrGatewayTimedOut, ErrGatewayDeclined,
		ErrIdempotencyConflict,
		ErrWebhookSignature, ErrWebhookDuplicate, ErrWebhookNotFound,
		ErrRateLimited,
		ErrAuthMissing, ErrAuthInvalid, ErrAuthAccessDenied,
		ErrInternalError, ErrDatabaseError,
	}

	seen := make(map[ErrorCode]string, len(all))
	for _, e := range all {
		if prev, dup := seen[e.Code]; dup {
			t.Errorf("duplicate error code %q (messages %q and %q)", e.Code, prev, e.Message)
		}
		seen[e.Code] = e.Message
	}
}
