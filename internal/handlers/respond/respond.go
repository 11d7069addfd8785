package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// ErrorBody is the wire shape for every error response.
type ErrorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// JSON writes v as the response body with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		// Headers are already out; an encode failure here is unrecoverable.
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error maps err to an HTTP status and writes the error body. Domain
// errors surface their code and message; anything else is masked as a
// 500 so internals never leak to callers.
func Error(w http.ResponseWriter, logger ports.Logger, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		if logger != nil {
			logger.Error("unhandled error", ports.Err(err))
		}
		JSON(w, http.StatusInternalServerError, ErrorBody{
			Error: "internal server error",
			Code:  string(domain.ErrorCodeInternalError),
		})
		return
	}

	status := StatusFor(de.Code)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", ports.Err(err))
	}
	JSON(w, status, ErrorBody{
		Error:   de.Message,
		Code:    string(de.Code),
		Details: de.Details,
	})
}

// StatusFor maps a domain error code to its HTTP status
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidationFailed,
		domain.ErrorCodeValidationAmountInvalid,
		domain.ErrorCodeValidationMissingField:
		return http.StatusBadRequest

	case domain.ErrorCodeAuthMissing,
		domain.ErrorCodeAuthInvalid,
		domain.ErrorCodeWebhookSignature:
		return http.StatusUnauthorized

	case domain.ErrorCodeGatewayDeclined:
		return http.StatusPaymentRequired

	case domain.ErrorCodeAuthAccessDenied:
		return http.StatusForbidden

	case domain.ErrorCodeTxnNotFound,
		domain.ErrorCodeCustomerNotFound,
		domain.ErrorCodeOrderNotFound,
		domain.ErrorCodePMNotFound,
		domain.ErrorCodeSubNotFound,
		domain.ErrorCodePlanNotFound,
		domain.ErrorCodeInvoiceNotFound,
		domain.ErrorCodeWebhookNotFound,
		domain.ErrorCodeAPIKeyNotFound:
		return http.StatusNotFound

	case domain.ErrorCodeIdempotencyConflict,
		domain.ErrorCodePlanCodeTaken,
		domain.ErrorCodeTxnAlreadyProcessed,
		domain.ErrorCodeWebhookDuplicate:
		return http.StatusConflict

	case domain.ErrorCodeTxnInvalidState,
		domain.ErrorCodeSubInvalidState,
		domain.ErrorCodeSubNotActive,
		domain.ErrorCodeSubCancelled,
		domain.ErrorCodeCustomerInactive,
		domain.ErrorCodePlanInactive,
		domain.ErrorCodePMRequired,
		domain.ErrorCodePMInvalid,
		domain.ErrorCodePMExpired,
		domain.ErrorCodeInvoiceNotDue,
		domain.ErrorCodeInvoiceExhausted:
		return http.StatusUnprocessableEntity

	case domain.ErrorCodeRateLimited:
		return http.StatusTooManyRequests

	case domain.ErrorCodeGatewayTimeout:
		return http.StatusGatewayTimeout

	case domain.ErrorCodeGatewayError:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
