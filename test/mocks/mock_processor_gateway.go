package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// orNotConfigured guards the impossible (nil, nil) pair: a real gateway
// always returns an outcome or an error, so an unprimed mock method
// surfaces as a gateway error rather than a nil outcome.
func orNotConfigured(o *ports.Outcome, err error, method string) (*ports.Outcome, error) {
	if o == nil && err == nil {
		return nil, fmt.Errorf("mock gateway: %s outcome not configured", method)
	}
	return o, err
}

// MockProcessorGateway is a mock implementation of ProcessorGateway for testing
type MockProcessorGateway struct {
	mu sync.Mutex

	// Responses to return
	purchaseOutcome        *ports.Outcome
	purchaseError          error
	authorizeOutcome       *ports.Outcome
	authorizeError         error
	captureOutcome         *ports.Outcome
	captureError           error
	voidOutcome            *ports.Outcome
	voidError              error
	refundOutcome          *ports.Outcome
	refundError            error
	customerProfileOutcome *ports.Outcome
	customerProfileError   error
	paymentProfileOutcome  *ports.Outcome
	paymentProfileError    error
	recurringOutcome       *ports.Outcome
	recurringError         error
	cancelRecurringOutcome *ports.Outcome
	cancelRecurringError   error
	inquiry                *ports.TransactionInquiry
	inquiryError           error

	// Call tracking
	PurchaseCalls        int
	AuthorizeCalls       int
	CaptureCalls         int
	VoidCalls            int
	RefundCalls          int
	CustomerProfileCalls int
	PaymentProfileCalls  int
	RecurringCalls       int
	CancelRecurringCalls int
	GetTransactionCalls  int

	// Last request received
	LastChargeReq          *ports.ChargeRequest
	LastCaptureReq         *ports.CaptureRequest
	LastVoidID             string
	LastRefundReq          *ports.RefundRequest
	LastCustomerProfileReq *ports.CustomerProfileRequest
	LastPaymentProfileReq  *ports.PaymentProfileRequest
	LastRecurringReq       *ports.RecurringRequest
	LastCancelRecurringID  string
	LastGetTransactionID   string
}

// NewMockProcessorGateway creates a new mock processor gateway
func NewMockProcessorGateway() *MockProcessorGateway {
	return &MockProcessorGateway{}
}

// SetPurchaseOutcome sets the outcome to return from Purchase
func (m *MockProcessorGateway) SetPurchaseOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchaseOutcome = outcome
	m.purchaseError = err
}

// SetAuthorizeOutcome sets the outcome to return from Authorize
func (m *MockProcessorGateway) SetAuthorizeOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizeOutcome = outcome
	m.authorizeError = err
}

// SetCaptureOutcome sets the outcome to return from Capture
func (m *MockProcessorGateway) SetCaptureOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureOutcome = outcome
	m.captureError = err
}

// SetVoidOutcome sets the outcome to return from Void
func (m *MockProcessorGateway) SetVoidOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voidOutcome = outcome
	m.voidError = err
}

// SetRefundOutcome sets the outcome to return from Refund
func (m *MockProcessorGateway) SetRefundOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refundOutcome = outcome
	m.refundError = err
}

// SetCustomerProfileOutcome sets the outcome to return from CreateCustomerProfile
func (m *MockProcessorGateway) SetCustomerProfileOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customerProfileOutcome = outcome
	m.customerProfileError = err
}

// SetPaymentProfileOutcome sets the outcome to return from CreatePaymentProfile
func (m *MockProcessorGateway) SetPaymentProfileOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentProfileOutcome = outcome
	m.paymentProfileError = err
}

// SetRecurringOutcome sets the outcome to return from CreateRecurring
func (m *MockProcessorGateway) SetRecurringOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurringOutcome = outcome
	m.recurringError = err
}

// SetCancelRecurringOutcome sets the outcome to return from CancelRecurring
func (m *MockProcessorGateway) SetCancelRecurringOutcome(outcome *ports.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRecurringOutcome = outcome
	m.cancelRecurringError = err
}

// SetInquiry sets the inquiry to return from GetTransaction
func (m *MockProcessorGateway) SetInquiry(inquiry *ports.TransactionInquiry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inquiry = inquiry
	m.inquiryError = err
}

// Purchase implements ProcessorGateway.Purchase
func (m *MockProcessorGateway) Purchase(ctx context.Context, req *ports.ChargeRequest) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PurchaseCalls++
	m.LastChargeReq = req
	return orNotConfigured(m.purchaseOutcome, m.purchaseError, "Purchase")
}

// Authorize implements ProcessorGateway.Authorize
func (m *MockProcessorGateway) Authorize(ctx context.Context, req *ports.ChargeRequest) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthorizeCalls++
	m.LastChargeReq = req
	return orNotConfigured(m.authorizeOutcome, m.authorizeError, "Authorize")
}

// Capture implements ProcessorGateway.Capture
func (m *MockProcessorGateway) Capture(ctx context.Context, req *ports.CaptureRequest) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CaptureCalls++
	m.LastCaptureReq = req
	return orNotConfigured(m.captureOutcome, m.captureError, "Capture")
}

// Void implements ProcessorGateway.Void
func (m *MockProcessorGateway) Void(ctx context.Context, externalID string) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VoidCalls++
	m.LastVoidID = externalID
	return orNotConfigured(m.voidOutcome, m.voidError, "Void")
}

// Refund implements ProcessorGateway.Refund
func (m *MockProcessorGateway) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundCalls++
	m.LastRefundReq = req
	return orNotConfigured(m.refundOutcome, m.refundError, "Refund")
}

// CreateCustomerProfile implements ProcessorGateway.CreateCustomerProfile
func (m *MockProcessorGateway) CreateCustomerProfile(ctx context.Context, req *ports.CustomerProfileRequest) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CustomerProfileCalls++
	m.LastCustomerProfileReq = req
	return orNotConfigured(m.customerProfileOutcome, m.customerProfileError, "CreateCustomerProfile")
}

// CreatePaymentProfile implements ProcessorGateway.CreatePaymentProfile
func (m *MockProcessorGateway) CreatePaymentProfile(ctx context.Context, req *ports.PaymentProfileRequest) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PaymentProfileCalls++
	m.LastPaymentProfileReq = req
	return orNotConfigured(m.paymentProfileOutcome, m.paymentProfileError, "CreatePaymentProfile")
}

// CreateRecurring implements ProcessorGateway.CreateRecurring
func (m *MockProcessorGateway) CreateRecurring(ctx context.Context, req *ports.RecurringRequest) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecurringCalls++
	m.LastRecurringReq = req
	return orNotConfigured(m.recurringOutcome, m.recurringError, "CreateRecurring")
}

// CancelRecurring implements ProcessorGateway.CancelRecurring
func (m *MockProcessorGateway) CancelRecurring(ctx context.Context, recurringID string) (*ports.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelRecurringCalls++
	m.LastCancelRecurringID = recurringID
	return orNotConfigured(m.cancelRecurringOutcome, m.cancelRecurringError, "CancelRecurring")
}

// GetTransaction implements ProcessorGateway.GetTransaction
func (m *MockProcessorGateway) GetTransaction(ctx context.Context, externalID string) (*ports.TransactionInquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetTransactionCalls++
	m.LastGetTransactionID = externalID
	return m.inquiry, m.inquiryError
}

// Reset resets all mock state
func (m *MockProcessorGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchaseOutcome = nil
	m.purchaseError = nil
	m.authorizeOutcome = nil
	m.authorizeError = nil
	m.captureOutcome = nil
	m.captureError = nil
	m.voidOutcome = nil
	m.voidError = nil
	m.refundOutcome = nil
	m.refundError = nil
	m.customerProfileOutcome = nil
	m.customerProfileError = nil
	m.paymentProfileOutcome = nil
	m.paymentProfileError = nil
	m.recurringOutcome = nil
	m.recurringError = nil
	m.cancelRecurringOutcome = nil
	m.cancelRecurringError = nil
	m.inquiry = nil
	m.inquiryError = nil
	m.PurchaseCalls = 0
	m.AuthorizeCalls = 0
	m.CaptureCalls = 0
	m.VoidCalls = 0
	m.RefundCalls = 0
	m.CustomerProfileCalls = 0
	m.PaymentProfileCalls = 0
	m.RecurringCalls = 0
	m.CancelRecurringCalls = 0
	m.GetTransactionCalls = 0
	m.LastChargeReq = nil
	m.LastCaptureReq = nil
	m.LastVoidID = ""
	m.LastRefundReq = nil
	m.LastCustomerProfileReq = nil
	m.LastPaymentProfileReq = nil
	m.LastRecurringReq = nil
	m.LastCancelRecurringID = ""
	m.LastGetTransactionID = ""
}
