package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/services/payment"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	"github.com/recurpay/billing-gateway/test/mocks"
)

type paymentFixture struct {
	db      *mocks.MockDB
	txns    *mocks.MockTransactionRepository
	orders  *mocks.MockOrderRepository
	cust    *mocks.MockCustomerRepository
	methods *mocks.MockPaymentMethodRepository
	idem    *mocks.MockIdempotencyStore
	gateway *mocks.MockProcessorGateway
	events  *mocks.MockEventPublisher
	logger  *mocks.MockLogger
	service *payment.Service
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		db:      mocks.NewMockDB(),
		txns:    mocks.NewMockTransactionRepository(),
		orders:  mocks.NewMockOrderRepository(),
		cust:    mocks.NewMockCustomerRepository(),
		methods: mocks.NewMockPaymentMethodRepository(),
		idem:    mocks.NewMockIdempotencyStore(),
		gateway: mocks.NewMockProcessorGateway(),
		events:  mocks.NewMockEventPublisher(),
		logger:  mocks.NewMockLogger(),
	}
	f.service = payment.NewService(f.db, f.txns, f.orders, f.cust, f.methods, f.idem, f.gateway, f.events, f.logger)
	return f
}

func testCard() *domain.CardDetails {
	return &domain.CardDetails{
		Number:         "4111111111111111",
		CVV:            "123",
		CardholderName: "Ada Lovelace",
		ExpiryMonth:    12,
		ExpiryYear:     time.Now().UTC().Year() + 2,
	}
}

func testBilling() *domain.BillingAddress {
	return &domain.BillingAddress{
		Line1:      "1 Main St",
		City:       "Portland",
		State:      "OR",
		PostalCode: "97201",
		Country:    "US",
	}
}

func purchaseReq(key string) *serviceports.PurchaseRequest {
	return &serviceports.PurchaseRequest{
		Card:           testCard(),
		BillingAddress: testBilling(),
		Amount:         decimal.NewFromFloat(49.99),
		Currency:       "USD",
		CustomerEmail:  "ada@example.com",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		IdempotencyKey: key,
	}
}

func approvedCharge(externalID string) *ports.Outcome {
	return ports.NewApprovedOutcome(ports.Approval{
		ExternalID: externalID,
		AuthCode:   "A1B2C3",
		AVSResult:  "Y",
		CVVResult:  "M",
	}, "1", []byte(`{"result":"approved"}`))
}

func seededCharge(f *paymentFixture, txnType domain.TransactionType, status domain.PaymentStatus, amount float64, externalID string) *domain.Transaction {
	custID := uuid.New().String()
	f.cust.Seed(&domain.Customer{ID: custID, Email: custID + "@example.com", IsActive: true})
	txn := &domain.Transaction{
		ID:                uuid.New().String(),
		Type:              txnType,
		Status:            status,
		PaymentMethodKind: domain.PaymentMethodCard,
		Amount:            decimal.NewFromFloat(amount),
		Currency:          "USD",
		CustomerID:        &custID,
		CorrelationID:     uuid.New().String(),
		CreatedAt:         time.Now().UTC().Add(-time.Hour),
		RequestBlob:       []byte(`{"last_four":"1111","email":"ada@example.com"}`),
	}
	if externalID != "" {
		txn.ExternalProcessorID = &externalID
	}
	f.txns.Seed(txn)
	return txn
}

func TestService_Purchase_ApprovedSettles(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(approvedCharge("proc-100"), nil)

	txn, err := f.service.Purchase(context.Background(), purchaseReq("key-1"))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, txn.Status)
	assert.Equal(t, domain.TransactionTypePurchase, txn.Type)
	assert.Equal(t, "proc-100", txn.GetExternalProcessorID())
	require.NotNil(t, txn.AuthCode)
	assert.Equal(t, "A1B2C3", *txn.AuthCode)
	require.NotNil(t, txn.AVSResult)
	assert.Equal(t, "Y", *txn.AVSResult)
	assert.Equal(t, 1, f.gateway.PurchaseCalls)

	// The PAN never makes it into the gateway request untrimmed or into storage.
	stored, err := f.txns.GetByID(context.Background(), nil, txn.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.RequestBlob), "4111111111111111")
	assert.Contains(t, string(stored.RequestBlob), `"last_four":"1111"`)

	// A customer is created on first sight of the email.
	customer, err := f.cust.GetByEmail(context.Background(), nil, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, txn.CustomerID)
	assert.Equal(t, customer.ID, *txn.CustomerID)

	assert.Equal(t, []string{"recurpay.payment.authcapture.created"}, f.events.EventTypes())
}

func TestService_Purchase_DeclineIsNotAnError(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(ports.NewDeclinedOutcome(ports.Decline{
		Code:       "2",
		Reason:     "insufficient funds",
		ExternalID: "proc-declined",
	}, "2", []byte(`{"result":"declined"}`)), nil)

	txn, err := f.service.Purchase(context.Background(), purchaseReq("key-declined"))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, txn.Status)
	assert.Equal(t, "proc-declined", txn.GetExternalProcessorID())
	require.NotNil(t, txn.ResponseCode)
	assert.Equal(t, "2", *txn.ResponseCode)

	// Declines still notify the merchant; response_code distinguishes them.
	assert.Equal(t, []string{"recurpay.payment.authcapture.created"}, f.events.EventTypes())
}

func TestService_Purchase_ReplaySkipsProcessor(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(approvedCharge("proc-replay"), nil)

	first, err := f.service.Purchase(context.Background(), purchaseReq("key-replay"))
	require.NoError(t, err)

	second, err := f.service.Purchase(context.Background(), purchaseReq("key-replay"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, f.gateway.PurchaseCalls, "replay must not reach the processor")
	assert.Equal(t, 1, f.txns.CreateCalls)
}

func TestService_Purchase_KeyReuseWithDifferentRequestConflicts(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(approvedCharge("proc-conflict"), nil)

	_, err := f.service.Purchase(context.Background(), purchaseReq("key-conflict"))
	require.NoError(t, err)

	altered := purchaseReq("key-conflict")
	altered.Amount = decimal.NewFromFloat(99.99)
	_, err = f.service.Purchase(context.Background(), altered)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeIdempotencyConflict))
	assert.Equal(t, 1, f.gateway.PurchaseCalls)
}

func TestService_Purchase_ValidationRejectsBadCards(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(req *serviceports.PurchaseRequest)
	}{
		{"short pan", func(r *serviceports.PurchaseRequest) { r.Card.Number = "4111" }},
		{"letters in pan", func(r *serviceports.PurchaseRequest) { r.Card.Number = "41111111x1111111" }},
		{"cvv too long", func(r *serviceports.PurchaseRequest) { r.Card.CVV = "12345" }},
		{"month out of range", func(r *serviceports.PurchaseRequest) { r.Card.ExpiryMonth = 13 }},
		{"expired year", func(r *serviceports.PurchaseRequest) { r.Card.ExpiryYear = time.Now().UTC().Year() - 1 }},
		{"blank cardholder", func(r *serviceports.PurchaseRequest) { r.Card.CardholderName = "   " }},
		{"zero amount", func(r *serviceports.PurchaseRequest) { r.Amount = decimal.Zero }},
		{"bad currency", func(r *serviceports.PurchaseRequest) { r.Currency = "US" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			req := purchaseReq("")
			tt.mutate(req)

			_, err := f.service.Purchase(context.Background(), req)

			require.Error(t, err)
			code := domain.GetErrorCode(err)
			assert.True(t, code == domain.ErrorCodeValidationFailed ||
				code == domain.ErrorCodeValidationAmountInvalid, "got code %s", code)
			assert.Equal(t, 0, f.gateway.PurchaseCalls, "invalid input must not reach the processor")
			assert.Equal(t, 0, f.txns.CreateCalls)
		})
	}
}

func TestService_Purchase_PANWithSpacesIsNormalized(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(approvedCharge("proc-spaces"), nil)

	req := purchaseReq("key-spaces")
	req.Card.Number = "4111 1111 1111 1111"
	txn, err := f.service.Purchase(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, txn.Status)
	assert.Equal(t, "4111111111111111", f.gateway.LastChargeReq.Card.Number)
}

func TestService_Purchase_TransientFaultStaysPending(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(ports.NewErrorOutcome(ports.Fault{
		Code:      "E00001",
		Message:   "processor unavailable",
		Transient: true,
	}, "3", []byte(`{"result":"error"}`)), nil)

	txn, err := f.service.Purchase(context.Background(), purchaseReq("key-transient"))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, txn.Status)
	assert.Empty(t, f.events.EventTypes(), "unresolved rows emit no events")
}

func TestService_Purchase_HeldForReview(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(ports.NewErrorOutcome(ports.Fault{
		Code:       ports.FaultCodeHeldForReview,
		Message:    "held for merchant review",
		ExternalID: "proc-held",
	}, "4", []byte(`{"result":"held"}`)), nil)

	txn, err := f.service.Purchase(context.Background(), purchaseReq("key-held"))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPendingReview, txn.Status)
	assert.Equal(t, "proc-held", txn.GetExternalProcessorID())
	assert.Equal(t, []string{"recurpay.payment.fraud.held"}, f.events.EventTypes())
}

func TestService_Purchase_WithStoredMethod(t *testing.T) {
	f := newPaymentFixture()
	profileID := "prof-9"
	month, year := 12, time.Now().UTC().Year()+1
	f.cust.Seed(&domain.Customer{
		ID: "cust-1", Email: "stored@example.com", IsActive: true,
		ProcessorProfileID: &profileID,
	})
	f.methods.Seed(&domain.PaymentMethod{
		ID: "pm-1", CustomerID: "cust-1", Kind: domain.PaymentMethodCard,
		Token: "pay-7", Brand: "visa", LastFour: "4242",
		ExpiryMonth: &month, ExpiryYear: &year, IsActive: true,
	})
	f.gateway.SetPurchaseOutcome(approvedCharge("proc-stored"), nil)

	pmID := "pm-1"
	txn, err := f.service.Purchase(context.Background(), &serviceports.PurchaseRequest{
		PaymentMethodID: &pmID,
		Amount:          decimal.NewFromFloat(29.99),
		Currency:        "USD",
		IdempotencyKey:  "key-stored",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, txn.Status)
	require.NotNil(t, txn.PaymentMethodID)
	assert.Equal(t, "pm-1", *txn.PaymentMethodID)

	// The charge references processor profiles, never raw card data.
	assert.Equal(t, "prof-9", f.gateway.LastChargeReq.CustomerProfileID)
	assert.Equal(t, "pay-7", f.gateway.LastChargeReq.PaymentProfileID)
	assert.Nil(t, f.gateway.LastChargeReq.Card)
	assert.Equal(t, 1, f.methods.TouchCalls)
}

func TestService_Purchase_ExpiredStoredMethodRejected(t *testing.T) {
	f := newPaymentFixture()
	month, year := 1, 2020
	f.cust.Seed(&domain.Customer{ID: "cust-1", Email: "x@example.com", IsActive: true})
	f.methods.Seed(&domain.PaymentMethod{
		ID: "pm-old", CustomerID: "cust-1", Kind: domain.PaymentMethodCard,
		Token: "pay-old", LastFour: "0001",
		ExpiryMonth: &month, ExpiryYear: &year, IsActive: true,
	})

	pmID := "pm-old"
	_, err := f.service.Purchase(context.Background(), &serviceports.PurchaseRequest{
		PaymentMethodID: &pmID,
		Amount:          decimal.NewFromFloat(10),
		Currency:        "USD",
	})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePMExpired))
	assert.Equal(t, 0, f.gateway.PurchaseCalls)
}

func TestService_Purchase_InactiveCustomerRejected(t *testing.T) {
	f := newPaymentFixture()
	f.cust.Seed(&domain.Customer{ID: "cust-gone", Email: "gone@example.com", IsActive: false})

	custID := "cust-gone"
	req := purchaseReq("")
	req.CustomerID = &custID
	_, err := f.service.Purchase(context.Background(), req)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeCustomerInactive))
	assert.Equal(t, 0, f.gateway.PurchaseCalls)
}

func TestService_Purchase_SavePaymentMethodTokenizes(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(approvedCharge("proc-save"), nil)
	f.gateway.SetCustomerProfileOutcome(ports.NewApprovedOutcome(ports.Approval{
		ExternalID: "prof-new",
	}, "1", nil), nil)
	f.gateway.SetPaymentProfileOutcome(ports.NewApprovedOutcome(ports.Approval{
		ExternalID: "pay-new",
	}, "1", nil), nil)

	req := purchaseReq("key-save")
	req.SavePaymentMethod = true
	txn, err := f.service.Purchase(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, txn.Status)

	customer, err := f.cust.GetByEmail(context.Background(), nil, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, customer.ProcessorProfileID)
	assert.Equal(t, "prof-new", *customer.ProcessorProfileID)

	methods, err := f.methods.ListByCustomer(context.Background(), nil, customer.ID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "pay-new", methods[0].Token)
	assert.Equal(t, "visa", methods[0].Brand)
	assert.Equal(t, "1111", methods[0].LastFour)
}

func TestService_Purchase_ProfileBackfillFailureDoesNotFailCharge(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetPurchaseOutcome(approvedCharge("proc-bf"), nil)
	f.gateway.SetCustomerProfileOutcome(ports.NewErrorOutcome(ports.Fault{
		Code: "E00010", Message: "profile service down", Transient: true,
	}, "3", nil), nil)

	req := purchaseReq("key-bf")
	req.SavePaymentMethod = true
	txn, err := f.service.Purchase(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, txn.Status)
	assert.NotEmpty(t, f.logger.WarnCalls)

	customer, err := f.cust.GetByEmail(context.Background(), nil, "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, customer.ProcessorProfileID)
	assert.Equal(t, 0, f.gateway.PaymentProfileCalls, "tokenization needs the customer profile first")
}

func TestService_Authorize_ApprovedAuthorizes(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.SetAuthorizeOutcome(approvedCharge("proc-auth"), nil)

	txn, err := f.service.Authorize(context.Background(), &serviceports.AuthorizeRequest{
		Card:           testCard(),
		BillingAddress: testBilling(),
		Amount:         decimal.NewFromFloat(80),
		Currency:       "USD",
		CustomerEmail:  "hold@example.com",
		IdempotencyKey: "key-auth",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeAuthorize, txn.Type)
	assert.Equal(t, domain.PaymentStatusAuthorized, txn.Status)
	assert.Equal(t, 1, f.gateway.AuthorizeCalls)
	assert.Equal(t, 0, f.gateway.PurchaseCalls)
	assert.Equal(t, []string{"recurpay.payment.authorization.created"}, f.events.EventTypes())
}

func TestService_Capture_Success(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypeAuthorize, domain.PaymentStatusAuthorized, 80, "proc-cap")
	f.gateway.SetCaptureOutcome(approvedCharge("proc-cap"), nil)

	child, err := f.service.Capture(context.Background(), &serviceports.CaptureRequest{
		TransactionID:  parent.ID,
		IdempotencyKey: "key-cap",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeCapture, child.Type)
	assert.Equal(t, domain.PaymentStatusSettled, child.Status)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.True(t, child.Amount.Equal(parent.Amount))
	assert.Equal(t, "proc-cap", f.gateway.LastCaptureReq.ExternalID)

	updated, err := f.txns.GetByID(context.Background(), nil, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, updated.Status)
	assert.Equal(t, []string{"recurpay.payment.capture.created"}, f.events.EventTypes())
}

func TestService_Capture_PartialAmount(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypeAuthorize, domain.PaymentStatusAuthorized, 80, "proc-cap2")
	f.gateway.SetCaptureOutcome(approvedCharge("proc-cap2"), nil)

	amount := decimal.NewFromFloat(50)
	child, err := f.service.Capture(context.Background(), &serviceports.CaptureRequest{
		TransactionID: parent.ID,
		Amount:        &amount,
	})

	require.NoError(t, err)
	assert.True(t, child.Amount.Equal(amount))
	require.NotNil(t, f.gateway.LastCaptureReq.Amount)
	assert.True(t, f.gateway.LastCaptureReq.Amount.Equal(amount))
}

func TestService_Capture_RejectsWrongState(t *testing.T) {
	f := newPaymentFixture()
	settled := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusSettled, 50, "proc-x")

	_, err := f.service.Capture(context.Background(), &serviceports.CaptureRequest{
		TransactionID: settled.ID,
	})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnInvalidState))
	assert.Equal(t, 0, f.gateway.CaptureCalls)
}

func TestService_Capture_RejectsAmountAboveAuthorization(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypeAuthorize, domain.PaymentStatusAuthorized, 80, "proc-cap3")

	amount := decimal.NewFromFloat(90)
	_, err := f.service.Capture(context.Background(), &serviceports.CaptureRequest{
		TransactionID: parent.ID,
		Amount:        &amount,
	})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationAmountInvalid))
	assert.Equal(t, 0, f.gateway.CaptureCalls)
}

func TestService_Void_Success(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypeAuthorize, domain.PaymentStatusAuthorized, 80, "proc-void")
	f.gateway.SetVoidOutcome(approvedCharge("proc-void"), nil)

	child, err := f.service.Void(context.Background(), &serviceports.VoidRequest{
		TransactionID: parent.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeVoid, child.Type)
	assert.Equal(t, domain.PaymentStatusSettled, child.Status)
	assert.Equal(t, "proc-void", f.gateway.LastVoidID)

	updated, err := f.txns.GetByID(context.Background(), nil, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusVoided, updated.Status)
	assert.Equal(t, []string{"recurpay.payment.void.created"}, f.events.EventTypes())
}

func TestService_Void_RejectsCapturedCharge(t *testing.T) {
	f := newPaymentFixture()
	captured := seededCharge(f, domain.TransactionTypeAuthorize, domain.PaymentStatusCaptured, 80, "proc-v2")

	_, err := f.service.Void(context.Background(), &serviceports.VoidRequest{
		TransactionID: captured.ID,
	})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnInvalidState))
}

func TestService_Refund_FullRefund(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusSettled, 50, "proc-ref")
	f.gateway.SetRefundOutcome(approvedCharge("proc-ref-child"), nil)

	child, err := f.service.Refund(context.Background(), &serviceports.RefundRequest{
		TransactionID:  parent.ID,
		Reason:         "customer request",
		IdempotencyKey: "key-refund",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeRefund, child.Type)
	assert.Equal(t, domain.PaymentStatusSettled, child.Status)
	assert.True(t, child.Amount.Equal(parent.Amount))

	// Last four digits recovered from the stored charge summary.
	assert.Equal(t, "1111", f.gateway.LastRefundReq.LastFour)
	assert.Equal(t, "proc-ref", f.gateway.LastRefundReq.ExternalID)

	updated, err := f.txns.GetByID(context.Background(), nil, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, updated.Status)
	assert.Equal(t, []string{"recurpay.payment.refund.created"}, f.events.EventTypes())
}

func TestService_Refund_PartialTracksRemaining(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusSettled, 100, "proc-part")
	f.gateway.SetRefundOutcome(approvedCharge("proc-part-1"), nil)

	first := decimal.NewFromFloat(40)
	child, err := f.service.Refund(context.Background(), &serviceports.RefundRequest{
		TransactionID: parent.ID,
		Amount:        &first,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypePartialRefund, child.Type)

	updated, err := f.txns.GetByID(context.Background(), nil, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartiallyRefunded, updated.Status)

	// 60 remains; asking for 70 exceeds it.
	over := decimal.NewFromFloat(70)
	_, err = f.service.Refund(context.Background(), &serviceports.RefundRequest{
		TransactionID: parent.ID,
		Amount:        &over,
	})
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationAmountInvalid))

	// The exact remainder finishes the refund.
	rest := decimal.NewFromFloat(60)
	last, err := f.service.Refund(context.Background(), &serviceports.RefundRequest{
		TransactionID: parent.ID,
		Amount:        &rest,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeRefund, last.Type)

	updated, err = f.txns.GetByID(context.Background(), nil, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, updated.Status)
}

func TestService_Refund_RejectsRefundChildAsTarget(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusSettled, 50, "proc-rr")
	f.gateway.SetRefundOutcome(approvedCharge("proc-rr-1"), nil)

	child, err := f.service.Refund(context.Background(), &serviceports.RefundRequest{
		TransactionID: parent.ID,
	})
	require.NoError(t, err)

	_, err = f.service.Refund(context.Background(), &serviceports.RefundRequest{
		TransactionID: child.ID,
	})
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnInvalidState))
}

func TestService_Refund_DeclinedLeavesParentUntouched(t *testing.T) {
	f := newPaymentFixture()
	parent := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusSettled, 50, "proc-rd")
	f.gateway.SetRefundOutcome(ports.NewDeclinedOutcome(ports.Decline{
		Code: "2", Reason: "refund window closed",
	}, "2", nil), nil)

	child, err := f.service.Refund(context.Background(), &serviceports.RefundRequest{
		TransactionID: parent.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, child.Status)

	updated, err := f.txns.GetByID(context.Background(), nil, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, updated.Status)
}

func TestService_ReconcilePending_SettlesWithProcessorAmount(t *testing.T) {
	f := newPaymentFixture()
	stale := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusPending, 49.99, "proc-stale")
	settleAmount := decimal.NewFromFloat(45.00)
	f.gateway.SetInquiry(&ports.TransactionInquiry{
		ExternalID:   "proc-stale",
		Status:       domain.PaymentStatusSettled,
		SettleAmount: &settleAmount,
		ResponseCode: "1",
	}, nil)

	report, err := f.service.ReconcilePending(context.Background(), 30*time.Minute, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Settled)

	updated, err := f.txns.GetByID(context.Background(), nil, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, updated.Status)
	assert.True(t, updated.Amount.Equal(settleAmount), "processor settle amount wins")
	assert.Equal(t, []string{"recurpay.payment.authcapture.created"}, f.events.EventTypes())
}

func TestService_ReconcilePending_UnknownAtProcessorFails(t *testing.T) {
	f := newPaymentFixture()
	stale := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusPending, 20, "proc-lost")
	f.gateway.SetInquiry(nil, domain.ErrTxnNotFound)

	report, err := f.service.ReconcilePending(context.Background(), 30*time.Minute, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	updated, err := f.txns.GetByID(context.Background(), nil, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, updated.Status)
}

func TestService_ReconcilePending_StillInFlightStaysPending(t *testing.T) {
	f := newPaymentFixture()
	stale := seededCharge(f, domain.TransactionTypePurchase, domain.PaymentStatusPending, 20, "proc-wait")
	f.gateway.SetInquiry(&ports.TransactionInquiry{
		ExternalID: "proc-wait",
		Status:     domain.PaymentStatusPending,
	}, nil)

	report, err := f.service.ReconcilePending(context.Background(), 30*time.Minute, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Unresolved)

	updated, err := f.txns.GetByID(context.Background(), nil, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, updated.Status)
	assert.Empty(t, f.events.EventTypes())
}

func TestService_ReconcilePending_SkipsFreshRows(t *testing.T) {
	f := newPaymentFixture()
	custID := uuid.New().String()
	f.cust.Seed(&domain.Customer{ID: custID, Email: "fresh@example.com", IsActive: true})
	extID := "proc-fresh"
	f.txns.Seed(&domain.Transaction{
		ID:                  uuid.New().String(),
		Type:                domain.TransactionTypePurchase,
		Status:              domain.PaymentStatusPending,
		PaymentMethodKind:   domain.PaymentMethodCard,
		Amount:              decimal.NewFromFloat(10),
		Currency:            "USD",
		CustomerID:          &custID,
		ExternalProcessorID: &extID,
		CorrelationID:       uuid.New().String(),
		CreatedAt:           time.Now().UTC(),
	})

	report, err := f.service.ReconcilePending(context.Background(), 30*time.Minute, 100)

	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, f.gateway.GetTransactionCalls)
}

func TestService_GetTransaction_NotFound(t *testing.T) {
	f := newPaymentFixture()

	_, err := f.service.GetTransaction(context.Background(), uuid.New().String())

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnNotFound))
}
