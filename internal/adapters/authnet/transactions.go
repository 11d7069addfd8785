package authnet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

const (
	transactionTypeAuthCapture      = "authCaptureTransaction"
	transactionTypeAuthOnly         = "authOnlyTransaction"
	transactionTypePriorAuthCapture = "priorAuthCaptureTransaction"
	transactionTypeVoid             = "voidTransaction"
	transactionTypeRefund           = "refundTransaction"

	responseApproved = "1"
	responseDeclined = "2"
	responseError    = "3"
	responseHeld     = "4"
)

// Request DTOs. Field order matters: the API validates the JSON element
// order against its XML schema, and encoding/json emits struct fields in
// declaration order.

type creditCard struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
	CardCode       string `json:"cardCode,omitempty"`
}

type paymentBlock struct {
	CreditCard creditCard `json:"creditCard"`
}

type paymentProfileRef struct {
	PaymentProfileID string `json:"paymentProfileId"`
}

type profileBlock struct {
	CustomerProfileID string            `json:"customerProfileId"`
	PaymentProfile    paymentProfileRef `json:"paymentProfile"`
}

type orderBlock struct {
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	Description   string `json:"description,omitempty"`
}

type customerBlock struct {
	Email string `json:"email,omitempty"`
}

type billToBlock struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty"`
}

type userField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type userFieldsBlock struct {
	UserField []userField `json:"userField"`
}

type transactionRequest struct {
	TransactionType string           `json:"transactionType"`
	Amount          string           `json:"amount,omitempty"`
	CurrencyCode    string           `json:"currencyCode,omitempty"`
	Payment         *paymentBlock    `json:"payment,omitempty"`
	Profile         *profileBlock    `json:"profile,omitempty"`
	RefTransID      string           `json:"refTransId,omitempty"`
	Order           *orderBlock      `json:"order,omitempty"`
	Customer        *customerBlock   `json:"customer,omitempty"`
	BillTo          *billToBlock     `json:"billTo,omitempty"`
	UserFields      *userFieldsBlock `json:"userFields,omitempty"`
}

type createTransactionRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	RefID                  string                 `json:"refId,omitempty"`
	TransactionRequest     transactionRequest     `json:"transactionRequest"`
}

type createTransactionEnvelope struct {
	CreateTransactionRequest createTransactionRequest `json:"createTransactionRequest"`
}

// Response DTOs.

type transactionMessage struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type transactionError struct {
	ErrorCode string `json:"errorCode"`
	ErrorText string `json:"errorText"`
}

type transactionResponse struct {
	ResponseCode  string               `json:"responseCode"`
	AuthCode      string               `json:"authCode"`
	AVSResultCode string               `json:"avsResultCode"`
	CVVResultCode string               `json:"cvvResultCode"`
	TransID       string               `json:"transId"`
	Messages      []transactionMessage `json:"messages"`
	Errors        []transactionError   `json:"errors"`
}

// reasonCode extracts the stable reason code for declines and errors.
func (tr transactionResponse) reasonCode() string {
	if len(tr.Errors) > 0 {
		return tr.Errors[0].ErrorCode
	}
	if len(tr.Messages) > 0 {
		return tr.Messages[0].Code
	}
	return ""
}

// reasonText prefers the processor's own message over our description.
func (tr transactionResponse) reasonText(fallback string) string {
	if len(tr.Errors) > 0 && tr.Errors[0].ErrorText != "" {
		return tr.Errors[0].ErrorText
	}
	return fallback
}

type createTransactionResponse struct {
	TransactionResponse transactionResponse `json:"transactionResponse"`
	RefID               string              `json:"refId"`
	Messages            apiMessages         `json:"messages"`
}

// Purchase authorizes and captures in one step
func (g *Gateway) Purchase(ctx context.Context, req *ports.ChargeRequest) (*ports.Outcome, error) {
	return g.charge(ctx, transactionTypeAuthCapture, req)
}

// Authorize reserves funds without capturing
func (g *Gateway) Authorize(ctx context.Context, req *ports.ChargeRequest) (*ports.Outcome, error) {
	return g.charge(ctx, transactionTypeAuthOnly, req)
}

func (g *Gateway) charge(ctx context.Context, txnType string, req *ports.ChargeRequest) (*ports.Outcome, error) {
	txn := transactionRequest{
		TransactionType: txnType,
		Amount:          req.Amount.StringFixed(2),
		CurrencyCode:    req.Currency,
	}

	switch {
	case req.Card != nil:
		txn.Payment = &paymentBlock{CreditCard: creditCard{
			CardNumber:     req.Card.Number,
			ExpirationDate: formatExpiry(req.Card.ExpiryMonth, req.Card.ExpiryYear),
			CardCode:       req.Card.CVV,
		}}
	case req.CustomerProfileID != "":
		txn.Profile = &profileBlock{
			CustomerProfileID: req.CustomerProfileID,
			PaymentProfile:    paymentProfileRef{PaymentProfileID: req.PaymentProfileID},
		}
	default:
		return nil, fmt.Errorf("charge request has no funding source")
	}

	if req.InvoiceNumber != "" || req.OrderID != "" {
		txn.Order = &orderBlock{
			InvoiceNumber: req.InvoiceNumber,
			Description:   req.OrderID,
		}
	}
	if req.CustomerEmail != "" {
		txn.Customer = &customerBlock{Email: req.CustomerEmail}
	}
	if req.Billing != nil {
		txn.BillTo = buildBillTo(req.Card, req.Billing)
	}
	if len(req.Metadata) > 0 {
		txn.UserFields = buildUserFields(req.Metadata)
	}

	return g.submit(ctx, txn, req.CorrelationID)
}

// Capture settles a prior authorization
func (g *Gateway) Capture(ctx context.Context, req *ports.CaptureRequest) (*ports.Outcome, error) {
	txn := transactionRequest{
		TransactionType: transactionTypePriorAuthCapture,
		RefTransID:      req.ExternalID,
	}
	if req.Amount != nil {
		txn.Amount = req.Amount.StringFixed(2)
	}
	return g.submit(ctx, txn, "")
}

// Void cancels an authorization that has not been captured
func (g *Gateway) Void(ctx context.Context, externalID string) (*ports.Outcome, error) {
	txn := transactionRequest{
		TransactionType: transactionTypeVoid,
		RefTransID:      externalID,
	}
	return g.submit(ctx, txn, "")
}

// Refund returns settled funds to the cardholder. The processor requires
// the card's last four with a masked expiry to reference the original card.
func (g *Gateway) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.Outcome, error) {
	txn := transactionRequest{
		TransactionType: transactionTypeRefund,
		RefTransID:      req.ExternalID,
		Payment: &paymentBlock{CreditCard: creditCard{
			CardNumber:     req.LastFour,
			ExpirationDate: "XXXX",
		}},
	}
	if req.Amount != nil {
		txn.Amount = req.Amount.StringFixed(2)
	}
	return g.submit(ctx, txn, "")
}

// submit sends one transaction request and folds the response into an
// Outcome. Transport failures become ERROR outcomes rather than Go errors
// so callers branch on a single axis.
func (g *Gateway) submit(ctx context.Context, txn transactionRequest, refID string) (*ports.Outcome, error) {
	envelope := createTransactionEnvelope{
		CreateTransactionRequest: createTransactionRequest{
			MerchantAuthentication: g.auth(),
			RefID:                  refID,
			TransactionRequest:     txn,
		},
	}

	body, err := g.makeRequest(ctx, "createTransactionRequest", envelope)
	if err != nil {
		return faultOutcome(err), nil
	}

	var resp createTransactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// The charge may have gone through. Transient so that
		// reconciliation resolves it instead of failing terminally.
		return ports.NewErrorOutcome(ports.Fault{
			Code:      "PROCESSOR_ERROR",
			Message:   "malformed processor response",
			Transient: true,
		}, "", body), nil
	}

	return outcomeFromTransaction(resp, body), nil
}

func outcomeFromTransaction(resp createTransactionResponse, raw []byte) *ports.Outcome {
	tr := resp.TransactionResponse

	// Envelope-level failures (bad credentials, schema violations) carry
	// no transaction response at all.
	if !resp.Messages.ok() && tr.ResponseCode == "" {
		return envelopeFault(resp.Messages, raw)
	}

	switch tr.ResponseCode {
	case responseApproved:
		return ports.NewApprovedOutcome(ports.Approval{
			ExternalID: tr.TransID,
			AuthCode:   tr.AuthCode,
			AVSResult:  tr.AVSResultCode,
			CVVResult:  tr.CVVResultCode,
		}, tr.ResponseCode, raw)

	case responseDeclined:
		info := GetReasonCodeInfo(tr.reasonCode())
		return ports.NewDeclinedOutcome(ports.Decline{
			Code:       info.Display,
			Reason:     tr.reasonText(info.Description),
			ExternalID: tr.TransID,
		}, tr.ResponseCode, raw)

	case responseHeld:
		return ports.NewErrorOutcome(ports.Fault{
			Code:       ports.FaultCodeHeldForReview,
			Message:    tr.reasonText("transaction held for review"),
			ExternalID: tr.TransID,
			Transient:  false,
		}, tr.ResponseCode, raw)

	default:
		info := GetReasonCodeInfo(tr.reasonCode())
		if info.IsHeld {
			return ports.NewErrorOutcome(ports.Fault{
				Code:       ports.FaultCodeHeldForReview,
				Message:    tr.reasonText(info.Description),
				ExternalID: tr.TransID,
				Transient:  false,
			}, tr.ResponseCode, raw)
		}
		return ports.NewErrorOutcome(ports.Fault{
			Code:       info.Display,
			Message:    tr.reasonText(info.Description),
			ExternalID: tr.TransID,
			Transient:  info.IsRetriable,
		}, tr.ResponseCode, raw)
	}
}

// Transaction inquiry.

type getTransactionDetailsRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	TransID                string                 `json:"transId"`
}

type getTransactionDetailsEnvelope struct {
	GetTransactionDetailsRequest getTransactionDetailsRequest `json:"getTransactionDetailsRequest"`
}

type transactionDetails struct {
	TransID           string  `json:"transId"`
	TransactionStatus string  `json:"transactionStatus"`
	ResponseCode      int     `json:"responseCode"`
	AuthAmount        float64 `json:"authAmount"`
	SettleAmount      float64 `json:"settleAmount"`
}

type getTransactionDetailsResponse struct {
	Transaction transactionDetails `json:"transaction"`
	Messages    apiMessages        `json:"messages"`
}

// GetTransaction fetches the processor's current view of a transaction
func (g *Gateway) GetTransaction(ctx context.Context, externalID string) (*ports.TransactionInquiry, error) {
	envelope := getTransactionDetailsEnvelope{
		GetTransactionDetailsRequest: getTransactionDetailsRequest{
			MerchantAuthentication: g.auth(),
			TransID:                externalID,
		},
	}

	body, err := g.makeRequest(ctx, "getTransactionDetailsRequest", envelope)
	if err != nil {
		return nil, err
	}

	var resp getTransactionDetailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal transaction details: %w", err)
	}

	if !resp.Messages.ok() {
		msg := resp.Messages.first()
		if msg.Code == "E00040" {
			return nil, domain.ErrTxnNotFound
		}
		return nil, fmt.Errorf("get transaction %s: %s %s", externalID, msg.Code, msg.Text)
	}

	inquiry := &ports.TransactionInquiry{
		ExternalID:   resp.Transaction.TransID,
		Status:       inquiryStatus(resp.Transaction.TransactionStatus),
		ResponseCode: strconv.Itoa(resp.Transaction.ResponseCode),
	}
	if resp.Transaction.SettleAmount > 0 {
		settled := decimal.NewFromFloat(resp.Transaction.SettleAmount)
		inquiry.SettleAmount = &settled
	}
	return inquiry, nil
}

// inquiryStatus maps the processor's transaction status vocabulary onto
// the local payment lifecycle.
func inquiryStatus(status string) domain.PaymentStatus {
	switch status {
	case "authorizedPendingCapture":
		return domain.PaymentStatusAuthorized
	case "capturedPendingSettlement":
		return domain.PaymentStatusCaptured
	case "settledSuccessfully":
		return domain.PaymentStatusSettled
	case "declined", "generalError", "failedReview":
		return domain.PaymentStatusFailed
	case "voided":
		return domain.PaymentStatusVoided
	case "refundSettledSuccessfully", "refundPendingSettlement":
		return domain.PaymentStatusRefunded
	case "FDSPendingReview", "FDSAuthorizedPendingReview":
		return domain.PaymentStatusPendingReview
	default:
		return domain.PaymentStatusPending
	}
}

func formatExpiry(month, year int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func buildBillTo(card *domain.CardDetails, addr *domain.BillingAddress) *billToBlock {
	b := &billToBlock{
		Address: addr.Line1,
		City:    addr.City,
		State:   addr.State,
		Zip:     addr.PostalCode,
		Country: addr.Country,
	}
	if addr.Line2 != "" {
		b.Address = addr.Line1 + ", " + addr.Line2
	}
	if card != nil && card.CardholderName != "" {
		b.FirstName, b.LastName = splitName(card.CardholderName)
	}
	return b
}

func splitName(full string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// buildUserFields emits metadata in sorted key order so request bodies are
// deterministic for signing and tests.
func buildUserFields(metadata map[string]string) *userFieldsBlock {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]userField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, userField{Name: k, Value: metadata[k]})
	}
	return &userFieldsBlock{UserField: fields}
}
