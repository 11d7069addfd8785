package payment

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/handlers/respond"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	"github.com/recurpay/billing-gateway/pkg/observability"
)

// Handler exposes the payment orchestrator over HTTP
type Handler struct {
	service serviceports.PaymentService
	orders  serviceports.OrderService
	logger  ports.Logger
}

// NewHandler creates a new payment handler
func NewHandler(service serviceports.PaymentService, orders serviceports.OrderService, logger ports.Logger) *Handler {
	return &Handler{service: service, orders: orders, logger: logger}
}

// RegisterRoutes mounts the payment endpoints on the router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/payments/purchase", h.Purchase).Methods(http.MethodPost)
	r.HandleFunc("/payments/authorize", h.Authorize).Methods(http.MethodPost)
	r.HandleFunc("/payments/capture", h.Capture).Methods(http.MethodPost)
	r.HandleFunc("/payments/void", h.Void).Methods(http.MethodPost)
	r.HandleFunc("/payments/refund", h.Refund).Methods(http.MethodPost)
	r.HandleFunc("/payments/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/payments", h.List).Methods(http.MethodGet)
	r.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
}

// paymentMethodBody carries raw card details for a one-time charge.
type paymentMethodBody struct {
	Type           string `json:"type"`
	CardNumber     string `json:"card_number"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name"`
}

// customerBody identifies or creates the paying customer.
type customerBody struct {
	Email          string                 `json:"email"`
	FirstName      string                 `json:"first_name"`
	LastName       string                 `json:"last_name"`
	Phone          string                 `json:"phone"`
	BillingAddress *domain.BillingAddress `json:"billing_address"`
}

// chargeRequest is the body of purchase and authorize. Exactly one of
// payment_method (raw card) or payment_method_id (stored) must be set.
type chargeRequest struct {
	Amount            decimal.Decimal    `json:"amount"`
	Currency          string             `json:"currency"`
	PaymentMethod     *paymentMethodBody `json:"payment_method"`
	PaymentMethodID   *string            `json:"payment_method_id"`
	Customer          *customerBody      `json:"customer"`
	CustomerID        *string            `json:"customer_id"`
	OrderID           *string            `json:"order_id"`
	Description       string             `json:"description"`
	InvoiceNumber     string             `json:"invoice_number"`
	SavePaymentMethod bool               `json:"save_payment_method"`
	IdempotencyKey    string             `json:"idempotency_key"`
}

type captureRequest struct {
	TransactionID  string           `json:"transaction_id"`
	Amount         *decimal.Decimal `json:"amount"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type voidRequest struct {
	TransactionID  string `json:"transaction_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type refundRequest struct {
	TransactionID  string           `json:"transaction_id"`
	Amount         *decimal.Decimal `json:"amount"`
	Reason         string           `json:"reason"`
	IdempotencyKey string           `json:"idempotency_key"`
}

// Purchase authorizes and captures in one step
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var body chargeRequest
	if !decode(w, r, h.logger, &body) {
		return
	}

	h.logger.Info("purchase request received",
		ports.String("amount", body.Amount.StringFixed(2)),
		ports.String("currency", body.Currency))

	req := &serviceports.PurchaseRequest{
		Amount:            body.Amount,
		Currency:          body.Currency,
		PaymentMethodID:   body.PaymentMethodID,
		CustomerID:        body.CustomerID,
		OrderID:           body.OrderID,
		Description:       body.Description,
		InvoiceNumber:     body.InvoiceNumber,
		SavePaymentMethod: body.SavePaymentMethod,
		IdempotencyKey:    body.IdempotencyKey,
		CorrelationID:     auth.RequestIDFrom(r.Context()),
	}
	applyFunding(&req.Card, &req.BillingAddress, &req.CustomerEmail, &req.FirstName, &req.LastName, &body)

	start := time.Now()
	tx, err := h.service.Purchase(r.Context(), req)
	if err != nil {
		recordDecline(domain.TransactionTypePurchase, err)
		respond.Error(w, h.logger, err)
		return
	}
	recordOutcome(tx, start)
	respond.JSON(w, http.StatusCreated, tx)
}

// Authorize holds funds without capturing
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var body chargeRequest
	if !decode(w, r, h.logger, &body) {
		return
	}

	h.logger.Info("authorize request received",
		ports.String("amount", body.Amount.StringFixed(2)),
		ports.String("currency", body.Currency))

	req := &serviceports.AuthorizeRequest{
		Amount:            body.Amount,
		Currency:          body.Currency,
		PaymentMethodID:   body.PaymentMethodID,
		CustomerID:        body.CustomerID,
		OrderID:           body.OrderID,
		Description:       body.Description,
		InvoiceNumber:     body.InvoiceNumber,
		SavePaymentMethod: body.SavePaymentMethod,
		IdempotencyKey:    body.IdempotencyKey,
		CorrelationID:     auth.RequestIDFrom(r.Context()),
	}
	applyFunding(&req.Card, &req.BillingAddress, &req.CustomerEmail, &req.FirstName, &req.LastName, &body)

	start := time.Now()
	tx, err := h.service.Authorize(r.Context(), req)
	if err != nil {
		recordDecline(domain.TransactionTypeAuthorize, err)
		respond.Error(w, h.logger, err)
		return
	}
	recordOutcome(tx, start)
	respond.JSON(w, http.StatusCreated, tx)
}

// Capture settles a prior authorization
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var body captureRequest
	if !decode(w, r, h.logger, &body) {
		return
	}
	if body.TransactionID == "" {
		respond.Error(w, h.logger,
			domain.NewDomainError(domain.ErrorCodeValidationMissingField, "transaction_id is required"))
		return
	}

	start := time.Now()
	tx, err := h.service.Capture(r.Context(), &serviceports.CaptureRequest{
		TransactionID:  body.TransactionID,
		Amount:         body.Amount,
		IdempotencyKey: body.IdempotencyKey,
		CorrelationID:  auth.RequestIDFrom(r.Context()),
	})
	if err != nil {
		recordDecline(domain.TransactionTypeCapture, err)
		respond.Error(w, h.logger, err)
		return
	}
	recordOutcome(tx, start)
	respond.JSON(w, http.StatusOK, tx)
}

// Void cancels an authorization before capture
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	var body voidRequest
	if !decode(w, r, h.logger, &body) {
		return
	}
	if body.TransactionID == "" {
		respond.Error(w, h.logger,
			domain.NewDomainError(domain.ErrorCodeValidationMissingField, "transaction_id is required"))
		return
	}

	start := time.Now()
	tx, err := h.service.Void(r.Context(), &serviceports.VoidRequest{
		TransactionID:  body.TransactionID,
		IdempotencyKey: body.IdempotencyKey,
		CorrelationID:  auth.RequestIDFrom(r.Context()),
	})
	if err != nil {
		recordDecline(domain.TransactionTypeVoid, err)
		respond.Error(w, h.logger, err)
		return
	}
	recordOutcome(tx, start)
	respond.JSON(w, http.StatusOK, tx)
}

// Refund returns funds, fully or partially
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var body refundRequest
	if !decode(w, r, h.logger, &body) {
		return
	}
	if body.TransactionID == "" {
		respond.Error(w, h.logger,
			domain.NewDomainError(domain.ErrorCodeValidationMissingField, "transaction_id is required"))
		return
	}

	start := time.Now()
	tx, err := h.service.Refund(r.Context(), &serviceports.RefundRequest{
		TransactionID:  body.TransactionID,
		Amount:         body.Amount,
		Reason:         body.Reason,
		IdempotencyKey: body.IdempotencyKey,
		CorrelationID:  auth.RequestIDFrom(r.Context()),
	})
	if err != nil {
		recordDecline(domain.TransactionTypeRefund, err)
		respond.Error(w, h.logger, err)
		return
	}
	recordOutcome(tx, start)
	respond.JSON(w, http.StatusOK, tx)
}

// Get retrieves one transaction
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, tx)
}

// List lists a customer's transactions, newest first
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		respond.Error(w, h.logger,
			domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer_id is required"))
		return
	}

	limit, offset := pagination(r)
	txns, err := h.service.ListTransactions(r.Context(), customerID, limit, offset)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"transactions": txns})
}

type orderRequest struct {
	CustomerID string          `json:"customer_id"`
	Currency   string          `json:"currency"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Discount   decimal.Decimal `json:"discount"`
}

// CreateOrder registers an order for later payments to reference
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequest
	if !decode(w, r, h.logger, &body) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), &serviceports.CreateOrderRequest{
		CustomerID: body.CustomerID,
		Currency:   body.Currency,
		Subtotal:   body.Subtotal,
		Tax:        body.Tax,
		Shipping:   body.Shipping,
		Discount:   body.Discount,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, order)
}

// GetOrder retrieves one order with amounts aggregated from its
// transactions
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, detail)
}

// ListOrders lists a customer's orders, newest first
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		respond.Error(w, h.logger,
			domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer_id is required"))
		return
	}

	limit, offset := pagination(r)
	orders, err := h.orders.ListOrders(r.Context(), customerID, limit, offset)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// applyFunding copies the one-time card and customer identity fields
// from the request body onto a charge request.
func applyFunding(card **domain.CardDetails, addr **domain.BillingAddress, email, first, last *string, body *chargeRequest) {
	if body.PaymentMethod != nil {
		*card = &domain.CardDetails{
			Number:         body.PaymentMethod.CardNumber,
			CVV:            body.PaymentMethod.CVV,
			CardholderName: body.PaymentMethod.CardholderName,
			ExpiryMonth:    body.PaymentMethod.ExpiryMonth,
			ExpiryYear:     body.PaymentMethod.ExpiryYear,
		}
	}
	if body.Customer != nil {
		*email = body.Customer.Email
		*first = body.Customer.FirstName
		*last = body.Customer.LastName
		*addr = body.Customer.BillingAddress
	}
}

// recordOutcome counts a completed operation toward the payment metrics.
func recordOutcome(tx *domain.Transaction, start time.Time) {
	code := ""
	if tx.ResponseCode != nil {
		code = *tx.ResponseCode
	}
	observability.RecordPayment(string(tx.Type), string(tx.Status), code,
		tx.Currency, tx.Amount.Shift(2).IntPart(), time.Since(start).Seconds())
}

// recordDecline counts processor declines; other failures are visible
// through the HTTP metrics.
func recordDecline(txType domain.TransactionType, err error) {
	if domain.GetErrorCode(err) == domain.ErrorCodeGatewayDeclined {
		observability.RecordPaymentDeclined(string(txType))
	}
}

// decode parses the JSON body, responding 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, logger ports.Logger, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond.Error(w, logger,
			domain.WrapError(domain.ErrorCodeValidationFailed, "invalid request body", err))
		return false
	}
	return true
}

// pagination reads limit/offset query params with sane defaults
func pagination(r *http.Request) (int32, int32) {
	limit := int32(50)
	offset := int32(0)
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 32); err == nil && v > 0 && v <= 500 {
		limit = int32(v)
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 32); err == nil && v >= 0 {
		offset = int32(v)
	}
	return limit, offset
}
