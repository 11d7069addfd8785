package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// Service implements serviceports.PaymentService. Every mutating
// operation runs one database transaction and makes at most one
// processor call; the PENDING row insert carries the idempotency key,
// so a unique index stops a concurrent duplicate before it can reach
// the processor.
type Service struct {
	db             ports.DBPort
	transactions   ports.TransactionRepository
	orders         ports.OrderRepository
	customers      ports.CustomerRepository
	paymentMethods ports.PaymentMethodRepository
	idempotency    ports.IdempotencyStore
	gateway        ports.ProcessorGateway
	events         ports.EventPublisher
	logger         ports.Logger
}

// NewService creates a new payment service
func NewService(
	db ports.DBPort,
	transactions ports.TransactionRepository,
	orders ports.OrderRepository,
	customers ports.CustomerRepository,
	paymentMethods ports.PaymentMethodRepository,
	idempotency ports.IdempotencyStore,
	gateway ports.ProcessorGateway,
	events ports.EventPublisher,
	logger ports.Logger,
) *Service {
	return &Service{
		db:             db,
		transactions:   transactions,
		orders:         orders,
		customers:      customers,
		paymentMethods: paymentMethods,
		idempotency:    idempotency,
		gateway:        gateway,
		events:         events,
		logger:         logger,
	}
}

// chargeParams unifies purchase and authorize inputs.
type chargeParams struct {
	card            *domain.CardDetails
	billing         *domain.BillingAddress
	paymentMethodID *string
	customerID      *string
	orderID         *string
	amount          decimal.Decimal
	currency        string
	email           string
	firstName       string
	lastName        string
	description     string
	invoiceNumber   string
	correlationID   string
	idempotencyKey  string
	saveMethod      bool
}

// fundingSource is the resolved customer and charge instrument.
type fundingSource struct {
	customer *domain.Customer
	method   *domain.PaymentMethod
}

// chargeRecord is the masked request summary kept in the request blob.
// The PAN and CVV never touch storage.
type chargeRecord struct {
	LastFour       string `json:"last_four,omitempty"`
	CardholderName string `json:"cardholder_name,omitempty"`
	Email          string `json:"email,omitempty"`
	Description    string `json:"description,omitempty"`
	InvoiceNumber  string `json:"invoice_number,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Purchase authorizes and captures in one step
func (s *Service) Purchase(ctx context.Context, req *serviceports.PurchaseRequest) (*domain.Transaction, error) {
	return s.charge(ctx, domain.TransactionTypePurchase, chargeParams{
		card:            req.Card,
		billing:         req.BillingAddress,
		paymentMethodID: req.PaymentMethodID,
		customerID:      req.CustomerID,
		orderID:         req.OrderID,
		amount:          req.Amount,
		currency:        req.Currency,
		email:           req.CustomerEmail,
		firstName:       req.FirstName,
		lastName:        req.LastName,
		description:     req.Description,
		invoiceNumber:   req.InvoiceNumber,
		correlationID:   req.CorrelationID,
		idempotencyKey:  req.IdempotencyKey,
		saveMethod:      req.SavePaymentMethod,
	})
}

// Authorize holds funds on a payment method without capturing
func (s *Service) Authorize(ctx context.Context, req *serviceports.AuthorizeRequest) (*domain.Transaction, error) {
	return s.charge(ctx, domain.TransactionTypeAuthorize, chargeParams{
		card:            req.Card,
		billing:         req.BillingAddress,
		paymentMethodID: req.PaymentMethodID,
		customerID:      req.CustomerID,
		orderID:         req.OrderID,
		amount:          req.Amount,
		currency:        req.Currency,
		email:           req.CustomerEmail,
		firstName:       req.FirstName,
		lastName:        req.LastName,
		description:     req.Description,
		invoiceNumber:   req.InvoiceNumber,
		correlationID:   req.CorrelationID,
		idempotencyKey:  req.IdempotencyKey,
		saveMethod:      req.SavePaymentMethod,
	})
}

func (s *Service) charge(ctx context.Context, txnType domain.TransactionType, req chargeParams) (*domain.Transaction, error) {
	requestHash := chargeHash(txnType, req)
	if txn, err := s.replay(ctx, ports.IdempotencyFamilyPayment, req.idempotencyKey, requestHash); err != nil || txn != nil {
		return txn, err
	}

	if err := validateCharge(&req); err != nil {
		return nil, err
	}

	correlationID := req.correlationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	var (
		txn     *domain.Transaction
		funding fundingSource
	)
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		funding, err = s.resolveFunding(ctx, tx, req)
		if err != nil {
			return err
		}

		if req.orderID != nil {
			if err := s.checkOrder(ctx, tx, *req.orderID, funding.customer.ID); err != nil {
				return err
			}
		}

		txn = newChargeTransaction(txnType, req, funding, correlationID)
		if err := s.transactions.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		outcome, err := s.sendCharge(ctx, txnType, req, funding, correlationID)
		if err != nil {
			return fmt.Errorf("processor charge: %w", err)
		}

		applyOutcome(txn, outcome, approvedStatus(txnType))
		if err := s.transactions.Update(ctx, tx, txn); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		if funding.method != nil && outcome.IsApproved() {
			if err := s.paymentMethods.TouchLastUsed(ctx, tx, funding.method.ID); err != nil {
				s.logger.Warn("touch payment method failed",
					ports.String("payment_method_id", funding.method.ID),
					ports.Err(err))
			}
		}

		if err := s.record(ctx, tx, ports.IdempotencyFamilyPayment, req.idempotencyKey, requestHash, txn); err != nil {
			return err
		}
		return s.publishEvent(ctx, tx, txn)
	})
	if err != nil {
		s.logger.Error("charge failed",
			ports.String("type", string(txnType)),
			ports.String("correlation_id", correlationID),
			ports.Err(err))
		return nil, err
	}

	// Opportunistic and non-fatal: processor profile creation and card
	// tokenization retry on the next payment if they fail here.
	s.backfillProfiles(ctx, funding, req, txn)

	s.logger.Info("charge completed",
		ports.String("transaction_id", txn.ID),
		ports.String("type", string(txnType)),
		ports.String("status", string(txn.Status)),
		ports.String("response_code", deref(txn.ResponseCode)))
	return txn, nil
}

// Capture completes a previously authorized payment
func (s *Service) Capture(ctx context.Context, req *serviceports.CaptureRequest) (*domain.Transaction, error) {
	requestHash := referenceHash("capture", req.TransactionID, req.Amount)
	if txn, err := s.replay(ctx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestHash); err != nil || txn != nil {
		return txn, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	var child *domain.Transaction
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		prior, err := s.transactions.GetByIDForUpdate(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		if !prior.CanBeCaptured() || prior.GetExternalProcessorID() == "" {
			return domain.ErrTxnInvalidState
		}

		amount := prior.Amount
		if req.Amount != nil {
			amount = *req.Amount
			if !amount.IsPositive() || amount.GreaterThan(prior.Amount) {
				return domain.ErrValidationAmountInvalid
			}
		}

		child = newReferenceTransaction(domain.TransactionTypeCapture, prior, amount, req.IdempotencyKey, correlationID)
		if err := s.transactions.Create(ctx, tx, child); err != nil {
			return fmt.Errorf("create capture transaction: %w", err)
		}

		outcome, err := s.gateway.Capture(ctx, &ports.CaptureRequest{
			ExternalID: prior.GetExternalProcessorID(),
			Amount:     req.Amount,
		})
		if err != nil {
			return fmt.Errorf("processor capture: %w", err)
		}

		applyOutcome(child, outcome, domain.PaymentStatusSettled)
		if child.ExternalProcessorID == nil {
			child.ExternalProcessorID = prior.ExternalProcessorID
		}
		if err := s.transactions.Update(ctx, tx, child); err != nil {
			return fmt.Errorf("update capture transaction: %w", err)
		}

		if outcome.IsApproved() {
			if err := transition(prior, domain.PaymentStatusCaptured); err != nil {
				return err
			}
			if err := s.transactions.Update(ctx, tx, prior); err != nil {
				return fmt.Errorf("update authorization: %w", err)
			}
		}

		if err := s.record(ctx, tx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestHash, child); err != nil {
			return err
		}
		return s.publishEvent(ctx, tx, child)
	})
	if err != nil {
		s.logger.Error("capture failed",
			ports.String("transaction_id", req.TransactionID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("capture completed",
		ports.String("transaction_id", child.ID),
		ports.String("parent_id", req.TransactionID),
		ports.String("status", string(child.Status)))
	return child, nil
}

// Void cancels an authorization that has not been captured
func (s *Service) Void(ctx context.Context, req *serviceports.VoidRequest) (*domain.Transaction, error) {
	requestHash := referenceHash("void", req.TransactionID, nil)
	if txn, err := s.replay(ctx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestHash); err != nil || txn != nil {
		return txn, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	var child *domain.Transaction
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		prior, err := s.transactions.GetByIDForUpdate(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		if !prior.CanBeVoided() || prior.GetExternalProcessorID() == "" {
			return domain.ErrTxnInvalidState
		}

		child = newReferenceTransaction(domain.TransactionTypeVoid, prior, prior.Amount, req.IdempotencyKey, correlationID)
		if err := s.transactions.Create(ctx, tx, child); err != nil {
			return fmt.Errorf("create void transaction: %w", err)
		}

		outcome, err := s.gateway.Void(ctx, prior.GetExternalProcessorID())
		if err != nil {
			return fmt.Errorf("processor void: %w", err)
		}

		applyOutcome(child, outcome, domain.PaymentStatusSettled)
		if child.ExternalProcessorID == nil {
			child.ExternalProcessorID = prior.ExternalProcessorID
		}
		if err := s.transactions.Update(ctx, tx, child); err != nil {
			return fmt.Errorf("update void transaction: %w", err)
		}

		if outcome.IsApproved() {
			if err := transition(prior, domain.PaymentStatusVoided); err != nil {
				return err
			}
			if err := s.transactions.Update(ctx, tx, prior); err != nil {
				return fmt.Errorf("update voided authorization: %w", err)
			}
		}

		if err := s.record(ctx, tx, ports.IdempotencyFamilyPayment, req.IdempotencyKey, requestHash, child); err != nil {
			return err
		}
		return s.publishEvent(ctx, tx, child)
	})
	if err != nil {
		s.logger.Error("void failed",
			ports.String("transaction_id", req.TransactionID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("void completed",
		ports.String("transaction_id", child.ID),
		ports.String("parent_id", req.TransactionID),
		ports.String("status", string(child.Status)))
	return child, nil
}

// Refund returns funds to the customer, fully or partially
func (s *Service) Refund(ctx context.Context, req *serviceports.RefundRequest) (*domain.Transaction, error) {
	requestHash := referenceHash("refund", req.TransactionID, req.Amount)
	if txn, err := s.replay(ctx, ports.IdempotencyFamilyRefund, req.IdempotencyKey, requestHash); err != nil || txn != nil {
		return txn, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	var child *domain.Transaction
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		prior, err := s.transactions.GetByIDForUpdate(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		// Refunds target the originating charge, never another child row;
		// the settled-refund aggregation groups by parent id.
		if prior.IsRefundType() || prior.Type == domain.TransactionTypeVoid {
			return domain.ErrTxnInvalidState
		}
		if !prior.CanBeRefunded() || prior.GetExternalProcessorID() == "" {
			return domain.ErrTxnInvalidState
		}

		refunded, err := s.transactions.SumSettledRefunds(ctx, tx, prior.ID)
		if err != nil {
			return err
		}
		remaining := prior.Amount.Sub(refunded)

		amount := remaining
		if req.Amount != nil {
			amount = *req.Amount
		}
		if !amount.IsPositive() || amount.GreaterThan(remaining) {
			return domain.ErrValidationAmountInvalid
		}

		refundType := domain.TransactionTypeRefund
		if amount.LessThan(remaining) {
			refundType = domain.TransactionTypePartialRefund
		}

		child = newReferenceTransaction(refundType, prior, amount, req.IdempotencyKey, correlationID)
		if req.Reason != "" {
			child.RequestBlob, _ = json.Marshal(chargeRecord{Reason: req.Reason})
		}
		if err := s.transactions.Create(ctx, tx, child); err != nil {
			return fmt.Errorf("create refund transaction: %w", err)
		}

		lastFour, err := s.refundLastFour(ctx, tx, prior)
		if err != nil {
			return err
		}

		outcome, err := s.gateway.Refund(ctx, &ports.RefundRequest{
			ExternalID: prior.GetExternalProcessorID(),
			Amount:     &amount,
			LastFour:   lastFour,
		})
		if err != nil {
			return fmt.Errorf("processor refund: %w", err)
		}

		applyOutcome(child, outcome, domain.PaymentStatusSettled)
		if err := s.transactions.Update(ctx, tx, child); err != nil {
			return fmt.Errorf("update refund transaction: %w", err)
		}

		if outcome.IsApproved() {
			next := domain.PaymentStatusPartiallyRefunded
			if refunded.Add(amount).GreaterThanOrEqual(prior.Amount) {
				next = domain.PaymentStatusRefunded
			}
			if err := transition(prior, next); err != nil {
				return err
			}
			if err := s.transactions.Update(ctx, tx, prior); err != nil {
				return fmt.Errorf("update refunded transaction: %w", err)
			}
		}

		if err := s.record(ctx, tx, ports.IdempotencyFamilyRefund, req.IdempotencyKey, requestHash, child); err != nil {
			return err
		}
		return s.publishEvent(ctx, tx, child)
	})
	if err != nil {
		s.logger.Error("refund failed",
			ports.String("transaction_id", req.TransactionID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("refund completed",
		ports.String("transaction_id", child.ID),
		ports.String("parent_id", req.TransactionID),
		ports.String("amount", child.Amount.StringFixed(2)),
		ports.String("status", string(child.Status)))
	return child, nil
}

// GetTransaction retrieves the current transaction view
func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.transactions.GetByID(ctx, nil, id)
}

// ListTransactions lists a customer's transactions, newest first
func (s *Service) ListTransactions(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.transactions.ListByCustomer(ctx, nil, customerID, limit, offset)
}

// resolveFunding loads and checks the charge instrument, creating the
// customer on first sight for raw card payments.
func (s *Service) resolveFunding(ctx context.Context, tx ports.DBTX, req chargeParams) (fundingSource, error) {
	if req.paymentMethodID != nil {
		method, err := s.paymentMethods.GetByID(ctx, tx, *req.paymentMethodID)
		if err != nil {
			return fundingSource{}, err
		}
		if !method.CanBeUsed() {
			if method.IsCard() && method.IsExpired() {
				return fundingSource{}, domain.ErrPMExpired
			}
			return fundingSource{}, domain.ErrPMInvalid
		}
		customer, err := s.customers.GetByID(ctx, tx, method.CustomerID)
		if err != nil {
			return fundingSource{}, err
		}
		if !customer.HasProcessorProfile() {
			return fundingSource{}, domain.NewDomainError(domain.ErrorCodePMInvalid,
				"stored payment method has no processor profile")
		}
		return fundingSource{customer: customer, method: method}, nil
	}

	customer, err := s.resolveCustomer(ctx, tx, req)
	if err != nil {
		return fundingSource{}, err
	}
	return fundingSource{customer: customer}, nil
}

func (s *Service) resolveCustomer(ctx context.Context, tx ports.DBTX, req chargeParams) (*domain.Customer, error) {
	if req.customerID != nil {
		customer, err := s.customers.GetByID(ctx, tx, *req.customerID)
		if err != nil {
			return nil, err
		}
		if !customer.IsActive {
			return nil, domain.ErrCustomerInactive
		}
		return customer, nil
	}

	customer, err := s.customers.GetByEmail(ctx, tx, req.email)
	if err == nil {
		if !customer.IsActive {
			return nil, domain.ErrCustomerInactive
		}
		return customer, nil
	}
	if !domain.IsDomainError(err, domain.ErrorCodeCustomerNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	customer = &domain.Customer{
		ID:             uuid.New().String(),
		Email:          req.email,
		FirstName:      req.firstName,
		LastName:       req.lastName,
		BillingAddress: req.billing,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.customers.Create(ctx, tx, customer); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return customer, nil
}

func (s *Service) sendCharge(ctx context.Context, txnType domain.TransactionType, req chargeParams, funding fundingSource, correlationID string) (*ports.Outcome, error) {
	gwReq := &ports.ChargeRequest{
		Amount:        req.amount,
		Currency:      req.currency,
		CustomerEmail: funding.customer.Email,
		OrderID:       deref(req.orderID),
		InvoiceNumber: req.invoiceNumber,
		CorrelationID: correlationID,
	}
	if funding.method != nil {
		gwReq.CustomerProfileID = *funding.customer.ProcessorProfileID
		gwReq.PaymentProfileID = funding.method.Token
	} else {
		gwReq.Card = req.card
		gwReq.Billing = req.billing
	}

	if txnType == domain.TransactionTypeAuthorize {
		return s.gateway.Authorize(ctx, gwReq)
	}
	return s.gateway.Purchase(ctx, gwReq)
}

// replay returns the stored response when the idempotency key has been
// recorded, byte-for-byte. A different request under a recorded key is
// a conflict.
func (s *Service) replay(ctx context.Context, family, key, requestHash string) (*domain.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := s.idempotency.Lookup(ctx, nil, family, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.RequestHash != requestHash {
		return nil, domain.ErrIdempotencyConflict
	}

	var txn domain.Transaction
	if err := json.Unmarshal(rec.ResponseBody, &txn); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	s.logger.Info("replaying stored response for idempotency key",
		ports.String("idempotency_key", key),
		ports.String("transaction_id", txn.ID))
	return &txn, nil
}

// record stores the response under the idempotency key, inside the same
// database transaction as the outcome it protects.
func (s *Service) record(ctx context.Context, tx ports.DBTX, family, key, requestHash string, txn *domain.Transaction) error {
	if key == "" {
		return nil
	}
	body, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("encode response for idempotency record: %w", err)
	}
	if err := s.idempotency.Record(ctx, tx, family, key, requestHash, body); err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	return nil
}

// publishEvent enqueues a merchant notification once the row reaches a
// reportable state. PENDING rows emit nothing until resolved.
func (s *Service) publishEvent(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) error {
	if s.events == nil || txn.Status == domain.PaymentStatusPending {
		return nil
	}
	suffix := eventSuffix(txn.Type)
	if txn.Status == domain.PaymentStatusPendingReview {
		suffix = domain.EventPaymentFraudHeld
	}
	if err := s.events.PublishTransactionEvent(ctx, tx, domain.OutboundEvent(suffix), txn); err != nil {
		return fmt.Errorf("enqueue transaction event: %w", err)
	}
	return nil
}

// backfillProfiles runs after the charge commits. It creates the
// processor customer profile on first sight and, when requested,
// tokenizes the card as a stored payment method. Failures are logged
// and retried on a later payment; they never fail the charge.
func (s *Service) backfillProfiles(ctx context.Context, funding fundingSource, req chargeParams, txn *domain.Transaction) {
	if funding.customer == nil || txn == nil {
		return
	}
	if txn.Status != domain.PaymentStatusSettled && txn.Status != domain.PaymentStatusAuthorized {
		return
	}

	customer := funding.customer
	if !customer.HasProcessorProfile() {
		outcome, err := s.gateway.CreateCustomerProfile(ctx, &ports.CustomerProfileRequest{
			Email:             customer.Email,
			FirstName:         customer.FirstName,
			LastName:          customer.LastName,
			ExternalReference: customer.ID,
		})
		if err != nil || !outcome.IsApproved() {
			s.logger.Warn("customer profile backfill failed",
				ports.String("customer_id", customer.ID),
				ports.String("detail", outcomeDetail(outcome, err)))
			return
		}
		profileID := outcome.Approved.ExternalID
		if err := s.customers.SetProcessorProfileID(ctx, nil, customer.ID, profileID); err != nil {
			s.logger.Warn("persist processor profile id failed",
				ports.String("customer_id", customer.ID),
				ports.Err(err))
			return
		}
		customer.ProcessorProfileID = &profileID
		s.logger.Info("processor profile created",
			ports.String("customer_id", customer.ID))
	}

	if req.saveMethod && req.card != nil && funding.method == nil {
		s.storePaymentMethod(ctx, customer, req)
	}
}

func (s *Service) storePaymentMethod(ctx context.Context, customer *domain.Customer, req chargeParams) {
	outcome, err := s.gateway.CreatePaymentProfile(ctx, &ports.PaymentProfileRequest{
		Card:              req.card,
		Billing:           req.billing,
		CustomerProfileID: *customer.ProcessorProfileID,
	})
	if err != nil || !outcome.IsApproved() {
		s.logger.Warn("card tokenization failed",
			ports.String("customer_id", customer.ID),
			ports.String("detail", outcomeDetail(outcome, err)))
		return
	}

	month, year := req.card.ExpiryMonth, req.card.ExpiryYear
	now := time.Now().UTC()
	method := &domain.PaymentMethod{
		ID:          uuid.New().String(),
		CustomerID:  customer.ID,
		Kind:        domain.PaymentMethodCard,
		Token:       outcome.Approved.ExternalID,
		Brand:       cardBrand(req.card.Number),
		LastFour:    req.card.LastFour(),
		ExpiryMonth: &month,
		ExpiryYear:  &year,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.paymentMethods.Create(ctx, nil, method); err != nil {
		s.logger.Warn("store payment method failed",
			ports.String("customer_id", customer.ID),
			ports.Err(err))
		return
	}
	s.logger.Info("payment method stored",
		ports.String("payment_method_id", method.ID),
		ports.String("customer_id", customer.ID))
}

// refundLastFour recovers the card's last four digits for the processor
// refund reference, from the stored method or the charge's masked
// request summary.
func (s *Service) refundLastFour(ctx context.Context, tx ports.DBTX, prior *domain.Transaction) (string, error) {
	if prior.PaymentMethodID != nil {
		method, err := s.paymentMethods.GetByID(ctx, tx, *prior.PaymentMethodID)
		if err == nil && method.LastFour != "" {
			return method.LastFour, nil
		}
	}
	if len(prior.RequestBlob) > 0 {
		var rec chargeRecord
		if err := json.Unmarshal(prior.RequestBlob, &rec); err == nil && rec.LastFour != "" {
			return rec.LastFour, nil
		}
	}
	return "", domain.NewDomainError(domain.ErrorCodeTxnProcessingFailed,
		"card reference for refund not available")
}

func newChargeTransaction(txnType domain.TransactionType, req chargeParams, funding fundingSource, correlationID string) *domain.Transaction {
	txn := &domain.Transaction{
		ID:                uuid.New().String(),
		Type:              txnType,
		Status:            domain.PaymentStatusPending,
		PaymentMethodKind: domain.PaymentMethodCard,
		Amount:            req.amount,
		Currency:          req.currency,
		CustomerID:        &funding.customer.ID,
		OrderID:           req.orderID,
		CorrelationID:     correlationID,
		CreatedAt:         time.Now().UTC(),
	}
	if req.idempotencyKey != "" {
		key := req.idempotencyKey
		txn.IdempotencyKey = &key
	}
	if funding.method != nil {
		id := funding.method.ID
		txn.PaymentMethodID = &id
	}

	rec := chargeRecord{
		Email:         funding.customer.Email,
		Description:   req.description,
		InvoiceNumber: req.invoiceNumber,
	}
	if funding.method != nil {
		rec.LastFour = funding.method.LastFour
	} else if req.card != nil {
		rec.LastFour = req.card.LastFour()
		rec.CardholderName = req.card.CardholderName
	}
	txn.RequestBlob, _ = json.Marshal(rec)
	return txn
}

// newReferenceTransaction builds a child row linked to prior for
// capture, void and refund operations.
func newReferenceTransaction(txnType domain.TransactionType, prior *domain.Transaction, amount decimal.Decimal, idempotencyKey, correlationID string) *domain.Transaction {
	parentID := prior.ID
	txn := &domain.Transaction{
		ID:                uuid.New().String(),
		ParentID:          &parentID,
		CustomerID:        prior.CustomerID,
		PaymentMethodID:   prior.PaymentMethodID,
		OrderID:           prior.OrderID,
		Type:              txnType,
		Status:            domain.PaymentStatusPending,
		PaymentMethodKind: prior.PaymentMethodKind,
		Amount:            amount,
		Currency:          prior.Currency,
		CorrelationID:     correlationID,
		CreatedAt:         time.Now().UTC(),
	}
	if idempotencyKey != "" {
		key := idempotencyKey
		txn.IdempotencyKey = &key
	}
	return txn
}

// applyOutcome folds the processor outcome into the transaction row.
// Transient faults leave the row PENDING for reconciliation to resolve.
func applyOutcome(txn *domain.Transaction, outcome *ports.Outcome, approved domain.PaymentStatus) {
	now := time.Now().UTC()
	txn.ProcessedAt = &now
	txn.ResponseBlob = outcome.RawResponse
	if outcome.ResponseCode != "" {
		code := outcome.ResponseCode
		txn.ResponseCode = &code
	}

	switch outcome.Kind {
	case ports.OutcomeApproved:
		setIfPresent(&txn.ExternalProcessorID, outcome.Approved.ExternalID)
		setIfPresent(&txn.AuthCode, outcome.Approved.AuthCode)
		setIfPresent(&txn.AVSResult, outcome.Approved.AVSResult)
		setIfPresent(&txn.CVVResult, outcome.Approved.CVVResult)
		txn.Status = approved

	case ports.OutcomeDeclined:
		setIfPresent(&txn.ExternalProcessorID, outcome.Declined.ExternalID)
		txn.Status = domain.PaymentStatusFailed

	case ports.OutcomeError:
		setIfPresent(&txn.ExternalProcessorID, outcome.Fault.ExternalID)
		switch {
		case outcome.Fault.Code == ports.FaultCodeHeldForReview:
			txn.Status = domain.PaymentStatusPendingReview
		case outcome.Fault.Transient:
			// Stays PENDING; the reconciliation sweep resolves it.
		default:
			txn.Status = domain.PaymentStatusFailed
		}
	}
}

// transition moves a transaction along a legal lifecycle edge.
func transition(txn *domain.Transaction, next domain.PaymentStatus) error {
	if !txn.Status.CanTransitionTo(next) {
		return domain.ErrTxnInvalidState
	}
	txn.Status = next
	return nil
}

func approvedStatus(txnType domain.TransactionType) domain.PaymentStatus {
	if txnType == domain.TransactionTypeAuthorize {
		return domain.PaymentStatusAuthorized
	}
	return domain.PaymentStatusSettled
}

func eventSuffix(txnType domain.TransactionType) string {
	switch txnType {
	case domain.TransactionTypeAuthorize:
		return domain.EventPaymentAuthorizationCreated
	case domain.TransactionTypeCapture:
		return domain.EventPaymentCaptureCreated
	case domain.TransactionTypeVoid:
		return domain.EventPaymentVoidCreated
	case domain.TransactionTypeRefund, domain.TransactionTypePartialRefund:
		return domain.EventPaymentRefundCreated
	default:
		return domain.EventPaymentAuthCaptureCreated
	}
}

// chargeHash fingerprints the request for idempotency conflict
// detection. Only non-sensitive identity fields participate.
func chargeHash(txnType domain.TransactionType, req chargeParams) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s",
		txnType, req.amount.StringFixed(2), req.currency,
		fundingFingerprint(req), req.email, deref(req.orderID))
	return hex.EncodeToString(h.Sum(nil))
}

func fundingFingerprint(req chargeParams) string {
	if req.paymentMethodID != nil {
		return "pm:" + *req.paymentMethodID
	}
	if req.card != nil {
		pan := normalizePAN(req.card.Number)
		return fmt.Sprintf("card:%s:%02d%04d", lastFourOf(pan), req.card.ExpiryMonth, req.card.ExpiryYear)
	}
	return ""
}

func referenceHash(op, transactionID string, amount *decimal.Decimal) string {
	amt := "full"
	if amount != nil {
		amt = amount.StringFixed(2)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", op, transactionID, amt)
	return hex.EncodeToString(h.Sum(nil))
}

func outcomeDetail(outcome *ports.Outcome, err error) string {
	if err != nil {
		return err.Error()
	}
	if outcome == nil {
		return "no outcome"
	}
	switch outcome.Kind {
	case ports.OutcomeDeclined:
		return outcome.Declined.Reason
	case ports.OutcomeError:
		return outcome.Fault.Message
	}
	return string(outcome.Kind)
}

func setIfPresent(dst **string, v string) {
	if v != "" {
		*dst = &v
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
