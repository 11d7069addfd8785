package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// SignatureHeader carries the HMAC-SHA256 of the raw request body,
// hex encoded with an optional "sha256=" scheme prefix.
const SignatureHeader = "X-Processor-Signature"

// InboundConfig configures the ingestion pipeline
type InboundConfig struct {
	// SigningSecret verifies inbound signatures
	SigningSecret string
	// DuplicateWindow suppresses replays of an (event id, event type) pair
	DuplicateWindow time.Duration
	// MaxDispatchAttempts bounds retries after transient dispatch failures
	MaxDispatchAttempts int
	// RetryInterval is the initial delay between dispatch attempts,
	// doubling each retry
	RetryInterval time.Duration
}

// DefaultInboundConfig returns the ingestion defaults
func DefaultInboundConfig() InboundConfig {
	return InboundConfig{
		DuplicateWindow:     60 * time.Minute,
		MaxDispatchAttempts: 3,
		RetryInterval:       time.Second,
	}
}

// InboundService verifies, dedupes and applies processor notifications
// to the transaction ledger. Processors retry undelivered events, so
// every step tolerates replays.
type InboundService struct {
	db           ports.DBPort
	webhooks     ports.WebhookRepository
	transactions ports.TransactionRepository
	events       ports.EventPublisher
	logger       ports.Logger
	cfg          InboundConfig
}

// NewInboundService creates the inbound webhook service
func NewInboundService(
	db ports.DBPort,
	webhooks ports.WebhookRepository,
	transactions ports.TransactionRepository,
	events ports.EventPublisher,
	logger ports.Logger,
	cfg InboundConfig,
) *InboundService {
	def := DefaultInboundConfig()
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = def.DuplicateWindow
	}
	if cfg.MaxDispatchAttempts <= 0 {
		cfg.MaxDispatchAttempts = def.MaxDispatchAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &InboundService{
		db:           db,
		webhooks:     webhooks,
		transactions: transactions,
		events:       events,
		logger:       logger,
		cfg:          cfg,
	}
}

var _ serviceports.WebhookInboundService = (*InboundService)(nil)

// inboundEnvelope is the processor's notification body. Field naming
// follows the processor's JSON dialect.
type inboundEnvelope struct {
	NotificationID string         `json:"notificationId"`
	EventType      string         `json:"eventType"`
	EventDate      time.Time      `json:"eventDate"`
	Payload        inboundPayload `json:"payload"`
}

// inboundPayload is the transaction snapshot inside a notification
type inboundPayload struct {
	ID           string           `json:"id"`
	ResponseCode int              `json:"responseCode"`
	AuthCode     string           `json:"authCode"`
	AVSResponse  string           `json:"avsResponse"`
	AuthAmount   *decimal.Decimal `json:"authAmount"`
	EntityName   string           `json:"entityName"`
}

// Receive processes one raw processor notification. The body must be
// the unmodified request bytes; signature verification runs over them.
func (s *InboundService) Receive(ctx context.Context, rawBody []byte, headers http.Header) (*serviceports.InboundResult, error) {
	if err := s.verifySignature(rawBody, headers.Get(SignatureHeader)); err != nil {
		s.logger.Warn("inbound webhook signature rejected", ports.Err(err))
		return nil, err
	}

	var env inboundEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeValidationFailed, "malformed webhook body", err)
	}
	if env.NotificationID == "" || env.EventType == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField,
			"notificationId and eventType are required")
	}

	duplicate := &serviceports.InboundResult{
		EventID:   env.NotificationID,
		EventType: env.EventType,
		Action:    serviceports.InboundDuplicate,
	}

	now := time.Now().UTC()
	seen, err := s.webhooks.ExistsRecent(ctx, nil, env.NotificationID, env.EventType, now.Add(-s.cfg.DuplicateWindow))
	if err != nil {
		return nil, fmt.Errorf("webhook dedupe lookup: %w", err)
	}
	if seen {
		s.logger.Info("duplicate inbound event suppressed",
			ports.String("event_id", env.NotificationID),
			ports.String("event_type", env.EventType))
		return duplicate, nil
	}

	correlationID := headers.Get(HeaderCorrelationID)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	row := &domain.Webhook{
		ID:             uuid.New().String(),
		EventID:        env.NotificationID,
		EventType:      env.EventType,
		CorrelationID:  correlationID,
		Direction:      domain.WebhookDirectionIn,
		Status:         domain.WebhookStatusProcessing,
		MaxAttempts:    s.cfg.MaxDispatchAttempts,
		RequestBody:    rawBody,
		RequestHeaders: flattenHeaders(headers),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.webhooks.Create(ctx, nil, row); err != nil {
		// The unique (event_id, event_type) index catches replays that
		// raced past the window check.
		if domain.IsDomainError(err, domain.ErrorCodeWebhookDuplicate) {
			return duplicate, nil
		}
		return nil, fmt.Errorf("persist inbound webhook: %w", err)
	}

	var action string
	attempt := 0
	operation := func() error {
		attempt++
		applied, err := s.dispatchOnce(ctx, &env, row, attempt)
		if err != nil {
			var derr *domain.DomainError
			if errors.As(err, &derr) {
				return backoff.Permanent(err)
			}
			s.logger.Warn("inbound dispatch attempt failed",
				ports.String("event_id", env.NotificationID),
				ports.Int("attempt", attempt),
				ports.Err(err))
			return err
		}
		action = applied
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.cfg.MaxDispatchAttempts-1)), ctx))
	if err != nil {
		s.failRow(ctx, row, attempt, err)
		s.logger.Error("inbound event processing failed",
			ports.String("event_id", env.NotificationID),
			ports.String("event_type", env.EventType),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("inbound event processed",
		ports.String("event_id", env.NotificationID),
		ports.String("event_type", env.EventType),
		ports.String("action", action))
	return &serviceports.InboundResult{
		WebhookID: row.ID,
		EventID:   env.NotificationID,
		EventType: env.EventType,
		Action:    action,
	}, nil
}

// verifySignature compares the header signature against an HMAC-SHA256
// of the body in constant time.
func (s *InboundService) verifySignature(body []byte, header string) error {
	if s.cfg.SigningSecret == "" {
		return domain.NewDomainError(domain.ErrorCodeInternalError,
			"inbound webhook signing secret not configured")
	}
	raw := strings.TrimSpace(header)
	if raw == "" {
		return domain.ErrWebhookSignature
	}
	if i := strings.IndexByte(raw, '='); i >= 0 && strings.EqualFold(raw[:i], "sha256") {
		raw = raw[i+1:]
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.SigningSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(raw)), []byte(expected)) {
		return domain.ErrWebhookSignature
	}
	return nil
}

// dispatchOnce applies the event and finalizes the ledger row in a
// single database transaction, so a failed dispatch rolls back to a
// clean slate for the next attempt.
func (s *InboundService) dispatchOnce(ctx context.Context, env *inboundEnvelope, row *domain.Webhook, attempt int) (string, error) {
	action := serviceports.InboundProcessed
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		applied, err := s.dispatch(ctx, tx, env)
		if err != nil {
			return err
		}
		action = applied

		disposition := applied
		row.Status = domain.WebhookStatusDelivered
		row.ResponseBody = &disposition
		row.Attempts = attempt
		row.UpdatedAt = time.Now().UTC()
		if err := s.webhooks.Update(ctx, tx, row); err != nil {
			return fmt.Errorf("finalize inbound webhook: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return action, nil
}

// failRow marks the ledger row failed after retries are exhausted
func (s *InboundService) failRow(ctx context.Context, row *domain.Webhook, attempt int, cause error) {
	msg := cause.Error()
	row.Status = domain.WebhookStatusFailed
	row.LastError = &msg
	row.Attempts = attempt
	row.UpdatedAt = time.Now().UTC()
	if err := s.webhooks.Update(ctx, nil, row); err != nil {
		s.logger.Error("mark inbound webhook failed",
			ports.String("webhook_id", row.ID),
			ports.Err(err))
	}
}

// dispatch routes an event to its applier by type suffix
func (s *InboundService) dispatch(ctx context.Context, tx ports.DBTX, env *inboundEnvelope) (string, error) {
	switch {
	case domain.MatchesEvent(env.EventType, domain.EventPaymentAuthCaptureCreated):
		return s.applyChargeResult(ctx, tx, env, domain.PaymentStatusSettled, domain.EventPaymentAuthCaptureCreated)
	case domain.MatchesEvent(env.EventType, domain.EventPaymentAuthorizationCreated):
		return s.applyChargeResult(ctx, tx, env, domain.PaymentStatusAuthorized, domain.EventPaymentAuthorizationCreated)
	case domain.MatchesEvent(env.EventType, domain.EventPaymentCaptureCreated):
		return s.applySettlement(ctx, tx, env)
	case domain.MatchesEvent(env.EventType, domain.EventPaymentRefundCreated):
		return s.applyRefund(ctx, tx, env)
	case domain.MatchesEvent(env.EventType, domain.EventPaymentVoidCreated):
		return s.applyVoid(ctx, tx, env)
	case domain.MatchesEvent(env.EventType, domain.EventPaymentFraudApproved):
		return s.applyFraudDecision(ctx, tx, env, domain.PaymentStatusSettled, domain.EventPaymentFraudApproved)
	case domain.MatchesEvent(env.EventType, domain.EventPaymentFraudDeclined):
		return s.applyFraudDecision(ctx, tx, env, domain.PaymentStatusFailed, domain.EventPaymentFraudDeclined)
	case domain.MatchesEvent(env.EventType, domain.EventPaymentFraudHeld):
		return s.applyFraudDecision(ctx, tx, env, domain.PaymentStatusPendingReview, domain.EventPaymentFraudHeld)
	default:
		s.logger.Info("unhandled inbound event type",
			ports.String("event_type", env.EventType))
		return serviceports.InboundNotProcessed, nil
	}
}

// applyChargeResult resolves a submitted charge: response code 1 is an
// approval, anything else a decline.
func (s *InboundService) applyChargeResult(ctx context.Context, tx ports.DBTX, env *inboundEnvelope, approved domain.PaymentStatus, suffix string) (string, error) {
	txn, err := s.lockByProcessorID(ctx, tx, env.Payload.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return s.unknownTransaction(env)
		}
		return "", err
	}

	target := approved
	if env.Payload.ResponseCode != 1 {
		target = domain.PaymentStatusFailed
	}
	return s.resolve(ctx, tx, txn, target, env, suffix)
}

// applySettlement marks a captured charge as settled
func (s *InboundService) applySettlement(ctx context.Context, tx ports.DBTX, env *inboundEnvelope) (string, error) {
	txn, err := s.lockByProcessorID(ctx, tx, env.Payload.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return s.unknownTransaction(env)
		}
		return "", err
	}
	return s.resolve(ctx, tx, txn, domain.PaymentStatusSettled, env, domain.EventPaymentCaptureCreated)
}

// applyRefund reports a processed refund. The originating charge moves
// to REFUNDED once settled refunds cover its full amount, otherwise
// PARTIALLY_REFUNDED.
func (s *InboundService) applyRefund(ctx context.Context, tx ports.DBTX, env *inboundEnvelope) (string, error) {
	txn, err := s.transactions.GetByProcessorID(ctx, tx, env.Payload.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return s.unknownTransaction(env)
		}
		return "", err
	}

	parentID := txn.ID
	if txn.ParentID != nil {
		parentID = *txn.ParentID
	}
	parent, err := s.transactions.GetByIDForUpdate(ctx, tx, parentID)
	if err != nil {
		return "", err
	}

	// Settle our own refund row first when the processor call never
	// came back; its amount then counts toward the total below.
	if txn.ParentID != nil {
		child, err := s.transactions.GetByIDForUpdate(ctx, tx, txn.ID)
		if err != nil {
			return "", err
		}
		if child.Status == domain.PaymentStatusPending {
			child.Status = domain.PaymentStatusSettled
			now := time.Now().UTC()
			child.ProcessedAt = &now
			code := strconv.Itoa(env.Payload.ResponseCode)
			child.ResponseCode = &code
			if err := s.transactions.Update(ctx, tx, child); err != nil {
				return "", fmt.Errorf("update refund transaction %s: %w", child.ID, err)
			}
		}
	}

	refunded, err := s.transactions.SumSettledRefunds(ctx, tx, parent.ID)
	if err != nil {
		return "", err
	}
	if refunded.IsZero() && env.Payload.AuthAmount != nil {
		// Processor-initiated refund with no ledger child to sum.
		refunded = *env.Payload.AuthAmount
	}

	target := domain.PaymentStatusPartiallyRefunded
	if refunded.GreaterThanOrEqual(parent.Amount) {
		target = domain.PaymentStatusRefunded
	}
	return s.resolveParent(ctx, tx, parent, target, domain.EventPaymentRefundCreated)
}

// applyVoid marks the originating authorization or purchase as voided
func (s *InboundService) applyVoid(ctx context.Context, tx ports.DBTX, env *inboundEnvelope) (string, error) {
	txn, err := s.transactions.GetByProcessorID(ctx, tx, env.Payload.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return s.unknownTransaction(env)
		}
		return "", err
	}

	// Void rows share the processor id of the charge they void; act on
	// the originating charge either way.
	originalID := txn.ID
	if txn.ParentID != nil {
		originalID = *txn.ParentID
	}
	original, err := s.transactions.GetByIDForUpdate(ctx, tx, originalID)
	if err != nil {
		return "", err
	}

	target := domain.PaymentStatusVoided
	if original.Status == domain.PaymentStatusPending {
		// Voided before the approval ever reached us; no money moved.
		target = domain.PaymentStatusFailed
	}
	return s.resolveParent(ctx, tx, original, target, domain.EventPaymentVoidCreated)
}

// applyFraudDecision applies a fraud review outcome to the held charge
func (s *InboundService) applyFraudDecision(ctx context.Context, tx ports.DBTX, env *inboundEnvelope, target domain.PaymentStatus, suffix string) (string, error) {
	txn, err := s.lockByProcessorID(ctx, tx, env.Payload.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return s.unknownTransaction(env)
		}
		return "", err
	}
	return s.resolve(ctx, tx, txn, target, env, suffix)
}

// resolve moves a locked transaction to target, copying the processor's
// snapshot, and mirrors the event to the merchant. A transaction already
// at its target is acknowledged without another write, so replays are
// harmless.
func (s *InboundService) resolve(ctx context.Context, tx ports.DBTX, txn *domain.Transaction, target domain.PaymentStatus, env *inboundEnvelope, suffix string) (string, error) {
	if txn.Status == target {
		return serviceports.InboundProcessed, nil
	}
	if !txn.Status.CanTransitionTo(target) {
		s.logger.Warn("inbound event arrived after transaction resolved",
			ports.String("transaction_id", txn.ID),
			ports.String("status", string(txn.Status)),
			ports.String("target", string(target)))
		return serviceports.InboundNotProcessed, nil
	}

	txn.Status = target
	applySnapshot(txn, &env.Payload, target)
	now := time.Now().UTC()
	txn.ProcessedAt = &now

	if err := s.transactions.Update(ctx, tx, txn); err != nil {
		return "", fmt.Errorf("update transaction %s: %w", txn.ID, err)
	}
	if err := s.events.PublishTransactionEvent(ctx, tx, domain.OutboundEvent(suffix), txn); err != nil {
		return "", err
	}
	return serviceports.InboundProcessed, nil
}

// resolveParent transitions an originating charge touched through one of
// its children, without overwriting its own processor snapshot.
func (s *InboundService) resolveParent(ctx context.Context, tx ports.DBTX, txn *domain.Transaction, target domain.PaymentStatus, suffix string) (string, error) {
	if txn.Status == target {
		return serviceports.InboundProcessed, nil
	}
	if !txn.Status.CanTransitionTo(target) {
		s.logger.Warn("inbound event arrived after transaction resolved",
			ports.String("transaction_id", txn.ID),
			ports.String("status", string(txn.Status)),
			ports.String("target", string(target)))
		return serviceports.InboundNotProcessed, nil
	}

	txn.Status = target
	if err := s.transactions.Update(ctx, tx, txn); err != nil {
		return "", fmt.Errorf("update transaction %s: %w", txn.ID, err)
	}
	if err := s.events.PublishTransactionEvent(ctx, tx, domain.OutboundEvent(suffix), txn); err != nil {
		return "", err
	}
	return serviceports.InboundProcessed, nil
}

// lockByProcessorID locates the ledger row for a processor transaction
// id and relocks it for update within tx.
func (s *InboundService) lockByProcessorID(ctx context.Context, tx ports.DBTX, processorID string) (*domain.Transaction, error) {
	if processorID == "" {
		return nil, domain.ErrTxnNotFound
	}
	txn, err := s.transactions.GetByProcessorID(ctx, tx, processorID)
	if err != nil {
		return nil, err
	}
	return s.transactions.GetByIDForUpdate(ctx, tx, txn.ID)
}

func (s *InboundService) unknownTransaction(env *inboundEnvelope) (string, error) {
	s.logger.Warn("inbound event references unknown transaction",
		ports.String("event_type", env.EventType),
		ports.String("processor_txn_id", env.Payload.ID))
	return serviceports.InboundNotProcessed, nil
}

// applySnapshot copies the processor's transaction fields onto the row.
// The processor's settled amount wins when it reports one.
func applySnapshot(txn *domain.Transaction, pl *inboundPayload, target domain.PaymentStatus) {
	code := strconv.Itoa(pl.ResponseCode)
	txn.ResponseCode = &code
	if pl.AuthCode != "" {
		authCode := pl.AuthCode
		txn.AuthCode = &authCode
	}
	if pl.AVSResponse != "" {
		avs := pl.AVSResponse
		txn.AVSResult = &avs
	}
	if target == domain.PaymentStatusSettled && pl.AuthAmount != nil && pl.AuthAmount.IsPositive() {
		txn.Amount = *pl.AuthAmount
	}
}

// flattenHeaders keeps a single value per header for the audit trail
func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
