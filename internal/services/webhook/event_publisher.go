package webhook

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// PublisherConfig configures merchant notification enqueueing
type PublisherConfig struct {
	// EndpointURL is the merchant's notification endpoint. Empty means
	// the merchant has not enabled webhooks; events are dropped.
	EndpointURL string
	// MaxAttempts caps delivery attempts per event
	MaxAttempts int
}

// DefaultPublisherConfig returns the publishing defaults
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{MaxAttempts: 8}
}

// Publisher queues merchant notifications as outbound webhook rows.
// Rows are written on the caller's database transaction so the event
// commits atomically with the state change it reports; the sweeper
// picks them up afterwards.
type Publisher struct {
	webhooks ports.WebhookRepository
	logger   ports.Logger
	cfg      PublisherConfig
}

// NewPublisher creates an event publisher backed by the webhook ledger
func NewPublisher(webhooks ports.WebhookRepository, logger ports.Logger, cfg PublisherConfig) *Publisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPublisherConfig().MaxAttempts
	}
	return &Publisher{webhooks: webhooks, logger: logger, cfg: cfg}
}

var _ ports.EventPublisher = (*Publisher)(nil)

// PublishTransactionEvent enqueues one payment notification
func (p *Publisher) PublishTransactionEvent(ctx context.Context, tx ports.DBTX, eventType string, txn *domain.Transaction) error {
	payload := domain.OutboundPayload{
		TransactionID: txn.ID,
		ResponseCode:  numericResponseCode(txn.ResponseCode),
	}
	if txn.AuthCode != nil {
		payload.AuthCode = *txn.AuthCode
	}
	if txn.AVSResult != nil {
		payload.AVSResponse = *txn.AVSResult
	}
	if txn.CVVResult != nil {
		payload.CardCodeResponse = *txn.CVVResult
	}
	switch txn.Status {
	case domain.PaymentStatusCaptured, domain.PaymentStatusSettled,
		domain.PaymentStatusPartiallyRefunded, domain.PaymentStatusRefunded:
		amount := txn.Amount
		payload.SettleAmount = &amount
	}
	return p.enqueue(ctx, tx, eventType, txn.CorrelationID, payload)
}

// PublishSubscriptionEvent enqueues one subscription lifecycle notification
func (p *Publisher) PublishSubscriptionEvent(ctx context.Context, tx ports.DBTX, eventType string, sub *domain.Subscription) error {
	payload := domain.SubscriptionPayload{
		SubscriptionID:     sub.ID,
		CustomerID:         sub.CustomerID,
		PlanCode:           sub.PlanCode,
		Status:             sub.Status,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		NextBillingDate:    sub.NextBillingDate,
		CancelledAt:        sub.CancelledAt,
	}
	// Subscriptions carry no request correlation; the row is traceable
	// through the subscription id instead.
	return p.enqueue(ctx, tx, eventType, sub.ID, payload)
}

func (p *Publisher) enqueue(ctx context.Context, tx ports.DBTX, eventType, correlationID string, payload interface{}) error {
	if p.cfg.EndpointURL == "" {
		p.logger.Debug("no merchant endpoint configured, dropping event",
			ports.String("event_type", eventType))
		return nil
	}

	now := time.Now().UTC()
	envelope := domain.OutboundEnvelope{
		Payload:   payload,
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventDate: now,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "marshal outbound event", err)
	}

	endpoint := p.cfg.EndpointURL
	wh := &domain.Webhook{
		ID:            uuid.New().String(),
		EventID:       envelope.EventID,
		EventType:     eventType,
		CorrelationID: correlationID,
		Direction:     domain.WebhookDirectionOut,
		Status:        domain.WebhookStatusPending,
		MaxAttempts:   p.cfg.MaxAttempts,
		EndpointURL:   &endpoint,
		RequestBody:   body,
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.webhooks.Create(ctx, tx, wh); err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "enqueue outbound webhook", err)
	}
	return nil
}

// numericResponseCode converts the stored processor response code for
// the outbound payload, tolerating non-numeric codes as zero.
func numericResponseCode(code *string) int {
	if code == nil {
		return 0
	}
	n, err := strconv.Atoi(*code)
	if err != nil {
		return 0
	}
	return n
}
