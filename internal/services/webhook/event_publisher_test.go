package webhook_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/services/webhook"
	"github.com/recurpay/billing-gateway/test/mocks"
)

const merchantEndpoint = "https://merchant.example/hooks"

func newPublisher(repo *mocks.MockWebhookRepository) *webhook.Publisher {
	return webhook.NewPublisher(repo, mocks.NewMockLogger(), webhook.PublisherConfig{
		EndpointURL: merchantEndpoint,
		MaxAttempts: 8,
	})
}

func TestPublisher_EnqueuesTransactionEvent(t *testing.T) {
	repo := mocks.NewMockWebhookRepository()
	pub := newPublisher(repo)

	code := "1"
	auth := "A1B2C3"
	txn := &domain.Transaction{
		ID:            "txn-1",
		CorrelationID: "corr-1",
		Type:          domain.TransactionTypePurchase,
		Status:        domain.PaymentStatusSettled,
		Amount:        decimal.RequireFromString("42.50"),
		Currency:      "USD",
		ResponseCode:  &code,
		AuthCode:      &auth,
	}

	eventType := domain.OutboundEvent(domain.EventPaymentAuthCaptureCreated)
	require.NoError(t, pub.PublishTransactionEvent(context.Background(), nil, eventType, txn))

	rows := repo.All()
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, domain.WebhookDirectionOut, row.Direction)
	assert.Equal(t, domain.WebhookStatusPending, row.Status)
	assert.Equal(t, "recurpay.payment.authcapture.created", row.EventType)
	assert.Equal(t, "corr-1", row.CorrelationID)
	assert.Equal(t, 8, row.MaxAttempts)
	assert.Equal(t, 0, row.Attempts)
	require.NotNil(t, row.EndpointURL)
	assert.Equal(t, merchantEndpoint, *row.EndpointURL)
	require.NotNil(t, row.NextAttemptAt, "queued rows must be immediately deliverable")

	var envelope struct {
		Payload   domain.OutboundPayload `json:"payload"`
		EventID   string                 `json:"event_id"`
		EventType string                 `json:"event_type"`
		EventDate time.Time              `json:"event_date"`
	}
	require.NoError(t, json.Unmarshal(row.RequestBody, &envelope))
	assert.Equal(t, row.EventID, envelope.EventID)
	assert.Equal(t, row.EventType, envelope.EventType)
	assert.False(t, envelope.EventDate.IsZero())
	assert.Equal(t, "txn-1", envelope.Payload.TransactionID)
	assert.Equal(t, 1, envelope.Payload.ResponseCode)
	assert.Equal(t, "A1B2C3", envelope.Payload.AuthCode)
	require.NotNil(t, envelope.Payload.SettleAmount)
	assert.True(t, envelope.Payload.SettleAmount.Equal(decimal.RequireFromString("42.50")))
}

func TestPublisher_OmitsSettleAmountBeforeCapture(t *testing.T) {
	repo := mocks.NewMockWebhookRepository()
	pub := newPublisher(repo)

	txn := &domain.Transaction{
		ID:            "txn-2",
		CorrelationID: "corr-2",
		Type:          domain.TransactionTypeAuthorize,
		Status:        domain.PaymentStatusAuthorized,
		Amount:        decimal.RequireFromString("10.00"),
		Currency:      "USD",
	}
	eventType := domain.OutboundEvent(domain.EventPaymentAuthorizationCreated)
	require.NoError(t, pub.PublishTransactionEvent(context.Background(), nil, eventType, txn))

	rows := repo.All()
	require.Len(t, rows, 1)

	var envelope struct {
		Payload domain.OutboundPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(rows[0].RequestBody, &envelope))
	assert.Nil(t, envelope.Payload.SettleAmount)
	assert.Equal(t, 0, envelope.Payload.ResponseCode)
}

func TestPublisher_EnqueuesSubscriptionEvent(t *testing.T) {
	repo := mocks.NewMockWebhookRepository()
	pub := newPublisher(repo)

	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	sub := &domain.Subscription{
		ID:                 "sub-1",
		CustomerID:         "cust-1",
		PlanCode:           "pro-monthly",
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd,
		NextBillingDate:    &periodEnd,
	}

	eventType := domain.OutboundEvent(domain.EventSubscriptionCreated)
	require.NoError(t, pub.PublishSubscriptionEvent(context.Background(), nil, eventType, sub))

	rows := repo.All()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "recurpay.subscription.created", row.EventType)
	assert.Equal(t, "sub-1", row.CorrelationID)

	var envelope struct {
		Payload domain.SubscriptionPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(row.RequestBody, &envelope))
	assert.Equal(t, "sub-1", envelope.Payload.SubscriptionID)
	assert.Equal(t, "cust-1", envelope.Payload.CustomerID)
	assert.Equal(t, "pro-monthly", envelope.Payload.PlanCode)
	assert.Equal(t, domain.SubscriptionStatusActive, envelope.Payload.Status)
	require.NotNil(t, envelope.Payload.NextBillingDate)
}

func TestPublisher_DropsEventsWithoutEndpoint(t *testing.T) {
	repo := mocks.NewMockWebhookRepository()
	pub := webhook.NewPublisher(repo, mocks.NewMockLogger(), webhook.PublisherConfig{})

	txn := &domain.Transaction{ID: "txn-3", Status: domain.PaymentStatusSettled}
	eventType := domain.OutboundEvent(domain.EventPaymentCaptureCreated)
	require.NoError(t, pub.PublishTransactionEvent(context.Background(), nil, eventType, txn))

	assert.Empty(t, repo.All())
}
