package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WebhookDirection distinguishes processor events we receive from
// merchant notifications we send.
type WebhookDirection string

const (
	WebhookDirectionIn  WebhookDirection = "IN"
	WebhookDirectionOut WebhookDirection = "OUT"
)

// WebhookStatus represents delivery/processing state
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "PENDING"
	WebhookStatusProcessing WebhookStatus = "PROCESSING"
	WebhookStatusDelivered  WebhookStatus = "DELIVERED"
	WebhookStatusRetrying   WebhookStatus = "RETRYING"
	WebhookStatusFailed     WebhookStatus = "FAILED"
)

// Event type suffixes dispatched by the inbound pipeline. Processors
// prefix these with their own namespace, so matching is suffix-based.
const (
	EventPaymentAuthCaptureCreated   = "payment.authcapture.created"
	EventPaymentAuthorizationCreated = "payment.authorization.created"
	EventPaymentCaptureCreated       = "payment.capture.created"
	EventPaymentRefundCreated        = "payment.refund.created"
	EventPaymentVoidCreated          = "payment.void.created"
	EventPaymentFraudApproved        = "payment.fraud.approved"
	EventPaymentFraudDeclined        = "payment.fraud.declined"
	EventPaymentFraudHeld            = "payment.fraud.held"
)

// MatchesEvent reports whether a namespaced event type (for example
// "net.processor.payment.capture.created") carries the given suffix.
func MatchesEvent(eventType, suffix string) bool {
	if eventType == suffix {
		return true
	}
	return strings.HasSuffix(eventType, "."+suffix)
}

// Event type suffixes for merchant-facing subscription notifications.
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionResumed   = "subscription.resumed"
)

// OutboundEventNamespace prefixes event types on merchant notifications.
const OutboundEventNamespace = "recurpay"

// OutboundEvent namespaces an event suffix for outbound delivery.
func OutboundEvent(suffix string) string {
	return OutboundEventNamespace + "." + suffix
}

// Webhook is one row of the webhook ledger, covering both directions.
type Webhook struct {
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at"`
	DeliveredAt   *time.Time `json:"delivered_at"`

	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseCode    *int              `json:"response_code"`
	ResponseBody    *string           `json:"response_body"`
	EndpointURL     *string           `json:"endpoint_url"` // outbound only
	LastError       *string           `json:"last_error"`

	RequestBody []byte `json:"request_body,omitempty"`

	ID            string           `json:"id"`
	EventID       string           `json:"event_id"`
	EventType     string           `json:"event_type"`
	CorrelationID string           `json:"correlation_id"`
	Direction     WebhookDirection `json:"direction"`
	Status        WebhookStatus    `json:"status"`
	Attempts      int              `json:"attempts"`
	MaxAttempts   int              `json:"max_attempts"`
}

// IsDeliverable reports whether the outbound sweeper should pick this row up.
func (w *Webhook) IsDeliverable(now time.Time) bool {
	if w.Direction != WebhookDirectionOut {
		return false
	}
	if w.Status != WebhookStatusPending && w.Status != WebhookStatusRetrying {
		return false
	}
	return w.NextAttemptAt == nil || !now.Before(*w.NextAttemptAt)
}

// Exhausted reports whether the row has used up its delivery attempts.
func (w *Webhook) Exhausted() bool {
	return w.Attempts >= w.MaxAttempts
}

// OutboundPayload is the payment snapshot carried by merchant
// notifications.
type OutboundPayload struct {
	TransactionID    string           `json:"transaction_id"`
	ResponseCode     int              `json:"response_code"`
	AuthCode         string           `json:"auth_code,omitempty"`
	AVSResponse      string           `json:"avs_response,omitempty"`
	CardCodeResponse string           `json:"card_code_response,omitempty"`
	SettleAmount     *decimal.Decimal `json:"settle_amount,omitempty"`
}

// SubscriptionPayload is the subscription snapshot carried by merchant
// notifications.
type SubscriptionPayload struct {
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	NextBillingDate    *time.Time `json:"next_billing_date,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	SubscriptionID string             `json:"subscription_id"`
	CustomerID     string             `json:"customer_id"`
	PlanCode       string             `json:"plan_code"`
	Status         SubscriptionStatus `json:"status"`
}

// OutboundEnvelope is the JSON body delivered to merchant endpoints.
// Payload carries an OutboundPayload or a SubscriptionPayload depending
// on the event type.
type OutboundEnvelope struct {
	Payload   interface{} `json:"payload"`
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	EventDate time.Time   `json:"event_date"`
}
