package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Payment ledger metrics
	paymentTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transactions_total",
		Help: "Completed payment operations by final status",
	}, []string{
		"type",          // PURCHASE, AUTHORIZE, CAPTURE, VOID, REFUND, PARTIAL_REFUND
		"status",        // SETTLED, AUTHORIZED, VOIDED, REFUNDED, ...
		"response_code", // processor response code, empty when n/a
	})

	paymentAmountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_amount_cents_total",
		Help: "Gross amount moved in cents (for revenue tracking)",
	}, []string{
		"type",
		"status",
		"currency",
	})

	paymentProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "payment_processing_duration_seconds",
		Help: "End-to-end time to complete one payment operation",
		// 100ms to 30s covers the processor's normal and degraded paths
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"type",
		"status",
	})

	paymentDeclinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_declines_total",
		Help: "Operations the processor declined",
	}, []string{
		"type",
	})

	// Recurring billing metrics
	billingAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_attempts_total",
		Help: "Invoice collection attempts by outcome",
	}, []string{
		"outcome", // succeeded, retry_scheduled, exhausted
	})

	billingRevenueCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_revenue_cents_total",
		Help: "Recurring revenue collected in cents",
	}, []string{
		"currency",
	})

	lifecycleEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_lifecycle_events_total",
		Help: "Subscription state changes enacted by the lifecycle sweep",
	}, []string{
		"event", // trial_converted, plan_changed, cancelled, dunning_exhausted, past_due
	})

	// Webhook pipeline metrics
	webhookInboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_inbound_total",
		Help: "Processor events received by disposition",
	}, []string{
		"event_type",
		"action", // processed, duplicate, not processed
	})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Outbound delivery attempts by outcome",
	}, []string{
		"event_type",
		"outcome", // delivered, retried, failed, skipped
	})

	webhookDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Time to complete one delivery attempt",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{
		"event_type",
	})

	// Rate limiter verdicts; failed_open means the store was unreachable
	rateLimitDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_decisions_total",
		Help: "Rate limiter verdicts",
	}, []string{
		"outcome", // allowed, denied, burst_denied, failed_open
	})
)

// RecordPayment records one completed payment operation. Success rate
// is derived in PromQL from the status label:
//
//	sum(rate(payment_transactions_total{status=~"SETTLED|AUTHORIZED"}[5m]))
//	/ sum(rate(payment_transactions_total[5m]))
func RecordPayment(txType, status, responseCode, currency string, amountCents int64, seconds float64) {
	paymentTransactionsTotal.WithLabelValues(txType, status, responseCode).Inc()
	paymentAmountCents.WithLabelValues(txType, status, currency).Add(float64(amountCents))
	paymentProcessingDuration.WithLabelValues(txType, status).Observe(seconds)
}

// RecordPaymentDeclined records a processor decline
func RecordPaymentDeclined(txType string) {
	paymentDeclinesTotal.WithLabelValues(txType).Inc()
}

// RecordBillingAttempt records one invoice collection attempt. Revenue
// counts only the succeeded outcome.
func RecordBillingAttempt(outcome, currency string, amountCents int64) {
	billingAttemptsTotal.WithLabelValues(outcome).Inc()
	if outcome == "succeeded" {
		billingRevenueCents.WithLabelValues(currency).Add(float64(amountCents))
	}
}

// RecordLifecycleEvent records a subscription state change
func RecordLifecycleEvent(event string) {
	lifecycleEventsTotal.WithLabelValues(event).Inc()
}

// RecordInboundWebhook records one received processor event
func RecordInboundWebhook(eventType, action string) {
	webhookInboundTotal.WithLabelValues(eventType, action).Inc()
}

// RecordWebhookDelivery records one outbound delivery attempt
func RecordWebhookDelivery(eventType, outcome string, seconds float64) {
	webhookDeliveriesTotal.WithLabelValues(eventType, outcome).Inc()
	webhookDeliveryDuration.WithLabelValues(eventType).Observe(seconds)
}

// RecordRateLimitDecision records a limiter verdict
func RecordRateLimitDecision(outcome string) {
	rateLimitDecisionsTotal.WithLabelValues(outcome).Inc()
}
