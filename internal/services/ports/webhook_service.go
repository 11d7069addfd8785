package ports

import (
	"context"
	"net/http"
	"time"
)

// Dispositions reported by the inbound pipeline.
const (
	InboundProcessed    = "processed"
	InboundDuplicate    = "duplicate"
	InboundNotProcessed = "not processed"
)

// InboundResult reports what the ingestion pipeline did with one event.
type InboundResult struct {
	WebhookID string
	EventID   string
	EventType string
	Action    string
}

// WebhookInboundService verifies, dedupes and applies processor events
// to the transaction ledger.
type WebhookInboundService interface {
	// Receive processes one raw processor notification. The body must be
	// the unmodified request bytes; signature verification runs over them.
	Receive(ctx context.Context, rawBody []byte, headers http.Header) (*InboundResult, error)
}

// DeliveryReport summarizes one outbound delivery sweep.
type DeliveryReport struct {
	Picked    int
	Delivered int
	Retried   int
	Failed    int
	Skipped   int
}

// WebhookOutboundService delivers queued merchant notifications.
// Enqueueing happens through ports.EventPublisher so it can join the
// state change's database transaction.
type WebhookOutboundService interface {
	// DeliverDue delivers queued webhooks whose next attempt is due
	DeliverDue(ctx context.Context, now time.Time) (*DeliveryReport, error)

	// Cleanup removes DELIVERED rows older than deliveredBefore and
	// FAILED rows older than failedBefore, returning the number deleted
	Cleanup(ctx context.Context, deliveredBefore, failedBefore time.Time) (int64, error)
}
