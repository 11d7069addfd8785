package ports

import (
	"context"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// WebhookRepository defines the interface for the webhook ledger
type WebhookRepository interface {
	// Create inserts a webhook row. (event_id, event_type) is unique;
	// duplicate inserts surface as a conflict error.
	Create(ctx context.Context, tx DBTX, wh *domain.Webhook) error

	// GetByID retrieves a webhook by ID
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Webhook, error)

	// ExistsRecent reports whether an inbound (event_id, event_type) pair
	// was persisted within the dedupe window
	ExistsRecent(ctx context.Context, db DBTX, eventID, eventType string, since time.Time) (bool, error)

	// Update persists delivery state (status, attempts, next_attempt_at,
	// response fields, last_error)
	Update(ctx context.Context, tx DBTX, wh *domain.Webhook) error

	// ListDeliverable lists outbound rows with status PENDING or RETRYING
	// and next_attempt_at <= now, oldest first
	ListDeliverable(ctx context.Context, db DBTX, now time.Time, limit int32) ([]*domain.Webhook, error)

	// DeleteOlderThan removes rows with the given status updated before
	// cutoff, returning the number deleted
	DeleteOlderThan(ctx context.Context, tx DBTX, status domain.WebhookStatus, cutoff time.Time) (int64, error)
}
