package ports

import (
	"context"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// EventPublisher queues merchant notifications for transaction state
// changes. Implementations write an outbound webhook row inside the
// caller's database transaction so the event commits atomically with
// the state change it reports.
type EventPublisher interface {
	// PublishTransactionEvent enqueues one event for the transaction.
	// eventType carries the full namespaced type.
	PublishTransactionEvent(ctx context.Context, tx DBTX, eventType string, txn *domain.Transaction) error

	// PublishSubscriptionEvent enqueues one event for a subscription
	// lifecycle change.
	PublishSubscriptionEvent(ctx context.Context, tx DBTX, eventType string, sub *domain.Subscription) error
}
