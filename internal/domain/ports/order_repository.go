package ports

import (
	"context"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// OrderRepository defines the interface for order persistence. Orders
// carry only their own components; paid/refunded amounts are derived
// from linked transactions at read time.
type OrderRepository interface {
	// Create inserts a new order
	Create(ctx context.Context, tx DBTX, order *domain.Order) error

	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Order, error)

	// ListByCustomer lists orders for a customer, newest first
	ListByCustomer(ctx context.Context, db DBTX, customerID string, limit, offset int32) ([]*domain.Order, error)
}
