package ports

import (
	"context"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// CustomerRepository defines the interface for customer persistence
type CustomerRepository interface {
	// Create inserts a new customer. Email is unique; concurrent creates
	// for the same email surface as a conflict error.
	Create(ctx context.Context, tx DBTX, customer *domain.Customer) error

	// GetByID retrieves a customer by ID
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Customer, error)

	// GetByEmail retrieves a customer by email
	GetByEmail(ctx context.Context, db DBTX, email string) (*domain.Customer, error)

	// Update persists mutable customer fields
	Update(ctx context.Context, tx DBTX, customer *domain.Customer) error

	// SetProcessorProfileID records the processor profile id exactly once.
	// A second write for the same customer is a no-op.
	SetProcessorProfileID(ctx context.Context, tx DBTX, customerID, profileID string) error
}

// PaymentMethodRepository defines the interface for stored payment methods
type PaymentMethodRepository interface {
	// Create inserts a tokenized payment method
	Create(ctx context.Context, tx DBTX, pm *domain.PaymentMethod) error

	// GetByID retrieves a payment method by ID
	GetByID(ctx context.Context, db DBTX, id string) (*domain.PaymentMethod, error)

	// ListByCustomer lists active payment methods for a customer
	ListByCustomer(ctx context.Context, db DBTX, customerID string) ([]*domain.PaymentMethod, error)

	// SetDefault marks one payment method as the customer's default,
	// clearing the flag on all others
	SetDefault(ctx context.Context, tx DBTX, customerID, paymentMethodID string) error

	// Deactivate soft-deletes a payment method
	Deactivate(ctx context.Context, tx DBTX, id string) error

	// TouchLastUsed records a successful charge against the method
	TouchLastUsed(ctx context.Context, tx DBTX, id string) error
}
