package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// Order operations. An order is a pre-registered purchase that payments
// reference through OrderID; the money state is never stored, it is
// aggregated from the linked transactions on every read.

// CreateOrder registers a new order for a customer
func (s *Service) CreateOrder(ctx context.Context, req *serviceports.CreateOrderRequest) (*domain.Order, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		CreatedAt:  now,
		UpdatedAt:  now,
		ID:         uuid.New().String(),
		CustomerID: req.CustomerID,
		Currency:   strings.ToUpper(req.Currency),
		Subtotal:   req.Subtotal,
		Tax:        req.Tax,
		Shipping:   req.Shipping,
		Discount:   req.Discount,
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		customer, err := s.customers.GetByID(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		if !customer.IsActive {
			return domain.ErrCustomerInactive
		}
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("order create failed",
			ports.String("customer_id", req.CustomerID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("order created",
		ports.String("order_id", order.ID),
		ports.String("customer_id", order.CustomerID),
		ports.String("total", order.Total().StringFixed(2)))
	return order, nil
}

// GetOrder retrieves an order with paid/refunded/outstanding amounts
// aggregated from its transactions
func (s *Service) GetOrder(ctx context.Context, id string) (*serviceports.OrderDetail, error) {
	order, err := s.orders.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	txns, err := s.transactions.ListByOrder(ctx, nil, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order transactions: %w", err)
	}
	return &serviceports.OrderDetail{
		Order:   order,
		Amounts: domain.ComputeOrderAmounts(order, txns),
	}, nil
}

// ListOrders lists a customer's orders, newest first
func (s *Service) ListOrders(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.orders.ListByCustomer(ctx, nil, customerID, limit, offset)
}

// checkOrder verifies a referenced order exists and belongs to the
// paying customer before a charge is linked to it.
func (s *Service) checkOrder(ctx context.Context, tx ports.DBTX, orderID, customerID string) error {
	order, err := s.orders.GetByID(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.CustomerID != customerID {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed,
			"order belongs to a different customer")
	}
	return nil
}

func validateCreateOrder(req *serviceports.CreateOrderRequest) error {
	if req.CustomerID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer_id is required")
	}
	if len(req.Currency) != 3 {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "currency must be a 3-letter code")
	}
	if req.Subtotal.IsNegative() || req.Tax.IsNegative() || req.Shipping.IsNegative() || req.Discount.IsNegative() {
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "order components must not be negative")
	}
	total := req.Subtotal.Add(req.Tax).Add(req.Shipping).Sub(req.Discount)
	if !total.IsPositive() {
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "order total must be positive")
	}
	return nil
}
