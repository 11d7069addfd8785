package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/recurpay/billing-gateway/internal/converters"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// OrderRepository implements ports.OrderRepository
type OrderRepository struct {
	db ports.DBPort
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db ports.DBPort) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, customer_id, currency, subtotal, tax, shipping, discount,
	created_at, updated_at`

// Create inserts a new order
func (r *OrderRepository) Create(ctx context.Context, tx ports.DBTX, order *domain.Order) error {
	query := `
	INSERT INTO orders (
		id, customer_id, currency, subtotal, tax, shipping, discount,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&order.ID),
		converters.ToNullableUUID(&order.CustomerID),
		order.Currency,
		converters.ToNumeric(order.Subtotal),
		converters.ToNumeric(order.Tax),
		converters.ToNumeric(order.Shipping),
		converters.ToNumeric(order.Discount),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(exec(r.db, db).QueryRow(ctx, query, converters.ToNullableUUID(&id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListByCustomer lists orders for a customer, newest first
func (r *OrderRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string, limit, offset int32) ([]*domain.Order, error) {
	query := `
	SELECT` + orderColumns + `
	FROM orders
	WHERE customer_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	rows, err := exec(r.db, db).Query(ctx, query, converters.ToNullableUUID(&customerID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		id, customerID                    pgtype.UUID
		currency                          string
		subtotal, tax, shipping, discount pgtype.Numeric
		createdAt, updatedAt              time.Time
	)

	err := row.Scan(
		&id, &customerID, &currency, &subtotal, &tax, &shipping, &discount,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &domain.Order{
		ID:         uuidString(id),
		CustomerID: uuidString(customerID),
		Currency:   currency,
		Subtotal:   converters.FromNumeric(subtotal),
		Tax:        converters.FromNumeric(tax),
		Shipping:   converters.FromNumeric(shipping),
		Discount:   converters.FromNumeric(discount),
		CreatedAt:  createdAt.UTC(),
		UpdatedAt:  updatedAt.UTC(),
	}, nil
}
