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

// PaymentMethodRepository implements ports.PaymentMethodRepository
type PaymentMethodRepository struct {
	db ports.DBPort
}

// NewPaymentMethodRepository creates a new payment method repository
func NewPaymentMethodRepository(db ports.DBPort) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

const paymentMethodColumns = `
	id, customer_id, kind, token, brand, last_four,
	expiry_month, expiry_year, is_default, is_active,
	created_at, updated_at, last_used_at`

// Create inserts a tokenized payment method
func (r *PaymentMethodRepository) Create(ctx context.Context, tx ports.DBTX, pm *domain.PaymentMethod) error {
	query := `
	INSERT INTO payment_methods (
		id, customer_id, kind, token, brand, last_four,
		expiry_month, expiry_year, is_default, is_active,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&pm.ID),
		converters.ToNullableUUID(&pm.CustomerID),
		string(pm.Kind),
		pm.Token,
		pm.Brand,
		pm.LastFour,
		converters.ToNullableInt32(pm.ExpiryMonth),
		converters.ToNullableInt32(pm.ExpiryYear),
		pm.IsDefault,
		pm.IsActive,
		pm.CreatedAt,
		pm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment method: %w", err)
	}
	return nil
}

// GetByID retrieves a payment method by ID
func (r *PaymentMethodRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.PaymentMethod, error) {
	query := `SELECT` + paymentMethodColumns + ` FROM payment_methods WHERE id = $1`

	pm, err := scanPaymentMethod(exec(r.db, db).QueryRow(ctx, query, converters.ToNullableUUID(&id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPMNotFound
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	return pm, nil
}

// ListByCustomer lists active payment methods for a customer
func (r *PaymentMethodRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string) ([]*domain.PaymentMethod, error) {
	query := `
	SELECT` + paymentMethodColumns + `
	FROM payment_methods
	WHERE customer_id = $1 AND is_active = TRUE
	ORDER BY is_default DESC, created_at DESC`

	rows, err := exec(r.db, db).Query(ctx, query, converters.ToNullableUUID(&customerID))
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	var pms []*domain.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		pms = append(pms, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment methods: %w", err)
	}
	return pms, nil
}

// SetDefault marks one payment method as the customer's default
func (r *PaymentMethodRepository) SetDefault(ctx context.Context, tx ports.DBTX, customerID, paymentMethodID string) error {
	clearQuery := `UPDATE payment_methods SET is_default = FALSE, updated_at = $2 WHERE customer_id = $1`
	setQuery := `UPDATE payment_methods SET is_default = TRUE, updated_at = $3 WHERE id = $1 AND customer_id = $2`

	now := time.Now().UTC()
	q := exec(r.db, tx)
	if _, err := q.Exec(ctx, clearQuery, converters.ToNullableUUID(&customerID), now); err != nil {
		return fmt.Errorf("clear default payment method: %w", err)
	}
	tag, err := q.Exec(ctx, setQuery,
		converters.ToNullableUUID(&paymentMethodID),
		converters.ToNullableUUID(&customerID),
		now,
	)
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPMNotFound
	}
	return nil
}

// Deactivate soft-deletes a payment method
func (r *PaymentMethodRepository) Deactivate(ctx context.Context, tx ports.DBTX, id string) error {
	query := `UPDATE payment_methods SET is_active = FALSE, is_default = FALSE, updated_at = $2 WHERE id = $1`

	tag, err := exec(r.db, tx).Exec(ctx, query, converters.ToNullableUUID(&id), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPMNotFound
	}
	return nil
}

// TouchLastUsed records a successful charge against the method
func (r *PaymentMethodRepository) TouchLastUsed(ctx context.Context, tx ports.DBTX, id string) error {
	query := `UPDATE payment_methods SET last_used_at = $2 WHERE id = $1`

	if _, err := exec(r.db, tx).Exec(ctx, query, converters.ToNullableUUID(&id), time.Now().UTC()); err != nil {
		return fmt.Errorf("touch payment method: %w", err)
	}
	return nil
}

func scanPaymentMethod(row pgx.Row) (*domain.PaymentMethod, error) {
	var (
		id, customerID           pgtype.UUID
		kind, token              string
		brand, lastFour          string
		expiryMonth, expiryYear  pgtype.Int4
		isDefault, isActive      bool
		createdAt, updatedAt     time.Time
		lastUsedAt               pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &customerID, &kind, &token, &brand, &lastFour,
		&expiryMonth, &expiryYear, &isDefault, &isActive,
		&createdAt, &updatedAt, &lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	return &domain.PaymentMethod{
		ID:          uuidString(id),
		CustomerID:  uuidString(customerID),
		Kind:        domain.PaymentMethodKind(kind),
		Token:       token,
		Brand:       brand,
		LastFour:    lastFour,
		ExpiryMonth: converters.FromNullableInt32(expiryMonth),
		ExpiryYear:  converters.FromNullableInt32(expiryYear),
		IsDefault:   isDefault,
		IsActive:    isActive,
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   updatedAt.UTC(),
		LastUsedAt:  converters.FromNullableTimestamptz(lastUsedAt),
	}, nil
}
