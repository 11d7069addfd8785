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

// InvoiceRepository implements ports.InvoiceRepository
type InvoiceRepository struct {
	db ports.DBPort
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db ports.DBPort) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `
	id, number, subscription_id, type, status, amount, currency,
	period_start, period_end, due_date, payment_attempts,
	next_payment_attempt, linked_transaction_id, paid_at,
	created_at, updated_at`

// Create inserts a new invoice. Number carries a unique index.
func (r *InvoiceRepository) Create(ctx context.Context, tx ports.DBTX, inv *domain.SubscriptionInvoice) error {
	query := `
	INSERT INTO subscription_invoices (
		id, number, subscription_id, type, status, amount, currency,
		period_start, period_end, due_date, payment_attempts,
		next_payment_attempt, linked_transaction_id, paid_at,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
	)`

	_, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&inv.ID),
		inv.Number,
		converters.ToNullableUUID(&inv.SubscriptionID),
		string(inv.Type),
		string(inv.Status),
		converters.ToNumeric(inv.Amount),
		inv.Currency,
		inv.PeriodStart,
		inv.PeriodEnd,
		inv.DueDate,
		inv.PaymentAttempts,
		converters.ToNullableTimestamptz(inv.NextPaymentAttempt),
		converters.ToNullableUUID(inv.LinkedTransactionID),
		converters.ToNullableTimestamptz(inv.PaidAt),
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice number %s already exists: %w", inv.Number, err)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.SubscriptionInvoice, error) {
	query := `SELECT` + invoiceColumns + ` FROM subscription_invoices WHERE id = $1`
	return r.getOne(ctx, db, query, converters.ToNullableUUID(&id))
}

// GetByIDForUpdate retrieves an invoice and locks its row so a single
// worker claims the payment attempt
func (r *InvoiceRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.SubscriptionInvoice, error) {
	query := `SELECT` + invoiceColumns + ` FROM subscription_invoices WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, tx, query, converters.ToNullableUUID(&id))
}

// GetByNumber retrieves an invoice by its unique number
func (r *InvoiceRepository) GetByNumber(ctx context.Context, db ports.DBTX, number string) (*domain.SubscriptionInvoice, error) {
	query := `SELECT` + invoiceColumns + ` FROM subscription_invoices WHERE number = $1`
	return r.getOne(ctx, db, query, number)
}

// Update persists mutable invoice fields
func (r *InvoiceRepository) Update(ctx context.Context, tx ports.DBTX, inv *domain.SubscriptionInvoice) error {
	query := `
	UPDATE subscription_invoices SET
		status = $2,
		payment_attempts = $3,
		next_payment_attempt = $4,
		linked_transaction_id = $5,
		paid_at = $6,
		updated_at = $7
	WHERE id = $1`

	tag, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&inv.ID),
		string(inv.Status),
		inv.PaymentAttempts,
		converters.ToNullableTimestamptz(inv.NextPaymentAttempt),
		converters.ToNullableUUID(inv.LinkedTransactionID),
		converters.ToNullableTimestamptz(inv.PaidAt),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

// GetBillForPeriod returns the live BILL invoice covering the period
// starting at periodStart, or nil when the period has none
func (r *InvoiceRepository) GetBillForPeriod(ctx context.Context, db ports.DBTX, subscriptionID string, periodStart time.Time) (*domain.SubscriptionInvoice, error) {
	query := `
	SELECT` + invoiceColumns + `
	FROM subscription_invoices
	WHERE subscription_id = $1
	  AND period_start = $2
	  AND type = $3
	  AND status IN ($4, $5, $6)
	ORDER BY created_at DESC
	LIMIT 1`

	inv, err := scanInvoice(exec(r.db, db).QueryRow(ctx, query,
		converters.ToNullableUUID(&subscriptionID),
		periodStart,
		string(domain.InvoiceTypeBill),
		string(domain.InvoiceStatusPending),
		string(domain.InvoiceStatusProcessing),
		string(domain.InvoiceStatusPaid),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bill for period: %w", err)
	}
	return inv, nil
}

// ListRetryable lists FAILED invoices whose retry window has opened
func (r *InvoiceRepository) ListRetryable(ctx context.Context, db ports.DBTX, now time.Time, maxAttempts int, limit int32) ([]*domain.SubscriptionInvoice, error) {
	query := `
	SELECT` + invoiceColumns + `
	FROM subscription_invoices
	WHERE status = $1
	  AND payment_attempts < $2
	  AND next_payment_attempt IS NOT NULL
	  AND next_payment_attempt <= $3
	ORDER BY next_payment_attempt ASC
	LIMIT $4`

	return r.list(ctx, db, query, string(domain.InvoiceStatusFailed), maxAttempts, now, limit)
}

// ListBySubscription lists invoices for a subscription, newest first
func (r *InvoiceRepository) ListBySubscription(ctx context.Context, db ports.DBTX, subscriptionID string, limit, offset int32) ([]*domain.SubscriptionInvoice, error) {
	query := `
	SELECT` + invoiceColumns + `
	FROM subscription_invoices
	WHERE subscription_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	return r.list(ctx, db, query, converters.ToNullableUUID(&subscriptionID), limit, offset)
}

// NextNumber allocates the next invoice number from the database sequence,
// formatted INV-YYYYMM-NNNNNN
func (r *InvoiceRepository) NextNumber(ctx context.Context, db ports.DBTX, now time.Time) (string, error) {
	var seq int64
	err := exec(r.db, db).QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%s-%06d", now.UTC().Format("200601"), seq), nil
}

func (r *InvoiceRepository) getOne(ctx context.Context, db ports.DBTX, query string, args ...interface{}) (*domain.SubscriptionInvoice, error) {
	inv, err := scanInvoice(exec(r.db, db).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) list(ctx context.Context, db ports.DBTX, query string, args ...interface{}) ([]*domain.SubscriptionInvoice, error) {
	rows, err := exec(r.db, db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*domain.SubscriptionInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return invoices, nil
}

func scanInvoice(row pgx.Row) (*domain.SubscriptionInvoice, error) {
	var (
		id, subscriptionID      pgtype.UUID
		number, invType, status string
		amount                  pgtype.Numeric
		currency                string
		periodStart, periodEnd  time.Time
		dueDate                 time.Time
		paymentAttempts         int
		nextAttempt, paidAt     pgtype.Timestamptz
		linkedTxnID             pgtype.UUID
		createdAt, updatedAt    time.Time
	)

	err := row.Scan(
		&id, &number, &subscriptionID, &invType, &status, &amount, &currency,
		&periodStart, &periodEnd, &dueDate, &paymentAttempts,
		&nextAttempt, &linkedTxnID, &paidAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &domain.SubscriptionInvoice{
		ID:                  uuidString(id),
		Number:              number,
		SubscriptionID:      uuidString(subscriptionID),
		Type:                domain.InvoiceType(invType),
		Status:              domain.InvoiceStatus(status),
		Amount:              converters.FromNumeric(amount),
		Currency:            currency,
		PeriodStart:         periodStart.UTC(),
		PeriodEnd:           periodEnd.UTC(),
		DueDate:             dueDate.UTC(),
		PaymentAttempts:     paymentAttempts,
		NextPaymentAttempt:  converters.FromNullableTimestamptz(nextAttempt),
		LinkedTransactionID: uuidPtr(linkedTxnID),
		PaidAt:              converters.FromNullableTimestamptz(paidAt),
		CreatedAt:           createdAt.UTC(),
		UpdatedAt:           updatedAt.UTC(),
	}, nil
}
