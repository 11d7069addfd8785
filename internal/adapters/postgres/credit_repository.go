package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/converters"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// CreditRepository implements ports.CreditRepository
type CreditRepository struct {
	db ports.DBPort
}

// NewCreditRepository creates a new credit ledger repository
func NewCreditRepository(db ports.DBPort) *CreditRepository {
	return &CreditRepository{db: db}
}

const creditColumns = `
	id, customer_id, subscription_id, currency, reason,
	amount, remaining, applied_at, applied_invoice, created_at`

// Create inserts a credit ledger entry
func (r *CreditRepository) Create(ctx context.Context, tx ports.DBTX, entry *domain.CreditLedgerEntry) error {
	query := `
	INSERT INTO credit_ledger (
		id, customer_id, subscription_id, currency, reason,
		amount, remaining, applied_at, applied_invoice, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&entry.ID),
		converters.ToNullableUUID(&entry.CustomerID),
		converters.ToNullableUUID(&entry.SubscriptionID),
		entry.Currency,
		entry.Reason,
		converters.ToNumeric(entry.Amount),
		converters.ToNumeric(entry.Remaining),
		converters.ToNullableTimestamptz(entry.AppliedAt),
		converters.ToNullableText(entry.AppliedInvoice),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credit entry: %w", err)
	}
	return nil
}

// ListOpenForUpdate lists open entries oldest first, locking the rows so
// concurrent billing attempts cannot double-spend credit
func (r *CreditRepository) ListOpenForUpdate(ctx context.Context, tx ports.DBTX, customerID, currency string) ([]*domain.CreditLedgerEntry, error) {
	query := `
	SELECT` + creditColumns + `
	FROM credit_ledger
	WHERE customer_id = $1
	  AND currency = $2
	  AND remaining > 0
	ORDER BY created_at ASC
	FOR UPDATE`

	rows, err := exec(r.db, tx).Query(ctx, query, converters.ToNullableUUID(&customerID), currency)
	if err != nil {
		return nil, fmt.Errorf("list open credit: %w", err)
	}
	defer rows.Close()

	var entries []*domain.CreditLedgerEntry
	for rows.Next() {
		entry, err := scanCreditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit entries: %w", err)
	}
	return entries, nil
}

// Consume reduces an entry's remaining balance. The entry records the
// consuming invoice number once fully spent.
func (r *CreditRepository) Consume(ctx context.Context, tx ports.DBTX, entryID string, amount decimal.Decimal, invoiceNumber string) error {
	query := `
	UPDATE credit_ledger SET
		remaining = remaining - $2,
		applied_at = CASE WHEN remaining - $2 <= 0 THEN $3 ELSE applied_at END,
		applied_invoice = CASE WHEN remaining - $2 <= 0 THEN $4 ELSE applied_invoice END
	WHERE id = $1 AND remaining >= $2`

	tag, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&entryID),
		converters.ToNumeric(amount),
		time.Now().UTC(),
		invoiceNumber,
	)
	if err != nil {
		return fmt.Errorf("consume credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit entry %s has insufficient balance", entryID)
	}
	return nil
}

// OpenBalance sums the remaining credit for a customer and currency
func (r *CreditRepository) OpenBalance(ctx context.Context, db ports.DBTX, customerID, currency string) (decimal.Decimal, error) {
	query := `
	SELECT COALESCE(SUM(remaining), 0)
	FROM credit_ledger
	WHERE customer_id = $1 AND currency = $2 AND remaining > 0`

	var balance pgtype.Numeric
	err := exec(r.db, db).QueryRow(ctx, query, converters.ToNullableUUID(&customerID), currency).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum open credit: %w", err)
	}
	return converters.FromNumeric(balance), nil
}

func scanCreditEntry(row pgx.Row) (*domain.CreditLedgerEntry, error) {
	var (
		id, customerID, subscriptionID pgtype.UUID
		currency, reason               string
		amount, remaining              pgtype.Numeric
		appliedAt                      pgtype.Timestamptz
		appliedInvoice                 pgtype.Text
		createdAt                      time.Time
	)

	err := row.Scan(
		&id, &customerID, &subscriptionID, &currency, &reason,
		&amount, &remaining, &appliedAt, &appliedInvoice, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	return &domain.CreditLedgerEntry{
		ID:             uuidString(id),
		CustomerID:     uuidString(customerID),
		SubscriptionID: uuidString(subscriptionID),
		Currency:       currency,
		Reason:         reason,
		Amount:         converters.FromNumeric(amount),
		Remaining:      converters.FromNumeric(remaining),
		AppliedAt:      converters.FromNullableTimestamptz(appliedAt),
		AppliedInvoice: converters.FromNullableText(appliedInvoice),
		CreatedAt:      createdAt.UTC(),
	}, nil
}
