package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/converters"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// TransactionRepository implements ports.TransactionRepository with
// hand-written SQL over pgx.
type TransactionRepository struct {
	db ports.DBPort
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db ports.DBPort) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, parent_id, customer_id, payment_method_id, order_id,
	type, status, payment_method_kind, amount, currency,
	external_processor_id, idempotency_key, correlation_id,
	auth_code, response_code, avs_result, cvv_result,
	request_blob, response_blob, processed_at, created_at`

// Create inserts a new transaction row
func (r *TransactionRepository) Create(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) error {
	query := `
	INSERT INTO transactions (
		id, parent_id, customer_id, payment_method_id, order_id,
		type, status, payment_method_kind, amount, currency,
		external_processor_id, idempotency_key, correlation_id,
		auth_code, response_code, avs_result, cvv_result,
		request_blob, response_blob, processed_at, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
	)`

	_, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&txn.ID),
		converters.ToNullableUUID(txn.ParentID),
		converters.ToNullableUUID(txn.CustomerID),
		converters.ToNullableUUID(txn.PaymentMethodID),
		converters.ToNullableUUID(txn.OrderID),
		string(txn.Type),
		string(txn.Status),
		string(txn.PaymentMethodKind),
		converters.ToNumeric(txn.Amount),
		txn.Currency,
		converters.ToNullableText(txn.ExternalProcessorID),
		converters.ToNullableText(txn.IdempotencyKey),
		txn.CorrelationID,
		converters.ToNullableText(txn.AuthCode),
		converters.ToNullableText(txn.ResponseCode),
		converters.ToNullableText(txn.AVSResult),
		converters.ToNullableText(txn.CVVResult),
		txn.RequestBlob,
		txn.ResponseBlob,
		converters.ToNullableTimestamptz(txn.ProcessedAt),
		txn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.getOne(ctx, db, query, converters.ToNullableUUID(&id))
}

// GetByIDForUpdate retrieves a transaction and locks its row
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, tx, query, converters.ToNullableUUID(&id))
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, key string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`
	return r.getOne(ctx, db, query, key)
}

// GetByProcessorID retrieves a transaction by the processor's transaction id
func (r *TransactionRepository) GetByProcessorID(ctx context.Context, db ports.DBTX, processorID string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE external_processor_id = $1`
	return r.getOne(ctx, db, query, processorID)
}

// Update persists mutable transaction fields
func (r *TransactionRepository) Update(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) error {
	query := `
	UPDATE transactions SET
		status = $2,
		external_processor_id = $3,
		auth_code = $4,
		response_code = $5,
		avs_result = $6,
		cvv_result = $7,
		response_blob = $8,
		processed_at = $9
	WHERE id = $1`

	tag, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&txn.ID),
		string(txn.Status),
		converters.ToNullableText(txn.ExternalProcessorID),
		converters.ToNullableText(txn.AuthCode),
		converters.ToNullableText(txn.ResponseCode),
		converters.ToNullableText(txn.AVSResult),
		converters.ToNullableText(txn.CVVResult),
		txn.ResponseBlob,
		converters.ToNullableTimestamptz(txn.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTxnNotFound
	}
	return nil
}

// SumSettledRefunds sums SETTLED refund children of a parent transaction
func (r *TransactionRepository) SumSettledRefunds(ctx context.Context, db ports.DBTX, parentID string) (decimal.Decimal, error) {
	query := `
	SELECT COALESCE(SUM(amount), 0)
	FROM transactions
	WHERE parent_id = $1
	  AND type IN ($2, $3)
	  AND status = $4`

	var sum pgtype.Numeric
	err := exec(r.db, db).QueryRow(ctx, query,
		converters.ToNullableUUID(&parentID),
		string(domain.TransactionTypeRefund),
		string(domain.TransactionTypePartialRefund),
		string(domain.PaymentStatusSettled),
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum settled refunds: %w", err)
	}
	return converters.FromNumeric(sum), nil
}

// ListByCustomer lists transactions for a customer, newest first
func (r *TransactionRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string, limit, offset int32) ([]*domain.Transaction, error) {
	query := `
	SELECT` + transactionColumns + `
	FROM transactions
	WHERE customer_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	rows, err := exec(r.db, db).Query(ctx, query, converters.ToNullableUUID(&customerID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions by customer: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListByOrder lists transactions linked to an order, oldest first
func (r *TransactionRepository) ListByOrder(ctx context.Context, db ports.DBTX, orderID string) ([]*domain.Transaction, error) {
	query := `
	SELECT` + transactionColumns + `
	FROM transactions
	WHERE order_id = $1
	ORDER BY created_at ASC`

	rows, err := exec(r.db, db).Query(ctx, query, converters.ToNullableUUID(&orderID))
	if err != nil {
		return nil, fmt.Errorf("list transactions by order: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListPendingOlderThan lists PENDING transactions created before cutoff
// that have a processor id
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, db ports.DBTX, cutoff time.Time, limit int32) ([]*domain.Transaction, error) {
	query := `
	SELECT` + transactionColumns + `
	FROM transactions
	WHERE status = $1
	  AND created_at < $2
	  AND external_processor_id IS NOT NULL
	ORDER BY created_at ASC
	LIMIT $3`

	rows, err := exec(r.db, db).Query(ctx, query, string(domain.PaymentStatusPending), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *TransactionRepository) getOne(ctx context.Context, db ports.DBTX, query string, args ...interface{}) (*domain.Transaction, error) {
	txn, err := scanTransaction(exec(r.db, db).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTxnNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		id, parentID, customerID, pmID, orderID        pgtype.UUID
		txnType, status, pmKind, currency, correlation string
		amount                                         pgtype.Numeric
		processorID, idemKey                           pgtype.Text
		authCode, responseCode, avsResult, cvvResult   pgtype.Text
		requestBlob, responseBlob                      []byte
		processedAt                                    pgtype.Timestamptz
		createdAt                                      time.Time
	)

	err := row.Scan(
		&id, &parentID, &customerID, &pmID, &orderID,
		&txnType, &status, &pmKind, &amount, &currency,
		&processorID, &idemKey, &correlation,
		&authCode, &responseCode, &avsResult, &cvvResult,
		&requestBlob, &responseBlob, &processedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	return &domain.Transaction{
		ID:                  uuidString(id),
		ParentID:            uuidPtr(parentID),
		CustomerID:          uuidPtr(customerID),
		PaymentMethodID:     uuidPtr(pmID),
		OrderID:             uuidPtr(orderID),
		Type:                domain.TransactionType(txnType),
		Status:              domain.PaymentStatus(status),
		PaymentMethodKind:   domain.PaymentMethodKind(pmKind),
		Amount:              converters.FromNumeric(amount),
		Currency:            currency,
		ExternalProcessorID: converters.FromNullableText(processorID),
		IdempotencyKey:      converters.FromNullableText(idemKey),
		CorrelationID:       correlation,
		AuthCode:            converters.FromNullableText(authCode),
		ResponseCode:        converters.FromNullableText(responseCode),
		AVSResult:           converters.FromNullableText(avsResult),
		CVVResult:           converters.FromNullableText(cvvResult),
		RequestBlob:         requestBlob,
		ResponseBlob:        responseBlob,
		ProcessedAt:         converters.FromNullableTimestamptz(processedAt),
		CreatedAt:           createdAt.UTC(),
	}, nil
}

func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}
