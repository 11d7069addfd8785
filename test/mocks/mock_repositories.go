package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// In-memory fakes backing service tests. They honor the repository
// contracts (not-found errors, unique indexes, snapshot reads) without
// a database. MockDB runs transaction callbacks with a nil pgx.Tx; the
// fakes ignore the executor argument entirely.

// MockDB implements ports.DBPort without a database
type MockDB struct {
	mu       sync.Mutex
	TxCalls  int
	FailWith error
}

// NewMockDB creates a new mock database port
func NewMockDB() *MockDB {
	return &MockDB{}
}

// GetDB returns nil; the fakes never touch a pool
func (m *MockDB) GetDB() *pgxpool.Pool {
	return nil
}

// WithTransaction runs fn with a nil transaction handle
func (m *MockDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	m.mu.Lock()
	m.TxCalls++
	failWith := m.FailWith
	m.mu.Unlock()
	if failWith != nil {
		return failWith
	}
	return fn(ctx, nil)
}

// WithReadOnlyTransaction runs fn with a nil transaction handle
func (m *MockDB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// MockTransactionRepository is an in-memory ports.TransactionRepository
type MockTransactionRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Transaction

	CreateCalls int
	UpdateCalls int
	FailCreate  error
	FailUpdate  error
}

// NewMockTransactionRepository creates an empty transaction store
func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{rows: make(map[string]domain.Transaction)}
}

// Seed inserts rows directly, bypassing uniqueness checks
func (m *MockTransactionRepository) Seed(txns ...*domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range txns {
		m.rows[t.ID] = *t
	}
}

// Create implements TransactionRepository.Create
func (m *MockTransactionRepository) Create(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	if txn.IdempotencyKey != nil {
		for _, r := range m.rows {
			if r.IdempotencyKey != nil && *r.IdempotencyKey == *txn.IdempotencyKey {
				return domain.ErrIdempotencyConflict
			}
		}
	}
	m.rows[txn.ID] = *txn
	return nil
}

// GetByID implements TransactionRepository.GetByID
func (m *MockTransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrTxnNotFound
	}
	return &r, nil
}

// GetByIDForUpdate implements TransactionRepository.GetByIDForUpdate
func (m *MockTransactionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.Transaction, error) {
	return m.GetByID(ctx, tx, id)
}

// GetByIdempotencyKey implements TransactionRepository.GetByIdempotencyKey
func (m *MockTransactionRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, key string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			row := r
			return &row, nil
		}
	}
	return nil, domain.ErrTxnNotFound
}

// GetByProcessorID implements TransactionRepository.GetByProcessorID
func (m *MockTransactionRepository) GetByProcessorID(ctx context.Context, db ports.DBTX, processorID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ExternalProcessorID != nil && *r.ExternalProcessorID == processorID {
			row := r
			return &row, nil
		}
	}
	return nil, domain.ErrTxnNotFound
}

// Update implements TransactionRepository.Update
func (m *MockTransactionRepository) Update(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.FailUpdate != nil {
		return m.FailUpdate
	}
	if _, ok := m.rows[txn.ID]; !ok {
		return domain.ErrTxnNotFound
	}
	m.rows[txn.ID] = *txn
	return nil
}

// SumSettledRefunds implements TransactionRepository.SumSettledRefunds
func (m *MockTransactionRepository) SumSettledRefunds(ctx context.Context, db ports.DBTX, parentID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, r := range m.rows {
		if r.ParentID != nil && *r.ParentID == parentID &&
			r.IsRefundType() && r.Status == domain.PaymentStatusSettled {
			sum = sum.Add(r.Amount)
		}
	}
	return sum, nil
}

// ListByCustomer implements TransactionRepository.ListByCustomer
func (m *MockTransactionRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string, limit, offset int32) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Transaction
	for _, r := range m.rows {
		if r.CustomerID != nil && *r.CustomerID == customerID {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

// ListByOrder implements TransactionRepository.ListByOrder
func (m *MockTransactionRepository) ListByOrder(ctx context.Context, db ports.DBTX, orderID string) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Transaction
	for _, r := range m.rows {
		if r.OrderID != nil && *r.OrderID == orderID {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPendingOlderThan implements TransactionRepository.ListPendingOlderThan
func (m *MockTransactionRepository) ListPendingOlderThan(ctx context.Context, db ports.DBTX, cutoff time.Time, limit int32) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Transaction
	for _, r := range m.rows {
		if r.Status == domain.PaymentStatusPending && r.CreatedAt.Before(cutoff) &&
			r.ExternalProcessorID != nil {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return window(out, limit, 0), nil
}

// MockCustomerRepository is an in-memory ports.CustomerRepository
type MockCustomerRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Customer

	CreateCalls int
	FailCreate  error
}

// NewMockCustomerRepository creates an empty customer store
func NewMockCustomerRepository() *MockCustomerRepository {
	return &MockCustomerRepository{rows: make(map[string]domain.Customer)}
}

// Seed inserts customers directly
func (m *MockCustomerRepository) Seed(customers ...*domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range customers {
		m.rows[c.ID] = *c
	}
}

// Create implements CustomerRepository.Create
func (m *MockCustomerRepository) Create(ctx context.Context, tx ports.DBTX, customer *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	for _, r := range m.rows {
		if r.Email == customer.Email {
			return domain.WrapError(domain.ErrorCodeValidationFailed, "customer email already exists",
				fmt.Errorf("duplicate email %s", customer.Email))
		}
	}
	m.rows[customer.ID] = *customer
	return nil
}

// GetByID implements CustomerRepository.GetByID
func (m *MockCustomerRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &r, nil
}

// GetByEmail implements CustomerRepository.GetByEmail
func (m *MockCustomerRepository) GetByEmail(ctx context.Context, db ports.DBTX, email string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Email == email {
			row := r
			return &row, nil
		}
	}
	return nil, domain.ErrCustomerNotFound
}

// Update implements CustomerRepository.Update
func (m *MockCustomerRepository) Update(ctx context.Context, tx ports.DBTX, customer *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[customer.ID]; !ok {
		return domain.ErrCustomerNotFound
	}
	m.rows[customer.ID] = *customer
	return nil
}

// SetProcessorProfileID implements CustomerRepository.SetProcessorProfileID
func (m *MockCustomerRepository) SetProcessorProfileID(ctx context.Context, tx ports.DBTX, customerID, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[customerID]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	if r.ProcessorProfileID == nil || *r.ProcessorProfileID == "" {
		r.ProcessorProfileID = &profileID
		r.UpdatedAt = time.Now().UTC()
		m.rows[customerID] = r
	}
	return nil
}

// MockPaymentMethodRepository is an in-memory ports.PaymentMethodRepository
type MockPaymentMethodRepository struct {
	mu   sync.Mutex
	rows map[string]domain.PaymentMethod

	CreateCalls    int
	TouchCalls     int
	FailCreate     error
	FailTouch      error
	FailDeactivate error
}

// NewMockPaymentMethodRepository creates an empty payment method store
func NewMockPaymentMethodRepository() *MockPaymentMethodRepository {
	return &MockPaymentMethodRepository{rows: make(map[string]domain.PaymentMethod)}
}

// Seed inserts payment methods directly
func (m *MockPaymentMethodRepository) Seed(methods ...*domain.PaymentMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pm := range methods {
		m.rows[pm.ID] = *pm
	}
}

// Create implements PaymentMethodRepository.Create
func (m *MockPaymentMethodRepository) Create(ctx context.Context, tx ports.DBTX, pm *domain.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	m.rows[pm.ID] = *pm
	return nil
}

// GetByID implements PaymentMethodRepository.GetByID
func (m *MockPaymentMethodRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrPMNotFound
	}
	return &r, nil
}

// ListByCustomer implements PaymentMethodRepository.ListByCustomer
func (m *MockPaymentMethodRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string) ([]*domain.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PaymentMethod
	for _, r := range m.rows {
		if r.CustomerID == customerID && r.IsActive {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SetDefault implements PaymentMethodRepository.SetDefault
func (m *MockPaymentMethodRepository) SetDefault(ctx context.Context, tx ports.DBTX, customerID, paymentMethodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[paymentMethodID]; !ok {
		return domain.ErrPMNotFound
	}
	for id, r := range m.rows {
		if r.CustomerID == customerID {
			r.IsDefault = id == paymentMethodID
			m.rows[id] = r
		}
	}
	return nil
}

// Deactivate implements PaymentMethodRepository.Deactivate
func (m *MockPaymentMethodRepository) Deactivate(ctx context.Context, tx ports.DBTX, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeactivate != nil {
		return m.FailDeactivate
	}
	r, ok := m.rows[id]
	if !ok {
		return domain.ErrPMNotFound
	}
	r.IsActive = false
	m.rows[id] = r
	return nil
}

// TouchLastUsed implements PaymentMethodRepository.TouchLastUsed
func (m *MockPaymentMethodRepository) TouchLastUsed(ctx context.Context, tx ports.DBTX, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TouchCalls++
	if m.FailTouch != nil {
		return m.FailTouch
	}
	r, ok := m.rows[id]
	if !ok {
		return domain.ErrPMNotFound
	}
	now := time.Now().UTC()
	r.LastUsedAt = &now
	m.rows[id] = r
	return nil
}

// MockIdempotencyStore is an in-memory ports.IdempotencyStore
type MockIdempotencyStore struct {
	mu   sync.Mutex
	recs map[string]ports.IdempotencyRecord

	LookupCalls int
	RecordCalls int
	FailLookup  error
	FailRecord  error
}

// NewMockIdempotencyStore creates an empty idempotency store
func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{recs: make(map[string]ports.IdempotencyRecord)}
}

func idemKey(family, key string) string {
	return family + "\x00" + key
}

// Lookup implements IdempotencyStore.Lookup
func (m *MockIdempotencyStore) Lookup(ctx context.Context, db ports.DBTX, family, key string) (*ports.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LookupCalls++
	if m.FailLookup != nil {
		return nil, m.FailLookup
	}
	r, ok := m.recs[idemKey(family, key)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Record implements IdempotencyStore.Record. Like the real store, the
// first write wins and a hash mismatch against an existing record is a
// conflict.
func (m *MockIdempotencyStore) Record(ctx context.Context, tx ports.DBTX, family, key, requestHash string, responseBody []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordCalls++
	if m.FailRecord != nil {
		return m.FailRecord
	}
	k := idemKey(family, key)
	if existing, ok := m.recs[k]; ok {
		if existing.RequestHash == requestHash {
			return nil
		}
		return domain.ErrIdempotencyConflict
	}
	m.recs[k] = ports.IdempotencyRecord{
		CreatedAt:    time.Now().UTC(),
		Family:       family,
		Key:          key,
		RequestHash:  requestHash,
		ResponseBody: responseBody,
	}
	return nil
}

// PublishedEvent captures one EventPublisher call
type PublishedEvent struct {
	EventType    string
	Transaction  *domain.Transaction
	Subscription *domain.Subscription
}

// MockEventPublisher is a recording ports.EventPublisher
type MockEventPublisher struct {
	mu        sync.Mutex
	Published []PublishedEvent
	FailWith  error
}

// NewMockEventPublisher creates a new recording publisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

// PublishTransactionEvent implements EventPublisher.PublishTransactionEvent
func (m *MockEventPublisher) PublishTransactionEvent(ctx context.Context, tx ports.DBTX, eventType string, txn *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	snapshot := *txn
	m.Published = append(m.Published, PublishedEvent{EventType: eventType, Transaction: &snapshot})
	return nil
}

// PublishSubscriptionEvent implements EventPublisher.PublishSubscriptionEvent
func (m *MockEventPublisher) PublishSubscriptionEvent(ctx context.Context, tx ports.DBTX, eventType string, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	snapshot := *sub
	m.Published = append(m.Published, PublishedEvent{EventType: eventType, Subscription: &snapshot})
	return nil
}

// EventTypes returns the recorded event types in publish order
func (m *MockEventPublisher) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Published))
	for i, e := range m.Published {
		out[i] = e.EventType
	}
	return out
}

// MockSubscriptionRepository is an in-memory ports.SubscriptionRepository
type MockSubscriptionRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Subscription

	CreateCalls int
	UpdateCalls int
	FailCreate  error
	FailUpdate  error
}

// NewMockSubscriptionRepository creates an empty subscription store
func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{rows: make(map[string]domain.Subscription)}
}

// Seed inserts subscriptions directly
func (m *MockSubscriptionRepository) Seed(subs ...*domain.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subs {
		m.rows[s.ID] = *s
	}
}

// Create implements SubscriptionRepository.Create
func (m *MockSubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	m.rows[sub.ID] = *sub
	return nil
}

// GetByID implements SubscriptionRepository.GetByID
func (m *MockSubscriptionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrSubNotFound
	}
	return &r, nil
}

// GetByIDForUpdate implements SubscriptionRepository.GetByIDForUpdate
func (m *MockSubscriptionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.Subscription, error) {
	return m.GetByID(ctx, tx, id)
}

// Update implements SubscriptionRepository.Update
func (m *MockSubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.FailUpdate != nil {
		return m.FailUpdate
	}
	if _, ok := m.rows[sub.ID]; !ok {
		return domain.ErrSubNotFound
	}
	m.rows[sub.ID] = *sub
	return nil
}

// ListByCustomer implements SubscriptionRepository.ListByCustomer
func (m *MockSubscriptionRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string, limit, offset int32) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Subscription
	for _, r := range m.rows {
		if r.CustomerID == customerID {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

// ListDueForBilling implements SubscriptionRepository.ListDueForBilling
func (m *MockSubscriptionRepository) ListDueForBilling(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Subscription
	for _, r := range m.rows {
		if r.Status == domain.SubscriptionStatusActive &&
			r.NextBillingDate != nil && !now.Before(*r.NextBillingDate) {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextBillingDate.Before(*out[j].NextBillingDate) })
	return window(out, limit, 0), nil
}

// ListTrialsEnding implements SubscriptionRepository.ListTrialsEnding
func (m *MockSubscriptionRepository) ListTrialsEnding(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Subscription
	for _, r := range m.rows {
		if r.Status == domain.SubscriptionStatusActive &&
			r.TrialEnd != nil && !now.Before(*r.TrialEnd) &&
			!r.CurrentPeriodEnd.After(*r.TrialEnd) {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialEnd.Before(*out[j].TrialEnd) })
	return window(out, limit, 0), nil
}

// ListScheduledCancellations implements SubscriptionRepository.ListScheduledCancellations
func (m *MockSubscriptionRepository) ListScheduledCancellations(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Subscription
	for _, r := range m.rows {
		if r.Status != domain.SubscriptionStatusCancelled &&
			r.ScheduledCancelAt != nil && !now.Before(*r.ScheduledCancelAt) {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledCancelAt.Before(*out[j].ScheduledCancelAt) })
	return window(out, limit, 0), nil
}

// ListScheduledPlanChanges implements SubscriptionRepository.ListScheduledPlanChanges
func (m *MockSubscriptionRepository) ListScheduledPlanChanges(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Subscription
	for _, r := range m.rows {
		if r.ScheduledPlanCode != nil && r.ScheduledPlanChangeAt != nil &&
			!now.Before(*r.ScheduledPlanChangeAt) {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledPlanChangeAt.Before(*out[j].ScheduledPlanChangeAt) })
	return window(out, limit, 0), nil
}

// MockInvoiceRepository is an in-memory ports.InvoiceRepository
type MockInvoiceRepository struct {
	mu   sync.Mutex
	rows map[string]domain.SubscriptionInvoice
	seq  int

	CreateCalls int
	UpdateCalls int
	FailCreate  error
	FailUpdate  error
}

// NewMockInvoiceRepository creates an empty invoice store
func NewMockInvoiceRepository() *MockInvoiceRepository {
	return &MockInvoiceRepository{rows: make(map[string]domain.SubscriptionInvoice)}
}

// Seed inserts invoices directly
func (m *MockInvoiceRepository) Seed(invoices ...*domain.SubscriptionInvoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range invoices {
		m.rows[inv.ID] = *inv
	}
}

// Create implements InvoiceRepository.Create
func (m *MockInvoiceRepository) Create(ctx context.Context, tx ports.DBTX, inv *domain.SubscriptionInvoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	for _, r := range m.rows {
		if r.Number == inv.Number {
			return fmt.Errorf("invoice number %s already exists", inv.Number)
		}
	}
	m.rows[inv.ID] = *inv
	return nil
}

// GetByID implements InvoiceRepository.GetByID
func (m *MockInvoiceRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.SubscriptionInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	return &r, nil
}

// GetByIDForUpdate implements InvoiceRepository.GetByIDForUpdate
func (m *MockInvoiceRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.SubscriptionInvoice, error) {
	return m.GetByID(ctx, tx, id)
}

// GetByNumber implements InvoiceRepository.GetByNumber
func (m *MockInvoiceRepository) GetByNumber(ctx context.Context, db ports.DBTX, number string) (*domain.SubscriptionInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Number == number {
			row := r
			return &row, nil
		}
	}
	return nil, domain.ErrInvoiceNotFound
}

// Update implements InvoiceRepository.Update
func (m *MockInvoiceRepository) Update(ctx context.Context, tx ports.DBTX, inv *domain.SubscriptionInvoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.FailUpdate != nil {
		return m.FailUpdate
	}
	if _, ok := m.rows[inv.ID]; !ok {
		return domain.ErrInvoiceNotFound
	}
	m.rows[inv.ID] = *inv
	return nil
}

// GetBillForPeriod implements InvoiceRepository.GetBillForPeriod
func (m *MockInvoiceRepository) GetBillForPeriod(ctx context.Context, db ports.DBTX, subscriptionID string, periodStart time.Time) (*domain.SubscriptionInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *domain.SubscriptionInvoice
	for _, r := range m.rows {
		if r.SubscriptionID != subscriptionID || !r.PeriodStart.Equal(periodStart) || r.Type != domain.InvoiceTypeBill {
			continue
		}
		if r.Status != domain.InvoiceStatusPending &&
			r.Status != domain.InvoiceStatusProcessing &&
			r.Status != domain.InvoiceStatusPaid {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			row := r
			newest = &row
		}
	}
	return newest, nil
}

// ListRetryable implements InvoiceRepository.ListRetryable
func (m *MockInvoiceRepository) ListRetryable(ctx context.Context, db ports.DBTX, now time.Time, maxAttempts int, limit int32) ([]*domain.SubscriptionInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SubscriptionInvoice
	for _, r := range m.rows {
		if r.Status == domain.InvoiceStatusFailed &&
			r.NextPaymentAttempt != nil && !now.Before(*r.NextPaymentAttempt) &&
			r.PaymentAttempts < maxAttempts {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPaymentAttempt.Before(*out[j].NextPaymentAttempt) })
	return window(out, limit, 0), nil
}

// ListBySubscription implements InvoiceRepository.ListBySubscription
func (m *MockInvoiceRepository) ListBySubscription(ctx context.Context, db ports.DBTX, subscriptionID string, limit, offset int32) ([]*domain.SubscriptionInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SubscriptionInvoice
	for _, r := range m.rows {
		if r.SubscriptionID == subscriptionID {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

// NextNumber implements InvoiceRepository.NextNumber
func (m *MockInvoiceRepository) NextNumber(ctx context.Context, db ports.DBTX, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return fmt.Sprintf("INV-%s-%06d", now.UTC().Format("200601"), m.seq), nil
}

// MockPlanRepository is an in-memory ports.PlanRepository
type MockPlanRepository struct {
	mu   sync.Mutex
	rows map[string]domain.SubscriptionPlan

	// SubscriptionCounts injects CountSubscriptions results per plan code
	SubscriptionCounts map[string]int64
}

// NewMockPlanRepository creates an empty plan store
func NewMockPlanRepository() *MockPlanRepository {
	return &MockPlanRepository{
		rows:               make(map[string]domain.SubscriptionPlan),
		SubscriptionCounts: make(map[string]int64),
	}
}

// Seed inserts plans directly
func (m *MockPlanRepository) Seed(plans ...*domain.SubscriptionPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range plans {
		m.rows[p.Code] = *p
	}
}

// Create implements PlanRepository.Create
func (m *MockPlanRepository) Create(ctx context.Context, tx ports.DBTX, plan *domain.SubscriptionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[plan.Code]; ok {
		return domain.ErrPlanCodeTaken
	}
	m.rows[plan.Code] = *plan
	return nil
}

// GetByCode implements PlanRepository.GetByCode
func (m *MockPlanRepository) GetByCode(ctx context.Context, db ports.DBTX, code string) (*domain.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[code]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return &r, nil
}

// Update implements PlanRepository.Update
func (m *MockPlanRepository) Update(ctx context.Context, tx ports.DBTX, plan *domain.SubscriptionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[plan.Code]; !ok {
		return domain.ErrPlanNotFound
	}
	m.rows[plan.Code] = *plan
	return nil
}

// List implements PlanRepository.List
func (m *MockPlanRepository) List(ctx context.Context, db ports.DBTX, includeInactive bool) ([]*domain.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SubscriptionPlan
	for _, r := range m.rows {
		if !includeInactive && !r.IsActive {
			continue
		}
		row := r
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// CountSubscriptions implements PlanRepository.CountSubscriptions
func (m *MockPlanRepository) CountSubscriptions(ctx context.Context, db ports.DBTX, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SubscriptionCounts[code], nil
}

// MockCreditRepository is an in-memory ports.CreditRepository
type MockCreditRepository struct {
	mu   sync.Mutex
	rows map[string]domain.CreditLedgerEntry

	CreateCalls int
	FailCreate  error
}

// NewMockCreditRepository creates an empty credit ledger
func NewMockCreditRepository() *MockCreditRepository {
	return &MockCreditRepository{rows: make(map[string]domain.CreditLedgerEntry)}
}

// Seed inserts ledger entries directly
func (m *MockCreditRepository) Seed(entries ...*domain.CreditLedgerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.rows[e.ID] = *e
	}
}

// Entries returns a snapshot of all ledger entries
func (m *MockCreditRepository) Entries() []*domain.CreditLedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CreditLedgerEntry
	for _, r := range m.rows {
		row := r
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Create implements CreditRepository.Create
func (m *MockCreditRepository) Create(ctx context.Context, tx ports.DBTX, entry *domain.CreditLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	m.rows[entry.ID] = *entry
	return nil
}

// ListOpenForUpdate implements CreditRepository.ListOpenForUpdate
func (m *MockCreditRepository) ListOpenForUpdate(ctx context.Context, tx ports.DBTX, customerID, currency string) ([]*domain.CreditLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CreditLedgerEntry
	for _, r := range m.rows {
		if r.CustomerID == customerID && r.Currency == currency && r.Remaining.IsPositive() {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Consume implements CreditRepository.Consume
func (m *MockCreditRepository) Consume(ctx context.Context, tx ports.DBTX, entryID string, amount decimal.Decimal, invoiceNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[entryID]
	if !ok {
		return fmt.Errorf("credit entry %s not found", entryID)
	}
	r.Remaining = r.Remaining.Sub(amount)
	if !r.Remaining.IsPositive() {
		now := time.Now().UTC()
		r.AppliedAt = &now
		r.AppliedInvoice = &invoiceNumber
	}
	m.rows[entryID] = r
	return nil
}

// OpenBalance implements CreditRepository.OpenBalance
func (m *MockCreditRepository) OpenBalance(ctx context.Context, db ports.DBTX, customerID, currency string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, r := range m.rows {
		if r.CustomerID == customerID && r.Currency == currency && r.Remaining.IsPositive() {
			sum = sum.Add(r.Remaining)
		}
	}
	return sum, nil
}

// MockWebhookRepository is an in-memory ports.WebhookRepository
type MockWebhookRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Webhook

	CreateCalls int
	UpdateCalls int
	FailCreate  error
	FailUpdate  error
}

// NewMockWebhookRepository creates an empty webhook ledger
func NewMockWebhookRepository() *MockWebhookRepository {
	return &MockWebhookRepository{rows: make(map[string]domain.Webhook)}
}

// Seed inserts webhook rows directly
func (m *MockWebhookRepository) Seed(rows ...*domain.Webhook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range rows {
		m.rows[w.ID] = *w
	}
}

// All returns a snapshot of every row, oldest first
func (m *MockWebhookRepository) All() []*domain.Webhook {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Webhook
	for _, r := range m.rows {
		row := r
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Create implements WebhookRepository.Create
func (m *MockWebhookRepository) Create(ctx context.Context, tx ports.DBTX, wh *domain.Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	for _, r := range m.rows {
		if r.EventID == wh.EventID && r.EventType == wh.EventType {
			return domain.ErrWebhookDuplicate
		}
	}
	m.rows[wh.ID] = *wh
	return nil
}

// GetByID implements WebhookRepository.GetByID
func (m *MockWebhookRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return &r, nil
}

// ExistsRecent implements WebhookRepository.ExistsRecent
func (m *MockWebhookRepository) ExistsRecent(ctx context.Context, db ports.DBTX, eventID, eventType string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.EventID == eventID && r.EventType == eventType && !r.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// Update implements WebhookRepository.Update
func (m *MockWebhookRepository) Update(ctx context.Context, tx ports.DBTX, wh *domain.Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.FailUpdate != nil {
		return m.FailUpdate
	}
	if _, ok := m.rows[wh.ID]; !ok {
		return domain.ErrWebhookNotFound
	}
	m.rows[wh.ID] = *wh
	return nil
}

// ListDeliverable implements WebhookRepository.ListDeliverable
func (m *MockWebhookRepository) ListDeliverable(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Webhook
	for _, r := range m.rows {
		row := r
		if row.IsDeliverable(now) {
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return window(out, limit, 0), nil
}

// DeleteOlderThan implements WebhookRepository.DeleteOlderThan
func (m *MockWebhookRepository) DeleteOlderThan(ctx context.Context, tx ports.DBTX, status domain.WebhookStatus, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if r.Status == status && r.UpdatedAt.Before(cutoff) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// MockOrderRepository is an in-memory ports.OrderRepository
type MockOrderRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Order

	CreateCalls int
	FailCreate  error
}

// NewMockOrderRepository creates an empty order store
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{rows: make(map[string]domain.Order)}
}

// Seed inserts orders directly
func (m *MockOrderRepository) Seed(orders ...*domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		m.rows[o.ID] = *o
	}
}

// Create implements OrderRepository.Create
func (m *MockOrderRepository) Create(ctx context.Context, tx ports.DBTX, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreate != nil {
		return m.FailCreate
	}
	m.rows[order.ID] = *order
	return nil
}

// GetByID implements OrderRepository.GetByID
func (m *MockOrderRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &r, nil
}

// ListByCustomer implements OrderRepository.ListByCustomer
func (m *MockOrderRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string, limit, offset int32) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, r := range m.rows {
		if r.CustomerID == customerID {
			row := r
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

// MockAuditLogRepository is an in-memory ports.AuditLogRepository
type MockAuditLogRepository struct {
	mu   sync.Mutex
	rows []domain.AuditLog

	FailCreate error
}

// NewMockAuditLogRepository creates an empty audit store
func NewMockAuditLogRepository() *MockAuditLogRepository {
	return &MockAuditLogRepository{}
}

// Seed inserts audit rows directly
func (m *MockAuditLogRepository) Seed(entries ...*domain.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.rows = append(m.rows, *e)
	}
}

// Entries returns a snapshot of all audit rows in insert order
func (m *MockAuditLogRepository) Entries() []*domain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.AuditLog, len(m.rows))
	for i := range m.rows {
		row := m.rows[i]
		out[i] = &row
	}
	return out
}

// Create implements AuditLogRepository.Create
func (m *MockAuditLogRepository) Create(ctx context.Context, tx ports.DBTX, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	m.rows = append(m.rows, *entry)
	return nil
}

// ListByEntity implements AuditLogRepository.ListByEntity
func (m *MockAuditLogRepository) ListByEntity(ctx context.Context, db ports.DBTX, entityType, entityID string, limit int32) ([]*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditLog
	for i := range m.rows {
		if m.rows[i].EntityType == entityType && m.rows[i].EntityID == entityID {
			row := m.rows[i]
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, 0), nil
}

// DeleteOlderThan implements AuditLogRepository.DeleteOlderThan
func (m *MockAuditLogRepository) DeleteOlderThan(ctx context.Context, tx ports.DBTX, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.AuditLog
	var n int64
	for _, r := range m.rows {
		if r.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

// MockAPIKeyRepository is an in-memory ports.APIKeyRepository
type MockAPIKeyRepository struct {
	mu   sync.Mutex
	rows map[string]domain.APIKey // by hash
}

// NewMockAPIKeyRepository creates an empty API key store
func NewMockAPIKeyRepository() *MockAPIKeyRepository {
	return &MockAPIKeyRepository{rows: make(map[string]domain.APIKey)}
}

// Seed inserts API keys directly
func (m *MockAPIKeyRepository) Seed(keys ...*domain.APIKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.rows[k.KeyHash] = *k
	}
}

// Create implements APIKeyRepository.Create
func (m *MockAPIKeyRepository) Create(ctx context.Context, tx ports.DBTX, key *domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[key.KeyHash] = *key
	return nil
}

// GetByHash implements APIKeyRepository.GetByHash
func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, db ports.DBTX, keyHash string) (*domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[keyHash]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	return &r, nil
}

// TouchLastUsed implements APIKeyRepository.TouchLastUsed
func (m *MockAPIKeyRepository) TouchLastUsed(ctx context.Context, db ports.DBTX, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, r := range m.rows {
		if r.ID == id {
			r.LastUsedAt = &at
			m.rows[hash] = r
			return nil
		}
	}
	return domain.ErrAPIKeyNotFound
}

// Deactivate implements APIKeyRepository.Deactivate
func (m *MockAPIKeyRepository) Deactivate(ctx context.Context, tx ports.DBTX, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, r := range m.rows {
		if r.ID == id {
			r.IsActive = false
			m.rows[hash] = r
			return nil
		}
	}
	return domain.ErrAPIKeyNotFound
}

// window applies limit/offset to a sorted slice.
func window[T any](rows []T, limit, offset int32) []T {
	if offset > 0 {
		if int(offset) >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && int(limit) < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
