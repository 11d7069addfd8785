package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/recurpay/billing-gateway/internal/converters"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// CustomerRepository implements ports.CustomerRepository
type CustomerRepository struct {
	db ports.DBPort
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db ports.DBPort) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `
	id, email, first_name, last_name, phone, billing_address,
	processor_profile_id, external_reference, is_active, created_at, updated_at`

// Create inserts a new customer; duplicate emails surface as a conflict
func (r *CustomerRepository) Create(ctx context.Context, tx ports.DBTX, customer *domain.Customer) error {
	query := `
	INSERT INTO customers (
		id, email, first_name, last_name, phone, billing_address,
		processor_profile_id, external_reference, is_active, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	address, err := marshalAddress(customer.BillingAddress)
	if err != nil {
		return err
	}

	_, err = exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&customer.ID),
		customer.Email,
		customer.FirstName,
		customer.LastName,
		converters.ToNullableText(customer.Phone),
		address,
		converters.ToNullableText(customer.ProcessorProfileID),
		converters.ToNullableText(customer.ExternalReference),
		customer.IsActive,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeValidationFailed, "customer email already exists", err)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Customer, error) {
	query := `SELECT` + customerColumns + ` FROM customers WHERE id = $1`
	return r.getOne(ctx, db, query, converters.ToNullableUUID(&id))
}

// GetByEmail retrieves a customer by email
func (r *CustomerRepository) GetByEmail(ctx context.Context, db ports.DBTX, email string) (*domain.Customer, error) {
	query := `SELECT` + customerColumns + ` FROM customers WHERE email = $1`
	return r.getOne(ctx, db, query, email)
}

// Update persists mutable customer fields
func (r *CustomerRepository) Update(ctx context.Context, tx ports.DBTX, customer *domain.Customer) error {
	query := `
	UPDATE customers SET
		first_name = $2,
		last_name = $3,
		phone = $4,
		billing_address = $5,
		external_reference = $6,
		is_active = $7,
		updated_at = $8
	WHERE id = $1`

	address, err := marshalAddress(customer.BillingAddress)
	if err != nil {
		return err
	}

	tag, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&customer.ID),
		customer.FirstName,
		customer.LastName,
		converters.ToNullableText(customer.Phone),
		address,
		converters.ToNullableText(customer.ExternalReference),
		customer.IsActive,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

// SetProcessorProfileID records the processor profile id exactly once
func (r *CustomerRepository) SetProcessorProfileID(ctx context.Context, tx ports.DBTX, customerID, profileID string) error {
	query := `
	UPDATE customers SET
		processor_profile_id = $2,
		updated_at = $3
	WHERE id = $1 AND processor_profile_id IS NULL`

	_, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&customerID),
		profileID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set processor profile id: %w", err)
	}
	return nil
}

func (r *CustomerRepository) getOne(ctx context.Context, db ports.DBTX, query string, args ...interface{}) (*domain.Customer, error) {
	var (
		id                           pgtype.UUID
		email, firstName, lastName   string
		phone, profileID, externalRf pgtype.Text
		addressJSON                  []byte
		isActive                     bool
		createdAt, updatedAt         time.Time
	)

	err := exec(r.db, db).QueryRow(ctx, query, args...).Scan(
		&id, &email, &firstName, &lastName, &phone, &addressJSON,
		&profileID, &externalRf, &isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	address, err := unmarshalAddress(addressJSON)
	if err != nil {
		return nil, err
	}

	return &domain.Customer{
		ID:                 uuidString(id),
		Email:              email,
		FirstName:          firstName,
		LastName:           lastName,
		Phone:              converters.FromNullableText(phone),
		BillingAddress:     address,
		ProcessorProfileID: converters.FromNullableText(profileID),
		ExternalReference:  converters.FromNullableText(externalRf),
		IsActive:           isActive,
		CreatedAt:          createdAt.UTC(),
		UpdatedAt:          updatedAt.UTC(),
	}, nil
}

func marshalAddress(a *domain.BillingAddress) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal billing address: %w", err)
	}
	return b, nil
}

func unmarshalAddress(b []byte) (*domain.BillingAddress, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var a domain.BillingAddress
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	return &a, nil
}
