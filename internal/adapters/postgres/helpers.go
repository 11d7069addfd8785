package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// uniqueViolationCode is the PostgreSQL error code for unique index conflicts.
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a unique index conflict.
// Idempotency inserts and webhook dedupe rely on this as the
// single-writer gate.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// exec returns tx when non-nil, the pool otherwise. Repositories call it
// so the same query code runs standalone or inside WithTransaction.
func exec(db ports.DBPort, tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return db.GetDB()
}

// uuidString renders a pgtype.UUID as its canonical string form.
func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// uuidPtr renders a nullable pgtype.UUID as a string pointer.
func uuidPtr(u pgtype.UUID) *string {
	if !u.Valid {
		return nil
	}
	s := uuid.UUID(u.Bytes).String()
	return &s
}

// marshalMap serializes a string map for a JSONB column; nil maps become {}.
func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal map: %w", err)
	}
	return b, nil
}

// unmarshalMap deserializes a JSONB column into a string map; empty or
// null columns yield nil.
func unmarshalMap(b []byte) (map[string]string, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal map: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// intPtrToInt32 widens *int to *int32 for pgtype.Int4 columns.
func intPtrToInt32(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func int32PtrToInt(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
