package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/recurpay/billing-gateway/internal/converters"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// AuditLogRepository implements ports.AuditLogRepository
type AuditLogRepository struct {
	db ports.DBPort
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db ports.DBPort) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create inserts an audit row
func (r *AuditLogRepository) Create(ctx context.Context, tx ports.DBTX, entry *domain.AuditLog) error {
	query := `
	INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	detail, err := marshalMap(entry.Detail)
	if err != nil {
		return err
	}

	_, err = exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&entry.ID),
		entry.Actor,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		detail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByEntity lists audit rows for one entity, newest first
func (r *AuditLogRepository) ListByEntity(ctx context.Context, db ports.DBTX, entityType, entityID string, limit int32) ([]*domain.AuditLog, error) {
	query := `
	SELECT id, actor, action, entity_type, entity_id, detail, created_at
	FROM audit_logs
	WHERE entity_type = $1 AND entity_id = $2
	ORDER BY created_at DESC
	LIMIT $3`

	rows, err := exec(r.db, db).Query(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan prunes audit rows created before cutoff
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, tx ports.DBTX, cutoff time.Time) (int64, error) {
	tag, err := exec(r.db, tx).Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAuditLog(row pgx.Row) (*domain.AuditLog, error) {
	var (
		id                   pgtype.UUID
		actor, action        string
		entityType, entityID string
		detailJSON           []byte
		createdAt            time.Time
	)

	err := row.Scan(&id, &actor, &action, &entityType, &entityID, &detailJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	detail, err := unmarshalMap(detailJSON)
	if err != nil {
		return nil, err
	}

	return &domain.AuditLog{
		ID:         uuidString(id),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  createdAt.UTC(),
	}, nil
}
