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

// WebhookRepository implements ports.WebhookRepository
type WebhookRepository struct {
	db ports.DBPort
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db ports.DBPort) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `
	id, event_id, event_type, direction, status, correlation_id,
	endpoint_url, request_headers, request_body, response_code,
	response_headers, response_body, attempts, max_attempts,
	next_attempt_at, delivered_at, last_error, created_at, updated_at`

// Create inserts a webhook row. (event_id, event_type) carries a unique
// index so replayed processor events collapse into one row.
func (r *WebhookRepository) Create(ctx context.Context, tx ports.DBTX, wh *domain.Webhook) error {
	query := `
	INSERT INTO webhooks (
		id, event_id, event_type, direction, status, correlation_id,
		endpoint_url, request_headers, request_body, response_code,
		response_headers, response_body, attempts, max_attempts,
		next_attempt_at, delivered_at, last_error, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19
	)`

	reqHeaders, err := marshalMap(wh.RequestHeaders)
	if err != nil {
		return err
	}
	respHeaders, err := marshalMap(wh.ResponseHeaders)
	if err != nil {
		return err
	}

	_, err = exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&wh.ID),
		wh.EventID,
		wh.EventType,
		string(wh.Direction),
		string(wh.Status),
		wh.CorrelationID,
		converters.ToNullableText(wh.EndpointURL),
		reqHeaders,
		wh.RequestBody,
		converters.ToNullableInt32(wh.ResponseCode),
		respHeaders,
		converters.ToNullableText(wh.ResponseBody),
		wh.Attempts,
		wh.MaxAttempts,
		converters.ToNullableTimestamptz(wh.NextAttemptAt),
		converters.ToNullableTimestamptz(wh.DeliveredAt),
		converters.ToNullableText(wh.LastError),
		wh.CreatedAt,
		wh.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrWebhookDuplicate
		}
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

// GetByID retrieves a webhook by ID
func (r *WebhookRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Webhook, error) {
	query := `SELECT` + webhookColumns + ` FROM webhooks WHERE id = $1`

	wh, err := scanWebhook(exec(r.db, db).QueryRow(ctx, query, converters.ToNullableUUID(&id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return wh, nil
}

// ExistsRecent reports whether an inbound (event_id, event_type) pair was
// persisted within the dedupe window
func (r *WebhookRepository) ExistsRecent(ctx context.Context, db ports.DBTX, eventID, eventType string, since time.Time) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM webhooks
		WHERE event_id = $1
		  AND event_type = $2
		  AND direction = $3
		  AND created_at >= $4
	)`

	var exists bool
	err := exec(r.db, db).QueryRow(ctx, query,
		eventID, eventType, string(domain.WebhookDirectionIn), since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check webhook dedupe: %w", err)
	}
	return exists, nil
}

// Update persists delivery state for a webhook row
func (r *WebhookRepository) Update(ctx context.Context, tx ports.DBTX, wh *domain.Webhook) error {
	query := `
	UPDATE webhooks SET
		status = $2,
		attempts = $3,
		response_code = $4,
		response_headers = $5,
		response_body = $6,
		next_attempt_at = $7,
		delivered_at = $8,
		last_error = $9,
		updated_at = $10
	WHERE id = $1`

	respHeaders, err := marshalMap(wh.ResponseHeaders)
	if err != nil {
		return err
	}

	tag, err := exec(r.db, tx).Exec(ctx, query,
		converters.ToNullableUUID(&wh.ID),
		string(wh.Status),
		wh.Attempts,
		converters.ToNullableInt32(wh.ResponseCode),
		respHeaders,
		converters.ToNullableText(wh.ResponseBody),
		converters.ToNullableTimestamptz(wh.NextAttemptAt),
		converters.ToNullableTimestamptz(wh.DeliveredAt),
		converters.ToNullableText(wh.LastError),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

// ListDeliverable lists outbound rows ready for a delivery attempt,
// oldest first so retries do not starve fresh events
func (r *WebhookRepository) ListDeliverable(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]*domain.Webhook, error) {
	query := `
	SELECT` + webhookColumns + `
	FROM webhooks
	WHERE direction = $1
	  AND status IN ($2, $3)
	  AND (next_attempt_at IS NULL OR next_attempt_at <= $4)
	ORDER BY created_at ASC
	LIMIT $5`

	rows, err := exec(r.db, db).Query(ctx, query,
		string(domain.WebhookDirectionOut),
		string(domain.WebhookStatusPending),
		string(domain.WebhookStatusRetrying),
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deliverable webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*domain.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		hooks = append(hooks, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return hooks, nil
}

// DeleteOlderThan removes rows with the given status last touched before
// cutoff, returning the number deleted
func (r *WebhookRepository) DeleteOlderThan(ctx context.Context, tx ports.DBTX, status domain.WebhookStatus, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhooks WHERE status = $1 AND updated_at < $2`

	tag, err := exec(r.db, tx).Exec(ctx, query, string(status), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete webhooks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanWebhook(row pgx.Row) (*domain.Webhook, error) {
	var (
		id                          pgtype.UUID
		eventID, eventType          string
		direction, status           string
		correlationID               string
		endpointURL                 pgtype.Text
		reqHeadersJSON, respHeaders []byte
		requestBody                 []byte
		responseCode                pgtype.Int4
		responseBody, lastError     pgtype.Text
		attempts, maxAttempts       int
		nextAttemptAt, deliveredAt  pgtype.Timestamptz
		createdAt, updatedAt        time.Time
	)

	err := row.Scan(
		&id, &eventID, &eventType, &direction, &status, &correlationID,
		&endpointURL, &reqHeadersJSON, &requestBody, &responseCode,
		&respHeaders, &responseBody, &attempts, &maxAttempts,
		&nextAttemptAt, &deliveredAt, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	requestHeaders, err := unmarshalMap(reqHeadersJSON)
	if err != nil {
		return nil, err
	}
	responseHeaders, err := unmarshalMap(respHeaders)
	if err != nil {
		return nil, err
	}

	return &domain.Webhook{
		ID:              uuidString(id),
		EventID:         eventID,
		EventType:       eventType,
		Direction:       domain.WebhookDirection(direction),
		Status:          domain.WebhookStatus(status),
		CorrelationID:   correlationID,
		EndpointURL:     converters.FromNullableText(endpointURL),
		RequestHeaders:  requestHeaders,
		RequestBody:     requestBody,
		ResponseCode:    converters.FromNullableInt32(responseCode),
		ResponseHeaders: responseHeaders,
		ResponseBody:    converters.FromNullableText(responseBody),
		Attempts:        attempts,
		MaxAttempts:     maxAttempts,
		NextAttemptAt:   converters.FromNullableTimestamptz(nextAttemptAt),
		DeliveredAt:     converters.FromNullableTimestamptz(deliveredAt),
		LastError:       converters.FromNullableText(lastError),
		CreatedAt:       createdAt.UTC(),
		UpdatedAt:       updatedAt.UTC(),
	}, nil
}
