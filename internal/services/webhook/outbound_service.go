package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	"github.com/recurpay/billing-gateway/pkg/observability"
	"github.com/recurpay/billing-gateway/pkg/resilience"
)

// Delivery headers sent with every merchant notification
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderWebhookID     = "X-Webhook-ID"
	HeaderEventType     = "X-Event-Type"
	HeaderAttempt       = "X-Attempt"
	HeaderTimestamp     = "X-Timestamp"
	HeaderSignature     = "X-Webhook-Signature"
)

// maxResponseBytes bounds how much of an endpoint's reply is persisted
const maxResponseBytes = 4 << 10

// OutboundConfig configures the delivery sweeper
type OutboundConfig struct {
	// SigningSecret signs outbound bodies; empty skips signing
	SigningSecret string
	// Timeout bounds each delivery request
	Timeout time.Duration
	// InitialDelay, Multiplier, MaxDelay and Jitter shape the retry
	// schedule persisted as next_attempt_at
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
	// Concurrency bounds parallel deliveries within a sweep
	Concurrency int
	// SweepBatch caps rows picked per sweep
	SweepBatch int32
}

// DefaultOutboundConfig returns the delivery defaults
func DefaultOutboundConfig() OutboundConfig {
	return OutboundConfig{
		Timeout:      30 * time.Second,
		InitialDelay: time.Minute,
		Multiplier:   2.0,
		MaxDelay:     24 * time.Hour,
		Jitter:       true,
		Concurrency:  8,
		SweepBatch:   100,
	}
}

// deliveryOutcome classifies what one attempt did with a row
type deliveryOutcome int

const (
	outcomeDelivered deliveryOutcome = iota
	outcomeRetried
	outcomeFailed
	outcomeSkipped
)

func (o deliveryOutcome) String() string {
	switch o {
	case outcomeDelivered:
		return "delivered"
	case outcomeRetried:
		return "retried"
	case outcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// OutboundService sweeps the webhook ledger and delivers queued
// merchant notifications. Endpoints that keep failing are shielded by
// per-endpoint circuit breakers so one dead merchant cannot absorb the
// whole sweep.
type OutboundService struct {
	webhooks ports.WebhookRepository
	client   ports.HTTPClient
	breakers *BreakerRegistry
	backoff  *resilience.ExponentialBackoff
	logger   ports.Logger
	cfg      OutboundConfig
}

// NewOutboundService creates the delivery service. A nil registry gets
// the default breaker configuration.
func NewOutboundService(
	webhooks ports.WebhookRepository,
	client ports.HTTPClient,
	breakers *BreakerRegistry,
	logger ports.Logger,
	cfg OutboundConfig,
) *OutboundService {
	def := DefaultOutboundConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = def.SweepBatch
	}
	if breakers == nil {
		breakers = NewBreakerRegistry(DefaultCircuitBreakerConfig())
	}
	return &OutboundService{
		webhooks: webhooks,
		client:   client,
		breakers: breakers,
		backoff:  resilience.DeliveryBackoff(cfg.InitialDelay, cfg.Multiplier, cfg.MaxDelay, cfg.Jitter),
		logger:   logger,
		cfg:      cfg,
	}
}

var _ serviceports.WebhookOutboundService = (*OutboundService)(nil)

// DeliverDue delivers queued webhooks whose next attempt is due. Each
// row is handled by exactly one goroutine within the sweep; the
// scheduler never overlaps sweeps.
func (s *OutboundService) DeliverDue(ctx context.Context, now time.Time) (*serviceports.DeliveryReport, error) {
	rows, err := s.webhooks.ListDeliverable(ctx, nil, now, s.cfg.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list deliverable webhooks: %w", err)
	}

	report := &serviceports.DeliveryReport{Picked: len(rows)}
	if len(rows) == 0 {
		return report, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Concurrency)
	)
	for _, row := range rows {
		row := row
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			started := time.Now()
			outcome := s.deliverOne(ctx, row, now)
			observability.RecordWebhookDelivery(row.EventType, outcome.String(),
				time.Since(started).Seconds())

			mu.Lock()
			switch outcome {
			case outcomeDelivered:
				report.Delivered++
			case outcomeRetried:
				report.Retried++
			case outcomeFailed:
				report.Failed++
			case outcomeSkipped:
				report.Skipped++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.logger.Info("webhook delivery sweep finished",
		ports.Int("picked", report.Picked),
		ports.Int("delivered", report.Delivered),
		ports.Int("retried", report.Retried),
		ports.Int("failed", report.Failed),
		ports.Int("skipped", report.Skipped))
	return report, nil
}

// Cleanup prunes terminal rows past their retention windows
func (s *OutboundService) Cleanup(ctx context.Context, deliveredBefore, failedBefore time.Time) (int64, error) {
	delivered, err := s.webhooks.DeleteOlderThan(ctx, nil, domain.WebhookStatusDelivered, deliveredBefore)
	if err != nil {
		return 0, fmt.Errorf("prune delivered webhooks: %w", err)
	}
	failed, err := s.webhooks.DeleteOlderThan(ctx, nil, domain.WebhookStatusFailed, failedBefore)
	if err != nil {
		return delivered, fmt.Errorf("prune failed webhooks: %w", err)
	}
	total := delivered + failed
	if total > 0 {
		s.logger.Info("webhook ledger pruned",
			ports.Int("delivered_removed", int(delivered)),
			ports.Int("failed_removed", int(failed)))
	}
	return total, nil
}

// deliverOne pushes one row through a single delivery attempt
func (s *OutboundService) deliverOne(ctx context.Context, wh *domain.Webhook, now time.Time) deliveryOutcome {
	endpoint := ""
	if wh.EndpointURL != nil {
		endpoint = *wh.EndpointURL
	}
	if endpoint == "" {
		return s.finalizeFailed(ctx, wh, now, "no endpoint url")
	}

	breaker := s.breakers.For(endpoint)
	if err := breaker.Allow(); err != nil {
		// Skips do not consume a delivery attempt.
		return s.reschedule(ctx, wh, now, err.Error())
	}

	wh.Status = domain.WebhookStatusProcessing
	resp, err := s.send(ctx, wh, endpoint, now)
	wh.Attempts++

	if err != nil {
		breaker.Record(false)
		return s.retryOrFail(ctx, wh, now, "transport: "+truncate(err.Error(), 500))
	}

	code := resp.status
	wh.ResponseCode = &code
	wh.ResponseBody = &resp.body
	wh.ResponseHeaders = resp.headers

	switch {
	case code >= 200 && code < 300:
		breaker.Record(true)
		return s.finalizeDelivered(ctx, wh, now)

	case code == http.StatusTooManyRequests || code >= 500:
		breaker.Record(false)
		return s.retryOrFail(ctx, wh, now, fmt.Sprintf("HTTP %d", code))

	default:
		// Remaining 4xx: the endpoint rejected the event for good. The
		// endpoint itself answered, so the breaker stays healthy.
		breaker.Record(true)
		return s.finalizeFailed(ctx, wh, now, fmt.Sprintf("HTTP %d", code))
	}
}

// deliveryResponse is what survives of the endpoint's reply
type deliveryResponse struct {
	headers map[string]string
	body    string
	status  int
}

// send performs the HTTP POST within the configured timeout
func (s *OutboundService) send(ctx context.Context, wh *domain.Webhook, endpoint string, now time.Time) (*deliveryResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(wh.RequestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCorrelationID, wh.CorrelationID)
	req.Header.Set(HeaderWebhookID, wh.ID)
	req.Header.Set(HeaderEventType, wh.EventType)
	req.Header.Set(HeaderAttempt, strconv.Itoa(wh.Attempts+1))
	req.Header.Set(HeaderTimestamp, now.UTC().Format(time.RFC3339))
	if s.cfg.SigningSecret != "" {
		req.Header.Set(HeaderSignature, signBody(s.cfg.SigningSecret, wh.RequestBody))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return &deliveryResponse{
		status:  resp.StatusCode,
		body:    string(body),
		headers: flattenHeaders(resp.Header),
	}, nil
}

// finalizeDelivered records a successful delivery
func (s *OutboundService) finalizeDelivered(ctx context.Context, wh *domain.Webhook, now time.Time) deliveryOutcome {
	wh.Status = domain.WebhookStatusDelivered
	delivered := now
	wh.DeliveredAt = &delivered
	wh.NextAttemptAt = nil
	wh.LastError = nil
	wh.UpdatedAt = now
	s.persist(ctx, wh)

	s.logger.Info("webhook delivered",
		ports.String("webhook_id", wh.ID),
		ports.String("event_type", wh.EventType),
		ports.Int("attempts", wh.Attempts))
	return outcomeDelivered
}

// retryOrFail schedules the next attempt, or gives up at the cap
func (s *OutboundService) retryOrFail(ctx context.Context, wh *domain.Webhook, now time.Time, reason string) deliveryOutcome {
	msg := reason
	wh.LastError = &msg
	wh.UpdatedAt = now

	if wh.Exhausted() {
		wh.Status = domain.WebhookStatusFailed
		wh.NextAttemptAt = nil
		s.persist(ctx, wh)

		s.logger.Error("webhook delivery exhausted",
			ports.String("webhook_id", wh.ID),
			ports.String("event_type", wh.EventType),
			ports.Int("attempts", wh.Attempts),
			ports.String("last_error", reason))
		return outcomeFailed
	}

	// The delay exponent counts attempts before this one, so the first
	// retry waits the initial delay.
	next := now.Add(s.backoff.NextDelay(wh.Attempts - 1))
	wh.Status = domain.WebhookStatusRetrying
	wh.NextAttemptAt = &next
	s.persist(ctx, wh)

	s.logger.Warn("webhook delivery rescheduled",
		ports.String("webhook_id", wh.ID),
		ports.Int("attempts", wh.Attempts),
		ports.String("last_error", reason))
	return outcomeRetried
}

// reschedule pushes a skipped row out without consuming an attempt
func (s *OutboundService) reschedule(ctx context.Context, wh *domain.Webhook, now time.Time, reason string) deliveryOutcome {
	msg := "circuit: " + reason
	next := now.Add(s.backoff.NextDelay(wh.Attempts))
	wh.Status = domain.WebhookStatusRetrying
	wh.NextAttemptAt = &next
	wh.LastError = &msg
	wh.UpdatedAt = now
	s.persist(ctx, wh)
	return outcomeSkipped
}

// finalizeFailed terminally fails a row
func (s *OutboundService) finalizeFailed(ctx context.Context, wh *domain.Webhook, now time.Time, reason string) deliveryOutcome {
	msg := reason
	wh.Status = domain.WebhookStatusFailed
	wh.NextAttemptAt = nil
	wh.LastError = &msg
	wh.UpdatedAt = now
	s.persist(ctx, wh)

	s.logger.Error("webhook delivery failed",
		ports.String("webhook_id", wh.ID),
		ports.String("event_type", wh.EventType),
		ports.String("last_error", reason))
	return outcomeFailed
}

func (s *OutboundService) persist(ctx context.Context, wh *domain.Webhook) {
	if err := s.webhooks.Update(ctx, nil, wh); err != nil {
		s.logger.Error("persist webhook delivery state",
			ports.String("webhook_id", wh.ID),
			ports.Err(err))
	}
}

// signBody produces the signature merchants verify deliveries with
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
