package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/services/webhook"
	"github.com/recurpay/billing-gateway/test/mocks"
)

const outboundSecret = "whsec-out"

type outboundFixture struct {
	webhooks *mocks.MockWebhookRepository
	client   *mocks.MockHTTPClient
	logger   *mocks.MockLogger
	service  *webhook.OutboundService
}

// newOutboundFixture builds the sweeper with concurrency 1 so rows are
// delivered in list order and assertions stay deterministic.
func newOutboundFixture(doFunc func(req *http.Request) (*http.Response, error)) *outboundFixture {
	f := &outboundFixture{
		webhooks: mocks.NewMockWebhookRepository(),
		client:   mocks.NewMockHTTPClient(doFunc),
		logger:   mocks.NewMockLogger(),
	}
	f.service = webhook.NewOutboundService(f.webhooks, f.client, nil, f.logger, webhook.OutboundConfig{
		SigningSecret: outboundSecret,
		Jitter:        false,
		Concurrency:   1,
	})
	return f
}

// queuedWebhook builds an outbound row due at the given time
func queuedWebhook(id string, attempts int, due time.Time) *domain.Webhook {
	endpoint := merchantEndpoint
	status := domain.WebhookStatusPending
	if attempts > 0 {
		status = domain.WebhookStatusRetrying
	}
	next := due
	return &domain.Webhook{
		ID:            id,
		EventID:       "evt-" + id,
		EventType:     "recurpay.payment.authcapture.created",
		CorrelationID: "corr-" + id,
		Direction:     domain.WebhookDirectionOut,
		Status:        status,
		Attempts:      attempts,
		MaxAttempts:   8,
		EndpointURL:   &endpoint,
		RequestBody:   []byte(`{"payload":{"transaction_id":"txn-1"}}`),
		NextAttemptAt: &next,
		CreatedAt:     due,
		UpdatedAt:     due,
	}
}

func httpResponse(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
		Header:     make(http.Header),
	}
}

func getRow(t *testing.T, f *outboundFixture, id string) *domain.Webhook {
	t.Helper()
	row, err := f.webhooks.GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return row
}

func outboundSignature(body []byte) string {
	mac := hmac.New(sha256.New, []byte(outboundSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestOutbound_DeliversAndRecordsResponse(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return httpResponse(200), nil
	})
	now := time.Now().UTC()
	f.webhooks.Seed(queuedWebhook("wh-1", 0, now.Add(-time.Minute)))

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Picked)
	assert.Equal(t, 1, report.Delivered)

	row := getRow(t, f, "wh-1")
	assert.Equal(t, domain.WebhookStatusDelivered, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.DeliveredAt)
	require.NotNil(t, row.ResponseCode)
	assert.Equal(t, 200, *row.ResponseCode)
	require.NotNil(t, row.ResponseBody)
	assert.Equal(t, `{"ok":true}`, *row.ResponseBody)
	assert.Nil(t, row.NextAttemptAt)
	assert.Nil(t, row.LastError)

	reqs := f.client.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, merchantEndpoint, req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "wh-1", req.Header.Get(webhook.HeaderWebhookID))
	assert.Equal(t, "corr-wh-1", req.Header.Get(webhook.HeaderCorrelationID))
	assert.Equal(t, "recurpay.payment.authcapture.created", req.Header.Get(webhook.HeaderEventType))
	assert.Equal(t, "1", req.Header.Get(webhook.HeaderAttempt))

	_, err = time.Parse(time.RFC3339, req.Header.Get(webhook.HeaderTimestamp))
	assert.NoError(t, err, "timestamp header must be RFC3339")

	expected := outboundSignature([]byte(`{"payload":{"transaction_id":"txn-1"}}`))
	assert.Equal(t, expected, req.Header.Get(webhook.HeaderSignature))
}

func TestOutbound_RetriesServerErrors(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return httpResponse(500), nil
	})
	now := time.Now().UTC()
	f.webhooks.Seed(queuedWebhook("wh-1", 0, now.Add(-time.Minute)))

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)

	row := getRow(t, f, "wh-1")
	assert.Equal(t, domain.WebhookStatusRetrying, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "HTTP 500", *row.LastError)
	require.NotNil(t, row.NextAttemptAt)
	assert.True(t, row.NextAttemptAt.Equal(now.Add(time.Minute)),
		"first retry waits the initial delay, got %s", row.NextAttemptAt)

	// Not due yet, so the next sweep leaves it alone.
	report, err = f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Picked)
	assert.Equal(t, 1, f.client.CallCount())
}

func TestOutbound_BacksOffExponentially(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return httpResponse(503), nil
	})
	now := time.Now().UTC()
	f.webhooks.Seed(queuedWebhook("wh-1", 2, now.Add(-time.Minute)))

	_, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)

	// Third attempt failed: 1m * 2^2 until the fourth.
	row := getRow(t, f, "wh-1")
	assert.Equal(t, 3, row.Attempts)
	require.NotNil(t, row.NextAttemptAt)
	assert.True(t, row.NextAttemptAt.Equal(now.Add(4*time.Minute)),
		"expected 4m backoff, got %s", row.NextAttemptAt.Sub(now))
}

func TestOutbound_TerminalClientError(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return httpResponse(404), nil
	})
	now := time.Now().UTC()
	f.webhooks.Seed(queuedWebhook("wh-1", 0, now.Add(-time.Minute)))

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	row := getRow(t, f, "wh-1")
	assert.Equal(t, domain.WebhookStatusFailed, row.Status)
	assert.Nil(t, row.NextAttemptAt, "rejected events are not retried")
	require.NotNil(t, row.LastError)
	assert.Equal(t, "HTTP 404", *row.LastError)
	assert.Equal(t, 1, f.client.CallCount())
}

func TestOutbound_TooManyRequestsRetries(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return httpResponse(429), nil
	})
	now := time.Now().UTC()
	f.webhooks.Seed(queuedWebhook("wh-1", 0, now.Add(-time.Minute)))

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, domain.WebhookStatusRetrying, getRow(t, f, "wh-1").Status)
}

func TestOutbound_TransportErrorRetries(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	now := time.Now().UTC()
	f.webhooks.Seed(queuedWebhook("wh-1", 0, now.Add(-time.Minute)))

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)

	row := getRow(t, f, "wh-1")
	assert.Equal(t, domain.WebhookStatusRetrying, row.Status)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "transport: dial tcp")
}

func TestOutbound_ExhaustionFails(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return httpResponse(500), nil
	})
	now := time.Now().UTC()
	f.webhooks.Seed(queuedWebhook("wh-1", 7, now.Add(-time.Minute)))

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	row := getRow(t, f, "wh-1")
	assert.Equal(t, domain.WebhookStatusFailed, row.Status)
	assert.Equal(t, 8, row.Attempts)
	assert.Nil(t, row.NextAttemptAt)
}

func TestOutbound_MissingEndpointFails(t *testing.T) {
	f := newOutboundFixture(nil)
	now := time.Now().UTC()
	row := queuedWebhook("wh-1", 0, now.Add(-time.Minute))
	row.EndpointURL = nil
	f.webhooks.Seed(row)

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, f.client.CallCount())

	got := getRow(t, f, "wh-1")
	assert.Equal(t, domain.WebhookStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "no endpoint url", *got.LastError)
}

func TestOutbound_CircuitOpensAndSkips(t *testing.T) {
	f := newOutboundFixture(func(req *http.Request) (*http.Response, error) {
		return httpResponse(500), nil
	})
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		f.webhooks.Seed(queuedWebhook(
			fmt.Sprintf("wh-%d", i), 0, now.Add(-time.Hour+time.Duration(i)*time.Second)))
	}

	report, err := f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Picked)
	assert.Equal(t, 5, report.Retried)
	assert.Equal(t, 5, f.client.CallCount())

	// Five straight failures opened the endpoint's breaker; the next
	// due row is pushed out without an HTTP call or a spent attempt.
	f.webhooks.Seed(queuedWebhook("wh-next", 0, now.Add(-time.Minute)))

	report, err = f.service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Picked)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 5, f.client.CallCount(), "open circuit must not reach the endpoint")

	row := getRow(t, f, "wh-next")
	assert.Equal(t, domain.WebhookStatusRetrying, row.Status)
	assert.Equal(t, 0, row.Attempts)
	require.NotNil(t, row.LastError)
	assert.True(t, strings.HasPrefix(*row.LastError, "circuit:"), "got %q", *row.LastError)
	require.NotNil(t, row.NextAttemptAt)
	assert.True(t, row.NextAttemptAt.Equal(now.Add(time.Minute)))
}

func TestOutbound_HalfOpenProbeClosesCircuit(t *testing.T) {
	client := mocks.NewMockHTTPClient(nil)
	client.DoFunc = func(req *http.Request) (*http.Response, error) {
		if client.CallCount() == 1 {
			return httpResponse(500), nil
		}
		return httpResponse(200), nil
	}
	webhooks := mocks.NewMockWebhookRepository()
	registry := webhook.NewBreakerRegistry(webhook.CircuitBreakerConfig{
		MaxFailures:         1,
		Timeout:             5 * time.Millisecond,
		MaxRequestsHalfOpen: 1,
	})
	service := webhook.NewOutboundService(webhooks, client, registry, mocks.NewMockLogger(), webhook.OutboundConfig{
		Jitter:      false,
		Concurrency: 1,
	})

	now := time.Now().UTC()
	webhooks.Seed(queuedWebhook("wh-1", 0, now.Add(-time.Minute)))
	_, err := service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, webhook.StateOpen, registry.For(merchantEndpoint).State())

	time.Sleep(10 * time.Millisecond)

	webhooks.Seed(queuedWebhook("wh-2", 0, now.Add(-time.Minute)))
	report, err := service.DeliverDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)

	row, err := webhooks.GetByID(context.Background(), nil, "wh-2")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStatusDelivered, row.Status)
	assert.Equal(t, webhook.StateClosed, registry.For(merchantEndpoint).State())
}

func TestOutbound_EmptySweep(t *testing.T) {
	f := newOutboundFixture(nil)

	report, err := f.service.DeliverDue(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Picked)
	assert.Equal(t, 0, f.client.CallCount())
}

func TestOutbound_CleanupPrunesOldTerminalRows(t *testing.T) {
	f := newOutboundFixture(nil)
	now := time.Now().UTC()

	stale := func(id string, status domain.WebhookStatus, age time.Duration) *domain.Webhook {
		row := queuedWebhook(id, 1, now.Add(-age))
		row.Status = status
		row.NextAttemptAt = nil
		return row
	}
	f.webhooks.Seed(
		stale("wh-old-delivered", domain.WebhookStatusDelivered, 8*24*time.Hour),
		stale("wh-old-failed", domain.WebhookStatusFailed, 31*24*time.Hour),
		stale("wh-recent-delivered", domain.WebhookStatusDelivered, 24*time.Hour),
		stale("wh-ancient-pending", domain.WebhookStatusPending, 40*24*time.Hour),
	)

	n, err := f.service.Cleanup(context.Background(),
		now.AddDate(0, 0, -7), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining := f.webhooks.All()
	require.Len(t, remaining, 2)
	ids := []string{remaining[0].ID, remaining[1].ID}
	assert.Contains(t, ids, "wh-recent-delivered")
	assert.Contains(t, ids, "wh-ancient-pending", "only terminal rows are pruned")
}
