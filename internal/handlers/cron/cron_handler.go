package cron

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// Retention controls how long terminal outbound webhooks are kept
// before the cleanup sweep removes them.
type Retention struct {
	Delivered time.Duration
	Failed    time.Duration
}

// Handler exposes the scheduled sweeps for external triggering. The
// in-process scheduler runs the same sweeps on a cadence; these routes
// exist for operators and external schedulers, authenticated by a
// shared secret rather than the public API middleware.
type Handler struct {
	billing  serviceports.BillingService
	webhooks serviceports.WebhookOutboundService
	payments serviceports.PaymentService
	logger   ports.Logger
	secret   string
	keep     Retention
}

// NewHandler creates a new cron handler
func NewHandler(
	billing serviceports.BillingService,
	webhooks serviceports.WebhookOutboundService,
	payments serviceports.PaymentService,
	keep Retention,
	secret string,
	logger ports.Logger,
) *Handler {
	return &Handler{
		billing:  billing,
		webhooks: webhooks,
		payments: payments,
		logger:   logger,
		secret:   secret,
		keep:     keep,
	}
}

// RegisterRoutes mounts the cron endpoints on the router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cron/billing/process", h.ProcessBilling).Methods(http.MethodPost)
	r.HandleFunc("/cron/billing/retries", h.RetryPayments).Methods(http.MethodPost)
	r.HandleFunc("/cron/billing/lifecycle", h.RunLifecycle).Methods(http.MethodPost)
	r.HandleFunc("/cron/webhooks/deliver", h.DeliverWebhooks).Methods(http.MethodPost)
	r.HandleFunc("/cron/webhooks/cleanup", h.CleanupWebhooks).Methods(http.MethodPost)
	r.HandleFunc("/cron/payments/reconcile", h.ReconcilePayments).Methods(http.MethodPost)
	r.HandleFunc("/cron/health", h.HealthCheck).Methods(http.MethodGet)
}

// sweepRequest carries the optional reference time for a sweep.
// Accepts RFC3339 or a bare date; defaults to now.
type sweepRequest struct {
	AsOf *string `json:"as_of"`
}

type sweepResponse struct {
	Success     bool   `json:"success"`
	Processed   int    `json:"processed"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	ProcessedAt string `json:"processed_at"`
}

// ProcessBilling bills every subscription whose period has ended
func (h *Handler) ProcessBilling(w http.ResponseWriter, r *http.Request) {
	h.runSweep(w, r, "process_due_billing", h.billing.ProcessDueBilling)
}

// RetryPayments retries failed invoices whose backoff has elapsed
func (h *Handler) RetryPayments(w http.ResponseWriter, r *http.Request) {
	h.runSweep(w, r, "retry_failed_payments", h.billing.RetryFailedPayments)
}

// RunLifecycle applies grace period expiry, scheduled cancellations
// and trial conversions
func (h *Handler) RunLifecycle(w http.ResponseWriter, r *http.Request) {
	h.runSweep(w, r, "lifecycle", h.billing.RunLifecycle)
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request, name string,
	sweep func(ctx context.Context, now time.Time) (*serviceports.SweepReport, error)) {
	if !h.authorized(w, r) {
		return
	}
	asOf, ok := h.parseAsOf(w, r)
	if !ok {
		return
	}

	report, err := sweep(r.Context(), asOf)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("billing sweep completed",
		ports.String("sweep", name),
		ports.Int("processed", report.Processed),
		ports.Int("succeeded", report.Succeeded),
		ports.Int("failed", report.Failed))

	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusPartialContent
	}
	h.respond(w, status, sweepResponse{
		Success:     report.Failed == 0,
		Processed:   report.Processed,
		Succeeded:   report.Succeeded,
		Failed:      report.Failed,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// DeliverWebhooks pushes queued merchant notifications whose next
// attempt is due
func (h *Handler) DeliverWebhooks(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	asOf, ok := h.parseAsOf(w, r)
	if !ok {
		return
	}

	report, err := h.webhooks.DeliverDue(r.Context(), asOf)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("webhook delivery sweep completed",
		ports.Int("picked", report.Picked),
		ports.Int("delivered", report.Delivered),
		ports.Int("retried", report.Retried),
		ports.Int("failed", report.Failed))

	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusPartialContent
	}
	h.respond(w, status, map[string]interface{}{
		"success":      report.Failed == 0,
		"picked":       report.Picked,
		"delivered":    report.Delivered,
		"retried":      report.Retried,
		"failed":       report.Failed,
		"skipped":      report.Skipped,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// CleanupWebhooks removes delivered and exhausted outbound rows past
// their retention windows
func (h *Handler) CleanupWebhooks(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	asOf, ok := h.parseAsOf(w, r)
	if !ok {
		return
	}

	deleted, err := h.webhooks.Cleanup(r.Context(), asOf.Add(-h.keep.Delivered), asOf.Add(-h.keep.Failed))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respond(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"deleted":      deleted,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

type reconcileRequest struct {
	OlderThanMinutes *int `json:"older_than_minutes"`
	Batch            *int `json:"batch"`
}

// ReconcilePayments converges stale PENDING transactions against the
// processor's record
func (h *Handler) ReconcilePayments(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	var req reconcileRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	olderThan := 30 * time.Minute
	if req.OlderThanMinutes != nil {
		if *req.OlderThanMinutes < 1 {
			h.respondError(w, http.StatusBadRequest, "older_than_minutes must be positive")
			return
		}
		olderThan = time.Duration(*req.OlderThanMinutes) * time.Minute
	}
	batch := int32(100)
	if req.Batch != nil {
		if *req.Batch < 1 || *req.Batch > 1000 {
			h.respondError(w, http.StatusBadRequest, "batch must be between 1 and 1000")
			return
		}
		batch = int32(*req.Batch)
	}

	report, err := h.payments.ReconcilePending(r.Context(), olderThan, batch)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if report.Unresolved > 0 {
		status = http.StatusPartialContent
	}
	h.respond(w, status, map[string]interface{}{
		"success":      report.Unresolved == 0,
		"scanned":      report.Scanned,
		"settled":      report.Settled,
		"failed":       report.Failed,
		"unresolved":   report.Unresolved,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheck reports liveness for the cron surface
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// authorized verifies the shared cron secret, writing 401 when absent
// or wrong.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) bool {
	if h.secret != "" {
		if r.Header.Get("X-Cron-Secret") == h.secret {
			return true
		}
		if r.Header.Get("Authorization") == "Bearer "+h.secret {
			return true
		}
	}

	h.logger.Warn("unauthorized cron request",
		ports.String("path", r.URL.Path),
		ports.String("remote_addr", r.RemoteAddr))
	h.respondError(w, http.StatusUnauthorized, "unauthorized")
	return false
}

// parseAsOf reads the optional as_of reference time from the body.
func (h *Handler) parseAsOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req sweepRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return time.Time{}, false
		}
	}
	if req.AsOf == nil {
		return time.Now().UTC(), true
	}

	if t, err := time.Parse(time.RFC3339, *req.AsOf); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", *req.AsOf); err == nil {
		return t.UTC(), true
	}
	h.respondError(w, http.StatusBadRequest, "as_of must be RFC3339 or YYYY-MM-DD")
	return time.Time{}, false
}

func (h *Handler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode cron response", ports.Err(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respond(w, status, map[string]interface{}{"success": false, "error": message})
}
