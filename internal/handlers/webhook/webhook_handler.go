package webhook

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/handlers/respond"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	"github.com/recurpay/billing-gateway/pkg/observability"
)

// maxBodyBytes caps inbound notification bodies. Processor events are
// small JSON documents; anything past 1MB is hostile.
const maxBodyBytes = 1 << 20

// Handler receives processor notifications
type Handler struct {
	inbound serviceports.WebhookInboundService
	logger  ports.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(inbound serviceports.WebhookInboundService, logger ports.Logger) *Handler {
	return &Handler{inbound: inbound, logger: logger}
}

// RegisterRoutes mounts the webhook endpoints on the router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/webhooks/processor", h.Receive).Methods(http.MethodPost)
}

// Receive ingests one processor event. The body is read raw and passed
// through untouched so the signature check sees the exact bytes sent.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		respond.Error(w, h.logger,
			domain.WrapError(domain.ErrorCodeValidationFailed, "unreadable request body", err))
		return
	}
	if len(raw) > maxBodyBytes {
		respond.Error(w, h.logger,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "request body too large"))
		return
	}

	result, err := h.inbound.Receive(r.Context(), raw, r.Header)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("processor event received",
		ports.String("event_id", result.EventID),
		ports.String("event_type", result.EventType),
		ports.String("action", result.Action))
	observability.RecordInboundWebhook(result.EventType, result.Action)

	respond.JSON(w, http.StatusOK, map[string]string{
		"webhook_id": result.WebhookID,
		"status":     result.Action,
	})
}
