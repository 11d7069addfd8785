package subscription

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/handlers/respond"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// Handler exposes subscription lifecycle operations over HTTP
type Handler struct {
	service serviceports.SubscriptionService
	logger  ports.Logger
}

// NewHandler creates a new subscription handler
func NewHandler(service serviceports.SubscriptionService, logger ports.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the subscription endpoints on the router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/subscriptions", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/subscriptions", h.List).Methods(http.MethodGet)
	r.HandleFunc("/subscriptions/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/subscriptions/{id}", h.Update).Methods(http.MethodPatch)
	r.HandleFunc("/subscriptions/{id}/cancel", h.Cancel).Methods(http.MethodPost)
	r.HandleFunc("/subscriptions/{id}/pause", h.Pause).Methods(http.MethodPost)
	r.HandleFunc("/subscriptions/{id}/resume", h.Resume).Methods(http.MethodPost)
	r.HandleFunc("/subscriptions/{id}/audit", h.Audit).Methods(http.MethodGet)
}

type createRequest struct {
	CustomerID         string            `json:"customer_id"`
	PlanCode           string            `json:"plan_code"`
	PaymentMethodID    string            `json:"payment_method_id"`
	StartDate          *time.Time        `json:"start_date"`
	BillingCycleAnchor *time.Time        `json:"billing_cycle_anchor"`
	StartTrial         bool              `json:"start_trial"`
	Prorated           bool              `json:"prorated"`
	IdempotencyKey     string            `json:"idempotency_key"`
	Metadata           map[string]string `json:"metadata"`
}

type updateRequest struct {
	NewPlanCode     *string `json:"new_plan_code"`
	PaymentMethodID *string `json:"payment_method_id"`
	Timing          string  `json:"timing"`
	Prorated        bool    `json:"prorated"`
}

type cancelRequest struct {
	When           string     `json:"when"`
	CancelAt       *time.Time `json:"cancel_at"`
	RefundProrated bool       `json:"refund_prorated"`
	Notes          string     `json:"notes"`
}

// Create starts a new subscription on a plan
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if !decode(w, r, h.logger, &body) {
		return
	}

	h.logger.Info("create subscription request received",
		ports.String("customer_id", body.CustomerID),
		ports.String("plan_code", body.PlanCode))

	sub, err := h.service.Create(r.Context(), &serviceports.CreateSubscriptionRequest{
		CustomerID:         body.CustomerID,
		PlanCode:           body.PlanCode,
		PaymentMethodID:    body.PaymentMethodID,
		StartDate:          body.StartDate,
		BillingCycleAnchor: body.BillingCycleAnchor,
		WithTrial:          body.StartTrial,
		Prorated:           body.Prorated,
		IdempotencyKey:     body.IdempotencyKey,
		Metadata:           body.Metadata,
		CorrelationID:      auth.RequestIDFrom(r.Context()),
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, sub)
}

// Update changes the plan or payment method of a subscription
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var body updateRequest
	if !decode(w, r, h.logger, &body) {
		return
	}

	timing, err := parseTiming(body.Timing, serviceports.ChangeImmediate)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	sub, err := h.service.Update(r.Context(), &serviceports.UpdateSubscriptionRequest{
		SubscriptionID:  mux.Vars(r)["id"],
		NewPlanCode:     body.NewPlanCode,
		PaymentMethodID: body.PaymentMethodID,
		Timing:          timing,
		Prorated:        body.Prorated,
		CorrelationID:   auth.RequestIDFrom(r.Context()),
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, sub)
}

// Cancel stops a subscription now or at period end
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body cancelRequest
	if !decode(w, r, h.logger, &body) {
		return
	}

	timing, err := parseTiming(body.When, serviceports.ChangeEndOfPeriod)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	id := mux.Vars(r)["id"]
	h.logger.Info("cancel subscription request received",
		ports.String("subscription_id", id),
		ports.String("when", string(timing)))

	sub, err := h.service.Cancel(r.Context(), &serviceports.CancelSubscriptionRequest{
		SubscriptionID: id,
		Timing:         timing,
		CancelAt:       body.CancelAt,
		RefundUnused:   body.RefundProrated,
		Reason:         body.Notes,
		CorrelationID:  auth.RequestIDFrom(r.Context()),
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, sub)
}

// Pause suspends billing without cancelling
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Pause(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, sub)
}

// Resume reactivates a paused subscription
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Resume(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, sub)
}

// Get retrieves one subscription
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, sub)
}

// Audit lists who changed a subscription and when, newest first
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)
	entries, err := h.service.AuditTrail(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"audit": entries})
}

// List lists a customer's subscriptions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		respond.Error(w, h.logger,
			domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer_id is required"))
		return
	}

	limit, offset := pagination(r)
	subs, err := h.service.ListByCustomer(r.Context(), customerID, limit, offset)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// parseTiming maps the wire value onto a ChangeTiming, defaulting when empty.
func parseTiming(raw string, fallback serviceports.ChangeTiming) (serviceports.ChangeTiming, error) {
	switch raw {
	case "":
		return fallback, nil
	case string(serviceports.ChangeImmediate):
		return serviceports.ChangeImmediate, nil
	case string(serviceports.ChangeEndOfPeriod):
		return serviceports.ChangeEndOfPeriod, nil
	default:
		return "", domain.NewDomainError(domain.ErrorCodeValidationFailed,
			"when must be IMMEDIATE or END_OF_PERIOD")
	}
}

func decode(w http.ResponseWriter, r *http.Request, logger ports.Logger, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond.Error(w, logger,
			domain.WrapError(domain.ErrorCodeValidationFailed, "invalid request body", err))
		return false
	}
	return true
}

func pagination(r *http.Request) (int32, int32) {
	limit := int32(50)
	offset := int32(0)
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 32); err == nil && v > 0 && v <= 500 {
		limit = int32(v)
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 32); err == nil && v >= 0 {
		offset = int32(v)
	}
	return limit, offset
}
