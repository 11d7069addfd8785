package plan

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/handlers/respond"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// Handler exposes the plan catalog over HTTP
type Handler struct {
	service serviceports.PlanService
	logger  ports.Logger
}

// NewHandler creates a new plan handler
func NewHandler(service serviceports.PlanService, logger ports.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the plan endpoints on the router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/plans", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/plans", h.List).Methods(http.MethodGet)
	r.HandleFunc("/plans/{code}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/plans/{code}", h.Update).Methods(http.MethodPatch)
}

type createPlanRequest struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	IntervalUnit  string          `json:"interval_unit"`
	IntervalCount int             `json:"interval_count"`
	TrialDays     int             `json:"trial_days"`
	SetupFee      decimal.Decimal `json:"setup_fee"`
}

type updatePlanRequest struct {
	Name     *string          `json:"name"`
	Amount   *decimal.Decimal `json:"amount"`
	IsActive *bool            `json:"is_active"`
}

// Create registers a new billing plan
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Error(w, h.logger,
			domain.WrapError(domain.ErrorCodeValidationFailed, "invalid request body", err))
		return
	}

	h.logger.Info("create plan request received",
		ports.String("code", body.Code),
		ports.String("amount", body.Amount.StringFixed(2)))

	created, err := h.service.Create(r.Context(), &serviceports.CreatePlanRequest{
		Code:          body.Code,
		Name:          body.Name,
		Amount:        body.Amount,
		Currency:      body.Currency,
		IntervalUnit:  domain.IntervalUnit(body.IntervalUnit),
		IntervalCount: body.IntervalCount,
		TrialDays:     body.TrialDays,
		SetupFee:      body.SetupFee,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, created)
}

// Update changes the mutable fields of a plan
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var body updatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Error(w, h.logger,
			domain.WrapError(domain.ErrorCodeValidationFailed, "invalid request body", err))
		return
	}

	updated, err := h.service.Update(r.Context(), &serviceports.UpdatePlanRequest{
		Code:     mux.Vars(r)["code"],
		Name:     body.Name,
		Amount:   body.Amount,
		IsActive: body.IsActive,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, updated)
}

// Get retrieves one plan by code
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.Get(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, found)
}

// List lists plans, active only unless include_inactive=true
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	plans, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}
