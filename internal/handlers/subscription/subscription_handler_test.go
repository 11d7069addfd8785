package subscription_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/handlers/subscription"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	"github.com/recurpay/billing-gateway/test/mocks"
)

type stubSubscriptionService struct {
	lastCreate *serviceports.CreateSubscriptionRequest
	lastUpdate *serviceports.UpdateSubscriptionRequest
	lastCancel *serviceports.CancelSubscriptionRequest
	lastPause  string
	lastResume string
	lastGet    string
	lastList   string
	lastAudit  string
	sub        *domain.Subscription
	subs       []*domain.Subscription
	audit      []*domain.AuditLog
	err        error
}

func (s *stubSubscriptionService) Create(_ context.Context, req *serviceports.CreateSubscriptionRequest) (*domain.Subscription, error) {
	s.lastCreate = req
	return s.sub, s.err
}

func (s *stubSubscriptionService) Update(_ context.Context, req *serviceports.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	s.lastUpdate = req
	return s.sub, s.err
}

func (s *stubSubscriptionService) Cancel(_ context.Context, req *serviceports.CancelSubscriptionRequest) (*domain.Subscription, error) {
	s.lastCancel = req
	return s.sub, s.err
}

func (s *stubSubscriptionService) Pause(_ context.Context, id string) (*domain.Subscription, error) {
	s.lastPause = id
	return s.sub, s.err
}

func (s *stubSubscriptionService) Resume(_ context.Context, id string) (*domain.Subscription, error) {
	s.lastResume = id
	return s.sub, s.err
}

func (s *stubSubscriptionService) Get(_ context.Context, id string) (*domain.Subscription, error) {
	s.lastGet = id
	return s.sub, s.err
}

func (s *stubSubscriptionService) ListByCustomer(_ context.Context, customerID string, _, _ int32) ([]*domain.Subscription, error) {
	s.lastList = customerID
	return s.subs, s.err
}

func (s *stubSubscriptionService) DueForBilling(context.Context, time.Time, int32) ([]*domain.Subscription, error) {
	return s.subs, s.err
}

func (s *stubSubscriptionService) AuditTrail(_ context.Context, subscriptionID string, _ int32) ([]*domain.AuditLog, error) {
	s.lastAudit = subscriptionID
	return s.audit, s.err
}

func (s *stubSubscriptionService) PruneAuditLogs(context.Context, time.Duration) (int64, error) {
	return 0, s.err
}

func sampleSubscription() *domain.Subscription {
	return &domain.Subscription{
		ID:              "sub_31",
		CustomerID:      "cust_7",
		PlanCode:        "starter-monthly",
		PaymentMethodID: "pm_55",
		Status:          domain.SubscriptionStatusActive,
	}
}

type fixture struct {
	svc    *stubSubscriptionService
	router *mux.Router
}

func newFixture() *fixture {
	svc := &stubSubscriptionService{sub: sampleSubscription()}
	h := subscription.NewHandler(svc, mocks.NewMockLogger())
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return &fixture{svc: svc, router: r}
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreate_StartsSubscription(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/subscriptions", map[string]interface{}{
		"customer_id":       "cust_7",
		"plan_code":         "starter-monthly",
		"payment_method_id": "pm_55",
		"start_trial":       true,
		"idempotency_key":   "sub-idem-1",
		"metadata":          map[string]string{"campaign": "spring"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	req := f.svc.lastCreate
	require.NotNil(t, req)
	assert.Equal(t, "cust_7", req.CustomerID)
	assert.Equal(t, "starter-monthly", req.PlanCode)
	assert.Equal(t, "pm_55", req.PaymentMethodID)
	assert.True(t, req.WithTrial)
	assert.Equal(t, "sub-idem-1", req.IdempotencyKey)
	assert.Equal(t, "spring", req.Metadata["campaign"])

	var sub domain.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, "sub_31", sub.ID)
}

func TestCreate_PassesAnchor(t *testing.T) {
	f := newFixture()
	anchor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rec := f.do(http.MethodPost, "/subscriptions", map[string]interface{}{
		"customer_id":          "cust_7",
		"plan_code":            "starter-monthly",
		"payment_method_id":    "pm_55",
		"billing_cycle_anchor": anchor.Format(time.RFC3339),
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, f.svc.lastCreate.BillingCycleAnchor)
	assert.True(t, anchor.Equal(*f.svc.lastCreate.BillingCycleAnchor))
}

func TestUpdate_SchedulesPlanChange(t *testing.T) {
	f := newFixture()
	newPlan := "pro-monthly"

	rec := f.do(http.MethodPatch, "/subscriptions/sub_31", map[string]interface{}{
		"new_plan_code": newPlan,
		"timing":        "END_OF_PERIOD",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	req := f.svc.lastUpdate
	require.NotNil(t, req)
	assert.Equal(t, "sub_31", req.SubscriptionID)
	require.NotNil(t, req.NewPlanCode)
	assert.Equal(t, newPlan, *req.NewPlanCode)
	assert.Equal(t, serviceports.ChangeEndOfPeriod, req.Timing)
}

func TestUpdate_DefaultsToImmediate(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPatch, "/subscriptions/sub_31", map[string]interface{}{
		"payment_method_id": "pm_90",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, serviceports.ChangeImmediate, f.svc.lastUpdate.Timing)
}

func TestCancel_DefaultsToEndOfPeriod(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/subscriptions/sub_31/cancel", map[string]interface{}{
		"notes": "too expensive",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	req := f.svc.lastCancel
	require.NotNil(t, req)
	assert.Equal(t, "sub_31", req.SubscriptionID)
	assert.Equal(t, serviceports.ChangeEndOfPeriod, req.Timing)
	assert.Equal(t, "too expensive", req.Reason)
}

func TestCancel_RejectsUnknownTiming(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/subscriptions/sub_31/cancel", map[string]interface{}{
		"when": "WHENEVER",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, f.svc.lastCancel)
}

func TestCancel_ImmediateWithRefund(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/subscriptions/sub_31/cancel", map[string]interface{}{
		"when":            "IMMEDIATE",
		"refund_prorated": true,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, serviceports.ChangeImmediate, f.svc.lastCancel.Timing)
	assert.True(t, f.svc.lastCancel.RefundUnused)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/subscriptions/sub_31/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sub_31", f.svc.lastPause)

	rec = f.do(http.MethodPost, "/subscriptions/sub_31/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sub_31", f.svc.lastResume)
}

func TestGet_MapsNotFound(t *testing.T) {
	f := newFixture()
	f.svc.sub = nil
	f.svc.err = domain.ErrSubNotFound

	rec := f.do(http.MethodGet, "/subscriptions/sub_404", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "sub_404", f.svc.lastGet)
}

func TestList_RequiresCustomerID(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/subscriptions", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.ErrorCodeValidationMissingField))
}

func TestAudit_ReturnsTrail(t *testing.T) {
	f := newFixture()
	f.svc.audit = []*domain.AuditLog{
		{ID: "a1", Actor: "user:u1", Action: "subscription.create",
			EntityType: "subscription", EntityID: "sub_31"},
	}

	rec := f.do(http.MethodGet, "/subscriptions/sub_31/audit", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sub_31", f.svc.lastAudit)

	var body struct {
		Audit []*domain.AuditLog `json:"audit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Audit, 1)
	assert.Equal(t, "user:u1", body.Audit[0].Actor)
}

func TestList_ReturnsCustomerSubscriptions(t *testing.T) {
	f := newFixture()
	f.svc.subs = []*domain.Subscription{sampleSubscription()}

	rec := f.do(http.MethodGet, "/subscriptions?customer_id=cust_7", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cust_7", f.svc.lastList)

	var body struct {
		Subscriptions []*domain.Subscription `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Subscriptions, 1)
}
