package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/domain"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

func TestCreate_RecordsAuditRow(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	seedPlan(f, "pro-monthly", "29.99", 0, "0")

	userID := "user-9"
	ctx := auth.WithPrincipal(context.Background(), &domain.Principal{UserID: &userID})
	sub, err := f.service.Create(ctx, createRequest())
	require.NoError(t, err)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "subscription.create", entries[0].Action)
	assert.Equal(t, "subscription", entries[0].EntityType)
	assert.Equal(t, sub.ID, entries[0].EntityID)
	assert.Equal(t, "user:user-9", entries[0].Actor)
	assert.Equal(t, "pro-monthly", entries[0].Detail["plan_code"])
}

func TestCancel_RecordsAuditRowWithReason(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	seedPlan(f, "pro-monthly", "29.99", 0, "0")
	sub, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), &serviceports.CancelSubscriptionRequest{
		SubscriptionID: sub.ID,
		Timing:         serviceports.ChangeImmediate,
		Reason:         "too expensive",
	})
	require.NoError(t, err)

	entries := f.audit.Entries()
	require.Len(t, entries, 2)
	cancel := entries[1]
	assert.Equal(t, "subscription.cancel", cancel.Action)
	assert.Equal(t, "anonymous", cancel.Actor)
	assert.Equal(t, "too expensive", cancel.Detail["reason"])
	assert.Equal(t, string(serviceports.ChangeImmediate), cancel.Detail["timing"])
}

func TestPause_AuditWriteFailureDoesNotFailOperation(t *testing.T) {
	f := newSubscriptionFixture()
	seedCustomerAndMethod(f)
	seedPlan(f, "pro-monthly", "29.99", 0, "0")
	sub, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)

	f.audit.FailCreate = errors.New("audit table unavailable")
	paused, err := f.service.Pause(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPaused, paused.Status)
}

func TestAuditTrail_NewestFirst(t *testing.T) {
	f := newSubscriptionFixture()
	now := time.Now().UTC()
	f.subs.Seed(&domain.Subscription{ID: "sub-1", CustomerID: "cust-1",
		Status: domain.SubscriptionStatusActive})
	f.audit.Seed(
		&domain.AuditLog{ID: "a1", Actor: "user:u1", Action: "subscription.create",
			EntityType: "subscription", EntityID: "sub-1", CreatedAt: now.Add(-2 * time.Hour)},
		&domain.AuditLog{ID: "a2", Actor: "apikey:k1", Action: "subscription.pause",
			EntityType: "subscription", EntityID: "sub-1", CreatedAt: now.Add(-time.Hour)},
		&domain.AuditLog{ID: "a3", Actor: "user:u1", Action: "subscription.create",
			EntityType: "subscription", EntityID: "sub-2", CreatedAt: now},
	)

	entries, err := f.service.AuditTrail(context.Background(), "sub-1", 0)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a2", entries[0].ID)
	assert.Equal(t, "a1", entries[1].ID)
}

func TestAuditTrail_UnknownSubscription(t *testing.T) {
	f := newSubscriptionFixture()

	_, err := f.service.AuditTrail(context.Background(), "missing", 0)

	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSubNotFound))
}

func TestPruneAuditLogs_DeletesBeforeCutoff(t *testing.T) {
	f := newSubscriptionFixture()
	now := time.Now().UTC()
	f.audit.Seed(
		&domain.AuditLog{ID: "old", EntityType: "subscription", EntityID: "sub-1",
			CreatedAt: now.Add(-400 * 24 * time.Hour)},
		&domain.AuditLog{ID: "fresh", EntityType: "subscription", EntityID: "sub-1",
			CreatedAt: now.Add(-time.Hour)},
	)

	deleted, err := f.service.PruneAuditLogs(context.Background(), 365*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, f.audit.Entries(), 1)
}
