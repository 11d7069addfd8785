package ports

import (
	"context"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain"
)

// SweepReport summarizes one scheduled sweep. Failed counts per-entity
// failures, which are logged and never abort the sweep.
type SweepReport struct {
	Processed int
	Succeeded int
	Failed    int
}

// BillingService drives recurring billing: due-invoice creation, dunning
// retries and lifecycle transitions. Sweeps are invoked by the scheduler
// and by the authenticated cron endpoints.
type BillingService interface {
	// ProcessDueBilling invoices and charges every ACTIVE subscription
	// whose next billing date has passed
	ProcessDueBilling(ctx context.Context, now time.Time) (*SweepReport, error)

	// RetryFailedPayments retries FAILED invoices on the dunning
	// schedule, cancelling the invoice and its subscription once
	// attempts are exhausted
	RetryFailedPayments(ctx context.Context, now time.Time) (*SweepReport, error)

	// RunLifecycle expires trials, enacts scheduled cancellations and
	// applies scheduled plan changes
	RunLifecycle(ctx context.Context, now time.Time) (*SweepReport, error)

	// AttemptPayment collects one open invoice through the payment
	// orchestrator and records the result on the invoice
	AttemptPayment(ctx context.Context, invoiceID string) (*domain.SubscriptionInvoice, error)
}
