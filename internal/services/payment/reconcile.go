package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
)

// ReconcilePending asks the processor for the authoritative state of
// transactions stuck in PENDING and folds it back into the ledger.
// Rows land in PENDING when the processor call timed out or answered
// with a transient fault, so the local row cannot say whether money
// moved.
func (s *Service) ReconcilePending(ctx context.Context, olderThan time.Duration, batch int32) (*serviceports.ReconcileReport, error) {
	if batch <= 0 || batch > 500 {
		batch = 100
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.transactions.ListPendingOlderThan(ctx, nil, cutoff, batch)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}

	report := &serviceports.ReconcileReport{Scanned: len(rows)}
	for _, row := range rows {
		if err := s.reconcileOne(ctx, row.ID, report); err != nil {
			report.Unresolved++
			s.logger.Error("reconcile transaction failed",
				ports.String("transaction_id", row.ID),
				ports.Err(err))
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("pending reconciliation finished",
			ports.Int("scanned", report.Scanned),
			ports.Int("settled", report.Settled),
			ports.Int("failed", report.Failed),
			ports.Int("unresolved", report.Unresolved))
	}
	return report, nil
}

// reconcileOne locks a single row, re-checks it is still PENDING and
// applies the processor's answer. Each row gets its own database
// transaction so one failure never stalls the sweep.
func (s *Service) reconcileOne(ctx context.Context, id string, report *serviceports.ReconcileReport) error {
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		txn, err := s.transactions.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if txn.Status != domain.PaymentStatusPending {
			// A webhook resolved it between the scan and the lock.
			return nil
		}

		inquiry, err := s.gateway.GetTransaction(ctx, txn.GetExternalProcessorID())
		if err != nil {
			// Unknown at the processor means the charge never landed.
			if domain.IsDomainError(err, domain.ErrorCodeTxnNotFound) {
				report.Failed++
				return s.resolve(ctx, tx, txn, domain.PaymentStatusFailed, nil, "")
			}
			return fmt.Errorf("processor inquiry: %w", err)
		}

		switch inquiry.Status {
		case domain.PaymentStatusSettled, domain.PaymentStatusCaptured:
			report.Settled++
			return s.resolve(ctx, tx, txn, domain.PaymentStatusSettled, inquiry.SettleAmount, inquiry.ResponseCode)

		case domain.PaymentStatusAuthorized:
			report.Settled++
			return s.resolve(ctx, tx, txn, domain.PaymentStatusAuthorized, nil, inquiry.ResponseCode)

		case domain.PaymentStatusFailed:
			report.Failed++
			return s.resolve(ctx, tx, txn, domain.PaymentStatusFailed, nil, inquiry.ResponseCode)

		case domain.PaymentStatusVoided:
			// Voided before we ever saw an approval; no money moved.
			report.Failed++
			return s.resolve(ctx, tx, txn, domain.PaymentStatusFailed, nil, inquiry.ResponseCode)

		case domain.PaymentStatusRefunded:
			s.logger.Warn("processor reports refund for a pending transaction",
				ports.String("transaction_id", txn.ID),
				ports.String("external_id", inquiry.ExternalID))
			report.Settled++
			return s.resolve(ctx, tx, txn, domain.PaymentStatusSettled, inquiry.SettleAmount, inquiry.ResponseCode)

		case domain.PaymentStatusPendingReview:
			report.Unresolved++
			return s.resolve(ctx, tx, txn, domain.PaymentStatusPendingReview, nil, inquiry.ResponseCode)

		default:
			// Still in flight at the processor. Leave the row for the
			// next sweep.
			report.Unresolved++
			return nil
		}
	})
}

// resolve finalizes a reconciled row and emits the matching event. The
// processor's settled amount wins when it reports one.
func (s *Service) resolve(ctx context.Context, tx ports.DBTX, txn *domain.Transaction, next domain.PaymentStatus, settleAmount *decimal.Decimal, responseCode string) error {
	if err := transition(txn, next); err != nil {
		return err
	}
	now := time.Now().UTC()
	txn.ProcessedAt = &now
	if settleAmount != nil {
		txn.Amount = *settleAmount
	}
	if responseCode != "" {
		code := responseCode
		txn.ResponseCode = &code
	}
	if err := s.transactions.Update(ctx, tx, txn); err != nil {
		return fmt.Errorf("update reconciled transaction: %w", err)
	}

	s.logger.Info("transaction reconciled",
		ports.String("transaction_id", txn.ID),
		ports.String("status", string(txn.Status)))
	return s.publishEvent(ctx, tx, txn)
}
