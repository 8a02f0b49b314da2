package ledger

import (
	"context"
	"errors"
	"log/slog"

	"splitpay/internal/domain/payments"
	"splitpay/internal/metrics"
	"splitpay/internal/refund"
)

// EnforcementResult reports what a deadline crossing did to an aggregate.
type EnforcementResult struct {
	SplitPaymentID string
	Outcome        payments.Outcome
	Stats          payments.Stats
	Refunds        refund.Summary
	// Skipped is true when another writer already settled the aggregate.
	Skipped bool
}

// Enforce applies the deadline policy to one expired aggregate: proceed with
// partial funds when the collection threshold was met, otherwise refund every
// paid child and cancel. Guarded by the aggregate's own status transition, so
// re-running the scan after a crash is safe.
func (l *PaymentLedger) Enforce(ctx context.Context, splitPaymentID string) (*EnforcementResult, error) {
	sp, err := l.store.GetSplitPayment(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	if sp.Status.Terminal() {
		return &EnforcementResult{SplitPaymentID: splitPaymentID, Skipped: true}, nil
	}

	// Threshold decision over fresh child rows.
	children, err := l.store.ListChildren(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	stats := payments.ComputeStats(children, l.cfg.MinimumPaymentThreshold)
	outcome := payments.Decide(stats)

	res := &EnforcementResult{SplitPaymentID: splitPaymentID, Outcome: outcome, Stats: stats}
	now := l.now()
	active := []payments.SplitStatus{payments.SplitPending, payments.SplitPartiallyPaid}

	switch outcome {
	case payments.OutcomeProceedPartial:
		err = l.store.TransitionSplit(ctx, splitPaymentID, active, payments.SplitCompletedPartial,
			map[string]any{
				"booking_status": payments.BookingPaid,
				"enforced_at":    now,
			})
		if errors.Is(err, payments.ErrConcurrencyConflict) {
			res.Skipped = true
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		metrics.Enforcements.WithLabelValues(string(outcome)).Inc()
		slog.Info("Deadline enforced: proceeding with partial funds",
			"split_payment_id", splitPaymentID,
			"collected", stats.TotalPaid,
			"total", stats.TotalDue,
			"completion_pct", stats.CompletionPercentage,
		)

	case payments.OutcomeCancelRefund:
		res.Refunds = l.refunder.Run(ctx, children, "group payment cancelled: collection threshold not met")
		err = l.store.TransitionSplit(ctx, splitPaymentID, active, payments.SplitCancelledInsufficient,
			map[string]any{
				"booking_status": payments.BookingCancelled,
				"enforced_at":    now,
			})
		if errors.Is(err, payments.ErrConcurrencyConflict) {
			res.Skipped = true
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		metrics.Enforcements.WithLabelValues(string(outcome)).Inc()
		slog.Info("Deadline enforced: cancelled for insufficient collection",
			"split_payment_id", splitPaymentID,
			"collected", stats.TotalPaid,
			"total", stats.TotalDue,
			"refunds_succeeded", res.Refunds.Succeeded,
			"refunds_failed", res.Refunds.Failed,
			"refund_processing_days", l.cfg.RefundProcessingDays,
		)
	}

	l.expireUnpaid(ctx, children)
	return res, nil
}

// expireUnpaid moves children that never paid to expired once enforcement
// settled the aggregate. Processing children are left for reconciliation.
func (l *PaymentLedger) expireUnpaid(ctx context.Context, children []payments.IndividualPayment) {
	for _, c := range children {
		if c.Status != payments.IndividualPending && c.Status != payments.IndividualFailed {
			continue
		}
		err := l.store.TransitionIndividual(ctx, c.ID,
			[]payments.IndividualStatus{payments.IndividualPending, payments.IndividualFailed},
			payments.IndividualExpired, nil)
		if err != nil && !errors.Is(err, payments.ErrConcurrencyConflict) {
			slog.Warn("Could not expire unpaid share", "individual_payment_id", c.ID, "error", err)
		}
	}
}

// RetryRefunds re-runs the refund cascade over children still paid on a
// cancelled aggregate, so an organizer can retry exactly the failed subset.
func (l *PaymentLedger) RetryRefunds(ctx context.Context, splitPaymentID, requesterID string) (*refund.Summary, error) {
	sp, err := l.store.GetSplitPayment(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	if sp.OrganizerID != requesterID {
		return nil, payments.ErrNotAuthorized
	}
	if sp.Status != payments.SplitCancelledInsufficient {
		return nil, payments.ErrNotCancelled
	}

	children, err := l.store.ListChildren(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	summary := l.refunder.Run(ctx, children, "refund retry for cancelled group payment")
	return &summary, nil
}
