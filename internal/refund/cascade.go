// Package refund reverses collected payments when a group payment is
// cancelled. Each child's refund is independent: one failure never blocks or
// rolls back refunds already applied to siblings.
package refund

import (
	"context"
	"log/slog"
	"time"

	"splitpay/internal/domain/payments"
	"splitpay/internal/infra/stripegw"
	"splitpay/internal/metrics"
	"splitpay/internal/store"
)

// Result is the outcome of one child's refund attempt.
type Result struct {
	IndividualPaymentID string
	UserID              string
	Amount              int64
	RefundID            string
	Err                 error
}

// Summary reports the cascade so the caller can retry exactly the failed
// subset.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []Result
}

// Cascade issues refunds through the gateway and records each outcome in the
// store.
type Cascade struct {
	store   store.Store
	gateway stripegw.Gateway
	now     func() time.Time
}

func NewCascade(st store.Store, gw stripegw.Gateway) *Cascade {
	return &Cascade{store: st, gateway: gw, now: time.Now}
}

// Run refunds every paid child in the given set. Children in any other status
// are skipped. Per-child outcomes are recorded independently: success moves
// the child to refunded; failure leaves it paid with the error recorded.
func (c *Cascade) Run(ctx context.Context, children []payments.IndividualPayment, reason string) Summary {
	var summary Summary
	for _, child := range children {
		if child.Status != payments.IndividualPaid {
			continue
		}
		summary.Total++

		res := c.refundOne(ctx, child, reason)
		summary.Results = append(summary.Results, res)
		if res.Err != nil {
			summary.Failed++
			metrics.Refunds.WithLabelValues("failed").Inc()
			slog.Error("Refund failed",
				"individual_payment_id", child.ID,
				"split_payment_id", child.SplitPaymentID,
				"amount", child.AmountPaid,
				"error", res.Err,
			)
			continue
		}
		summary.Succeeded++
		metrics.Refunds.WithLabelValues("succeeded").Inc()
		slog.Info("Refund issued",
			"individual_payment_id", child.ID,
			"refund_id", res.RefundID,
			"amount", child.AmountPaid,
		)
	}
	return summary
}

func (c *Cascade) refundOne(ctx context.Context, child payments.IndividualPayment, reason string) Result {
	res := Result{
		IndividualPaymentID: child.ID,
		UserID:              child.UserID,
		Amount:              child.AmountPaid,
	}

	refundID, err := c.gateway.Refund(ctx, child.GatewayConfirmationID, child.AmountPaid, reason)
	if err != nil {
		res.Err = err
		if recErr := c.store.SetRefundError(ctx, child.ID, err.Error()); recErr != nil {
			slog.Warn("Could not record refund error", "individual_payment_id", child.ID, "error", recErr)
		}
		return res
	}
	res.RefundID = refundID

	now := c.now()
	err = c.store.TransitionIndividual(ctx, child.ID,
		[]payments.IndividualStatus{payments.IndividualPaid},
		payments.IndividualRefunded,
		map[string]any{
			"gateway_refund_id": refundID,
			"refunded_at":       now,
			"refund_error":      "",
		})
	if err != nil {
		// The money left the processor; the row update is what failed. Keep
		// the refund id in the result and surface the error for a retry.
		res.Err = err
	}
	return res
}
