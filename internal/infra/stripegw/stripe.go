package stripegw

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/paymentintent"
	"github.com/stripe/stripe-go/v75/refund"

	"splitpay/internal/domain/payments"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	retry RetryPolicy
}

// NewStripeGateway configures the Stripe client key and returns the adapter.
func NewStripeGateway(secretKey string, retry RetryPolicy) *StripeGateway {
	stripe.Key = secretKey
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &StripeGateway{retry: retry}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	var out *Intent
	err := g.withRetry(ctx, "create intent", func(callCtx context.Context) error {
		params := &stripe.PaymentIntentParams{
			Amount:      stripe.Int64(req.Amount),
			Currency:    stripe.String(req.Currency),
			Description: stripe.String(req.Description),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		params.Context = callCtx
		params.SetIdempotencyKey(req.IdempotencyKey)
		if len(req.Metadata) > 0 {
			params.Metadata = req.Metadata
		}
		if req.PayeeAccount != "" {
			params.TransferData = &stripe.PaymentIntentTransferDataParams{
				Destination: stripe.String(req.PayeeAccount),
			}
		}

		pi, err := paymentintent.New(params)
		if err != nil {
			return err
		}
		out = &Intent{IntentID: pi.ID, ClientSecret: pi.ClientSecret}
		return nil
	})
	if err != nil {
		return nil, &payments.GatewayError{Op: "create intent", Err: err}
	}
	return out, nil
}

func (g *StripeGateway) ConfirmIntent(ctx context.Context, intentID string) (*Confirmation, error) {
	var out *Confirmation
	err := g.withRetry(ctx, "confirm intent", func(callCtx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = callCtx

		pi, err := paymentintent.Get(intentID, params)
		if err != nil {
			return err
		}

		c := &Confirmation{State: normalizeIntentStatus(pi.Status)}
		if c.State == IntentSucceeded && pi.LatestCharge != nil {
			c.ConfirmationID = pi.LatestCharge.ID
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, &payments.GatewayError{Op: "confirm intent", Err: err}
	}
	return out, nil
}

func (g *StripeGateway) Refund(ctx context.Context, confirmationID string, amount int64, reason string) (string, error) {
	var refundID string
	err := g.withRetry(ctx, "refund", func(callCtx context.Context) error {
		params := &stripe.RefundParams{
			Charge: stripe.String(confirmationID),
			Amount: stripe.Int64(amount),
			Metadata: map[string]string{
				"reason": reason,
			},
		}
		params.Context = callCtx
		params.SetIdempotencyKey("refund-" + confirmationID)

		r, err := refund.New(params)
		if err != nil {
			return err
		}
		refundID = r.ID
		return nil
	})
	if err != nil {
		return "", &payments.GatewayError{Op: "refund", Err: err}
	}
	return refundID, nil
}

// normalizeIntentStatus maps Stripe's intent statuses onto the engine's
// gateway states.
func normalizeIntentStatus(s stripe.PaymentIntentStatus) IntentState {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// Stripe parks a declined intent back here; the participant can retry.
		return IntentFailed
	default:
		return IntentProcessing
	}
}

// withRetry runs fn with a bounded per-call timeout, retrying transient
// failures with exponential backoff up to the policy's attempt count.
func (g *StripeGateway) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	wait := g.retry.InitialWait
	var lastErr error
	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.retry.Timeout)
		lastErr = fn(callCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == g.retry.MaxAttempts {
			break
		}
		slog.Warn("Stripe call failed, retrying", "op", op, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}
	return lastErr
}

// isTransient reports whether a Stripe error is worth retrying: rate limits,
// processor 5xx, or plain network failures.
func isTransient(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 {
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Non-Stripe errors are connection-level problems.
	return true
}
