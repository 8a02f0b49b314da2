// Package stripegw adapts the Stripe API to the payment-gateway contract the
// engine needs: create a payment intent, check/confirm it, issue a refund.
// Every call is retried with exponential backoff on transient failures and
// carries a bounded timeout plus an idempotency key, so retries are safe.
package stripegw

import (
	"context"
	"time"
)

// IntentState is the gateway-side state of a payment intent, normalized from
// processor-specific status strings.
type IntentState string

const (
	IntentSucceeded  IntentState = "succeeded"
	IntentProcessing IntentState = "processing"
	IntentFailed     IntentState = "failed"
	IntentCanceled   IntentState = "canceled"
)

// CreateIntentRequest describes one participant's charge.
type CreateIntentRequest struct {
	// IdempotencyKey deduplicates retries; callers use the individual
	// payment id.
	IdempotencyKey string
	Amount         int64
	Currency       string
	// PayeeAccount is the connected vendor account the funds route to.
	PayeeAccount string
	Description  string
	Metadata     map[string]string
}

// Intent is the processor handle for a charge in flight. The client secret
// goes to the participant's payment page.
type Intent struct {
	IntentID     string
	ClientSecret string
}

// Confirmation is the result of checking an intent with the processor.
// ConfirmationID is only set once the intent succeeded.
type Confirmation struct {
	State          IntentState
	ConfirmationID string
}

// Gateway is the payment-processor collaborator.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID string) (*Confirmation, error)
	// Refund reverses a confirmed charge. Returns the processor refund id.
	Refund(ctx context.Context, confirmationID string, amount int64, reason string) (string, error)
}

// RetryPolicy bounds the local retry loop around processor calls.
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	Timeout     time.Duration
}

// DefaultRetryPolicy retries twice after the first failure, starting at
// 500ms, with a 15s per-call timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialWait: 500 * time.Millisecond, Timeout: 15 * time.Second}
}
