package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the referenced aggregate, child or token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyPaid: the child is already paid; the request is a duplicate.
	ErrAlreadyPaid = errors.New("payment already completed")

	// ErrDeadlineExpired: the payment deadline has passed.
	ErrDeadlineExpired = errors.New("payment deadline passed")

	// ErrConcurrencyConflict: a conditional status transition matched zero
	// rows because another writer got there first. The caller must re-read
	// and, if the operation no longer applies, stop.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")

	// ErrNotAuthorized: the requester does not own the payment.
	ErrNotAuthorized = errors.New("not authorized for this payment")

	// ErrTokenInvalid: the payment token is unknown, used or expired.
	ErrTokenInvalid = errors.New("payment token invalid or expired")

	// ErrNotCancelled: a refund retry was requested for an aggregate that
	// was never cancelled.
	ErrNotCancelled = errors.New("split payment is not cancelled")
)

// GatewayError wraps a failed payment-processor call. Transient failures are
// retried with backoff before one of these surfaces.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PersistenceError wraps a Store failure. Fatal for the current operation;
// the scheduler reports it and retries on the next interval.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
