// Package store provides durable persistence for split payments. The Store
// interface is the transactional contract the engine needs; gormstore.go
// implements it on Postgres via gorm.
package store

import (
	"context"
	"time"

	"splitpay/internal/domain/payments"
)

// Store is the persistence collaborator. All aggregate and child mutation
// goes through conditional single-row updates so racing writers are
// serialized at the database: a transition that matches zero rows returns
// payments.ErrConcurrencyConflict.
type Store interface {
	// CreateSplitPayment persists the aggregate and all its children in one
	// transaction. Nothing is written when any row fails.
	CreateSplitPayment(ctx context.Context, sp *payments.SplitPayment, children []payments.IndividualPayment) error

	GetSplitPayment(ctx context.Context, id string) (*payments.SplitPayment, error)
	ListSplitPaymentsByOrganizer(ctx context.Context, organizerID string) ([]payments.SplitPayment, error)
	ListChildren(ctx context.Context, splitPaymentID string) ([]payments.IndividualPayment, error)
	GetIndividualPayment(ctx context.Context, id string) (*payments.IndividualPayment, error)

	// TransitionIndividual conditionally moves a child from one of the given
	// statuses to the next status, applying extra column updates in the same
	// statement. Zero matched rows yields payments.ErrConcurrencyConflict
	// (payments.ErrNotFound when the row does not exist at all).
	TransitionIndividual(ctx context.Context, id string, from []payments.IndividualStatus, to payments.IndividualStatus, updates map[string]any) error

	// TransitionSplit is the aggregate counterpart of TransitionIndividual.
	TransitionSplit(ctx context.Context, id string, from []payments.SplitStatus, to payments.SplitStatus, updates map[string]any) error

	// ListRemindersDue selects pending children whose deadline falls within
	// maxOffset of now and which still have reminders left to send.
	ListRemindersDue(ctx context.Context, now time.Time, maxOffset time.Duration, maxReminders int) ([]payments.IndividualPayment, error)

	// SetReminderSent increments reminder_count and stamps the send time,
	// guarded by the expected current count so a racing tick cannot
	// double-send the same window.
	SetReminderSent(ctx context.Context, id string, expectedCount int, sentAt time.Time) error

	// ListExpiredSplits selects aggregates whose deadline has passed and
	// which are still pending or partially paid, i.e. awaiting enforcement.
	ListExpiredSplits(ctx context.Context, now time.Time) ([]payments.SplitPayment, error)

	// ListStuckProcessing selects children sitting in processing since
	// before the given time, for gateway reconciliation.
	ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]payments.IndividualPayment, error)

	// SetRefundError records a failed refund attempt on a child that stays
	// paid, so the cascade can be retried for just the failures.
	SetRefundError(ctx context.Context, id string, message string) error

	CreatePaymentToken(ctx context.Context, t *payments.PaymentToken) error
	GetPaymentToken(ctx context.Context, token string) (*payments.PaymentToken, error)

	// MarkTokenUsed consumes a token; a token can be consumed exactly once.
	MarkTokenUsed(ctx context.Context, token string, usedAt time.Time) error
}
