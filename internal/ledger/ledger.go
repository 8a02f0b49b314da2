// Package ledger owns the lifecycle of SplitPayment aggregates and their
// IndividualPayment children. It is the sole writer-of-record: every
// mutation of persisted payment state goes through it.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"splitpay/config"
	"splitpay/internal/domain/payments"
	"splitpay/internal/domain/split"
	"splitpay/internal/infra/stripegw"
	"splitpay/internal/metrics"
	"splitpay/internal/refund"
	"splitpay/internal/store"
)

// PaymentLedger creates aggregates, applies status transitions and derives
// aggregate statistics.
type PaymentLedger struct {
	store    store.Store
	gateway  stripegw.Gateway
	refunder *refund.Cascade
	cfg      *config.Config
	now      func() time.Time
}

func New(st store.Store, gw stripegw.Gateway, refunder *refund.Cascade, cfg *config.Config) *PaymentLedger {
	return &PaymentLedger{store: st, gateway: gw, refunder: refunder, cfg: cfg, now: time.Now}
}

// CreateRequest is the organizer's input for a new group payment. The
// participant list includes everyone who pays a share (the organizer among
// them when they pay too).
type CreateRequest struct {
	BookingRef      string
	OrganizerID     string
	VendorAccountID string
	TotalAmount     int64
	Currency        string
	SplitType       payments.SplitType
	Participants    []split.Participant
	// CustomAmounts must match Participants one-to-one for custom splits.
	CustomAmounts []int64
	Deadline      time.Time
	Description   string
}

// CreateResult returns the new aggregate and its computed split.
type CreateResult struct {
	SplitPayment *payments.SplitPayment
	Children     []payments.IndividualPayment
	Snapshot     payments.SplitSnapshot
}

// CreateSplitPayment validates the request, computes the split and persists
// the aggregate with all children in one transaction. It never partially
// persists: a validation failure happens before any write.
func (l *PaymentLedger) CreateSplitPayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := split.Validate(req.TotalAmount, req.Participants, l.cfg.MaxGroupSize); err != nil {
		return nil, err
	}
	if req.BookingRef == "" {
		return nil, &split.ValidationError{Field: "booking_ref", Reason: "required"}
	}
	if req.OrganizerID == "" {
		return nil, &split.ValidationError{Field: "organizer_id", Reason: "required"}
	}
	now := l.now()
	minDeadline, maxDeadline := l.cfg.DeadlineWindow(now)
	if req.Deadline.Before(minDeadline) || req.Deadline.After(maxDeadline) {
		return nil, &split.ValidationError{
			Field:  "payment_deadline",
			Reason: fmt.Sprintf("must be between %d and %d hours from now", l.cfg.MinPaymentDeadlineHours, l.cfg.MaxPaymentDeadlineHours),
		}
	}

	n := len(req.Participants)
	var shares []int64
	var err error
	switch req.SplitType {
	case payments.SplitEqual:
		shares, err = split.EqualSplit(req.TotalAmount, n, false)
	case payments.SplitCustom:
		if len(req.CustomAmounts) != n {
			return nil, &split.ValidationError{Field: "amounts", Reason: "one amount per participant required"}
		}
		shares, err = split.CustomSplit(req.TotalAmount, req.CustomAmounts)
	default:
		return nil, &split.ValidationError{Field: "split_type", Reason: fmt.Sprintf("unknown type %q", req.SplitType)}
	}
	if err != nil {
		return nil, err
	}

	fees, err := split.WithFees(req.TotalAmount/int64(n), n, l.cfg.FeeHandling, l.cfg.FeeFixedCents, l.cfg.FeePercent)
	if err != nil {
		return nil, err
	}

	snapshot := payments.SplitSnapshot{
		Shares:       shares,
		PerShareFee:  fees.PerShareFee,
		OrganizerFee: fees.OrganizerFee,
		TotalFees:    fees.TotalFees,
		FeeHandling:  string(l.cfg.FeeHandling),
	}
	metadata, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal split snapshot: %w", err)
	}

	// When participants carry the fee, each share is grossed up and the
	// aggregate total grows with it, keeping sum(children) == total exact.
	var total int64
	children := make([]payments.IndividualPayment, n)
	for i, p := range req.Participants {
		due := shares[i] + fees.PerShareFee
		total += due
		children[i] = payments.IndividualPayment{
			ID:               uuid.NewString(),
			UserID:           p.UserID,
			ParticipantName:  p.Name,
			ParticipantEmail: p.Email,
			AmountDue:        due,
			Status:           payments.IndividualPending,
			PaymentDeadline:  req.Deadline,
		}
	}

	sp := &payments.SplitPayment{
		ID:               uuid.NewString(),
		BookingRef:       req.BookingRef,
		OrganizerID:      req.OrganizerID,
		VendorAccountID:  req.VendorAccountID,
		TotalAmount:      total,
		Currency:         req.Currency,
		SplitType:        req.SplitType,
		ParticipantCount: n,
		Status:           payments.SplitPending,
		BookingStatus:    payments.BookingPending,
		Description:      req.Description,
		Metadata:         metadata,
		PaymentDeadline:  req.Deadline,
	}
	for i := range children {
		children[i].SplitPaymentID = sp.ID
	}

	if err := l.store.CreateSplitPayment(ctx, sp, children); err != nil {
		return nil, err
	}

	slog.Info("Split payment created",
		"split_payment_id", sp.ID,
		"booking_ref", sp.BookingRef,
		"organizer_id", sp.OrganizerID,
		"total", sp.TotalAmount,
		"participants", n,
		"deadline", sp.PaymentDeadline,
	)
	return &CreateResult{SplitPayment: sp, Children: children, Snapshot: snapshot}, nil
}

// View is an aggregate with its children and derived statistics.
type View struct {
	SplitPayment *payments.SplitPayment
	Children     []payments.IndividualPayment
	Stats        payments.Stats
}

// Get loads an aggregate with fresh children and statistics.
func (l *PaymentLedger) Get(ctx context.Context, id string) (*View, error) {
	sp, err := l.store.GetSplitPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{
		SplitPayment: sp,
		Children:     sp.Children,
		Stats:        payments.ComputeStats(sp.Children, l.cfg.MinimumPaymentThreshold),
	}, nil
}

// ListByOrganizer returns the organizer's split payments, newest first.
func (l *PaymentLedger) ListByOrganizer(ctx context.Context, organizerID string) ([]payments.SplitPayment, error) {
	return l.store.ListSplitPaymentsByOrganizer(ctx, organizerID)
}

// ProcessIndividualPayment starts (or resumes) payment of one share: it
// authorizes the requester, checks preconditions, requests a payment intent
// from the gateway and moves the child to processing. Idempotent: a second
// call while processing returns the existing intent instead of creating a
// duplicate.
func (l *PaymentLedger) ProcessIndividualPayment(ctx context.Context, individualID, requesterID string) (*stripegw.Intent, error) {
	child, err := l.store.GetIndividualPayment(ctx, individualID)
	if err != nil {
		return nil, err
	}
	if child.UserID != requesterID {
		return nil, payments.ErrNotAuthorized
	}

	switch child.Status {
	case payments.IndividualPaid, payments.IndividualRefunded:
		return nil, payments.ErrAlreadyPaid
	case payments.IndividualExpired:
		return nil, payments.ErrDeadlineExpired
	}
	if l.now().After(child.PaymentDeadline) {
		return nil, payments.ErrDeadlineExpired
	}
	// Double-click absorption: an intent already exists for this share.
	if child.Status == payments.IndividualProcessing && child.GatewayIntentID != "" {
		return &stripegw.Intent{IntentID: child.GatewayIntentID, ClientSecret: child.GatewayClientSecret}, nil
	}

	sp, err := l.store.GetSplitPayment(ctx, child.SplitPaymentID)
	if err != nil {
		return nil, err
	}

	intent, err := l.gateway.CreateIntent(ctx, stripegw.CreateIntentRequest{
		IdempotencyKey: child.ID,
		Amount:         child.AmountDue,
		Currency:       sp.Currency,
		PayeeAccount:   sp.VendorAccountID,
		Description:    sp.Description,
		Metadata: map[string]string{
			"split_payment_id":      sp.ID,
			"individual_payment_id": child.ID,
			"booking_ref":           sp.BookingRef,
		},
	})
	if err != nil {
		return nil, err
	}

	err = l.store.TransitionIndividual(ctx, child.ID,
		[]payments.IndividualStatus{payments.IndividualPending, payments.IndividualFailed, payments.IndividualProcessing},
		payments.IndividualProcessing,
		map[string]any{
			"gateway_intent_id":     intent.IntentID,
			"gateway_client_secret": intent.ClientSecret,
		})
	if errors.Is(err, payments.ErrConcurrencyConflict) {
		// Lost the race. Re-read: if the share got paid meanwhile the caller
		// must stop; otherwise hand back whatever intent landed.
		fresh, rerr := l.store.GetIndividualPayment(ctx, child.ID)
		if rerr != nil {
			return nil, rerr
		}
		if fresh.Status == payments.IndividualPaid {
			return nil, payments.ErrAlreadyPaid
		}
		if fresh.GatewayIntentID != "" {
			return &stripegw.Intent{IntentID: fresh.GatewayIntentID, ClientSecret: fresh.GatewayClientSecret}, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Payment intent created",
		"individual_payment_id", child.ID,
		"split_payment_id", sp.ID,
		"intent_id", intent.IntentID,
		"amount", child.AmountDue,
	)
	return intent, nil
}

// ConfirmPayment marks one share paid and recomputes the aggregate status.
// Idempotent: confirming an already-paid share is a no-op, so a webhook
// retry or a double confirmation never double-counts.
func (l *PaymentLedger) ConfirmPayment(ctx context.Context, individualID, confirmationID string) error {
	child, err := l.store.GetIndividualPayment(ctx, individualID)
	if err != nil {
		return err
	}
	if child.Status == payments.IndividualPaid || child.Status == payments.IndividualRefunded {
		return nil
	}
	if child.Status == payments.IndividualExpired {
		return payments.ErrDeadlineExpired
	}

	now := l.now()
	err = l.store.TransitionIndividual(ctx, child.ID,
		[]payments.IndividualStatus{payments.IndividualPending, payments.IndividualProcessing},
		payments.IndividualPaid,
		map[string]any{
			"amount_paid":             child.AmountDue,
			"paid_at":                 now,
			"gateway_confirmation_id": confirmationID,
		})
	if errors.Is(err, payments.ErrConcurrencyConflict) {
		fresh, rerr := l.store.GetIndividualPayment(ctx, child.ID)
		if rerr != nil {
			return rerr
		}
		if fresh.Status == payments.IndividualPaid {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	metrics.Confirmations.Inc()
	slog.Info("Payment confirmed",
		"individual_payment_id", child.ID,
		"split_payment_id", child.SplitPaymentID,
		"confirmation_id", confirmationID,
	)
	return l.RecomputeAggregate(ctx, child.SplitPaymentID)
}

// FailPayment records a gateway-declined share. The child moves to failed
// and can be retried into a fresh attempt.
func (l *PaymentLedger) FailPayment(ctx context.Context, individualID, reason string) error {
	err := l.store.TransitionIndividual(ctx, individualID,
		[]payments.IndividualStatus{payments.IndividualProcessing},
		payments.IndividualFailed, nil)
	if errors.Is(err, payments.ErrConcurrencyConflict) {
		// Confirmation beat the failure event; nothing to record.
		return nil
	}
	if err != nil {
		return err
	}
	slog.Warn("Payment failed", "individual_payment_id", individualID, "reason", reason)
	return nil
}

// RecomputeAggregate re-derives the aggregate status from current child rows
// and persists it when it changed. Derivation is pure and idempotent, so two
// racing recomputations converge without coordination: on a lost write the
// loop re-reads and re-derives.
func (l *PaymentLedger) RecomputeAggregate(ctx context.Context, splitPaymentID string) error {
	for attempt := 0; attempt < 3; attempt++ {
		sp, err := l.store.GetSplitPayment(ctx, splitPaymentID)
		if err != nil {
			return err
		}
		children, err := l.store.ListChildren(ctx, splitPaymentID)
		if err != nil {
			return err
		}

		derived := payments.DeriveStatus(sp.Status, children)
		if derived == sp.Status {
			return nil
		}

		updates := map[string]any{}
		if derived == payments.SplitCompleted {
			updates["booking_status"] = payments.BookingPaid
		}
		err = l.store.TransitionSplit(ctx, splitPaymentID,
			[]payments.SplitStatus{sp.Status}, derived, updates)
		if err == nil {
			slog.Info("Aggregate status updated",
				"split_payment_id", splitPaymentID, "status", derived)
			return nil
		}
		if !errors.Is(err, payments.ErrConcurrencyConflict) {
			return err
		}
	}
	return payments.ErrConcurrencyConflict
}
