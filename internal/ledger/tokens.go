package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"splitpay/internal/domain/payments"
	"splitpay/internal/infra/stripegw"
)

// IssuePaymentToken creates a single-use pay link token for one share. Only
// the organizer of the owning aggregate may issue links. The token expires
// at the configured TTL or the payment deadline, whichever comes first.
func (l *PaymentLedger) IssuePaymentToken(ctx context.Context, individualID, requesterID string) (*payments.PaymentToken, error) {
	child, err := l.store.GetIndividualPayment(ctx, individualID)
	if err != nil {
		return nil, err
	}
	sp, err := l.store.GetSplitPayment(ctx, child.SplitPaymentID)
	if err != nil {
		return nil, err
	}
	if sp.OrganizerID != requesterID {
		return nil, payments.ErrNotAuthorized
	}
	switch child.Status {
	case payments.IndividualPaid, payments.IndividualRefunded:
		return nil, payments.ErrAlreadyPaid
	case payments.IndividualExpired:
		return nil, payments.ErrDeadlineExpired
	}

	token, err := l.IssueReminderToken(ctx, child)
	if err != nil {
		return nil, err
	}

	slog.Info("Payment token issued",
		"individual_payment_id", child.ID,
		"expires_at", token.ExpiresAt,
	)
	return token, nil
}

// IssueReminderToken mints a pay-link token on the scheduler's behalf so a
// reminder can carry a no-login payment link. Same lifetime rules as
// organizer-issued tokens.
func (l *PaymentLedger) IssueReminderToken(ctx context.Context, child *payments.IndividualPayment) (*payments.PaymentToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	expires := l.now().Add(l.cfg.PaymentTokenTTL)
	if child.PaymentDeadline.Before(expires) {
		expires = child.PaymentDeadline
	}
	token := &payments.PaymentToken{
		Token:               hex.EncodeToString(raw),
		IndividualPaymentID: child.ID,
		ExpiresAt:           expires,
	}
	if err := l.store.CreatePaymentToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ResolvePaymentToken validates a token and returns the share it references.
// A token is invalid once used, once expired, or once the referenced payment
// reached a terminal status.
func (l *PaymentLedger) ResolvePaymentToken(ctx context.Context, token string) (*payments.IndividualPayment, error) {
	t, err := l.store.GetPaymentToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if t.UsedAt != nil || l.now().After(t.ExpiresAt) {
		return nil, payments.ErrTokenInvalid
	}

	child, err := l.store.GetIndividualPayment(ctx, t.IndividualPaymentID)
	if err != nil {
		return nil, err
	}
	if child.Status.Terminal() || child.Status == payments.IndividualPaid {
		return nil, payments.ErrTokenInvalid
	}
	return child, nil
}

// PayWithToken starts payment of the share a token references, consuming the
// token. The token itself is the authorization; no login is required.
func (l *PaymentLedger) PayWithToken(ctx context.Context, token string) (*stripegw.Intent, error) {
	child, err := l.ResolvePaymentToken(ctx, token)
	if err != nil {
		return nil, err
	}

	intent, err := l.ProcessIndividualPayment(ctx, child.ID, child.UserID)
	if err != nil {
		return nil, err
	}

	if err := l.store.MarkTokenUsed(ctx, token, l.now()); err != nil {
		// The intent exists; a consumed-token race only matters for reuse.
		slog.Warn("Could not consume payment token", "error", err)
	}
	return intent, nil
}
