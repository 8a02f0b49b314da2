package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitpay/internal/domain/payments"
	"splitpay/internal/domain/split"
)

func TestCreateSplitPayment_EqualSplit(t *testing.T) {
	lg, st, _, clock := testLedger()

	res, err := createGroup(lg, clock)
	require.NoError(t, err)

	assert.Equal(t, payments.SplitPending, res.SplitPayment.Status)
	assert.Equal(t, payments.BookingPending, res.SplitPayment.BookingStatus)
	assert.Equal(t, int64(1000), res.SplitPayment.TotalAmount)
	require.Len(t, res.Children, 4)

	var sum int64
	for _, c := range res.Children {
		assert.Equal(t, payments.IndividualPending, c.Status)
		assert.Equal(t, res.SplitPayment.ID, c.SplitPaymentID)
		sum += c.AmountDue
	}
	assert.Equal(t, res.SplitPayment.TotalAmount, sum, "children must cover the total exactly")

	// Persisted, not just returned.
	stored, err := st.GetSplitPayment(context.Background(), res.SplitPayment.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Children, 4)
}

func TestCreateSplitPayment_ParticipantFees(t *testing.T) {
	lg, _, _, clock := testLedger()
	lg.cfg.FeeHandling = split.FeeParticipants

	res, err := createGroup(lg, clock)
	require.NoError(t, err)

	// per-transaction fee on a 250 base: 30 + round(250*0.029) = 37
	var sum int64
	for _, c := range res.Children {
		assert.Equal(t, int64(287), c.AmountDue)
		sum += c.AmountDue
	}
	assert.Equal(t, res.SplitPayment.TotalAmount, sum)
	assert.Equal(t, int64(37), res.Snapshot.PerShareFee)
	assert.Equal(t, int64(148), res.Snapshot.TotalFees)
}

func TestCreateSplitPayment_Validation(t *testing.T) {
	lg, _, _, clock := testLedger()
	ctx := context.Background()
	base := CreateRequest{
		BookingRef:  "booking-1",
		OrganizerID: "org-1",
		TotalAmount: 500,
		Currency:    "usd",
		SplitType:   "equal",
		Participants: []split.Participant{
			{UserID: "a"}, {UserID: "b"},
		},
		Deadline: clock.Add(48 * time.Hour),
	}

	t.Run("deadline too soon", func(t *testing.T) {
		req := base
		req.Deadline = clock.Add(2 * time.Hour)
		_, err := lg.CreateSplitPayment(ctx, req)
		var verr *split.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "payment_deadline", verr.Field)
	})

	t.Run("deadline too far", func(t *testing.T) {
		req := base
		req.Deadline = clock.Add(200 * time.Hour)
		_, err := lg.CreateSplitPayment(ctx, req)
		var verr *split.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("custom amounts must sum to total", func(t *testing.T) {
		req := base
		req.SplitType = "custom"
		req.CustomAmounts = []int64{300, 300}
		_, err := lg.CreateSplitPayment(ctx, req)
		assert.ErrorIs(t, err, split.ErrSplitMismatch)
	})

	t.Run("missing booking ref", func(t *testing.T) {
		req := base
		req.BookingRef = ""
		_, err := lg.CreateSplitPayment(ctx, req)
		var verr *split.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "booking_ref", verr.Field)
	})

	t.Run("duplicate participants", func(t *testing.T) {
		req := base
		req.Participants = []split.Participant{{UserID: "a"}, {UserID: "a"}}
		_, err := lg.CreateSplitPayment(ctx, req)
		var verr *split.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestProcessIndividualPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("creates intent and moves to processing", func(t *testing.T) {
		lg, st, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[1]

		intent, err := lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		require.NoError(t, err)
		assert.NotEmpty(t, intent.IntentID)
		assert.NotEmpty(t, intent.ClientSecret)
		assert.Equal(t, 1, gw.createCalls)

		fresh, err := st.GetIndividualPayment(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.IndividualProcessing, fresh.Status)
		assert.Equal(t, intent.IntentID, fresh.GatewayIntentID)
	})

	t.Run("double click returns the existing intent", func(t *testing.T) {
		lg, _, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[1]

		first, err := lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		require.NoError(t, err)
		second, err := lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		require.NoError(t, err)

		assert.Equal(t, first.IntentID, second.IntentID)
		assert.Equal(t, 1, gw.createCalls, "no duplicate intent for a repeat request")
	})

	t.Run("only the owner may pay", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		_, err = lg.ProcessIndividualPayment(ctx, res.Children[1].ID, "someone-else")
		assert.ErrorIs(t, err, payments.ErrNotAuthorized)
	})

	t.Run("rejects after the deadline", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		*clock = clock.Add(72 * time.Hour)
		_, err = lg.ProcessIndividualPayment(ctx, res.Children[1].ID, res.Children[1].UserID)
		assert.ErrorIs(t, err, payments.ErrDeadlineExpired)
	})

	t.Run("rejects an already paid share", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[1]

		_, err = lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		require.NoError(t, err)
		require.NoError(t, lg.ConfirmPayment(ctx, child.ID, "ch_1"))

		_, err = lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		assert.ErrorIs(t, err, payments.ErrAlreadyPaid)
	})

	t.Run("gateway failure leaves the share untouched", func(t *testing.T) {
		lg, st, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[1]

		gw.createErr = errGatewayDown
		_, err = lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		require.Error(t, err)

		fresh, err := st.GetIndividualPayment(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.IndividualPending, fresh.Status)
	})
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("partial then complete", func(t *testing.T) {
		lg, st, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		pay := func(i int) {
			child := res.Children[i]
			_, err := lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
			require.NoError(t, err)
			require.NoError(t, lg.ConfirmPayment(ctx, child.ID, "ch_"+child.ID))
		}

		pay(0)
		sp, err := st.GetSplitPayment(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.SplitPartiallyPaid, sp.Status)

		pay(1)
		pay(2)
		pay(3)
		sp, err = st.GetSplitPayment(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.SplitCompleted, sp.Status)
		assert.Equal(t, payments.BookingPaid, sp.BookingStatus)

		child, err := st.GetIndividualPayment(ctx, res.Children[0].ID)
		require.NoError(t, err)
		assert.Equal(t, child.AmountDue, child.AmountPaid)
		require.NotNil(t, child.PaidAt)
	})

	t.Run("duplicate confirmation is a no-op", func(t *testing.T) {
		lg, st, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[0]

		_, err = lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		require.NoError(t, err)
		require.NoError(t, lg.ConfirmPayment(ctx, child.ID, "ch_first"))
		require.NoError(t, lg.ConfirmPayment(ctx, child.ID, "ch_retry"))

		fresh, err := st.GetIndividualPayment(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, child.AmountDue, fresh.AmountPaid, "amount never double-counted")
		assert.Equal(t, "ch_first", fresh.GatewayConfirmationID)
	})

	t.Run("expired share cannot be confirmed", func(t *testing.T) {
		lg, st, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[0]

		require.NoError(t, st.TransitionIndividual(ctx, child.ID,
			[]payments.IndividualStatus{payments.IndividualPending},
			payments.IndividualExpired, nil))

		err = lg.ConfirmPayment(ctx, child.ID, "ch_late")
		assert.ErrorIs(t, err, payments.ErrDeadlineExpired)
	})
}

func TestFailPayment(t *testing.T) {
	ctx := context.Background()
	lg, st, _, clock := testLedger()
	res, err := createGroup(lg, clock)
	require.NoError(t, err)
	child := res.Children[0]

	_, err = lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
	require.NoError(t, err)

	require.NoError(t, lg.FailPayment(ctx, child.ID, "card_declined"))
	fresh, err := st.GetIndividualPayment(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.IndividualFailed, fresh.Status)

	// A failed share can be retried into a fresh attempt.
	_, err = lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
	require.NoError(t, err)
	fresh, err = st.GetIndividualPayment(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.IndividualProcessing, fresh.Status)

	// A late failure event after confirmation is absorbed.
	require.NoError(t, lg.ConfirmPayment(ctx, child.ID, "ch_ok"))
	require.NoError(t, lg.FailPayment(ctx, child.ID, "stale event"))
	fresh, err = st.GetIndividualPayment(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.IndividualPaid, fresh.Status)
}

func TestConfirmUnknownPayment(t *testing.T) {
	lg, _, _, _ := testLedger()
	err := lg.ConfirmPayment(context.Background(), "no-such-id", "ch_x")
	assert.ErrorIs(t, err, payments.ErrNotFound)
}

func payShares(t *testing.T, lg *PaymentLedger, res *CreateResult, indexes ...int) {
	t.Helper()
	ctx := context.Background()
	for _, i := range indexes {
		child := res.Children[i]
		_, err := lg.ProcessIndividualPayment(ctx, child.ID, child.UserID)
		require.NoError(t, err)
		require.NoError(t, lg.ConfirmPayment(ctx, child.ID, "ch_"+child.ID))
	}
}

func TestEnforce(t *testing.T) {
	ctx := context.Background()

	t.Run("threshold met proceeds with partial funds", func(t *testing.T) {
		lg, st, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		// 3 of 4 shares collected (75%) against a 70% threshold.
		lg.cfg.MinimumPaymentThreshold = 0.7
		payShares(t, lg, res, 0, 1, 2)

		*clock = clock.Add(72 * time.Hour)
		out, err := lg.Enforce(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.False(t, out.Skipped)
		assert.Equal(t, payments.OutcomeProceedPartial, out.Outcome)
		assert.Empty(t, gw.refundCalls, "no refunds when proceeding")

		sp, err := st.GetSplitPayment(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.SplitCompletedPartial, sp.Status)
		assert.Equal(t, payments.BookingPaid, sp.BookingStatus)
		require.NotNil(t, sp.EnforcedAt)

		// The unpaid share is expired, paid shares keep their money.
		unpaid, err := st.GetIndividualPayment(ctx, res.Children[3].ID)
		require.NoError(t, err)
		assert.Equal(t, payments.IndividualExpired, unpaid.Status)
		paid, err := st.GetIndividualPayment(ctx, res.Children[0].ID)
		require.NoError(t, err)
		assert.Equal(t, payments.IndividualPaid, paid.Status)
	})

	t.Run("threshold missed refunds and cancels", func(t *testing.T) {
		lg, st, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		payShares(t, lg, res, 0, 1) // 50% collected
		*clock = clock.Add(72 * time.Hour)

		out, err := lg.Enforce(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.OutcomeCancelRefund, out.Outcome)
		assert.Equal(t, 2, out.Refunds.Total)
		assert.Equal(t, 2, out.Refunds.Succeeded)
		assert.Len(t, gw.refundCalls, 2)

		sp, err := st.GetSplitPayment(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.SplitCancelledInsufficient, sp.Status)
		assert.Equal(t, payments.BookingCancelled, sp.BookingStatus)

		refunded, err := st.GetIndividualPayment(ctx, res.Children[0].ID)
		require.NoError(t, err)
		assert.Equal(t, payments.IndividualRefunded, refunded.Status)
		require.NotNil(t, refunded.RefundedAt)
	})

	t.Run("already settled aggregates are skipped", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		payShares(t, lg, res, 0, 1, 2, 3)

		*clock = clock.Add(72 * time.Hour)
		out, err := lg.Enforce(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.True(t, out.Skipped)
	})

	t.Run("repeat enforcement is idempotent", func(t *testing.T) {
		lg, _, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		payShares(t, lg, res, 0)

		*clock = clock.Add(72 * time.Hour)
		_, err = lg.Enforce(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		calls := len(gw.refundCalls)

		out, err := lg.Enforce(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.True(t, out.Skipped)
		assert.Len(t, gw.refundCalls, calls, "no second refund pass")
	})
}

func TestRetryRefunds(t *testing.T) {
	ctx := context.Background()

	t.Run("retries only the failed subset", func(t *testing.T) {
		lg, st, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		payShares(t, lg, res, 0, 1)

		// First cascade: the refund for child 0 fails at the gateway.
		gw.refundFail["ch_"+res.Children[0].ID] = errGatewayDown
		*clock = clock.Add(72 * time.Hour)
		out, err := lg.Enforce(ctx, res.SplitPayment.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Refunds.Failed)

		stuck, err := st.GetIndividualPayment(ctx, res.Children[0].ID)
		require.NoError(t, err)
		assert.Equal(t, payments.IndividualPaid, stuck.Status)
		assert.NotEmpty(t, stuck.RefundError)

		// Gateway recovers; retry covers just the remaining paid child.
		delete(gw.refundFail, "ch_"+res.Children[0].ID)
		summary, err := lg.RetryRefunds(ctx, res.SplitPayment.ID, "user-0")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Total)
		assert.Equal(t, 1, summary.Succeeded)

		recovered, err := st.GetIndividualPayment(ctx, res.Children[0].ID)
		require.NoError(t, err)
		assert.Equal(t, payments.IndividualRefunded, recovered.Status)
		assert.Empty(t, recovered.RefundError)
	})

	t.Run("only the organizer may retry", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		_, err = lg.RetryRefunds(ctx, res.SplitPayment.ID, "user-1")
		assert.ErrorIs(t, err, payments.ErrNotAuthorized)
	})

	t.Run("requires a cancelled aggregate", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		_, err = lg.RetryRefunds(ctx, res.SplitPayment.ID, "user-0")
		assert.ErrorIs(t, err, payments.ErrNotCancelled)
	})
}

func TestPaymentTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("issue resolve pay and consume", func(t *testing.T) {
		lg, _, gw, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[2]

		token, err := lg.IssuePaymentToken(ctx, child.ID, "user-0")
		require.NoError(t, err)
		assert.Len(t, token.Token, 64)

		resolved, err := lg.ResolvePaymentToken(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, child.ID, resolved.ID)

		intent, err := lg.PayWithToken(ctx, token.Token)
		require.NoError(t, err)
		assert.NotEmpty(t, intent.ClientSecret)
		assert.Equal(t, 1, gw.createCalls)

		// Single use: the same link cannot start a second payment.
		_, err = lg.PayWithToken(ctx, token.Token)
		assert.ErrorIs(t, err, payments.ErrTokenInvalid)
	})

	t.Run("only the organizer may issue", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		_, err = lg.IssuePaymentToken(ctx, res.Children[2].ID, "user-2")
		assert.ErrorIs(t, err, payments.ErrNotAuthorized)
	})

	t.Run("lifetime capped at the payment deadline", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		// Deadline is 48h out and the TTL is 48h, so the cap binds.
		token, err := lg.IssuePaymentToken(ctx, res.Children[0].ID, "user-0")
		require.NoError(t, err)
		assert.True(t, !token.ExpiresAt.After(res.Children[0].PaymentDeadline))
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)

		token, err := lg.IssuePaymentToken(ctx, res.Children[0].ID, "user-0")
		require.NoError(t, err)

		*clock = clock.Add(72 * time.Hour)
		_, err = lg.ResolvePaymentToken(ctx, token.Token)
		assert.ErrorIs(t, err, payments.ErrTokenInvalid)
	})

	t.Run("token for a paid share is rejected", func(t *testing.T) {
		lg, _, _, clock := testLedger()
		res, err := createGroup(lg, clock)
		require.NoError(t, err)
		child := res.Children[0]

		token, err := lg.IssuePaymentToken(ctx, child.ID, "user-0")
		require.NoError(t, err)
		payShares(t, lg, res, 0)

		_, err = lg.ResolvePaymentToken(ctx, token.Token)
		assert.ErrorIs(t, err, payments.ErrTokenInvalid)
	})
}

func TestRecomputeAggregateNeverRegresses(t *testing.T) {
	ctx := context.Background()
	lg, st, _, clock := testLedger()
	res, err := createGroup(lg, clock)
	require.NoError(t, err)
	payShares(t, lg, res, 0, 1, 2, 3)

	// Completed is terminal: recomputation leaves it alone even if called
	// again out of band.
	require.NoError(t, lg.RecomputeAggregate(ctx, res.SplitPayment.ID))
	sp, err := st.GetSplitPayment(ctx, res.SplitPayment.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.SplitCompleted, sp.Status)

	err = lg.RecomputeAggregate(ctx, "missing")
	assert.ErrorIs(t, err, payments.ErrNotFound)
}
