// Package scheduler runs the periodic deadline scan: reminder dispatch,
// deadline enforcement and gateway reconciliation of stuck payments.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"splitpay/config"
	"splitpay/internal/domain/payments"
	"splitpay/internal/infra/notify"
	"splitpay/internal/infra/stripegw"
	"splitpay/internal/ledger"
	"splitpay/internal/metrics"
	"splitpay/internal/store"
)

// DeadlineScheduler scans pending payments on a fixed interval.
type DeadlineScheduler struct {
	store    store.Store
	ledger   *ledger.PaymentLedger
	notifier notify.Notifier
	gateway  stripegw.Gateway
	cfg      *config.Config
	now      func() time.Time
}

func New(st store.Store, lg *ledger.PaymentLedger, n notify.Notifier, gw stripegw.Gateway, cfg *config.Config) *DeadlineScheduler {
	return &DeadlineScheduler{store: st, ledger: lg, notifier: n, gateway: gw, cfg: cfg, now: time.Now}
}

// Run executes ticks on the configured interval until the context is
// cancelled.
func (s *DeadlineScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SchedulerInterval)
	defer ticker.Stop()

	slog.Info("Deadline scheduler started", "interval", s.cfg.SchedulerInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Deadline scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunTick(ctx); err != nil {
				slog.Error("Scheduler tick failed, retrying next interval", "error", err)
			}
		}
	}
}

// RunTick executes one scan. It returns an error only when the store was
// unreachable; per-item failures (a reminder that bounced, one aggregate's
// enforcement) are isolated and logged.
func (s *DeadlineScheduler) RunTick(ctx context.Context) error {
	metrics.SchedulerTicks.Inc()
	start := s.now()

	if err := s.sendReminders(ctx); err != nil {
		return fmt.Errorf("reminder scan: %w", err)
	}
	if err := s.enforceExpired(ctx); err != nil {
		return fmt.Errorf("enforcement scan: %w", err)
	}
	if err := s.reconcileProcessing(ctx); err != nil {
		return fmt.Errorf("reconciliation scan: %w", err)
	}

	slog.Info("Scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// sendReminders dispatches at most one reminder per child per tick. The
// reminder window is derived from the configured offsets (largest first): a
// child inside window i is due a reminder while its reminder_count is still
// at or below i. The count is only advanced after a successful send, guarded
// by the expected count so racing ticks cannot double-send a window.
func (s *DeadlineScheduler) sendReminders(ctx context.Context) error {
	offsets := s.cfg.ReminderOffsets()
	if len(offsets) == 0 {
		return nil
	}
	maxOffset := offsets[0]
	for _, o := range offsets {
		if o > maxOffset {
			maxOffset = o
		}
	}

	now := s.now()
	due, err := s.store.ListRemindersDue(ctx, now, maxOffset, len(offsets))
	if err != nil {
		return err
	}

	for _, child := range due {
		window, ok := reminderWindow(offsets, child.PaymentDeadline.Sub(now))
		if !ok || child.ReminderCount > window {
			continue
		}

		if err := s.remindOne(ctx, child); err != nil {
			metrics.RemindersSent.WithLabelValues("failed").Inc()
			slog.Error("Reminder dispatch failed",
				"individual_payment_id", child.ID,
				"participant", child.ParticipantEmail,
				"error", err,
			)
			continue
		}
		metrics.RemindersSent.WithLabelValues("sent").Inc()
	}
	return nil
}

func (s *DeadlineScheduler) remindOne(ctx context.Context, child payments.IndividualPayment) error {
	sp, err := s.store.GetSplitPayment(ctx, child.SplitPaymentID)
	if err != nil {
		return err
	}

	payURL := ""
	if token, err := s.ledger.IssueReminderToken(ctx, &child); err == nil {
		payURL = fmt.Sprintf("%s/pay/%s", s.cfg.AppURL, token.Token)
	} else {
		slog.Warn("Could not issue reminder pay link", "individual_payment_id", child.ID, "error", err)
	}

	err = s.notifier.SendReminder(ctx, notify.Reminder{
		ParticipantName:  child.ParticipantName,
		ParticipantEmail: child.ParticipantEmail,
		AmountDue:        child.AmountDue,
		Currency:         sp.Currency,
		Description:      sp.Description,
		Deadline:         child.PaymentDeadline,
		PayURL:           payURL,
	})
	if err != nil {
		return err
	}

	err = s.store.SetReminderSent(ctx, child.ID, child.ReminderCount, s.now())
	if errors.Is(err, payments.ErrConcurrencyConflict) {
		// Another tick advanced the count first; the reminder still went out
		// once from that tick's perspective.
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Reminder sent",
		"individual_payment_id", child.ID,
		"participant", child.ParticipantEmail,
		"reminder_number", child.ReminderCount+1,
	)
	return nil
}

// reminderWindow returns the index of the deepest offset window containing
// untilDeadline. Offsets are largest-first; a child 20h from its deadline
// with offsets [72h 24h 2h] sits in window 1.
func reminderWindow(offsets []time.Duration, untilDeadline time.Duration) (int, bool) {
	window := -1
	for i, o := range offsets {
		if untilDeadline <= o {
			window = i
		}
	}
	if window < 0 {
		return 0, false
	}
	return window, true
}

// enforceExpired hands every aggregate past its deadline to the enforcement
// policy. The guarded status transition inside Enforce makes re-running the
// scan after a crash idempotent.
func (s *DeadlineScheduler) enforceExpired(ctx context.Context) error {
	expired, err := s.store.ListExpiredSplits(ctx, s.now())
	if err != nil {
		return err
	}

	for _, sp := range expired {
		res, err := s.ledger.Enforce(ctx, sp.ID)
		if err != nil {
			var perr *payments.PersistenceError
			if errors.As(err, &perr) {
				return err
			}
			slog.Error("Enforcement failed", "split_payment_id", sp.ID, "error", err)
			continue
		}
		if res.Skipped {
			slog.Debug("Enforcement skipped, already settled", "split_payment_id", sp.ID)
		}
	}
	return nil
}

// reconcileProcessing polls the gateway for children stuck in processing
// beyond the grace period and resolves them from the intent's actual state.
// A child is never failed without positive confirmation from the processor.
func (s *DeadlineScheduler) reconcileProcessing(ctx context.Context) error {
	stuck, err := s.store.ListStuckProcessing(ctx, s.now().Add(-s.cfg.ProcessingGrace))
	if err != nil {
		return err
	}

	for _, child := range stuck {
		if child.GatewayIntentID == "" {
			continue
		}
		conf, err := s.gateway.ConfirmIntent(ctx, child.GatewayIntentID)
		if err != nil {
			slog.Warn("Reconciliation poll failed", "individual_payment_id", child.ID, "error", err)
			continue
		}

		switch conf.State {
		case stripegw.IntentSucceeded:
			if err := s.ledger.ConfirmPayment(ctx, child.ID, conf.ConfirmationID); err != nil {
				slog.Error("Reconciliation confirm failed", "individual_payment_id", child.ID, "error", err)
			}
		case stripegw.IntentFailed, stripegw.IntentCanceled:
			if err := s.ledger.FailPayment(ctx, child.ID, string(conf.State)); err != nil {
				slog.Error("Reconciliation fail-mark failed", "individual_payment_id", child.ID, "error", err)
			}
		default:
			// Still in flight at the processor; check again next tick.
		}
	}
	return nil
}
