// deadline-check runs one deadline scan and exits: reminders, enforcement of
// expired aggregates and reconciliation of stuck payments. Intended for cron
// or one-off operator runs next to (or instead of) the in-process scheduler.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"splitpay/config"
	"splitpay/database"
	"splitpay/internal/infra/notify"
	"splitpay/internal/infra/stripegw"
	"splitpay/internal/ledger"
	"splitpay/internal/refund"
	"splitpay/internal/scheduler"
	"splitpay/internal/store"
	"splitpay/pkg/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("deadline-check failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:           "run-deadline-check",
		Short:         "Run one deadline scan over pending group payments",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logging.SetupWithLevel(level)
			return runTick(cmd.Context(), timeout)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall scan timeout")

	return cmd
}

func runTick(parent context.Context, timeout time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cfg := config.Load()
	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	st := store.NewGormStore(db)
	gateway := stripegw.NewStripeGateway(cfg.StripeSecretKey, stripegw.RetryPolicy{
		MaxAttempts: cfg.GatewayMaxRetries,
		InitialWait: 500 * time.Millisecond,
		Timeout:     cfg.GatewayTimeout,
	})
	refunder := refund.NewCascade(st, gateway)
	lg := ledger.New(st, gateway, refunder, cfg)
	notifier := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Password: cfg.SMTPPassword,
	})

	sched := scheduler.New(st, lg, notifier, gateway, cfg)

	slog.Info("Running deadline scan", "policy", cfg.String())
	if err := sched.RunTick(ctx); err != nil {
		return err
	}
	slog.Info("Deadline scan completed")
	return nil
}
