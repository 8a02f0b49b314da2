package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"splitpay/config"
	"splitpay/database"
	paymentsapi "splitpay/internal/api/payments"
	splitpaymentsapi "splitpay/internal/api/splitpayments"
	stripewebhooks "splitpay/internal/api/stripewebhook"
	routes "splitpay/internal/app/http"
	"splitpay/internal/infra/notify"
	"splitpay/internal/infra/stripegw"
	"splitpay/internal/ledger"
	"splitpay/internal/refund"
	"splitpay/internal/scheduler"
	"splitpay/internal/store"
	"splitpay/pkg/logging"
)

func main() {
	// gin.SetMode(gin.ReleaseMode) uncomment only in production
	logging.Setup()
	cfg := config.Load()
	slog.Info("Starting split payment engine", "policy", cfg.String())

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database init failed: %v", err)
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
	go func() {
		if err := sched.Run(context.Background()); err != nil && err != context.Canceled {
			slog.Error("Scheduler exited", "error", err)
		}
	}()

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Handlers{
		SplitPayments: splitpaymentsapi.NewHandler(lg, cfg.AppURL),
		Payments:      paymentsapi.NewHandler(lg),
		Webhook:       stripewebhooks.NewHandler(lg, cfg.StripeWebhookSecret),
	}, cfg.JWTSecret)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
