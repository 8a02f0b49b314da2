// Package config loads all engine settings from the environment (optionally
// via a .env file). Load returns an explicit Config that callers pass into
// component constructors; there is no package-level mutable state.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"splitpay/internal/domain/split"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	CORSOrigin  string
	AppURL      string

	StripeSecretKey     string
	StripeWebhookSecret string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPPassword string

	// Group-payment policy.
	MaxGroupSize            int
	MinPaymentDeadlineHours int
	MaxPaymentDeadlineHours int
	ReminderScheduleHours   []int
	MinimumPaymentThreshold float64
	RefundProcessingDays    int
	FeeHandling             split.FeeMode
	FeeFixedCents           int64
	FeePercent              float64

	PaymentTokenTTL   time.Duration
	SchedulerInterval time.Duration
	ProcessingGrace   time.Duration
	GatewayTimeout    time.Duration
	GatewayMaxRetries int
}

// Load reads the environment into a Config. Missing required variables are
// fatal; policy options fall back to their defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: mustEnv("DB_URL"),
		JWTSecret:   mustEnv("JWT_SECRET"),
		CORSOrigin:  getEnv("CORS_ORIGIN", "*"),
		AppURL:      getEnv("APP_URL", "http://localhost:8080"),

		StripeSecretKey:     mustEnv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: mustEnv("STRIPE_WEBHOOK_SECRET"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MaxGroupSize:            getEnvInt("MAX_GROUP_SIZE", 20),
		MinPaymentDeadlineHours: getEnvInt("MIN_PAYMENT_DEADLINE_HOURS", 24),
		MaxPaymentDeadlineHours: getEnvInt("MAX_PAYMENT_DEADLINE_HOURS", 168),
		ReminderScheduleHours:   getEnvIntList("REMINDER_SCHEDULE_HOURS", []int{72, 24, 2}),
		MinimumPaymentThreshold: getEnvFloat("MINIMUM_PAYMENT_THRESHOLD", 0.8),
		RefundProcessingDays:    getEnvInt("REFUND_PROCESSING_DAYS", 3),
		FeeFixedCents:           int64(getEnvInt("FEE_FIXED_CENTS", 30)),
		FeePercent:              getEnvFloat("FEE_PERCENT", 0.029),

		PaymentTokenTTL:   time.Duration(getEnvInt("PAYMENT_TOKEN_TTL_HOURS", 48)) * time.Hour,
		SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_MINUTES", 60)) * time.Minute,
		ProcessingGrace:   time.Duration(getEnvInt("PROCESSING_GRACE_MINUTES", 30)) * time.Minute,
		GatewayTimeout:    time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
		GatewayMaxRetries: getEnvInt("GATEWAY_MAX_RETRIES", 3),
	}

	mode, err := split.ParseFeeMode(getEnv("FEE_HANDLING", string(split.FeeOrganizer)))
	if err != nil {
		log.Fatalf("Invalid FEE_HANDLING: %v", err)
	}
	cfg.FeeHandling = mode

	return cfg
}

func mustEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %q", key, v)
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("Invalid float for %s: %q", key, v)
	}
	return f
}

// getEnvIntList parses a comma-separated list like "72,24,2".
func getEnvIntList(key string, fallback []int) []int {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			log.Fatalf("Invalid integer list for %s: %q", key, v)
		}
		out = append(out, n)
	}
	return out
}

// DeadlineWindow returns the allowed [min, max] payment deadline range
// relative to now.
func (c *Config) DeadlineWindow(now time.Time) (time.Time, time.Time) {
	return now.Add(time.Duration(c.MinPaymentDeadlineHours) * time.Hour),
		now.Add(time.Duration(c.MaxPaymentDeadlineHours) * time.Hour)
}

// ReminderOffsets returns the reminder schedule as durations, in the
// configured order (largest offset first).
func (c *Config) ReminderOffsets() []time.Duration {
	out := make([]time.Duration, len(c.ReminderScheduleHours))
	for i, h := range c.ReminderScheduleHours {
		out[i] = time.Duration(h) * time.Hour
	}
	return out
}

// String renders the policy part of the config for startup logging, without
// secrets.
func (c *Config) String() string {
	return fmt.Sprintf("maxGroupSize=%d deadlineHours=[%d,%d] reminders=%v threshold=%.2f feeHandling=%s",
		c.MaxGroupSize, c.MinPaymentDeadlineHours, c.MaxPaymentDeadlineHours,
		c.ReminderScheduleHours, c.MinimumPaymentThreshold, c.FeeHandling)
}
