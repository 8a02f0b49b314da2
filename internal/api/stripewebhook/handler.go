// Package stripewebhook receives payment events from Stripe and feeds them
// into the ledger. Confirmation through the webhook is the normal path for a
// participant payment reaching paid.
package stripewebhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"

	"splitpay/internal/ledger"
)

const maxBodyBytes = 65536

type Handler struct {
	ledger         *ledger.PaymentLedger
	endpointSecret string
}

func NewHandler(lg *ledger.PaymentLedger, endpointSecret string) *Handler {
	return &Handler{ledger: lg, endpointSecret: endpointSecret}
}

// Handle processes POST /webhook. Ledger idempotency makes Stripe's retry
// delivery safe: a duplicate payment_intent.succeeded is a no-op.
func (h *Handler) Handle(c *gin.Context) {
	if h.endpointSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STRIPE_WEBHOOK_SECRET not configured"})
		return
	}

	payload, err := readBody(c, maxBodyBytes)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		slog.Warn("Stripe signature verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		intent, individualID, ok := parseIntent(c, event)
		if !ok {
			return
		}
		confirmationID := ""
		if intent.LatestCharge != nil {
			confirmationID = intent.LatestCharge.ID
		}
		if err := h.ledger.ConfirmPayment(c.Request.Context(), individualID, confirmationID); err != nil {
			// 500 so Stripe retries; confirmation is idempotent.
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "received"})

	case "payment_intent.payment_failed":
		_, individualID, ok := parseIntent(c, event)
		if !ok {
			return
		}
		if err := h.ledger.FailPayment(c.Request.Context(), individualID, "payment_intent.payment_failed"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "received"})

	default:
		// Acknowledge unknown events to avoid retries
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// parseIntent unmarshals the event payload and pulls the individual payment
// id out of the intent metadata set at creation time.
func parseIntent(c *gin.Context, event stripe.Event) (*stripe.PaymentIntent, string, bool) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse payment intent"})
		return nil, "", false
	}
	individualID := intent.Metadata["individual_payment_id"]
	if individualID == "" {
		slog.Warn("Payment intent missing individual_payment_id metadata", "intent_id", intent.ID)
		// Not ours; acknowledge so Stripe stops retrying.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return nil, "", false
	}
	return &intent, individualID, true
}

func readBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
