// Package payments exposes the participant-facing payment flow: start a
// payment on an owned share, or pay through a single-use link token.
package payments

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"splitpay/internal/api/httperr"
	"splitpay/internal/app/http/middleware"
	"splitpay/internal/ledger"
)

type Handler struct {
	ledger *ledger.PaymentLedger
}

func NewHandler(lg *ledger.PaymentLedger) *Handler {
	return &Handler{ledger: lg}
}

// Pay handles POST /individual-payments/:id/pay. Idempotent: a double-click
// returns the same payment intent.
func (h *Handler) Pay(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	intent, err := h.ledger.ProcessIndividualPayment(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"intent_id":     intent.IntentID,
		"client_secret": intent.ClientSecret,
	})
}

// ResolveLink handles GET /pay/:token: shows the participant what they owe
// before they commit.
func (h *Handler) ResolveLink(c *gin.Context) {
	child, err := h.ledger.ResolvePaymentToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"individual_payment_id": child.ID,
		"participant_name":      child.ParticipantName,
		"amount_due":            child.AmountDue,
		"status":                string(child.Status),
		"payment_deadline":      child.PaymentDeadline.Format(time.RFC3339),
	})
}

// PayWithLink handles POST /pay/:token: starts the payment and consumes the
// token.
func (h *Handler) PayWithLink(c *gin.Context) {
	intent, err := h.ledger.PayWithToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"intent_id":     intent.IntentID,
		"client_secret": intent.ClientSecret,
	})
}
