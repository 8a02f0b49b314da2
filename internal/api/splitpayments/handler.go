// Package splitpayments exposes the organizer-facing HTTP surface: creating
// a group payment, inspecting it, issuing pay links and retrying refunds.
package splitpayments

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"splitpay/internal/api/httperr"
	"splitpay/internal/app/http/middleware"
	"splitpay/internal/domain/payments"
	"splitpay/internal/domain/split"
	"splitpay/internal/ledger"
)

type Handler struct {
	ledger *ledger.PaymentLedger
	appURL string
}

func NewHandler(lg *ledger.PaymentLedger, appURL string) *Handler {
	return &Handler{ledger: lg, appURL: appURL}
}

// Create handles POST /split-payments.
func (h *Handler) Create(c *gin.Context) {
	organizerID := middleware.UserID(c)
	if organizerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid fields", "details": err.Error()})
		return
	}

	req := ledger.CreateRequest{
		BookingRef:      body.BookingRef,
		OrganizerID:     organizerID,
		VendorAccountID: body.VendorAccountID,
		TotalAmount:     body.TotalAmount,
		Currency:        body.Currency,
		SplitType:       payments.SplitType(body.SplitType),
		Deadline:        body.PaymentDeadline,
		Description:     body.Description,
	}
	for _, p := range body.Participants {
		req.Participants = append(req.Participants, split.Participant{
			UserID: p.UserID,
			Name:   p.Name,
			Email:  p.Email,
		})
		if req.SplitType == payments.SplitCustom {
			req.CustomAmounts = append(req.CustomAmounts, p.Amount)
		}
	}

	res, err := h.ledger.CreateSplitPayment(c.Request.Context(), req)
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	out := toSplitPaymentResponse(res.SplitPayment)
	out.Children = make([]childResponse, len(res.Children))
	for i, child := range res.Children {
		out.Children[i] = toChildResponse(child)
	}
	c.JSON(http.StatusCreated, gin.H{
		"split_payment": out,
		"split":         res.Snapshot,
	})
}

// Get handles GET /split-payments/:id.
func (h *Handler) Get(c *gin.Context) {
	view, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	userID := middleware.UserID(c)
	if !canView(view, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	c.JSON(http.StatusOK, toViewResponse(view))
}

// List handles GET /split-payments: the organizer's history, newest first.
func (h *Handler) List(c *gin.Context) {
	organizerID := middleware.UserID(c)
	if organizerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	sps, err := h.ledger.ListByOrganizer(c.Request.Context(), organizerID)
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	out := make([]splitPaymentResponse, len(sps))
	for i := range sps {
		out[i] = toSplitPaymentResponse(&sps[i])
	}
	c.JSON(http.StatusOK, out)
}

// RetryRefunds handles POST /split-payments/:id/retry-refunds.
func (h *Handler) RetryRefunds(c *gin.Context) {
	organizerID := middleware.UserID(c)
	summary, err := h.ledger.RetryRefunds(c.Request.Context(), c.Param("id"), organizerID)
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	})
}

// IssueLink handles POST /individual-payments/:id/link: the organizer mints
// a single-use pay link for one participant.
func (h *Handler) IssueLink(c *gin.Context) {
	organizerID := middleware.UserID(c)
	token, err := h.ledger.IssuePaymentToken(c.Request.Context(), c.Param("id"), organizerID)
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":      token.Token,
		"pay_url":    fmt.Sprintf("%s/pay/%s", h.appURL, token.Token),
		"expires_at": token.ExpiresAt,
	})
}

// canView allows the organizer and any participant of the aggregate.
func canView(view *ledger.View, userID string) bool {
	if userID == "" {
		return false
	}
	if view.SplitPayment.OrganizerID == userID {
		return true
	}
	for _, c := range view.Children {
		if c.UserID == userID {
			return true
		}
	}
	return false
}
