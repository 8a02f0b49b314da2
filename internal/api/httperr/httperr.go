// Package httperr maps engine errors onto HTTP responses.
package httperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"splitpay/internal/domain/payments"
	"splitpay/internal/domain/split"
)

// Respond writes the JSON error response matching the error kind. Validation
// and precondition failures surface their message to the caller; internal
// failures do not leak details.
func Respond(c *gin.Context, err error) {
	var verr *split.ValidationError
	var gerr *payments.GatewayError

	switch {
	case errors.As(err, &verr),
		errors.Is(err, split.ErrSplitMismatch),
		errors.Is(err, split.ErrInvalidParticipantCount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, payments.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})

	case errors.Is(err, payments.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})

	case errors.Is(err, payments.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"error": "Payment already completed"})

	case errors.Is(err, payments.ErrConcurrencyConflict),
		errors.Is(err, payments.ErrNotCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, payments.ErrDeadlineExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Payment deadline passed"})

	case errors.Is(err, payments.ErrTokenInvalid):
		c.JSON(http.StatusGone, gin.H{"error": "Payment link invalid or expired"})

	case errors.As(err, &gerr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment processor unavailable"})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
