package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	paymentsapi "splitpay/internal/api/payments"
	splitpaymentsapi "splitpay/internal/api/splitpayments"
	stripewebhooks "splitpay/internal/api/stripewebhook"
	"splitpay/internal/app/http/middleware"
)

// Handlers bundles the HTTP surface so main can wire everything in one place.
type Handlers struct {
	SplitPayments *splitpaymentsapi.Handler
	Payments      *paymentsapi.Handler
	Webhook       *stripewebhooks.Handler
}

func RegisterRoutes(r *gin.Engine, h Handlers, jwtSecret string) {
	// Raw body required for signature verification, no sanitization here.
	r.POST("/webhook", h.Webhook.Handle)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Pay links are reachable without an account.
	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())
	public.GET("/pay/:token", h.Payments.ResolveLink)
	public.POST("/pay/:token", h.Payments.PayWithLink)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(jwtSecret), middleware.SanitizeAndCleanInputMiddleware())
	auth.POST("/split-payments", h.SplitPayments.Create)
	auth.GET("/split-payments", h.SplitPayments.List)
	auth.GET("/split-payments/:id", h.SplitPayments.Get)
	auth.POST("/split-payments/:id/retry-refunds", h.SplitPayments.RetryRefunds)

	auth.POST("/individual-payments/:id/pay", h.Payments.Pay)
	auth.POST("/individual-payments/:id/link", h.SplitPayments.IssueLink)
}
