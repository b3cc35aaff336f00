// internal/app/router.go
package app

import (
	billingHandler "opsdesk-service/internal/handlers/billing"
	wsHandler "opsdesk-service/internal/handlers/ws"
	"opsdesk-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	PlanHandler    *billingHandler.PlanHandler
	BillingHandler *billingHandler.BillingHandler
	UsageHandler   *billingHandler.UsageHandler
	WebhookHandler *billingHandler.WebhookHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Webhooks ====================
	// Authenticated by signature, not by session.
	api.POST("/billing/webhook", h.WebhookHandler.HandleWebhook)

	// ==================== Plans ====================
	plans := api.Group("/billing/plans")
	{
		// Public catalog for signup pages
		plans.GET("", h.PlanHandler.ListPlans)

		// Admin management
		plansAdmin := plans.Group("")
		plansAdmin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireAdmin())
		{
			plansAdmin.POST("", h.PlanHandler.CreatePlan)
			plansAdmin.PATCH("/:id", h.PlanHandler.UpdatePlan)
			plansAdmin.DELETE("/:id", h.PlanHandler.DeactivatePlan)
		}
	}

	// ==================== Billing Lifecycle ====================
	billing := api.Group("/billing")
	billing.Use(h.AuthMiddleware.Auth())
	{
		// Ownership of the body's business_id is checked in the handler.
		billing.POST("/create-subscription", h.BillingHandler.CreateSubscription)

		owned := billing.Group("")
		owned.Use(h.AuthMiddleware.RequireBusinessAccess())
		{
			owned.GET("/status/:businessId", h.BillingHandler.GetStatus)
			owned.POST("/cancel/:businessId", h.BillingHandler.CancelSubscription)
			owned.POST("/resume/:businessId", h.BillingHandler.ResumeSubscription)

			owned.GET("/usage/:businessId", h.UsageHandler.GetUsage)
			owned.POST("/usage/:businessId/record", h.UsageHandler.RecordUsage)
			owned.GET("/overage-history/:businessId", h.UsageHandler.GetOverageHistory)
		}
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/billing/overages", h.UsageHandler.RecordOverage)
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
