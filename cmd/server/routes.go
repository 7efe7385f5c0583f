package main

import (
	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/middleware"
	"github.com/lifetravel/cartguard/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for the public storefront routes
	publicLimiter := middleware.NewRateLimiter(10, 20)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "cartguard"})
	})

	// Public storefront routes (rate limited, no auth)
	public := r.Group("", publicLimiter.Middleware())
	{
		public.POST("/sync/cart", svc.cartHandler.Sync)
		public.GET("/recover", svc.recoveryHandler.Open)
		public.POST("/recover/confirm", svc.recoveryHandler.Confirm)
	}

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", svc.authHandler.Login)
		}

		// Protected admin routes; every mutating request is audited
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.Audit(svc.securityLog))
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)

			// Dashboard
			protected.GET("/dashboard/overview", svc.dashboard.Overview)
			protected.GET("/dashboard/risk-score", svc.dashboard.RiskScore)

			// Abandoned carts
			protected.GET("/carts", svc.cartHandler.List)
			protected.GET("/carts/:id", svc.cartHandler.Get)
			protected.POST("/carts/:id/send-recovery", svc.cartHandler.SendRecovery)
			protected.DELETE("/carts/:id", svc.cartHandler.Delete)
			protected.POST("/carts/bulk", svc.cartHandler.Bulk)

			// Security events
			protected.GET("/security-events", svc.eventHandler.List)
			protected.GET("/security-events/types", svc.eventHandler.GetEventTypes)
			protected.GET("/security-events/retention", svc.eventHandler.GetRetention)
			protected.PUT("/security-events/retention", svc.eventHandler.SetRetention)
			protected.POST("/security-events/cleanup", svc.eventHandler.Cleanup)

			// Settings
			protected.GET("/settings/thresholds", svc.settings.GetThresholds)
			protected.PUT("/settings/thresholds", svc.settings.SetThresholds)
			protected.GET("/settings/recovery-template", svc.settings.GetRecoveryTemplate)
			protected.PUT("/settings/recovery-template", svc.settings.SetRecoveryTemplate)
			protected.GET("/settings/email", svc.settings.GetEmailConfig)
			protected.PUT("/settings/email", svc.settings.SetEmailConfig)
		}
	}
}
