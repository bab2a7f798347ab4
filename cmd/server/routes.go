package main

import (
	"github.com/gin-gonic/gin"

	"blinkgate.backend/internal/interfaces/http/handlers"
)

// routeDeps collects every handler/middleware registerAPIV1Routes wires,
// keeping main.go's construction and the route table decoupled.
type routeDeps struct {
	proxyHandler      *handlers.ProxyHandler
	challengeHandler  *handlers.ChallengeHandler
	offerHandler      *handlers.OfferHandler
	adminHandler      *handlers.AdminHandler
	requireAdminToken gin.HandlerFunc
}

// registerAPIV1Routes wires the catalog-admin surface under /api/v1 and
// the payment-gated Blink surface at the bare root, since a slug is
// meant to read as a short public path (GET /<slug>/challenge,
// POST /<slug>), not nested
// under an API version prefix.
func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		admin := v1.Group("/admin")
		admin.Use(d.requireAdminToken)
		{
			admin.POST("/offers", d.offerHandler.Create)
			admin.GET("/offers", d.offerHandler.List)
			admin.GET("/offers/:slug", d.offerHandler.Get)
			admin.PUT("/offers/:slug/status", d.offerHandler.SetStatus)
			admin.GET("/offers/:slug/health", d.offerHandler.Health)
			admin.GET("/creators/:id/debts", d.adminHandler.ListCreatorDebts)
		}
	}

	r.GET("/:slug/challenge", d.challengeHandler.Issue)
	r.POST("/:slug", d.proxyHandler.Execute)
}
