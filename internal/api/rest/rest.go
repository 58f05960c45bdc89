package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/plexlabs/vault-indexer/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		// Product endpoints (public read access)
		v1.GET("/products", handler.ListProducts)
		v1.GET("/products/all", handler.ListAllProducts)
		v1.GET("/products/:address", handler.GetProduct)

		// Product administration (requires authentication)
		v1.PUT("/products/:address/name", middleware.Auth(authCfg), handler.UpdateProductName)
		v1.PUT("/products/:address/stats", middleware.Auth(authCfg), handler.UpdateProductStats)
		v1.PUT("/products/:address/pause", middleware.Auth(authCfg), handler.UpdateProductPause)

		// Withdrawal intents (public, caller-attributed)
		v1.POST("/withdrawals", handler.RequestWithdraw)
		v1.DELETE("/withdrawals", handler.CancelWithdraw)

		// Marketplace endpoints (public read access)
		v1.GET("/marketplace", handler.ListMarketplace)
		v1.GET("/marketplace/user/:address", handler.ListUserMarketplace)
		v1.GET("/marketplace/item/:id", handler.GetMarketplaceItem)
		v1.GET("/marketplace/token/:tokenId", handler.GetMarketplaceToken)
	}
}
