package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mroshb/tiktok_claims/internal/middleware"
)

func SetupRoutes(app *fiber.App, claims *ClaimHandler, jwtSecret string, limiter *middleware.RateLimiter) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1/tiktok", middleware.JWTAuth(jwtSecret))
	api.Post("/claims", middleware.RateLimit(limiter), claims.CreateClaim)
	api.Get("/claims/:id", claims.GetClaim)
	api.Get("/history", claims.ListHistory)
}
