package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mroshb/tiktok_claims/internal/security"
	"github.com/mroshb/tiktok_claims/pkg/logger"
)

const LocalUID = "uid"

// JWTAuth requires an "Authorization: Bearer <token>" header and stores the
// token's uid in c.Locals(LocalUID).
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}

		claims, err := security.ValidateJWT(strings.TrimSpace(token), secret)
		if err != nil {
			logger.Debug("Rejected bearer token", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals(LocalUID, claims.UID())
		return c.Next()
	}
}

// UID returns the authenticated uid, or "" outside JWTAuth.
func UID(c *fiber.Ctx) string {
	uid, _ := c.Locals(LocalUID).(string)
	return uid
}

// RateLimit rejects a user's requests past the limiter's window budget.
func RateLimit(rl *RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.Allow(UID(c)) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
