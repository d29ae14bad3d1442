package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/creatorly/creatorpay/internal/pkg/env"
)

// InternalAuthMiddleware protects the trigger and operator endpoints. The
// scheduler (cron) and operators authenticate with the shared secret from
// PAYOUT_INTERNAL_SECRET, sent as X-Internal-Secret or a bearer token.
func InternalAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := env.GetEnv("PAYOUT_INTERNAL_SECRET", "")
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "not_configured",
				"message": "PAYOUT_INTERNAL_SECRET is not set",
			})
		}

		provided := extractInternalSecret(c)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing or invalid internal secret",
			})
		}

		return c.Next()
	}
}

func extractInternalSecret(c *fiber.Ctx) string {
	if secret := strings.TrimSpace(c.Get("X-Internal-Secret")); secret != "" {
		return secret
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
