package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the shared key the payment gateway sends
// with callback requests.
func GatewayAuthMiddleware(callbackKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if callbackKey == "" {
			return fiber.NewError(fiber.StatusForbidden, "gateway callbacks disabled")
		}

		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid gateway credentials")
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(callbackKey)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid gateway credentials")
		}

		return c.Next()
	}
}
