package middleware

import (
	"crypto/subtle"

	"leaderboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// HeaderServiceToken carries the shared secret of internal callers
const HeaderServiceToken = "X-Service-Token"

// RequireServiceToken admits only requests presenting the shared service
// token. An empty expected token leaves the route open.
func RequireServiceToken(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Next()
		}

		got := c.Get(HeaderServiceToken)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error:   "Unauthorized",
				Message: "missing " + HeaderServiceToken,
			})
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: "invalid service token",
			})
		}
		return c.Next()
	}
}
