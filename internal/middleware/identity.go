package middleware

import (
	"strings"

	"leaderboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Headers set by the API gateway after authenticating the caller
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserRoles = "X-User-Roles"
)

const (
	localUserID = "user_id"
	localRole   = "user_role"
)

// RequireIdentity reads the caller identity forwarded by the gateway.
// A missing user id is 401; a missing or unknown role is 400. When only the
// plural roles header is present its first entry is used.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(HeaderUserID))
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error:   "Unauthorized",
				Message: "missing " + HeaderUserID + ", request must come through the gateway",
			})
		}

		raw := c.Get(HeaderUserRole)
		if raw == "" {
			raw, _, _ = strings.Cut(c.Get(HeaderUserRoles), ",")
		}
		role, err := models.ParseRole(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
				Error:   "Invalid role",
				Message: err.Error(),
			})
		}

		c.Locals(localUserID, userID)
		c.Locals(localRole, role)
		return c.Next()
	}
}

// Identity returns what RequireIdentity stored for this request
func Identity(c *fiber.Ctx) (string, models.Role, bool) {
	userID, ok := c.Locals(localUserID).(string)
	if !ok || userID == "" {
		return "", "", false
	}
	role, ok := c.Locals(localRole).(models.Role)
	if !ok {
		return "", "", false
	}
	return userID, role, true
}
