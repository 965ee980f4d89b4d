package handlers

import (
	"leaderboard/internal/middleware"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// RegisterRoutes mounts the leaderboard API and the websocket feed on app.
// The write endpoints are for internal services and require serviceToken.
func RegisterRoutes(app *fiber.App, h *LeaderboardHandler, serviceToken string) {
	api := app.Group("/api/v1")
	internal := middleware.RequireServiceToken(serviceToken)

	api.Get("/leaderboard", h.GetLeaderboard)
	api.Get("/leaderboard/my-status", middleware.RequireIdentity(), h.MyStatus)
	api.Post("/leaderboard/sweep", internal, h.Sweep)
	api.Post("/points", internal, h.PointsChanged)
	api.Get("/health", h.HealthCheck)

	// WebSocket route with upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(h.HandleWebSocket))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Leaderboard API",
			"version": "1.0.0",
			"endpoints": []string{
				"GET /api/v1/leaderboard",
				"GET /api/v1/leaderboard/my-status",
				"POST /api/v1/leaderboard/sweep",
				"POST /api/v1/points",
				"GET /api/v1/health",
				"WS /ws (WebSocket)",
			},
			"websocket_clients": h.ClientCount(),
		})
	})
}
