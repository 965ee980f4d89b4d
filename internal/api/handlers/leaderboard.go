package handlers

import (
	"context"
	"errors"

	"leaderboard/internal/jobs"
	"leaderboard/internal/middleware"
	"leaderboard/internal/models"
	"leaderboard/internal/service"
	"leaderboard/internal/websocket"
	"leaderboard/internal/worker"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// LeaderboardService is what the HTTP layer needs from the engine
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context) ([]byte, error)
	GetUserStatus(ctx context.Context, userID string, role models.Role) (*models.UserStatus, error)
	OnPointsChanged(ctx context.Context, ev service.PointsChanged) error
	Sweep(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}

// PoolMetricsSource exposes background worker counters
type PoolMetricsSource interface {
	GetMetrics() worker.Metrics
}

// SweepStatsSource exposes scheduled sweep counters
type SweepStatsSource interface {
	GetStats() jobs.Stats
}

// LeaderboardHandler handles HTTP requests for the leaderboard
type LeaderboardHandler struct {
	service   LeaderboardService
	hub       *websocket.Hub
	validator *validator.Validate
	logger    *zap.Logger

	pool   PoolMetricsSource
	sweeps SweepStatsSource
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(svc LeaderboardService, hub *websocket.Hub, logger *zap.Logger) *LeaderboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardHandler{
		service:   svc,
		hub:       hub,
		validator: validator.New(),
		logger:    logger.Named("http"),
	}
}

// WithRuntimeStats adds worker pool and sweep scheduler counters to the
// health payload. Either source may be nil.
func (h *LeaderboardHandler) WithRuntimeStats(pool PoolMetricsSource, sweeps SweepStatsSource) *LeaderboardHandler {
	h.pool = pool
	h.sweeps = sweeps
	return h
}

// GetLeaderboard handles GET /api/v1/leaderboard
// @Summary Get leaderboard
// @Description Top entries per role with medals for the first three places
// @Produce json
// @Success 200 {object} models.LeaderboardResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/leaderboard [get]
func (h *LeaderboardHandler) GetLeaderboard(c *fiber.Ctx) error {
	data, err := h.service.GetLeaderboard(c.UserContext())
	if err != nil {
		h.logger.Error("leaderboard read failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Could not retrieve leaderboard",
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(data)
}

// MyStatus handles GET /api/v1/leaderboard/my-status
// @Summary Caller's leaderboard standing
// @Produce json
// @Param X-User-ID header string true "Caller id set by the gateway"
// @Param X-User-Role header string true "student, teacher or school"
// @Success 200 {object} models.UserStatus
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/leaderboard/my-status [get]
func (h *LeaderboardHandler) MyStatus(c *fiber.Ctx) error {
	userID, role, ok := middleware.Identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error: "Unauthorized",
		})
	}

	status, err := h.service.GetUserStatus(c.UserContext(), userID, role)
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(status)
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error:   "User not found",
			Message: "no profile exists for this role",
		})
	default:
		h.logger.Error("status lookup failed",
			zap.String("user_id", userID),
			zap.String("role", role.String()),
			zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Could not retrieve leaderboard status",
		})
	}
}

// PointsChanged handles POST /api/v1/points
// @Summary Report a new points total
// @Description Called by the subsystem that owns a user's points
// @Accept json
// @Produce json
// @Param X-Service-Token header string false "Shared token of internal callers"
// @Param request body models.PointsChangedRequest true "New points total"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/points [post]
func (h *LeaderboardHandler) PointsChanged(c *fiber.Ctx) error {
	var req models.PointsChangedRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}

	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	}

	err = h.service.OnPointsChanged(c.UserContext(), service.PointsChanged{
		UserID:   req.UserID,
		Role:     role,
		Points:   *req.Points,
		UserName: req.UserName,
	})
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "Leaderboard update failed",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "accepted",
		"user_id": req.UserID,
		"role":    role,
	})
}

// Sweep handles POST /api/v1/leaderboard/sweep
// @Summary Run a reconciliation sweep now
// @Produce json
// @Success 200 {object} models.SweepResponse
// @Failure 503 {object} models.ErrorResponse
// @Param X-Service-Token header string false "Shared token of internal callers"
// @Failure 401 {object} models.ErrorResponse
// @Router /api/v1/leaderboard/sweep [post]
func (h *LeaderboardHandler) Sweep(c *fiber.Ctx) error {
	corrections, err := h.service.Sweep(c.UserContext())
	if err != nil {
		h.logger.Error("manual sweep failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "Sweep failed",
			Message: err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(models.SweepResponse{Corrections: corrections})
}

// HealthCheck handles GET /api/v1/health
// @Summary Health check
// @Description Checks the health of the service and its dependencies
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/health [get]
func (h *LeaderboardHandler) HealthCheck(c *fiber.Ctx) error {
	if err := h.service.HealthCheck(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "Health check failed",
			Message: err.Error(),
		})
	}

	payload := fiber.Map{
		"status":            "healthy",
		"message":           "All systems operational",
		"websocket_clients": h.ClientCount(),
	}
	if h.pool != nil {
		payload["workers"] = h.pool.GetMetrics()
	}
	if h.sweeps != nil {
		payload["sweep_scheduler"] = h.sweeps.GetStats()
	}
	return c.Status(fiber.StatusOK).JSON(payload)
}

// HandleWebSocket serves the board version feed on /ws
func (h *LeaderboardHandler) HandleWebSocket(c *fiberws.Conn) {
	websocket.ServeWS(h.hub, c)
}

// ClientCount reports connected websocket clients; zero without a hub
func (h *LeaderboardHandler) ClientCount() int {
	if h.hub == nil {
		return 0
	}
	return h.hub.GetClientCount()
}
