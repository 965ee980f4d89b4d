package service

import (
	"context"
	"fmt"

	"leaderboard/internal/models"
	"leaderboard/internal/worker"

	"go.uber.org/zap"
)

// BadgeTaskName identifies badge evaluations in the worker pool
const BadgeTaskName = "badge-evaluation"

// PointsChanged is emitted by the subsystem that owns a user's points
type PointsChanged struct {
	UserID   string
	Role     models.Role
	Points   int
	UserName string
}

// OnPointsChanged mirrors a new points total into the ranking store. When the
// board actually changed the role is recalculated before returning, and badge
// evaluation is queued in the background. The caller should log a returned
// error and carry on; its own points write stands either way.
func (s *LeaderboardService) OnPointsChanged(ctx context.Context, ev PointsChanged) error {
	if !ev.Role.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidRole, ev.Role)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.ProfileTimeout)
	name := s.displayName(lookupCtx, ev.UserID, ev.Role, ev.UserName)
	cancel()

	changed, err := s.store.Upsert(ctx, ev.UserID, ev.Role, ev.Points, name, s.now())
	if err != nil {
		s.logger.Error("leaderboard upsert failed",
			zap.String("user_id", ev.UserID),
			zap.String("role", ev.Role.String()),
			zap.Error(err))
		return err
	}
	if !changed {
		return nil
	}

	if err := s.Recalculate(ctx, ev.Role); err != nil {
		s.logger.Error("recalculation after upsert failed", zap.String("role", ev.Role.String()), zap.Error(err))
		return err
	}
	s.bumpVersion(ctx)
	s.scheduleBadges(ev.UserID, ev.Role, models.ClampPoints(ev.Points))
	return nil
}

func (s *LeaderboardService) scheduleBadges(userID string, role models.Role, points int) {
	if s.dispatcher == nil || s.badges == nil {
		return
	}
	err := s.dispatcher.Submit(worker.Task{
		Name: BadgeTaskName,
		Run: func(ctx context.Context) error {
			// failures are logged inside and never reach the points writer
			_ = s.AssignBadges(ctx, userID, role, points)
			return nil
		},
	})
	if err != nil {
		s.logger.Warn("badge evaluation not scheduled", zap.String("user_id", userID), zap.Error(err))
	}
}
