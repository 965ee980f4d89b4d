package service

import (
	"context"
	"fmt"

	"leaderboard/internal/models"

	"go.uber.org/zap"
)

// Backfill mirrors existing profiles into the ranking store, then ranks every
// role and drops the cached snapshot. Rows that fail to write are logged and
// skipped. It returns how many entries were created or changed.
func (s *LeaderboardService) Backfill(ctx context.Context, profiles []models.Profile) (int, error) {
	written, failed := 0, 0
	now := s.now()

	for _, p := range profiles {
		if !p.Role.Valid() {
			s.logger.Warn("skipping profile with unknown role", zap.String("user_id", p.UserID), zap.String("role", p.Role.String()))
			failed++
			continue
		}
		name := p.DisplayName
		if name == "" {
			name = p.UserID
		}
		changed, err := s.store.Upsert(ctx, p.UserID, p.Role, p.Points, name, now)
		if err != nil {
			s.logger.Warn("backfill upsert failed", zap.String("user_id", p.UserID), zap.Error(err))
			failed++
			continue
		}
		if changed {
			written++
		}
	}

	for _, role := range models.Roles() {
		if err := s.Recalculate(ctx, role); err != nil {
			return written, fmt.Errorf("backfill: %w", err)
		}
	}

	if err := s.InvalidateSnapshot(ctx); err != nil {
		s.logger.Warn("failed to drop cached snapshot", zap.Error(err))
	}
	if written > 0 {
		s.bumpVersion(ctx)
	}

	s.logger.Info("backfill finished",
		zap.Int("profiles", len(profiles)),
		zap.Int("written", written),
		zap.Int("failed", failed))
	return written, nil
}
