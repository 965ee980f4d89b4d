package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leaderboard/internal/models"
	"leaderboard/internal/repository"

	"go.uber.org/zap"
)

// AssignBadges appends every newly earned catalog badge to the user's profile
// and mirrors the result on the leaderboard entry. Badges are never revoked.
// Malformed catalog rows are skipped; any other failure aborts this user's
// evaluation and is returned after being logged.
func (s *LeaderboardService) AssignBadges(ctx context.Context, userID string, role models.Role, points int) error {
	log := s.logger.With(zap.String("user_id", userID), zap.String("role", role.String()))

	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.ProfileTimeout)
	current, err := s.profiles.GetBadges(lookupCtx, userID, role)
	cancel()
	if err != nil {
		log.Warn("badge evaluation aborted: profile unavailable", zap.Error(err))
		return fmt.Errorf("load badges: %w", err)
	}

	catalog, err := s.badges.ListActive(ctx)
	if err != nil {
		log.Warn("badge evaluation aborted: catalog unavailable", zap.Error(err))
		return fmt.Errorf("load badge catalog: %w", err)
	}

	owned := make(map[string]bool, len(current))
	for _, b := range current {
		owned[b.Name] = true
	}

	rank, rankKnown := 0, false
	rankLoaded := false
	now := s.now()
	var earned []models.EarnedBadge

	for i := range catalog {
		def := &catalog[i]
		if !def.AppliesTo(role) || owned[def.Name] {
			continue
		}

		if strings.Contains(def.Name, models.RegistrationBadgeMarker) {
			if len(current) == 0 {
				earned = append(earned, def.Earned(now))
				owned[def.Name] = true
			}
			continue
		}

		if err := def.Validate(); err != nil {
			log.Warn("skipping malformed badge", zap.Error(err))
			continue
		}

		if def.PointsRequired != nil && points < *def.PointsRequired {
			continue
		}
		if def.RankRequired != nil {
			if !rankLoaded {
				rank, rankKnown = s.currentRank(ctx, userID, role)
				rankLoaded = true
			}
			if !rankKnown || rank > *def.RankRequired {
				continue
			}
		}

		earned = append(earned, def.Earned(now))
		owned[def.Name] = true
	}

	if len(earned) == 0 {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.opts.ProfileTimeout)
	err = s.profiles.AppendBadges(writeCtx, userID, role, earned...)
	cancel()
	if err != nil {
		log.Warn("failed to append badges", zap.Error(err))
		return fmt.Errorf("append badges: %w", err)
	}

	all := append(append([]models.EarnedBadge{}, current...), earned...)
	if err := s.store.SetBadges(ctx, userID, role, all); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warn("failed to mirror badges on leaderboard entry", zap.Error(err))
	}

	names := make([]string, len(earned))
	for i, b := range earned {
		names[i] = b.Name
	}
	log.Info("badges earned", zap.Strings("badges", names))
	return nil
}

func (s *LeaderboardService) currentRank(ctx context.Context, userID string, role models.Role) (int, bool) {
	entry, err := s.store.GetEntry(ctx, userID, role)
	if err != nil {
		return 0, false
	}
	return entry.Rank, true
}
