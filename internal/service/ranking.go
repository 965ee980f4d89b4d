package service

import (
	"context"
	"fmt"
	"sort"

	"leaderboard/internal/models"

	"go.uber.org/zap"
)

// AssignRanks orders entries by points desc, then last_updated asc, then
// user_id asc and returns entry id -> dense 1-based rank. The input slice is
// not modified.
func AssignRanks(entries []models.LeaderboardEntry) map[string]int {
	ordered := make([]*models.LeaderboardEntry, len(entries))
	for i := range entries {
		ordered[i] = &entries[i]
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.Before(b.LastUpdated)
		}
		return a.UserID < b.UserID
	})

	ranks := make(map[string]int, len(ordered))
	for i, e := range ordered {
		ranks[e.ID] = i + 1
	}
	return ranks
}

// Recalculate reorders one role partition and persists the ranks that moved.
// Runs without a lock: a concurrent upsert may be missed here and is picked
// up by the next recalculation.
func (s *LeaderboardService) Recalculate(ctx context.Context, role models.Role) error {
	entries, err := s.store.ListByRole(ctx, role)
	if err != nil {
		return fmt.Errorf("recalculate %s: %w", role, err)
	}

	ranks := AssignRanks(entries)

	changed := make(map[string]int)
	for _, e := range entries {
		if r := ranks[e.ID]; r != e.Rank {
			changed[e.ID] = r
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := s.store.UpdateRanks(ctx, changed); err != nil {
		return fmt.Errorf("recalculate %s: %w", role, err)
	}

	s.logger.Debug("ranks recalculated",
		zap.String("role", role.String()),
		zap.Int("entries", len(entries)),
		zap.Int("moved", len(changed)))
	return nil
}
