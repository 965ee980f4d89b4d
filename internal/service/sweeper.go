package service

import (
	"context"
	"fmt"
	"time"

	"leaderboard/internal/models"
	"leaderboard/internal/repository"
	"leaderboard/internal/worker"

	"go.uber.org/zap"
)

// SweepTaskName identifies reconciliation runs in the worker pool
const SweepTaskName = "leaderboard-sweep"

// sweepWriteTimeout bounds the batch write that closes a sweep, which runs
// even after the sweep's own context is done
const sweepWriteTimeout = 30 * time.Second

type profileKey struct {
	userID string
	role   models.Role
}

// Sweep compares every stale entry with the profile source and heals drift.
// It returns how many entries had their points corrected; entries that only
// got re-verified are not counted. A sweep that starts while another one is
// running in this process returns immediately with zero corrections.
// When ctx ends mid-sweep the entries checked so far are still written and
// the rest wait for the next run.
func (s *LeaderboardService) Sweep(ctx context.Context) (int, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Debug("sweep already in flight, skipping")
		return 0, nil
	}
	defer s.sweeping.Store(false)

	start := time.Now()
	now := s.now()

	pending, err := s.store.ListUnverified(ctx, now.Add(-s.opts.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	authoritative := make(map[profileKey]int)
	failed := make(map[profileKey]bool)
	results := make([]repository.Verification, 0, len(pending))
	correctedRoles := make(map[models.Role]bool)
	corrections := 0
	interrupted := false

	for _, e := range pending {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		k := profileKey{userID: e.UserID, role: e.Role}
		if failed[k] {
			continue
		}
		points, ok := authoritative[k]
		if !ok {
			p, err := s.lookupPoints(ctx, k)
			if err != nil {
				s.logger.Warn("sweep lookup failed, entry left unverified",
					zap.String("user_id", e.UserID),
					zap.String("role", e.Role.String()),
					zap.Error(err))
				failed[k] = true
				continue
			}
			authoritative[k] = p
			points = p
		}

		if points == e.Points {
			results = append(results, repository.Verification{EntryID: e.ID})
			continue
		}
		corrected := points
		results = append(results, repository.Verification{EntryID: e.ID, Points: &corrected})
		correctedRoles[e.Role] = true
		corrections++
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepWriteTimeout)
	defer cancel()

	if err := s.store.ApplyVerifications(writeCtx, results, now); err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	for _, role := range models.Roles() {
		if !correctedRoles[role] {
			continue
		}
		if err := s.Recalculate(writeCtx, role); err != nil {
			s.logger.Error("post-sweep recalculation failed", zap.String("role", role.String()), zap.Error(err))
		}
	}
	if corrections > 0 {
		s.bumpVersion(writeCtx)
	}

	s.logger.Info("sweep finished",
		zap.Bool("interrupted", interrupted),
		zap.Int("checked", len(pending)),
		zap.Int("verified", len(results)),
		zap.Int("corrections", corrections),
		zap.Int("skipped", len(pending)-len(results)),
		zap.Duration("took", time.Since(start)))
	return corrections, nil
}

func (s *LeaderboardService) lookupPoints(ctx context.Context, k profileKey) (int, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.ProfileTimeout)
	defer cancel()
	return s.profiles.GetPoints(lookupCtx, k.userID, k.role)
}

// scheduleSweep hands a sweep to the dispatcher without waiting for it.
// A full queue drops the run; the next miss or scheduled tick retries.
func (s *LeaderboardService) scheduleSweep() {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Submit(worker.Task{
		Name: SweepTaskName,
		Run: func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		},
	})
	if err != nil {
		s.logger.Debug("sweep not scheduled", zap.Error(err))
	}
}
