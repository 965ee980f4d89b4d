package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"leaderboard/internal/models"
	"leaderboard/internal/profile"
	"leaderboard/internal/repository"
	"leaderboard/internal/worker"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned when the ranking store cannot serve a read
	ErrUnavailable = errors.New("leaderboard unavailable")

	// ErrNotFound is returned when a user has neither an entry nor a profile
	ErrNotFound = errors.New("user not found")
)

const notOnBoardMessage = "You need to gain more points to appear on the leaderboard"

// RankingStore is the persistence the engine needs from the ranking table
type RankingStore interface {
	Upsert(ctx context.Context, userID string, role models.Role, points int, userName string, now time.Time) (bool, error)
	GetEntry(ctx context.Context, userID string, role models.Role) (*models.LeaderboardEntry, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.LeaderboardEntry, error)
	TopByRole(ctx context.Context, role models.Role, limit int) ([]models.LeaderboardEntry, error)
	UpdateRanks(ctx context.Context, ranks map[string]int) error
	ListUnverified(ctx context.Context, cutoff time.Time) ([]models.LeaderboardEntry, error)
	ApplyVerifications(ctx context.Context, results []repository.Verification, now time.Time) error
	SetBadges(ctx context.Context, userID string, role models.Role, badges []models.EarnedBadge) error
	Ping(ctx context.Context) error
}

// BadgeCatalog lists the badges that can currently be earned
type BadgeCatalog interface {
	ListActive(ctx context.Context) ([]models.BadgeDefinition, error)
}

// Cache stores opaque payloads with a TTL
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// VersionCounter is bumped whenever the visible board changes
type VersionCounter interface {
	BumpVersion(ctx context.Context) (int64, error)
}

// Dispatcher accepts fire-and-forget background work
type Dispatcher interface {
	Submit(task worker.Task) error
}

// Dependencies groups the collaborators of the service
type Dependencies struct {
	Store      RankingStore
	Badges     BadgeCatalog
	Profiles   profile.Source
	Cache      Cache
	Versions   VersionCounter
	Dispatcher Dispatcher
}

// Options tunes the read path and the sweeper
type Options struct {
	TopN           int
	CacheTTL       time.Duration
	StaleAfter     time.Duration
	ProfileTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = 100
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 60 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 5 * time.Minute
	}
	if o.ProfileTimeout <= 0 {
		o.ProfileTimeout = 3 * time.Second
	}
	return o
}

// LeaderboardService ties the ranking store, the profile source and the
// snapshot cache together.
type LeaderboardService struct {
	store      RankingStore
	badges     BadgeCatalog
	profiles   profile.Source
	cache      Cache
	versions   VersionCounter
	dispatcher Dispatcher

	opts   Options
	logger *zap.Logger
	now    func() time.Time

	sweeping atomic.Bool
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(deps Dependencies, opts Options, logger *zap.Logger) *LeaderboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardService{
		store:      deps.Store,
		badges:     deps.Badges,
		profiles:   deps.Profiles,
		cache:      deps.Cache,
		versions:   deps.Versions,
		dispatcher: deps.Dispatcher,
		opts:       opts.withDefaults(),
		logger:     logger.Named("leaderboard"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetLeaderboard returns the JSON snapshot of the top entries per role.
// A cache hit is returned as stored. A miss is rebuilt from the ranking store,
// cached for the TTL, and schedules a background sweep.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context) ([]byte, error) {
	data, ok, err := s.cache.Get(ctx, repository.SnapshotKey)
	switch {
	case err != nil:
		s.logger.Warn("snapshot cache read failed, rebuilding", zap.Error(err))
	case ok:
		return data, nil
	}

	resp, err := s.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode leaderboard: %w", err)
	}

	if err := s.cache.Set(ctx, repository.SnapshotKey, data, s.opts.CacheTTL); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.Error(err))
	}

	s.scheduleSweep()
	return data, nil
}

func (s *LeaderboardService) buildSnapshot(ctx context.Context) (*models.LeaderboardResponse, error) {
	views := make(map[models.Role][]models.EntryView, len(models.Roles()))
	for _, role := range models.Roles() {
		entries, err := s.store.TopByRole(ctx, role, s.opts.TopN)
		if err != nil {
			s.logger.Error("failed to read top entries", zap.String("role", role.String()), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		views[role] = toViews(entries)
	}

	return &models.LeaderboardResponse{
		Students: views[models.RoleStudent],
		Teachers: views[models.RoleTeacher],
		Schools:  views[models.RoleSchool],
	}, nil
}

// toViews annotates entries already in ranking order with their position and medal
func toViews(entries []models.LeaderboardEntry) []models.EntryView {
	views := make([]models.EntryView, 0, len(entries))
	for i, e := range entries {
		rank := i + 1
		views = append(views, models.EntryView{
			ID:          e.ID,
			UserID:      e.UserID,
			UserName:    e.UserName,
			Points:      e.Points,
			Rank:        rank,
			LastUpdated: e.LastUpdated,
			Medal:       models.MedalForRank(rank),
		})
	}
	return views
}

// InvalidateSnapshot drops the cached snapshot so the next read rebuilds it
func (s *LeaderboardService) InvalidateSnapshot(ctx context.Context) error {
	return s.cache.Delete(ctx, repository.SnapshotKey)
}

// GetUserStatus reports the caller's standing. The role is recalculated first
// so the rank reflects the latest points.
func (s *LeaderboardService) GetUserStatus(ctx context.Context, userID string, role models.Role) (*models.UserStatus, error) {
	if err := s.Recalculate(ctx, role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	entry, err := s.store.GetEntry(ctx, userID, role)
	if err == nil {
		rank := entry.Rank
		return &models.UserStatus{
			UserID:          entry.UserID,
			UserName:        entry.UserName,
			Points:          entry.Points,
			Rank:            &rank,
			Role:            role,
			IsOnLeaderboard: true,
		}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.ProfileTimeout)
	defer cancel()

	points, err := s.profiles.GetPoints(lookupCtx, userID, role)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: profile lookup: %v", ErrUnavailable, err)
	}

	return &models.UserStatus{
		UserID:          userID,
		UserName:        s.displayName(lookupCtx, userID, role, ""),
		Points:          points,
		Role:            role,
		IsOnLeaderboard: false,
		Message:         notOnBoardMessage,
	}, nil
}

// displayName prefers the given name, then the profile's, then the user id
func (s *LeaderboardService) displayName(ctx context.Context, userID string, role models.Role, given string) string {
	if given != "" {
		return given
	}
	name, err := s.profiles.GetDisplayName(ctx, userID, role)
	if err != nil {
		s.logger.Debug("display name lookup failed",
			zap.String("user_id", userID),
			zap.String("role", role.String()),
			zap.Error(err))
		return userID
	}
	if name == "" {
		return userID
	}
	return name
}

// bumpVersion notifies websocket clients that the board changed
func (s *LeaderboardService) bumpVersion(ctx context.Context) {
	if s.versions == nil {
		return
	}
	if _, err := s.versions.BumpVersion(ctx); err != nil {
		s.logger.Warn("failed to bump leaderboard version", zap.Error(err))
	}
}

// HealthCheck checks the ranking store and, when it supports it, the cache
func (s *LeaderboardService) HealthCheck(ctx context.Context) error {
	if p, ok := s.cache.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache health check failed: %w", err)
		}
	}
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ranking store health check failed: %w", err)
	}
	return nil
}
