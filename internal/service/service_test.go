package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"leaderboard/internal/models"
	"leaderboard/internal/profile"
	"leaderboard/internal/repository"
	"leaderboard/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// recordingDispatcher keeps submitted tasks so tests can inspect or run them
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []worker.Task
	err   error
}

func (d *recordingDispatcher) Submit(task worker.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *recordingDispatcher) count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tasks {
		if t.Name == name {
			n++
		}
	}
	return n
}

// drain runs and forgets every queued task
func (d *recordingDispatcher) drain(t *testing.T) {
	t.Helper()
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, task := range tasks {
		require.NoError(t, task.Run(context.Background()), task.Name)
	}
}

type fixture struct {
	svc        *LeaderboardService
	db         *gorm.DB
	sqlDB      *sql.DB
	store      *repository.PostgresRepository
	badges     *repository.BadgeRepository
	profiles   *profile.GormSource
	cache      *repository.RedisRepository
	mr         *miniredis.Miniredis
	dispatcher *recordingDispatcher
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repository.NewPostgresRepository(db)
	require.NoError(t, store.AutoMigrate())
	profiles := profile.NewGormSource(db)
	require.NoError(t, profiles.AutoMigrate())

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := repository.NewRedisRepository(client)

	f := &fixture{
		db:         db,
		sqlDB:      sqlDB,
		store:      store,
		badges:     repository.NewBadgeRepository(db),
		profiles:   profiles,
		cache:      cache,
		mr:         mr,
		dispatcher: &recordingDispatcher{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewLeaderboardService(Dependencies{
		Store:      store,
		Badges:     f.badges,
		Profiles:   profiles,
		Cache:      cache,
		Versions:   cache,
		Dispatcher: f.dispatcher,
	}, Options{}, zap.NewNop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) addProfile(t *testing.T, userID string, role models.Role, points int, name string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Profile{
		UserID: userID, Role: role, Points: points, DisplayName: name,
	}).Error)
}

func (f *fixture) setProfilePoints(t *testing.T, userID string, role models.Role, points int) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Profile{}).
		Where("user_id = ? AND role = ?", userID, role).
		Update("points", points).Error)
}

func (f *fixture) entry(t *testing.T, userID string, role models.Role) *models.LeaderboardEntry {
	t.Helper()
	e, err := f.store.GetEntry(context.Background(), userID, role)
	require.NoError(t, err)
	return e
}

// points records a change at the current clock and then moves it forward
func (f *fixture) points(t *testing.T, userID string, role models.Role, points int) {
	t.Helper()
	require.NoError(t, f.svc.OnPointsChanged(context.Background(), PointsChanged{
		UserID: userID, Role: role, Points: points,
	}))
	f.advance(time.Second)
}
