package profile

import (
	"context"
	"testing"
	"time"

	"leaderboard/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestSource(t *testing.T) (*GormSource, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	src := NewGormSource(db)
	require.NoError(t, src.AutoMigrate())
	return src, db
}

func TestGormSourceReadsProfile(t *testing.T) {
	src, db := newTestSource(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Profile{
		UserID: "u1", Role: models.RoleTeacher, DisplayName: "Grace", Points: 42,
	}).Error)

	points, err := src.GetPoints(ctx, "u1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, 42, points)

	name, err := src.GetDisplayName(ctx, "u1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, "Grace", name)

	badges, err := src.GetBadges(ctx, "u1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Empty(t, badges)
}

func TestGormSourceNotFound(t *testing.T) {
	src, db := newTestSource(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Profile{UserID: "u1", Role: models.RoleStudent, Points: 1}).Error)

	_, err := src.GetPoints(ctx, "u1", models.RoleSchool)
	assert.ErrorIs(t, err, ErrNotFound)

	err = src.AppendBadges(ctx, "nobody", models.RoleStudent, models.EarnedBadge{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormSourceClampsNegativePoints(t *testing.T) {
	src, db := newTestSource(t)

	require.NoError(t, db.Create(&models.Profile{UserID: "u1", Role: models.RoleStudent, Points: -7}).Error)

	points, err := src.GetPoints(context.Background(), "u1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, 0, points)
}

func TestGormSourceAppendBadgesKeepsOrder(t *testing.T) {
	src, db := newTestSource(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, db.Create(&models.Profile{UserID: "u1", Role: models.RoleStudent, Points: 5}).Error)

	require.NoError(t, src.AppendBadges(ctx, "u1", models.RoleStudent, models.EarnedBadge{Name: "First", EarnedAt: at}))
	require.NoError(t, src.AppendBadges(ctx, "u1", models.RoleStudent,
		models.EarnedBadge{Name: "Second", EarnedAt: at},
		models.EarnedBadge{Name: "Third", EarnedAt: at},
	))
	require.NoError(t, src.AppendBadges(ctx, "u1", models.RoleStudent))

	badges, err := src.GetBadges(ctx, "u1", models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, badges, 3)
	assert.Equal(t, "First", badges[0].Name)
	assert.Equal(t, "Third", badges[2].Name)
	assert.True(t, badges[0].EarnedAt.Equal(at))
}

func TestGormSourceListAll(t *testing.T) {
	src, db := newTestSource(t)

	require.NoError(t, db.Create(&models.Profile{UserID: "b", Role: models.RoleStudent}).Error)
	require.NoError(t, db.Create(&models.Profile{UserID: "a", Role: models.RoleSchool}).Error)

	all, err := src.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.RoleSchool, all[0].Role)
}
