package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"leaderboard/internal/models"
	"leaderboard/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBoard(t *testing.T, data []byte) models.LeaderboardResponse {
	t.Helper()
	var resp models.LeaderboardResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestGetLeaderboardAnnotatesMedals(t *testing.T) {
	f := newFixture(t)
	for i, id := range []string{"a", "b", "c", "d"} {
		f.points(t, id, models.RoleStudent, 100-i*10)
	}

	data, err := f.svc.GetLeaderboard(context.Background())
	require.NoError(t, err)
	board := decodeBoard(t, data)

	require.Len(t, board.Students, 4)
	assert.Equal(t, models.MedalGold, board.Students[0].Medal)
	assert.Equal(t, models.MedalSilver, board.Students[1].Medal)
	assert.Equal(t, models.MedalBronze, board.Students[2].Medal)
	assert.Empty(t, board.Students[3].Medal)
	assert.Equal(t, 4, board.Students[3].Rank)
	assert.Equal(t, "d", board.Students[3].UserID)

	assert.NotContains(t, string(data), `"medal":""`)
	assert.Contains(t, string(data), `"teachers":[]`)
	assert.Contains(t, string(data), `"schools":[]`)
}

func TestGetLeaderboardCapsTopN(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.TopN = 2
	f.points(t, "a", models.RoleSchool, 1)
	f.points(t, "b", models.RoleSchool, 2)
	f.points(t, "c", models.RoleSchool, 3)

	data, err := f.svc.GetLeaderboard(context.Background())
	require.NoError(t, err)
	board := decodeBoard(t, data)

	require.Len(t, board.Schools, 2)
	assert.Equal(t, "c", board.Schools[0].UserID)
	assert.Equal(t, "b", board.Schools[1].UserID)
}

func TestGetLeaderboardCacheHitIsByteIdentical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.points(t, "a", models.RoleStudent, 10)

	first, err := f.svc.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.dispatcher.count(SweepTaskName), "a miss schedules a sweep")

	f.points(t, "a", models.RoleStudent, 99)

	second, err := f.svc.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.dispatcher.count(SweepTaskName), "a hit does not schedule a sweep")

	f.mr.FastForward(61 * time.Second)

	third, err := f.svc.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 99, decodeBoard(t, third).Students[0].Points)
	assert.Equal(t, 2, f.dispatcher.count(SweepTaskName))
}

func TestGetLeaderboardScheduledSweepRuns(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "a", models.RoleStudent, 40, "A")
	f.points(t, "a", models.RoleStudent, 10)

	_, err := f.svc.GetLeaderboard(context.Background())
	require.NoError(t, err)

	f.dispatcher.drain(t)
	assert.Equal(t, 40, f.entry(t, "a", models.RoleStudent).Points)
}

func TestGetLeaderboardSurvivesDroppedSweep(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = worker.ErrQueueFull

	_, err := f.svc.GetLeaderboard(context.Background())
	require.NoError(t, err)
}

func TestGetLeaderboardStoreDown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sqlDB.Close())

	data, err := f.svc.GetLeaderboard(context.Background())
	assert.Nil(t, data)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGetLeaderboardCacheDownStillServes(t *testing.T) {
	f := newFixture(t)
	f.points(t, "a", models.RoleTeacher, 10)
	f.mr.Close()

	data, err := f.svc.GetLeaderboard(context.Background())
	require.NoError(t, err)
	assert.Len(t, decodeBoard(t, data).Teachers, 1)
}

func TestGetUserStatusOnBoard(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "a", models.RoleStudent, 50, "Ada")
	f.points(t, "a", models.RoleStudent, 50)
	f.points(t, "b", models.RoleStudent, 80)

	status, err := f.svc.GetUserStatus(context.Background(), "a", models.RoleStudent)
	require.NoError(t, err)

	assert.True(t, status.IsOnLeaderboard)
	assert.Equal(t, "Ada", status.UserName)
	assert.Equal(t, 50, status.Points)
	require.NotNil(t, status.Rank)
	assert.Equal(t, 2, *status.Rank)
	assert.Empty(t, status.Message)
}

func TestGetUserStatusReflectsLatestOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.points(t, "a", models.RoleStudent, 50)
	f.points(t, "b", models.RoleStudent, 80)

	// write behind the engine's back, no recalculation
	_, err := f.store.Upsert(ctx, "a", models.RoleStudent, 90, "a", f.now)
	require.NoError(t, err)

	status, err := f.svc.GetUserStatus(ctx, "a", models.RoleStudent)
	require.NoError(t, err)
	require.NotNil(t, status.Rank)
	assert.Equal(t, 1, *status.Rank)
}

func TestGetUserStatusNotOnBoard(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "new", models.RoleStudent, 12, "Newbie")

	status, err := f.svc.GetUserStatus(context.Background(), "new", models.RoleStudent)
	require.NoError(t, err)

	assert.False(t, status.IsOnLeaderboard)
	assert.Equal(t, 12, status.Points)
	assert.Nil(t, status.Rank)
	assert.Equal(t, "Newbie", status.UserName)
	assert.Equal(t, notOnBoardMessage, status.Message)
}

func TestGetUserStatusUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetUserStatus(context.Background(), "nobody", models.RoleTeacher)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserStatusStoreDown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sqlDB.Close())

	_, err := f.svc.GetUserStatus(context.Background(), "a", models.RoleTeacher)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestInvalidateSnapshotForcesRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.points(t, "a", models.RoleStudent, 10)

	first, err := f.svc.GetLeaderboard(ctx)
	require.NoError(t, err)
	f.points(t, "a", models.RoleStudent, 20)
	require.NoError(t, f.svc.InvalidateSnapshot(ctx))

	second, err := f.svc.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.HealthCheck(context.Background()))

	f.mr.Close()
	assert.Error(t, f.svc.HealthCheck(context.Background()))
}
