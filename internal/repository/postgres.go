package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leaderboard/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no entry exists for a (user, role)
var ErrNotFound = errors.New("leaderboard entry not found")

// rankChunkSize bounds the number of rows touched by a single bulk statement
const rankChunkSize = 500

// rankingOrder is the total order of a role partition
var rankingOrder = []clause.OrderByColumn{
	{Column: clause.Column{Name: "points"}, Desc: true},
	{Column: clause.Column{Name: "last_updated"}},
	{Column: clause.Column{Name: "user_id"}},
}

// Verification is the outcome of checking one entry against the profile store
type Verification struct {
	EntryID string
	// Points is the authoritative value; nil means the cached value matched
	Points *int
}

// PostgresRepository is the ranking store. It relies only on single-row
// upserts and per-table bulk statements; no multi-row transactions are assumed.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// Upsert writes the cached points for (userID, role). When the stored points
// already equal the new value nothing is written and changed is false.
// Uses ON CONFLICT so first writes and updates share one path.
func (r *PostgresRepository) Upsert(ctx context.Context, userID string, role models.Role, points int, userName string, now time.Time) (bool, error) {
	points = models.ClampPoints(points)

	existing, err := r.GetEntry(ctx, userID, role)
	switch {
	case err == nil:
		if existing.Points == points {
			return false, nil
		}
	case !errors.Is(err, ErrNotFound):
		return false, err
	}

	entry := models.LeaderboardEntry{
		UserID:      userID,
		UserName:    userName,
		Role:        role,
		Points:      points,
		Rank:        1,
		Badges:      []models.EarnedBadge{},
		LastUpdated: now,
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{"points", "user_name", "last_updated"}),
	}).Create(&entry).Error
	if err != nil {
		return false, fmt.Errorf("upsert entry %s/%s: %w", role, userID, err)
	}
	return true, nil
}

// GetEntry retrieves the entry for a (user, role)
func (r *PostgresRepository) GetEntry(ctx context.Context, userID string, role models.Role) (*models.LeaderboardEntry, error) {
	var entry models.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry %s/%s: %w", role, userID, err)
	}
	return &entry, nil
}

// ListByRole returns every entry of a role in ranking order
func (r *PostgresRepository) ListByRole(ctx context.Context, role models.Role) ([]models.LeaderboardEntry, error) {
	return r.TopByRole(ctx, role, -1)
}

// TopByRole returns the first limit entries of a role in ranking order.
// A negative limit returns the whole partition.
func (r *PostgresRepository) TopByRole(ctx context.Context, role models.Role, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	q := r.db.WithContext(ctx).
		Where("role = ?", role).
		Order(clause.OrderBy{Columns: rankingOrder})
	if limit >= 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list %s entries: %w", role, err)
	}
	return entries, nil
}

// UpdateRanks persists entry id -> rank assignments as bulk CASE updates.
// A failing chunk leaves earlier chunks applied; the next recalculation heals it.
func (r *PostgresRepository) UpdateRanks(ctx context.Context, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(ranks))
	for id := range ranks {
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += rankChunkSize {
		end := min(start+rankChunkSize, len(ids))
		chunk := ids[start:end]

		values := make(map[string]int, len(chunk))
		for _, id := range chunk {
			values[id] = models.ClampRank(ranks[id])
		}

		err := r.bulk(ctx).
			Model(&models.LeaderboardEntry{}).
			Where("id IN ?", chunk).
			Update("rank", caseByID(chunk, values)).Error
		if err != nil {
			return fmt.Errorf("bulk rank update: %w", err)
		}
	}
	return nil
}

// ListUnverified returns entries never verified or verified before cutoff
func (r *PostgresRepository) ListUnverified(ctx context.Context, cutoff time.Time) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Where("last_verified IS NULL OR last_verified < ?", cutoff).
		Order("role, user_id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list unverified entries: %w", err)
	}
	return entries, nil
}

// ApplyVerifications writes one sweep's outcome as one batch: corrected
// entries get new points, last_updated and last_verified; matching entries
// only get last_verified.
func (r *PostgresRepository) ApplyVerifications(ctx context.Context, results []Verification, now time.Time) error {
	if len(results) == 0 {
		return nil
	}

	var verified []string
	corrected := make(map[string]int)
	for _, v := range results {
		if v.Points == nil {
			verified = append(verified, v.EntryID)
			continue
		}
		corrected[v.EntryID] = models.ClampPoints(*v.Points)
	}

	tx := r.bulk(ctx)
	for start := 0; start < len(verified); start += rankChunkSize {
		end := min(start+rankChunkSize, len(verified))
		err := tx.Model(&models.LeaderboardEntry{}).
			Where("id IN ?", verified[start:end]).
			Update("last_verified", now).Error
		if err != nil {
			return fmt.Errorf("mark verified: %w", err)
		}
	}

	ids := make([]string, 0, len(corrected))
	for id := range corrected {
		ids = append(ids, id)
	}
	for start := 0; start < len(ids); start += rankChunkSize {
		end := min(start+rankChunkSize, len(ids))
		chunk := ids[start:end]
		err := tx.Model(&models.LeaderboardEntry{}).
			Where("id IN ?", chunk).
			Updates(map[string]interface{}{
				"points":        caseByID(chunk, corrected),
				"last_updated":  now,
				"last_verified": now,
			}).Error
		if err != nil {
			return fmt.Errorf("apply corrections: %w", err)
		}
	}
	return nil
}

// SetBadges replaces the mirrored badge log of an entry
func (r *PostgresRepository) SetBadges(ctx context.Context, userID string, role models.Role, badges []models.EarnedBadge) error {
	res := r.bulk(ctx).
		Model(&models.LeaderboardEntry{}).
		Where("user_id = ? AND role = ?", userID, role).
		Update("badges", datatypes.JSONSlice[models.EarnedBadge](badges))
	if res.Error != nil {
		return fmt.Errorf("set badges %s/%s: %w", role, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRole returns the size of a role partition
func (r *PostgresRepository) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LeaderboardEntry{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

// Ping checks if database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs database migrations
func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.LeaderboardEntry{}, &models.BadgeDefinition{})
}

// bulk returns a session for map/expression updates; model hooks are skipped
// because the values written there are already clamped.
func (r *PostgresRepository) bulk(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Session(&gorm.Session{SkipHooks: true})
}

// caseByID builds CASE id WHEN ? THEN ? ... END for a chunk of ids
func caseByID(ids []string, values map[string]int) clause.Expr {
	var sb strings.Builder
	args := make([]interface{}, 0, len(ids)*2)
	sb.WriteString("CASE id")
	for _, id := range ids {
		sb.WriteString(" WHEN ? THEN CAST(? AS INTEGER)")
		args = append(args, id, values[id])
	}
	sb.WriteString(" END")
	return gorm.Expr(sb.String(), args...)
}
