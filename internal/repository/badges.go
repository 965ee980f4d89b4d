package repository

import (
	"context"
	"fmt"

	"leaderboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeRepository reads the badge catalog
type BadgeRepository struct {
	db *gorm.DB
}

// NewBadgeRepository creates a new badge catalog repository
func NewBadgeRepository(db *gorm.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// ListActive returns active catalog rows, cheapest point thresholds first
func (r *BadgeRepository) ListActive(ctx context.Context) ([]models.BadgeDefinition, error) {
	var badges []models.BadgeDefinition
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("points_required").
		Order("name").
		Find(&badges).Error
	if err != nil {
		return nil, fmt.Errorf("list badge catalog: %w", err)
	}
	return badges, nil
}

// Upsert creates or replaces a catalog row by name
func (r *BadgeRepository) Upsert(ctx context.Context, badge *models.BadgeDefinition) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "icon_url", "points_required", "rank_required",
			"role_specific", "is_active", "updated_at",
		}),
	}).Create(badge).Error
}
