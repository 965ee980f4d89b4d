package profile

import (
	"context"
	"errors"
	"fmt"

	"leaderboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSource reads profiles from the shared identity database
type GormSource struct {
	db *gorm.DB
}

// NewGormSource creates a profile source over the profiles table
func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

func (s *GormSource) load(ctx context.Context, userID string, role models.Role) (*models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, role, userID)
		}
		return nil, fmt.Errorf("load profile %s/%s: %w", role, userID, err)
	}
	return &p, nil
}

// GetPoints returns the authoritative points, floored at zero
func (s *GormSource) GetPoints(ctx context.Context, userID string, role models.Role) (int, error) {
	p, err := s.load(ctx, userID, role)
	if err != nil {
		return 0, err
	}
	return models.ClampPoints(p.Points), nil
}

// GetDisplayName returns the profile's display name
func (s *GormSource) GetDisplayName(ctx context.Context, userID string, role models.Role) (string, error) {
	p, err := s.load(ctx, userID, role)
	if err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

// GetBadges returns the profile's badge log in earned order
func (s *GormSource) GetBadges(ctx context.Context, userID string, role models.Role) ([]models.EarnedBadge, error) {
	p, err := s.load(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	return []models.EarnedBadge(p.Badges), nil
}

// AppendBadges adds badges to the end of the profile's log. The row is locked
// for the read-modify-write so concurrent appends do not drop each other.
func (s *GormSource) AppendBadges(ctx context.Context, userID string, role models.Role, badges ...models.EarnedBadge) error {
	if len(badges) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND role = ?", userID, role).
			First(&p).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, role, userID)
			}
			return err
		}
		p.Badges = append(p.Badges, badges...)
		return tx.Model(&p).Update("badges", p.Badges).Error
	})
}

// ListAll returns every profile; used by the backfill command
func (s *GormSource) ListAll(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := s.db.WithContext(ctx).Order("role, user_id").Find(&profiles).Error
	return profiles, err
}

// AutoMigrate creates the profiles table; production deployments share it
// with the identity subsystem, which owns its schema.
func (s *GormSource) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Profile{})
}
