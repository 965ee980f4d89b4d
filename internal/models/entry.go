package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EarnedBadge is one line of a user's append-only badge log
type EarnedBadge struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
}

// LeaderboardEntry is the denormalized ranking snapshot for one (user, role).
// Points are a cached copy of the profile store; Rank is derived and only
// written by rank recalculation.
type LeaderboardEntry struct {
	ID           string                           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string                           `gorm:"type:varchar(64);not null;uniqueIndex:idx_leaderboard_user_role,priority:1" json:"user_id"`
	UserName     string                           `gorm:"type:varchar(255);not null" json:"user_name"`
	Role         Role                             `gorm:"type:varchar(10);not null;uniqueIndex:idx_leaderboard_user_role,priority:2;index:idx_leaderboard_role_points,priority:1;index:idx_leaderboard_role_rank,priority:1" json:"role"`
	Points       int                              `gorm:"not null;default:0;index:idx_leaderboard_role_points,priority:2,sort:desc" json:"points"`
	Rank         int                              `gorm:"not null;default:1;index:idx_leaderboard_role_rank,priority:2" json:"rank"`
	Badges       datatypes.JSONSlice[EarnedBadge] `json:"badges"`
	LastUpdated  time.Time                        `gorm:"not null;index" json:"last_updated"`
	LastVerified *time.Time                       `gorm:"index" json:"last_verified,omitempty"`
}

// TableName specifies the table name for GORM
func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}

// BeforeCreate assigns the opaque entry id
func (e *LeaderboardEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave enforces points >= 0 and rank >= 1 on every write
func (e *LeaderboardEntry) BeforeSave(tx *gorm.DB) error {
	e.Points = ClampPoints(e.Points)
	e.Rank = ClampRank(e.Rank)
	return nil
}

// ClampPoints floors points at zero
func ClampPoints(points int) int {
	if points < 0 {
		return 0
	}
	return points
}

// ClampRank floors rank at one
func ClampRank(rank int) int {
	if rank < 1 {
		return 1
	}
	return rank
}
