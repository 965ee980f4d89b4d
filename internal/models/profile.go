package models

import (
	"time"

	"gorm.io/datatypes"
)

// Profile is the identity subsystem's per-role record and the authoritative
// owner of a user's points.
type Profile struct {
	ID          uint                             `gorm:"primarykey" json:"id"`
	UserID      string                           `gorm:"type:varchar(64);not null;uniqueIndex:idx_profile_user_role,priority:1" json:"user_id"`
	Role        Role                             `gorm:"type:varchar(10);not null;uniqueIndex:idx_profile_user_role,priority:2" json:"role"`
	DisplayName string                           `gorm:"type:varchar(255)" json:"display_name"`
	Points      int                              `gorm:"not null;default:0" json:"points"`
	Badges      datatypes.JSONSlice[EarnedBadge] `json:"badges"`
	CreatedAt   time.Time                        `json:"created_at"`
	UpdatedAt   time.Time                        `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Profile) TableName() string {
	return "profiles"
}
