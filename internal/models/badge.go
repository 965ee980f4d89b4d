package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedBadge marks a catalog row the badge engine cannot evaluate
var ErrMalformedBadge = errors.New("malformed badge definition")

// RegistrationBadgeMarker identifies the one-time registration badge by name
const RegistrationBadgeMarker = "Registration"

// BadgeDefinition is a catalog row describing when a badge is earned
type BadgeDefinition struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	Name           string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description    string    `gorm:"type:varchar(500)" json:"description"`
	IconURL        string    `gorm:"type:varchar(512)" json:"icon_url"`
	PointsRequired *int      `gorm:"index" json:"points_required,omitempty"`
	RankRequired   *int      `gorm:"index" json:"rank_required,omitempty"`
	RoleSpecific   *Role     `gorm:"type:varchar(10)" json:"role_specific,omitempty"`
	IsActive       bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (BadgeDefinition) TableName() string {
	return "badge_definitions"
}

// Validate checks the catalog invariants: at least one threshold, sane values
func (b *BadgeDefinition) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: empty name", ErrMalformedBadge)
	}
	if b.PointsRequired == nil && b.RankRequired == nil {
		return fmt.Errorf("%w: %s sets neither points_required nor rank_required", ErrMalformedBadge, b.Name)
	}
	if b.PointsRequired != nil && *b.PointsRequired < 0 {
		return fmt.Errorf("%w: %s has negative points_required", ErrMalformedBadge, b.Name)
	}
	if b.RankRequired != nil && *b.RankRequired < 1 {
		return fmt.Errorf("%w: %s has rank_required below 1", ErrMalformedBadge, b.Name)
	}
	if b.RoleSpecific != nil && !b.RoleSpecific.Valid() {
		return fmt.Errorf("%w: %s has unknown role %q", ErrMalformedBadge, b.Name, *b.RoleSpecific)
	}
	return nil
}

// AppliesTo reports whether the badge is open to the given role
func (b *BadgeDefinition) AppliesTo(role Role) bool {
	return b.RoleSpecific == nil || *b.RoleSpecific == role
}

// Earned converts the definition into a badge log line
func (b *BadgeDefinition) Earned(at time.Time) EarnedBadge {
	return EarnedBadge{Name: b.Name, Description: b.Description, EarnedAt: at}
}
