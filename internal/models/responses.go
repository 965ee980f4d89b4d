package models

import "time"

// Medal names for the top three places of a role
const (
	MedalGold   = "gold"
	MedalSilver = "silver"
	MedalBronze = "bronze"
)

// MedalForRank returns the medal for ranks 1-3 and "" otherwise
func MedalForRank(rank int) string {
	switch rank {
	case 1:
		return MedalGold
	case 2:
		return MedalSilver
	case 3:
		return MedalBronze
	}
	return ""
}

// PointsChangedRequest is posted by the points-owning subsystem
type PointsChangedRequest struct {
	UserID   string `json:"user_id" validate:"required,max=64"`
	Role     string `json:"role" validate:"required,oneof=student teacher school"`
	Points   *int   `json:"points" validate:"required"`
	UserName string `json:"user_name" validate:"omitempty,max=255"`
}

// EntryView is a single row of the public leaderboard
type EntryView struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	Points      int       `json:"points"`
	Rank        int       `json:"rank"`
	LastUpdated time.Time `json:"last_updated"`
	Medal       string    `json:"medal,omitempty"`
}

// LeaderboardResponse is the top-N view of every role
type LeaderboardResponse struct {
	Students []EntryView `json:"students"`
	Teachers []EntryView `json:"teachers"`
	Schools  []EntryView `json:"schools"`
}

// UserStatus is the caller's own standing within their role
type UserStatus struct {
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name"`
	Points          int    `json:"points"`
	Rank            *int   `json:"rank,omitempty"`
	Role            Role   `json:"role"`
	IsOnLeaderboard bool   `json:"is_on_leaderboard"`
	Message         string `json:"message,omitempty"`
}

// SweepResponse reports a manual reconciliation run
type SweepResponse struct {
	Corrections int `json:"corrections"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
