// Package profile reads authoritative points and badge logs from the
// identity subsystem. The leaderboard never writes points back.
package profile

import (
	"context"
	"errors"

	"leaderboard/internal/models"
)

// ErrNotFound is returned when the identity subsystem has no profile for (user, role)
var ErrNotFound = errors.New("profile not found")

// Source is the read side of the identity/profile store, plus badge appends
type Source interface {
	GetPoints(ctx context.Context, userID string, role models.Role) (int, error)
	GetDisplayName(ctx context.Context, userID string, role models.Role) (string, error)
	GetBadges(ctx context.Context, userID string, role models.Role) ([]models.EarnedBadge, error)
	AppendBadges(ctx context.Context, userID string, role models.Role, badges ...models.EarnedBadge) error
}
