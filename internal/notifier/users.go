package notifier

import (
	"context"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

// UserLookup resolves notification recipients.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

func recipientName(ctx context.Context, users UserLookup, userID string) string {
	if users == nil {
		return userID
	}
	u, err := users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return userID
	}
	return u.Username
}
