package notifier

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// StoreNotifier saves notifications to the recipient's inbox.
type StoreNotifier struct {
	repo storage.NotificationRepository
}

// NewStoreNotifier creates a notifier writing to repo.
func NewStoreNotifier(repo storage.NotificationRepository) *StoreNotifier {
	return &StoreNotifier{repo: repo}
}

// Name returns "store".
func (s *StoreNotifier) Name() string {
	return "store"
}

// Send inserts the notification. A notification id that already exists is left as is.
func (s *StoreNotifier) Send(ctx context.Context, n *models.Notification) error {
	if n.ID == "" || n.UserID == "" {
		return fmt.Errorf("notification requires id and user id")
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// Close is a no-op for the store notifier.
func (s *StoreNotifier) Close() error {
	return nil
}
