// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

// ErrDuplicate is wrapped into errors caused by a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")

// Repositories groups the repository accessors. Repositories obtained inside
// Storage.InTx share the transaction.
type Repositories interface {
	Users() UserRepository
	Projects() ProjectRepository
	Collaborations() CollaborationRepository
	Messages() MessageRepository
	Notifications() NotificationRepository
	Outbox() OutboxRepository
}

// Storage is the main interface for database operations.
type Storage interface {
	Repositories

	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// InTx runs fn in a single transaction, committing only if fn returns nil.
	// fn must not use repositories obtained outside of tx.
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}

// UserRepository defines operations for user management.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// ProjectRepository defines operations for projects and their collaborator set.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Project, error)
	// ListForUser returns projects the user owns or collaborates on.
	ListForUser(ctx context.Context, userID string) ([]*models.Project, error)
	// AddCollaborator inserts the pair if absent and reports whether a row was added.
	AddCollaborator(ctx context.Context, projectID, userID string, joinedAt time.Time) (bool, error)
	RemoveCollaborator(ctx context.Context, projectID, userID string) error
	// ListMembers returns the owner followed by collaborators in join order.
	ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMember, error)
	// IsMember reports whether the user owns or collaborates on the project.
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
}

// CollaborationRepository defines operations for invites and applications.
type CollaborationRepository interface {
	Create(ctx context.Context, c *models.Collaboration) error
	GetByID(ctx context.Context, id string) (*models.Collaboration, error)
	Update(ctx context.Context, c *models.Collaboration) error
	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*models.Collaboration, error)
	ListInvitesForReceiver(ctx context.Context, userID string) ([]*models.CollaborationDetail, error)
	ListApplicationsForUser(ctx context.Context, userID string) ([]*models.CollaborationDetail, error)
	// Transition moves a Pending record to status and reports whether it did.
	// A false result means the record is absent or no longer Pending.
	Transition(ctx context.Context, id string, status models.CollaborationStatus, at time.Time) (bool, error)
}

// MessageRepository defines operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByProject returns the thread oldest first.
	ListByProject(ctx context.Context, projectID string) ([]*models.Message, error)
	// ListByUser returns messages sent or received by the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.Message, error)
	// ListBetween returns the bilateral conversation oldest first.
	ListBetween(ctx context.Context, userA, userB string) ([]*models.Message, error)
	// MarkRead and MarkDelivered report whether the message exists.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	UnreadCounts(ctx context.Context, receiverID string) ([]*models.UnreadCount, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteConversation(ctx context.Context, userA, userB string) (int64, error)
}

// NotificationRepository defines operations for stored notifications.
type NotificationRepository interface {
	// Create inserts the notification; an existing id is left untouched.
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id string) (bool, error)
}

// OutboxRepository defines operations for the transactional outbox.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *models.OutboxEvent) error
	GetByID(ctx context.Context, id string) (*models.OutboxEvent, error)
	// Lease claims up to limit due events until now+ttl.
	Lease(ctx context.Context, limit int, now time.Time, ttl time.Duration) ([]*models.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	// MarkRetry records a failed attempt and reschedules the event.
	MarkRetry(ctx context.Context, id string, lastErr string, next time.Time) error
	MarkFailed(ctx context.Context, id string, lastErr string) error
	// Requeue resets a failed event to pending.
	Requeue(ctx context.Context, id string, at time.Time) (bool, error)
	List(ctx context.Context, status models.OutboxStatus, limit int) ([]*models.OutboxEvent, error)
	CountByStatus(ctx context.Context) (map[models.OutboxStatus]int64, error)
}
