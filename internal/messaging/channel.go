// Package messaging implements direct and project-thread messages with
// inline attachments, delivered/read flags and unread aggregation.
package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/apperr"
	"github.com/good-yellow-bee/collabhub/internal/metrics"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// Option customises a Channel.
type Option func(*Channel)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// WithIDGenerator overrides how message ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(c *Channel) { c.newID = newID }
}

// WithPolicy replaces the default attachment policy.
func WithPolicy(p Policy) Option {
	return func(c *Channel) { c.policy = p }
}

// Channel owns message records.
type Channel struct {
	store  storage.Storage
	policy Policy
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a channel backed by store.
func New(store storage.Storage, log *zap.Logger, opts ...Option) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Channel{
		store:  store,
		policy: DefaultPolicy(),
		log:    log.Named("messaging"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the attachment policy in force.
func (c *Channel) Policy() Policy {
	return c.policy
}

// SendInput is the payload of a new message.
type SendInput struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	ProjectID  string `json:"project_id"`
	Content    string `json:"content"`
}

// Send stores a message. A project message requires the sender to be the
// project owner or an accepted collaborator.
func (c *Channel) Send(ctx context.Context, actor models.Actor, in SendInput, file *models.Attachment) (*models.Message, error) {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.SenderID == "" {
		in.SenderID = actor.UserID
	}

	if in.SenderID == "" {
		return nil, apperr.Validation.New("sender_id is required")
	}
	if in.ReceiverID == "" && in.ProjectID == "" {
		return nil, apperr.Validation.New("receiver_id or project_id is required")
	}
	if strings.TrimSpace(in.Content) == "" && file == nil {
		return nil, apperr.Validation.New("content or file is required")
	}
	if !actor.IsAdmin() && !actor.Is(in.SenderID) {
		return nil, apperr.Forbidden.New("messages can only be sent on your own behalf")
	}
	if err := c.policy.Check(file); err != nil {
		return nil, err
	}

	if in.ProjectID != "" {
		if err := c.requireMember(ctx, models.Actor{UserID: in.SenderID}, in.ProjectID); err != nil {
			return nil, err
		}
	}
	if in.ReceiverID != "" {
		u, err := c.store.Users().GetByID(ctx, in.ReceiverID)
		if err != nil {
			return nil, c.persistence("get_user", err)
		}
		if u == nil {
			return nil, apperr.NotFound.New("user %s", in.ReceiverID)
		}
	}

	m := &models.Message{
		ID:         c.newID(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		ProjectID:  in.ProjectID,
		Content:    in.Content,
		File:       file,
		CreatedAt:  c.now(),
	}
	if err := c.store.Messages().Create(ctx, m); err != nil {
		return nil, c.persistence("create_message", err)
	}

	kind := "direct"
	if m.ProjectID != "" {
		kind = "project"
	}
	metrics.MessagesSent.WithLabelValues(kind).Inc()
	if m.HasFile() {
		metrics.AttachmentBytes.Observe(float64(m.File.Size()))
	}
	c.log.Debug("message sent",
		zap.String("id", m.ID),
		zap.String("kind", kind),
		zap.String("sender_id", m.SenderID),
		zap.Bool("attachment", m.HasFile()))
	return m, nil
}

// Get returns one message if the actor may see it.
func (c *Channel) Get(ctx context.Context, actor models.Actor, id string) (*models.Message, error) {
	m, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.canView(ctx, actor, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Attachment returns the file carried by a message.
func (c *Channel) Attachment(ctx context.Context, actor models.Actor, id string) (*models.Attachment, error) {
	m, err := c.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !m.HasFile() {
		return nil, apperr.NotFound.New("message %s has no attachment", id)
	}
	return m.File, nil
}

// ListByProject returns the project thread oldest first. Only members and
// admins may read it.
func (c *Channel) ListByProject(ctx context.Context, actor models.Actor, projectID string) ([]*models.Message, error) {
	if err := c.requireMember(ctx, actor, projectID); err != nil {
		return nil, err
	}
	list, err := c.store.Messages().ListByProject(ctx, projectID)
	if err != nil {
		return nil, c.persistence("list_project_messages", err)
	}
	return orEmpty(list), nil
}

// ListByUser returns every message the user sent or received, newest first.
func (c *Channel) ListByUser(ctx context.Context, userID string) ([]*models.Message, error) {
	list, err := c.store.Messages().ListByUser(ctx, userID)
	if err != nil {
		return nil, c.persistence("list_user_messages", err)
	}
	return orEmpty(list), nil
}

// ListBetween returns the conversation between two users oldest first.
func (c *Channel) ListBetween(ctx context.Context, actor models.Actor, userA, userB string) ([]*models.Message, error) {
	if !actor.IsAdmin() && !actor.Is(userA) && !actor.Is(userB) {
		return nil, apperr.Forbidden.New("not a participant in this conversation")
	}
	list, err := c.store.Messages().ListBetween(ctx, userA, userB)
	if err != nil {
		return nil, c.persistence("list_conversation", err)
	}
	return orEmpty(list), nil
}

// MarkRead flips the read flag. Marking twice is a no-op success.
func (c *Channel) MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Message, error) {
	return c.mark(ctx, actor, id, "read", c.store.Messages().MarkRead)
}

// MarkDelivered flips the delivered flag. Marking twice is a no-op success.
func (c *Channel) MarkDelivered(ctx context.Context, actor models.Actor, id string) (*models.Message, error) {
	return c.mark(ctx, actor, id, "delivered", c.store.Messages().MarkDelivered)
}

func (c *Channel) mark(ctx context.Context, actor models.Actor, id, flag string,
	set func(ctx context.Context, id string, at time.Time) (bool, error),
) (*models.Message, error) {
	m, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.canMark(ctx, actor, m); err != nil {
		return nil, err
	}

	found, err := set(ctx, id, c.now())
	if err != nil {
		return nil, c.persistence("mark_"+flag, err)
	}
	if !found {
		return nil, apperr.NotFound.New("message %s", id)
	}
	return c.get(ctx, id)
}

// UnreadCounts returns the unread messages addressed to receiverID grouped by sender.
func (c *Channel) UnreadCounts(ctx context.Context, receiverID string) ([]*models.UnreadCount, error) {
	metrics.UnreadLookups.Inc()
	counts, err := c.store.Messages().UnreadCounts(ctx, receiverID)
	if err != nil {
		return nil, c.persistence("unread_counts", err)
	}
	if counts == nil {
		counts = []*models.UnreadCount{}
	}
	return counts, nil
}

// Delete removes one message. Only its sender or an admin may delete it.
func (c *Channel) Delete(ctx context.Context, actor models.Actor, id string) error {
	m, err := c.get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && !actor.Is(m.SenderID) {
		return apperr.Forbidden.New("only the sender can delete message %s", id)
	}
	existed, err := c.store.Messages().Delete(ctx, id)
	if err != nil {
		return c.persistence("delete_message", err)
	}
	if !existed {
		return apperr.NotFound.New("message %s", id)
	}
	return nil
}

// DeleteConversation removes every message between two users in either
// direction and returns how many were deleted.
func (c *Channel) DeleteConversation(ctx context.Context, actor models.Actor, userA, userB string) (int64, error) {
	if userA == "" || userB == "" {
		return 0, apperr.Validation.New("both users are required")
	}
	if !actor.IsAdmin() && !actor.Is(userA) && !actor.Is(userB) {
		return 0, apperr.Forbidden.New("not a participant in this conversation")
	}
	n, err := c.store.Messages().DeleteConversation(ctx, userA, userB)
	if err != nil {
		return 0, c.persistence("delete_conversation", err)
	}
	c.log.Info("conversation deleted",
		zap.String("user_a", userA),
		zap.String("user_b", userB),
		zap.Int64("messages", n),
		zap.String("actor_id", actor.UserID))
	return n, nil
}

func (c *Channel) get(ctx context.Context, id string) (*models.Message, error) {
	m, err := c.store.Messages().GetByID(ctx, id)
	if err != nil {
		return nil, c.persistence("get_message", err)
	}
	if m == nil {
		return nil, apperr.NotFound.New("message %s", id)
	}
	return m, nil
}

// requireMember fails unless the project exists and actor owns or
// collaborates on it. Admins pass.
func (c *Channel) requireMember(ctx context.Context, actor models.Actor, projectID string) error {
	project, err := c.store.Projects().GetByID(ctx, projectID)
	if err != nil {
		return c.persistence("get_project", err)
	}
	if project == nil {
		return apperr.NotFound.New("project %s", projectID)
	}
	if actor.IsAdmin() {
		return nil
	}
	ok, err := c.store.Projects().IsMember(ctx, projectID, actor.UserID)
	if err != nil {
		return c.persistence("is_member", err)
	}
	if !ok {
		return apperr.Forbidden.New("not a member of project %s", projectID)
	}
	return nil
}

func (c *Channel) canView(ctx context.Context, actor models.Actor, m *models.Message) error {
	if actor.IsAdmin() || actor.Is(m.SenderID) || actor.Is(m.ReceiverID) {
		return nil
	}
	if m.ProjectID != "" {
		return c.requireMember(ctx, actor, m.ProjectID)
	}
	return apperr.Forbidden.New("not a participant in message %s", m.ID)
}

// canMark allows the addressee, or any project member for thread messages.
func (c *Channel) canMark(ctx context.Context, actor models.Actor, m *models.Message) error {
	if actor.IsAdmin() || actor.Is(m.ReceiverID) {
		return nil
	}
	if m.ProjectID != "" && m.ReceiverID == "" {
		return c.requireMember(ctx, actor, m.ProjectID)
	}
	return apperr.Forbidden.New("only the receiver can update message %s", m.ID)
}

func (c *Channel) persistence(op string, err error) error {
	metrics.StorageErrors.WithLabelValues(op).Inc()
	c.log.Error("storage operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Persistence.Wrap(err)
}

func orEmpty(list []*models.Message) []*models.Message {
	if list == nil {
		return []*models.Message{}
	}
	return list
}
