// Package collab implements the collaboration registry: invites sent by a
// project owner, applications sent to one, and their single transition from
// Pending to Accepted or Declined.
//
// Every state change is committed together with an outbox event carrying
// the notification owed to the other party, then announced on the
// in-process event bus.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/apperr"
	"github.com/good-yellow-bee/collabhub/internal/events"
	"github.com/good-yellow-bee/collabhub/internal/metrics"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides how record ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// WithBus publishes events on bus instead of a private one.
func WithBus(bus *events.Bus[Event]) Option {
	return func(r *Registry) { r.bus = bus }
}

// Registry owns collaboration records.
type Registry struct {
	store storage.Storage
	bus   *events.Bus[Event]
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// New creates a registry backed by store.
func New(store storage.Storage, log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		store: store,
		bus:   events.New[Event](),
		log:   log.Named("collab"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the bus committed changes are published on.
func (r *Registry) Events() *events.Bus[Event] {
	return r.bus
}

// CreateInput is the payload of a new invite or application.
type CreateInput struct {
	SenderID   string                   `json:"sender_id"`
	ReceiverID string                   `json:"receiver_id"`
	ProjectID  string                   `json:"project_id"`
	Type       models.CollaborationType `json:"type"`
	Message    string                   `json:"message"`
}

func (in *CreateInput) normalize() {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Message = strings.TrimSpace(in.Message)
}

func (in *CreateInput) validate() error {
	var missing []string
	if in.SenderID == "" {
		missing = append(missing, "sender_id")
	}
	if in.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if in.Type == "" {
		missing = append(missing, "type")
	}
	if in.ReceiverID == "" && in.Type != models.CollaborationApplication {
		missing = append(missing, "receiver_id")
	}
	if len(missing) > 0 {
		return apperr.Validation.New("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !in.Type.Valid() {
		return apperr.Validation.New("type must be %q or %q", models.CollaborationInvite, models.CollaborationApplication)
	}
	return nil
}

// Create records a pending invite or application and queues an Invite
// notification for the receiver. Applications without a receiver are
// addressed to the project owner.
func (r *Registry) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.Collaboration, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Is(in.SenderID) {
		return nil, apperr.Forbidden.New("collaborations can only be sent on your own behalf")
	}

	project, err := r.store.Projects().GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, r.persistence("get_project", err)
	}
	if project == nil {
		return nil, apperr.NotFound.New("project %s", in.ProjectID)
	}
	if in.ReceiverID == "" {
		in.ReceiverID = project.OwnerID
	}
	if in.SenderID == in.ReceiverID {
		return nil, apperr.Validation.New("sender and receiver must be different users")
	}

	now := r.now()
	c := &models.Collaboration{
		ID:         r.newID(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		ProjectID:  in.ProjectID,
		Type:       in.Type,
		Status:     models.StatusPending,
		Message:    in.Message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if c.OwnerID() != project.OwnerID {
		if c.Type == models.CollaborationInvite {
			return nil, apperr.Validation.New("only the owner of project %s can send invites", project.ID)
		}
		return nil, apperr.Validation.New("applications must be addressed to the owner of project %s", project.ID)
	}

	sender, err := r.user(ctx, c.SenderID)
	if err != nil {
		return nil, err
	}
	if _, err := r.user(ctx, c.ReceiverID); err != nil {
		return nil, err
	}

	member, err := r.store.Projects().IsMember(ctx, project.ID, c.MemberID())
	if err != nil {
		return nil, r.persistence("is_member", err)
	}
	if member {
		return nil, apperr.Conflict.New("user %s is already a member of project %s", c.MemberID(), project.ID)
	}

	notice := notificationPayload{
		UserID:          c.ReceiverID,
		Type:            models.NotificationInvite,
		Message:         createdMessage(c, sender.Username, project.Name),
		CollaborationID: c.ID,
	}

	err = r.store.InTx(ctx, func(tx storage.Repositories) error {
		if err := tx.Collaborations().Create(ctx, c); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.Conflict.New("a pending %s for this project already exists", c.Type)
			}
			return r.persistence("create_collaboration", err)
		}
		return r.enqueue(ctx, tx, EventCreated, c, notice)
	})
	if err != nil {
		return nil, err
	}

	metrics.CollaborationsCreated.WithLabelValues(string(c.Type)).Inc()
	r.log.Info("collaboration created",
		zap.String("id", c.ID),
		zap.String("type", string(c.Type)),
		zap.String("project_id", c.ProjectID),
		zap.String("sender_id", c.SenderID),
		zap.String("receiver_id", c.ReceiverID))

	r.bus.Publish(Event{Type: EventCreated, Collaboration: *c, ActorID: actor.UserID, At: now})
	return c, nil
}

// Get returns one collaboration. Only its parties and admins may read it.
func (r *Registry) Get(ctx context.Context, actor models.Actor, id string) (*models.Collaboration, error) {
	c, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !c.Involves(actor.UserID) {
		return nil, apperr.Forbidden.New("not a party to collaboration %s", id)
	}
	return c, nil
}

// List returns every collaboration, newest first. Admin only.
func (r *Registry) List(ctx context.Context, actor models.Actor) ([]*models.Collaboration, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden.New("listing all collaborations requires admin")
	}
	list, err := r.store.Collaborations().List(ctx)
	if err != nil {
		return nil, r.persistence("list_collaborations", err)
	}
	if list == nil {
		list = []*models.Collaboration{}
	}
	return list, nil
}

// ListByReceiver returns invites addressed to userID with project and
// sender summaries.
func (r *Registry) ListByReceiver(ctx context.Context, userID string) ([]*models.CollaborationDetail, error) {
	list, err := r.store.Collaborations().ListInvitesForReceiver(ctx, userID)
	if err != nil {
		return nil, r.persistence("list_invites", err)
	}
	if list == nil {
		list = []*models.CollaborationDetail{}
	}
	return list, nil
}

// ListApplications returns applications sent by or addressed to userID.
func (r *Registry) ListApplications(ctx context.Context, userID string) ([]*models.CollaborationDetail, error) {
	list, err := r.store.Collaborations().ListApplicationsForUser(ctx, userID)
	if err != nil {
		return nil, r.persistence("list_applications", err)
	}
	if list == nil {
		list = []*models.CollaborationDetail{}
	}
	return list, nil
}

// Resolve accepts or declines a pending collaboration on behalf of its
// receiver. Accepting adds the non-owner party to the project.
// A record that is no longer pending yields InvalidState with no side effects.
func (r *Registry) Resolve(ctx context.Context, actor models.Actor, id string, d Decision) (*models.Collaboration, error) {
	return r.resolve(ctx, actor, id, d, "")
}

// AcceptInvite accepts a pending invite.
func (r *Registry) AcceptInvite(ctx context.Context, actor models.Actor, id string) (*models.Collaboration, error) {
	return r.resolve(ctx, actor, id, Accept, models.CollaborationInvite)
}

// AcceptApplication accepts a pending application.
func (r *Registry) AcceptApplication(ctx context.Context, actor models.Actor, id string) (*models.Collaboration, error) {
	return r.resolve(ctx, actor, id, Accept, models.CollaborationApplication)
}

// DeclineInvite declines a pending invite or application. The project is never touched.
func (r *Registry) DeclineInvite(ctx context.Context, actor models.Actor, id string) (*models.Collaboration, error) {
	return r.resolve(ctx, actor, id, Decline, "")
}

func (r *Registry) resolve(ctx context.Context, actor models.Actor, id string, d Decision, want models.CollaborationType) (*models.Collaboration, error) {
	if d != Accept && d != Decline {
		return nil, apperr.Validation.New("unknown decision %d", int(d))
	}

	at := r.now()
	status := d.Status()
	eventType := EventDeclined
	if d == Accept {
		eventType = EventAccepted
	}

	// The record is read inside the transaction so the type and receiver
	// checks see the same row the conditional update flips.
	var c *models.Collaboration
	err := r.store.InTx(ctx, func(tx storage.Repositories) error {
		var err error
		c, err = tx.Collaborations().GetByID(ctx, id)
		if err != nil {
			return r.persistence("get_collaboration", err)
		}
		if c == nil {
			return apperr.NotFound.New("collaboration %s", id)
		}
		if want != "" && c.Type != want {
			return apperr.InvalidState.New("collaboration %s is an %s, not an %s", id, c.Type, want)
		}
		if !actor.IsAdmin() && !actor.Is(c.ReceiverID) {
			return apperr.Forbidden.New("only the receiver can respond to collaboration %s", id)
		}

		project, err := tx.Projects().GetByID(ctx, c.ProjectID)
		if err != nil {
			return r.persistence("get_project", err)
		}
		if project == nil && d == Accept {
			return apperr.NotFound.New("project %s of collaboration %s", c.ProjectID, id)
		}
		projectName := c.ProjectID
		if project != nil {
			projectName = project.Name
		}
		responder := c.ReceiverID
		if u, err := tx.Users().GetByID(ctx, c.ReceiverID); err == nil && u != nil {
			responder = u.Username
		}

		ok, err := tx.Collaborations().Transition(ctx, id, status, at)
		if err != nil {
			return r.persistence("transition", err)
		}
		if !ok {
			return apperr.InvalidState.New("collaboration %s not found or already responded to", id)
		}

		if d == Accept {
			added, err := tx.Projects().AddCollaborator(ctx, c.ProjectID, c.MemberID(), at)
			if err != nil {
				return r.persistence("add_collaborator", err)
			}
			if !added {
				r.log.Debug("collaborator already present",
					zap.String("project_id", c.ProjectID),
					zap.String("user_id", c.MemberID()))
			}
		}

		notice := notificationPayload{
			UserID:          c.SenderID,
			Type:            models.NotificationInviteDeclined,
			Message:         resolvedMessage(c, status, responder, projectName),
			CollaborationID: c.ID,
		}
		if d == Accept {
			notice.Type = models.NotificationSuccess
		}
		return r.enqueue(ctx, tx, eventType, c, notice)
	})
	if err != nil {
		if apperr.InvalidState.Has(err) {
			metrics.CollaborationRejectedTransitions.Inc()
		}
		return nil, err
	}

	c.Status = status
	c.RespondedAt = &at
	c.UpdatedAt = at

	metrics.CollaborationTransitions.WithLabelValues(string(c.Type), string(status)).Inc()
	r.log.Info("collaboration resolved",
		zap.String("id", c.ID),
		zap.String("type", string(c.Type)),
		zap.String("decision", d.String()),
		zap.String("actor_id", actor.UserID))

	r.bus.Publish(Event{Type: eventType, Collaboration: *c, ActorID: actor.UserID, At: at})
	return c, nil
}

// Delete hard-deletes a collaboration. The sender may withdraw their own
// record; admins may delete any.
func (r *Registry) Delete(ctx context.Context, actor models.Actor, id string) error {
	c, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && !actor.Is(c.SenderID) {
		return apperr.Forbidden.New("only the sender can withdraw collaboration %s", id)
	}

	existed, err := r.store.Collaborations().Delete(ctx, id)
	if err != nil {
		return r.persistence("delete_collaboration", err)
	}
	if !existed {
		return apperr.NotFound.New("collaboration %s", id)
	}

	r.log.Info("collaboration deleted", zap.String("id", id), zap.String("actor_id", actor.UserID))
	return nil
}

// UpdatePatch lists the fields an administrative update may overwrite.
type UpdatePatch struct {
	SenderID   *string                     `json:"sender_id,omitempty"`
	ReceiverID *string                     `json:"receiver_id,omitempty"`
	ProjectID  *string                     `json:"project_id,omitempty"`
	Type       *models.CollaborationType   `json:"type,omitempty"`
	Status     *models.CollaborationStatus `json:"status,omitempty"`
	Message    *string                     `json:"message,omitempty"`
}

// Update overwrites fields without going through the state machine. Admin only.
func (r *Registry) Update(ctx context.Context, actor models.Actor, id string, patch UpdatePatch) (*models.Collaboration, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden.New("updating collaborations requires admin")
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, apperr.Validation.New("invalid type %q", *patch.Type)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Validation.New("invalid status %q", *patch.Status)
	}

	c, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if patch.SenderID != nil {
		c.SenderID = *patch.SenderID
	}
	if patch.ReceiverID != nil {
		c.ReceiverID = *patch.ReceiverID
	}
	if patch.ProjectID != nil {
		c.ProjectID = *patch.ProjectID
	}
	if patch.Type != nil {
		c.Type = *patch.Type
	}
	if patch.Message != nil {
		c.Message = *patch.Message
	}
	if patch.Status != nil {
		c.Status = *patch.Status
		switch {
		case c.Status.Terminal() && c.RespondedAt == nil:
			c.RespondedAt = &now
		case !c.Status.Terminal():
			c.RespondedAt = nil
		}
	}
	c.UpdatedAt = now

	if err := r.store.Collaborations().Update(ctx, c); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Conflict.New("a pending %s for this project already exists", c.Type)
		}
		return nil, r.persistence("update_collaboration", err)
	}

	r.log.Info("collaboration updated", zap.String("id", id), zap.String("actor_id", actor.UserID))
	return c, nil
}

func (r *Registry) get(ctx context.Context, id string) (*models.Collaboration, error) {
	c, err := r.store.Collaborations().GetByID(ctx, id)
	if err != nil {
		return nil, r.persistence("get_collaboration", err)
	}
	if c == nil {
		return nil, apperr.NotFound.New("collaboration %s", id)
	}
	return c, nil
}

func (r *Registry) user(ctx context.Context, id string) (*models.User, error) {
	u, err := r.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, r.persistence("get_user", err)
	}
	if u == nil {
		return nil, apperr.NotFound.New("user %s", id)
	}
	return u, nil
}

func (r *Registry) enqueue(ctx context.Context, tx storage.Repositories, eventType string, c *models.Collaboration, notice notificationPayload) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return apperr.Persistence.Wrap(err)
	}
	event := &models.OutboxEvent{
		ID:          r.newID(),
		EventType:   eventType,
		AggregateID: c.ID,
		Payload:     payload,
		CreatedAt:   r.now(),
	}
	if err := tx.Outbox().Enqueue(ctx, event); err != nil {
		return r.persistence("enqueue_outbox", err)
	}
	return nil
}

func (r *Registry) persistence(op string, err error) error {
	metrics.StorageErrors.WithLabelValues(op).Inc()
	r.log.Error("storage operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Persistence.Wrap(err)
}
