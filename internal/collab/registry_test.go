package collab

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/collabhub/internal/apperr"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/outbox"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// tickingClock advances one second per reading so records order deterministically.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// storeDispatcher writes notifications straight to the notifications table.
type storeDispatcher struct {
	repo storage.NotificationRepository
}

func (d storeDispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	return d.repo.Create(ctx, n)
}

type testEnv struct {
	store   *storage.SQLiteStorage
	reg     *Registry
	relay   *outbox.Relay
	events  []Event
	owner   *models.User
	alice   *models.User
	bob     *models.User
	project *models.Project
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	log := zaptest.NewLogger(t)
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "collab.db"), log)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	clock := &tickingClock{now: epoch}
	env := &testEnv{store: store}
	env.reg = New(store, log, WithClock(clock.Now))
	env.relay = outbox.NewRelay(store.Outbox(), outbox.Config{}, log, outbox.WithClock(func() time.Time {
		return epoch.Add(time.Hour)
	}))
	RegisterHandlers(env.relay, env.reg.Events(), storeDispatcher{repo: store.Notifications()})
	env.reg.Events().Subscribe("recorder", func(e Event) bool {
		env.events = append(env.events, e)
		return true
	})

	env.owner = env.createUser(t, "owner")
	env.alice = env.createUser(t, "alice")
	env.bob = env.createUser(t, "bob")

	env.project = &models.Project{
		ID:        uuid.New().String(),
		Name:      "Coral Reef Survey",
		OwnerID:   env.owner.ID,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
	require.NoError(t, store.Projects().Create(context.Background(), env.project))
	return env
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:        uuid.New().String(),
		Username:  name,
		Email:     name + "@example.org",
		Role:      models.RoleResearcher,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *testEnv) invite(t *testing.T, receiver *models.User) *models.Collaboration {
	t.Helper()
	c, err := e.reg.Create(context.Background(), as(e.owner), CreateInput{
		SenderID:   e.owner.ID,
		ReceiverID: receiver.ID,
		ProjectID:  e.project.ID,
		Type:       models.CollaborationInvite,
		Message:    "join us",
	})
	require.NoError(t, err)
	return c
}

func (e *testEnv) memberIDs(t *testing.T) []string {
	t.Helper()
	members, err := e.store.Projects().ListMembers(context.Background(), e.project.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}

func (e *testEnv) notifications(t *testing.T, user *models.User) []*models.Notification {
	t.Helper()
	_, err := e.relay.ProcessDue(context.Background())
	require.NoError(t, err)
	list, err := e.store.Notifications().ListByUser(context.Background(), user.ID, false)
	require.NoError(t, err)
	return list
}

func as(u *models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: u.Role}
}

var admin = models.Actor{UserID: "root", Role: models.RoleAdmin}

func TestCreate_InviteIsPendingAndNotifiesReceiver(t *testing.T) {
	env := setup(t)

	c := env.invite(t, env.alice)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Nil(t, c.RespondedAt)

	got, err := env.reg.Get(context.Background(), as(env.alice), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "join us", got.Message)

	notes := env.notifications(t, env.alice)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationInvite, notes[0].Type)
	assert.Equal(t, "owner invited you to collaborate on Coral Reef Survey", notes[0].Message)

	require.Len(t, env.events, 1)
	assert.Equal(t, EventCreated, env.events[0].Type)
}

func TestCreate_ApplicationDefaultsToOwner(t *testing.T) {
	env := setup(t)

	c, err := env.reg.Create(context.Background(), as(env.alice), CreateInput{
		SenderID:  env.alice.ID,
		ProjectID: env.project.ID,
		Type:      models.CollaborationApplication,
	})
	require.NoError(t, err)
	assert.Equal(t, env.owner.ID, c.ReceiverID)

	notes := env.notifications(t, env.owner)
	require.Len(t, notes, 1)
	assert.Equal(t, "alice applied to join Coral Reef Survey", notes[0].Message)
}

func TestCreate_Validation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor models.Actor
		input CreateInput
		class func(error) bool
	}{
		{
			name:  "missing fields",
			actor: as(env.owner),
			input: CreateInput{SenderID: env.owner.ID},
			class: apperr.Validation.Has,
		},
		{
			name:  "unknown type",
			actor: as(env.owner),
			input: CreateInput{SenderID: env.owner.ID, ReceiverID: env.alice.ID, ProjectID: env.project.ID, Type: "poke"},
			class: apperr.Validation.Has,
		},
		{
			name:  "on behalf of someone else",
			actor: as(env.alice),
			input: CreateInput{SenderID: env.owner.ID, ReceiverID: env.alice.ID, ProjectID: env.project.ID, Type: models.CollaborationInvite},
			class: apperr.Forbidden.Has,
		},
		{
			name:  "invite from non-owner",
			actor: as(env.alice),
			input: CreateInput{SenderID: env.alice.ID, ReceiverID: env.bob.ID, ProjectID: env.project.ID, Type: models.CollaborationInvite},
			class: apperr.Validation.Has,
		},
		{
			name:  "application to non-owner",
			actor: as(env.alice),
			input: CreateInput{SenderID: env.alice.ID, ReceiverID: env.bob.ID, ProjectID: env.project.ID, Type: models.CollaborationApplication},
			class: apperr.Validation.Has,
		},
		{
			name:  "self invite",
			actor: as(env.owner),
			input: CreateInput{SenderID: env.owner.ID, ReceiverID: env.owner.ID, ProjectID: env.project.ID, Type: models.CollaborationInvite},
			class: apperr.Validation.Has,
		},
		{
			name:  "unknown project",
			actor: as(env.owner),
			input: CreateInput{SenderID: env.owner.ID, ReceiverID: env.alice.ID, ProjectID: "nope", Type: models.CollaborationInvite},
			class: apperr.NotFound.Has,
		},
		{
			name:  "unknown receiver",
			actor: as(env.owner),
			input: CreateInput{SenderID: env.owner.ID, ReceiverID: "ghost", ProjectID: env.project.ID, Type: models.CollaborationInvite},
			class: apperr.NotFound.Has,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reg.Create(ctx, tt.actor, tt.input)
			require.Error(t, err)
			assert.True(t, tt.class(err), "unexpected error class: %v", err)
		})
	}

	all, err := env.reg.List(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_DuplicatePendingConflicts(t *testing.T) {
	env := setup(t)
	env.invite(t, env.alice)

	_, err := env.reg.Create(context.Background(), as(env.owner), CreateInput{
		SenderID:   env.owner.ID,
		ReceiverID: env.alice.ID,
		ProjectID:  env.project.ID,
		Type:       models.CollaborationInvite,
	})
	require.Error(t, err)
	assert.True(t, apperr.Conflict.Has(err))

	list, err := env.reg.ListByReceiver(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreate_ExistingMemberConflicts(t *testing.T) {
	env := setup(t)
	c := env.invite(t, env.alice)
	_, err := env.reg.Resolve(context.Background(), as(env.alice), c.ID, Accept)
	require.NoError(t, err)

	_, err = env.reg.Create(context.Background(), as(env.owner), CreateInput{
		SenderID:   env.owner.ID,
		ReceiverID: env.alice.ID,
		ProjectID:  env.project.ID,
		Type:       models.CollaborationInvite,
	})
	require.Error(t, err)
	assert.True(t, apperr.Conflict.Has(err))
}

func TestResolve_AcceptInvite(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	accepted, err := env.reg.AcceptInvite(ctx, as(env.bob), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.RespondedAt)

	stored, err := env.reg.Get(ctx, as(env.owner), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	require.NotNil(t, stored.RespondedAt)

	assert.Equal(t, []string{env.owner.ID, env.bob.ID}, env.memberIDs(t))

	notes := env.notifications(t, env.owner)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationSuccess, notes[0].Type)
	assert.Equal(t, "bob accepted your invitation to Coral Reef Survey", notes[0].Message)

	require.Len(t, env.events, 2)
	assert.Equal(t, EventAccepted, env.events[1].Type)
	assert.Equal(t, models.StatusAccepted, env.events[1].Collaboration.Status)
}

func TestResolve_AcceptApplicationAddsSender(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c, err := env.reg.Create(ctx, as(env.alice), CreateInput{
		SenderID:  env.alice.ID,
		ProjectID: env.project.ID,
		Type:      models.CollaborationApplication,
	})
	require.NoError(t, err)

	_, err = env.reg.AcceptApplication(ctx, as(env.owner), c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{env.owner.ID, env.alice.ID}, env.memberIDs(t))

	notes := env.notifications(t, env.alice)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationSuccess, notes[0].Type)
	assert.Equal(t, "Your application to join Coral Reef Survey was accepted", notes[0].Message)
}

func TestResolve_DoubleAcceptFails(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	_, err := env.reg.Resolve(ctx, as(env.bob), c.ID, Accept)
	require.NoError(t, err)
	first, err := env.reg.Get(ctx, admin, c.ID)
	require.NoError(t, err)

	_, err = env.reg.Resolve(ctx, as(env.bob), c.ID, Accept)
	require.Error(t, err)
	assert.True(t, apperr.InvalidState.Has(err))
	assert.Contains(t, err.Error(), "not found or already responded to")

	second, err := env.reg.Get(ctx, admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "record unchanged by the failed transition")
	assert.Equal(t, []string{env.owner.ID, env.bob.ID}, env.memberIDs(t))

	_, err = env.reg.DeclineInvite(ctx, as(env.bob), c.ID)
	assert.True(t, apperr.InvalidState.Has(err))

	notes := env.notifications(t, env.owner)
	assert.Len(t, notes, 1, "no notification for rejected transitions")
}

func TestResolve_DeclineLeavesProjectUntouched(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	declined, err := env.reg.DeclineInvite(ctx, as(env.bob), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, declined.Status)
	assert.Equal(t, []string{env.owner.ID}, env.memberIDs(t))

	notes := env.notifications(t, env.owner)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationInviteDeclined, notes[0].Type)

	_, err = env.reg.Resolve(ctx, as(env.bob), c.ID, Accept)
	assert.True(t, apperr.InvalidState.Has(err))
	assert.Equal(t, []string{env.owner.ID}, env.memberIDs(t))
}

func TestResolve_ConcurrentAcceptsSucceedOnce(t *testing.T) {
	env := setup(t)
	c := env.invite(t, env.bob)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		invalid   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.reg.Resolve(context.Background(), as(env.bob), c.ID, Accept)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.InvalidState.Has(err):
				invalid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, invalid)
	assert.Equal(t, []string{env.owner.ID, env.bob.ID}, env.memberIDs(t))
	assert.Len(t, env.notifications(t, env.owner), 1)
}

func TestResolve_Authorization(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	_, err := env.reg.Resolve(ctx, as(env.alice), c.ID, Accept)
	assert.True(t, apperr.Forbidden.Has(err))

	_, err = env.reg.Resolve(ctx, as(env.owner), c.ID, Accept)
	assert.True(t, apperr.Forbidden.Has(err), "the sender cannot accept their own invite")

	_, err = env.reg.AcceptApplication(ctx, as(env.bob), c.ID)
	assert.True(t, apperr.InvalidState.Has(err))

	_, err = env.reg.Resolve(ctx, as(env.bob), "missing", Accept)
	assert.True(t, apperr.NotFound.Has(err))

	_, err = env.reg.Get(ctx, as(env.alice), c.ID)
	assert.True(t, apperr.Forbidden.Has(err))

	// Admins bypass the receiver check.
	_, err = env.reg.Resolve(ctx, admin, c.ID, Decline)
	require.NoError(t, err)
}

func TestDelete(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	err := env.reg.Delete(ctx, as(env.bob), c.ID)
	assert.True(t, apperr.Forbidden.Has(err))

	require.NoError(t, env.reg.Delete(ctx, as(env.owner), c.ID))

	_, err = env.reg.Get(ctx, admin, c.ID)
	assert.True(t, apperr.NotFound.Has(err))

	err = env.reg.Delete(ctx, admin, c.ID)
	assert.True(t, apperr.NotFound.Has(err))
}

func TestUpdate_AdminOnly(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	msg := "updated"
	_, err := env.reg.Update(ctx, as(env.owner), c.ID, UpdatePatch{Message: &msg})
	assert.True(t, apperr.Forbidden.Has(err))

	bad := models.CollaborationStatus("Maybe")
	_, err = env.reg.Update(ctx, admin, c.ID, UpdatePatch{Status: &bad})
	assert.True(t, apperr.Validation.Has(err))

	status := models.StatusDeclined
	updated, err := env.reg.Update(ctx, admin, c.ID, UpdatePatch{Message: &msg, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Message)
	assert.Equal(t, models.StatusDeclined, updated.Status)
	assert.NotNil(t, updated.RespondedAt)

	_, err = env.reg.Update(ctx, admin, "missing", UpdatePatch{Message: &msg})
	assert.True(t, apperr.NotFound.Has(err))
}

func TestListApplications(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.reg.Create(ctx, as(env.alice), CreateInput{
		SenderID:  env.alice.ID,
		ProjectID: env.project.ID,
		Type:      models.CollaborationApplication,
	})
	require.NoError(t, err)
	env.invite(t, env.bob)

	forOwner, err := env.reg.ListApplications(ctx, env.owner.ID)
	require.NoError(t, err)
	require.Len(t, forOwner, 1)
	assert.Equal(t, "Coral Reef Survey", forOwner[0].ProjectName)
	assert.Equal(t, "alice", forOwner[0].SenderUsername)

	forBob, err := env.reg.ListApplications(ctx, env.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, forBob)
	assert.NotNil(t, forBob)

	_, err = env.reg.List(ctx, as(env.owner))
	assert.True(t, apperr.Forbidden.Has(err))
}

func TestResolve_DeletedProject(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	require.NoError(t, env.store.Projects().Delete(ctx, env.project.ID))

	_, err := env.reg.AcceptInvite(ctx, as(env.bob), c.ID)
	require.Error(t, err)
	assert.True(t, apperr.NotFound.Has(err), "got %v", err)
	assert.False(t, apperr.Persistence.Has(err))
}

func TestResolve_OrphanedRecord(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	orphan := &models.Collaboration{
		ID:         uuid.New().String(),
		SenderID:   env.owner.ID,
		ReceiverID: env.bob.ID,
		ProjectID:  uuid.New().String(),
		Type:       models.CollaborationInvite,
		Status:     models.StatusPending,
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}
	require.NoError(t, env.store.Collaborations().Create(ctx, orphan))

	_, err := env.reg.AcceptInvite(ctx, as(env.bob), orphan.ID)
	require.Error(t, err)
	assert.True(t, apperr.NotFound.Has(err), "got %v", err)

	got, err := env.reg.Get(ctx, admin, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status, "failed accept leaves the record pending")

	declined, err := env.reg.DeclineInvite(ctx, as(env.bob), orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, declined.Status)
}

func TestResolve_SeesAdminUpdate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.invite(t, env.bob)

	application := models.CollaborationApplication
	_, err := env.reg.Update(ctx, admin, c.ID, UpdatePatch{Type: &application})
	require.NoError(t, err)
	_, err = env.reg.AcceptInvite(ctx, as(env.bob), c.ID)
	assert.True(t, apperr.InvalidState.Has(err), "got %v", err)

	receiver := env.alice.ID
	_, err = env.reg.Update(ctx, admin, c.ID, UpdatePatch{ReceiverID: &receiver})
	require.NoError(t, err)
	_, err = env.reg.Resolve(ctx, as(env.bob), c.ID, Accept)
	assert.True(t, apperr.Forbidden.Has(err), "got %v", err)

	assert.Equal(t, []string{env.owner.ID}, env.memberIDs(t))
}
