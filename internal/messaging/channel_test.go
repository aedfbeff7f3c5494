package messaging

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
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

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

type testEnv struct {
	store   *storage.SQLiteStorage
	ch      *Channel
	owner   *models.User
	alice   *models.User
	bob     *models.User
	project *models.Project
}

func setup(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	log := zaptest.NewLogger(t)
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "messaging.db"), log)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	clock := &tickingClock{now: epoch}
	env := &testEnv{
		store: store,
		ch:    New(store, log, append([]Option{WithClock(clock.Now)}, opts...)...),
	}
	env.owner = env.createUser(t, "owner")
	env.alice = env.createUser(t, "alice")
	env.bob = env.createUser(t, "bob")

	env.project = &models.Project{
		ID:        uuid.New().String(),
		Name:      "Glacier Melt",
		OwnerID:   env.owner.ID,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
	ctx := context.Background()
	require.NoError(t, store.Projects().Create(ctx, env.project))
	_, err := store.Projects().AddCollaborator(ctx, env.project.ID, env.alice.ID, epoch)
	require.NoError(t, err)
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

func (e *testEnv) send(t *testing.T, from, to *models.User, content string) *models.Message {
	t.Helper()
	m, err := e.ch.Send(context.Background(), as(from), SendInput{
		SenderID:   from.ID,
		ReceiverID: to.ID,
		Content:    content,
	}, nil)
	require.NoError(t, err)
	return m
}

func as(u *models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: u.Role}
}

var admin = models.Actor{UserID: "root", Role: models.RoleAdmin}

func TestSend_MarkReadClearsUnreadCount(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	m, err := env.ch.Send(ctx, as(env.owner), SendInput{
		SenderID:   env.owner.ID,
		ReceiverID: env.bob.ID,
		ProjectID:  env.project.ID,
		Content:    "hi",
	}, nil)
	require.NoError(t, err)
	assert.False(t, m.Read)
	assert.False(t, m.Delivered)

	counts, err := env.ch.UnreadCounts(ctx, env.bob.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.EqualValues(t, 1, counts[0].Count)

	read, err := env.ch.MarkRead(ctx, as(env.bob), m.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	counts, err = env.ch.UnreadCounts(ctx, env.bob.ID)
	require.NoError(t, err)
	for _, c := range counts {
		if c.SenderID == env.owner.ID {
			assert.Zero(t, c.Count)
		}
	}

	again, err := env.ch.MarkRead(ctx, as(env.bob), m.ID)
	require.NoError(t, err)
	assert.True(t, again.Read)
	assert.True(t, again.ReadAt.Equal(*read.ReadAt), "re-marking keeps the first timestamp")

	delivered, err := env.ch.MarkDelivered(ctx, as(env.bob), m.ID)
	require.NoError(t, err)
	assert.True(t, delivered.Delivered)
	assert.True(t, delivered.Read)
}

func TestUnreadCounts_SumEqualsTotal(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.send(t, env.alice, env.bob, "1")
	env.send(t, env.alice, env.bob, "2")
	env.send(t, env.owner, env.bob, "3")
	env.send(t, env.bob, env.alice, "reply")

	counts, err := env.ch.UnreadCounts(ctx, env.bob.ID)
	require.NoError(t, err)
	bySender := map[string]int64{}
	var total int64
	for _, c := range counts {
		bySender[c.SenderID] = c.Count
		total += c.Count
	}
	assert.EqualValues(t, 2, bySender[env.alice.ID])
	assert.EqualValues(t, 1, bySender[env.owner.ID])
	assert.EqualValues(t, 3, total)

	empty, err := env.ch.UnreadCounts(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMark_Errors(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	m := env.send(t, env.alice, env.bob, "hello")

	_, err := env.ch.MarkRead(ctx, as(env.bob), "missing")
	assert.True(t, apperr.NotFound.Has(err))

	_, err = env.ch.MarkDelivered(ctx, admin, "missing")
	assert.True(t, apperr.NotFound.Has(err))

	_, err = env.ch.MarkRead(ctx, as(env.owner), m.ID)
	assert.True(t, apperr.Forbidden.Has(err))

	got, err := env.ch.Get(ctx, as(env.alice), m.ID)
	require.NoError(t, err)
	assert.False(t, got.Read, "failed attempts leave the flag untouched")
}

func TestDeleteConversation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.send(t, env.alice, env.bob, "a->b")
	env.send(t, env.bob, env.alice, "b->a")
	keep := env.send(t, env.alice, env.owner, "a->owner")

	_, err := env.ch.DeleteConversation(ctx, as(env.owner), env.alice.ID, env.bob.ID)
	assert.True(t, apperr.Forbidden.Has(err))

	n, err := env.ch.DeleteConversation(ctx, as(env.bob), env.alice.ID, env.bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	between, err := env.ch.ListBetween(ctx, as(env.alice), env.bob.ID, env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, between)

	_, err = env.ch.Get(ctx, as(env.alice), keep.ID)
	assert.NoError(t, err)
}

func TestListOrdering(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		_, err := env.ch.Send(ctx, as(env.alice), SendInput{ProjectID: env.project.ID, Content: content}, nil)
		require.NoError(t, err)
	}
	env.send(t, env.owner, env.alice, "direct")

	thread, err := env.ch.ListByProject(ctx, as(env.owner), env.project.ID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	for i := 1; i < len(thread); i++ {
		assert.False(t, thread[i].CreatedAt.Before(thread[i-1].CreatedAt))
	}
	assert.Equal(t, "first", thread[0].Content)
	assert.Equal(t, env.alice.ID, thread[0].SenderID, "sender defaults to the actor")

	inbox, err := env.ch.ListByUser(ctx, env.alice.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 4)
	for i := 1; i < len(inbox); i++ {
		assert.False(t, inbox[i].CreatedAt.After(inbox[i-1].CreatedAt))
	}
	assert.Equal(t, "direct", inbox[0].Content)
}

func TestProjectThreadRequiresMembership(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.ch.Send(ctx, as(env.bob), SendInput{ProjectID: env.project.ID, Content: "let me in"}, nil)
	assert.True(t, apperr.Forbidden.Has(err))

	_, err = env.ch.ListByProject(ctx, as(env.bob), env.project.ID)
	assert.True(t, apperr.Forbidden.Has(err))

	_, err = env.ch.ListByProject(ctx, as(env.bob), "missing")
	assert.True(t, apperr.NotFound.Has(err))

	thread, err := env.ch.ListByProject(ctx, admin, env.project.ID)
	require.NoError(t, err)
	assert.Empty(t, thread)
}

func TestSend_Validation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor models.Actor
		input SendInput
		file  *models.Attachment
		class func(error) bool
	}{
		{"no destination", as(env.alice), SendInput{Content: "x"}, nil, apperr.Validation.Has},
		{"no body", as(env.alice), SendInput{ReceiverID: env.bob.ID}, nil, apperr.Validation.Has},
		{"impersonation", as(env.alice), SendInput{SenderID: env.bob.ID, ReceiverID: env.owner.ID, Content: "x"}, nil, apperr.Forbidden.Has},
		{"unknown receiver", as(env.alice), SendInput{ReceiverID: "ghost", Content: "x"}, nil, apperr.NotFound.Has},
		{
			"disallowed attachment", as(env.alice), SendInput{ReceiverID: env.bob.ID},
			&models.Attachment{Data: []byte("MZ\x90\x00"), ContentType: "application/x-msdownload", Name: "run.exe"},
			apperr.Validation.Has,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ch.Send(ctx, tt.actor, tt.input, tt.file)
			require.Error(t, err)
			assert.True(t, tt.class(err), "unexpected error class: %v", err)
		})
	}
}

func TestAttachment(t *testing.T) {
	env := setup(t, WithPolicy(Policy{MaxSize: 16, AllowedTypes: []string{"text/plain"}}))
	ctx := context.Background()

	m, err := env.ch.Send(ctx, as(env.alice), SendInput{ReceiverID: env.bob.ID},
		&models.Attachment{Data: []byte("results"), ContentType: "text/plain; charset=utf-8", Name: "notes.txt"})
	require.NoError(t, err)
	assert.Empty(t, m.Content)

	file, err := env.ch.Attachment(ctx, as(env.bob), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("results"), file.Data)
	assert.Equal(t, "text/plain", file.ContentType)
	assert.Equal(t, "notes.txt", file.Name)

	_, err = env.ch.Attachment(ctx, as(env.owner), m.ID)
	assert.True(t, apperr.Forbidden.Has(err))

	plain := env.send(t, env.alice, env.bob, "no file")
	_, err = env.ch.Attachment(ctx, as(env.bob), plain.ID)
	assert.True(t, apperr.NotFound.Has(err))

	_, err = env.ch.Send(ctx, as(env.alice), SendInput{ReceiverID: env.bob.ID},
		&models.Attachment{Data: make([]byte, 17), ContentType: "text/plain", Name: "big.txt"})
	assert.True(t, apperr.Validation.Has(err))
}

func TestDelete(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	m := env.send(t, env.alice, env.bob, "oops")

	err := env.ch.Delete(ctx, as(env.bob), m.ID)
	assert.True(t, apperr.Forbidden.Has(err))

	require.NoError(t, env.ch.Delete(ctx, as(env.alice), m.ID))

	err = env.ch.Delete(ctx, as(env.alice), m.ID)
	assert.True(t, apperr.NotFound.Has(err))
}
