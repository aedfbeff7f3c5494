package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

func insertMessage(t *testing.T, store *SQLiteStorage, sender, receiver, project string, at time.Time) *models.Message {
	t.Helper()
	m := &models.Message{
		ID:         uuid.New().String(),
		SenderID:   sender,
		ReceiverID: receiver,
		ProjectID:  project,
		Content:    "hello",
		CreatedAt:  at,
	}
	require.NoError(t, store.Messages().Create(context.Background(), m))
	return m
}

func TestMessageRepository_Ordering(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	m1 := insertMessage(t, store, "a", "b", "p", testEpoch)
	m2 := insertMessage(t, store, "b", "a", "p", testEpoch.Add(time.Minute))
	m3 := insertMessage(t, store, "a", "", "p", testEpoch.Add(2*time.Minute))

	thread, err := store.Messages().ListByProject(ctx, "p")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, []string{thread[0].ID, thread[1].ID, thread[2].ID})

	inbox, err := store.Messages().ListByUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, inbox, 3)
	assert.Equal(t, []string{m3.ID, m2.ID, m1.ID}, []string{inbox[0].ID, inbox[1].ID, inbox[2].ID})

	between, err := store.Messages().ListBetween(ctx, "b", "a")
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, m1.ID, between[0].ID)
	assert.Equal(t, m2.ID, between[1].ID)
	assert.Empty(t, thread[2].ReceiverID)
}

func TestMessageRepository_Attachment(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	m := &models.Message{
		ID:         uuid.New().String(),
		SenderID:   "a",
		ReceiverID: "b",
		File:       &models.Attachment{Data: []byte("%PDF-1.4"), ContentType: "application/pdf", Name: "paper.pdf"},
		CreatedAt:  testEpoch,
	}
	require.NoError(t, store.Messages().Create(ctx, m))

	got, err := store.Messages().GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.HasFile())
	assert.Equal(t, []byte("%PDF-1.4"), got.File.Data)
	assert.Equal(t, "application/pdf", got.File.ContentType)
	assert.Equal(t, "paper.pdf", got.File.Name)
}

func TestMessageRepository_FlagsAndUnreadCounts(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	m1 := insertMessage(t, store, "a", "r", "", testEpoch)
	insertMessage(t, store, "a", "r", "", testEpoch.Add(time.Second))
	insertMessage(t, store, "c", "r", "", testEpoch.Add(2*time.Second))
	insertMessage(t, store, "r", "a", "", testEpoch.Add(3*time.Second))

	counts, err := store.Messages().UnreadCounts(ctx, "r")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, &models.UnreadCount{SenderID: "a", Count: 2}, counts[0])
	assert.Equal(t, &models.UnreadCount{SenderID: "c", Count: 1}, counts[1])

	found, err := store.Messages().MarkRead(ctx, m1.ID, testEpoch.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	// Re-marking keeps the first timestamp.
	found, err = store.Messages().MarkRead(ctx, m1.ID, testEpoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	got, err := store.Messages().GetByID(ctx, m1.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)
	assert.False(t, got.Delivered)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(testEpoch.Add(time.Hour)))

	found, err = store.Messages().MarkDelivered(ctx, m1.ID, testEpoch.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, found)
	got, err = store.Messages().GetByID(ctx, m1.ID)
	require.NoError(t, err)
	assert.True(t, got.Read, "read stays set")
	assert.True(t, got.Delivered)

	counts, err = store.Messages().UnreadCounts(ctx, "r")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.EqualValues(t, 1, counts[0].Count)

	found, err = store.Messages().MarkRead(ctx, "missing", testEpoch)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMessageRepository_DeleteConversation(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	insertMessage(t, store, "a", "b", "", testEpoch)
	insertMessage(t, store, "b", "a", "", testEpoch.Add(time.Second))
	keep := insertMessage(t, store, "a", "c", "", testEpoch.Add(2*time.Second))

	n, err := store.Messages().DeleteConversation(ctx, "a", "b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	between, err := store.Messages().ListBetween(ctx, "a", "b")
	require.NoError(t, err)
	assert.Empty(t, between)

	got, err := store.Messages().GetByID(ctx, keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	existed, err := store.Messages().Delete(ctx, keep.ID)
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestNotificationRepository_Idempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	n := &models.Notification{
		ID:        "n-1",
		UserID:    "a",
		Message:   "Your invite was accepted",
		Type:      models.NotificationSuccess,
		CreatedAt: testEpoch,
	}
	require.NoError(t, store.Notifications().Create(ctx, n))
	require.NoError(t, store.Notifications().Create(ctx, n))

	list, err := store.Notifications().ListByUser(ctx, "a", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationSuccess, list[0].Type)

	found, err := store.Notifications().MarkRead(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, found)

	unread, err := store.Notifications().ListByUser(ctx, "a", true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	event := &models.OutboxEvent{
		ID:          "e-1",
		EventType:   "collaboration.accepted",
		AggregateID: "c-1",
		Payload:     []byte(`{"user_id":"a"}`),
		CreatedAt:   testEpoch,
	}
	require.NoError(t, store.Outbox().Enqueue(ctx, event))

	leased, err := store.Outbox().Lease(ctx, 10, testEpoch, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 1)
	assert.Equal(t, models.OutboxLeased, leased[0].Status)
	assert.JSONEq(t, `{"user_id":"a"}`, string(leased[0].Payload))

	// Leased events are invisible until the lease expires.
	again, err := store.Outbox().Lease(ctx, 10, testEpoch.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, store.Outbox().MarkRetry(ctx, "e-1", "slack down", testEpoch.Add(5*time.Minute)))
	notYet, err := store.Outbox().Lease(ctx, 10, testEpoch.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, notYet)

	due, err := store.Outbox().Lease(ctx, 10, testEpoch.Add(5*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].AttemptCount)
	assert.Equal(t, "slack down", due[0].LastError)

	require.NoError(t, store.Outbox().MarkFailed(ctx, "e-1", "still down"))
	requeued, err := store.Outbox().Requeue(ctx, "e-1", testEpoch.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, requeued)

	due, err = store.Outbox().Lease(ctx, 10, testEpoch.Add(10*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, store.Outbox().MarkProcessed(ctx, "e-1", testEpoch.Add(11*time.Minute)))

	counts, err := store.Outbox().CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[models.OutboxProcessed])

	processed, err := store.Outbox().List(ctx, models.OutboxProcessed, 10)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	require.NotNil(t, processed[0].ProcessedAt)
}
