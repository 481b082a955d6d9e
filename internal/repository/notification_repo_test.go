package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/models"
)

func TestNotificationRepositoryListFiltersByReadState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Notification{RecipientID: "alice", Type: models.NotificationChatPing, Message: "one"}))
	require.NoError(t, repo.Create(ctx, &models.Notification{RecipientID: "alice", Type: models.NotificationChatPing, Message: "two", Read: true}))
	require.NoError(t, repo.Create(ctx, &models.Notification{RecipientID: "bob", Type: models.NotificationChatPing, Message: "other"}))

	unreadFilter := false
	unread, err := repo.ListByRecipient(ctx, "alice", &unreadFilter, 0, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, "one", unread[0].Message)

	all, err := repo.ListByRecipient(ctx, "alice", nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	count, err := repo.CountUnread(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestNotificationRepositoryMarkReadIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	notification := models.Notification{RecipientID: "alice", Type: models.NotificationChatPing, Message: "ping"}
	require.NoError(t, repo.Create(ctx, &notification))

	marked, err := repo.MarkRead(ctx, notification.ID, "alice")
	require.NoError(t, err)
	require.True(t, marked.Read)

	again, err := repo.MarkRead(ctx, notification.ID, "alice")
	require.NoError(t, err)
	require.True(t, again.Read)

	_, err = repo.MarkRead(ctx, notification.ID, "bob")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound, "recipients cannot touch each other's notifications")
}

func TestNotificationRepositoryDeleteScopedToRecipient(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	notification := models.Notification{RecipientID: "alice", Type: models.NotificationChatPing, Message: "ping"}
	require.NoError(t, repo.Create(ctx, &notification))

	require.ErrorIs(t, repo.Delete(ctx, notification.ID, "bob"), gorm.ErrRecordNotFound)
	require.NoError(t, repo.Delete(ctx, notification.ID, "alice"))
	require.ErrorIs(t, repo.Delete(ctx, notification.ID, "alice"), gorm.ErrRecordNotFound)
}

func TestNotificationRepositoryDeleteReadHonorsCutoff(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	old := models.Notification{RecipientID: "alice", Type: models.NotificationChatPing, Message: "old", Read: true, CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := models.Notification{RecipientID: "alice", Type: models.NotificationChatPing, Message: "fresh", Read: true}
	unread := models.Notification{RecipientID: "alice", Type: models.NotificationChatPing, Message: "unread", CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, repo.Create(ctx, &old))
	require.NoError(t, repo.Create(ctx, &fresh))
	require.NoError(t, repo.Create(ctx, &unread))

	deleted, err := repo.DeleteRead(ctx, "", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	remaining, err := repo.ListByRecipient(ctx, "alice", nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 2, "unread and recent notifications survive the sweep")
}

func TestNotificationRepositoryExistsSince(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	projectID := uint(7)
	notification := models.Notification{
		RecipientID:     "alice",
		Type:            models.NotificationBudgetThreshold,
		Message:         "80%",
		RelatedEntityID: &projectID,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, repo.Create(ctx, &notification))

	seen, err := repo.ExistsSince(ctx, "alice", models.NotificationBudgetThreshold, projectID, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = repo.ExistsSince(ctx, "alice", models.NotificationBudgetThreshold, projectID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, seen, "notifications outside the window do not suppress")

	seen, err = repo.ExistsSince(ctx, "alice", models.NotificationBudgetThreshold, 99, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.False(t, seen)
}
