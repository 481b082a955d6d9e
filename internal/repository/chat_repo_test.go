package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.ProjectInvitation{},
		&models.Task{},
		&models.TaskMember{},
		&models.Chat{},
		&models.ChatMember{},
		&models.Message{},
		&models.MessageRead{},
		&models.Notification{},
	))
	return db
}

func TestChatRepositoryAddMemberIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	chat := models.Chat{Kind: models.ChatKindGroup, Name: "design"}
	require.NoError(t, repo.Create(ctx, &chat))

	created, err := repo.AddMember(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.AddMember(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.False(t, created, "second add of the same member must be a no-op")

	ok, err := repo.IsMember(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := repo.ListMemberIDs(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, ids)
}

func TestChatRepositoryListForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	mine := models.Chat{Kind: models.ChatKindGroup, Name: "mine"}
	other := models.Chat{Kind: models.ChatKindGroup, Name: "other"}
	require.NoError(t, repo.Create(ctx, &mine))
	require.NoError(t, repo.Create(ctx, &other))

	_, err := repo.AddMember(ctx, mine.ID, "alice")
	require.NoError(t, err)
	_, err = repo.AddMember(ctx, other.ID, "bob")
	require.NoError(t, err)

	chats, err := repo.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, mine.ID, chats[0].ID)
}

func TestChatRepositoryFindByPairKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	pairKey := "alice:bob"
	chat := models.Chat{Kind: models.ChatKindPersonal, PairKey: &pairKey}
	require.NoError(t, repo.Create(ctx, &chat))

	found, err := repo.FindByPairKey(ctx, pairKey)
	require.NoError(t, err)
	require.Equal(t, chat.ID, found.ID)

	_, err = repo.FindByPairKey(ctx, "bob:carol")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	duplicate := models.Chat{Kind: models.ChatKindPersonal, PairKey: &pairKey}
	require.Error(t, repo.Create(ctx, &duplicate), "pair key must be unique")
}

func TestChatRepositoryDeleteRemovesMembersAndMessages(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	messages := NewMessageRepository(db)
	ctx := context.Background()

	chat := models.Chat{Kind: models.ChatKindGroup, Name: "doomed"}
	require.NoError(t, repo.Create(ctx, &chat))
	_, err := repo.AddMember(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, messages.Create(ctx, &models.Message{ChatID: chat.ID, SenderID: "alice", Content: "bye"}))

	require.NoError(t, repo.Delete(ctx, chat.ID))

	_, err = repo.FindByID(ctx, chat.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var memberCount, messageCount int64
	require.NoError(t, db.Model(&models.ChatMember{}).Where("chat_id = ?", chat.ID).Count(&memberCount).Error)
	require.NoError(t, db.Model(&models.Message{}).Where("chat_id = ?", chat.ID).Count(&messageCount).Error)
	require.Zero(t, memberCount)
	require.Zero(t, messageCount)
}

func TestChatRepositoryTouchBumpsUpdatedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	chat := models.Chat{Kind: models.ChatKindGroup, Name: "touched"}
	require.NoError(t, repo.Create(ctx, &chat))

	later := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.Touch(ctx, chat.ID, later))

	found, err := repo.FindByID(ctx, chat.ID)
	require.NoError(t, err)
	require.WithinDuration(t, later, found.UpdatedAt, time.Second)
}
