package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teamhive/collab-api/internal/models"
)

// ChatRepository persists chat threads and their membership rows.
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	FindByID(ctx context.Context, id uint) (models.Chat, error)
	FindByProjectID(ctx context.Context, projectID uint) (models.Chat, error)
	FindByTaskID(ctx context.Context, taskID uint) (models.Chat, error)
	FindByPairKey(ctx context.Context, pairKey string) (models.Chat, error)
	ListForUser(ctx context.Context, userID string) ([]models.Chat, error)
	Touch(ctx context.Context, id uint, at time.Time) error
	Delete(ctx context.Context, id uint) error

	AddMember(ctx context.Context, chatID uint, userID string) (bool, error)
	RemoveMember(ctx context.Context, chatID uint, userID string) error
	IsMember(ctx context.Context, chatID uint, userID string) (bool, error)
	ListMembers(ctx context.Context, chatID uint) ([]models.ChatMember, error)
	ListMemberIDs(ctx context.Context, chatID uint) ([]string, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(ctx context.Context, chat *models.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

func (r *chatRepository) FindByID(ctx context.Context, id uint) (models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).First(&chat, id).Error; err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) FindByProjectID(ctx context.Context, projectID uint) (models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&chat).Error; err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) FindByTaskID(ctx context.Context, taskID uint) (models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&chat).Error; err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) FindByPairKey(ctx context.Context, pairKey string) (models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&chat).Error; err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_members ON chat_members.chat_id = chats.id").
		Where("chat_members.user_id = ?", userID).
		Order("chats.updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *chatRepository) Touch(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", id).Update("updated_at", at).Error
}

func (r *chatRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", id).Delete(&models.ChatMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Chat{}, id).Error
	})
}

// AddMember upserts a membership row. Returns false when the row already
// existed, which idempotent callers treat as success.
func (r *chatRepository) AddMember(ctx context.Context, chatID uint, userID string) (bool, error) {
	member := models.ChatMember{ChatID: chatID, UserID: userID}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *chatRepository) RemoveMember(ctx context.Context, chatID uint, userID string) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&models.ChatMember{}).Error
}

func (r *chatRepository) IsMember(ctx context.Context, chatID uint, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *chatRepository) ListMembers(ctx context.Context, chatID uint) ([]models.ChatMember, error) {
	var members []models.ChatMember
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *chatRepository) ListMemberIDs(ctx context.Context, chatID uint) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ?", chatID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
