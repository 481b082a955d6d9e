package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teamhive/collab-api/internal/models"
)

// MessageRepository persists chat messages and per-recipient read markers.
type MessageRepository interface {
	// Create stores the message together with the sender's read marker in one
	// transaction, so readBy always includes the sender.
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	// ListByChat returns up to limit messages in chronological order. Before
	// is a keyset cursor filtering to rows created strictly before it.
	ListByChat(ctx context.Context, chatID uint, before time.Time, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, chatID uint, userID string, messageIDs []uint) error
	Delete(ctx context.Context, id uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		read := models.MessageRead{MessageID: message.ID, UserID: message.SenderID}
		if err := tx.Create(&read).Error; err != nil {
			return err
		}
		message.Reads = append(message.Reads, read)
		return nil
	})
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Reads").
		Preload("Sender").
		First(&message, id).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) ListByChat(ctx context.Context, chatID uint, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	err := query.
		Preload("Reads").
		Preload("Sender").
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkRead inserts read markers for the given messages, restricted to the
// chat. Existing markers are left untouched, so repeated calls are no-ops.
func (r *messageRepository) MarkRead(ctx context.Context, chatID uint, userID string, messageIDs []uint) error {
	if len(messageIDs) == 0 {
		return nil
	}

	var inChat []uint
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_id = ? AND id IN ?", chatID, messageIDs).
		Pluck("id", &inChat).Error
	if err != nil {
		return err
	}
	if len(inChat) == 0 {
		return nil
	}

	reads := make([]models.MessageRead, 0, len(inChat))
	for _, id := range inChat {
		reads = append(reads, models.MessageRead{MessageID: id, UserID: userID})
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&reads).Error
}

func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.MessageRead{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, id).Error
	})
}
