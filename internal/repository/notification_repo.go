package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/models"
)

// NotificationRepository handles persistence for notification rows.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	FindByID(ctx context.Context, id uint, recipientID string) (models.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, read *bool, skip, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id uint, recipientID string) (models.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id uint, recipientID string) error
	DeleteRead(ctx context.Context, recipientID string, olderThan time.Time) (int64, error)
	// ExistsSince reports whether a notification of the given type and related
	// entity was created for the recipient within the window. Used by callers
	// that must not re-fire threshold alerts.
	ExistsSince(ctx context.Context, recipientID, notificationType string, relatedEntityID uint, since time.Time) (bool, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) FindByID(ctx context.Context, id uint, recipientID string) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&notification).Error
	if err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, read *bool, skip, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	query := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if read != nil {
		query = query.Where("read = ?", *read)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Offset(skip).Limit(limit).Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint, recipientID string) (models.Notification, error) {
	notification, err := r.FindByID(ctx, id, recipientID)
	if err != nil {
		return models.Notification{}, err
	}

	if notification.Read {
		return notification, nil
	}

	notification.Read = true
	if err := r.db.WithContext(ctx).Save(&notification).Error; err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) Delete(ctx context.Context, id uint, recipientID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteRead(ctx context.Context, recipientID string, olderThan time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Where("read = ?", true)
	if recipientID != "" {
		query = query.Where("recipient_id = ?", recipientID)
	}
	if !olderThan.IsZero() {
		query = query.Where("created_at < ?", olderThan)
	}

	result := query.Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) ExistsSince(ctx context.Context, recipientID, notificationType string, relatedEntityID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND type = ? AND related_entity_id = ? AND created_at >= ?",
			recipientID, notificationType, relatedEntityID, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
