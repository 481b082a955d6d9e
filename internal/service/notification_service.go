package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/models"
	"github.com/teamhive/collab-api/internal/observability"
	"github.com/teamhive/collab-api/internal/repository"
)

// NotificationPusher delivers a freshly persisted notification to the
// recipient's live realtime connection, if one exists. It reports whether a
// local connection received the event; cross-node delivery rides the event
// bus inside the realtime gateway.
type NotificationPusher interface {
	PushNotification(recipientID string, notification dto.NotificationResponse) bool
}

// thresholdDedupWindow bounds how often a threshold alert may re-fire for the
// same entity and recipient.
const thresholdDedupWindow = 24 * time.Hour

// NotificationService persists notifications and pushes them to online
// recipients. Persistence always precedes push: a recipient who is offline
// at dispatch time finds the notification via the pull API.
type NotificationService interface {
	Dispatch(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	DispatchBudgetThreshold(ctx context.Context, projectID uint, projectName string, recipientIDs []string, percent int) error
	List(ctx context.Context, recipientID string, query dto.NotificationListQuery) ([]dto.NotificationResponse, error)
	Get(ctx context.Context, id uint, recipientID string) (dto.NotificationResponse, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id uint, recipientID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id uint, recipientID string) error
	DeleteAllRead(ctx context.Context, recipientID string) (int64, error)
	SetPusher(pusher NotificationPusher)
}

type notificationService struct {
	notifications repository.NotificationRepository
	validator     *validator.Validate
	logger        zerolog.Logger
	now           func() time.Time

	mu     sync.RWMutex
	pusher NotificationPusher
}

// NewNotificationService constructs the notification service. The realtime
// pusher is attached later via SetPusher, after the gateway exists.
func NewNotificationService(notifications repository.NotificationRepository, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		notifications: notifications,
		validator:     validate,
		logger:        logger.With().Str("component", "notification_service").Logger(),
		now:           time.Now,
	}
}

func (s *notificationService) SetPusher(pusher NotificationPusher) {
	s.mu.Lock()
	s.pusher = pusher
	s.mu.Unlock()
}

// Dispatch persists the notification, then attempts realtime delivery. A
// push failure never unwinds the write; the row stays queryable either way.
func (s *notificationService) Dispatch(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, apperr.Wrap(apperr.KindValidation, "invalid notification", err)
	}

	notification := models.Notification{
		RecipientID:     payload.RecipientID,
		Type:            payload.Type,
		Title:           payload.Title,
		Message:         payload.Message,
		RelatedEntityID: payload.RelatedEntityID,
	}
	if len(payload.Metadata) > 0 {
		notification.Metadata = make(datatypes.JSONMap, len(payload.Metadata))
		for key, value := range payload.Metadata {
			notification.Metadata[key] = value
		}
	}

	if err := s.notifications.Create(ctx, &notification); err != nil {
		s.logger.Error().Err(err).Str("recipient_id", payload.RecipientID).Str("type", payload.Type).Msg("notification persist failed")
		return dto.NotificationResponse{}, apperr.Store(err)
	}

	observability.NotificationsCreated().WithLabelValues(notification.Type).Inc()

	response := dto.NewNotificationResponse(notification)
	s.push(response)
	return response, nil
}

// DispatchBudgetThreshold fans a budget alert out to the given recipients,
// suppressing duplicates inside the dedup window so a budget hovering around
// the threshold does not spam members.
func (s *notificationService) DispatchBudgetThreshold(ctx context.Context, projectID uint, projectName string, recipientIDs []string, percent int) error {
	since := s.now().Add(-thresholdDedupWindow)

	for _, recipientID := range recipientIDs {
		seen, err := s.notifications.ExistsSince(ctx, recipientID, models.NotificationBudgetThreshold, projectID, since)
		if err != nil {
			s.logger.Warn().Err(err).Str("recipient_id", recipientID).Uint("project_id", projectID).Msg("threshold dedup check failed")
			continue
		}
		if seen {
			continue
		}

		_, err = s.Dispatch(ctx, dto.NotificationCreateRequest{
			RecipientID:     recipientID,
			Type:            models.NotificationBudgetThreshold,
			Title:           "Budget threshold reached",
			Message:         fmt.Sprintf("Project %s has used %d%% of its budget", projectName, percent),
			RelatedEntityID: &projectID,
			Metadata:        map[string]string{"percent": fmt.Sprintf("%d", percent)},
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("recipient_id", recipientID).Uint("project_id", projectID).Msg("threshold notification dispatch failed")
		}
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, recipientID string, query dto.NotificationListQuery) ([]dto.NotificationResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid notification query", err)
	}

	notifications, err := s.notifications.ListByRecipient(ctx, recipientID, query.Read, query.Skip, query.Limit)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) Get(ctx context.Context, id uint, recipientID string) (dto.NotificationResponse, error) {
	notification, err := s.notifications.FindByID(ctx, id, recipientID)
	if err != nil {
		return dto.NotificationResponse{}, translateStoreErr(err, "notification not found")
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, apperr.Store(err)
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, recipientID string) (dto.NotificationResponse, error) {
	notification, err := s.notifications.MarkRead(ctx, id, recipientID)
	if err != nil {
		return dto.NotificationResponse{}, translateStoreErr(err, "notification not found")
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	updated, err := s.notifications.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, apperr.Store(err)
	}
	return updated, nil
}

func (s *notificationService) Delete(ctx context.Context, id uint, recipientID string) error {
	if err := s.notifications.Delete(ctx, id, recipientID); err != nil {
		return translateStoreErr(err, "notification not found")
	}
	return nil
}

func (s *notificationService) DeleteAllRead(ctx context.Context, recipientID string) (int64, error) {
	deleted, err := s.notifications.DeleteRead(ctx, recipientID, time.Time{})
	if err != nil {
		return 0, apperr.Store(err)
	}
	return deleted, nil
}

func (s *notificationService) push(notification dto.NotificationResponse) {
	s.mu.RLock()
	pusher := s.pusher
	s.mu.RUnlock()

	if pusher == nil {
		return
	}
	if pusher.PushNotification(notification.RecipientID, notification) {
		observability.NotificationsPushed().WithLabelValues(notification.Type).Inc()
	}
}
