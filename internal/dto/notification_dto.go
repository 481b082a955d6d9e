package dto

import (
	"time"

	"github.com/teamhive/collab-api/internal/models"
)

// NotificationCreateRequest describes the payload to persist a notification.
type NotificationCreateRequest struct {
	RecipientID     string            `json:"recipient_id" validate:"required,max=64"`
	Type            string            `json:"type" validate:"required,max=64"`
	Title           string            `json:"title" validate:"omitempty,max=255"`
	Message         string            `json:"message" validate:"required,min=1,max=2000"`
	RelatedEntityID *uint             `json:"related_entity_id"`
	Metadata        map[string]string `json:"metadata"`
}

// NotificationListQuery filters the pull-based notification listing.
type NotificationListQuery struct {
	Read  *bool `query:"read"`
	Skip  int   `query:"skip" validate:"omitempty,min=0"`
	Limit int   `query:"limit" validate:"omitempty,min=1,max=100"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID              uint              `json:"id"`
	RecipientID     string            `json:"recipient_id"`
	Type            string            `json:"type"`
	Title           string            `json:"title,omitempty"`
	Message         string            `json:"message"`
	RelatedEntityID *uint             `json:"related_entity_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Read            bool              `json:"read"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewNotificationResponse converts a notification model into a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	response := NotificationResponse{
		ID:              model.ID,
		RecipientID:     model.RecipientID,
		Type:            model.Type,
		Title:           model.Title,
		Message:         model.Message,
		RelatedEntityID: model.RelatedEntityID,
		Read:            model.Read,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
	if model.Metadata != nil {
		response.Metadata = make(map[string]string, len(model.Metadata))
		for key, value := range model.Metadata {
			if str, ok := value.(string); ok {
				response.Metadata[key] = str
			}
		}
	}
	return response
}

// NewNotificationResponseSlice converts a slice of notifications into DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
