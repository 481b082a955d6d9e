package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types understood by clients.
const (
	NotificationChatPing        = "chat_ping"
	NotificationMemberAdded     = "member_added"
	NotificationInviteAccepted  = "invite_accepted"
	NotificationBudgetThreshold = "budget_threshold"
)

// Notification is a durable per-user alert. The row is always written before
// any realtime push is attempted.
type Notification struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	RecipientID     string            `gorm:"size:64;not null;index" json:"recipient_id"`
	Type            string            `gorm:"size:64;not null" json:"type"`
	Title           string            `gorm:"size:255" json:"title"`
	Message         string            `gorm:"type:text" json:"message"`
	RelatedEntityID *uint             `json:"related_entity_id,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	Read            bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
