package models

import "time"

// Chat kinds. Project and task chats are created lazily and named after the
// owning entity; personal chats are unique per unordered user pair.
const (
	ChatKindProject  = "project"
	ChatKindTask     = "task"
	ChatKindPersonal = "personal"
	ChatKindGroup    = "group"
)

// Chat is a message thread scoped to a project, task, personal pair or ad-hoc group.
type Chat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"size:16;not null;index" json:"kind"`
	Name      string    `gorm:"size:255" json:"name"`
	ProjectID *uint     `gorm:"uniqueIndex" json:"project_id,omitempty"`
	TaskID    *uint     `gorm:"uniqueIndex" json:"task_id,omitempty"`
	PairKey   *string   `gorm:"size:160;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMember grants a user read/write access to a chat.
type ChatMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	ChatID   uint      `gorm:"not null;uniqueIndex:idx_chat_user" json:"chat_id"`
	UserID   string    `gorm:"size:64;not null;uniqueIndex:idx_chat_user" json:"user_id"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// Message is an immutable chat entry; only its read markers grow, and the
// sender may delete it.
type Message struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	ChatID    uint          `gorm:"not null;index:idx_chat_created" json:"chat_id"`
	SenderID  string        `gorm:"size:64;not null;index" json:"sender_id"`
	Content   string        `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time     `gorm:"index:idx_chat_created" json:"created_at"`
	Sender    *User         `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Reads     []MessageRead `gorm:"foreignKey:MessageID" json:"reads,omitempty"`
}

// MessageRead marks a message as read by a user. The sender's row is written
// together with the message.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_message_user" json:"message_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_message_user" json:"user_id"`
	ReadAt    time.Time `gorm:"autoCreateTime" json:"read_at"`
}

// IsReadBy reports whether the message carries a read marker for the user.
func (m Message) IsReadBy(userID string) bool {
	for _, read := range m.Reads {
		if read.UserID == userID {
			return true
		}
	}
	return false
}
