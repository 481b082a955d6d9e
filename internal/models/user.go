package models

import "time"

// User represents an account that can join projects, tasks and chats.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string    `gorm:"size:255;uniqueIndex;not null" json:"display_name"`
	Email       string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
