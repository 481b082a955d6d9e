package models

import "time"

// Project is the top-level collaboration container.
type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	OwnerID   string    `gorm:"size:64;index" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectMember links a user to a project. Authoritative membership relation
// that the project chat's membership mirrors.
type ProjectMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_project_user" json:"project_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_project_user" json:"user_id"`
	Role      string    `gorm:"size:32;default:member" json:"role"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// Invitation lifecycle states.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
)

// ProjectInvitation is a pending offer to join a project. Accepting it creates
// the ProjectMember row and triggers chat membership sync.
type ProjectInvitation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	InviteeID string    `gorm:"size:64;not null;index" json:"invitee_id"`
	InviterID string    `gorm:"size:64" json:"inviter_id"`
	Status    string    `gorm:"size:16;default:pending" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task belongs to a project and may carry its own member list and chat.
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Status    string    `gorm:"size:32;default:open" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskMember links a user to a task.
type TaskMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	TaskID   uint      `gorm:"not null;uniqueIndex:idx_task_user" json:"task_id"`
	UserID   string    `gorm:"size:64;not null;uniqueIndex:idx_task_user" json:"user_id"`
	Role     string    `gorm:"size:32;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
