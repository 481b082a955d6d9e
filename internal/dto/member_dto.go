package dto

import (
	"time"

	"github.com/teamhive/collab-api/internal/models"
)

// MemberAddRequest adds a user to a project, task or chat.
type MemberAddRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Role   string `json:"role" validate:"omitempty,oneof=owner admin member viewer"`
}

// MemberResponse describes one membership row.
type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewProjectMemberResponse converts a project membership into a DTO.
func NewProjectMemberResponse(member models.ProjectMember) MemberResponse {
	return MemberResponse{UserID: member.UserID, Role: member.Role, JoinedAt: member.JoinedAt}
}

// NewTaskMemberResponse converts a task membership into a DTO.
func NewTaskMemberResponse(member models.TaskMember) MemberResponse {
	return MemberResponse{UserID: member.UserID, Role: member.Role, JoinedAt: member.JoinedAt}
}

// NewChatMemberResponse converts a chat membership into a DTO.
func NewChatMemberResponse(member models.ChatMember) MemberResponse {
	return MemberResponse{UserID: member.UserID, JoinedAt: member.JoinedAt}
}

// UploadResponse is returned after a successful attachment upload.
type UploadResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
