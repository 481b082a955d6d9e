package dto

import (
	"time"

	"github.com/teamhive/collab-api/internal/models"
)

// ChatResponse is the serialized representation of a chat thread.
type ChatResponse struct {
	ID        uint      `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	ProjectID *uint     `json:"project_id,omitempty"`
	TaskID    *uint     `json:"task_id,omitempty"`
	Members   []string  `json:"members,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupChatCreateRequest creates an ad-hoc named chat.
type GroupChatCreateRequest struct {
	Name    string   `json:"name" validate:"required,min=1,max=255"`
	Members []string `json:"members" validate:"omitempty,dive,max=64"`
}

// PersonalChatCreateRequest opens (or returns) the unique chat between two users.
type PersonalChatCreateRequest struct {
	PeerID string `json:"peer_id" validate:"required,max=64"`
}

// MessageSendRequest is the payload for posting a message, over REST or the
// realtime gateway.
type MessageSendRequest struct {
	ChatID  uint   `json:"chat_id" validate:"required"`
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// MessageHistoryQuery filters message history retrieval. Before is a keyset
// cursor: only messages created strictly before it are returned.
type MessageHistoryQuery struct {
	ChatID uint       `query:"chat_id" validate:"required"`
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// MarkReadRequest marks a batch of messages as read by the caller.
type MarkReadRequest struct {
	ChatID     uint   `json:"chat_id" validate:"required"`
	MessageIDs []uint `json:"message_ids" validate:"required,min=1,dive,required"`
}

// MessageResponse is the serialized representation of a stored message.
type MessageResponse struct {
	ID         uint      `json:"id"`
	ChatID     uint      `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	ReadBy     []string  `json:"read_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewChatResponse converts a chat model into a DTO.
func NewChatResponse(chat models.Chat) ChatResponse {
	return ChatResponse{
		ID:        chat.ID,
		Kind:      chat.Kind,
		Name:      chat.Name,
		ProjectID: chat.ProjectID,
		TaskID:    chat.TaskID,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
}

// NewChatResponseSlice converts a slice of chats into DTOs.
func NewChatResponseSlice(chats []models.Chat) []ChatResponse {
	out := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		out = append(out, NewChatResponse(chat))
	}
	return out
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	readBy := make([]string, 0, len(message.Reads))
	for _, read := range message.Reads {
		readBy = append(readBy, read.UserID)
	}

	response := MessageResponse{
		ID:        message.ID,
		ChatID:    message.ChatID,
		SenderID:  message.SenderID,
		Content:   message.Content,
		ReadBy:    readBy,
		CreatedAt: message.CreatedAt,
	}
	if message.Sender != nil {
		response.SenderName = message.Sender.DisplayName
	}
	return response
}

// NewMessageResponseSlice converts a slice of messages into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}
