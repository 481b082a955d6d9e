package service

import "fmt"

// RoomKind tags the entity a broadcast room belongs to.
type RoomKind uint8

const (
	RoomKindChat RoomKind = iota
	RoomKindProject
	RoomKindUser
)

// Room identifies a realtime broadcast group. Using a typed value instead of
// concatenated strings keeps chat/project/user keyspaces from colliding; the
// wire names (chat_{id} etc.) are rendered in exactly one place.
type Room struct {
	Kind RoomKind
	Key  string
}

// ChatRoom returns the room for a chat thread.
func ChatRoom(chatID uint) Room {
	return Room{Kind: RoomKindChat, Key: fmt.Sprintf("%d", chatID)}
}

// ProjectRoom returns the room for a project.
func ProjectRoom(projectID uint) Room {
	return Room{Kind: RoomKindProject, Key: fmt.Sprintf("%d", projectID)}
}

// UserRoom returns the private per-user room used for targeted delivery.
func UserRoom(userID string) Room {
	return Room{Kind: RoomKindUser, Key: userID}
}

// String renders the client-visible room name.
func (r Room) String() string {
	switch r.Kind {
	case RoomKindChat:
		return "chat_" + r.Key
	case RoomKindProject:
		return "project_" + r.Key
	default:
		return "user_" + r.Key
	}
}
