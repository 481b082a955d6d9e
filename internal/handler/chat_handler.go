package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/service"
	"github.com/teamhive/collab-api/internal/utils"
)

// ChatHandler exposes the REST chat surface. The realtime path for the same
// operations lives in RealtimeHandler; both converge on the chat service.
type ChatHandler struct {
	chats    service.ChatService
	realtime service.RealtimeService
	mentions service.MentionService
	logger   zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(chats service.ChatService, realtime service.RealtimeService, mentions service.MentionService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chats:    chats,
		realtime: realtime,
		mentions: mentions,
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/group", h.createGroup)
	router.Post("/personal", h.createPersonal)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)

	router.Get("/:id/members", h.listMembers)
	router.Post("/:id/members", h.addMember)
	router.Delete("/:id/members/:userId", h.removeMember)

	router.Get("/:id/messages", h.history)
	router.Post("/:id/messages", h.sendMessage)
	router.Post("/:id/messages/read", h.markRead)
	router.Delete("/messages/:messageId", h.deleteMessage)
}

// RegisterProjectChat binds the lazy project/task chat lookups.
func (h *ChatHandler) RegisterProjectChat(projects, tasks fiber.Router) {
	projects.Get("/:id/chat", h.projectChat)
	tasks.Get("/:id/chat", h.taskChat)
}

func (h *ChatHandler) list(c *fiber.Ctx) error {
	chats, err := h.chats.ListChats(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "chats", chats)
}

func (h *ChatHandler) createGroup(c *fiber.Ctx) error {
	var payload dto.GroupChatCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	chat, err := h.chats.CreateGroupChat(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "group chat created", chat)
}

func (h *ChatHandler) createPersonal(c *fiber.Ctx) error {
	var payload dto.PersonalChatCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	chat, err := h.chats.CreatePersonalChat(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "personal chat ready", chat)
}

func (h *ChatHandler) get(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	chat, err := h.chats.GetChat(requestContext(c), chatID, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "chat", chat)
}

func (h *ChatHandler) delete(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	if err := h.chats.DeleteChat(requestContext(c), chatID, userIDFromContext(c)); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "chat deleted", nil)
}

func (h *ChatHandler) listMembers(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	members, err := h.chats.ListMembers(requestContext(c), chatID, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "chat members", members)
}

func (h *ChatHandler) addMember(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	var payload dto.MemberAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.chats.AddMember(requestContext(c), chatID, userIDFromContext(c), payload.UserID); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "member added", nil)
}

func (h *ChatHandler) removeMember(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	if err := h.chats.RemoveMember(requestContext(c), chatID, userIDFromContext(c), c.Params("userId")); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "member removed", nil)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	var beforePtr *time.Time
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		beforePtr = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.MessageHistoryQuery{
		ChatID: chatID,
		Before: beforePtr,
		Limit:  limit,
	}

	messages, err := h.chats.History(requestContext(c), userIDFromContext(c), query)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "message history", messages)
}

// sendMessage persists over REST and fans out through the same realtime path
// websocket sends use, so connected members see the message either way.
func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.ChatID = chatID

	ctx := requestContext(c)
	message, err := h.chats.SendMessage(ctx, userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, err)
	}

	h.realtime.EmitToRoom(service.ChatRoom(message.ChatID), service.EventNewMessage, message)
	h.mentions.Notify(ctx, message)

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid chat id")
	}

	var payload dto.MarkReadRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.ChatID = chatID

	userID := userIDFromContext(c)
	if err := h.chats.MarkRead(requestContext(c), userID, payload); err != nil {
		return respondError(c, err)
	}

	h.realtime.EmitToRoomExcept(service.ChatRoom(chatID), service.EventMessagesRead, fiber.Map{
		"chat_id":     chatID,
		"message_ids": payload.MessageIDs,
		"user_id":     userID,
	}, userID)

	return utils.SendSuccess(c, "messages marked read", nil)
}

func (h *ChatHandler) deleteMessage(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	if err := h.chats.DeleteMessage(requestContext(c), messageID, userIDFromContext(c)); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *ChatHandler) projectChat(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid project id")
	}

	chat, err := h.chats.GetOrCreateProjectChat(requestContext(c), projectID, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "project chat", chat)
}

func (h *ChatHandler) taskChat(c *fiber.Ctx) error {
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid task id")
	}

	chat, err := h.chats.GetOrCreateTaskChat(requestContext(c), taskID, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "task chat", chat)
}
