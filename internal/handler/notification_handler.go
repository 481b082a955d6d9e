package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/service"
	"github.com/teamhive/collab-api/internal/utils"
)

// NotificationHandler exposes the pull side of the notification dispatcher.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(notifications service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: notifications,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/unread-count", h.unreadCount)
	router.Get("/:id", h.get)
	router.Patch("/:id/read", h.markRead)
	router.Post("/read-all", h.markAllRead)
	router.Delete("/read", h.deleteAllRead)
	router.Delete("/:id", h.delete)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	skip, err := parseQueryInt(c, "skip")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid skip")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.NotificationListQuery{Skip: skip, Limit: limit}
	switch strings.ToLower(strings.TrimSpace(c.Query("read"))) {
	case "true":
		value := true
		query.Read = &value
	case "false":
		value := false
		query.Read = &value
	case "":
	default:
		return utils.SendError(c, fiber.StatusBadRequest, "invalid read filter")
	}

	notifications, err := h.service.List(requestContext(c), userIDFromContext(c), query)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "notifications", notifications)
}

func (h *NotificationHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.Get(requestContext(c), id, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "notification", notification)
}

func (h *NotificationHandler) unreadCount(c *fiber.Ctx) error {
	count, err := h.service.UnreadCount(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "unread count", fiber.Map{"count": count})
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkRead(requestContext(c), id, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "notification marked read", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	updated, err := h.service.MarkAllRead(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "notifications marked read", fiber.Map{"updated": updated})
}

func (h *NotificationHandler) deleteAllRead(c *fiber.Ctx) error {
	deleted, err := h.service.DeleteAllRead(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "read notifications deleted", fiber.Map{"deleted": deleted})
}

func (h *NotificationHandler) delete(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	if err := h.service.Delete(requestContext(c), id, userIDFromContext(c)); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "notification deleted", nil)
}
