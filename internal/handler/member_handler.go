package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/service"
	"github.com/teamhive/collab-api/internal/utils"
)

// MemberHandler exposes project and task roster management plus invitations,
// the operations that drive chat membership synchronization.
type MemberHandler struct {
	service service.MembershipService
	logger  zerolog.Logger
}

// NewMemberHandler constructs a handler instance.
func NewMemberHandler(membership service.MembershipService, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{
		service: membership,
		logger:  logger.With().Str("component", "member_handler").Logger(),
	}
}

// RegisterProjects binds project roster routes.
func (h *MemberHandler) RegisterProjects(router fiber.Router) {
	router.Get("/:id/members", h.listProjectMembers)
	router.Post("/:id/members", h.addProjectMember)
	router.Delete("/:id/members/:userId", h.removeProjectMember)
	router.Post("/:id/invitations", h.invite)
}

// RegisterTasks binds task roster routes.
func (h *MemberHandler) RegisterTasks(router fiber.Router) {
	router.Get("/:id/members", h.listTaskMembers)
	router.Post("/:id/members", h.addTaskMember)
	router.Delete("/:id/members/:userId", h.removeTaskMember)
}

// RegisterInvitations binds the invitee-facing invitation routes.
func (h *MemberHandler) RegisterInvitations(router fiber.Router) {
	router.Post("/:id/accept", h.acceptInvitation)
	router.Post("/:id/decline", h.declineInvitation)
}

func (h *MemberHandler) listProjectMembers(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid project id")
	}

	members, err := h.service.ListProjectMembers(requestContext(c), projectID, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "project members", members)
}

func (h *MemberHandler) addProjectMember(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid project id")
	}

	var payload dto.MemberAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.AddProjectMember(requestContext(c), projectID, userIDFromContext(c), payload); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "project member added", nil)
}

func (h *MemberHandler) removeProjectMember(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid project id")
	}

	if err := h.service.RemoveProjectMember(requestContext(c), projectID, userIDFromContext(c), c.Params("userId")); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "project member removed", nil)
}

func (h *MemberHandler) invite(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid project id")
	}

	var payload dto.MemberAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	invitationID, err := h.service.InviteToProject(requestContext(c), projectID, userIDFromContext(c), payload.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "invitation sent", fiber.Map{"invitation_id": invitationID})
}

func (h *MemberHandler) acceptInvitation(c *fiber.Ctx) error {
	invitationID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	if err := h.service.AcceptInvitation(requestContext(c), invitationID, userIDFromContext(c)); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "invitation accepted", nil)
}

func (h *MemberHandler) declineInvitation(c *fiber.Ctx) error {
	invitationID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	if err := h.service.DeclineInvitation(requestContext(c), invitationID, userIDFromContext(c)); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "invitation declined", nil)
}

func (h *MemberHandler) listTaskMembers(c *fiber.Ctx) error {
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid task id")
	}

	members, err := h.service.ListTaskMembers(requestContext(c), taskID, userIDFromContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "task members", members)
}

func (h *MemberHandler) addTaskMember(c *fiber.Ctx) error {
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid task id")
	}

	var payload dto.MemberAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.AddTaskMember(requestContext(c), taskID, userIDFromContext(c), payload); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "task member added", nil)
}

func (h *MemberHandler) removeTaskMember(c *fiber.Ctx) error {
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid task id")
	}

	if err := h.service.RemoveTaskMember(requestContext(c), taskID, userIDFromContext(c), c.Params("userId")); err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "task member removed", nil)
}
