package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/models"
	"github.com/teamhive/collab-api/internal/repository"
)

// MembershipSynchronizer converges a chat's member set toward its owning
// entity's member set. Synchronization is add-only: users removed from a
// project or task keep their chat membership and message history. Each
// upsert is idempotent, so concurrent sync passes converge to the union of
// their inputs.
type MembershipSynchronizer struct {
	chats  repository.ChatRepository
	logger zerolog.Logger
}

// NewMembershipSynchronizer constructs the synchronizer.
func NewMembershipSynchronizer(chats repository.ChatRepository, logger zerolog.Logger) *MembershipSynchronizer {
	return &MembershipSynchronizer{
		chats:  chats,
		logger: logger.With().Str("component", "membership_sync").Logger(),
	}
}

// SyncChatMembers upserts each user into the chat and returns the IDs that
// were newly added. Per-user failures are logged and skipped so one bad row
// cannot block the rest of the batch.
func (s *MembershipSynchronizer) SyncChatMembers(ctx context.Context, chatID uint, userIDs []string) []string {
	added := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		created, err := s.chats.AddMember(ctx, chatID, userID)
		if err != nil {
			s.logger.Warn().Err(err).Uint("chat_id", chatID).Str("user_id", userID).Msg("chat member upsert failed")
			continue
		}
		if created {
			added = append(added, userID)
		}
	}
	if len(added) > 0 {
		s.logger.Debug().Uint("chat_id", chatID).Int("added", len(added)).Msg("chat members synchronized")
	}
	return added
}

// MembershipService manages project and task member rosters and invitations.
// Roster changes propagate into the linked chat through the synchronizer and
// raise notifications for the affected users.
type MembershipService interface {
	AddProjectMember(ctx context.Context, projectID uint, actorID string, payload dto.MemberAddRequest) error
	RemoveProjectMember(ctx context.Context, projectID uint, actorID, userID string) error
	ListProjectMembers(ctx context.Context, projectID uint, actorID string) ([]dto.MemberResponse, error)

	AddTaskMember(ctx context.Context, taskID uint, actorID string, payload dto.MemberAddRequest) error
	RemoveTaskMember(ctx context.Context, taskID uint, actorID, userID string) error
	ListTaskMembers(ctx context.Context, taskID uint, actorID string) ([]dto.MemberResponse, error)

	InviteToProject(ctx context.Context, projectID uint, actorID, inviteeID string) (uint, error)
	AcceptInvitation(ctx context.Context, invitationID uint, userID string) error
	DeclineInvitation(ctx context.Context, invitationID uint, userID string) error
}

type membershipService struct {
	members       repository.MembershipRepository
	chats         repository.ChatRepository
	sync          *MembershipSynchronizer
	notifications NotificationService
	logger        zerolog.Logger
}

// NewMembershipService constructs the membership service.
func NewMembershipService(members repository.MembershipRepository, chats repository.ChatRepository, sync *MembershipSynchronizer, notifications NotificationService, logger zerolog.Logger) MembershipService {
	return &membershipService{
		members:       members,
		chats:         chats,
		sync:          sync,
		notifications: notifications,
		logger:        logger.With().Str("component", "membership_service").Logger(),
	}
}

func (s *membershipService) AddProjectMember(ctx context.Context, projectID uint, actorID string, payload dto.MemberAddRequest) error {
	project, err := s.members.FindProject(ctx, projectID)
	if err != nil {
		return translateStoreErr(err, "project not found")
	}

	if err := s.requireProjectMember(ctx, projectID, actorID); err != nil {
		return err
	}

	created, err := s.members.AddProjectMember(ctx, &models.ProjectMember{
		ProjectID: projectID,
		UserID:    payload.UserID,
		Role:      payload.Role,
	})
	if err != nil {
		return apperr.Store(err)
	}
	if !created {
		return apperr.Conflict("user is already a project member")
	}

	s.syncProjectChat(ctx, projectID)

	s.notifications.Dispatch(ctx, dto.NotificationCreateRequest{
		RecipientID:     payload.UserID,
		Type:            models.NotificationMemberAdded,
		Title:           "Added to project",
		Message:         "You were added to project " + project.Name,
		RelatedEntityID: &projectID,
	})

	return nil
}

// RemoveProjectMember drops the user from the project roster. The project
// chat membership is intentionally untouched: synchronization is add-only.
func (s *membershipService) RemoveProjectMember(ctx context.Context, projectID uint, actorID, userID string) error {
	if err := s.requireProjectMember(ctx, projectID, actorID); err != nil {
		return err
	}
	if err := s.members.RemoveProjectMember(ctx, projectID, userID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *membershipService) ListProjectMembers(ctx context.Context, projectID uint, actorID string) ([]dto.MemberResponse, error) {
	if err := s.requireProjectMember(ctx, projectID, actorID); err != nil {
		return nil, err
	}

	rows, err := s.members.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, apperr.Store(err)
	}

	out := make([]dto.MemberResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.NewProjectMemberResponse(row))
	}
	return out, nil
}

func (s *membershipService) AddTaskMember(ctx context.Context, taskID uint, actorID string, payload dto.MemberAddRequest) error {
	task, err := s.members.FindTask(ctx, taskID)
	if err != nil {
		return translateStoreErr(err, "task not found")
	}

	// Task rosters are managed by project members.
	if err := s.requireProjectMember(ctx, task.ProjectID, actorID); err != nil {
		return err
	}

	created, err := s.members.AddTaskMember(ctx, &models.TaskMember{
		TaskID: taskID,
		UserID: payload.UserID,
		Role:   payload.Role,
	})
	if err != nil {
		return apperr.Store(err)
	}
	if !created {
		return apperr.Conflict("user is already a task member")
	}

	s.syncTaskChat(ctx, taskID)

	s.notifications.Dispatch(ctx, dto.NotificationCreateRequest{
		RecipientID:     payload.UserID,
		Type:            models.NotificationMemberAdded,
		Title:           "Assigned to task",
		Message:         "You were assigned to task " + task.Title,
		RelatedEntityID: &taskID,
	})

	return nil
}

func (s *membershipService) RemoveTaskMember(ctx context.Context, taskID uint, actorID, userID string) error {
	task, err := s.members.FindTask(ctx, taskID)
	if err != nil {
		return translateStoreErr(err, "task not found")
	}
	if err := s.requireProjectMember(ctx, task.ProjectID, actorID); err != nil {
		return err
	}
	if err := s.members.RemoveTaskMember(ctx, taskID, userID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *membershipService) ListTaskMembers(ctx context.Context, taskID uint, actorID string) ([]dto.MemberResponse, error) {
	task, err := s.members.FindTask(ctx, taskID)
	if err != nil {
		return nil, translateStoreErr(err, "task not found")
	}
	if err := s.requireProjectMember(ctx, task.ProjectID, actorID); err != nil {
		return nil, err
	}

	rows, err := s.members.ListTaskMembers(ctx, taskID)
	if err != nil {
		return nil, apperr.Store(err)
	}

	out := make([]dto.MemberResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.NewTaskMemberResponse(row))
	}
	return out, nil
}

func (s *membershipService) InviteToProject(ctx context.Context, projectID uint, actorID, inviteeID string) (uint, error) {
	project, err := s.members.FindProject(ctx, projectID)
	if err != nil {
		return 0, translateStoreErr(err, "project not found")
	}
	if err := s.requireProjectMember(ctx, projectID, actorID); err != nil {
		return 0, err
	}

	already, err := s.members.IsProjectMember(ctx, projectID, inviteeID)
	if err != nil {
		return 0, apperr.Store(err)
	}
	if already {
		return 0, apperr.Conflict("user is already a project member")
	}

	invitation := models.ProjectInvitation{
		ProjectID: projectID,
		InviterID: actorID,
		InviteeID: inviteeID,
	}
	if err := s.members.CreateInvitation(ctx, &invitation); err != nil {
		return 0, apperr.Store(err)
	}

	s.notifications.Dispatch(ctx, dto.NotificationCreateRequest{
		RecipientID:     inviteeID,
		Type:            models.NotificationMemberAdded,
		Title:           "Project invitation",
		Message:         "You were invited to join project " + project.Name,
		RelatedEntityID: &invitation.ID,
	})

	return invitation.ID, nil
}

// AcceptInvitation adds the invitee to the project roster, converges the
// project chat and notifies the inviter.
func (s *membershipService) AcceptInvitation(ctx context.Context, invitationID uint, userID string) error {
	invitation, err := s.members.FindInvitation(ctx, invitationID)
	if err != nil {
		return translateStoreErr(err, "invitation not found")
	}
	if invitation.InviteeID != userID {
		return apperr.Forbidden("invitation addressed to another user")
	}
	if invitation.Status != models.InvitationPending {
		return apperr.Conflict("invitation already resolved")
	}

	if _, err := s.members.AddProjectMember(ctx, &models.ProjectMember{
		ProjectID: invitation.ProjectID,
		UserID:    userID,
		Role:      "member",
	}); err != nil {
		return apperr.Store(err)
	}
	if err := s.members.UpdateInvitationStatus(ctx, invitationID, models.InvitationAccepted); err != nil {
		return apperr.Store(err)
	}

	s.syncProjectChat(ctx, invitation.ProjectID)

	s.notifications.Dispatch(ctx, dto.NotificationCreateRequest{
		RecipientID:     invitation.InviterID,
		Type:            models.NotificationInviteAccepted,
		Title:           "Invitation accepted",
		Message:         "Your project invitation was accepted",
		RelatedEntityID: &invitation.ProjectID,
	})

	return nil
}

func (s *membershipService) DeclineInvitation(ctx context.Context, invitationID uint, userID string) error {
	invitation, err := s.members.FindInvitation(ctx, invitationID)
	if err != nil {
		return translateStoreErr(err, "invitation not found")
	}
	if invitation.InviteeID != userID {
		return apperr.Forbidden("invitation addressed to another user")
	}
	if invitation.Status != models.InvitationPending {
		return apperr.Conflict("invitation already resolved")
	}

	if err := s.members.UpdateInvitationStatus(ctx, invitationID, models.InvitationDeclined); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *membershipService) requireProjectMember(ctx context.Context, projectID uint, userID string) error {
	ok, err := s.members.IsProjectMember(ctx, projectID, userID)
	if err != nil {
		return apperr.Store(err)
	}
	if !ok {
		return apperr.Forbidden("not a member of this project")
	}
	return nil
}

// syncProjectChat converges the project chat, if one exists yet. A missing
// chat is fine: it is created lazily on first access and synced then.
func (s *membershipService) syncProjectChat(ctx context.Context, projectID uint) {
	chat, err := s.chats.FindByProjectID(ctx, projectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("project chat lookup failed during sync")
		return
	}

	rows, err := s.members.ListProjectMembers(ctx, projectID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("project member listing failed during sync")
		return
	}
	s.sync.SyncChatMembers(ctx, chat.ID, memberUserIDs(rows))
}

func (s *membershipService) syncTaskChat(ctx context.Context, taskID uint) {
	chat, err := s.chats.FindByTaskID(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Uint("task_id", taskID).Msg("task chat lookup failed during sync")
		return
	}

	rows, err := s.members.ListTaskMembers(ctx, taskID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("task_id", taskID).Msg("task member listing failed during sync")
		return
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	s.sync.SyncChatMembers(ctx, chat.ID, ids)
}
