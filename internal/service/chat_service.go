package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/models"
	"github.com/teamhive/collab-api/internal/observability"
	"github.com/teamhive/collab-api/internal/repository"
)

// ChatService owns chat threads, message ordering and read receipts.
type ChatService interface {
	GetOrCreateProjectChat(ctx context.Context, projectID uint, userID string) (dto.ChatResponse, error)
	GetOrCreateTaskChat(ctx context.Context, taskID uint, userID string) (dto.ChatResponse, error)
	CreatePersonalChat(ctx context.Context, userID string, payload dto.PersonalChatCreateRequest) (dto.ChatResponse, error)
	CreateGroupChat(ctx context.Context, creatorID string, payload dto.GroupChatCreateRequest) (dto.ChatResponse, error)
	ListChats(ctx context.Context, userID string) ([]dto.ChatResponse, error)
	GetChat(ctx context.Context, chatID uint, userID string) (dto.ChatResponse, error)
	DeleteChat(ctx context.Context, chatID uint, userID string) error

	ListMembers(ctx context.Context, chatID uint, userID string) ([]dto.MemberResponse, error)
	AddMember(ctx context.Context, chatID uint, actorID, userID string) error
	RemoveMember(ctx context.Context, chatID uint, actorID, userID string) error
	IsMember(ctx context.Context, chatID uint, userID string) (bool, error)

	SendMessage(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	History(ctx context.Context, userID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
	MarkRead(ctx context.Context, userID string, payload dto.MarkReadRequest) error
	DeleteMessage(ctx context.Context, messageID uint, requesterID string) error
}

type chatService struct {
	chats     repository.ChatRepository
	messages  repository.MessageRepository
	members   repository.MembershipRepository
	sync      *MembershipSynchronizer
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewChatService constructs the chat service.
func NewChatService(chats repository.ChatRepository, messages repository.MessageRepository, members repository.MembershipRepository, sync *MembershipSynchronizer, validate *validator.Validate, logger zerolog.Logger) ChatService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &chatService{
		chats:     chats,
		messages:  messages,
		members:   members,
		sync:      sync,
		validator: validate,
		logger:    logger.With().Str("component", "chat_service").Logger(),
		tracer:    otel.Tracer("github.com/teamhive/collab-api/internal/service/chat"),
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// GetOrCreateProjectChat returns the project's chat, creating it lazily on
// first access. The unique index on project_id guards against a concurrent
// create racing this one; on conflict the winner's chat is re-fetched.
func (s *chatService) GetOrCreateProjectChat(ctx context.Context, projectID uint, userID string) (dto.ChatResponse, error) {
	project, err := s.members.FindProject(ctx, projectID)
	if err != nil {
		return dto.ChatResponse{}, translateStoreErr(err, "project not found")
	}

	if err := s.requireProjectMember(ctx, projectID, userID); err != nil {
		return dto.ChatResponse{}, err
	}

	chat, err := s.chats.FindByProjectID(ctx, projectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		chat = models.Chat{Kind: models.ChatKindProject, ProjectID: &projectID}
		if createErr := s.chats.Create(ctx, &chat); createErr != nil {
			chat, err = s.chats.FindByProjectID(ctx, projectID)
			if err != nil {
				return dto.ChatResponse{}, apperr.Store(createErr)
			}
		}
	} else if err != nil {
		return dto.ChatResponse{}, apperr.Store(err)
	}

	// Lazy sync: the chat may predate current project membership.
	if memberRows, listErr := s.members.ListProjectMembers(ctx, projectID); listErr == nil {
		s.sync.SyncChatMembers(ctx, chat.ID, memberUserIDs(memberRows))
	} else {
		s.logger.Warn().Err(listErr).Uint("project_id", projectID).Msg("failed to enumerate project members for chat sync")
	}

	response := dto.NewChatResponse(chat)
	response.Name = project.Name
	return response, nil
}

// GetOrCreateTaskChat mirrors GetOrCreateProjectChat for task chats.
func (s *chatService) GetOrCreateTaskChat(ctx context.Context, taskID uint, userID string) (dto.ChatResponse, error) {
	task, err := s.members.FindTask(ctx, taskID)
	if err != nil {
		return dto.ChatResponse{}, translateStoreErr(err, "task not found")
	}

	if err := s.requireProjectMember(ctx, task.ProjectID, userID); err != nil {
		return dto.ChatResponse{}, err
	}

	chat, err := s.chats.FindByTaskID(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		chat = models.Chat{Kind: models.ChatKindTask, TaskID: &taskID}
		if createErr := s.chats.Create(ctx, &chat); createErr != nil {
			chat, err = s.chats.FindByTaskID(ctx, taskID)
			if err != nil {
				return dto.ChatResponse{}, apperr.Store(createErr)
			}
		}
	} else if err != nil {
		return dto.ChatResponse{}, apperr.Store(err)
	}

	if memberRows, listErr := s.members.ListTaskMembers(ctx, taskID); listErr == nil {
		ids := make([]string, 0, len(memberRows))
		for _, member := range memberRows {
			ids = append(ids, member.UserID)
		}
		s.sync.SyncChatMembers(ctx, chat.ID, ids)
	} else {
		s.logger.Warn().Err(listErr).Uint("task_id", taskID).Msg("failed to enumerate task members for chat sync")
	}

	response := dto.NewChatResponse(chat)
	response.Name = task.Title
	return response, nil
}

func (s *chatService) CreatePersonalChat(ctx context.Context, userID string, payload dto.PersonalChatCreateRequest) (dto.ChatResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatResponse{}, apperr.Wrap(apperr.KindValidation, "invalid personal chat request", err)
	}
	if payload.PeerID == userID {
		return dto.ChatResponse{}, apperr.Validation("cannot open a personal chat with yourself")
	}

	pairKey := personalPairKey(userID, payload.PeerID)

	chat, err := s.chats.FindByPairKey(ctx, pairKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		chat = models.Chat{Kind: models.ChatKindPersonal, PairKey: &pairKey}
		if createErr := s.chats.Create(ctx, &chat); createErr != nil {
			chat, err = s.chats.FindByPairKey(ctx, pairKey)
			if err != nil {
				return dto.ChatResponse{}, apperr.Store(createErr)
			}
		}
		s.sync.SyncChatMembers(ctx, chat.ID, []string{userID, payload.PeerID})
	} else if err != nil {
		return dto.ChatResponse{}, apperr.Store(err)
	}

	return dto.NewChatResponse(chat), nil
}

func (s *chatService) CreateGroupChat(ctx context.Context, creatorID string, payload dto.GroupChatCreateRequest) (dto.ChatResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatResponse{}, apperr.Wrap(apperr.KindValidation, "invalid group chat request", err)
	}

	name := strings.TrimSpace(s.sanitizer.Sanitize(payload.Name))
	if name == "" {
		return dto.ChatResponse{}, apperr.Validation("group chat name empty after sanitization")
	}

	chat := models.Chat{Kind: models.ChatKindGroup, Name: name}
	if err := s.chats.Create(ctx, &chat); err != nil {
		return dto.ChatResponse{}, apperr.Store(err)
	}

	userIDs := append([]string{creatorID}, payload.Members...)
	s.sync.SyncChatMembers(ctx, chat.ID, userIDs)

	s.logger.Info().Uint("chat_id", chat.ID).Str("creator_id", creatorID).Msg("group chat created")

	return dto.NewChatResponse(chat), nil
}

func (s *chatService) ListChats(ctx context.Context, userID string) ([]dto.ChatResponse, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	responses := dto.NewChatResponseSlice(chats)
	for i := range responses {
		s.fillDerivedName(ctx, &responses[i])
	}
	return responses, nil
}

func (s *chatService) GetChat(ctx context.Context, chatID uint, userID string) (dto.ChatResponse, error) {
	if err := s.requireMember(ctx, chatID, userID); err != nil {
		return dto.ChatResponse{}, err
	}

	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return dto.ChatResponse{}, translateStoreErr(err, "chat not found")
	}

	response := dto.NewChatResponse(chat)
	s.fillDerivedName(ctx, &response)

	if memberIDs, listErr := s.chats.ListMemberIDs(ctx, chatID); listErr == nil {
		response.Members = memberIDs
	}

	return response, nil
}

func (s *chatService) DeleteChat(ctx context.Context, chatID uint, userID string) error {
	if err := s.requireMember(ctx, chatID, userID); err != nil {
		return err
	}

	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return translateStoreErr(err, "chat not found")
	}

	// Project and task chats live and die with their owning entity.
	if chat.Kind == models.ChatKindProject || chat.Kind == models.ChatKindTask {
		return apperr.Forbidden("project and task chats are removed with their owning entity")
	}

	if err := s.chats.Delete(ctx, chatID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *chatService) ListMembers(ctx context.Context, chatID uint, userID string) ([]dto.MemberResponse, error) {
	if err := s.requireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}

	members, err := s.chats.ListMembers(ctx, chatID)
	if err != nil {
		return nil, apperr.Store(err)
	}

	out := make([]dto.MemberResponse, 0, len(members))
	for _, member := range members {
		out = append(out, dto.NewChatMemberResponse(member))
	}
	return out, nil
}

// AddMember adds a user explicitly. Unlike the synchronizer's upserts, a
// duplicate here is a genuine caller mistake and surfaces as a conflict.
func (s *chatService) AddMember(ctx context.Context, chatID uint, actorID, userID string) error {
	if err := s.requireMember(ctx, chatID, actorID); err != nil {
		return err
	}

	created, err := s.chats.AddMember(ctx, chatID, userID)
	if err != nil {
		return apperr.Store(err)
	}
	if !created {
		return apperr.Conflict("user is already a chat member")
	}
	return nil
}

func (s *chatService) RemoveMember(ctx context.Context, chatID uint, actorID, userID string) error {
	if err := s.requireMember(ctx, chatID, actorID); err != nil {
		return err
	}
	if err := s.chats.RemoveMember(ctx, chatID, userID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *chatService) IsMember(ctx context.Context, chatID uint, userID string) (bool, error) {
	ok, err := s.chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return false, apperr.Store(err)
	}
	return ok, nil
}

func (s *chatService) SendMessage(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, apperr.Wrap(apperr.KindValidation, "invalid message", err)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageResponse{}, apperr.Validation("message content empty after sanitization")
	}

	if err := s.requireMember(ctx, payload.ChatID, senderID); err != nil {
		return dto.MessageResponse{}, err
	}

	chat, err := s.chats.FindByID(ctx, payload.ChatID)
	if err != nil {
		return dto.MessageResponse{}, translateStoreErr(err, "chat not found")
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.send_message", trace.WithAttributes(
		attribute.Int64("chat.id", int64(payload.ChatID)),
		attribute.String("chat.sender_id", senderID),
		attribute.String("chat.kind", chat.Kind),
	))
	defer span.End()

	message := models.Message{
		ChatID:   payload.ChatID,
		SenderID: senderID,
		Content:  clean,
	}

	if err := s.messages.Create(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, apperr.Store(err)
	}

	if err := s.chats.Touch(spanCtx, chat.ID, s.now()); err != nil {
		s.logger.Warn().Err(err).Uint("chat_id", chat.ID).Msg("failed to touch chat timestamp")
	}

	stored, err := s.messages.FindByID(spanCtx, message.ID)
	if err != nil {
		// Sender identity could not be populated; fall back to the bare row.
		stored = message
	}

	observability.MessagesSent().WithLabelValues(chat.Kind).Inc()

	return dto.NewMessageResponse(stored), nil
}

func (s *chatService) History(ctx context.Context, userID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid history query", err)
	}

	if err := s.requireMember(ctx, query.ChatID, userID); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.messages.ListByChat(ctx, query.ChatID, before, query.Limit)
	if err != nil {
		return nil, apperr.Store(err)
	}

	return dto.NewMessageResponseSlice(messages), nil
}

// MarkRead is idempotent and commutative: re-marking already-read messages is
// a no-op, and markers for messages outside the chat are never written.
func (s *chatService) MarkRead(ctx context.Context, userID string, payload dto.MarkReadRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid mark-read request", err)
	}

	if err := s.requireMember(ctx, payload.ChatID, userID); err != nil {
		return err
	}

	if err := s.messages.MarkRead(ctx, payload.ChatID, userID, payload.MessageIDs); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID uint, requesterID string) error {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return translateStoreErr(err, "message not found")
	}

	if message.SenderID != requesterID {
		return apperr.Forbidden("only the sender may delete a message")
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *chatService) requireProjectMember(ctx context.Context, projectID uint, userID string) error {
	ok, err := s.members.IsProjectMember(ctx, projectID, userID)
	if err != nil {
		return apperr.Store(err)
	}
	if !ok {
		return apperr.Forbidden("not a member of this project")
	}
	return nil
}

func (s *chatService) requireMember(ctx context.Context, chatID uint, userID string) error {
	ok, err := s.chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return apperr.Store(err)
	}
	if !ok {
		return apperr.Forbidden("not a member of this chat")
	}
	return nil
}

// fillDerivedName resolves the display name for project and task chats from
// the owning entity, so renames show up without touching chat rows.
func (s *chatService) fillDerivedName(ctx context.Context, response *dto.ChatResponse) {
	switch {
	case response.Kind == models.ChatKindProject && response.ProjectID != nil:
		if project, err := s.members.FindProject(ctx, *response.ProjectID); err == nil {
			response.Name = project.Name
		}
	case response.Kind == models.ChatKindTask && response.TaskID != nil:
		if task, err := s.members.FindTask(ctx, *response.TaskID); err == nil {
			response.Name = task.Title
		}
	}
}

func personalPairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("%s:%s", pair[0], pair[1])
}

func memberUserIDs(members []models.ProjectMember) []string {
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.UserID)
	}
	return ids
}

func translateStoreErr(err error, notFoundMessage string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(notFoundMessage)
	}
	return apperr.Store(err)
}
