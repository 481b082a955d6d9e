package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/models"
	"github.com/teamhive/collab-api/internal/repository"
)

// In-memory fakes for the repository interfaces. They model just enough
// semantics (unique membership rows, read markers, record-not-found) for the
// service tests to exercise real behavior.

type stubChatRepo struct {
	mu      sync.Mutex
	nextID  uint
	chats   map[uint]models.Chat
	members map[uint]map[string]time.Time

	addMemberErr error
}

func newStubChatRepo() *stubChatRepo {
	return &stubChatRepo{
		chats:   make(map[uint]models.Chat),
		members: make(map[uint]map[string]time.Time),
	}
}

func (s *stubChatRepo) Create(ctx context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.chats {
		if chat.ProjectID != nil && existing.ProjectID != nil && *chat.ProjectID == *existing.ProjectID {
			return gorm.ErrDuplicatedKey
		}
		if chat.TaskID != nil && existing.TaskID != nil && *chat.TaskID == *existing.TaskID {
			return gorm.ErrDuplicatedKey
		}
		if chat.PairKey != nil && existing.PairKey != nil && *chat.PairKey == *existing.PairKey {
			return gorm.ErrDuplicatedKey
		}
	}

	s.nextID++
	chat.ID = s.nextID
	chat.CreatedAt = time.Now()
	chat.UpdatedAt = chat.CreatedAt
	s.chats[chat.ID] = *chat
	return nil
}

func (s *stubChatRepo) FindByID(ctx context.Context, id uint) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return models.Chat{}, gorm.ErrRecordNotFound
	}
	return chat, nil
}

func (s *stubChatRepo) FindByProjectID(ctx context.Context, projectID uint) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.ProjectID != nil && *chat.ProjectID == projectID {
			return chat, nil
		}
	}
	return models.Chat{}, gorm.ErrRecordNotFound
}

func (s *stubChatRepo) FindByTaskID(ctx context.Context, taskID uint) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.TaskID != nil && *chat.TaskID == taskID {
			return chat, nil
		}
	}
	return models.Chat{}, gorm.ErrRecordNotFound
}

func (s *stubChatRepo) FindByPairKey(ctx context.Context, pairKey string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.PairKey != nil && *chat.PairKey == pairKey {
			return chat, nil
		}
	}
	return models.Chat{}, gorm.ErrRecordNotFound
}

func (s *stubChatRepo) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chat
	for id, members := range s.members {
		if _, ok := members[userID]; ok {
			out = append(out, s.chats[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubChatRepo) Touch(ctx context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	chat.UpdatedAt = at
	s.chats[id] = chat
	return nil
}

func (s *stubChatRepo) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	delete(s.members, id)
	return nil
}

func (s *stubChatRepo) AddMember(ctx context.Context, chatID uint, userID string) (bool, error) {
	if s.addMemberErr != nil {
		return false, s.addMemberErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[chatID] == nil {
		s.members[chatID] = make(map[string]time.Time)
	}
	if _, ok := s.members[chatID][userID]; ok {
		return false, nil
	}
	s.members[chatID][userID] = time.Now()
	return true, nil
}

func (s *stubChatRepo) RemoveMember(ctx context.Context, chatID uint, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[chatID], userID)
	return nil
}

func (s *stubChatRepo) IsMember(ctx context.Context, chatID uint, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[chatID][userID]
	return ok, nil
}

func (s *stubChatRepo) ListMembers(ctx context.Context, chatID uint) ([]models.ChatMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatMember
	for userID, joined := range s.members[chatID] {
		out = append(out, models.ChatMember{ChatID: chatID, UserID: userID, JoinedAt: joined})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *stubChatRepo) ListMemberIDs(ctx context.Context, chatID uint) ([]string, error) {
	members, _ := s.ListMembers(ctx, chatID)
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.UserID)
	}
	return ids, nil
}

type stubMessageRepo struct {
	mu       sync.Mutex
	nextID   uint
	messages map[uint]models.Message
	reads    map[uint]map[string]struct{}
}

func newStubMessageRepo() *stubMessageRepo {
	return &stubMessageRepo{
		messages: make(map[uint]models.Message),
		reads:    make(map[uint]map[string]struct{}),
	}
}

func (s *stubMessageRepo) Create(ctx context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	s.messages[message.ID] = *message
	s.reads[message.ID] = map[string]struct{}{message.SenderID: {}}
	return nil
}

func (s *stubMessageRepo) FindByID(ctx context.Context, id uint) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[id]
	if !ok {
		return models.Message{}, gorm.ErrRecordNotFound
	}
	for userID := range s.reads[id] {
		message.Reads = append(message.Reads, models.MessageRead{MessageID: id, UserID: userID})
	}
	return message, nil
}

func (s *stubMessageRepo) ListByChat(ctx context.Context, chatID uint, before time.Time, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, message := range s.messages {
		if message.ChatID != chatID {
			continue
		}
		if !before.IsZero() && !message.CreatedAt.Before(before) {
			continue
		}
		out = append(out, message)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *stubMessageRepo) MarkRead(ctx context.Context, chatID uint, userID string, messageIDs []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range messageIDs {
		message, ok := s.messages[id]
		if !ok || message.ChatID != chatID {
			continue
		}
		s.reads[id][userID] = struct{}{}
	}
	return nil
}

func (s *stubMessageRepo) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
	delete(s.reads, id)
	return nil
}

type stubMembershipRepo struct {
	mu             sync.Mutex
	projects       map[uint]models.Project
	tasks          map[uint]models.Task
	projectMembers map[uint]map[string]string
	taskMembers    map[uint]map[string]string
	invitations    map[uint]models.ProjectInvitation
	nextInvitation uint
}

func newStubMembershipRepo() *stubMembershipRepo {
	return &stubMembershipRepo{
		projects:       make(map[uint]models.Project),
		tasks:          make(map[uint]models.Task),
		projectMembers: make(map[uint]map[string]string),
		taskMembers:    make(map[uint]map[string]string),
		invitations:    make(map[uint]models.ProjectInvitation),
	}
}

func (s *stubMembershipRepo) FindProject(ctx context.Context, projectID uint) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok {
		return models.Project{}, gorm.ErrRecordNotFound
	}
	return project, nil
}

func (s *stubMembershipRepo) FindTask(ctx context.Context, taskID uint) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, gorm.ErrRecordNotFound
	}
	return task, nil
}

func (s *stubMembershipRepo) AddProjectMember(ctx context.Context, member *models.ProjectMember) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectMembers[member.ProjectID] == nil {
		s.projectMembers[member.ProjectID] = make(map[string]string)
	}
	if _, ok := s.projectMembers[member.ProjectID][member.UserID]; ok {
		return false, nil
	}
	s.projectMembers[member.ProjectID][member.UserID] = member.Role
	return true, nil
}

func (s *stubMembershipRepo) RemoveProjectMember(ctx context.Context, projectID uint, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projectMembers[projectID], userID)
	return nil
}

func (s *stubMembershipRepo) IsProjectMember(ctx context.Context, projectID uint, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.projectMembers[projectID][userID]
	return ok, nil
}

func (s *stubMembershipRepo) ListProjectMembers(ctx context.Context, projectID uint) ([]models.ProjectMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProjectMember
	for userID, role := range s.projectMembers[projectID] {
		out = append(out, models.ProjectMember{ProjectID: projectID, UserID: userID, Role: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *stubMembershipRepo) ListProjectIDsForUser(ctx context.Context, userID string) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint
	for projectID, members := range s.projectMembers {
		if _, ok := members[userID]; ok {
			out = append(out, projectID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *stubMembershipRepo) AddTaskMember(ctx context.Context, member *models.TaskMember) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskMembers[member.TaskID] == nil {
		s.taskMembers[member.TaskID] = make(map[string]string)
	}
	if _, ok := s.taskMembers[member.TaskID][member.UserID]; ok {
		return false, nil
	}
	s.taskMembers[member.TaskID][member.UserID] = member.Role
	return true, nil
}

func (s *stubMembershipRepo) RemoveTaskMember(ctx context.Context, taskID uint, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.taskMembers[taskID], userID)
	return nil
}

func (s *stubMembershipRepo) ListTaskMembers(ctx context.Context, taskID uint) ([]models.TaskMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TaskMember
	for userID, role := range s.taskMembers[taskID] {
		out = append(out, models.TaskMember{TaskID: taskID, UserID: userID, Role: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *stubMembershipRepo) FindInvitation(ctx context.Context, id uint) (models.ProjectInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invitation, ok := s.invitations[id]
	if !ok {
		return models.ProjectInvitation{}, gorm.ErrRecordNotFound
	}
	return invitation, nil
}

func (s *stubMembershipRepo) CreateInvitation(ctx context.Context, invitation *models.ProjectInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextInvitation++
	invitation.ID = s.nextInvitation
	if invitation.Status == "" {
		invitation.Status = models.InvitationPending
	}
	s.invitations[invitation.ID] = *invitation
	return nil
}

func (s *stubMembershipRepo) UpdateInvitationStatus(ctx context.Context, id uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	invitation, ok := s.invitations[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	invitation.Status = status
	s.invitations[id] = invitation
	return nil
}

type stubUserRepo struct {
	users map[string]models.User
}

func newStubUserRepo(users ...models.User) *stubUserRepo {
	s := &stubUserRepo{users: make(map[string]models.User)}
	for _, user := range users {
		s.users[user.ID] = user
	}
	return s
}

func (s *stubUserRepo) Create(ctx context.Context, user *models.User) error {
	s.users[user.ID] = *user
	return nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (s *stubUserRepo) FindByDisplayName(ctx context.Context, displayName string) (models.User, error) {
	for _, user := range s.users {
		if user.DisplayName == displayName {
			return user, nil
		}
	}
	return models.User{}, gorm.ErrRecordNotFound
}

// stubNotificationDispatcher records dispatches without persistence.
type stubNotificationDispatcher struct {
	NotificationService
	calls []dto.NotificationCreateRequest
	err   error
}

func (s *stubNotificationDispatcher) Dispatch(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if s.err != nil {
		return dto.NotificationResponse{}, s.err
	}
	s.calls = append(s.calls, payload)
	return dto.NotificationResponse{RecipientID: payload.RecipientID, Type: payload.Type, Message: payload.Message}, nil
}

var _ repository.ChatRepository = (*stubChatRepo)(nil)
var _ repository.MessageRepository = (*stubMessageRepo)(nil)
var _ repository.MembershipRepository = (*stubMembershipRepo)(nil)
var _ repository.UserRepository = (*stubUserRepo)(nil)
