package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/models"
)

func newChatServiceForTest(t *testing.T) (ChatService, *stubChatRepo, *stubMessageRepo, *stubMembershipRepo) {
	t.Helper()
	chats := newStubChatRepo()
	messages := newStubMessageRepo()
	members := newStubMembershipRepo()
	sync := NewMembershipSynchronizer(chats, zerolog.Nop())
	svc := NewChatService(chats, messages, members, sync, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	return svc, chats, messages, members
}

func TestChatServiceSendMessageRequiresMembership(t *testing.T) {
	svc, chats, messages, _ := newChatServiceForTest(t)
	ctx := context.Background()

	chat := models.Chat{Kind: models.ChatKindGroup, Name: "room"}
	require.NoError(t, chats.Create(ctx, &chat))
	_, err := chats.AddMember(ctx, chat.ID, "alice")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "intruder", dto.MessageSendRequest{ChatID: chat.ID, Content: "hi"})
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
	require.Empty(t, messages.messages, "rejected send must not persist a row")
}

func TestChatServiceSendMessageSanitizesAndMarksSenderRead(t *testing.T) {
	svc, chats, _, _ := newChatServiceForTest(t)
	ctx := context.Background()

	chat := models.Chat{Kind: models.ChatKindGroup, Name: "room"}
	require.NoError(t, chats.Create(ctx, &chat))
	_, err := chats.AddMember(ctx, chat.ID, "alice")
	require.NoError(t, err)

	message, err := svc.SendMessage(ctx, "alice", dto.MessageSendRequest{
		ChatID:  chat.ID,
		Content: "<script>alert(1)</script>hello",
	})
	require.NoError(t, err)
	require.Equal(t, "hello", message.Content)
	require.Contains(t, message.ReadBy, "alice", "sender starts in readBy")

	_, err = svc.SendMessage(ctx, "alice", dto.MessageSendRequest{
		ChatID:  chat.ID,
		Content: "<script>only markup</script>",
	})
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestChatServicePersonalChatIsUniquePerPair(t *testing.T) {
	svc, _, _, _ := newChatServiceForTest(t)
	ctx := context.Background()

	first, err := svc.CreatePersonalChat(ctx, "alice", dto.PersonalChatCreateRequest{PeerID: "bob"})
	require.NoError(t, err)

	// Opening from the other side returns the same chat.
	second, err := svc.CreatePersonalChat(ctx, "bob", dto.PersonalChatCreateRequest{PeerID: "alice"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	_, err = svc.CreatePersonalChat(ctx, "alice", dto.PersonalChatCreateRequest{PeerID: "alice"})
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestChatServiceGetOrCreateProjectChatSyncsMembers(t *testing.T) {
	svc, chats, _, members := newChatServiceForTest(t)
	ctx := context.Background()

	members.projects[7] = models.Project{ID: 7, Name: "Apollo"}
	members.projectMembers[7] = map[string]string{"alice": "owner", "bob": "member"}

	chat, err := svc.GetOrCreateProjectChat(ctx, 7, "alice")
	require.NoError(t, err)
	require.Equal(t, "Apollo", chat.Name)

	ids, err := chats.ListMemberIDs(ctx, chat.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, ids)

	// Second call converges the roster instead of creating a second chat.
	members.projectMembers[7]["carol"] = "member"
	again, err := svc.GetOrCreateProjectChat(ctx, 7, "alice")
	require.NoError(t, err)
	require.Equal(t, chat.ID, again.ID)

	ids, err = chats.ListMemberIDs(ctx, chat.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, ids)
}

func TestChatServiceGetOrCreateProjectChatRequiresProjectMembership(t *testing.T) {
	svc, _, _, members := newChatServiceForTest(t)
	ctx := context.Background()

	members.projects[7] = models.Project{ID: 7, Name: "Apollo"}
	members.projectMembers[7] = map[string]string{"alice": "owner"}

	_, err := svc.GetOrCreateProjectChat(ctx, 7, "outsider")
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.GetOrCreateProjectChat(ctx, 99, "alice")
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestChatServiceExplicitDuplicateAddIsConflict(t *testing.T) {
	svc, chats, _, _ := newChatServiceForTest(t)
	ctx := context.Background()

	chat := models.Chat{Kind: models.ChatKindGroup, Name: "room"}
	require.NoError(t, chats.Create(ctx, &chat))
	_, err := chats.AddMember(ctx, chat.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, chat.ID, "alice", "bob"))

	err = svc.AddMember(ctx, chat.ID, "alice", "bob")
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestChatServiceDeleteMessageSenderOnly(t *testing.T) {
	svc, chats, messages, _ := newChatServiceForTest(t)
	ctx := context.Background()

	chat := models.Chat{Kind: models.ChatKindGroup, Name: "room"}
	require.NoError(t, chats.Create(ctx, &chat))
	_, err := chats.AddMember(ctx, chat.ID, "alice")
	require.NoError(t, err)

	message, err := svc.SendMessage(ctx, "alice", dto.MessageSendRequest{ChatID: chat.ID, Content: "mine"})
	require.NoError(t, err)

	err = svc.DeleteMessage(ctx, message.ID, "bob")
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	require.NoError(t, svc.DeleteMessage(ctx, message.ID, "alice"))
	require.Empty(t, messages.messages)
}

func TestChatServiceProjectChatCannotBeDeletedDirectly(t *testing.T) {
	svc, chats, _, members := newChatServiceForTest(t)
	ctx := context.Background()

	members.projects[7] = models.Project{ID: 7, Name: "Apollo"}
	members.projectMembers[7] = map[string]string{"alice": "owner"}

	chat, err := svc.GetOrCreateProjectChat(ctx, 7, "alice")
	require.NoError(t, err)

	err = svc.DeleteChat(ctx, chat.ID, "alice")
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = chats.FindByID(ctx, chat.ID)
	require.NoError(t, err)
}
