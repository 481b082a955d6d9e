package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/dto"
)

// stubRealtimeChats covers the slice of ChatService the gateway touches.
type stubRealtimeChats struct {
	ChatService
	member      bool
	memberErr   error
	markReadErr error
}

func (s *stubRealtimeChats) IsMember(ctx context.Context, chatID uint, userID string) (bool, error) {
	return s.member, s.memberErr
}

func (s *stubRealtimeChats) MarkRead(ctx context.Context, userID string, payload dto.MarkReadRequest) error {
	return s.markReadErr
}

func newRealtimeForTest(t *testing.T) *realtimeService {
	t.Helper()
	svc := NewRealtimeService(nil, nil, nil, NewPresenceRegistry(), nil, "", nil, zerolog.Nop())
	return svc.(*realtimeService)
}

func newTestClient(svc *realtimeService, userID string) *realtimeClient {
	return &realtimeClient{
		send:     make(chan outboundEvent, realtimeSendBuffer),
		userID:   userID,
		handleID: userID + "-handle",
		joined:   make(map[string]struct{}),
		service:  svc,
		closed:   make(chan struct{}),
	}
}

func TestHubBroadcastReachesRoomMembersOnly(t *testing.T) {
	svc := newRealtimeForTest(t)
	room := ChatRoom(1)

	alice := newTestClient(svc, "alice")
	bob := newTestClient(svc, "bob")
	carol := newTestClient(svc, "carol")

	svc.hub.join(alice, room)
	svc.hub.join(bob, room)
	// carol never joins.
	svc.hub.join(carol, ChatRoom(2))

	delivered := svc.hub.broadcast(room.String(), EventNewMessage, "payload", "")
	require.Equal(t, 2, delivered)

	require.Len(t, alice.send, 1)
	require.Len(t, bob.send, 1)
	require.Empty(t, carol.send)

	event := <-alice.send
	require.Equal(t, EventNewMessage, event.Event)
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	svc := newRealtimeForTest(t)
	room := ChatRoom(1)

	alice := newTestClient(svc, "alice")
	bob := newTestClient(svc, "bob")
	svc.hub.join(alice, room)
	svc.hub.join(bob, room)

	delivered := svc.hub.broadcast(room.String(), EventUserTyping, "payload", alice.userID)
	require.Equal(t, 1, delivered)
	require.Empty(t, alice.send, "typing notices never echo to the sender")
	require.Len(t, bob.send, 1)
}

func TestHubDropsEventsForSlowClients(t *testing.T) {
	svc := newRealtimeForTest(t)
	room := ChatRoom(1)

	slow := newTestClient(svc, "slow")
	svc.hub.join(slow, room)

	for i := 0; i < realtimeSendBuffer; i++ {
		require.True(t, slow.enqueue(outboundEvent{Event: EventNewMessage}))
	}

	delivered := svc.hub.broadcast(room.String(), EventNewMessage, "overflow", "")
	require.Zero(t, delivered, "a full send buffer drops instead of blocking")
}

func TestHubUnregisterLeavesAllRooms(t *testing.T) {
	svc := newRealtimeForTest(t)

	client := newTestClient(svc, "alice")
	svc.hub.join(client, ChatRoom(1))
	svc.hub.join(client, ProjectRoom(2))
	svc.hub.join(client, UserRoom("alice"))

	svc.hub.unregister(client)

	require.Empty(t, client.joined)
	require.Zero(t, svc.hub.broadcast(ChatRoom(1).String(), EventNewMessage, nil, ""))
	require.Zero(t, svc.hub.broadcast(UserRoom("alice").String(), EventNewNotification, nil, ""))
}

func TestPushNotificationIsPresenceGated(t *testing.T) {
	svc := newRealtimeForTest(t)
	notification := dto.NotificationResponse{ID: 1, RecipientID: "alice", Message: "ping"}

	require.False(t, svc.PushNotification("alice", notification), "no connection, no delivery")

	client := newTestClient(svc, "alice")
	svc.hub.join(client, UserRoom("alice"))
	svc.presence.Register(client.userID, client.handleID)

	require.True(t, svc.PushNotification("alice", notification))
	event := <-client.send
	require.Equal(t, EventNewNotification, event.Event)

	require.False(t, svc.PushNotification("bob", notification), "delivery is scoped to the recipient")
	require.Empty(t, client.send)
}

func TestPushNotificationTargetsCurrentHandleOnly(t *testing.T) {
	svc := newRealtimeForTest(t)

	// Reconnect race: the old socket is still open and subscribed to the
	// user room when the replacement registers.
	stale := newTestClient(svc, "alice")
	svc.hub.join(stale, UserRoom("alice"))
	svc.presence.Register(stale.userID, stale.handleID)

	fresh := &realtimeClient{
		send:     make(chan outboundEvent, realtimeSendBuffer),
		userID:   "alice",
		handleID: "alice-handle-2",
		joined:   make(map[string]struct{}),
		service:  svc,
		closed:   make(chan struct{}),
	}
	svc.hub.join(fresh, UserRoom("alice"))
	svc.presence.Register(fresh.userID, fresh.handleID)

	require.True(t, svc.PushNotification("alice", dto.NotificationResponse{ID: 1, RecipientID: "alice", Message: "ping"}))
	require.Empty(t, stale.send, "superseded connection gets nothing")
	require.Len(t, fresh.send, 1, "exactly one push to the registered handle")
}

func TestBusEventsFromSelfAreIgnored(t *testing.T) {
	svc := newRealtimeForTest(t)

	client := newTestClient(svc, "alice")
	svc.hub.join(client, ChatRoom(1))

	svc.handleBusEvent([]byte(`{"source":"` + svc.nodeID + `","room":"chat_1","event":"new_message","payload":{}}`))
	require.Empty(t, client.send, "own relay frames must not double-deliver")

	svc.handleBusEvent([]byte(`{"source":"other-node","room":"chat_1","event":"new_message","payload":{}}`))
	require.Len(t, client.send, 1)
}

func TestBusEventsHonorActorExclusion(t *testing.T) {
	svc := newRealtimeForTest(t)

	alice := newTestClient(svc, "alice")
	bob := newTestClient(svc, "bob")
	svc.hub.join(alice, ChatRoom(1))
	svc.hub.join(bob, ChatRoom(1))

	svc.handleBusEvent([]byte(`{"source":"other-node","room":"chat_1","event":"messages_read","payload":{},"exclude_user_id":"alice"}`))
	require.Empty(t, alice.send, "relayed read receipts never echo to the actor")
	require.Len(t, bob.send, 1)
}

func TestMarkReadBroadcastExcludesActor(t *testing.T) {
	svc := newRealtimeForTest(t)
	svc.chats = &stubRealtimeChats{}

	actor := newTestClient(svc, "alice")
	peer := newTestClient(svc, "bob")
	svc.hub.join(actor, ChatRoom(1))
	svc.hub.join(peer, ChatRoom(1))

	svc.handleMarkRead(context.Background(), actor, json.RawMessage(`{"chat_id":1,"message_ids":[4,5]}`))

	require.Empty(t, actor.send, "the actor already knows what they read")
	require.Len(t, peer.send, 1)

	event := <-peer.send
	require.Equal(t, EventMessagesRead, event.Event)
	receipt, ok := event.Payload.(messagesReadPayload)
	require.True(t, ok)
	require.Equal(t, "alice", receipt.UserID)
	require.Equal(t, []uint{4, 5}, receipt.MessageIDs)
}

func TestJoinChatAckCarriesResult(t *testing.T) {
	svc := newRealtimeForTest(t)
	chats := &stubRealtimeChats{member: true}
	svc.chats = chats

	client := newTestClient(svc, "alice")
	svc.handleJoinChat(context.Background(), client, json.RawMessage(`{"chat_id":3}`))

	event := <-client.send
	require.Equal(t, EventJoinedChat, event.Event)
	ack, ok := event.Payload.(joinChatAck)
	require.True(t, ok)
	require.True(t, ack.Success)
	require.Equal(t, uint(3), ack.ChatID)
	require.Empty(t, ack.Error)

	chats.member = false
	svc.handleJoinChat(context.Background(), client, json.RawMessage(`{"chat_id":3}`))

	event = <-client.send
	require.Equal(t, EventJoinedChat, event.Event, "failures ack on the join event, not message_error")
	ack = event.Payload.(joinChatAck)
	require.False(t, ack.Success)
	require.Equal(t, "not a member of this chat", ack.Error)
}

func TestJoinProjectAckCarriesResult(t *testing.T) {
	svc := newRealtimeForTest(t)

	client := newTestClient(svc, "alice")
	svc.handleJoinProject(context.Background(), client, json.RawMessage(`{"project_id":0}`))

	event := <-client.send
	require.Equal(t, EventJoinedProject, event.Event)
	ack, ok := event.Payload.(joinProjectAck)
	require.True(t, ok)
	require.False(t, ack.Success)
	require.NotEmpty(t, ack.Error)
}

func TestRealtimeRelayReachesPeerNodes(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	newNode := func() *realtimeService {
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		svc := NewRealtimeService(nil, nil, nil, NewPresenceRegistry(), client, "collab-test", nil, zerolog.Nop())
		return svc.(*realtimeService)
	}

	emitter := newNode()
	receiver := newNode()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	receiver.Start(ctx)

	remote := newTestClient(receiver, "alice")
	receiver.hub.join(remote, ChatRoom(1))

	// Re-emit until the subscriber is wired up; relay frames are fire-and-forget.
	require.Eventually(t, func() bool {
		emitter.EmitToRoom(ChatRoom(1), EventNewMessage, dto.MessageResponse{ID: 1, ChatID: 1})
		return len(remote.send) > 0
	}, 3*time.Second, 50*time.Millisecond)

	event := <-remote.send
	require.Equal(t, EventNewMessage, event.Event)
}

func TestClientErrorMessageMasksStoreFailures(t *testing.T) {
	require.Equal(t, "internal error", clientErrorMessage(apperr.Store(errors.New("pq: connection refused"))))
	require.Equal(t, "not a member of this chat", clientErrorMessage(apperr.Forbidden("not a member of this chat")))
	require.Equal(t, "internal error", clientErrorMessage(errors.New("raw failure")))
}
