package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/observability"
	"github.com/teamhive/collab-api/internal/repository"
)

const (
	realtimeSendBuffer   = 32
	realtimePingInterval = 30 * time.Second
)

// Client-to-server event names.
const (
	EventJoinChat     = "join_chat"
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_messages_read"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventJoinProject  = "join_project"
	EventLeaveProject = "leave_project"
)

// Server-to-client event names.
const (
	EventJoinedChat      = "joined_chat"
	EventNewMessage      = "new_message"
	EventMessageError    = "message_error"
	EventMessagesRead    = "messages_read"
	EventUserTyping      = "user_typing"
	EventUserStopped     = "user_stopped_typing"
	EventJoinedProject   = "joined_project"
	EventNewNotification = "new_notification"
)

// wsEnvelope is the wire frame in both directions: an event name plus an
// event-specific payload.
type wsEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type outboundEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// busEvent is the cross-node relay frame. Source carries the emitting node's
// ID so a node never re-delivers its own broadcasts; ExcludeUserID carries
// the acting user for events that must not echo back to them.
type busEvent struct {
	Source        string          `json:"source"`
	Room          string          `json:"room"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"payload"`
	ExcludeUserID string          `json:"exclude_user_id,omitempty"`
	SentAt        time.Time       `json:"sent_at"`
}

type joinChatPayload struct {
	ChatID uint `json:"chat_id"`
}

type joinChatAck struct {
	ChatID  uint   `json:"chat_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type projectRoomPayload struct {
	ProjectID uint `json:"project_id"`
}

type joinProjectAck struct {
	ProjectID uint   `json:"project_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type typingNoticePayload struct {
	ChatID uint   `json:"chat_id"`
	UserID string `json:"user_id"`
}

type messagesReadPayload struct {
	ChatID     uint   `json:"chat_id"`
	MessageIDs []uint `json:"message_ids"`
	UserID     string `json:"user_id"`
}

type messageErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

// RealtimeConnectionOptions wraps metadata extracted during the HTTP upgrade.
type RealtimeConnectionOptions struct {
	UserID        string
	CorrelationID string
	Context       context.Context
}

// RealtimeService owns websocket connections, room subscriptions and event
// fan-out, locally and across nodes via the redis/NATS bus.
type RealtimeService interface {
	ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions)
	Start(ctx context.Context)
	EmitToRoom(room Room, event string, payload interface{})
	EmitToRoomExcept(room Room, event string, payload interface{}, excludeUserID string)
	PushNotification(recipientID string, notification dto.NotificationResponse) bool
	Presence() *PresenceRegistry
}

type realtimeService struct {
	chats       ChatService
	mentions    MentionService
	members     repository.MembershipRepository
	presence    *PresenceRegistry
	redis       *redis.Client
	redisChan   string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	hub         *realtimeHub
	nodeID      string
}

// realtimeHub tracks active clients per room. Rooms are keyed by their
// rendered name so locally originated and bus-relayed broadcasts share one
// lookup path.
type realtimeHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*realtimeClient]struct{}
	log   zerolog.Logger
}

type realtimeClient struct {
	conn     *websocket.Conn
	send     chan outboundEvent
	userID   string
	handleID string
	joined   map[string]struct{}
	service  *realtimeService
	closed   chan struct{}
	once     sync.Once
	baseCtx  context.Context
}

// NewRealtimeService creates the realtime gateway.
func NewRealtimeService(chats ChatService, mentions MentionService, members repository.MembershipRepository, presence *PresenceRegistry, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) RealtimeService {
	hub := &realtimeHub{
		rooms: make(map[string]map[*realtimeClient]struct{}),
		log:   logger.With().Str("component", "realtime_hub").Logger(),
	}

	redisChan := ""
	natsSubject := ""
	if channelBase != "" {
		redisChan = channelBase + ":realtime"
		natsSubject = channelBase + ".realtime"
	}

	return &realtimeService{
		chats:       chats,
		mentions:    mentions,
		members:     members,
		presence:    presence,
		redis:       redisClient,
		redisChan:   redisChan,
		nats:        natsConn,
		natsSubject: natsSubject,
		logger:      logger.With().Str("component", "realtime_service").Logger(),
		hub:         hub,
		nodeID:      uuid.NewString(),
	}
}

func (s *realtimeService) Presence() *PresenceRegistry {
	return s.presence
}

func (s *realtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChan != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// ServeConnection runs the connection lifecycle: presence registration, bulk
// room subscription, then the read loop until the peer goes away. Blocks for
// the lifetime of the connection.
func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &realtimeClient{
		conn:     conn,
		send:     make(chan outboundEvent, realtimeSendBuffer),
		userID:   opts.UserID,
		handleID: uuid.NewString(),
		joined:   make(map[string]struct{}),
		service:  s,
		closed:   make(chan struct{}),
		baseCtx:  baseCtx,
	}

	observability.ConnectionsTotal().Inc()
	observability.ConnectionsActive().Inc()
	s.presence.Register(client.userID, client.handleID)

	s.joinInitialRooms(baseCtx, client)

	go client.writer()
	client.reader()
}

// joinInitialRooms subscribes the fresh connection to its private user room,
// every chat it belongs to and every project it is a member of, so events
// flow without per-room handshakes. Explicit join events remain available
// for rooms created after connect.
func (s *realtimeService) joinInitialRooms(ctx context.Context, client *realtimeClient) {
	s.hub.join(client, UserRoom(client.userID))

	if chats, err := s.chats.ListChats(ctx, client.userID); err == nil {
		for _, chat := range chats {
			s.hub.join(client, ChatRoom(chat.ID))
		}
	} else {
		s.logger.Warn().Err(err).Str("user_id", client.userID).Msg("initial chat room subscription failed")
	}

	if projectIDs, err := s.members.ListProjectIDsForUser(ctx, client.userID); err == nil {
		for _, projectID := range projectIDs {
			s.hub.join(client, ProjectRoom(projectID))
		}
	} else {
		s.logger.Warn().Err(err).Str("user_id", client.userID).Msg("initial project room subscription failed")
	}
}

// EmitToRoom broadcasts to local room members and relays the event to peer
// nodes. This is the single fan-out path for both websocket-originated and
// REST-originated events.
func (s *realtimeService) EmitToRoom(room Room, event string, payload interface{}) {
	s.EmitToRoomExcept(room, event, payload, "")
}

// EmitToRoomExcept broadcasts like EmitToRoom but suppresses delivery to the
// given user on every node, for events that must not echo to the actor.
func (s *realtimeService) EmitToRoomExcept(room Room, event string, payload interface{}, excludeUserID string) {
	s.hub.broadcast(room.String(), event, payload, excludeUserID)
	s.publish(room.String(), event, payload, excludeUserID)
}

// PushNotification delivers a notification event to the recipient's current
// connection handle, resolved through the presence registry so a stale socket
// lingering in the user room never double-receives. Reports whether the local
// node delivered; peers deliver to their own registered handle via the bus.
func (s *realtimeService) PushNotification(recipientID string, notification dto.NotificationResponse) bool {
	delivered := s.deliverNotification(recipientID, notification)
	s.publish(UserRoom(recipientID).String(), EventNewNotification, notification, "")
	return delivered > 0
}

// deliverNotification pushes to the one connection the presence registry
// holds for the recipient on this node, if any.
func (s *realtimeService) deliverNotification(recipientID string, payload interface{}) int {
	handleID, ok := s.presence.Lookup(recipientID)
	if !ok {
		return 0
	}
	return s.hub.sendToHandle(UserRoom(recipientID).String(), EventNewNotification, payload, handleID)
}

func (s *realtimeService) publish(room, event string, payload interface{}, excludeUserID string) {
	if (s.redis == nil || s.redisChan == "") && (s.nats == nil || s.natsSubject == "") {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to marshal relay payload")
		return
	}

	frame, err := json.Marshal(busEvent{
		Source:        s.nodeID,
		Room:          room,
		Event:         event,
		Payload:       raw,
		ExcludeUserID: excludeUserID,
		SentAt:        time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to marshal relay frame")
		return
	}

	if s.redis != nil && s.redisChan != "" {
		if err := s.redis.Publish(context.Background(), s.redisChan, frame).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("redis relay publish failed")
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, frame); err != nil {
			s.logger.Warn().Err(err).Msg("nats relay publish failed")
		}
	}
}

func (s *realtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChan)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		s.handleBusEvent([]byte(msg.Payload))
	}
}

func (s *realtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "collab-realtime", func(msg *nats.Msg) {
		s.handleBusEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (s *realtimeService) handleBusEvent(data []byte) {
	var event busEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid realtime relay frame")
		return
	}
	if event.Source == s.nodeID {
		return
	}

	// Notification frames stay presence-gated on every node: deliver to the
	// locally registered handle instead of spraying the whole user room.
	if event.Event == EventNewNotification {
		if userID, ok := userRoomID(event.Room); ok {
			s.deliverNotification(userID, event.Payload)
			return
		}
	}

	s.hub.broadcast(event.Room, event.Event, event.Payload, event.ExcludeUserID)
}

func userRoomID(room string) (string, bool) {
	userID, ok := strings.CutPrefix(room, "user_")
	return userID, ok
}

func (s *realtimeService) handleClientEvent(ctx context.Context, client *realtimeClient, envelope wsEnvelope) {
	switch envelope.Event {
	case EventJoinChat:
		s.handleJoinChat(ctx, client, envelope.Payload)
	case EventSendMessage:
		s.handleSendMessage(ctx, client, envelope.Payload)
	case EventMarkRead:
		s.handleMarkRead(ctx, client, envelope.Payload)
	case EventTypingStart:
		s.handleTyping(client, envelope.Payload, EventUserTyping)
	case EventTypingStop:
		s.handleTyping(client, envelope.Payload, EventUserStopped)
	case EventJoinProject:
		s.handleJoinProject(ctx, client, envelope.Payload)
	case EventLeaveProject:
		s.handleLeaveProject(client, envelope.Payload)
	default:
		client.enqueue(outboundEvent{Event: EventMessageError, Payload: messageErrorPayload{
			Event: envelope.Event,
			Error: "unknown event",
		}})
	}
}

func (s *realtimeService) handleJoinChat(ctx context.Context, client *realtimeClient, raw json.RawMessage) {
	var payload joinChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChatID == 0 {
		client.ackJoinChat(payload.ChatID, "invalid join_chat payload")
		return
	}

	member, err := s.chats.IsMember(ctx, payload.ChatID, client.userID)
	if err != nil {
		client.ackJoinChat(payload.ChatID, "membership check failed")
		return
	}
	if !member {
		client.ackJoinChat(payload.ChatID, "not a member of this chat")
		return
	}

	s.hub.join(client, ChatRoom(payload.ChatID))
	client.ackJoinChat(payload.ChatID, "")
}

func (s *realtimeService) handleSendMessage(ctx context.Context, client *realtimeClient, raw json.RawMessage) {
	var payload dto.MessageSendRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.fail(EventSendMessage, "invalid send_message payload")
		return
	}

	message, err := s.chats.SendMessage(ctx, client.userID, payload)
	if err != nil {
		client.fail(EventSendMessage, clientErrorMessage(err))
		return
	}

	s.EmitToRoom(ChatRoom(message.ChatID), EventNewMessage, message)
	s.mentions.Notify(ctx, message)
}

func (s *realtimeService) handleMarkRead(ctx context.Context, client *realtimeClient, raw json.RawMessage) {
	var payload dto.MarkReadRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.fail(EventMarkRead, "invalid mark_messages_read payload")
		return
	}

	if err := s.chats.MarkRead(ctx, client.userID, payload); err != nil {
		client.fail(EventMarkRead, clientErrorMessage(err))
		return
	}

	// The actor already knows what they read; only the rest of the room
	// needs the receipt.
	s.EmitToRoomExcept(ChatRoom(payload.ChatID), EventMessagesRead, messagesReadPayload{
		ChatID:     payload.ChatID,
		MessageIDs: payload.MessageIDs,
		UserID:     client.userID,
	}, client.userID)
}

// handleTyping relays ephemeral typing notices. Nothing is persisted and the
// sender is excluded from the local echo.
func (s *realtimeService) handleTyping(client *realtimeClient, raw json.RawMessage, outEvent string) {
	var payload joinChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChatID == 0 {
		return
	}

	room := ChatRoom(payload.ChatID)
	if !client.inRoom(room.String()) {
		return
	}

	notice := typingNoticePayload{ChatID: payload.ChatID, UserID: client.userID}
	s.hub.broadcast(room.String(), outEvent, notice, client.userID)
	s.publish(room.String(), outEvent, notice, client.userID)
}

func (s *realtimeService) handleJoinProject(ctx context.Context, client *realtimeClient, raw json.RawMessage) {
	var payload projectRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ProjectID == 0 {
		client.ackJoinProject(payload.ProjectID, "invalid join_project payload")
		return
	}

	member, err := s.members.IsProjectMember(ctx, payload.ProjectID, client.userID)
	if err != nil {
		client.ackJoinProject(payload.ProjectID, "membership check failed")
		return
	}
	if !member {
		client.ackJoinProject(payload.ProjectID, "not a member of this project")
		return
	}

	s.hub.join(client, ProjectRoom(payload.ProjectID))
	client.ackJoinProject(payload.ProjectID, "")
}

func (s *realtimeService) handleLeaveProject(client *realtimeClient, raw json.RawMessage) {
	var payload projectRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ProjectID == 0 {
		return
	}
	s.hub.leave(client, ProjectRoom(payload.ProjectID))
}

// clientErrorMessage keeps store internals out of client-visible errors.
func clientErrorMessage(err error) string {
	if apperr.KindOf(err) == apperr.KindStore {
		return "internal error"
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (h *realtimeHub) join(client *realtimeClient, room Room) {
	name := room.String()

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.rooms[name]; !exists {
		h.rooms[name] = make(map[*realtimeClient]struct{})
	}
	h.rooms[name][client] = struct{}{}
	client.joined[name] = struct{}{}
	h.log.Debug().Str("room", name).Str("user_id", client.userID).Msg("client joined room")
}

func (h *realtimeHub) leave(client *realtimeClient, room Room) {
	name := room.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client, name)
}

func (h *realtimeHub) unregister(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name := range client.joined {
		h.dropLocked(client, name)
	}
}

func (h *realtimeHub) dropLocked(client *realtimeClient, name string) {
	if clients, ok := h.rooms[name]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, name)
		}
	}
	delete(client.joined, name)
}

// broadcast enqueues the event for every room member except connections
// belonging to excludeUserID. Slow clients are skipped rather than blocked
// on. Returns the delivery count.
func (h *realtimeHub) broadcast(room, event string, payload interface{}, excludeUserID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.rooms[room] {
		if excludeUserID != "" && client.userID == excludeUserID {
			continue
		}
		if client.enqueue(outboundEvent{Event: event, Payload: payload}) {
			delivered++
		} else {
			h.log.Warn().Str("room", room).Str("user_id", client.userID).Str("event", event).Msg("dropping event for slow client")
		}
	}
	return delivered
}

// sendToHandle delivers only to the room member holding the given connection
// handle. Used for presence-gated notification push.
func (h *realtimeHub) sendToHandle(room, event string, payload interface{}, handleID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if client.handleID != handleID {
			continue
		}
		if client.enqueue(outboundEvent{Event: event, Payload: payload}) {
			return 1
		}
		h.log.Warn().Str("room", room).Str("user_id", client.userID).Str("event", event).Msg("dropping event for slow client")
		return 0
	}
	return 0
}

func (c *realtimeClient) inRoom(name string) bool {
	c.service.hub.mu.RLock()
	defer c.service.hub.mu.RUnlock()
	_, ok := c.joined[name]
	return ok
}

func (c *realtimeClient) enqueue(event outboundEvent) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *realtimeClient) fail(event, message string) {
	c.enqueue(outboundEvent{Event: EventMessageError, Payload: messageErrorPayload{Event: event, Error: message}})
}

// ackJoinChat acknowledges a join_chat attempt; an empty errMsg means the
// join succeeded.
func (c *realtimeClient) ackJoinChat(chatID uint, errMsg string) {
	c.enqueue(outboundEvent{Event: EventJoinedChat, Payload: joinChatAck{
		ChatID:  chatID,
		Success: errMsg == "",
		Error:   errMsg,
	}})
}

func (c *realtimeClient) ackJoinProject(projectID uint, errMsg string) {
	c.enqueue(outboundEvent{Event: EventJoinedProject, Payload: joinProjectAck{
		ProjectID: projectID,
		Success:   errMsg == "",
		Error:     errMsg,
	}})
}

func (c *realtimeClient) reader() {
	defer c.close()

	for {
		var envelope wsEnvelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			c.service.logger.Debug().Err(err).Str("user_id", c.userID).Msg("realtime read loop ended")
			return
		}
		c.service.handleClientEvent(c.baseCtx, c, envelope)
	}
}

func (c *realtimeClient) writer() {
	defer c.close()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Str("user_id", c.userID).Msg("realtime write loop terminated")
				return
			}
		case <-time.After(realtimePingInterval):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Str("user_id", c.userID).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		c.service.presence.Unregister(c.userID, c.handleID)
		observability.ConnectionsActive().Dec()
		_ = c.conn.Close()
	})
}
