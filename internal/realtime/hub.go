package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// broadcastRoom addresses every connection.
const broadcastRoom = "*"

// ErrNotParticipant is returned when a connection asks to join a conversation it is not part of.
var ErrNotParticipant = errors.New("not a participant of this conversation")

// UserRoom is the room every connection of a user joins on connect.
func UserRoom(userID utils.SixID) string {
	return "user:" + userID.String()
}

// ConversationRoom is the room of a conversation's live viewers.
func ConversationRoom(conversationID utils.SixID) string {
	return "conversation:" + conversationID.String()
}

// ConversationAuthorizer decides whether a user may join a conversation room.
type ConversationAuthorizer interface {
	IsParticipant(ctx context.Context, conversationID, userID utils.SixID) (bool, error)
}

// EventHandler handles client events the hub does not route itself.
type EventHandler interface {
	HandleEvent(ctx context.Context, c *Client, env Envelope)
}

// ConversationRef is the payload of room and typing events.
type ConversationRef struct {
	ConversationID utils.SixID `json:"conversationId"`
}

// TypingPayload is broadcast to a conversation when a participant types.
type TypingPayload struct {
	ConversationID utils.SixID `json:"conversationId"`
	UserID         utils.SixID `json:"userId"`
	IsTyping       bool        `json:"isTyping"`
}

// PresencePayload announces a user going online or offline.
type PresencePayload struct {
	UserID utils.SixID `json:"userId"`
}

// Hub routes events to rooms of connections and owns the presence registry.
type Hub struct {
	presence  *Presence
	auth      ConversationAuthorizer
	backplane Backplane
	logger    *zap.Logger

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	handler EventHandler
}

// NewHub creates a hub. backplane may be nil for single-process deployments.
func NewHub(auth ConversationAuthorizer, backplane Backplane, logger *zap.Logger) *Hub {
	return &Hub{
		presence:  NewPresence(),
		auth:      auth,
		backplane: backplane,
		logger:    logger.Named("realtime"),
		rooms:     make(map[string]map[*Client]struct{}),
		clients:   make(map[*Client]struct{}),
	}
}

// SetAuthorizer sets the conversation authorizer. Used to break the
// construction cycle between the hub and the message service.
func (h *Hub) SetAuthorizer(auth ConversationAuthorizer) {
	h.mu.Lock()
	h.auth = auth
	h.mu.Unlock()
}

// SetHandler sets the handler for client events outside room management.
func (h *Hub) SetHandler(handler EventHandler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Run relays backplane traffic into local rooms until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.backplane == nil {
		<-ctx.Done()
		return nil
	}
	return h.backplane.Subscribe(ctx, h.deliverLocal)
}

// Register adds a connection, joins it to its user room and announces the
// user if this is their first connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.join(c, UserRoom(c.UserID))

	if h.presence.Register(c) {
		h.broadcast(context.Background(), EventUserOnline, PresencePayload{UserID: c.UserID})
	}
}

// Unregister removes a connection from every room and announces the user
// offline if it was their last connection.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	for _, room := range c.roomList() {
		h.removeLocked(c, room)
	}
	h.mu.Unlock()
	if !known {
		return
	}
	c.close()

	if h.presence.Unregister(c) {
		h.broadcast(context.Background(), EventUserOffline, PresencePayload{UserID: c.UserID})
	}
}

// IsOnline reports whether the user has an open connection.
func (h *Hub) IsOnline(userID utils.SixID) bool {
	return h.presence.IsOnline(userID)
}

// OnlineCount returns the number of online users.
func (h *Hub) OnlineCount() int {
	return h.presence.OnlineCount()
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	c.joined(room)
}

// removeLocked must be called with mu held.
func (h *Hub) removeLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	c.left(room)
}

// JoinConversation joins c to the conversation room if its user is a participant.
// A failed lookup is treated as a rejection.
func (h *Hub) JoinConversation(ctx context.Context, c *Client, conversationID utils.SixID) error {
	h.mu.RLock()
	auth := h.auth
	h.mu.RUnlock()
	if auth == nil {
		return ErrNotParticipant
	}
	ok, err := auth.IsParticipant(ctx, conversationID, c.UserID)
	if err != nil {
		h.logger.Warn("conversation lookup failed", zap.Stringer("conversation", conversationID), zap.Error(err))
		return ErrNotParticipant
	}
	if !ok {
		return ErrNotParticipant
	}
	h.join(c, ConversationRoom(conversationID))
	return nil
}

// LeaveConversation removes c from the conversation room.
func (h *Hub) LeaveConversation(c *Client, conversationID utils.SixID) {
	h.mu.Lock()
	h.removeLocked(c, ConversationRoom(conversationID))
	h.mu.Unlock()
}

// RoomSize returns the number of local connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// SendToUser delivers an event to every connection of the user.
func (h *Hub) SendToUser(ctx context.Context, userID utils.SixID, event string, payload any) error {
	return h.emit(ctx, UserRoom(userID), "", event, payload)
}

// SendToConversation delivers an event to every connection in the conversation room.
func (h *Hub) SendToConversation(ctx context.Context, conversationID utils.SixID, event string, payload any) error {
	return h.emit(ctx, ConversationRoom(conversationID), "", event, payload)
}

// SendToConversationExcept is SendToConversation skipping the given connection.
func (h *Hub) SendToConversationExcept(ctx context.Context, conversationID utils.SixID, except *Client, event string, payload any) error {
	return h.emit(ctx, ConversationRoom(conversationID), except.ID, event, payload)
}

func (h *Hub) broadcast(ctx context.Context, event string, payload any) {
	if err := h.emit(ctx, broadcastRoom, "", event, payload); err != nil {
		h.logger.Warn("presence broadcast failed", zap.String("event", event), zap.Error(err))
	}
}

func (h *Hub) emit(ctx context.Context, room, exceptID, event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	h.deliverLocal(room, exceptID, frame)
	if h.backplane != nil {
		return h.backplane.Publish(ctx, room, exceptID, frame)
	}
	return nil
}

func (h *Hub) deliverLocal(room, exceptID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.rooms[room]
	if room == broadcastRoom {
		targets = h.clients
	}
	for c := range targets {
		if c.ID == exceptID {
			continue
		}
		c.enqueue(frame)
	}
}

// Dispatch handles one client event. Room and typing events are handled
// here; everything else goes to the registered EventHandler.
func (h *Hub) Dispatch(ctx context.Context, c *Client, env Envelope) {
	switch env.Event {
	case EventConversationJoin, EventConversationLeave, EventTypingStart, EventTypingStop:
		var ref ConversationRef
		if err := json.Unmarshal(env.Data, &ref); err != nil || ref.ConversationID.IsZero() {
			c.EmitError("conversationId is required")
			return
		}
		h.dispatchRoomEvent(ctx, c, env.Event, ref.ConversationID)
		return
	}

	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler == nil {
		c.EmitError("unknown event: " + env.Event)
		return
	}
	handler.HandleEvent(ctx, c, env)
}

func (h *Hub) dispatchRoomEvent(ctx context.Context, c *Client, event string, conversationID utils.SixID) {
	switch event {
	case EventConversationJoin:
		if err := h.JoinConversation(ctx, c, conversationID); err != nil {
			c.EmitError(err.Error())
		}
	case EventConversationLeave:
		h.LeaveConversation(c, conversationID)
	case EventTypingStart, EventTypingStop:
		if !c.InRoom(ConversationRoom(conversationID)) {
			c.EmitError("join the conversation before typing")
			return
		}
		payload := TypingPayload{ConversationID: conversationID, UserID: c.UserID, IsTyping: event == EventTypingStart}
		if err := h.SendToConversationExcept(ctx, conversationID, c, EventTypingUpdate, payload); err != nil {
			h.logger.Warn("typing relay failed", zap.Stringer("conversation", conversationID), zap.Error(err))
		}
	}
}
