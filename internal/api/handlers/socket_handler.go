package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/api/middleware"
	"github.com/kaanagar1/equimarket-sub000/internal/auth"
	"github.com/kaanagar1/equimarket-sub000/internal/realtime"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// OfferRespondPayload is the data of an offer:respond event.
type OfferRespondPayload struct {
	MessageID utils.SixID `json:"messageId"`
	services.OfferResponseInput
}

// SocketHandler upgrades authenticated clients to the realtime channel and
// handles the events that reach into the message store.
type SocketHandler struct {
	Responder
	hub            *realtime.Hub
	messageService services.IMessageService
	jwtSecret      string
	upgrader       websocket.Upgrader
	ctx            context.Context
}

// NewSocketHandler creates a SocketHandler. Connections live until they
// fail or ctx is done.
func NewSocketHandler(ctx context.Context, r Responder, hub *realtime.Hub, messageService services.IMessageService, jwtSecret, allowedOrigin string) *SocketHandler {
	h := &SocketHandler{
		Responder:      r,
		hub:            hub,
		messageService: messageService,
		jwtSecret:      jwtSecret,
		ctx:            ctx,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
		},
	}
	return h
}

func (h *SocketHandler) authenticate(c *gin.Context) (utils.SixID, bool) {
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c)
	}
	if token == "" {
		return utils.SixID{}, false
	}
	claims, err := auth.ValidateJWT(token, h.jwtSecret)
	if err != nil {
		return utils.SixID{}, false
	}
	id, err := claims.ID()
	return id, err == nil
}

// ServeSocket handles GET /v1/socket
func (h *SocketHandler) ServeSocket(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		h.fail(c, services.ErrUnauthorized("a valid token is required"))
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := realtime.NewClient(h.hub, userID, conn)
	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump(h.ctx)
}

// HandleEvent implements realtime.EventHandler.
func (h *SocketHandler) HandleEvent(ctx context.Context, c *realtime.Client, env realtime.Envelope) {
	switch env.Event {
	case realtime.EventMessageSend:
		var in services.SendMessageInput
		if !h.decode(c, env, &in) {
			return
		}
		view, err := h.messageService.SendMessage(ctx, c.UserID, in)
		if err != nil {
			h.emitError(c, env.Event, err)
			return
		}
		// Senders that have not joined the room yet still see their message.
		if !c.InRoom(realtime.ConversationRoom(view.Conversation)) {
			_ = c.Emit(realtime.EventMessageNew, view)
		}

	case realtime.EventMessagesRead:
		var ref realtime.ConversationRef
		if !h.decode(c, env, &ref) {
			return
		}
		if ref.ConversationID.IsZero() {
			c.EmitError("conversationId is required")
			return
		}
		if _, err := h.messageService.ReadConversation(ctx, ref.ConversationID, c.UserID); err != nil {
			h.emitError(c, env.Event, err)
		}

	case realtime.EventOfferRespond:
		var in OfferRespondPayload
		if !h.decode(c, env, &in) {
			return
		}
		if in.MessageID.IsZero() {
			c.EmitError("messageId is required")
			return
		}
		if _, err := h.messageService.AnswerOffer(ctx, in.MessageID, c.UserID, in.OfferResponseInput); err != nil {
			h.emitError(c, env.Event, err)
		}

	default:
		c.EmitError("unknown event: " + env.Event)
	}
}

func (h *SocketHandler) decode(c *realtime.Client, env realtime.Envelope, dst any) bool {
	if len(env.Data) == 0 || json.Unmarshal(env.Data, dst) != nil {
		c.EmitError("invalid payload for " + env.Event)
		return false
	}
	return true
}

func (h *SocketHandler) emitError(c *realtime.Client, event string, err error) {
	message := services.MessageOf(err)
	if services.KindOf(err) == services.KindInternal {
		h.logger.Error("realtime event failed", zap.String("event", event), zap.Stringer("user", c.UserID), zap.Error(err))
		if h.production || message == "" {
			message = genericErrorMessage
		}
	}
	c.EmitError(message)
}
