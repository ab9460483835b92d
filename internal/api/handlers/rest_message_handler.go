package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaanagar1/equimarket-sub000/internal/services"
)

// RestMessageHandler handles conversations, messages and offers.
type RestMessageHandler struct {
	Responder
	messageService services.IMessageService
}

// NewRestMessageHandler creates a new RestMessageHandler.
func NewRestMessageHandler(r Responder, messageService services.IMessageService) *RestMessageHandler {
	return &RestMessageHandler{Responder: r, messageService: messageService}
}

// SendMessage handles POST /v1/messages/send
func (h *RestMessageHandler) SendMessage(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	var in services.SendMessageInput
	if !h.bind(c, &in) {
		return
	}
	msg, err := h.messageService.SendMessage(c.Request.Context(), actor.ID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, msg)
}

// RespondToOffer handles PUT /v1/messages/:messageId/offer-response
func (h *RestMessageHandler) RespondToOffer(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	messageID, ok := h.pathID(c, "messageId")
	if !ok {
		return
	}
	var in services.OfferResponseInput
	if !h.bind(c, &in) {
		return
	}
	result, err := h.messageService.AnswerOffer(c.Request.Context(), messageID, actor.ID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, result)
}

// ListConversations handles GET /v1/messages/conversations
func (h *RestMessageHandler) ListConversations(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	convs, err := h.messageService.ListConversations(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if convs == nil {
		convs = []services.ConversationSummary{}
	}
	h.ok(c, http.StatusOK, convs)
}

// GetConversation handles GET /v1/messages/conversations/:id
func (h *RestMessageHandler) GetConversation(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.messageService.GetConversation(c.Request.Context(), id, actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, detail)
}

// UnreadCount handles GET /v1/messages/unread-count
func (h *RestMessageHandler) UnreadCount(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	count, err := h.messageService.UnreadTotal(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"count": count})
}
