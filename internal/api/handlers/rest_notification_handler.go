package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
)

// RestNotificationHandler exposes the caller's notification inbox.
type RestNotificationHandler struct {
	Responder
	notificationService services.INotificationService
}

// NewRestNotificationHandler creates a new RestNotificationHandler.
func NewRestNotificationHandler(r Responder, notificationService services.INotificationService) *RestNotificationHandler {
	return &RestNotificationHandler{Responder: r, notificationService: notificationService}
}

// ListNotifications handles GET /v1/notifications
func (h *RestNotificationHandler) ListNotifications(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	page, limit := pagination(c)
	items, total, err := h.notificationService.List(c.Request.Context(), actor.ID, c.Query("unread") == "true", page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	h.ok(c, http.StatusOK, gin.H{"items": items, "total": total, "page": page, "limit": limit})
}

// UnreadCount handles GET /v1/notifications/unread-count
func (h *RestNotificationHandler) UnreadCount(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	count, err := h.notificationService.UnreadCount(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead handles PUT /v1/notifications/:id/read
func (h *RestNotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notificationService.MarkRead(c.Request.Context(), actor.ID, id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"id": id, "read": true})
}

// MarkAllRead handles PUT /v1/notifications/read-all
func (h *RestNotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	updated, err := h.notificationService.MarkAllRead(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"updated": updated})
}

// DeleteNotification handles DELETE /v1/notifications/:id
func (h *RestNotificationHandler) DeleteNotification(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notificationService.Delete(c.Request.Context(), actor.ID, id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"deleted": id})
}
