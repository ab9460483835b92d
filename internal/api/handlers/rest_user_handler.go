package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// PresenceChecker answers whether a user has an open realtime connection.
type PresenceChecker interface {
	IsOnline(userID utils.SixID) bool
}

// RestUserHandler handles REST requests related to users.
type RestUserHandler struct {
	Responder
	userService services.IUserService
	presence    PresenceChecker
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(r Responder, userService services.IUserService, presence PresenceChecker) *RestUserHandler {
	return &RestUserHandler{Responder: r, userService: userService, presence: presence}
}

// GetMe handles GET /v1/users/me
func (h *RestUserHandler) GetMe(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, user)
}

// UpdateMe handles PUT /v1/users/me
func (h *RestUserHandler) UpdateMe(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	var in services.ProfileUpdate
	if !h.bind(c, &in) {
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), actor.ID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, user)
}

// UpdateNotificationPreferences handles PUT /v1/users/me/notification-preferences
func (h *RestUserHandler) UpdateNotificationPreferences(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	var prefs models.NotificationPreferences
	if !h.bind(c, &prefs) {
		return
	}
	user, err := h.userService.UpdateNotificationPreferences(c.Request.Context(), actor.ID, prefs)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, user.NotificationPreferences)
}

// ToggleFavorite handles POST /v1/users/me/favorites/:horseId
func (h *RestUserHandler) ToggleFavorite(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	horseID, ok := h.pathID(c, "horseId")
	if !ok {
		return
	}
	added, err := h.userService.ToggleFavorite(c.Request.Context(), actor.ID, horseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"favorited": added})
}

// ListFavorites handles GET /v1/users/me/favorites
func (h *RestUserHandler) ListFavorites(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}
	listings, err := h.userService.ListFavorites(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if listings == nil {
		listings = []models.Listing{}
	}
	h.ok(c, http.StatusOK, listings)
}

// GetUserByID handles GET /v1/users/:id
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	userID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, user.Public())
}

// GetOnlineStatus handles GET /v1/users/:id/online
func (h *RestUserHandler) GetOnlineStatus(c *gin.Context) {
	userID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	h.ok(c, http.StatusOK, gin.H{"online": h.presence.IsOnline(userID)})
}

// DeleteUser handles DELETE /v1/admin/users/:id
func (h *RestUserHandler) DeleteUser(c *gin.Context) {
	userID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.userService.DeleteUserAndListings(c.Request.Context(), userID); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"deleted": userID})
}
