package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kaanagar1/equimarket-sub000/internal/auth"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
)

// RestAuthHandler handles registration and login.
type RestAuthHandler struct {
	Responder
	userService services.IUserService
	jwtSecret   string
	jwtTTL      time.Duration
}

// NewRestAuthHandler creates a new RestAuthHandler.
func NewRestAuthHandler(r Responder, userService services.IUserService, jwtSecret string, jwtTTL time.Duration) *RestAuthHandler {
	return &RestAuthHandler{Responder: r, userService: userService, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries a bearer token for HTTP and socket clients.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *RestAuthHandler) issue(c *gin.Context, status int, user *models.User) {
	token, err := auth.GenerateJWT(user.ID, user.Role, h.jwtSecret, h.jwtTTL)
	if err != nil {
		h.fail(c, services.ErrInternal("failed to issue token", err))
		return
	}
	h.ok(c, status, AuthResponse{Token: token, User: user})
}

// Register handles POST /v1/auth/register
func (h *RestAuthHandler) Register(c *gin.Context) {
	var in services.RegisterInput
	if !h.bind(c, &in) {
		return
	}
	user, err := h.userService.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, http.StatusCreated, user)
}

// Login handles POST /v1/auth/login
func (h *RestAuthHandler) Login(c *gin.Context) {
	var in LoginRequest
	if !h.bind(c, &in) {
		return
	}
	user, err := h.userService.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, http.StatusOK, user)
}
