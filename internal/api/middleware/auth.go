package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kaanagar1/equimarket-sub000/internal/auth"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyIsAdmin holds the key for admin status in Gin context.
	ContextKeyIsAdmin = "isAdmin"
)

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func authenticate(c *gin.Context, token, jwtSecret string) bool {
	claims, err := auth.ValidateJWT(token, jwtSecret)
	if err != nil {
		return false
	}
	userID, err := claims.ID()
	if err != nil {
		return false
	}
	c.Set(ContextKeyUserID, userID)
	c.Set(ContextKeyIsAdmin, claims.IsAdmin())
	return true
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}
		if !authenticate(c, token, jwtSecret) {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware identifies the caller when a valid token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := BearerToken(c); ok {
			authenticate(c, token, jwtSecret)
		}
		c.Next()
	}
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
// Assumes AuthMiddleware runs first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			abort(c, http.StatusForbidden, "Administrator privileges required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (utils.SixID, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return utils.SixID{}, false
	}
	id, ok := v.(utils.SixID)
	return id, ok
}

// Actor returns the authenticated caller as a service actor.
func Actor(c *gin.Context) (services.Actor, bool) {
	id, ok := UserID(c)
	if !ok {
		return services.Actor{}, false
	}
	return services.Actor{ID: id, IsAdmin: c.GetBool(ContextKeyIsAdmin)}, true
}
