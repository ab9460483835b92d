package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/api/middleware"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

const genericErrorMessage = "Internal server error"

// Responder writes the response envelope shared by every handler.
type Responder struct {
	logger     *zap.Logger
	production bool
}

// NewResponder creates a Responder. In production internal error details
// are replaced with a generic message.
func NewResponder(logger *zap.Logger, production bool) Responder {
	return Responder{logger: logger.Named("api"), production: production}
}

func statusOf(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (r Responder) ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func (r Responder) fail(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status := statusOf(kind)
	message := services.MessageOf(err)
	if kind == services.KindInternal {
		_ = c.Error(err)
		r.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		if r.production || message == "" {
			message = genericErrorMessage
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func (r Responder) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// bind decodes the JSON body into dst and answers 400 on failure.
func (r Responder) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		r.badRequest(c, "Invalid request: "+err.Error())
		return false
	}
	return true
}

// pathID parses the SixID route parameter name.
func (r Responder) pathID(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		r.badRequest(c, "Invalid "+name+" format")
		return utils.SixID{}, false
	}
	return id, true
}

// caller returns the authenticated actor. Routes using it sit behind AuthMiddleware.
func (r Responder) caller(c *gin.Context) (services.Actor, bool) {
	actor, ok := middleware.Actor(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication required"})
	}
	return actor, ok
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return services.NormalizePage(page, limit)
}
