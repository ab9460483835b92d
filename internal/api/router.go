package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/api/handlers"
	"github.com/kaanagar1/equimarket-sub000/internal/api/middleware"
	"github.com/kaanagar1/equimarket-sub000/internal/config"
	"github.com/kaanagar1/equimarket-sub000/internal/email"
	"github.com/kaanagar1/equimarket-sub000/internal/realtime"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
)

// Dependencies are the collaborators of the public API.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Users         services.IUserService
	Listings      services.IListingService
	Messages      services.IMessageService
	Notifications services.INotificationService
	Reviews       services.IReviewService
	SavedSearches services.ISavedSearchService
	Images        handlers.ImageStore
	Enqueuer      handlers.ImageEnqueuer
	Hub           *realtime.Hub
}

// SetupRouter configures and returns the main Gin engine. It also installs
// the socket handler as the hub's event handler. Background goroutines
// started here stop when ctx is done.
func SetupRouter(ctx context.Context, d Dependencies) *gin.Engine {
	cfg := d.Config
	responder := handlers.NewResponder(d.Logger, cfg.IsProduction())

	authHandler := handlers.NewRestAuthHandler(responder, d.Users, cfg.JwtSecret, cfg.JwtTTL)
	userHandler := handlers.NewRestUserHandler(responder, d.Users, d.Hub)
	listingHandler := handlers.NewRestListingHandler(responder, d.Listings, d.Images, d.Enqueuer)
	messageHandler := handlers.NewRestMessageHandler(responder, d.Messages)
	reviewHandler := handlers.NewRestReviewHandler(responder, d.Reviews)
	notificationHandler := handlers.NewRestNotificationHandler(responder, d.Notifications)
	savedSearchHandler := handlers.NewRestSavedSearchHandler(responder, d.SavedSearches)
	socketHandler := handlers.NewSocketHandler(ctx, responder, d.Hub, d.Messages, cfg.JwtSecret, cfg.CorsAllowedOrigin)
	d.Hub.SetHandler(socketHandler)

	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger), gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigin))

	rateLimiter := middleware.NewRateLimiterMiddleware(ctx, cfg, d.Logger)
	authRequired := middleware.AuthMiddleware(cfg.JwtSecret)
	adminRequired := middleware.AdminMiddleware()

	v1 := r.Group("/v1")
	v1.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	// The socket authenticates itself from the query string.
	v1.GET("/socket", socketHandler.ServeSocket)

	public := v1.Group("/")
	public.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret), rateLimiter.Limit())
	{
		public.POST("/auth/register", authHandler.Register)
		public.POST("/auth/login", authHandler.Login)

		public.GET("/horses", listingHandler.SearchListings)
		public.GET("/horses/:id", listingHandler.GetListingByID)
		public.GET("/users/:id", userHandler.GetUserByID)
		public.GET("/users/:id/horses", listingHandler.SearchUserListings)
		public.GET("/users/:id/reviews", reviewHandler.ListReviews)
		public.GET("/users/:id/online", userHandler.GetOnlineStatus)
	}

	private := v1.Group("/")
	private.Use(authRequired, rateLimiter.Limit())
	{
		private.GET("/users/me", userHandler.GetMe)
		private.PUT("/users/me", userHandler.UpdateMe)
		private.PUT("/users/me/notification-preferences", userHandler.UpdateNotificationPreferences)
		private.GET("/users/me/favorites", userHandler.ListFavorites)
		private.POST("/users/me/favorites/:horseId", userHandler.ToggleFavorite)
		private.POST("/users/:id/reviews", reviewHandler.CreateReview)

		private.POST("/horses", listingHandler.CreateListing)
		private.PUT("/horses/:id", listingHandler.UpdateListing)
		private.DELETE("/horses/:id", listingHandler.DeleteListing)
		private.POST("/horses/:id/renew", listingHandler.RenewListing)
		private.POST("/horses/:id/sold", listingHandler.MarkSold)
		private.POST("/horses/:id/images/upload-url", listingHandler.CreateUploadURL)
		private.POST("/horses/:id/images", listingHandler.AttachImage)

		private.POST("/messages/send", messageHandler.SendMessage)
		private.PUT("/messages/:messageId/offer-response", messageHandler.RespondToOffer)
		private.GET("/messages/conversations", messageHandler.ListConversations)
		private.GET("/messages/conversations/:id", messageHandler.GetConversation)
		private.GET("/messages/unread-count", messageHandler.UnreadCount)

		private.GET("/notifications", notificationHandler.ListNotifications)
		private.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		private.PUT("/notifications/read-all", notificationHandler.MarkAllRead)
		private.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		private.DELETE("/notifications/:id", notificationHandler.DeleteNotification)

		private.POST("/saved-searches", savedSearchHandler.CreateSavedSearch)
		private.GET("/saved-searches", savedSearchHandler.ListSavedSearches)
		private.PUT("/saved-searches/:id", savedSearchHandler.UpdateSavedSearch)
		private.DELETE("/saved-searches/:id", savedSearchHandler.DeleteSavedSearch)
	}

	admin := v1.Group("/admin")
	admin.Use(authRequired, adminRequired)
	{
		admin.GET("/horses/pending", listingHandler.ListPending)
		admin.POST("/horses/:id/approve", listingHandler.ApproveListing)
		admin.POST("/horses/:id/reject", listingHandler.RejectListing)
		admin.DELETE("/users/:id", userHandler.DeleteUser)
	}

	return r
}

// OnlineCounter reports the number of users with an open realtime connection.
type OnlineCounter interface {
	OnlineCount() int
}

// SetupServiceRouter configures and returns the service Gin engine. It is
// bound to an internal port and serves health, metrics and test helpers.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, online OnlineCounter, shutdownChan chan<- struct{}, logger *zap.Logger) *gin.Engine {
	log := logger.Named("service_api")
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "mode": cfg.RunMode, "time": time.Now().UTC()}
		if online != nil {
			body["onlineCount"] = online.OnlineCount()
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info("shutdown requested via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "data": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
			}

		case "getTestEmail":
			if cfg.IsProduction() || rdb == nil {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Test mailbox is disabled"})
				return
			}
			var args []string // ["email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid arguments: expected JSON array [email]"})
				return
			}
			mailbox := email.NewRedisSender(rdb, logger)

			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			// Delivery is asynchronous, so poll briefly.
			for i := 0; i < 10; i++ {
				stored, err := mailbox.Latest(ctx, args[0])
				if err != nil {
					log.Error("failed to read test mailbox", zap.String("to", args[0]), zap.Error(err))
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Redis error"})
					return
				}
				if stored != nil {
					c.JSON(http.StatusOK, gin.H{"success": true, "data": stored})
					return
				}
				select {
				case <-ctx.Done():
					i = 10
				case <-time.After(200 * time.Millisecond):
				}
			}
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No test email for " + args[0]})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Unknown service method: " + req.Method})
		}
	})
	return r
}
