package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/api"
	"github.com/kaanagar1/equimarket-sub000/internal/cache"
	"github.com/kaanagar1/equimarket-sub000/internal/config"
	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/email"
	"github.com/kaanagar1/equimarket-sub000/internal/logging"
	"github.com/kaanagar1/equimarket-sub000/internal/realtime"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/storage"
	"github.com/kaanagar1/equimarket-sub000/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks and sweeps), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	switch cfg.RunMode {
	case "api", "bg", "all":
	default:
		log.Fatalf("Invalid run mode: %s", cfg.RunMode)
	}

	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Cancelled on shutdown; stops the hub, the backplane and the rate limiter sweeper.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient, logger); err != nil {
			logger.Error("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()
	if err := db.EnsureIndexes(ctx, mongoDb); err != nil {
		logger.Fatal("Failed to create indexes", zap.Error(err))
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient, logger); err != nil {
			logger.Error("Error disconnecting from Redis", zap.Error(err))
		}
	}()

	taskClient := tasks.NewClient(cfg)
	defer taskClient.Close()
	enqueuer := tasks.NewEnqueuer(taskClient, logger)

	// Realtime hub. Events emitted by background workers reach API
	// processes only through the Redis backplane.
	var backplane realtime.Backplane
	if cfg.RealtimeBackplane == "redis" {
		backplane = realtime.NewRedisBackplane(redisClient, cfg.AppName+":realtime", logger)
	}
	hub := realtime.NewHub(nil, backplane, logger)

	notificationService := services.NewNotificationService(mongoDb, hub, enqueuer, cfg.AppBaseURL, logger)
	listingService := services.NewListingService(mongoDb, cfg.ListingTTL, notificationService, logger)
	userService := services.NewUserService(mongoDb, listingService, notificationService, logger)
	messageService := services.NewMessageService(mongoDb, userService, listingService, notificationService, hub, logger)
	reviewService := services.NewReviewService(mongoDb, userService, notificationService, logger)
	savedSearchService := services.NewSavedSearchService(mongoDb, logger)
	emailTemplateService := services.NewEmailTemplateService(mongoDb)
	hub.SetAuthorizer(messageService)

	s3Storage, err := storage.NewS3Storage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise S3 storage", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Realtime hub stopped", zap.Error(err))
		}
	}()

	shutdownChan := make(chan struct{}, 1)

	// Service API always runs.
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, redisClient, hub, shutdownChan, logger),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Service API listening", zap.String("port", cfg.ServiceApiPort))
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Service API ListenAndServe error", zap.Error(err))
		}
	}()

	var mainApiSrv *http.Server
	var taskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	logger.Info("Starting application", zap.String("mode", cfg.RunMode), zap.String("env", cfg.AppEnv))

	apiMode := func() {
		router := api.SetupRouter(ctx, api.Dependencies{
			Config:        cfg,
			Logger:        logger,
			Users:         userService,
			Listings:      listingService,
			Messages:      messageService,
			Notifications: notificationService,
			Reviews:       reviewService,
			SavedSearches: savedSearchService,
			Images:        s3Storage,
			Enqueuer:      enqueuer,
			Hub:           hub,
		})
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Main API ListenAndServe error", zap.Error(err))
			}
		}()
	}

	bgMode := func() {
		sender, err := email.NewSender(cfg, redisClient, logger)
		if err != nil {
			logger.Fatal("Failed to initialise email sender", zap.Error(err))
		}
		processor := tasks.NewTaskProcessor(tasks.Deps{
			Config:        cfg,
			Sender:        sender,
			Templates:     emailTemplateService,
			Storage:       s3Storage,
			Listings:      listingService,
			Notifier:      notificationService,
			SavedSearches: savedSearchService,
			Logger:        logger,
		})

		taskSrv = tasks.NewServer(cfg, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Background task server starting")
			if err := taskSrv.Run(processor.Mux()); err != nil {
				logger.Fatal("Background task server error", zap.Error(err))
			}
		}()

		scheduler, err = tasks.NewScheduler(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to register periodic tasks", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal("Failed to start scheduler", zap.Error(err))
		}
		tasks.EnqueueStartupSweeps(ctx, taskClient, cfg, logger)
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		logger.Info("Shutdown requested via Service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Service API server shutdown error", zap.Error(err))
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logger.Error("Main API server shutdown error", zap.Error(err))
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}
	// Stops the hub and its backplane subscription.
	cancel()

	wg.Wait()
	logger.Info("Server gracefully stopped")
}
