package tasks

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/config"
	"github.com/kaanagar1/equimarket-sub000/internal/email"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// Task types.
const (
	TypeEmailDelivery      = "email:deliver"
	TypeImageProcess       = "image:process"
	TypeListingExpiryWarn  = "listing:expiry_warning"
	TypeListingExpire      = "listing:expire"
	TypeSavedSearchCheck   = "saved_search:check"
	TypeNotificationPrune  = "notification:prune"
	QueueCritical          = "critical"
	QueueDefault           = "default"
	QueueImages            = "images"
	QueueMaintenance       = "low"
	maintenanceTaskTimeout = 10 * time.Minute
)

// ListingStore is the part of the listing service the workers use.
type ListingStore interface {
	AddImage(ctx context.Context, id utils.SixID, imageKey string) error
	FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Listing, error)
	FindExpiredBefore(ctx context.Context, now time.Time) ([]models.Listing, error)
	Expire(ctx context.Context, id utils.SixID, now time.Time) (bool, error)
	CountCreatedSince(ctx context.Context, filter models.ListingFilter, since time.Time) (int64, error)
}

// Notifier is the part of the notification service the sweeps use.
type Notifier interface {
	ExistsForBucket(ctx context.Context, typ models.NotificationType, relatedID utils.SixID, bucket string) (bool, error)
	NotifyListingExpiring(ctx context.Context, listing *models.Listing, daysLeft int, bucket string) error
	NotifyListingExpired(ctx context.Context, listing *models.Listing) error
	NotifySavedSearchMatch(ctx context.Context, search *models.SavedSearch, count int64) error
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SavedSearchStore is the part of the saved search service the sweep uses.
type SavedSearchStore interface {
	FindDue(ctx context.Context, now time.Time) ([]models.SavedSearch, error)
	RecordCheck(ctx context.Context, id utils.SixID, matchCount int64, checkedAt time.Time, notified bool) error
}

// EmailRenderer renders stored email templates.
type EmailRenderer interface {
	Render(ctx context.Context, templateID, locale string, data map[string]any) (*services.RenderedEmail, error)
}

// ObjectStore reads and writes uploaded images.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, string, error)
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// Deps are the collaborators of the task handlers. Handlers whose
// dependencies are nil are not registered.
type Deps struct {
	Config        *config.Config
	Sender        email.Sender
	Templates     EmailRenderer
	Storage       ObjectStore
	Listings      ListingStore
	Notifier      Notifier
	SavedSearches SavedSearchStore
	Logger        *zap.Logger
}

// TaskProcessor handles background tasks.
type TaskProcessor struct {
	cfg           *config.Config
	sender        email.Sender
	templates     EmailRenderer
	storage       ObjectStore
	listings      ListingStore
	notifier      Notifier
	savedSearches SavedSearchStore
	logger        *zap.Logger
}

// NewTaskProcessor creates a TaskProcessor.
func NewTaskProcessor(d Deps) *TaskProcessor {
	return &TaskProcessor{
		cfg:           d.Config,
		sender:        d.Sender,
		templates:     d.Templates,
		storage:       d.Storage,
		listings:      d.Listings,
		notifier:      d.Notifier,
		savedSearches: d.SavedSearches,
		logger:        d.Logger.Named("tasks"),
	}
}

// RedisOpt builds the asynq connection options from cfg.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// NewClient creates the asynq client used to enqueue tasks.
func NewClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// Mux registers every handler whose dependencies are configured.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	if p.sender != nil && p.templates != nil {
		mux.HandleFunc(TypeEmailDelivery, p.HandleEmailDeliveryTask)
	}
	if p.storage != nil && p.listings != nil {
		mux.HandleFunc(TypeImageProcess, p.HandleImageProcessTask)
	}
	if p.listings != nil && p.notifier != nil {
		mux.HandleFunc(TypeListingExpiryWarn, p.HandleExpiryWarningTask)
		mux.HandleFunc(TypeListingExpire, p.HandleExpireTask)
		mux.HandleFunc(TypeNotificationPrune, p.HandleNotificationPruneTask)
		if p.savedSearches != nil {
			mux.HandleFunc(TypeSavedSearchCheck, p.HandleSavedSearchTask)
		}
	}
	return mux
}

// NewServer creates the asynq server. The caller runs it with Mux.
func NewServer(cfg *config.Config, logger *zap.Logger) *asynq.Server {
	log := logger.Named("asynq")
	return asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Queues: map[string]int{
				QueueCritical:    6,
				QueueDefault:     3,
				QueueImages:      3,
				QueueMaintenance: 1,
			},
			Logger: log.Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("task failed", zap.String("type", task.Type()), zap.ByteString("payload", task.Payload()), zap.Error(err))
			}),
		},
	)
}
