package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/config"
)

// PeriodicTask is one maintenance sweep and its interval.
type PeriodicTask struct {
	Type     string
	Interval time.Duration
}

// PeriodicTasks lists the maintenance sweeps configured in cfg.
func PeriodicTasks(cfg *config.Config) []PeriodicTask {
	return []PeriodicTask{
		{TypeListingExpiryWarn, cfg.ExpiryWarningInterval},
		{TypeListingExpire, cfg.ExpirySweepInterval},
		{TypeSavedSearchCheck, cfg.SavedSearchInterval},
		{TypeNotificationPrune, cfg.NotificationPruneInterval},
	}
}

func sweepOptions(interval time.Duration) []asynq.Option {
	// A sweep never runs twice at once; the unique lock lasts one interval.
	return []asynq.Option{
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(2),
		asynq.Timeout(maintenanceTaskTimeout),
		asynq.Unique(interval),
	}
}

// NewScheduler registers every sweep on an asynq scheduler at its interval.
func NewScheduler(cfg *config.Config, logger *zap.Logger) (*asynq.Scheduler, error) {
	log := logger.Named("scheduler")
	scheduler := asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   log.Sugar(),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Debug("scheduled sweep not enqueued", zap.Error(err))
			}
		},
	})
	for _, pt := range PeriodicTasks(cfg) {
		spec := fmt.Sprintf("@every %s", pt.Interval)
		if _, err := scheduler.Register(spec, asynq.NewTask(pt.Type, nil), sweepOptions(pt.Interval)...); err != nil {
			return nil, fmt.Errorf("register %s: %w", pt.Type, err)
		}
		log.Info("sweep scheduled", zap.String("type", pt.Type), zap.String("spec", spec))
	}
	return scheduler, nil
}

// EnqueueStartupSweeps runs every sweep once after delay.
func EnqueueStartupSweeps(ctx context.Context, client TaskEnqueuer, cfg *config.Config, logger *zap.Logger) {
	for _, pt := range PeriodicTasks(cfg) {
		opts := append(sweepOptions(cfg.JobsStartupDelay+time.Minute), asynq.ProcessIn(cfg.JobsStartupDelay))
		if _, err := client.EnqueueContext(ctx, asynq.NewTask(pt.Type, nil), opts...); err != nil {
			logger.Warn("startup sweep not enqueued", zap.String("type", pt.Type), zap.Error(err))
		}
	}
}
