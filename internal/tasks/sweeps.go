package tasks

import (
	"context"
	"math"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/metrics"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
)

// Expiry warning windows. A listing is warned once in (3d, 7d] and once in (0, 3d].
const (
	warnSevenDays = 7 * 24 * time.Hour
	warnThreeDays = 3 * 24 * time.Hour
)

// Sweep names used as metric labels.
const (
	SweepExpiryWarning = "expiry_warning"
	SweepExpire        = "expire"
	SweepSavedSearch   = "saved_search"
	SweepPrune         = "notification_prune"
)

func observe(sweep string, started time.Time, items int) {
	metrics.SweepDuration.WithLabelValues(sweep).Observe(time.Since(started).Seconds())
	metrics.SweepItems.WithLabelValues(sweep).Add(float64(items))
}

func daysLeft(expiresAt, now time.Time) int {
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}

// HandleExpiryWarningTask runs RunExpiryWarnings.
func (p *TaskProcessor) HandleExpiryWarningTask(ctx context.Context, _ *asynq.Task) error {
	_, err := p.RunExpiryWarnings(ctx, time.Now().UTC())
	return err
}

// RunExpiryWarnings notifies sellers whose active listings expire within
// seven days. Each listing gets at most one warning per bucket; an existing
// notification with the same type, listing and bucket suppresses a new one.
func (p *TaskProcessor) RunExpiryWarnings(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	windows := []struct {
		bucket   string
		from, to time.Time
	}{
		{models.BucketSevenDays, now.Add(warnThreeDays), now.Add(warnSevenDays)},
		{models.BucketThreeDays, now, now.Add(warnThreeDays)},
	}

	sent := 0
	for _, w := range windows {
		listings, err := p.listings.FindExpiringBetween(ctx, w.from, w.to)
		if err != nil {
			return sent, err
		}
		for i := range listings {
			listing := &listings[i]
			if listing.ExpiresAt == nil {
				continue
			}
			exists, err := p.notifier.ExistsForBucket(ctx, models.NotificationListingExpiring, listing.ID, w.bucket)
			if err != nil {
				p.logger.Warn("expiry warning lookup failed", zap.Stringer("listing", listing.ID), zap.Error(err))
				continue
			}
			if exists {
				continue
			}
			if err := p.notifier.NotifyListingExpiring(ctx, listing, daysLeft(*listing.ExpiresAt, now), w.bucket); err != nil {
				p.logger.Warn("expiry warning failed", zap.Stringer("listing", listing.ID), zap.Error(err))
				continue
			}
			sent++
		}
	}
	observe(SweepExpiryWarning, started, sent)
	p.logger.Info("expiry warning sweep finished", zap.Int("sent", sent))
	return sent, nil
}

// HandleExpireTask runs RunExpiry.
func (p *TaskProcessor) HandleExpireTask(ctx context.Context, _ *asynq.Task) error {
	_, err := p.RunExpiry(ctx, time.Now().UTC())
	return err
}

// RunExpiry moves active listings past their expiry date to expired and
// notifies their sellers. Each listing is flipped with a conditional update,
// so a listing already expired by an earlier or concurrent run is skipped
// and its seller is not notified again.
func (p *TaskProcessor) RunExpiry(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	due, err := p.listings.FindExpiredBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range due {
		listing := &due[i]
		changed, err := p.listings.Expire(ctx, listing.ID, now)
		if err != nil {
			p.logger.Warn("failed to expire listing", zap.Stringer("listing", listing.ID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		expired++
		listing.Status = models.ListingExpired
		if err := p.notifier.NotifyListingExpired(ctx, listing); err != nil {
			p.logger.Warn("expiry notification failed", zap.Stringer("listing", listing.ID), zap.Error(err))
		}
	}
	observe(SweepExpire, started, expired)
	p.logger.Info("expiry sweep finished", zap.Int("expired", expired))
	return expired, nil
}

// HandleSavedSearchTask runs RunSavedSearches.
func (p *TaskProcessor) HandleSavedSearchTask(ctx context.Context, _ *asynq.Task) error {
	_, err := p.RunSavedSearches(ctx, time.Now().UTC())
	return err
}

// RunSavedSearches re-evaluates every due saved search against listings
// created since its last check and sends one aggregate notification per
// search with new matches. The check time and match count are always stored.
func (p *TaskProcessor) RunSavedSearches(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	due, err := p.savedSearches.FindDue(ctx, now)
	if err != nil {
		return 0, err
	}

	notified := 0
	for i := range due {
		search := &due[i]
		since := search.CreatedAt
		if search.LastCheckedAt != nil {
			since = *search.LastCheckedAt
		}
		count, err := p.listings.CountCreatedSince(ctx, search.Filters, since)
		if err != nil {
			p.logger.Warn("saved search evaluation failed", zap.Stringer("search", search.ID), zap.Error(err))
			continue
		}

		sent := false
		if count > 0 {
			if err := p.notifier.NotifySavedSearchMatch(ctx, search, count); err != nil {
				p.logger.Warn("saved search notification failed", zap.Stringer("search", search.ID), zap.Error(err))
			} else {
				sent = true
				notified++
			}
		}
		if err := p.savedSearches.RecordCheck(ctx, search.ID, count, now, sent); err != nil {
			p.logger.Warn("failed to record saved search check", zap.Stringer("search", search.ID), zap.Error(err))
		}
	}
	observe(SweepSavedSearch, started, notified)
	p.logger.Info("saved search sweep finished", zap.Int("due", len(due)), zap.Int("notified", notified))
	return notified, nil
}

// HandleNotificationPruneTask runs RunNotificationPrune.
func (p *TaskProcessor) HandleNotificationPruneTask(ctx context.Context, _ *asynq.Task) error {
	_, err := p.RunNotificationPrune(ctx, time.Now().UTC())
	return err
}

// RunNotificationPrune deletes read notifications older than the retention period.
func (p *TaskProcessor) RunNotificationPrune(ctx context.Context, now time.Time) (int64, error) {
	started := time.Now()
	deleted, err := p.notifier.DeleteReadOlderThan(ctx, now.Add(-p.cfg.NotificationRetention))
	if err != nil {
		return 0, err
	}
	observe(SweepPrune, started, int(deleted))
	p.logger.Info("notification prune finished", zap.Int64("deleted", deleted))
	return deleted, nil
}
