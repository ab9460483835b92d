package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// Notification windows per frequency. Instant searches are due on every run.
const (
	DailyWindow  = 24 * time.Hour
	WeeklyWindow = 7 * 24 * time.Hour
)

// SavedSearchInput is the user-editable part of a saved search.
type SavedSearchInput struct {
	Name      string                 `json:"name" binding:"required"`
	Filters   models.ListingFilter   `json:"filters"`
	Frequency models.SearchFrequency `json:"frequency"`
}

// ISavedSearchService manages saved searches and the bookkeeping of the saved-search sweep.
type ISavedSearchService interface {
	Create(ctx context.Context, userID utils.SixID, in SavedSearchInput) (*models.SavedSearch, error)
	List(ctx context.Context, userID utils.SixID) ([]models.SavedSearch, error)
	Update(ctx context.Context, userID, id utils.SixID, in SavedSearchInput) (*models.SavedSearch, error)
	Delete(ctx context.Context, userID, id utils.SixID) error

	// FindDue returns the searches whose notification window has elapsed at now.
	FindDue(ctx context.Context, now time.Time) ([]models.SavedSearch, error)
	// RecordCheck stores the result of one evaluation; lastNotifiedAt only moves when notified.
	RecordCheck(ctx context.Context, id utils.SixID, matchCount int64, checkedAt time.Time, notified bool) error
}

type savedSearchService struct {
	db     *mongo.Database
	logger *zap.Logger
}

// NewSavedSearchService creates a new SavedSearchService.
func NewSavedSearchService(database *mongo.Database, logger *zap.Logger) ISavedSearchService {
	return &savedSearchService{db: database, logger: logger.Named("saved_searches")}
}

func (s *savedSearchService) coll() *mongo.Collection {
	return s.db.Collection(db.SavedSearchesCollection)
}

func normalizeSavedSearch(in SavedSearchInput) (SavedSearchInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, ErrValidation("search name is required")
	}
	if in.Frequency == "" {
		in.Frequency = models.FrequencyDaily
	}
	if !in.Frequency.Valid() {
		return in, ErrValidation("frequency must be instant, daily or weekly")
	}
	// Saved searches only ever match publicly visible listings.
	in.Filters.Status = ""
	return in, nil
}

func (s *savedSearchService) Create(ctx context.Context, userID utils.SixID, in SavedSearchInput) (*models.SavedSearch, error) {
	in, err := normalizeSavedSearch(in)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	search := &models.SavedSearch{
		User:      userID,
		Name:      in.Name,
		Filters:   in.Filters,
		Frequency: in.Frequency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = db.Try(func() error {
		search.GenID()
		_, insertErr := s.coll().InsertOne(ctx, search)
		return insertErr
	})
	if err != nil {
		return nil, ErrInternal("failed to save search", err)
	}
	return search, nil
}

func (s *savedSearchService) List(ctx context.Context, userID utils.SixID) ([]models.SavedSearch, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.find(ctx, bson.M{"user": userID}, opts)
}

func (s *savedSearchService) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.SavedSearch, error) {
	cur, err := s.coll().Find(ctx, filter, opts...)
	if err != nil {
		return nil, ErrInternal("failed to load saved searches", err)
	}
	defer cur.Close(ctx)
	searches := []models.SavedSearch{}
	if err := cur.All(ctx, &searches); err != nil {
		return nil, ErrInternal("failed to load saved searches", err)
	}
	return searches, nil
}

func (s *savedSearchService) Update(ctx context.Context, userID, id utils.SixID, in SavedSearchInput) (*models.SavedSearch, error) {
	in, err := normalizeSavedSearch(in)
	if err != nil {
		return nil, err
	}
	update := bson.M{"$set": bson.M{
		"name":       in.Name,
		"filters":    in.Filters,
		"frequency":  in.Frequency,
		"updated_at": time.Now().UTC(),
	}}
	var search models.SavedSearch
	err = s.coll().FindOneAndUpdate(ctx, bson.M{"_id": id, "user": userID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&search)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound("saved search not found")
		}
		return nil, ErrInternal("failed to update saved search", err)
	}
	return &search, nil
}

func (s *savedSearchService) Delete(ctx context.Context, userID, id utils.SixID) error {
	res, err := s.coll().DeleteOne(ctx, bson.M{"_id": id, "user": userID})
	if err != nil {
		return ErrInternal("failed to delete saved search", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound("saved search not found")
	}
	return nil
}

func windowElapsed(freq models.SearchFrequency, cutoff time.Time) bson.M {
	return bson.M{
		"frequency": freq,
		"$or": bson.A{
			bson.M{"last_notified_at": bson.M{"$exists": false}},
			bson.M{"last_notified_at": nil},
			bson.M{"last_notified_at": bson.M{"$lt": cutoff}},
		},
	}
}

func (s *savedSearchService) FindDue(ctx context.Context, now time.Time) ([]models.SavedSearch, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"frequency": models.FrequencyInstant},
		windowElapsed(models.FrequencyDaily, now.Add(-DailyWindow)),
		windowElapsed(models.FrequencyWeekly, now.Add(-WeeklyWindow)),
	}}
	return s.find(ctx, filter)
}

func (s *savedSearchService) RecordCheck(ctx context.Context, id utils.SixID, matchCount int64, checkedAt time.Time, notified bool) error {
	set := bson.M{"match_count": matchCount, "last_checked_at": checkedAt}
	if notified {
		set["last_notified_at"] = checkedAt
	}
	if _, err := s.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("saved search %s: %w", id, err)
	}
	return nil
}
