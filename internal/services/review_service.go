package services

import (
	"context"
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

// ReviewInput is a rating left for a seller.
type ReviewInput struct {
	Rating  int          `json:"rating" binding:"required,min=1,max=5"`
	Comment string       `json:"comment" binding:"max=1000"`
	HorseID *utils.SixID `json:"horseId"`
}

// ReviewView is a review with its author populated.
type ReviewView struct {
	models.Review
	Author *models.PublicUser `json:"author,omitempty"`
}

// SellerReviews is a seller's reviews with the average rating.
type SellerReviews struct {
	Reviews []ReviewView `json:"reviews"`
	Count   int          `json:"count"`
	Average float64      `json:"average"`
}

// IReviewService manages seller reviews.
type IReviewService interface {
	Create(ctx context.Context, reviewerID, sellerID utils.SixID, in ReviewInput) (*models.Review, error)
	ListForSeller(ctx context.Context, sellerID utils.SixID) (*SellerReviews, error)
}

type reviewService struct {
	db       *mongo.Database
	users    IUserService
	notifier INotificationService
	logger   *zap.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(database *mongo.Database, users IUserService, notifier INotificationService, logger *zap.Logger) IReviewService {
	return &reviewService{db: database, users: users, notifier: notifier, logger: logger.Named("reviews")}
}

func (s *reviewService) coll() *mongo.Collection {
	return s.db.Collection(db.ReviewsCollection)
}

// Create stores a review. A reviewer can review a seller once.
func (s *reviewService) Create(ctx context.Context, reviewerID, sellerID utils.SixID, in ReviewInput) (*models.Review, error) {
	if reviewerID == sellerID {
		return nil, ErrValidation("you cannot review yourself")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrValidation("rating must be between 1 and 5")
	}
	reviewer, err := s.users.FindByID(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, sellerID); err != nil {
		return nil, err
	}

	review := &models.Review{
		Reviewer:  reviewerID,
		Seller:    sellerID,
		Horse:     in.HorseID,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: time.Now().UTC(),
	}
	err = db.Try(func() error {
		review.GenID()
		_, insertErr := s.coll().InsertOne(ctx, review)
		return insertErr
	})
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, ErrConflict("you have already reviewed this seller")
		}
		return nil, ErrInternal("failed to save review", err)
	}

	if err := s.notifier.NotifyNewReview(ctx, review, reviewer.Name); err != nil {
		s.logger.Warn("review notification failed", zap.Stringer("seller", sellerID), zap.Error(err))
	}
	return review, nil
}

func (s *reviewService) ListForSeller(ctx context.Context, sellerID utils.SixID) (*SellerReviews, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.coll().Find(ctx, bson.M{"seller": sellerID}, opts)
	if err != nil {
		return nil, ErrInternal("failed to load reviews", err)
	}
	defer cur.Close(ctx)
	var reviews []models.Review
	if err := cur.All(ctx, &reviews); err != nil {
		return nil, ErrInternal("failed to load reviews", err)
	}

	out := &SellerReviews{Reviews: make([]ReviewView, 0, len(reviews)), Count: len(reviews)}
	sum := 0
	for _, r := range reviews {
		view := ReviewView{Review: r}
		if author, err := s.users.FindByID(ctx, r.Reviewer); err == nil {
			p := author.Public()
			view.Author = &p
		}
		out.Reviews = append(out.Reviews, view)
		sum += r.Rating
	}
	if out.Count > 0 {
		out.Average = float64(sum) / float64(out.Count)
	}
	return out, nil
}
