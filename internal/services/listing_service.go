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

// Actor is the authenticated caller of a mutation.
type Actor struct {
	ID      utils.SixID
	IsAdmin bool
}

// ListingInput holds the fields a seller provides when creating a listing.
type ListingInput struct {
	Name        string   `json:"name" binding:"required"`
	Breed       string   `json:"breed" binding:"required"`
	Gender      string   `json:"gender" binding:"required"`
	Color       string   `json:"color"`
	Age         int      `json:"age" binding:"gte=0"`
	Price       float64  `json:"price" binding:"gt=0"`
	Description string   `json:"description"`
	City        string   `json:"city" binding:"required"`
	Images      []string `json:"images"`
}

// ListingUpdate holds the editable fields. Nil fields are left unchanged.
type ListingUpdate struct {
	Name        *string   `json:"name"`
	Breed       *string   `json:"breed"`
	Gender      *string   `json:"gender"`
	Color       *string   `json:"color"`
	Age         *int      `json:"age"`
	Price       *float64  `json:"price"`
	Description *string   `json:"description"`
	City        *string   `json:"city"`
	Images      *[]string `json:"images"`
}

// ListingPage is one page of search results.
type ListingPage struct {
	Items []models.Listing `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	Create(ctx context.Context, sellerID utils.SixID, in ListingInput) (*models.Listing, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error)
	View(ctx context.Context, id utils.SixID, viewer *Actor) (*models.Listing, error)
	Update(ctx context.Context, id utils.SixID, actor Actor, in ListingUpdate) (*models.Listing, error)
	Delete(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error)
	Search(ctx context.Context, filter models.ListingFilter, sortBy string, page, limit int) (*ListingPage, error)
	ListPending(ctx context.Context, page, limit int) (*ListingPage, error)

	Approve(ctx context.Context, id utils.SixID) (*models.Listing, error)
	Reject(ctx context.Context, id utils.SixID, reason string) (*models.Listing, error)
	Renew(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error)
	MarkSold(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error)

	AuthorizeMutation(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error)
	AddImage(ctx context.Context, id utils.SixID, imageKey string) error
	IncrementStat(ctx context.Context, id utils.SixID, stat string, delta int) error

	FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Listing, error)
	FindExpiredBefore(ctx context.Context, now time.Time) ([]models.Listing, error)
	Expire(ctx context.Context, id utils.SixID, now time.Time) (bool, error)
	CountCreatedSince(ctx context.Context, filter models.ListingFilter, since time.Time) (int64, error)
	DeleteBySeller(ctx context.Context, sellerID utils.SixID) (int64, error)
}

// Listing stats counters.
const (
	StatViews     = "views"
	StatFavorites = "favorites"
	StatInquiries = "inquiries"
)

// listingService implements IListingService.
type listingService struct {
	db       *mongo.Database
	ttl      time.Duration
	notifier INotificationService
	logger   *zap.Logger
}

// NewListingService creates a new ListingService. Listings stay active for ttl after approval or renewal.
func NewListingService(database *mongo.Database, ttl time.Duration, notifier INotificationService, logger *zap.Logger) IListingService {
	return &listingService{db: database, ttl: ttl, notifier: notifier, logger: logger.Named("listings")}
}

func (s *listingService) coll() *mongo.Collection {
	return s.db.Collection(db.HorsesCollection)
}

// Create stores a new listing awaiting moderation.
func (s *listingService) Create(ctx context.Context, sellerID utils.SixID, in ListingInput) (*models.Listing, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrValidation("name is required")
	}
	if in.Price <= 0 {
		return nil, ErrValidation("price must be positive")
	}
	now := time.Now().UTC()
	images := in.Images
	if images == nil {
		images = []string{}
	}
	listing := &models.Listing{
		Seller:      sellerID,
		Name:        strings.TrimSpace(in.Name),
		Breed:       in.Breed,
		Gender:      in.Gender,
		Color:       in.Color,
		Age:         in.Age,
		Price:       in.Price,
		Description: in.Description,
		City:        in.City,
		Images:      images,
		Status:      models.ListingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := db.Try(func() error {
		listing.GenID()
		_, insertErr := s.coll().InsertOne(ctx, listing)
		return insertErr
	})
	if err != nil {
		return nil, ErrInternal("failed to create listing", fmt.Errorf("seller %s, last id %s: %w", sellerID, listing.ID, err))
	}
	return listing, nil
}

// FindByID finds a listing regardless of status.
func (s *listingService) FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	err := s.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound("listing not found")
		}
		return nil, ErrInternal("failed to load listing", fmt.Errorf("listing %s: %w", id, err))
	}
	return &listing, nil
}

// View returns a listing to a reader and counts the view. Non-active listings
// are only visible to their seller and admins.
func (s *listingService) View(ctx context.Context, id utils.SixID, viewer *Actor) (*models.Listing, error) {
	listing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	isOwner := viewer != nil && (viewer.IsAdmin || viewer.ID == listing.Seller)
	if listing.Status != models.ListingActive && !isOwner {
		return nil, ErrNotFound("listing not found")
	}
	if !isOwner {
		if err := s.IncrementStat(ctx, id, StatViews, 1); err != nil {
			s.logger.Warn("failed to count listing view", zap.Stringer("listing", id), zap.Error(err))
		} else {
			listing.Stats.Views++
		}
	}
	return listing, nil
}

// AuthorizeMutation loads the listing and checks the actor is its seller or an admin.
func (s *listingService) AuthorizeMutation(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error) {
	listing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && listing.Seller != actor.ID {
		return nil, ErrForbidden("you are not allowed to modify this listing")
	}
	return listing, nil
}

// Update edits a listing. Changing name, price, description or images of an
// active listing sends it back to moderation.
func (s *listingService) Update(ctx context.Context, id utils.SixID, actor Actor, in ListingUpdate) (*models.Listing, error) {
	current, err := s.AuthorizeMutation(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	sensitive := false
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, ErrValidation("name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*in.Name)
		sensitive = sensitive || set["name"] != current.Name
	}
	if in.Price != nil {
		if *in.Price <= 0 {
			return nil, ErrValidation("price must be positive")
		}
		set["price"] = *in.Price
		sensitive = sensitive || *in.Price != current.Price
	}
	if in.Description != nil {
		set["description"] = *in.Description
		sensitive = sensitive || *in.Description != current.Description
	}
	if in.Images != nil {
		set["images"] = *in.Images
		sensitive = sensitive || !equalStrings(*in.Images, current.Images)
	}
	if in.Breed != nil {
		set["breed"] = *in.Breed
	}
	if in.Gender != nil {
		set["gender"] = *in.Gender
	}
	if in.Color != nil {
		set["color"] = *in.Color
	}
	if in.Age != nil {
		if *in.Age < 0 {
			return nil, ErrValidation("age cannot be negative")
		}
		set["age"] = *in.Age
	}
	if in.City != nil {
		set["city"] = *in.City
	}
	if len(set) == 0 {
		return nil, ErrValidation("no valid fields provided for update")
	}
	set["updated_at"] = time.Now().UTC()

	// The status condition makes the re-review decision atomic with the edit.
	filter := bson.M{"_id": id, "status": current.Status}
	if sensitive && current.Status == models.ListingActive {
		set["status"] = models.ListingPending
	}

	var updated models.Listing
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = s.coll().FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConflict("listing changed while updating, please retry")
		}
		return nil, ErrInternal("failed to update listing", fmt.Errorf("listing %s: %w", id, err))
	}
	return &updated, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Delete removes a listing permanently and returns what was deleted.
func (s *listingService) Delete(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error) {
	listing, err := s.AuthorizeMutation(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if _, err := s.coll().DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return nil, ErrInternal("failed to delete listing", fmt.Errorf("listing %s: %w", id, err))
	}
	return listing, nil
}

// Search runs a filtered, sorted, paginated listing query.
func (s *listingService) Search(ctx context.Context, filter models.ListingFilter, sortBy string, page, limit int) (*ListingPage, error) {
	return s.find(ctx, BuildListingFilter(filter), BuildListingSort(sortBy), page, limit)
}

// ListPending returns listings awaiting moderation, oldest first.
func (s *listingService) ListPending(ctx context.Context, page, limit int) (*ListingPage, error) {
	return s.find(ctx, bson.M{"status": models.ListingPending}, BuildListingSort(SortOldest), page, limit)
}

func (s *listingService) find(ctx context.Context, filter bson.M, sort bson.D, page, limit int) (*ListingPage, error) {
	page, limit = NormalizePage(page, limit)

	total, err := s.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, ErrInternal("failed to count listings", err)
	}
	opts := options.Find().
		SetSort(sort).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := s.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, ErrInternal("failed to execute listing search query", err)
	}
	defer cur.Close(ctx)

	items := []models.Listing{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, ErrInternal("failed to decode listing search results", err)
	}
	return &ListingPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// transition applies update to a listing whose status is one of from. When
// nothing matches it re-reads the listing to report why.
func (s *listingService) transition(ctx context.Context, id utils.SixID, from []models.ListingStatus, set bson.M, action string) (*models.Listing, error) {
	set["updated_at"] = time.Now().UTC()
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}

	var updated models.Listing
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll().FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInternal("failed to "+action+" listing", fmt.Errorf("listing %s: %w", id, err))
	}

	current, findErr := s.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	return nil, ErrConflict(fmt.Sprintf("cannot %s a listing that is %s", action, current.Status))
}

// Approve publishes a pending listing and notifies the seller.
func (s *listingService) Approve(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	now := time.Now().UTC()
	listing, err := s.transition(ctx, id, []models.ListingStatus{models.ListingPending}, bson.M{
		"status":      models.ListingActive,
		"approved_at": now,
		"expires_at":  now.Add(s.ttl),
	}, "approve")
	if err != nil {
		return nil, err
	}
	if err := s.notifier.NotifyListingApproved(ctx, listing); err != nil {
		s.logger.Warn("approval notification failed", zap.Stringer("listing", id), zap.Error(err))
	}
	return listing, nil
}

// Reject moves a pending listing to rejected with a reason shown to the seller.
func (s *listingService) Reject(ctx context.Context, id utils.SixID, reason string) (*models.Listing, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrValidation("a rejection reason is required")
	}
	listing, err := s.transition(ctx, id, []models.ListingStatus{models.ListingPending}, bson.M{
		"status":           models.ListingRejected,
		"rejection_reason": reason,
	}, "reject")
	if err != nil {
		return nil, err
	}
	if err := s.notifier.NotifyListingRejected(ctx, listing, reason); err != nil {
		s.logger.Warn("rejection notification failed", zap.Stringer("listing", id), zap.Error(err))
	}
	return listing, nil
}

// Renew re-activates an active or expired listing for another TTL period.
func (s *listingService) Renew(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error) {
	if _, err := s.AuthorizeMutation(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, []models.ListingStatus{models.ListingActive, models.ListingExpired}, bson.M{
		"status":     models.ListingActive,
		"expires_at": time.Now().UTC().Add(s.ttl),
	}, "renew")
}

// MarkSold closes a listing from any state.
func (s *listingService) MarkSold(ctx context.Context, id utils.SixID, actor Actor) (*models.Listing, error) {
	if _, err := s.AuthorizeMutation(ctx, id, actor); err != nil {
		return nil, err
	}
	all := []models.ListingStatus{
		models.ListingDraft, models.ListingPending, models.ListingActive,
		models.ListingSold, models.ListingExpired, models.ListingRejected,
	}
	return s.transition(ctx, id, all, bson.M{
		"status":  models.ListingSold,
		"sold_at": time.Now().UTC(),
	}, "mark sold")
}

// AddImage appends a processed image key to a listing.
func (s *listingService) AddImage(ctx context.Context, id utils.SixID, imageKey string) error {
	update := bson.M{
		"$addToSet": bson.M{"images": imageKey},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := s.coll().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("db error adding image %s to listing %s: %w", imageKey, id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound("listing not found")
	}
	return nil
}

// IncrementStat atomically adjusts one of the denormalized counters.
func (s *listingService) IncrementStat(ctx context.Context, id utils.SixID, stat string, delta int) error {
	switch stat {
	case StatViews, StatFavorites, StatInquiries:
	default:
		return fmt.Errorf("unknown listing stat %q", stat)
	}
	filter := bson.M{"_id": id}
	if delta < 0 {
		// counters never go negative
		filter["stats."+stat] = bson.M{"$gte": -delta}
	}
	_, err := s.coll().UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"stats." + stat: delta}})
	if err != nil {
		return fmt.Errorf("failed to increment %s on listing %s: %w", stat, id, err)
	}
	return nil
}

// FindExpiringBetween returns active listings with from < expiresAt <= to.
func (s *listingService) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Listing, error) {
	return s.list(ctx, bson.M{
		"status":     models.ListingActive,
		"expires_at": bson.M{"$gt": from, "$lte": to},
	})
}

// FindExpiredBefore returns active listings whose expiresAt has passed.
func (s *listingService) FindExpiredBefore(ctx context.Context, now time.Time) ([]models.Listing, error) {
	return s.list(ctx, bson.M{
		"status":     models.ListingActive,
		"expires_at": bson.M{"$lte": now},
	})
}

// Expire flips one listing from active to expired. It reports false when the
// listing was no longer active or not yet due, so concurrent sweeps expire it once.
func (s *listingService) Expire(ctx context.Context, id utils.SixID, now time.Time) (bool, error) {
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ListingActive, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": models.ListingExpired, "updated_at": now}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire listing %s: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}

// CountCreatedSince counts listings matching filter created after since.
func (s *listingService) CountCreatedSince(ctx context.Context, filter models.ListingFilter, since time.Time) (int64, error) {
	q := BuildListingFilter(filter)
	q["created_at"] = bson.M{"$gt": since}
	return s.coll().CountDocuments(ctx, q)
}

// DeleteBySeller removes every listing owned by a seller.
func (s *listingService) DeleteBySeller(ctx context.Context, sellerID utils.SixID) (int64, error) {
	res, err := s.coll().DeleteMany(ctx, bson.M{"seller": sellerID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete listings of seller %s: %w", sellerID, err)
	}
	return res.DeletedCount, nil
}

func (s *listingService) list(ctx context.Context, filter bson.M) ([]models.Listing, error) {
	cur, err := s.coll().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Listing
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
