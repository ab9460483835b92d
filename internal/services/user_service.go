package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/auth"
	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// ErrEmailExists is returned when an attempt is made to use an email that already exists.
var ErrEmailExists = &Error{Kind: KindConflict, Message: "email already in use by another account"}

// RegisterInput is the registration request.
type RegisterInput struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Phone    string `json:"phone"`
	City     string `json:"city"`
}

// ProfileUpdate holds editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Phone  *string `json:"phone"`
	City   *string `json:"city"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

// IUserService defines the interface for user-related operations.
type IUserService interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID utils.SixID, in ProfileUpdate) (*models.User, error)
	UpdateNotificationPreferences(ctx context.Context, userID utils.SixID, prefs models.NotificationPreferences) (*models.User, error)
	ToggleFavorite(ctx context.Context, userID, horseID utils.SixID) (bool, error)
	ListFavorites(ctx context.Context, userID utils.SixID) ([]models.Listing, error)
	DeleteUserAndListings(ctx context.Context, userID utils.SixID) error
}

// userService implements IUserService.
type userService struct {
	db       *mongo.Database
	listings IListingService
	notifier INotificationService
	logger   *zap.Logger
}

// NewUserService creates a new UserService.
func NewUserService(database *mongo.Database, listings IListingService, notifier INotificationService, logger *zap.Logger) IUserService {
	return &userService{db: database, listings: listings, notifier: notifier, logger: logger.Named("users")}
}

func (s *userService) coll() *mongo.Collection {
	return s.db.Collection(db.UsersCollection)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with the default role and all email notifications on.
func (s *userService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrValidation("invalid email address")
	}
	if len(in.Password) < 8 {
		return nil, ErrValidation("password must be at least 8 characters")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrValidation("name is required")
	}

	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, ErrValidation("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	if err != nil {
		return nil, ErrInternal("failed to register", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Name:                    strings.TrimSpace(in.Name),
		Email:                   email,
		PasswordHash:            hash,
		Role:                    models.RoleUser,
		Phone:                   in.Phone,
		City:                    in.City,
		Favorites:               []utils.SixID{},
		NotificationPreferences: models.DefaultNotificationPreferences(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	err = db.Try(func() error {
		user.GenID()
		_, insertErr := s.coll().InsertOne(ctx, user)
		return insertErr
	})
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) && strings.Contains(err.Error(), "email_1") {
			return nil, ErrEmailExists
		}
		return nil, ErrInternal("failed to register", fmt.Errorf("inserting user %s: %w", email, err))
	}
	return user, nil
}

// Authenticate checks an email/password pair.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, ErrUnauthorized("invalid email or password")
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrUnauthorized("invalid email or password")
	}
	return user, nil
}

// FindByID finds a user by id.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": userID})
}

// FindByEmail finds a user by email address.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (s *userService) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := s.coll().FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound("user not found")
		}
		return nil, ErrInternal("failed to load user", err)
	}
	return &user, nil
}

func (s *userService) updateAndReturn(ctx context.Context, userID utils.SixID, set bson.M) (*models.User, error) {
	set["updated_at"] = time.Now().UTC()
	var user models.User
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll().FindOneAndUpdate(ctx, bson.M{"_id": userID}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound("user not found")
		}
		return nil, ErrInternal("failed to update user", err)
	}
	return &user, nil
}

// UpdateProfile edits the caller's own profile fields.
func (s *userService) UpdateProfile(ctx context.Context, userID utils.SixID, in ProfileUpdate) (*models.User, error) {
	set := bson.M{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, ErrValidation("name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		set["phone"] = *in.Phone
	}
	if in.City != nil {
		set["city"] = *in.City
	}
	if in.Bio != nil {
		set["bio"] = *in.Bio
	}
	if in.Avatar != nil {
		set["avatar"] = *in.Avatar
	}
	if len(set) == 0 {
		return nil, ErrValidation("no valid fields provided for update")
	}
	return s.updateAndReturn(ctx, userID, set)
}

// UpdateNotificationPreferences replaces the caller's email preferences.
func (s *userService) UpdateNotificationPreferences(ctx context.Context, userID utils.SixID, prefs models.NotificationPreferences) (*models.User, error) {
	return s.updateAndReturn(ctx, userID, bson.M{"notification_preferences": prefs})
}

// ToggleFavorite adds the listing to the user's favorites or removes it.
// It reports whether the listing is a favorite afterwards.
func (s *userService) ToggleFavorite(ctx context.Context, userID, horseID utils.SixID) (bool, error) {
	listing, err := s.listings.FindByID(ctx, horseID)
	if err != nil {
		return false, err
	}

	// Conditional pull then conditional add keeps concurrent toggles from double counting.
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"_id": userID, "favorites": horseID},
		bson.M{"$pull": bson.M{"favorites": horseID}},
	)
	if err != nil {
		return false, ErrInternal("failed to update favorites", err)
	}
	if res.ModifiedCount == 1 {
		if err := s.listings.IncrementStat(ctx, horseID, StatFavorites, -1); err != nil {
			s.logger.Warn("failed to decrement favorites", zap.Stringer("listing", horseID), zap.Error(err))
		}
		return false, nil
	}

	res, err = s.coll().UpdateOne(ctx,
		bson.M{"_id": userID, "favorites": bson.M{"$ne": horseID}},
		bson.M{"$addToSet": bson.M{"favorites": horseID}},
	)
	if err != nil {
		return false, ErrInternal("failed to update favorites", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.FindByID(ctx, userID); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := s.listings.IncrementStat(ctx, horseID, StatFavorites, 1); err != nil {
		s.logger.Warn("failed to increment favorites", zap.Stringer("listing", horseID), zap.Error(err))
	}
	if listing.Seller != userID {
		if err := s.notifier.NotifyFavorited(ctx, listing); err != nil {
			s.logger.Warn("favorite notification failed", zap.Stringer("listing", horseID), zap.Error(err))
		}
	}
	return true, nil
}

// ListFavorites returns the user's favorite listings that still exist.
func (s *userService) ListFavorites(ctx context.Context, userID utils.SixID) ([]models.Listing, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []models.Listing{}
	if len(user.Favorites) == 0 {
		return out, nil
	}
	cur, err := s.db.Collection(db.HorsesCollection).Find(ctx, bson.M{"_id": bson.M{"$in": user.Favorites}})
	if err != nil {
		return nil, ErrInternal("failed to load favorites", err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, &out); err != nil {
		return nil, ErrInternal("failed to load favorites", err)
	}
	return out, nil
}

// DeleteUserAndListings removes a user together with everything they own.
func (s *userService) DeleteUserAndListings(ctx context.Context, userID utils.SixID) error {
	if _, err := s.FindByID(ctx, userID); err != nil {
		return err
	}
	deleted, err := s.listings.DeleteBySeller(ctx, userID)
	if err != nil {
		return ErrInternal("failed to delete user listings", err)
	}
	for _, coll := range []string{db.SavedSearchesCollection, db.NotificationsCollection} {
		if _, err := s.db.Collection(coll).DeleteMany(ctx, bson.M{"user": userID}); err != nil {
			return ErrInternal("failed to delete user data", fmt.Errorf("%s: %w", coll, err))
		}
	}
	if _, err := s.coll().DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return ErrInternal("failed to delete user", err)
	}
	s.logger.Info("user deleted", zap.Stringer("user", userID), zap.Int64("listings", deleted))
	return nil
}
