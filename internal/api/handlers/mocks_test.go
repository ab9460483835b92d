package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// --- Mocks ---

// MockUserService
type MockUserService struct {
	mock.Mock
}

func userOrNil(args mock.Arguments) (*models.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	return userOrNil(m.Called(ctx, in))
}
func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	return userOrNil(m.Called(ctx, email, password))
}
func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	return userOrNil(m.Called(ctx, userID))
}
func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return userOrNil(m.Called(ctx, email))
}
func (m *MockUserService) UpdateProfile(ctx context.Context, userID utils.SixID, in services.ProfileUpdate) (*models.User, error) {
	return userOrNil(m.Called(ctx, userID, in))
}
func (m *MockUserService) UpdateNotificationPreferences(ctx context.Context, userID utils.SixID, prefs models.NotificationPreferences) (*models.User, error) {
	return userOrNil(m.Called(ctx, userID, prefs))
}
func (m *MockUserService) ToggleFavorite(ctx context.Context, userID, horseID utils.SixID) (bool, error) {
	args := m.Called(ctx, userID, horseID)
	return args.Bool(0), args.Error(1)
}
func (m *MockUserService) ListFavorites(ctx context.Context, userID utils.SixID) ([]models.Listing, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}
func (m *MockUserService) DeleteUserAndListings(ctx context.Context, userID utils.SixID) error {
	return m.Called(ctx, userID).Error(0)
}

// MockListingService
type MockListingService struct {
	mock.Mock
}

func listingOrNil(args mock.Arguments) (*models.Listing, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func pageOrNil(args mock.Arguments) (*services.ListingPage, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ListingPage), args.Error(1)
}

func (m *MockListingService) Create(ctx context.Context, sellerID utils.SixID, in services.ListingInput) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, sellerID, in))
}
func (m *MockListingService) FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id))
}
func (m *MockListingService) View(ctx context.Context, id utils.SixID, viewer *services.Actor) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id, viewer))
}
func (m *MockListingService) Update(ctx context.Context, id utils.SixID, actor services.Actor, in services.ListingUpdate) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id, actor, in))
}
func (m *MockListingService) Delete(ctx context.Context, id utils.SixID, actor services.Actor) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id, actor))
}
func (m *MockListingService) Search(ctx context.Context, filter models.ListingFilter, sortBy string, page, limit int) (*services.ListingPage, error) {
	return pageOrNil(m.Called(ctx, filter, sortBy, page, limit))
}
func (m *MockListingService) ListPending(ctx context.Context, page, limit int) (*services.ListingPage, error) {
	return pageOrNil(m.Called(ctx, page, limit))
}
func (m *MockListingService) Approve(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id))
}
func (m *MockListingService) Reject(ctx context.Context, id utils.SixID, reason string) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id, reason))
}
func (m *MockListingService) Renew(ctx context.Context, id utils.SixID, actor services.Actor) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id, actor))
}
func (m *MockListingService) MarkSold(ctx context.Context, id utils.SixID, actor services.Actor) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id, actor))
}
func (m *MockListingService) AuthorizeMutation(ctx context.Context, id utils.SixID, actor services.Actor) (*models.Listing, error) {
	return listingOrNil(m.Called(ctx, id, actor))
}
func (m *MockListingService) AddImage(ctx context.Context, id utils.SixID, imageKey string) error {
	return m.Called(ctx, id, imageKey).Error(0)
}
func (m *MockListingService) IncrementStat(ctx context.Context, id utils.SixID, stat string, delta int) error {
	return m.Called(ctx, id, stat, delta).Error(0)
}
func (m *MockListingService) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Listing, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]models.Listing), args.Error(1)
}
func (m *MockListingService) FindExpiredBefore(ctx context.Context, now time.Time) ([]models.Listing, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]models.Listing), args.Error(1)
}
func (m *MockListingService) Expire(ctx context.Context, id utils.SixID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}
func (m *MockListingService) CountCreatedSince(ctx context.Context, filter models.ListingFilter, since time.Time) (int64, error) {
	args := m.Called(ctx, filter, since)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockListingService) DeleteBySeller(ctx context.Context, sellerID utils.SixID) (int64, error) {
	args := m.Called(ctx, sellerID)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessageService
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) FindOrCreateConversation(ctx context.Context, userA, userB, horseID utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, userA, userB, horseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}
func (m *MockMessageService) PostMessage(ctx context.Context, conv *models.Conversation, senderID utils.SixID, content string, msgType models.MessageType, offerAmount *float64) (*models.Message, error) {
	args := m.Called(ctx, conv, senderID, content, msgType, offerAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}
func (m *MockMessageService) MarkConversationRead(ctx context.Context, conversationID, readerID utils.SixID) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockMessageService) RespondToOffer(ctx context.Context, messageID, responderID utils.SixID, decision models.OfferDecision, counterAmount *float64) (*services.OfferResult, error) {
	args := m.Called(ctx, messageID, responderID, decision, counterAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.OfferResult), args.Error(1)
}
func (m *MockMessageService) IsParticipant(ctx context.Context, conversationID, userID utils.SixID) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}
func (m *MockMessageService) SendMessage(ctx context.Context, senderID utils.SixID, in services.SendMessageInput) (*models.MessageView, error) {
	args := m.Called(ctx, senderID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageView), args.Error(1)
}
func (m *MockMessageService) AnswerOffer(ctx context.Context, messageID, responderID utils.SixID, in services.OfferResponseInput) (*services.OfferResult, error) {
	args := m.Called(ctx, messageID, responderID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.OfferResult), args.Error(1)
}
func (m *MockMessageService) ReadConversation(ctx context.Context, conversationID, readerID utils.SixID) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockMessageService) ListConversations(ctx context.Context, userID utils.SixID) ([]services.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.ConversationSummary), args.Error(1)
}
func (m *MockMessageService) GetConversation(ctx context.Context, conversationID, userID utils.SixID) (*services.ConversationDetail, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ConversationDetail), args.Error(1)
}
func (m *MockMessageService) UnreadTotal(ctx context.Context, userID utils.SixID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// MockNotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Notify(ctx context.Context, in services.NotifyInput) (*models.Notification, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}
func (m *MockNotificationService) NotifyNewMessage(ctx context.Context, recipientID utils.SixID, senderName string, conversationID utils.SixID, preview string) error {
	return m.Called(ctx, recipientID, senderName, conversationID, preview).Error(0)
}
func (m *MockNotificationService) NotifyNewOffer(ctx context.Context, recipientID utils.SixID, senderName, horseName string, conversationID utils.SixID, amount float64) error {
	return m.Called(ctx, recipientID, senderName, horseName, conversationID, amount).Error(0)
}
func (m *MockNotificationService) NotifyOfferResponse(ctx context.Context, offerSenderID utils.SixID, horseName string, conversationID utils.SixID, offer models.Offer) error {
	return m.Called(ctx, offerSenderID, horseName, conversationID, offer).Error(0)
}
func (m *MockNotificationService) NotifyNewReview(ctx context.Context, review *models.Review, reviewerName string) error {
	return m.Called(ctx, review, reviewerName).Error(0)
}
func (m *MockNotificationService) NotifyListingApproved(ctx context.Context, listing *models.Listing) error {
	return m.Called(ctx, listing).Error(0)
}
func (m *MockNotificationService) NotifyListingRejected(ctx context.Context, listing *models.Listing, reason string) error {
	return m.Called(ctx, listing, reason).Error(0)
}
func (m *MockNotificationService) NotifyFavorited(ctx context.Context, listing *models.Listing) error {
	return m.Called(ctx, listing).Error(0)
}
func (m *MockNotificationService) NotifyListingExpiring(ctx context.Context, listing *models.Listing, daysLeft int, bucket string) error {
	return m.Called(ctx, listing, daysLeft, bucket).Error(0)
}
func (m *MockNotificationService) NotifyListingExpired(ctx context.Context, listing *models.Listing) error {
	return m.Called(ctx, listing).Error(0)
}
func (m *MockNotificationService) NotifySavedSearchMatch(ctx context.Context, search *models.SavedSearch, count int64) error {
	return m.Called(ctx, search, count).Error(0)
}
func (m *MockNotificationService) List(ctx context.Context, userID utils.SixID, unreadOnly bool, page, limit int) ([]models.Notification, int64, error) {
	args := m.Called(ctx, userID, unreadOnly, page, limit)
	var items []models.Notification
	if args.Get(0) != nil {
		items = args.Get(0).([]models.Notification)
	}
	return items, args.Get(1).(int64), args.Error(2)
}
func (m *MockNotificationService) UnreadCount(ctx context.Context, userID utils.SixID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockNotificationService) MarkRead(ctx context.Context, userID, notificationID utils.SixID) error {
	return m.Called(ctx, userID, notificationID).Error(0)
}
func (m *MockNotificationService) MarkAllRead(ctx context.Context, userID utils.SixID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockNotificationService) Delete(ctx context.Context, userID, notificationID utils.SixID) error {
	return m.Called(ctx, userID, notificationID).Error(0)
}
func (m *MockNotificationService) ExistsForBucket(ctx context.Context, typ models.NotificationType, relatedID utils.SixID, bucket string) (bool, error) {
	args := m.Called(ctx, typ, relatedID, bucket)
	return args.Bool(0), args.Error(1)
}
func (m *MockNotificationService) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockNotificationService) Wait() {}

// MockReviewService
type MockReviewService struct {
	mock.Mock
}

func (m *MockReviewService) Create(ctx context.Context, reviewerID, sellerID utils.SixID, in services.ReviewInput) (*models.Review, error) {
	args := m.Called(ctx, reviewerID, sellerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Review), args.Error(1)
}
func (m *MockReviewService) ListForSeller(ctx context.Context, sellerID utils.SixID) (*services.SellerReviews, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SellerReviews), args.Error(1)
}

// MockSavedSearchService
type MockSavedSearchService struct {
	mock.Mock
}

func (m *MockSavedSearchService) Create(ctx context.Context, userID utils.SixID, in services.SavedSearchInput) (*models.SavedSearch, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SavedSearch), args.Error(1)
}
func (m *MockSavedSearchService) List(ctx context.Context, userID utils.SixID) ([]models.SavedSearch, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SavedSearch), args.Error(1)
}
func (m *MockSavedSearchService) Update(ctx context.Context, userID, id utils.SixID, in services.SavedSearchInput) (*models.SavedSearch, error) {
	args := m.Called(ctx, userID, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SavedSearch), args.Error(1)
}
func (m *MockSavedSearchService) Delete(ctx context.Context, userID, id utils.SixID) error {
	return m.Called(ctx, userID, id).Error(0)
}
func (m *MockSavedSearchService) FindDue(ctx context.Context, now time.Time) ([]models.SavedSearch, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]models.SavedSearch), args.Error(1)
}
func (m *MockSavedSearchService) RecordCheck(ctx context.Context, id utils.SixID, matchCount int64, checkedAt time.Time, notified bool) error {
	return m.Called(ctx, id, matchCount, checkedAt, notified).Error(0)
}

// MockImageStore
type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) PresignImageUpload(ctx context.Context, sellerID, listingID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, sellerID, listingID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}
func (m *MockImageStore) DeleteObject(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
func (m *MockImageStore) OwnsKey(listingID, key string) bool {
	return m.Called(listingID, key).Bool(0)
}

// MockImageEnqueuer
type MockImageEnqueuer struct {
	mock.Mock
}

func (m *MockImageEnqueuer) EnqueueImage(ctx context.Context, listingID utils.SixID, key string) error {
	return m.Called(ctx, listingID, key).Error(0)
}

// staticPresence reports a fixed set of users online.
type staticPresence map[utils.SixID]bool

func (p staticPresence) IsOnline(id utils.SixID) bool { return p[id] }
