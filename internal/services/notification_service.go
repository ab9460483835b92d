package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/metrics"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/realtime"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// Pusher delivers realtime events to connected clients.
type Pusher interface {
	SendToUser(ctx context.Context, userID utils.SixID, event string, payload any) error
	SendToConversation(ctx context.Context, conversationID utils.SixID, event string, payload any) error
}

// Mailer hands an email off for asynchronous delivery.
type Mailer interface {
	EnqueueEmail(ctx context.Context, to, templateID string, data map[string]any) error
}

// NotificationTemplateID is the email template used for every notification email.
const NotificationTemplateID = "notification"

// NotifyInput describes one notification to persist and fan out.
type NotifyInput struct {
	UserID     utils.SixID
	Type       models.NotificationType
	Title      string
	Message    string
	Link       string
	RelatedID  *utils.SixID
	Bucket     string
	EmailClass models.EmailClass
}

// INotificationService creates notifications and manages a user's inbox.
type INotificationService interface {
	Notify(ctx context.Context, in NotifyInput) (*models.Notification, error)

	NotifyNewMessage(ctx context.Context, recipientID utils.SixID, senderName string, conversationID utils.SixID, preview string) error
	NotifyNewOffer(ctx context.Context, recipientID utils.SixID, senderName, horseName string, conversationID utils.SixID, amount float64) error
	NotifyOfferResponse(ctx context.Context, offerSenderID utils.SixID, horseName string, conversationID utils.SixID, offer models.Offer) error
	NotifyNewReview(ctx context.Context, review *models.Review, reviewerName string) error
	NotifyListingApproved(ctx context.Context, listing *models.Listing) error
	NotifyListingRejected(ctx context.Context, listing *models.Listing, reason string) error
	NotifyFavorited(ctx context.Context, listing *models.Listing) error
	NotifyListingExpiring(ctx context.Context, listing *models.Listing, daysLeft int, bucket string) error
	NotifyListingExpired(ctx context.Context, listing *models.Listing) error
	NotifySavedSearchMatch(ctx context.Context, search *models.SavedSearch, count int64) error

	List(ctx context.Context, userID utils.SixID, unreadOnly bool, page, limit int) ([]models.Notification, int64, error)
	UnreadCount(ctx context.Context, userID utils.SixID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID utils.SixID) error
	MarkAllRead(ctx context.Context, userID utils.SixID) (int64, error)
	Delete(ctx context.Context, userID, notificationID utils.SixID) error

	ExistsForBucket(ctx context.Context, typ models.NotificationType, relatedID utils.SixID, bucket string) (bool, error)
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Wait blocks until every in-flight push/email delivery has finished.
	Wait()
}

type notificationService struct {
	repo    notificationRepository
	pusher  Pusher
	mailer  Mailer
	baseURL string
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewNotificationService creates a notification service backed by MongoDB.
// pusher and mailer may be nil, which disables that delivery channel.
func NewNotificationService(database *mongo.Database, pusher Pusher, mailer Mailer, baseURL string, logger *zap.Logger) INotificationService {
	return newNotificationService(newMongoNotificationRepository(database), pusher, mailer, baseURL, logger)
}

func newNotificationService(repo notificationRepository, pusher Pusher, mailer Mailer, baseURL string, logger *zap.Logger) *notificationService {
	return &notificationService{
		repo:    repo,
		pusher:  pusher,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("notifications"),
	}
}

// Notify persists the notification, then pushes and emails it in the background.
// Only the persistence step can fail the call.
func (s *notificationService) Notify(ctx context.Context, in NotifyInput) (*models.Notification, error) {
	n := &models.Notification{
		User:      in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Link:      in.Link,
		RelatedID: in.RelatedID,
		Bucket:    in.Bucket,
		CreatedAt: time.Now().UTC(),
	}
	err := db.Try(func() error {
		n.GenID()
		return s.repo.Insert(ctx, n)
	})
	if err != nil {
		return nil, ErrInternal("failed to create notification", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(in.Type)).Inc()

	deliveryCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(deliveryCtx, n, in.EmailClass)
	}()
	return n, nil
}

func (s *notificationService) deliver(ctx context.Context, n *models.Notification, class models.EmailClass) {
	log := s.logger.With(zap.Stringer("user", n.User), zap.String("type", string(n.Type)))

	if s.pusher != nil {
		if err := s.pusher.SendToUser(ctx, n.User, realtime.EventNotificationNew, n); err != nil {
			metrics.NotificationDeliveryFailures.WithLabelValues("push").Inc()
			log.Warn("realtime push failed", zap.Error(err))
		}
	}

	if s.mailer == nil || class == models.EmailClassNone {
		return
	}
	recipient, err := s.repo.FindRecipient(ctx, n.User)
	if err != nil {
		metrics.NotificationDeliveryFailures.WithLabelValues("email").Inc()
		log.Warn("could not load recipient for email", zap.Error(err))
		return
	}
	if !recipient.NotificationPreferences.AllowsEmail(class) {
		return
	}
	data := map[string]any{
		"name":    recipient.Name,
		"title":   n.Title,
		"message": n.Message,
		"link":    s.baseURL + n.Link,
	}
	if err := s.mailer.EnqueueEmail(ctx, recipient.Email, NotificationTemplateID, data); err != nil {
		metrics.NotificationDeliveryFailures.WithLabelValues("email").Inc()
		log.Warn("email enqueue failed", zap.Error(err))
	}
}

func (s *notificationService) Wait() {
	s.wg.Wait()
}

func (s *notificationService) notify(ctx context.Context, in NotifyInput) error {
	_, err := s.Notify(ctx, in)
	return err
}

func idRef(id utils.SixID) *utils.SixID {
	return &id
}

func conversationLink(id utils.SixID) string {
	return "/messages?conversation=" + id.String()
}

func (s *notificationService) NotifyNewMessage(ctx context.Context, recipientID utils.SixID, senderName string, conversationID utils.SixID, preview string) error {
	return s.notify(ctx, NotifyInput{
		UserID:    recipientID,
		Type:      models.NotificationNewMessage,
		Title:     "Yeni mesaj",
		Message:   fmt.Sprintf("%s size bir mesaj gönderdi: %s", senderName, preview),
		Link:      conversationLink(conversationID),
		RelatedID: idRef(conversationID),
	})
}

func (s *notificationService) NotifyNewOffer(ctx context.Context, recipientID utils.SixID, senderName, horseName string, conversationID utils.SixID, amount float64) error {
	return s.notify(ctx, NotifyInput{
		UserID:     recipientID,
		Type:       models.NotificationNewOffer,
		Title:      "Yeni teklif",
		Message:    fmt.Sprintf("%s, \"%s\" için %s teklif verdi", senderName, horseName, FormatTRY(amount)),
		Link:       conversationLink(conversationID),
		RelatedID:  idRef(conversationID),
		EmailClass: models.EmailClassOffers,
	})
}

func (s *notificationService) NotifyOfferResponse(ctx context.Context, offerSenderID utils.SixID, horseName string, conversationID utils.SixID, offer models.Offer) error {
	var title, message string
	amount := FormatTRY(offer.Amount)
	switch offer.Status {
	case models.OfferAccepted:
		title = "Teklifiniz kabul edildi"
		message = fmt.Sprintf("\"%s\" için %s teklifiniz kabul edildi", horseName, amount)
	case models.OfferRejected:
		title = "Teklifiniz reddedildi"
		message = fmt.Sprintf("\"%s\" için %s teklifiniz reddedildi", horseName, amount)
	case models.OfferCountered:
		counter := 0.0
		if offer.CounterAmount != nil {
			counter = *offer.CounterAmount
		}
		title = "Karşı teklif aldınız"
		message = fmt.Sprintf("\"%s\" için %s teklifinize %s karşı teklif geldi", horseName, amount, FormatTRY(counter))
	default:
		return ErrValidation("offer is not resolved")
	}
	return s.notify(ctx, NotifyInput{
		UserID:     offerSenderID,
		Type:       models.NotificationOfferResponse,
		Title:      title,
		Message:    message,
		Link:       conversationLink(conversationID),
		RelatedID:  idRef(conversationID),
		EmailClass: models.EmailClassOffers,
	})
}

func (s *notificationService) NotifyNewReview(ctx context.Context, review *models.Review, reviewerName string) error {
	return s.notify(ctx, NotifyInput{
		UserID:     review.Seller,
		Type:       models.NotificationNewReview,
		Title:      "Yeni değerlendirme",
		Message:    fmt.Sprintf("%s size %d yıldız verdi", reviewerName, review.Rating),
		Link:       "/profile/" + review.Seller.String() + "#reviews",
		RelatedID:  idRef(review.ID),
		EmailClass: models.EmailClassReviews,
	})
}

func (s *notificationService) NotifyListingApproved(ctx context.Context, listing *models.Listing) error {
	return s.notify(ctx, NotifyInput{
		UserID:     listing.Seller,
		Type:       models.NotificationListingApproved,
		Title:      "İlanınız onaylandı",
		Message:    fmt.Sprintf("\"%s\" ilanınız yayına alındı", listing.Name),
		Link:       "/horses/" + listing.ID.String(),
		RelatedID:  idRef(listing.ID),
		EmailClass: models.EmailClassListings,
	})
}

func (s *notificationService) NotifyListingRejected(ctx context.Context, listing *models.Listing, reason string) error {
	return s.notify(ctx, NotifyInput{
		UserID:     listing.Seller,
		Type:       models.NotificationListingRejected,
		Title:      "İlanınız reddedildi",
		Message:    fmt.Sprintf("\"%s\" ilanınız reddedildi. Sebep: %s", listing.Name, reason),
		Link:       "/my-listings",
		RelatedID:  idRef(listing.ID),
		EmailClass: models.EmailClassListings,
	})
}

func (s *notificationService) NotifyFavorited(ctx context.Context, listing *models.Listing) error {
	return s.notify(ctx, NotifyInput{
		UserID:    listing.Seller,
		Type:      models.NotificationFavorited,
		Title:     "İlanınız favorilere eklendi",
		Message:   fmt.Sprintf("\"%s\" ilanınız bir kullanıcı tarafından favorilere eklendi", listing.Name),
		Link:      "/horses/" + listing.ID.String(),
		RelatedID: idRef(listing.ID),
	})
}

func (s *notificationService) NotifyListingExpiring(ctx context.Context, listing *models.Listing, daysLeft int, bucket string) error {
	return s.notify(ctx, NotifyInput{
		UserID:     listing.Seller,
		Type:       models.NotificationListingExpiring,
		Title:      "İlanınızın süresi doluyor",
		Message:    fmt.Sprintf("\"%s\" ilanınızın süresi %d gün içinde dolacak", listing.Name, daysLeft),
		Link:       "/my-listings",
		RelatedID:  idRef(listing.ID),
		Bucket:     bucket,
		EmailClass: models.EmailClassListings,
	})
}

func (s *notificationService) NotifyListingExpired(ctx context.Context, listing *models.Listing) error {
	return s.notify(ctx, NotifyInput{
		UserID:     listing.Seller,
		Type:       models.NotificationListingExpired,
		Title:      "İlanınızın süresi doldu",
		Message:    fmt.Sprintf("\"%s\" ilanınızın süresi doldu. Yenilemek için ilanlarım sayfasını ziyaret edin", listing.Name),
		Link:       "/my-listings",
		RelatedID:  idRef(listing.ID),
		EmailClass: models.EmailClassListings,
	})
}

func (s *notificationService) NotifySavedSearchMatch(ctx context.Context, search *models.SavedSearch, count int64) error {
	return s.notify(ctx, NotifyInput{
		UserID:     search.User,
		Type:       models.NotificationSavedSearchMatch,
		Title:      "Kayıtlı aramanız için yeni ilanlar",
		Message:    fmt.Sprintf("\"%s\" aramanıza uygun %d yeni ilan bulundu", search.Name, count),
		Link:       "/horses?savedSearch=" + search.ID.String(),
		RelatedID:  idRef(search.ID),
		EmailClass: models.EmailClassSavedSearches,
	})
}

func (s *notificationService) List(ctx context.Context, userID utils.SixID, unreadOnly bool, page, limit int) ([]models.Notification, int64, error) {
	page, limit = NormalizePage(page, limit)
	items, total, err := s.repo.List(ctx, userID, unreadOnly, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, 0, ErrInternal("failed to list notifications", err)
	}
	return items, total, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID utils.SixID) (int64, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, ErrInternal("failed to count notifications", err)
	}
	return n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID utils.SixID) error {
	found, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return ErrInternal("failed to update notification", err)
	}
	if !found {
		return ErrNotFound("notification not found")
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID utils.SixID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, ErrInternal("failed to update notifications", err)
	}
	return n, nil
}

func (s *notificationService) Delete(ctx context.Context, userID, notificationID utils.SixID) error {
	found, err := s.repo.Delete(ctx, userID, notificationID)
	if err != nil {
		return ErrInternal("failed to delete notification", err)
	}
	if !found {
		return ErrNotFound("notification not found")
	}
	return nil
}

func (s *notificationService) ExistsForBucket(ctx context.Context, typ models.NotificationType, relatedID utils.SixID, bucket string) (bool, error) {
	return s.repo.ExistsForBucket(ctx, typ, relatedID, bucket)
}

func (s *notificationService) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteReadBefore(ctx, cutoff)
}
