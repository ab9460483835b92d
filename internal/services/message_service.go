package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/realtime"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// PreviewLength is the number of runes of a message shown in notifications.
const PreviewLength = 50

// SendMessageInput is a request to message another user about a listing.
type SendMessageInput struct {
	RecipientID utils.SixID        `json:"recipientId" binding:"required"`
	HorseID     utils.SixID        `json:"horseId" binding:"required"`
	Content     string             `json:"content"`
	Type        models.MessageType `json:"type"`
	OfferAmount *float64           `json:"offerAmount"`
}

// OfferResponseInput answers a pending offer.
type OfferResponseInput struct {
	Response      models.OfferDecision `json:"response" binding:"required"`
	CounterAmount *float64             `json:"counterAmount"`
}

// OfferResult is the outcome of a successful offer response.
type OfferResult struct {
	Offer        *models.Message      `json:"offer"`
	System       *models.Message      `json:"systemMessage"`
	Conversation *models.Conversation `json:"-"`
}

// HorseSummary is the listing snapshot shown next to a conversation.
type HorseSummary struct {
	ID     utils.SixID          `json:"id"`
	Name   string               `json:"name"`
	Price  float64              `json:"price"`
	Image  string               `json:"image,omitempty"`
	Status models.ListingStatus `json:"status"`
}

// ConversationSummary is one entry of a user's inbox.
type ConversationSummary struct {
	ID          utils.SixID         `json:"id"`
	OtherUser   *models.PublicUser  `json:"otherUser,omitempty"`
	Horse       *HorseSummary       `json:"horse,omitempty"`
	LastMessage *models.LastMessage `json:"lastMessage,omitempty"`
	UnreadCount int                 `json:"unreadCount"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// ConversationDetail is a conversation with its messages in send order.
type ConversationDetail struct {
	ConversationSummary
	Messages []models.MessageView `json:"messages"`
}

// IMessageService covers conversations, messages and embedded offers.
type IMessageService interface {
	FindOrCreateConversation(ctx context.Context, userA, userB, horseID utils.SixID) (*models.Conversation, error)
	PostMessage(ctx context.Context, conv *models.Conversation, senderID utils.SixID, content string, msgType models.MessageType, offerAmount *float64) (*models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID utils.SixID) (int64, error)
	RespondToOffer(ctx context.Context, messageID, responderID utils.SixID, decision models.OfferDecision, counterAmount *float64) (*OfferResult, error)
	IsParticipant(ctx context.Context, conversationID, userID utils.SixID) (bool, error)

	SendMessage(ctx context.Context, senderID utils.SixID, in SendMessageInput) (*models.MessageView, error)
	AnswerOffer(ctx context.Context, messageID, responderID utils.SixID, in OfferResponseInput) (*OfferResult, error)
	ReadConversation(ctx context.Context, conversationID, readerID utils.SixID) (int64, error)
	ListConversations(ctx context.Context, userID utils.SixID) ([]ConversationSummary, error)
	GetConversation(ctx context.Context, conversationID, userID utils.SixID) (*ConversationDetail, error)
	UnreadTotal(ctx context.Context, userID utils.SixID) (int, error)
}

type messageService struct {
	db       *mongo.Database
	users    IUserService
	listings IListingService
	notifier INotificationService
	pusher   Pusher
	logger   *zap.Logger

	// Test hook, called between the message insert and the conversation update.
	beforeConversationUpdate func(ctx context.Context)
}

// NewMessageService creates a new MessageService.
func NewMessageService(database *mongo.Database, users IUserService, listings IListingService, notifier INotificationService, pusher Pusher, logger *zap.Logger) IMessageService {
	return &messageService{
		db:       database,
		users:    users,
		listings: listings,
		notifier: notifier,
		pusher:   pusher,
		logger:   logger.Named("messages"),
	}
}

func (s *messageService) conversations() *mongo.Collection {
	return s.db.Collection(db.ConversationsCollection)
}

func (s *messageService) messages() *mongo.Collection {
	return s.db.Collection(db.MessagesCollection)
}

// FindOrCreateConversation returns the conversation of the unordered pair about
// a listing, creating it on first use. The unique key index guarantees a single
// conversation even under concurrent first messages.
func (s *messageService) FindOrCreateConversation(ctx context.Context, userA, userB, horseID utils.SixID) (*models.Conversation, error) {
	if userA == userB {
		return nil, ErrValidation("a conversation needs two different users")
	}
	key := models.ConversationKey(userA, userB, horseID)

	var conv models.Conversation
	for attempt := 0; attempt <= db.DefaultMaxRetries; attempt++ {
		now := time.Now().UTC()
		update := bson.M{"$setOnInsert": bson.M{
			"_id":          utils.NewSixID(),
			"key":          key,
			"participants": []utils.SixID{userA, userB},
			"horse":        horseID,
			"unread_count": bson.M{userA.String(): 0, userB.String(): 0},
			"is_active":    true,
			"created_at":   now,
			"updated_at":   now,
		}}
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		err := s.conversations().FindOneAndUpdate(ctx, bson.M{"key": key}, update, opts).Decode(&conv)
		if err == nil {
			return &conv, nil
		}
		if !db.IsMongoDuplicateKeyError(err) {
			return nil, ErrInternal("failed to open conversation", err)
		}
		// Lost the race to a concurrent insert, or the generated _id collided.
		if findErr := s.conversations().FindOne(ctx, bson.M{"key": key}).Decode(&conv); findErr == nil {
			return &conv, nil
		}
	}
	return nil, ErrInternal("failed to open conversation", fmt.Errorf("conversation %s: retries exhausted", key))
}

func (s *messageService) findConversation(ctx context.Context, id utils.SixID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.conversations().FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound("conversation not found")
		}
		return nil, ErrInternal("failed to load conversation", err)
	}
	return &conv, nil
}

// IsParticipant reports whether userID takes part in the conversation.
func (s *messageService) IsParticipant(ctx context.Context, conversationID, userID utils.SixID) (bool, error) {
	n, err := s.conversations().CountDocuments(ctx, bson.M{"_id": conversationID, "participants": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OfferContent is the text stored for an offer message.
func OfferContent(amount float64) string {
	return FormatTRY(amount) + " teklif gönderildi"
}

// PostMessage stores a message and updates the conversation's unread counter
// and last message snapshot in one atomic update.
func (s *messageService) PostMessage(ctx context.Context, conv *models.Conversation, senderID utils.SixID, content string, msgType models.MessageType, offerAmount *float64) (*models.Message, error) {
	if !conv.HasParticipant(senderID) {
		return nil, ErrForbidden("you are not a participant of this conversation")
	}
	if msgType == "" {
		msgType = models.MessageText
	}
	if !msgType.Valid() {
		return nil, ErrValidation("invalid message type %q", msgType)
	}

	var offer *models.Offer
	content = strings.TrimSpace(content)
	if msgType == models.MessageOffer {
		if offerAmount == nil || *offerAmount <= 0 {
			return nil, ErrValidation("offer amount must be greater than zero")
		}
		offer = &models.Offer{Amount: *offerAmount, Status: models.OfferPending}
		content = OfferContent(*offerAmount)
	} else if content == "" {
		return nil, ErrValidation("message content is required")
	}

	msg, err := s.insertMessage(ctx, conv, senderID, msgType, content, offer)
	if err != nil {
		return nil, err
	}

	if msgType == models.MessageOffer {
		if err := s.listings.IncrementStat(ctx, conv.Horse, StatInquiries, 1); err != nil {
			s.logger.Warn("failed to count inquiry", zap.Stringer("listing", conv.Horse), zap.Error(err))
		}
	}
	return msg, nil
}

// insertMessage stores msg and applies the conversation's unread increment
// and last message snapshot in the same transaction.
func (s *messageService) insertMessage(ctx context.Context, conv *models.Conversation, senderID utils.SixID, msgType models.MessageType, content string, offer *models.Offer) (*models.Message, error) {
	msg := &models.Message{
		Conversation: conv.ID,
		Sender:       senderID,
		Type:         msgType,
		Content:      content,
		Offer:        offer,
		CreatedAt:    time.Now().UTC(),
	}
	err := db.Try(func() error {
		msg.GenID()
		return s.atomically(ctx, "sending message", func(ctx context.Context) error {
			return s.storeMessage(ctx, conv, msg)
		})
	})
	if err != nil {
		return nil, ErrInternal("failed to send message", fmt.Errorf("conversation %s: %w", conv.ID, err))
	}
	return msg, nil
}

// storeMessage inserts msg and updates its conversation. Callers run it
// through atomically.
func (s *messageService) storeMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	if _, err := s.messages().InsertOne(ctx, msg); err != nil {
		return err
	}
	if s.beforeConversationUpdate != nil {
		s.beforeConversationUpdate(ctx)
	}
	other := conv.OtherParticipant(msg.Sender)
	update := bson.M{
		"$inc": bson.M{"unread_count." + other.String(): 1},
		"$set": bson.M{
			"last_message": models.LastMessage{Content: msg.Content, Sender: msg.Sender, Type: msg.Type, CreatedAt: msg.CreatedAt},
			"updated_at":   msg.CreatedAt,
		},
	}
	_, err := s.conversations().UpdateOne(ctx, bson.M{"_id": conv.ID}, update)
	return err
}

// atomically runs apply in a transaction. Standalone servers cannot run
// transactions, so there apply runs directly and the writes are only
// individually atomic.
func (s *messageService) atomically(ctx context.Context, what string, apply func(ctx context.Context) error) error {
	err := db.WithTransaction(ctx, s.db, func(sc mongo.SessionContext) error { return apply(sc) })
	if err != nil && isTransactionUnsupported(err) {
		s.logger.Warn("transactions unavailable, writing without one", zap.String("operation", what))
		return apply(ctx)
	}
	return err
}

// MarkConversationRead marks every message the reader received as read and
// resets the reader's unread counter, both in one transaction.
func (s *messageService) MarkConversationRead(ctx context.Context, conversationID, readerID utils.SixID) (int64, error) {
	conv, err := s.findConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(readerID) {
		return 0, ErrForbidden("you are not a participant of this conversation")
	}

	var marked int64
	err = s.atomically(ctx, "marking conversation read", func(ctx context.Context) error {
		now := time.Now().UTC()
		res, err := s.messages().UpdateMany(ctx,
			bson.M{"conversation": conversationID, "sender": bson.M{"$ne": readerID}, "is_read": false},
			bson.M{"$set": bson.M{"is_read": true, "read_at": now}},
		)
		if err != nil {
			return err
		}
		marked = res.ModifiedCount
		_, err = s.conversations().UpdateOne(ctx,
			bson.M{"_id": conversationID},
			bson.M{"$set": bson.M{"unread_count." + readerID.String(): 0}},
		)
		return err
	})
	if err != nil {
		return 0, ErrInternal("failed to mark conversation read", err)
	}
	return marked, nil
}

// isTransactionUnsupported matches the server error returned by standalone deployments.
func isTransactionUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 20 {
		return true
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed")
}

// RespondToOffer resolves a pending offer. The status change is a single
// compare-and-set on status=pending, so only one of several concurrent
// responses can succeed.
func (s *messageService) RespondToOffer(ctx context.Context, messageID, responderID utils.SixID, decision models.OfferDecision, counterAmount *float64) (*OfferResult, error) {
	status, ok := decision.Status()
	if !ok {
		return nil, ErrValidation("response must be accept, reject or counter")
	}
	if status == models.OfferCountered && (counterAmount == nil || *counterAmount <= 0) {
		return nil, ErrValidation("counter amount must be greater than zero")
	}

	var msg models.Message
	if err := s.messages().FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound("message not found")
		}
		return nil, ErrInternal("failed to load message", err)
	}
	if msg.Type != models.MessageOffer || msg.Offer == nil {
		return nil, ErrValidation("message is not an offer")
	}
	conv, err := s.findConversation(ctx, msg.Conversation)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(responderID) {
		return nil, ErrForbidden("you are not a participant of this conversation")
	}
	if msg.Sender == responderID {
		return nil, ErrForbidden("you cannot respond to your own offer")
	}

	now := time.Now().UTC()
	set := bson.M{"offer.status": status, "offer.responded_at": now}
	if status == models.OfferCountered {
		set["offer.counter_amount"] = *counterAmount
	}
	var updated models.Message
	system := &models.Message{
		Conversation: conv.ID,
		Sender:       responderID,
		Type:         models.MessageSystem,
		CreatedAt:    now,
	}
	// Without a transaction a retried insert must not repeat the
	// compare-and-set it already won.
	resolved := false
	err = db.Try(func() error {
		system.GenID()
		return s.atomically(ctx, "answering offer", func(ctx context.Context) error {
			if _, inTx := ctx.(mongo.SessionContext); inTx || !resolved {
				err := s.messages().FindOneAndUpdate(ctx,
					bson.M{"_id": messageID, "offer.status": models.OfferPending},
					bson.M{"$set": set},
					options.FindOneAndUpdate().SetReturnDocument(options.After),
				).Decode(&updated)
				if errors.Is(err, mongo.ErrNoDocuments) {
					return ErrConflict("this offer has already been answered")
				}
				if err != nil {
					return err
				}
				resolved = true
			}
			system.Content = offerOutcomeText(updated.Offer)
			return s.storeMessage(ctx, conv, system)
		})
	})
	if err != nil {
		if KindOf(err) == KindConflict {
			return nil, err
		}
		return nil, ErrInternal("failed to answer offer", fmt.Errorf("message %s: %w", messageID, err))
	}
	return &OfferResult{Offer: &updated, System: system, Conversation: conv}, nil
}

func offerOutcomeText(offer *models.Offer) string {
	switch offer.Status {
	case models.OfferAccepted:
		return "Teklif kabul edildi: " + FormatTRY(offer.Amount)
	case models.OfferRejected:
		return "Teklif reddedildi: " + FormatTRY(offer.Amount)
	}
	counter := 0.0
	if offer.CounterAmount != nil {
		counter = *offer.CounterAmount
	}
	return "Karşı teklif: " + FormatTRY(counter)
}

// Preview returns the first PreviewLength runes of content.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	return string([]rune(content)[:PreviewLength])
}

// SendMessage opens the conversation if needed, stores the message, pushes it
// to the conversation and recipient, and notifies the recipient.
func (s *messageService) SendMessage(ctx context.Context, senderID utils.SixID, in SendMessageInput) (*models.MessageView, error) {
	if in.RecipientID == senderID {
		return nil, ErrValidation("you cannot message yourself")
	}
	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, in.RecipientID); err != nil {
		if KindOf(err) == KindNotFound {
			return nil, ErrNotFound("recipient not found")
		}
		return nil, err
	}
	listing, err := s.listings.FindByID(ctx, in.HorseID)
	if err != nil {
		return nil, err
	}

	conv, err := s.FindOrCreateConversation(ctx, senderID, in.RecipientID, in.HorseID)
	if err != nil {
		return nil, err
	}
	msg, err := s.PostMessage(ctx, conv, senderID, in.Content, in.Type, in.OfferAmount)
	if err != nil {
		return nil, err
	}

	public := sender.Public()
	view := &models.MessageView{Message: *msg, Sender: &public}

	s.push(func() error {
		return s.pusher.SendToConversation(ctx, conv.ID, realtime.EventMessageNew, view)
	}, realtime.EventMessageNew)
	s.push(func() error {
		return s.pusher.SendToUser(ctx, in.RecipientID, realtime.EventNotificationMessage, map[string]any{
			"conversationId": conv.ID,
			"messageId":      msg.ID,
			"senderId":       sender.ID,
			"senderName":     sender.Name,
			"horseId":        listing.ID,
			"preview":        Preview(msg.Content),
		})
	}, realtime.EventNotificationMessage)

	if msg.Type == models.MessageOffer {
		err = s.notifier.NotifyNewOffer(ctx, in.RecipientID, sender.Name, listing.Name, conv.ID, msg.Offer.Amount)
	} else {
		err = s.notifier.NotifyNewMessage(ctx, in.RecipientID, sender.Name, conv.ID, Preview(msg.Content))
	}
	if err != nil {
		s.logger.Warn("message notification failed", zap.Stringer("conversation", conv.ID), zap.Error(err))
	}
	return view, nil
}

func (s *messageService) push(send func() error, event string) {
	if s.pusher == nil {
		return
	}
	if err := send(); err != nil {
		s.logger.Warn("realtime push failed", zap.String("event", event), zap.Error(err))
	}
}

// AnswerOffer resolves an offer, broadcasts the outcome to the conversation
// and notifies the offer's sender.
func (s *messageService) AnswerOffer(ctx context.Context, messageID, responderID utils.SixID, in OfferResponseInput) (*OfferResult, error) {
	result, err := s.RespondToOffer(ctx, messageID, responderID, in.Response, in.CounterAmount)
	if err != nil {
		return nil, err
	}
	conv := result.Conversation

	s.push(func() error {
		return s.pusher.SendToConversation(ctx, conv.ID, realtime.EventOfferUpdated, result.Offer)
	}, realtime.EventOfferUpdated)
	s.push(func() error {
		return s.pusher.SendToConversation(ctx, conv.ID, realtime.EventMessageNew, models.MessageView{Message: *result.System})
	}, realtime.EventMessageNew)

	horseName := ""
	if listing, err := s.listings.FindByID(ctx, conv.Horse); err == nil {
		horseName = listing.Name
	}
	if err := s.notifier.NotifyOfferResponse(ctx, result.Offer.Sender, horseName, conv.ID, *result.Offer.Offer); err != nil {
		s.logger.Warn("offer response notification failed", zap.Stringer("message", messageID), zap.Error(err))
	}
	return result, nil
}

// ReadConversation marks the conversation read and tells the room who read it.
func (s *messageService) ReadConversation(ctx context.Context, conversationID, readerID utils.SixID) (int64, error) {
	marked, err := s.MarkConversationRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	s.push(func() error {
		return s.pusher.SendToConversation(ctx, conversationID, realtime.EventMessagesMarkedRead, map[string]any{
			"conversationId": conversationID,
			"readBy":         readerID,
		})
	}, realtime.EventMessagesMarkedRead)
	return marked, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *messageService) ListConversations(ctx context.Context, userID utils.SixID) ([]ConversationSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := s.conversations().Find(ctx, bson.M{"participants": userID, "is_active": true}, opts)
	if err != nil {
		return nil, ErrInternal("failed to list conversations", err)
	}
	defer cur.Close(ctx)
	var convs []models.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, ErrInternal("failed to list conversations", err)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		out = append(out, s.summarize(ctx, &convs[i], userID))
	}
	return out, nil
}

// summarize populates the other participant and listing; lookups that fail leave them empty.
func (s *messageService) summarize(ctx context.Context, conv *models.Conversation, userID utils.SixID) ConversationSummary {
	summary := ConversationSummary{
		ID:          conv.ID,
		LastMessage: conv.LastMessage,
		UnreadCount: conv.UnreadCount.For(userID),
		UpdatedAt:   conv.UpdatedAt,
	}
	if other, err := s.users.FindByID(ctx, conv.OtherParticipant(userID)); err == nil {
		p := other.Public()
		summary.OtherUser = &p
	}
	if listing, err := s.listings.FindByID(ctx, conv.Horse); err == nil {
		h := &HorseSummary{ID: listing.ID, Name: listing.Name, Price: listing.Price, Status: listing.Status}
		if len(listing.Images) > 0 {
			h.Image = listing.Images[0]
		}
		summary.Horse = h
	}
	return summary
}

// GetConversation returns a conversation with its messages and marks it read for the caller.
func (s *messageService) GetConversation(ctx context.Context, conversationID, userID utils.SixID) (*ConversationDetail, error) {
	conv, err := s.findConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrForbidden("you are not a participant of this conversation")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages().Find(ctx, bson.M{"conversation": conversationID}, opts)
	if err != nil {
		return nil, ErrInternal("failed to load messages", err)
	}
	defer cur.Close(ctx)
	var msgs []models.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, ErrInternal("failed to load messages", err)
	}

	if _, err := s.ReadConversation(ctx, conversationID, userID); err != nil {
		s.logger.Warn("failed to mark conversation read", zap.Stringer("conversation", conversationID), zap.Error(err))
	}

	summary := s.summarize(ctx, conv, userID)
	summary.UnreadCount = 0
	senders := map[utils.SixID]*models.PublicUser{}
	if summary.OtherUser != nil {
		senders[summary.OtherUser.ID] = summary.OtherUser
	}
	if me, err := s.users.FindByID(ctx, userID); err == nil {
		p := me.Public()
		senders[userID] = &p
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, models.MessageView{Message: m, Sender: senders[m.Sender]})
	}
	return &ConversationDetail{ConversationSummary: summary, Messages: views}, nil
}

// UnreadTotal sums the caller's unread counters across conversations.
func (s *messageService) UnreadTotal(ctx context.Context, userID utils.SixID) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"participants": userID, "is_active": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$unread_count." + userID.String()},
		}}},
	}
	cur, err := s.conversations().Aggregate(ctx, pipeline)
	if err != nil {
		return 0, ErrInternal("failed to count unread messages", err)
	}
	defer cur.Close(ctx)
	var rows []struct {
		Total int `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, ErrInternal("failed to count unread messages", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}
