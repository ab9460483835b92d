package services

import (
	"context"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zaptest"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/realtime"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

type messageFixture struct {
	db       *mongo.Database
	svc      IMessageService
	listings IListingService
	pusher   *fakePusher
	notes    *fakeNotificationRepo
	notifier *notificationService
	seller   *models.User
	buyer    *models.User
	listing  *models.Listing
}

func newMessageFixture(t *testing.T, dbName string) *messageFixture {
	database := utils.SetupTestDB(t, dbName,
		db.UsersCollection, db.HorsesCollection, db.ConversationsCollection, db.MessagesCollection)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))

	notifier, notes, pusher, _ := newTestNotifier(t)
	logger := zaptest.NewLogger(t)
	listings := NewListingService(database, 60*24*time.Hour, notifier, logger)
	users := NewUserService(database, listings, notifier, logger)
	ctx := context.Background()

	seller, err := users.Register(ctx, RegisterInput{Name: "Ayşe", Email: "ayse@example.com", Password: "password1"})
	require.NoError(t, err)
	buyer, err := users.Register(ctx, RegisterInput{Name: "Mehmet", Email: "mehmet@example.com", Password: "password1"})
	require.NoError(t, err)
	listing, err := listings.Create(ctx, seller.ID, testListingInput())
	require.NoError(t, err)

	return &messageFixture{
		db:       database,
		svc:      NewMessageService(database, users, listings, notifier, pusher, logger),
		listings: listings,
		pusher:   pusher,
		notes:    notes,
		notifier: notifier,
		seller:   seller,
		buyer:    buyer,
		listing:  listing,
	}
}

func (f *messageFixture) eventsNamed(event string) []pushed {
	var out []pushed
	for _, e := range f.pusher.Events() {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *messageFixture) sendOffer(t *testing.T, amount float64) *models.MessageView {
	view, err := f.svc.SendMessage(context.Background(), f.buyer.ID, SendMessageInput{
		RecipientID: f.seller.ID,
		HorseID:     f.listing.ID,
		Type:        models.MessageOffer,
		OfferAmount: &amount,
	})
	require.NoError(t, err)
	return view
}

func TestSendMessage_CreatesConversationAndNotifies(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_send")
	ctx := context.Background()
	long := "Merhaba, atınız hâlâ satılık mı? Hafta sonu görmeye gelmek istiyorum, uygun musunuz?"

	view, err := f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Content: long})
	require.NoError(t, err)
	f.notifier.Wait()
	assert.Equal(t, models.MessageText, view.Type)
	require.NotNil(t, view.Sender)
	assert.Equal(t, "Mehmet", view.Sender.Name)

	convs, err := f.svc.ListConversations(ctx, f.seller.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
	require.NotNil(t, convs[0].OtherUser)
	assert.Equal(t, f.buyer.ID, convs[0].OtherUser.ID)
	require.NotNil(t, convs[0].Horse)
	assert.Equal(t, "Rüzgar", convs[0].Horse.Name)

	notices := f.eventsNamed(realtime.EventNotificationMessage)
	require.Len(t, notices, 1)
	assert.Equal(t, f.seller.ID, notices[0].userID)
	payload := notices[0].data.(map[string]any)
	preview := payload["preview"].(string)
	assert.LessOrEqual(t, utf8.RuneCountInString(preview), PreviewLength)
	assert.Equal(t, Preview(long), preview)

	require.Len(t, f.eventsNamed(realtime.EventMessageNew), 1)
	require.Len(t, f.notes.items, 1)
	assert.Equal(t, models.NotificationNewMessage, f.notes.items[0].Type)

	total, err := f.svc.UnreadTotal(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_validation")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.buyer.ID, HorseID: f.listing.ID, Content: "x"})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: utils.NewSixID(), HorseID: f.listing.ID, Content: "x"})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: utils.NewSixID(), Content: "x"})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Content: "   "})
	assert.Equal(t, KindValidation, KindOf(err))

	zero := 0.0
	_, err = f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Type: models.MessageOffer, OfferAmount: &zero})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Type: models.MessageSystem, Content: "x"})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFindOrCreateConversation_Unique(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_unique")
	ctx := context.Background()

	const callers = 8
	ids := make([]utils.SixID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.buyer.ID, f.seller.ID
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := f.svc.FindOrCreateConversation(ctx, a, b, f.listing.ID)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}

	other, err := f.svc.FindOrCreateConversation(ctx, f.buyer.ID, f.seller.ID, utils.NewSixID())
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], other.ID)

	_, err = f.svc.FindOrCreateConversation(ctx, f.buyer.ID, f.buyer.ID, f.listing.ID)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestOffer_CreateAndCounter(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_offer")
	ctx := context.Background()

	offer := f.sendOffer(t, 50000)
	assert.Equal(t, "₺50.000 teklif gönderildi", offer.Content)
	require.NotNil(t, offer.Offer)
	assert.Equal(t, models.OfferPending, offer.Offer.Status)

	listing, err := f.listings.FindByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, listing.Stats.Inquiries)

	counter := 45000.0
	result, err := f.svc.AnswerOffer(ctx, offer.ID, f.seller.ID, OfferResponseInput{Response: models.DecisionCounter, CounterAmount: &counter})
	require.NoError(t, err)
	f.notifier.Wait()
	assert.Equal(t, models.OfferCountered, result.Offer.Offer.Status)
	require.NotNil(t, result.Offer.Offer.CounterAmount)
	assert.Equal(t, 45000.0, *result.Offer.Offer.CounterAmount)
	assert.NotNil(t, result.Offer.Offer.RespondedAt)
	assert.Equal(t, models.MessageSystem, result.System.Type)
	assert.Equal(t, "Karşı teklif: ₺45.000", result.System.Content)

	detail, err := f.svc.GetConversation(ctx, offer.Conversation, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, models.MessageOffer, detail.Messages[0].Type)
	assert.Equal(t, models.MessageSystem, detail.Messages[1].Type)

	require.Len(t, f.eventsNamed(realtime.EventOfferUpdated), 1)
	var responses int
	for _, n := range f.notes.items {
		if n.Type == models.NotificationOfferResponse {
			responses++
			assert.Equal(t, f.buyer.ID, n.User)
		}
	}
	assert.Equal(t, 1, responses)
}

func TestRespondToOffer_Rules(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_offer_rules")
	ctx := context.Background()
	offer := f.sendOffer(t, 30000)

	_, err := f.svc.RespondToOffer(ctx, offer.ID, f.buyer.ID, models.DecisionAccept, nil)
	assert.Equal(t, KindForbidden, KindOf(err), "sender cannot answer own offer")

	_, err = f.svc.RespondToOffer(ctx, offer.ID, utils.NewSixID(), models.DecisionAccept, nil)
	assert.Equal(t, KindForbidden, KindOf(err), "outsider cannot answer")

	_, err = f.svc.RespondToOffer(ctx, offer.ID, f.seller.ID, models.DecisionCounter, nil)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.svc.RespondToOffer(ctx, offer.ID, f.seller.ID, "maybe", nil)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.svc.RespondToOffer(ctx, utils.NewSixID(), f.seller.ID, models.DecisionAccept, nil)
	assert.Equal(t, KindNotFound, KindOf(err))

	result, err := f.svc.RespondToOffer(ctx, offer.ID, f.seller.ID, models.DecisionReject, nil)
	require.NoError(t, err)
	assert.Equal(t, "Teklif reddedildi: ₺30.000", result.System.Content)

	_, err = f.svc.RespondToOffer(ctx, offer.ID, f.buyer.ID, models.DecisionAccept, nil)
	assert.Equal(t, KindForbidden, KindOf(err), "self response stays forbidden after resolution")
}

func TestRespondToOffer_SingleResolution(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_offer_race")
	ctx := context.Background()
	offer := f.sendOffer(t, 50000)

	const responders = 6
	errs := make([]error, responders)
	var wg sync.WaitGroup
	for i := 0; i < responders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := models.DecisionAccept
			if i%2 == 1 {
				decision = models.DecisionReject
			}
			_, errs[i] = f.svc.RespondToOffer(ctx, offer.ID, f.seller.ID, decision, nil)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case KindOf(err) == KindConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, responders-1, conflicts)
}

func TestMarkConversationRead_ClearsUnread(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_read")
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Content: "bir"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Content: "iki"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.seller.ID, SendMessageInput{RecipientID: f.buyer.ID, HorseID: f.listing.ID, Content: "cevap"})
	require.NoError(t, err)
	convID := first.Conversation

	_, err = f.svc.MarkConversationRead(ctx, convID, utils.NewSixID())
	assert.Equal(t, KindForbidden, KindOf(err))

	marked, err := f.svc.ReadConversation(ctx, convID, f.seller.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	database := f.db
	unread, err := database.Collection(db.MessagesCollection).CountDocuments(ctx, bson.M{
		"conversation": convID, "sender": bson.M{"$ne": f.seller.ID}, "is_read": false,
	})
	require.NoError(t, err)
	assert.Zero(t, unread)

	var conv models.Conversation
	require.NoError(t, database.Collection(db.ConversationsCollection).FindOne(ctx, bson.M{"_id": convID}).Decode(&conv))
	assert.Equal(t, 0, conv.UnreadCount.For(f.seller.ID))
	assert.Equal(t, 1, conv.UnreadCount.For(f.buyer.ID))
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "cevap", conv.LastMessage.Content)

	read := f.eventsNamed(realtime.EventMessagesMarkedRead)
	require.Len(t, read, 1)
	assert.Equal(t, convID, read[0].userID)

	_, err = f.svc.GetConversation(ctx, convID, utils.NewSixID())
	assert.Equal(t, KindForbidden, KindOf(err))

	isMember, err := f.svc.IsParticipant(ctx, convID, f.buyer.ID)
	require.NoError(t, err)
	assert.True(t, isMember)
	isMember, err = f.svc.IsParticipant(ctx, convID, utils.NewSixID())
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "kısa", Preview("kısa"))
	long := "ğüşiöçĞÜŞİÖÇ" + "ğüşiöçĞÜŞİÖÇ" + "ğüşiöçĞÜŞİÖÇ" + "ğüşiöçĞÜŞİÖÇ" + "ğüşiöçĞÜŞİÖÇ"
	assert.Equal(t, PreviewLength, utf8.RuneCountInString(Preview(long)))
}

func skipWithoutTransactions(t *testing.T, database *mongo.Database) {
	t.Helper()
	err := db.WithTransaction(context.Background(), database, func(sc mongo.SessionContext) error {
		_, err := database.Collection(db.MessagesCollection).CountDocuments(sc, bson.M{})
		return err
	})
	if err != nil && isTransactionUnsupported(err) {
		t.Skip("MongoDB deployment does not support transactions")
	}
	require.NoError(t, err)
}

func TestSendMessage_ReadDuringSendKeepsCounterInStep(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_send_read")
	skipWithoutTransactions(t, f.db)
	ctx := context.Background()
	svc := f.svc.(*messageService)

	first, err := svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Content: "bir"})
	require.NoError(t, err)
	convID := first.Conversation

	var once sync.Once
	var readErr error
	svc.beforeConversationUpdate = func(context.Context) {
		once.Do(func() {
			readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, readErr = svc.MarkConversationRead(readCtx, convID, f.seller.ID)
		})
	}
	_, err = svc.SendMessage(ctx, f.buyer.ID, SendMessageInput{RecipientID: f.seller.ID, HorseID: f.listing.ID, Content: "iki"})
	require.NoError(t, err)
	require.NoError(t, readErr)

	unread, err := f.db.Collection(db.MessagesCollection).CountDocuments(ctx, bson.M{
		"conversation": convID, "sender": bson.M{"$ne": f.seller.ID}, "is_read": false,
	})
	require.NoError(t, err)
	var conv models.Conversation
	require.NoError(t, f.db.Collection(db.ConversationsCollection).FindOne(ctx, bson.M{"_id": convID}).Decode(&conv))

	assert.EqualValues(t, 1, unread)
	assert.Equal(t, int(unread), conv.UnreadCount.For(f.seller.ID))
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "iki", conv.LastMessage.Content)
}

func TestRespondToOffer_StoresOutcomeWithResolution(t *testing.T) {
	f := newMessageFixture(t, "testdb_message_offer_atomic")
	ctx := context.Background()
	offer := f.sendOffer(t, 50000)

	counter := 45000.0
	result, err := f.svc.AnswerOffer(ctx, offer.ID, f.seller.ID, OfferResponseInput{Response: models.DecisionCounter, CounterAmount: &counter})
	require.NoError(t, err)
	require.NotNil(t, result.System)

	var stored models.Message
	require.NoError(t, f.db.Collection(db.MessagesCollection).FindOne(ctx, bson.M{"_id": result.System.ID}).Decode(&stored))
	assert.Equal(t, models.MessageSystem, stored.Type)
	assert.Equal(t, "Karşı teklif: ₺45.000", stored.Content)

	var conv models.Conversation
	require.NoError(t, f.db.Collection(db.ConversationsCollection).FindOne(ctx, bson.M{"_id": offer.Conversation}).Decode(&conv))
	assert.Equal(t, "Karşı teklif: ₺45.000", conv.LastMessage.Content)
	assert.Equal(t, 1, conv.UnreadCount.For(f.buyer.ID))

	_, err = f.svc.AnswerOffer(ctx, offer.ID, f.seller.ID, OfferResponseInput{Response: models.DecisionAccept})
	assert.Equal(t, KindConflict, KindOf(err))
	systems, err := f.db.Collection(db.MessagesCollection).CountDocuments(ctx, bson.M{"conversation": offer.Conversation, "type": models.MessageSystem})
	require.NoError(t, err)
	assert.EqualValues(t, 1, systems)
}
