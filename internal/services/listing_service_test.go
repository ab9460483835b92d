package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zaptest"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

func setupTestDBListing(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, db.HorsesCollection, db.UsersCollection)
}

func newTestListingService(t *testing.T, database *mongo.Database) (IListingService, *fakeNotificationRepo, *notificationService) {
	notifier, repo, _, _ := newTestNotifier(t)
	return NewListingService(database, 60*24*time.Hour, notifier, zaptest.NewLogger(t)), repo, notifier
}

func testListingInput() ListingInput {
	return ListingInput{Name: "Rüzgar", Breed: "Arap", Gender: "aygır", Age: 5, Price: 75000, City: "İzmir", Description: "Sakin huylu"}
}

func TestListingService_Lifecycle(t *testing.T) {
	database := setupTestDBListing(t, "testdb_listing_lifecycle")
	svc, repo, notifier := newTestListingService(t, database)
	ctx := context.Background()
	seller := Actor{ID: utils.NewSixID()}

	listing, err := svc.Create(ctx, seller.ID, testListingInput())
	require.NoError(t, err)
	assert.Equal(t, models.ListingPending, listing.Status)

	_, err = svc.Renew(ctx, listing.ID, seller)
	assert.Equal(t, KindConflict, KindOf(err), "pending listings cannot be renewed")

	approved, err := svc.Approve(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, approved.Status)
	require.NotNil(t, approved.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(60*24*time.Hour), *approved.ExpiresAt, time.Minute)

	_, err = svc.Approve(ctx, listing.ID)
	assert.Equal(t, KindConflict, KindOf(err))

	// editing a sensitive field of an active listing sends it back to review
	newPrice := 70000.0
	updated, err := svc.Update(ctx, listing.ID, seller, ListingUpdate{Price: &newPrice})
	require.NoError(t, err)
	assert.Equal(t, models.ListingPending, updated.Status)

	_, err = svc.Approve(ctx, listing.ID)
	require.NoError(t, err)

	// a non-sensitive edit keeps it active
	city := "Ankara"
	updated, err = svc.Update(ctx, listing.ID, seller, ListingUpdate{City: &city})
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, updated.Status)

	sold, err := svc.MarkSold(ctx, listing.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, sold.Status)

	_, err = svc.Renew(ctx, listing.ID, seller)
	assert.Equal(t, KindConflict, KindOf(err))

	notifier.Wait()
	assert.Len(t, repo.items, 2)
}

func TestListingService_RejectWithReason(t *testing.T) {
	database := setupTestDBListing(t, "testdb_listing_reject")
	svc, repo, notifier := newTestListingService(t, database)
	ctx := context.Background()

	listing, err := svc.Create(ctx, utils.NewSixID(), testListingInput())
	require.NoError(t, err)

	_, err = svc.Reject(ctx, listing.ID, "  ")
	assert.Equal(t, KindValidation, KindOf(err))

	rejected, err := svc.Reject(ctx, listing.ID, "eksik belge")
	require.NoError(t, err)
	assert.Equal(t, models.ListingRejected, rejected.Status)
	assert.Equal(t, "eksik belge", rejected.RejectionReason)

	notifier.Wait()
	require.Len(t, repo.items, 1)
	assert.Equal(t, listing.Seller, repo.items[0].User)
	assert.Contains(t, repo.items[0].Message, "eksik belge")
}

func TestListingService_Ownership(t *testing.T) {
	database := setupTestDBListing(t, "testdb_listing_ownership")
	svc, _, _ := newTestListingService(t, database)
	ctx := context.Background()
	seller := Actor{ID: utils.NewSixID()}

	listing, err := svc.Create(ctx, seller.ID, testListingInput())
	require.NoError(t, err)

	name := "Başka"
	_, err = svc.Update(ctx, listing.ID, Actor{ID: utils.NewSixID()}, ListingUpdate{Name: &name})
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = svc.Update(ctx, listing.ID, Actor{ID: utils.NewSixID(), IsAdmin: true}, ListingUpdate{Name: &name})
	assert.NoError(t, err)

	_, err = svc.Delete(ctx, listing.ID, Actor{ID: utils.NewSixID()})
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = svc.Delete(ctx, listing.ID, seller)
	require.NoError(t, err)
	_, err = svc.FindByID(ctx, listing.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestListingService_ViewVisibility(t *testing.T) {
	database := setupTestDBListing(t, "testdb_listing_view")
	svc, _, _ := newTestListingService(t, database)
	ctx := context.Background()
	seller := Actor{ID: utils.NewSixID()}

	listing, err := svc.Create(ctx, seller.ID, testListingInput())
	require.NoError(t, err)

	_, err = svc.View(ctx, listing.ID, nil)
	assert.Equal(t, KindNotFound, KindOf(err), "pending listings are hidden from the public")

	_, err = svc.View(ctx, listing.ID, &seller)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, listing.ID)
	require.NoError(t, err)
	viewed, err := svc.View(ctx, listing.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, viewed.Stats.Views)
}

func TestListingService_SearchAndExpiry(t *testing.T) {
	database := setupTestDBListing(t, "testdb_listing_search")
	require.NoError(t, db.EnsureIndexes(context.Background(), database))
	svc, _, _ := newTestListingService(t, database)
	ctx := context.Background()

	cheap := testListingInput()
	cheap.Price = 20000
	expensive := testListingInput()
	expensive.Price = 90000
	expensive.Breed = "İngiliz"

	a, err := svc.Create(ctx, utils.NewSixID(), cheap)
	require.NoError(t, err)
	b, err := svc.Create(ctx, utils.NewSixID(), expensive)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, b.ID)
	require.NoError(t, err)

	maxPrice := 50000.0
	page, err := svc.Search(ctx, models.ListingFilter{MaxPrice: &maxPrice}, SortPriceAsc, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, a.ID, page.Items[0].ID)

	page, err = svc.Search(ctx, models.ListingFilter{}, SortPriceDesc, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, b.ID, page.Items[0].ID)

	// push a past its expiry
	past := time.Now().UTC().Add(-time.Hour)
	_, err = database.Collection(db.HorsesCollection).UpdateOne(ctx, bson.M{"_id": a.ID}, bson.M{"$set": bson.M{"expires_at": past}})
	require.NoError(t, err)

	due, err := svc.FindExpiredBefore(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)

	changed, err := svc.Expire(ctx, a.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = svc.Expire(ctx, a.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)

	renewed, err := svc.Renew(ctx, a.ID, Actor{ID: a.Seller})
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, renewed.Status)
}
