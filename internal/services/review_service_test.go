package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

func TestReviewService(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_reviews", db.UsersCollection, db.ReviewsCollection)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))
	listings, notes, notifier := newTestListingService(t, database)
	logger := zaptest.NewLogger(t)
	users := NewUserService(database, listings, notifier, logger)
	svc := NewReviewService(database, users, notifier, logger)
	ctx := context.Background()

	seller, err := users.Register(ctx, RegisterInput{Name: "Ayşe", Email: "ayse@example.com", Password: "password1"})
	require.NoError(t, err)
	buyer, err := users.Register(ctx, RegisterInput{Name: "Mehmet", Email: "mehmet@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, seller.ID, seller.ID, ReviewInput{Rating: 5})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = svc.Create(ctx, buyer.ID, seller.ID, ReviewInput{Rating: 6})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = svc.Create(ctx, buyer.ID, utils.NewSixID(), ReviewInput{Rating: 4})
	assert.Equal(t, KindNotFound, KindOf(err))

	review, err := svc.Create(ctx, buyer.ID, seller.ID, ReviewInput{Rating: 4, Comment: " çok ilgili "})
	require.NoError(t, err)
	assert.Equal(t, "çok ilgili", review.Comment)

	_, err = svc.Create(ctx, buyer.ID, seller.ID, ReviewInput{Rating: 1})
	assert.Equal(t, KindConflict, KindOf(err))

	notifier.Wait()
	require.Len(t, notes.items, 1)
	assert.Equal(t, models.NotificationNewReview, notes.items[0].Type)
	assert.Equal(t, "Mehmet size 4 yıldız verdi", notes.items[0].Message)

	list, err := svc.ListForSeller(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 4.0, list.Average)
	require.NotNil(t, list.Reviews[0].Author)
	assert.Equal(t, "Mehmet", list.Reviews[0].Author.Name)
}
