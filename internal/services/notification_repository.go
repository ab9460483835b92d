package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// notificationRepository is the storage the notification service fans out from.
type notificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) error
	FindRecipient(ctx context.Context, userID utils.SixID) (*models.User, error)
	List(ctx context.Context, userID utils.SixID, unreadOnly bool, skip, limit int64) ([]models.Notification, int64, error)
	CountUnread(ctx context.Context, userID utils.SixID) (int64, error)
	MarkRead(ctx context.Context, userID, id utils.SixID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID utils.SixID, at time.Time) (int64, error)
	Delete(ctx context.Context, userID, id utils.SixID) (bool, error)
	ExistsForBucket(ctx context.Context, typ models.NotificationType, relatedID utils.SixID, bucket string) (bool, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type mongoNotificationRepository struct {
	db *mongo.Database
}

func newMongoNotificationRepository(database *mongo.Database) *mongoNotificationRepository {
	return &mongoNotificationRepository{db: database}
}

func (r *mongoNotificationRepository) coll() *mongo.Collection {
	return r.db.Collection(db.NotificationsCollection)
}

func (r *mongoNotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	_, err := r.coll().InsertOne(ctx, n)
	return err
}

func (r *mongoNotificationRepository) FindRecipient(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	opts := options.FindOne().SetProjection(bson.M{"email": 1, "name": 1, "notification_preferences": 1})
	if err := r.db.Collection(db.UsersCollection).FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user); err != nil {
		return nil, fmt.Errorf("error finding recipient %s: %w", userID, err)
	}
	return &user, nil
}

func (r *mongoNotificationRepository) List(ctx context.Context, userID utils.SixID, unreadOnly bool, skip, limit int64) ([]models.Notification, int64, error) {
	filter := bson.M{"user": userID}
	if unreadOnly {
		filter["is_read"] = false
	}
	total, err := r.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	items := []models.Notification{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *mongoNotificationRepository) CountUnread(ctx context.Context, userID utils.SixID) (int64, error) {
	return r.coll().CountDocuments(ctx, bson.M{"user": userID, "is_read": false})
}

func (r *mongoNotificationRepository) MarkRead(ctx context.Context, userID, id utils.SixID, at time.Time) (bool, error) {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"_id": id, "user": userID},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *mongoNotificationRepository) MarkAllRead(ctx context.Context, userID utils.SixID, at time.Time) (int64, error) {
	res, err := r.coll().UpdateMany(ctx,
		bson.M{"user": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *mongoNotificationRepository) Delete(ctx context.Context, userID, id utils.SixID) (bool, error) {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id, "user": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *mongoNotificationRepository) ExistsForBucket(ctx context.Context, typ models.NotificationType, relatedID utils.SixID, bucket string) (bool, error) {
	filter := bson.M{"type": typ, "related_id": relatedID}
	if bucket != "" {
		filter["bucket"] = bucket
	}
	n, err := r.coll().CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *mongoNotificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll().DeleteMany(ctx, bson.M{"is_read": true, "created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
