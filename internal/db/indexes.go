package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	UsersCollection          = "users"
	HorsesCollection         = "horses"
	ConversationsCollection  = "conversations"
	MessagesCollection       = "messages"
	NotificationsCollection  = "notifications"
	SavedSearchesCollection  = "saved_searches"
	ReviewsCollection        = "reviews"
	EmailTemplatesCollection = "email_templates"
)

var indexes = map[string][]mongo.IndexModel{
	UsersCollection: {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
	HorsesCollection: {
		{Keys: bson.D{{Key: "name", Value: "text"}, {Key: "breed", Value: "text"}, {Key: "description", Value: "text"}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "seller", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "featured", Value: -1}, {Key: "created_at", Value: -1}}},
	},
	ConversationsCollection: {
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}}},
	},
	MessagesCollection: {
		{Keys: bson.D{{Key: "conversation", Value: 1}, {Key: "created_at", Value: 1}}},
	},
	NotificationsCollection: {
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "related_id", Value: 1}, {Key: "bucket", Value: 1}}},
		{Keys: bson.D{{Key: "is_read", Value: 1}, {Key: "created_at", Value: 1}}},
	},
	SavedSearchesCollection: {
		{Keys: bson.D{{Key: "user", Value: 1}}},
	},
	ReviewsCollection: {
		{Keys: bson.D{{Key: "reviewer", Value: 1}, {Key: "seller", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "seller", Value: 1}, {Key: "created_at", Value: -1}}},
	},
	EmailTemplatesCollection: {
		{Keys: bson.D{{Key: "template_id", Value: 1}, {Key: "locale", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
}

// EnsureIndexes creates the indexes every service relies on. Creating an
// existing index is a no-op on the server.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	for coll, models := range indexes {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
