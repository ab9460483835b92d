package db

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsDuplicateKeyError is a function that checks if an error is a duplicate key error.
type IsDuplicateKeyError func(err error) bool

const DefaultMaxRetries = 3

// Try runs an insert that generates a fresh SixID on every attempt, retrying
// when the generated _id collides with an existing document.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsIDCollision)
}

// WithRetries executes op up to maxRetries+1 times, retrying only while
// isDuplicateKey reports the failure as a key collision.
func WithRetries(op Operation, maxRetries int, isDuplicateKey IsDuplicateKeyError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !isDuplicateKey(err) {
			return err
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}

// IsIDCollision narrows IsMongoDuplicateKeyError to the primary key index.
// Collisions on other unique indexes (email, conversation key, one review per
// seller) are business conflicts and must not be retried.
func IsIDCollision(err error) bool {
	if !IsMongoDuplicateKeyError(err) {
		return false
	}
	return strings.Contains(err.Error(), "_id_")
}
