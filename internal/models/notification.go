package models

import (
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// NotificationType enumerates the business events users are notified about.
type NotificationType string

const (
	NotificationNewMessage       NotificationType = "new_message"
	NotificationNewOffer         NotificationType = "new_offer"
	NotificationOfferResponse    NotificationType = "offer_response"
	NotificationNewReview        NotificationType = "new_review"
	NotificationListingApproved  NotificationType = "listing_approved"
	NotificationListingRejected  NotificationType = "listing_rejected"
	NotificationFavorited        NotificationType = "favorited"
	NotificationListingExpiring  NotificationType = "listing_expiring"
	NotificationListingExpired   NotificationType = "listing_expired"
	NotificationSavedSearchMatch NotificationType = "saved_search_match"
)

// Expiry warning buckets. A listing gets at most one warning per bucket.
const (
	BucketSevenDays = "7d"
	BucketThreeDays = "3d"
)

// Notification is a persisted, per-user record of a business event.
type Notification struct {
	Base      `bson:",inline"`
	User      utils.SixID      `bson:"user" json:"user"`
	Type      NotificationType `bson:"type" json:"type"`
	Title     string           `bson:"title" json:"title"`
	Message   string           `bson:"message" json:"message"`
	Link      string           `bson:"link,omitempty" json:"link,omitempty"`
	RelatedID *utils.SixID     `bson:"related_id,omitempty" json:"relatedId,omitempty"`
	Bucket    string           `bson:"bucket,omitempty" json:"-"`
	IsRead    bool             `bson:"is_read" json:"isRead"`
	ReadAt    *time.Time       `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt time.Time        `bson:"created_at" json:"createdAt"`
}
