package models

import (
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// ListingStatus is the moderation lifecycle state of a horse listing.
type ListingStatus string

const (
	ListingDraft    ListingStatus = "draft"
	ListingPending  ListingStatus = "pending"
	ListingActive   ListingStatus = "active"
	ListingSold     ListingStatus = "sold"
	ListingExpired  ListingStatus = "expired"
	ListingRejected ListingStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingDraft, ListingPending, ListingActive, ListingSold, ListingExpired, ListingRejected:
		return true
	}
	return false
}

// ListingStats are denormalized counters maintained with $inc.
type ListingStats struct {
	Views     int `bson:"views" json:"views"`
	Favorites int `bson:"favorites" json:"favorites"`
	Inquiries int `bson:"inquiries" json:"inquiries"`
}

// Listing is a horse offered for sale.
type Listing struct {
	Base            `bson:",inline"`
	Seller          utils.SixID   `bson:"seller" json:"seller"`
	Name            string        `bson:"name" json:"name"`
	Breed           string        `bson:"breed" json:"breed"`
	Gender          string        `bson:"gender" json:"gender"`
	Color           string        `bson:"color,omitempty" json:"color,omitempty"`
	Age             int           `bson:"age" json:"age"`
	Price           float64       `bson:"price" json:"price"`
	Description     string        `bson:"description" json:"description"`
	City            string        `bson:"city" json:"city"`
	Images          []string      `bson:"images" json:"images"` // S3 keys
	Featured        bool          `bson:"featured" json:"featured"`
	Status          ListingStatus `bson:"status" json:"status"`
	RejectionReason string        `bson:"rejection_reason,omitempty" json:"rejectionReason,omitempty"`
	Stats           ListingStats  `bson:"stats" json:"stats"`
	ExpiresAt       *time.Time    `bson:"expires_at,omitempty" json:"expiresAt,omitempty"`
	ApprovedAt      *time.Time    `bson:"approved_at,omitempty" json:"approvedAt,omitempty"`
	SoldAt          *time.Time    `bson:"sold_at,omitempty" json:"soldAt,omitempty"`
	CreatedAt       time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updatedAt"`
}

// ListingFilter is the query shape shared by listing search and saved searches.
// Nil/empty fields do not constrain the result.
type ListingFilter struct {
	Query    string        `bson:"query,omitempty" json:"query,omitempty" form:"q"`
	Breed    string        `bson:"breed,omitempty" json:"breed,omitempty" form:"breed"`
	Gender   string        `bson:"gender,omitempty" json:"gender,omitempty" form:"gender"`
	Color    string        `bson:"color,omitempty" json:"color,omitempty" form:"color"`
	City     string        `bson:"city,omitempty" json:"city,omitempty" form:"city"`
	Seller   *utils.SixID  `bson:"seller,omitempty" json:"seller,omitempty" form:"-"`
	MinPrice *float64      `bson:"min_price,omitempty" json:"minPrice,omitempty" form:"minPrice"`
	MaxPrice *float64      `bson:"max_price,omitempty" json:"maxPrice,omitempty" form:"maxPrice"`
	MinAge   *int          `bson:"min_age,omitempty" json:"minAge,omitempty" form:"minAge"`
	MaxAge   *int          `bson:"max_age,omitempty" json:"maxAge,omitempty" form:"maxAge"`
	Status   ListingStatus `bson:"status,omitempty" json:"status,omitempty" form:"status"`
}
