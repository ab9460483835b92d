package models

import (
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// Role values.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// EmailClass groups notification types for the email preference switches.
type EmailClass string

const (
	EmailClassNone          EmailClass = ""
	EmailClassMessages      EmailClass = "messages"
	EmailClassOffers        EmailClass = "offers"
	EmailClassReviews       EmailClass = "reviews"
	EmailClassListings      EmailClass = "listings"
	EmailClassFavorites     EmailClass = "favorites"
	EmailClassSavedSearches EmailClass = "savedSearches"
)

// NotificationPreferences allows users to control email notifications.
type NotificationPreferences struct {
	Email         bool `bson:"email" json:"email"`
	Messages      bool `bson:"messages" json:"messages"`
	Offers        bool `bson:"offers" json:"offers"`
	Reviews       bool `bson:"reviews" json:"reviews"`
	Listings      bool `bson:"listings" json:"listings"`
	Favorites     bool `bson:"favorites" json:"favorites"`
	SavedSearches bool `bson:"saved_searches" json:"savedSearches"`
}

// DefaultNotificationPreferences enables every email class.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		Email:         true,
		Messages:      true,
		Offers:        true,
		Reviews:       true,
		Listings:      true,
		Favorites:     true,
		SavedSearches: true,
	}
}

// AllowsEmail reports whether an email of the given class may be sent.
func (p NotificationPreferences) AllowsEmail(class EmailClass) bool {
	if !p.Email {
		return false
	}
	switch class {
	case EmailClassMessages:
		return p.Messages
	case EmailClassOffers:
		return p.Offers
	case EmailClassReviews:
		return p.Reviews
	case EmailClassListings:
		return p.Listings
	case EmailClassFavorites:
		return p.Favorites
	case EmailClassSavedSearches:
		return p.SavedSearches
	}
	return false
}

// User represents a user in the system.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                  `bson:"name" json:"name"`
	Email                   string                  `bson:"email" json:"email"`
	PasswordHash            string                  `bson:"password" json:"-"`
	Role                    string                  `bson:"role" json:"role"`
	Phone                   string                  `bson:"phone,omitempty" json:"phone,omitempty"`
	City                    string                  `bson:"city,omitempty" json:"city,omitempty"`
	Bio                     string                  `bson:"bio,omitempty" json:"bio,omitempty"`
	Avatar                  string                  `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Favorites               []utils.SixID           `bson:"favorites" json:"favorites"`
	NotificationPreferences NotificationPreferences `bson:"notification_preferences" json:"notificationPreferences"`
	CreatedAt               time.Time               `bson:"created_at" json:"createdAt"`
	UpdatedAt               time.Time               `bson:"updated_at" json:"updatedAt"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is the subset of a user shown to other users.
type PublicUser struct {
	ID     utils.SixID `json:"id"`
	Name   string      `json:"name"`
	City   string      `json:"city,omitempty"`
	Avatar string      `json:"avatar,omitempty"`
}

// Public strips private fields.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, City: u.City, Avatar: u.Avatar}
}
