package models

import (
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// SearchFrequency is how often a saved search may notify its owner.
type SearchFrequency string

const (
	FrequencyInstant SearchFrequency = "instant"
	FrequencyDaily   SearchFrequency = "daily"
	FrequencyWeekly  SearchFrequency = "weekly"
)

// Valid reports whether f is a known frequency.
func (f SearchFrequency) Valid() bool {
	return f == FrequencyInstant || f == FrequencyDaily || f == FrequencyWeekly
}

// SavedSearch is a persisted listing filter re-evaluated by the saved-search sweep.
type SavedSearch struct {
	Base           `bson:",inline"`
	User           utils.SixID     `bson:"user" json:"user"`
	Name           string          `bson:"name" json:"name"`
	Filters        ListingFilter   `bson:"filters" json:"filters"`
	Frequency      SearchFrequency `bson:"frequency" json:"frequency"`
	MatchCount     int             `bson:"match_count" json:"matchCount"`
	LastCheckedAt  *time.Time      `bson:"last_checked_at,omitempty" json:"lastCheckedAt,omitempty"`
	LastNotifiedAt *time.Time      `bson:"last_notified_at,omitempty" json:"lastNotifiedAt,omitempty"`
	CreatedAt      time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updatedAt"`
}
