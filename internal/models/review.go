package models

import (
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// Review is one buyer's rating of a seller.
type Review struct {
	Base      `bson:",inline"`
	Reviewer  utils.SixID  `bson:"reviewer" json:"reviewer"`
	Seller    utils.SixID  `bson:"seller" json:"seller"`
	Horse     *utils.SixID `bson:"horse,omitempty" json:"horse,omitempty"`
	Rating    int          `bson:"rating" json:"rating"`
	Comment   string       `bson:"comment" json:"comment"`
	CreatedAt time.Time    `bson:"created_at" json:"createdAt"`
}
