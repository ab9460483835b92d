package models

import (
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// Base carries the SixID primary key shared by every document.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

// GenID assigns a fresh id. Inserts call it inside db.Try so a colliding
// id is replaced on retry.
func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}
