package models

import (
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// MessageType tags the message variant. Only offer messages carry an Offer.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageOffer  MessageType = "offer"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

// Valid reports whether a client may send this type. System messages are server-generated.
func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageOffer || t == MessageImage
}

// OfferStatus is the negotiation state of an embedded offer.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCountered OfferStatus = "countered"
)

// OfferDecision is the response a participant gives to a pending offer.
type OfferDecision string

const (
	DecisionAccept  OfferDecision = "accept"
	DecisionReject  OfferDecision = "reject"
	DecisionCounter OfferDecision = "counter"
)

// Status maps a decision to the terminal offer status it produces.
func (d OfferDecision) Status() (OfferStatus, bool) {
	switch d {
	case DecisionAccept:
		return OfferAccepted, true
	case DecisionReject:
		return OfferRejected, true
	case DecisionCounter:
		return OfferCountered, true
	}
	return "", false
}

// Offer is the price proposal nested in an offer message.
type Offer struct {
	Amount        float64     `bson:"amount" json:"amount"`
	Status        OfferStatus `bson:"status" json:"status"`
	CounterAmount *float64    `bson:"counter_amount,omitempty" json:"counterAmount,omitempty"`
	RespondedAt   *time.Time  `bson:"responded_at,omitempty" json:"respondedAt,omitempty"`
}

// Message belongs to one conversation and has one sender.
type Message struct {
	Base         `bson:",inline"`
	Conversation utils.SixID `bson:"conversation" json:"conversation"`
	Sender       utils.SixID `bson:"sender" json:"sender"`
	Type         MessageType `bson:"type" json:"type"`
	Content      string      `bson:"content" json:"content"`
	Offer        *Offer      `bson:"offer,omitempty" json:"offer,omitempty"`
	IsRead       bool        `bson:"is_read" json:"isRead"`
	ReadAt       *time.Time  `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt    time.Time   `bson:"created_at" json:"createdAt"`
}

// MessageView is a message with its sender populated, as returned to clients.
type MessageView struct {
	Message `bson:",inline"`
	Sender  *PublicUser `bson:"-" json:"sender,omitempty"`
}
