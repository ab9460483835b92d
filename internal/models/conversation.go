package models

import (
	"sort"
	"strings"
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// LastMessage is the denormalized snapshot of the newest message in a conversation.
type LastMessage struct {
	Content   string      `bson:"content" json:"content"`
	Sender    utils.SixID `bson:"sender" json:"sender"`
	Type      MessageType `bson:"type" json:"type"`
	CreatedAt time.Time   `bson:"created_at" json:"createdAt"`
}

// UnreadCounts maps a participant id (string form) to that participant's unread message count.
type UnreadCounts map[string]int

// For returns the unread count of one participant.
func (u UnreadCounts) For(id utils.SixID) int {
	return u[id.String()]
}

// Conversation is a two-party thread about one listing.
type Conversation struct {
	Base         `bson:",inline"`
	Key          string        `bson:"key" json:"-"`
	Participants []utils.SixID `bson:"participants" json:"participants"`
	Horse        utils.SixID   `bson:"horse" json:"horse"`
	LastMessage  *LastMessage  `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	UnreadCount  UnreadCounts  `bson:"unread_count" json:"unreadCount"`
	IsActive     bool          `bson:"is_active" json:"isActive"`
	CreatedAt    time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updated_at" json:"updatedAt"`
}

// HasParticipant reports whether id takes part in the conversation.
func (c *Conversation) HasParticipant(id utils.SixID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not id.
func (c *Conversation) OtherParticipant(id utils.SixID) utils.SixID {
	for _, p := range c.Participants {
		if p != id {
			return p
		}
	}
	return utils.SixID{}
}

// ConversationKey identifies the unordered participant pair plus listing.
// It backs the unique index that keeps one conversation per tuple.
func ConversationKey(a, b, horse utils.SixID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(append(ids, horse.String()), ":")
}
