package realtime

import "encoding/json"

// Client to server events.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessagesRead      = "messages:read"
	EventOfferRespond      = "offer:respond"
)

// Server to client events.
const (
	EventMessageNew          = "message:new"
	EventNotificationMessage = "notification:message"
	EventNotificationNew     = "notification:new"
	EventTypingUpdate        = "typing:update"
	EventMessagesMarkedRead  = "messages:marked_read"
	EventOfferUpdated        = "offer:updated"
	EventUserOnline          = "user:online"
	EventUserOffline         = "user:offline"
	EventError               = "error"
)

// Envelope is the JSON frame exchanged over the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame for event with payload marshalled as data.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
