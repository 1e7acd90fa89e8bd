package socket

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventJoinRoom         EventType = "joinRoom"
	EventMessage          EventType = "message"
	EventMessageRead      EventType = "messageRead"
	EventMessageUpdated   EventType = "messageUpdated"
	EventTyping           EventType = "typing"
	EventStopTyping       EventType = "stopTyping"
	EventUserStatusChange EventType = "userStatusChange"
)

// inboundEnvelope is what the server sends; payload decoding is deferred
// until the event type is known.
type inboundEnvelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// outboundEnvelope is what the client emits.
// Payload uses typed structs to avoid map[string]any allocations.
type outboundEnvelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// MessagePayload is the "message" event, both a direct echo of a sent
// message and a new inbound one. UnreadCount carries the server-computed
// unread total for the affected conversation; the client never counts.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	SenderName     string    `json:"senderName,omitempty"`
	SenderEmail    string    `json:"senderEmail,omitempty"`
	SenderAvatar   string    `json:"senderAvatar,omitempty"`
	Receiver       string    `json:"receiver"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	Read           bool      `json:"read"`
	UnreadCount    int       `json:"unreadCount,omitempty"`
}

type MessageReadPayload struct {
	MessageID  string `json:"messageId"`
	ReceiverID string `json:"receiverId"`
}

type MessageUpdatedPayload struct {
	MessageID  string `json:"messageId"`
	Content    string `json:"content"`
	ReceiverID string `json:"receiverId"`
}

type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// Handlers maps each inbound event type to exactly one callback, registered
// once per connection lifetime. Nil entries drop the event.
type Handlers struct {
	OnMessage        func(MessagePayload)
	OnMessageRead    func(MessageReadPayload)
	OnMessageUpdated func(MessageUpdatedPayload)
	OnTyping         func(TypingPayload)
	OnStopTyping     func(TypingPayload)
	OnStatusChange   func(onlineIDs []string)
	OnDisconnect     func(err error)
}
