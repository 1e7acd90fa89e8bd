package model

import "time"

// Conversation is one row of the chat list. IsOnline is never stored on its
// own authority: it is recomputed from the presence set on every broadcast.
type Conversation struct {
	ID                  string    `json:"id"`
	PeerID              string    `json:"peer_id"`
	PeerName            string    `json:"peer_name"`
	PeerEmail           string    `json:"peer_email,omitempty"`
	PeerAvatar          string    `json:"peer_avatar,omitempty"`
	LastMessage         string    `json:"last_message"`
	LastMessageAt       time.Time `json:"last_message_at"`
	LastMessageSentByMe bool      `json:"last_message_sent_by_me"`
	LastMessageRead     bool      `json:"last_message_read"`
	UnreadCount         int       `json:"unread_count"`
	IsOnline            bool      `json:"is_online"`
}
