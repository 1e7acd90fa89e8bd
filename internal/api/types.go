package api

import "time"

// Wire DTOs for the chat backend. Field names follow the backend's JSON
// (Mongo-style "_id" keys); mapping to model types happens in the stores,
// which know the local user id.

type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

type Message struct {
	ID            string    `json:"_id"`
	Content       string    `json:"content"`
	Sender        User      `json:"sender"`
	Receiver      string    `json:"receiver,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	Read          bool      `json:"read"`
	Media         string    `json:"media,omitempty"`
	AudioDuration int       `json:"audioDuration,omitempty"`
	Edited        bool      `json:"edited,omitempty"`
}

type Conversation struct {
	ID                string    `json:"_id"`
	Participants      []User    `json:"participants"`
	LastMessage       string    `json:"lastMessage"`
	LastMessageAt     time.Time `json:"lastMessageAt"`
	LastMessageSender string    `json:"lastMessageSender,omitempty"`
	LastMessageRead   bool      `json:"lastMessageRead,omitempty"`
	UnreadCount       int       `json:"unreadCount"`
}

// Peer returns the participant that is not the local user.
func (c Conversation) Peer(selfID string) User {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p
		}
	}
	if len(c.Participants) > 0 {
		return c.Participants[0]
	}
	return User{}
}

// ConversationsPage is one page of the chat list.
type ConversationsPage struct {
	Conversations []Conversation
	TotalPages    int
}

// MessagesPage is one page of conversation history. ActiveStatus is the
// peer's last-seen timestamp snapshot (zero when the backend omitted it).
type MessagesPage struct {
	Messages     []Message
	HasMore      bool
	ActiveStatus time.Time
}

type LoginResult struct {
	Token string
	User  User
}

// --- Response envelopes ---

type listConversationsResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    []Conversation `json:"data"`
	Meta    struct {
		TotalPages int `json:"totalPages"`
	} `json:"meta"`
}

type fetchMessagesResponse struct {
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	Data         []Message `json:"data"`
	HasMore      bool      `json:"hasMore"`
	ActiveStatus string    `json:"activeStatus,omitempty"`
}

type sendMessageResponse struct {
	Status string `json:"status"`
	Data   struct {
		Message Message `json:"message"`
	} `json:"data"`
}

type editMessageResponse struct {
	Status string `json:"status"`
	Data   struct {
		Message Message `json:"message"`
	} `json:"data"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

type profileResponse struct {
	Success bool `json:"success"`
	Data    User `json:"data"`
}

type listUsersResponse struct {
	Success bool   `json:"success"`
	Data    []User `json:"data"`
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}
