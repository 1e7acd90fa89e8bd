package model

import "time"

// Direction says whether a message was sent by the local user or received
// from the peer. It is always derived by comparing sender ids, never taken
// from a server- or peer-supplied field.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// DirectionFor derives the direction of a message from its sender id.
func DirectionFor(senderID, selfID string) Direction {
	if senderID == selfID {
		return DirectionSent
	}
	return DirectionReceived
}

// DeliveryState tracks the two-phase optimistic send:
// pending on local insert, confirmed on server ack, failed on send error.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

type Message struct {
	ID                   string        `json:"id"`
	Text                 string        `json:"text"`
	Direction            Direction     `json:"direction"`
	Media                string        `json:"media,omitempty"`
	AudioDurationSeconds int           `json:"audio_duration_seconds,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	Read                 bool          `json:"read"`
	IsEdited             bool          `json:"is_edited"`
	Delivery             DeliveryState `json:"delivery"`
}
