// Package socket owns the live connection to the chat backend: exactly one
// per authenticated user, reconnected on lifecycle events (focus, app
// resume), torn down on blur. Every other component reads events fanned out
// from here and writes only through the Emit methods.
package socket

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chatclient/internal/config"
	"github.com/gorilla/websocket"
)

// Manager is the connection manager. A second Connect for the same user
// first tears down the previous connection, so events are never delivered
// twice.
type Manager struct {
	cfg    *config.Config
	dialer *websocket.Dialer

	// mu guards current and userID. Emit methods run from timer and
	// background goroutines concurrently with Connect/Disconnect.
	mu      sync.Mutex
	current *conn
	userID  string
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.RequestTimeout,
		},
	}
}

// Connect dials the backend and starts the pumps. On transport-level
// connect it announces presence by joining the user's logical room. The
// handlers are registered once for the lifetime of this connection.
//
// Reconnection is bound to lifecycle events only; a failed dial is returned
// to the caller and surfaced as offline state, never retried in a loop.
func (m *Manager) Connect(ctx context.Context, userID, token string, h Handlers) error {
	// Exactly one active connection per user.
	m.Disconnect()

	u, err := url.Parse(m.cfg.SocketURL)
	if err != nil {
		return fmt.Errorf("socket url: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, _, err := m.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("socket dial: %w", err)
	}

	c := newConn(ws, userID, h,
		m.cfg.WSSendBufferSize, m.cfg.WSWriteTimeout, m.cfg.WSPongTimeout, m.cfg.WSMaxMessageSize)
	connCtx, cancel := context.WithCancel(context.Background())
	c.start(connCtx, cancel)

	m.mu.Lock()
	m.current = c
	m.userID = userID
	m.mu.Unlock()

	c.enqueue(outboundEnvelope{Type: EventJoinRoom, Payload: userID})
	return nil
}

// Disconnect tears down the current connection, if any, and waits for the
// pumps to exit so no stale handler fires after return.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.current
	m.current = nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	c.Close()

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// Connected reports whether a connection is currently held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// snapshot reads the live connection and user id atomically; an emit after
// Disconnect gets a nil conn and is silently dropped.
func (m *Manager) snapshot() (*conn, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.userID
}

// EmitMessage sends a chat message over the socket channel.
func (m *Manager) EmitMessage(receiverID, content string) {
	c, _ := m.snapshot()
	if c == nil {
		return
	}
	c.enqueue(outboundEnvelope{Type: EventMessage, Payload: map[string]string{
		"receiverId": receiverID,
		"content":    content,
	}})
}

// EmitTyping notifies the peer that the local user started typing.
func (m *Manager) EmitTyping(receiverID string) {
	c, userID := m.snapshot()
	if c == nil {
		return
	}
	c.enqueue(outboundEnvelope{Type: EventTyping, Payload: TypingPayload{
		SenderID:   userID,
		ReceiverID: receiverID,
	}})
}

// EmitStopTyping notifies the peer that the local user went idle.
func (m *Manager) EmitStopTyping(receiverID string) {
	c, userID := m.snapshot()
	if c == nil {
		return
	}
	c.enqueue(outboundEnvelope{Type: EventStopTyping, Payload: TypingPayload{
		SenderID:   userID,
		ReceiverID: receiverID,
	}})
}

// EmitMessageRead notifies the peer that a message was viewed.
func (m *Manager) EmitMessageRead(messageID string) {
	c, userID := m.snapshot()
	if c == nil {
		return
	}
	c.enqueue(outboundEnvelope{Type: EventMessageRead, Payload: MessageReadPayload{
		MessageID:  messageID,
		ReceiverID: userID,
	}})
}
