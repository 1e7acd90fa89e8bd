package socket

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/gorilla/websocket"
)

// bufPool pools bytes.Buffer for JSON encoding in the hot-path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// conn is a single live WebSocket connection to the backend.
// Lifecycle: newConn -> start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
// Inbound events are decoded and dispatched from the readPump goroutine, so
// handlers for one connection never run concurrently with each other.
type conn struct {
	ws       *websocket.Conn
	send     chan outboundEnvelope
	userID   string
	handlers Handlers

	writeTimeout time.Duration
	pongTimeout  time.Duration
	maxMsgSize   int64

	// done is used as a non-blocking guard in enqueue.
	done chan struct{}
	// cancel cancels the context passed to start, triggering pump shutdown.
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup

	// readErr holds the error that terminated the read pump (nil on clean close).
	mu      sync.Mutex
	readErr error
}

func newConn(ws *websocket.Conn, userID string, h Handlers, sendBuf int, writeTimeout, pongTimeout time.Duration, maxMsgSize int) *conn {
	if sendBuf <= 0 {
		sendBuf = 64
	}
	return &conn{
		ws:           ws,
		send:         make(chan outboundEnvelope, sendBuf),
		userID:       userID,
		handlers:     h,
		writeTimeout: writeTimeout,
		pongTimeout:  pongTimeout,
		maxMsgSize:   int64(maxMsgSize),
		done:         make(chan struct{}),
	}
}

// start launches readPump and writePump with controlled lifecycle.
func (c *conn) start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pump goroutines have exited.
func (c *conn) Wait() {
	c.wg.Wait()
}

// Close signals the connection to stop. Safe to call multiple times from any goroutine.
func (c *conn) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		// Force both pumps to unblock (ReadMessage / WriteMessage will error).
		c.ws.Close()
	})
}

// enqueue queues an outbound envelope without blocking the caller.
func (c *conn) enqueue(env outboundEnvelope) {
	select {
	case c.send <- env:
	case <-c.done:
	default:
		// Send buffer full: the connection is wedged, drop it.
		logger.Errorf("socket send buffer full, closing connection user=%s", c.userID)
		c.Close()
	}
}

// readPump reads envelopes from the connection and dispatches them.
// Exits on read error (triggered by ws.Close from Close() or a network drop).
func (c *conn) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.Close()
		if c.handlers.OnDisconnect != nil {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			c.handlers.OnDisconnect(err)
		}
	}()

	c.ws.SetReadLimit(c.maxMsgSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout)); err != nil {
		logger.Errorf("socket set read deadline user=%s: %v", c.userID, err)
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("socket read error user=%s: %v", c.userID, err)
				c.mu.Lock()
				c.readErr = err
				c.mu.Unlock()
			}
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Errorf("socket unmarshal error user=%s: %v", c.userID, err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch decodes the payload for the event type and invokes the single
// registered handler. Unknown events and decode failures are logged, never
// surfaced: a malformed broadcast must not take the client down.
func (c *conn) dispatch(env inboundEnvelope) {
	logger.Debugf("socket event type=%s user=%s", env.Type, c.userID)
	switch env.Type {
	case EventMessage:
		var p MessagePayload
		if c.decode(env, &p) && c.handlers.OnMessage != nil {
			c.handlers.OnMessage(p)
		}
	case EventMessageRead:
		var p MessageReadPayload
		if c.decode(env, &p) && c.handlers.OnMessageRead != nil {
			c.handlers.OnMessageRead(p)
		}
	case EventMessageUpdated:
		var p MessageUpdatedPayload
		if c.decode(env, &p) && c.handlers.OnMessageUpdated != nil {
			c.handlers.OnMessageUpdated(p)
		}
	case EventTyping:
		var p TypingPayload
		if c.decode(env, &p) && c.handlers.OnTyping != nil {
			c.handlers.OnTyping(p)
		}
	case EventStopTyping:
		var p TypingPayload
		if c.decode(env, &p) && c.handlers.OnStopTyping != nil {
			c.handlers.OnStopTyping(p)
		}
	case EventUserStatusChange:
		var ids []string
		if c.decode(env, &ids) && c.handlers.OnStatusChange != nil {
			c.handlers.OnStatusChange(ids)
		}
	default:
		logger.Debugf("socket unknown event type=%s", env.Type)
	}
}

func (c *conn) decode(env inboundEnvelope, out any) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		logger.Errorf("socket payload decode type=%s: %v", env.Type, err)
		return false
	}
	return true
}

// writePump writes queued envelopes and keeps the connection alive with pings.
// Exits on ctx cancellation, write error, or connection close.
func (c *conn) writePump(ctx context.Context) {
	defer c.wg.Done()
	pingPeriod := (c.pongTimeout * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.ws.WriteMessage(websocket.CloseMessage, nil); err != nil && err != websocket.ErrCloseSent {
				logger.Debugf("socket close message user=%s: %v", c.userID, err)
			}
			return
		case env := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				logger.Errorf("socket set write deadline user=%s: %v", c.userID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(env); err != nil {
				bufPool.Put(buf)
				logger.Errorf("socket marshal error user=%s: %v", c.userID, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for WebSocket text messages.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := c.ws.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				logger.Errorf("socket set write deadline user=%s: %v", c.userID, err)
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
