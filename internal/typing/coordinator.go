// Package typing debounces local typing signals and tracks the remote
// typing indicator for the active conversation.
package typing

import (
	"sync"
	"time"
)

// Emitter is the socket surface the coordinator writes through.
type Emitter interface {
	EmitTyping(receiverID string)
	EmitStopTyping(receiverID string)
}

// Coordinator emits a single "typing" per burst of input and a single
// "stopTyping" after the idle window, per conversation. Inbound typing
// state is filtered to the active peer; at most one remote typer is
// tracked at a time.
type Coordinator struct {
	mu   sync.Mutex
	emit Emitter
	idle time.Duration

	// local typing timers keyed by receiver id; a live timer means a
	// "typing" signal is outstanding for that conversation. gen tells a
	// superseded timer's callback apart from the live one: Stop() on an
	// already-expired timer cannot recall its in-flight callback.
	timers map[string]timerEntry
	gen    uint64

	activePeer  string
	remoteTyper string
	closed      bool
}

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

func NewCoordinator(emit Emitter, idle time.Duration) *Coordinator {
	if idle <= 0 {
		idle = time.Second
	}
	return &Coordinator{
		emit:   emit,
		idle:   idle,
		timers: make(map[string]timerEntry),
	}
}

// SetActivePeer scopes the remote indicator to the conversation on screen.
// Switching peers drops any tracked typer from the previous one.
func (c *Coordinator) SetActivePeer(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activePeer != peerID {
		c.activePeer = peerID
		c.remoteTyper = ""
	}
}

// OnLocalInput handles a keystroke for the conversation with receiverID.
// The first keystroke of a burst emits "typing"; every keystroke restarts
// the idle timer; the timer firing emits exactly one "stopTyping".
func (c *Coordinator) OnLocalInput(receiverID, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	prev, burst := c.timers[receiverID]
	if burst {
		prev.timer.Stop()
	} else {
		c.emit.EmitTyping(receiverID)
	}
	c.gen++
	gen := c.gen
	c.timers[receiverID] = timerEntry{
		timer: time.AfterFunc(c.idle, func() { c.idleFired(receiverID, gen) }),
		gen:   gen,
	}
}

func (c *Coordinator) idleFired(receiverID string, gen uint64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e, ok := c.timers[receiverID]
	if !ok || e.gen != gen {
		// Cleared by Close, or a keystroke re-armed the timer while this
		// callback was already in flight; the newer timer owns the stop.
		c.mu.Unlock()
		return
	}
	delete(c.timers, receiverID)
	c.mu.Unlock()

	c.emit.EmitStopTyping(receiverID)
}

// OnRemoteTyping records the sender as the current typer, if the event
// belongs to the peer on screen.
func (c *Coordinator) OnRemoteTyping(senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if senderID == c.activePeer {
		c.remoteTyper = senderID
	}
}

// OnRemoteStopTyping clears the indicator. A stop for a peer that is not
// the tracked typer is a no-op: there is no negative typing state.
func (c *Coordinator) OnRemoteStopTyping(senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if senderID == c.remoteTyper {
		c.remoteTyper = ""
	}
}

// ClearRemote drops the indicator for a peer whose confirmed message just
// arrived: a message supersedes "typing...".
func (c *Coordinator) ClearRemote(peerID string) {
	c.OnRemoteStopTyping(peerID)
}

// RemoteTyper returns the peer currently typing, or "" for nobody.
func (c *Coordinator) RemoteTyper() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteTyper
}

// Close cancels outstanding timers without emitting stop signals, so a
// stale timer cannot fire after the view closed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, e := range c.timers {
		e.timer.Stop()
		delete(c.timers, id)
	}
	c.remoteTyper = ""
}
