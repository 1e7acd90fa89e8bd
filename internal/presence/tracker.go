// Package presence tracks which peers are online. The server is the single
// source of truth: every userStatusChange broadcast replaces the whole set.
package presence

import (
	"fmt"
	"sync"
	"time"
)

// onlineGrace treats a last-seen within this window as still online, which
// papers over the gap between a disconnect and the next broadcast.
const onlineGrace = 10 * time.Second

type Tracker struct {
	mu       sync.RWMutex
	online   map[string]struct{}
	lastSeen map[string]time.Time

	// now is swappable for tests.
	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// OnStatusBroadcast replaces the tracked set with the broadcast membership.
// Peers dropping out of the set get a last-seen of "now" so the derived
// status starts counting from the moment they went offline.
func (t *Tracker) OnStatusBroadcast(onlineIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make(map[string]struct{}, len(onlineIDs))
	for _, id := range onlineIDs {
		next[id] = struct{}{}
	}
	now := t.now()
	for id := range t.online {
		if _, still := next[id]; !still {
			t.lastSeen[id] = now
		}
	}
	t.online = next
}

// Reset clears the set, e.g. when the connection drops: with no live socket
// the client cannot claim anyone is online.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id := range t.online {
		t.lastSeen[id] = now
	}
	t.online = make(map[string]struct{})
}

func (t *Tracker) IsOnline(peerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[peerID]
	return ok
}

// OnlineIDs returns a snapshot of the current set.
func (t *Tracker) OnlineIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	return ids
}

// SetLastSeen records a last-seen snapshot fetched over REST alongside
// message history. Socket broadcasts may move it forward, never backward.
func (t *Tracker) SetLastSeen(peerID string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.lastSeen[peerID]; !ok || ts.After(prev) {
		t.lastSeen[peerID] = ts
	}
}

// LastSeen returns the recorded last-seen timestamp, if any.
func (t *Tracker) LastSeen(peerID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.lastSeen[peerID]
	return ts, ok
}

// StatusText derives the display status for a peer. While the peer is
// offline the text depends on elapsed time, so callers re-invoke it on a
// periodic tick rather than caching the result.
func (t *Tracker) StatusText(peerID string) string {
	t.mu.RLock()
	_, online := t.online[peerID]
	ts, seen := t.lastSeen[peerID]
	now := t.now()
	t.mu.RUnlock()

	if online {
		return "Online"
	}
	if !seen {
		return ""
	}
	diff := now.Sub(ts)
	switch {
	case diff < onlineGrace:
		return "Online"
	case diff < time.Minute:
		return fmt.Sprintf("Active %ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("Active %dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("Active %dh ago", int(diff.Hours()))
	default:
		return "Active " + ts.Format("1/2/2006")
	}
}
