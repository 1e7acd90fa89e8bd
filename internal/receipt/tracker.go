// Package receipt turns message visibility into exactly-once read receipts.
package receipt

import (
	"context"
	"sync"

	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
)

// Marker is the REST side of a receipt.
type Marker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// Notifier is the socket side of a receipt.
type Notifier interface {
	EmitMessageRead(messageID string)
}

// Messages resolves visible ids against the active message store.
type Messages interface {
	Message(id string) (model.Message, bool)
	ApplyReadReceipt(messageID string)
}

// Tracker marks visible received messages read exactly once. Visibility
// callbacks fire rapidly and overlap; the marked set is claimed before any
// I/O so a message can never produce two receipts.
type Tracker struct {
	api    Marker
	notify Notifier
	store  Messages

	mu     sync.Mutex
	marked map[string]struct{}
}

func NewTracker(api Marker, notify Notifier, store Messages) *Tracker {
	return &Tracker{
		api:    api,
		notify: notify,
		store:  store,
		marked: make(map[string]struct{}),
	}
}

// OnItemsVisible processes a visibility callback. For every visible
// message that was received and is still unread it issues one mark-read
// REST call and one socket notification, then optimistically flips the
// local read flag so the next callback skips the item.
func (t *Tracker) OnItemsVisible(ctx context.Context, visibleIDs []string) {
	for _, id := range visibleIDs {
		m, ok := t.store.Message(id)
		if !ok || m.Direction != model.DirectionReceived || m.Read {
			continue
		}

		t.mu.Lock()
		if _, claimed := t.marked[id]; claimed {
			t.mu.Unlock()
			continue
		}
		t.marked[id] = struct{}{}
		t.mu.Unlock()

		// Optimistic local flip first so overlapping callbacks see read=true.
		t.store.ApplyReadReceipt(id)

		if err := t.api.MarkRead(ctx, id); err != nil {
			logger.Errorf("receipt mark read message=%s: %v", id, err)
		}
		t.notify.EmitMessageRead(id)
	}
}

// MarkOne issues a receipt for a single message id, with the same
// exactly-once guarantee. Used when an inbound message lands while its
// conversation is on screen.
func (t *Tracker) MarkOne(ctx context.Context, messageID string) {
	t.OnItemsVisible(ctx, []string{messageID})
}

// Reset forgets claimed ids, e.g. when the conversation screen closes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marked = make(map[string]struct{})
}
