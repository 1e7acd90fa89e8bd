package session

import (
	"context"
	"time"

	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/receipt"
	"github.com/chatclient/internal/socket"
	"github.com/chatclient/internal/store"
	"github.com/chatclient/internal/typing"
)

// Screen is one open conversation: its message store, typing coordinator
// and read-receipt tracker, wired to the session's socket and REST client.
type Screen struct {
	sess           *Session
	peerID         string
	conversationID string

	store    *store.Store
	typing   *typing.Coordinator
	receipts *receipt.Tracker
}

// OpenConversation builds the screen for a peer and makes it the target of
// inbound message/typing events. Any previously open screen is replaced.
func (s *Session) OpenConversation(peerID, conversationID string) *Screen {
	st := store.New(s.api, s.UserID(), peerID, conversationID, s.cfg.MessagePageSize)
	st.OnActiveStatus = func(ts time.Time) {
		s.presence.SetLastSeen(peerID, ts)
	}

	tc := typing.NewCoordinator(s.manager, s.cfg.TypingIdle)
	tc.SetActivePeer(peerID)

	scr := &Screen{
		sess:           s,
		peerID:         peerID,
		conversationID: conversationID,
		store:          st,
		typing:         tc,
		receipts:       receipt.NewTracker(s.api, s.manager, st),
	}

	s.mu.Lock()
	prev := s.screen
	s.screen = scr
	s.mu.Unlock()
	if prev != nil {
		prev.typing.Close()
	}
	return scr
}

// CloseConversation tears the active screen down, cancelling its typing
// timers so nothing fires after the view is gone.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	scr := s.screen
	s.screen = nil
	s.mu.Unlock()
	if scr != nil {
		scr.typing.Close()
		scr.receipts.Reset()
	}
}

// owns reports whether an inbound message belongs to this screen's
// conversation: either from the peer or the echo of our own send to them.
func (scr *Screen) owns(p socket.MessagePayload) bool {
	return p.Sender == scr.peerID || p.Receiver == scr.peerID
}

// PeerID returns the conversation partner's id.
func (scr *Screen) PeerID() string { return scr.peerID }

// LoadHistory fetches the first page of messages.
func (scr *Screen) LoadHistory(ctx context.Context) error {
	return scr.store.LoadPage(ctx, 1)
}

// LoadMore fetches the next (older) page; a no-op while a load is in
// flight or when the history is exhausted.
func (scr *Screen) LoadMore(ctx context.Context) error {
	return scr.store.LoadMore(ctx)
}

// Send performs the optimistic send round trip and returns the local id.
func (scr *Screen) Send(ctx context.Context, text string) (string, error) {
	return scr.store.Send(ctx, text)
}

// Edit replaces a sent message's content on the server and locally.
func (scr *Screen) Edit(ctx context.Context, messageID, newText string) error {
	updated, err := scr.sess.api.EditMessage(ctx, messageID, newText)
	if err != nil {
		return err
	}
	scr.store.ApplyEdit(updated.ID, updated.Content)
	return nil
}

// HandleTyping forwards a keystroke to the typing coordinator.
func (scr *Screen) HandleTyping(text string) {
	scr.typing.OnLocalInput(scr.peerID, text)
}

// OnItemsVisible reports the message ids currently visible in the list so
// read receipts can be issued.
func (scr *Screen) OnItemsVisible(ctx context.Context, visibleIDs []string) {
	scr.receipts.OnItemsVisible(ctx, visibleIDs)
}

// Messages returns the conversation in chronological order.
func (scr *Screen) Messages() []model.Message { return scr.store.Messages() }

// Groups returns the conversation bucketed under date section headers.
func (scr *Screen) Groups() []store.Group { return scr.store.Groups() }

// HasMore reports whether older history remains.
func (scr *Screen) HasMore() bool { return scr.store.HasMore() }

// PeerTyping reports whether the peer is currently typing.
func (scr *Screen) PeerTyping() bool {
	return scr.typing.RemoteTyper() == scr.peerID
}

// StatusText derives the peer's presence line ("Online", "Active 5m ago").
// Call it on every render; it changes with elapsed time.
func (scr *Screen) StatusText() string {
	return scr.sess.presence.StatusText(scr.peerID)
}
