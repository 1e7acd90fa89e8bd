// Package chatlist maintains the chat-list view: one row per conversation,
// most recently active first, with server-authoritative unread counts.
package chatlist

import (
	"context"
	"sync"
	"time"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/socket"
)

// Lister is the REST surface the aggregator depends on.
type Lister interface {
	ListConversations(ctx context.Context, page, limit int) (api.ConversationsPage, error)
}

type Aggregator struct {
	api      Lister
	selfID   string
	pageSize int

	mu         sync.Mutex
	rows       []model.Conversation
	page       int
	totalPages int
	loading    bool
	online     map[string]struct{}
}

func New(l Lister, selfID string, pageSize int) *Aggregator {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Aggregator{
		api:        l,
		selfID:     selfID,
		pageSize:   pageSize,
		totalPages: 1,
		online:     make(map[string]struct{}),
	}
}

// LoadPage fetches one page of conversations. reset=true replaces the list
// (pull-to-refresh); otherwise the page is appended, deduplicated by
// conversation id against rows already present.
func (a *Aggregator) LoadPage(ctx context.Context, page int, reset bool) error {
	defer logger.DeferLogDuration("chatlist.LoadPage", time.Now())()

	a.mu.Lock()
	if a.loading {
		a.mu.Unlock()
		return nil
	}
	a.loading = true
	a.mu.Unlock()

	resp, err := a.api.ListConversations(ctx, page, a.pageSize)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = false
	if err != nil {
		// List state is left untouched; an empty screen beats a crashed one.
		logger.Errorf("chatlist load page=%d: %v", page, err)
		return err
	}

	rows := make([]model.Conversation, 0, len(resp.Conversations))
	for _, dto := range resp.Conversations {
		rows = append(rows, a.mapRowLocked(dto))
	}

	if reset {
		a.rows = rows
	} else {
		seen := make(map[string]struct{}, len(a.rows))
		for _, r := range a.rows {
			seen[r.ID] = struct{}{}
		}
		for _, r := range rows {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			a.rows = append(a.rows, r)
		}
	}
	a.page = page
	a.totalPages = resp.TotalPages
	return nil
}

// LoadMore appends the next page, if any.
func (a *Aggregator) LoadMore(ctx context.Context) error {
	a.mu.Lock()
	if a.page >= a.totalPages || a.loading {
		a.mu.Unlock()
		return nil
	}
	next := a.page + 1
	a.mu.Unlock()
	return a.LoadPage(ctx, next, false)
}

// Refresh replaces the list with page 1.
func (a *Aggregator) Refresh(ctx context.Context) error {
	return a.LoadPage(ctx, 1, true)
}

// ApplyIncomingActivity moves (or inserts) the affected conversation's row
// to the front of the list. The row is rebuilt from the event; any prior
// row with the same conversation id is removed, never duplicated. The
// unread count comes from the payload when the server sent one, otherwise
// the previous row's value is carried over: the client never counts.
func (a *Aggregator) ApplyIncomingActivity(p socket.MessagePayload) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sentByMe := p.Sender == a.selfID
	peerID := p.Sender
	if sentByMe {
		peerID = p.Receiver
	}

	row := model.Conversation{
		ID:                  p.ConversationID,
		PeerID:              peerID,
		LastMessage:         p.Content,
		LastMessageAt:       p.CreatedAt,
		LastMessageSentByMe: sentByMe,
		LastMessageRead:     p.Read,
		UnreadCount:         p.UnreadCount,
	}
	// Sender details describe the peer only on inbound messages; the echo
	// of an own send carries the local user's identity.
	if !sentByMe {
		row.PeerName = p.SenderName
		row.PeerEmail = p.SenderEmail
		row.PeerAvatar = p.SenderAvatar
	}

	for i := range a.rows {
		if a.rows[i].ID == p.ConversationID {
			// Keep the peer identity the fetch gave us; the event only
			// carries sender details when the peer is the sender.
			prev := a.rows[i]
			row.PeerName = prev.PeerName
			row.PeerEmail = prev.PeerEmail
			row.PeerAvatar = prev.PeerAvatar
			if !sentByMe {
				if p.SenderName != "" {
					row.PeerName = p.SenderName
				}
				if p.SenderAvatar != "" {
					row.PeerAvatar = p.SenderAvatar
				}
				if p.UnreadCount == 0 {
					row.UnreadCount = prev.UnreadCount
				}
			}
			a.rows = append(a.rows[:i], a.rows[i+1:]...)
			break
		}
	}

	_, row.IsOnline = a.online[row.PeerID]
	a.rows = append([]model.Conversation{row}, a.rows...)
}

// ApplyOnlineStatus recomputes every row's IsOnline flag from the broadcast
// set. Always the full pass over all rows; single-row patching drifts.
func (a *Aggregator) ApplyOnlineStatus(onlineIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.online = make(map[string]struct{}, len(onlineIDs))
	for _, id := range onlineIDs {
		a.online[id] = struct{}{}
	}
	for i := range a.rows {
		_, a.rows[i].IsOnline = a.online[a.rows[i].PeerID]
	}
}

// ApplyReadState updates the read tick of the last message in the row for
// conversationID, when the receipt matches it.
func (a *Aggregator) ApplyReadState(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.rows {
		if a.rows[i].ID == conversationID {
			a.rows[i].LastMessageRead = true
			return
		}
	}
}

// Rows returns a snapshot of the list in display order.
func (a *Aggregator) Rows() []model.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Conversation, len(a.rows))
	copy(out, a.rows)
	return out
}

// Loading reports whether a page fetch is in flight.
func (a *Aggregator) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

// TotalPages returns the page count reported by the last fetch.
func (a *Aggregator) TotalPages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalPages
}

func (a *Aggregator) mapRowLocked(dto api.Conversation) model.Conversation {
	peer := dto.Peer(a.selfID)
	row := model.Conversation{
		ID:                  dto.ID,
		PeerID:              peer.ID,
		PeerName:            peer.Name,
		PeerEmail:           peer.Email,
		PeerAvatar:          peer.Avatar,
		LastMessage:         dto.LastMessage,
		LastMessageAt:       dto.LastMessageAt,
		LastMessageSentByMe: dto.LastMessageSender == a.selfID,
		LastMessageRead:     dto.LastMessageRead,
		UnreadCount:         dto.UnreadCount,
	}
	_, row.IsOnline = a.online[row.PeerID]
	return row
}
