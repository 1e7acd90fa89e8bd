// Package store holds the per-conversation message collection: ordered by
// createdAt, deduplicated by id, reconciled between optimistic local sends
// and server-confirmed records arriving over REST or socket in any order.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/socket"
	"github.com/google/uuid"
)

// ErrEmptyMessage is returned for a send with no content after trimming.
var ErrEmptyMessage = errors.New("empty message")

// Fetcher is the REST surface the store depends on. It is an interface so
// tests can fake the backend.
type Fetcher interface {
	FetchMessages(ctx context.Context, conversationID string, page, limit int) (api.MessagesPage, error)
	SendMessage(ctx context.Context, receiverID, content string) (api.Message, error)
}

// Store is the message collection for one open conversation.
type Store struct {
	api            Fetcher
	selfID         string
	peerID         string
	conversationID string
	pageSize       int

	// OnActiveStatus receives the peer's last-seen snapshot delivered
	// alongside a history page. Set before the first LoadPage call.
	OnActiveStatus func(ts time.Time)

	mu          sync.Mutex
	messages    []model.Message
	ids         map[string]struct{}
	pending     map[string]struct{}
	page        int
	hasMore     bool
	loadingMore bool

	now func() time.Time
}

func New(f Fetcher, selfID, peerID, conversationID string, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Store{
		api:            f,
		selfID:         selfID,
		peerID:         peerID,
		conversationID: conversationID,
		pageSize:       pageSize,
		ids:            make(map[string]struct{}),
		pending:        make(map[string]struct{}),
		hasMore:        true,
		now:            time.Now,
	}
}

// LoadPage fetches one page of older messages and merges it in. The call is
// a no-op while a previous load is in flight or when the backend reported
// no more history; that guard is what prevents overlapping fetches.
func (s *Store) LoadPage(ctx context.Context, page int) error {
	defer logger.DeferLogDuration("store.LoadPage", time.Now())()

	s.mu.Lock()
	if s.loadingMore || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	s.mu.Unlock()

	resp, err := s.api.FetchMessages(ctx, s.conversationID, page, s.pageSize)
	if err != nil {
		s.mu.Lock()
		s.loadingMore = false
		if errors.Is(err, api.ErrNoConversation) {
			// First contact with this peer: empty history, nothing to retry.
			s.hasMore = false
			s.mu.Unlock()
			return nil
		}
		// hasMore stays as it was so the page can be retried.
		s.mu.Unlock()
		logger.Errorf("store load page=%d conversation=%s: %v", page, s.conversationID, err)
		return err
	}

	s.mu.Lock()
	for _, dto := range resp.Messages {
		s.insertLocked(mapMessage(dto, s.selfID))
	}
	s.hasMore = resp.HasMore
	if page > s.page {
		s.page = page
	}
	s.loadingMore = false
	s.mu.Unlock()

	if s.OnActiveStatus != nil && !resp.ActiveStatus.IsZero() {
		s.OnActiveStatus(resp.ActiveStatus)
	}
	return nil
}

// LoadMore fetches the next page after the last loaded one.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	next := s.page + 1
	s.mu.Unlock()
	return s.LoadPage(ctx, next)
}

// SendOptimistic inserts a pending message immediately and returns its
// client-generated id. The UI never waits on the network for this insert.
func (s *Store) SendOptimistic(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	localID := uuid.New().String()
	m := model.Message{
		ID:        localID,
		Text:      text,
		Direction: model.DirectionSent,
		CreatedAt: s.now(),
		Delivery:  model.DeliveryPending,
	}
	s.mu.Lock()
	s.insertLocked(m)
	s.pending[localID] = struct{}{}
	s.mu.Unlock()
	return localID, nil
}

// ConfirmSend reconciles the optimistic entry with the server-assigned
// identity. If the socket echo of the same message already landed under the
// server id, the placeholder is dropped instead of renamed, so exactly one
// entry exists per logical message. Idempotent.
func (s *Store) ConfirmSend(localID, serverID string, serverRead bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, localID)

	_, echoLanded := s.ids[serverID]
	if echoLanded && serverRead {
		s.applyReadLocked(serverID)
	}
	for i := range s.messages {
		switch s.messages[i].ID {
		case serverID:
			s.messages[i].Delivery = model.DeliveryConfirmed
			if serverRead {
				s.messages[i].Read = true
			}
		case localID:
			if echoLanded {
				s.removeLocked(i)
				return
			}
			delete(s.ids, localID)
			s.messages[i].ID = serverID
			s.messages[i].Delivery = model.DeliveryConfirmed
			if serverRead {
				s.messages[i].Read = true
			}
			s.ids[serverID] = struct{}{}
		}
	}
}

// FailSend marks the optimistic entry failed. The message stays in the
// store for a user-initiated resend; nothing is silently dropped.
func (s *Store) FailSend(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[localID]; !ok {
		return
	}
	delete(s.pending, localID)
	for i := range s.messages {
		if s.messages[i].ID == localID {
			s.messages[i].Delivery = model.DeliveryFailed
			return
		}
	}
}

// Send is the full optimistic round-trip: insert pending, persist over
// REST, then confirm or fail. Returns the local id so callers can track
// the entry through reconciliation.
func (s *Store) Send(ctx context.Context, text string) (string, error) {
	localID, err := s.SendOptimistic(text)
	if err != nil {
		return "", err
	}
	resp, err := s.api.SendMessage(ctx, s.peerID, strings.TrimSpace(text))
	if err != nil {
		logger.Errorf("store send conversation=%s: %v", s.conversationID, err)
		s.FailSend(localID)
		return localID, err
	}
	s.ConfirmSend(localID, resp.ID, resp.Read)
	return localID, nil
}

// ApplyInbound appends a message delivered over the socket. Duplicates
// (e.g. the echo of an already-confirmed send) are absorbed. It reports
// whether the message should trigger a mark-read round trip: an unread
// message from the peer whose conversation is on screen.
func (s *Store) ApplyInbound(p socket.MessagePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[p.ID]; ok {
		if p.Read {
			s.applyReadLocked(p.ID)
		}
		return false
	}
	m := model.Message{
		ID:        p.ID,
		Text:      p.Content,
		Direction: model.DirectionFor(p.Sender, s.selfID),
		CreatedAt: p.CreatedAt,
		Read:      p.Read,
		Delivery:  model.DeliveryConfirmed,
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.insertLocked(m)
	return p.Sender == s.peerID && !p.Read
}

// ApplyReadReceipt sets read=true for the message. Monotonic and
// idempotent: re-applying changes nothing, and read never regresses.
func (s *Store) ApplyReadReceipt(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyReadLocked(messageID)
}

func (s *Store) applyReadLocked(messageID string) {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Read = true
			return
		}
	}
}

// ApplyEdit replaces the message text and flags it edited. Idempotent by id.
func (s *Store) ApplyEdit(messageID, newText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Text = newText
			s.messages[i].IsEdited = true
			return
		}
	}
}

// Messages returns a copy of the collection in chronological order.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Message returns one entry by id.
func (s *Store) Message(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			return s.messages[i], true
		}
	}
	return model.Message{}, false
}

// Groups returns the collection bucketed by calendar day for section
// headers. Labels are derived from the local clock on every call, never
// cached between renders.
func (s *Store) Groups() []Group {
	return GroupByDate(s.Messages(), s.now())
}

func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingMore
}

// insertLocked places m into the slice keeping createdAt ascending order.
// Messages with equal timestamps keep arrival order.
func (s *Store) insertLocked(m model.Message) {
	if _, ok := s.ids[m.ID]; ok {
		return
	}
	idx := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(m.CreatedAt)
	})
	s.messages = append(s.messages, model.Message{})
	copy(s.messages[idx+1:], s.messages[idx:])
	s.messages[idx] = m
	s.ids[m.ID] = struct{}{}
}

func (s *Store) removeLocked(i int) {
	delete(s.ids, s.messages[i].ID)
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
}

func mapMessage(dto api.Message, selfID string) model.Message {
	return model.Message{
		ID:                   dto.ID,
		Text:                 dto.Content,
		Direction:            model.DirectionFor(dto.Sender.ID, selfID),
		Media:                dto.Media,
		AudioDurationSeconds: dto.AudioDuration,
		CreatedAt:            dto.CreatedAt,
		Read:                 dto.Read,
		IsEdited:             dto.Edited,
		Delivery:             model.DeliveryConfirmed,
	}
}
