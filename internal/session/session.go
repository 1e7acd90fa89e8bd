// Package session composes the client core for the view layer: it owns the
// connection lifecycle, fans inbound socket events out to the presence
// tracker, typing coordinator, message store and chat-list aggregator, and
// routes outbound user actions back through the socket and REST client.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chatclient/internal/api"
	"github.com/chatclient/internal/chatlist"
	"github.com/chatclient/internal/config"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/presence"
	"github.com/chatclient/internal/socket"
	"github.com/chatclient/internal/tokenstore"
)

// ErrNotAuthenticated is returned for operations that need a logged-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session is the per-user client core. One Session holds at most one live
// socket connection and at most one open conversation screen.
type Session struct {
	cfg      *config.Config
	tokens   tokenstore.Store
	api      *api.Client
	manager  *socket.Manager
	presence *presence.Tracker
	chats    *chatlist.Aggregator

	// OnUpdate, when set, is invoked after any state change a view might
	// want to re-render for. Called from the socket dispatch goroutine.
	OnUpdate func()

	mu       sync.Mutex
	userID   string
	profile  api.User
	screen   *Screen
	tickStop chan struct{}
}

func New(cfg *config.Config, tokens tokenstore.Store) *Session {
	s := &Session{
		cfg:      cfg,
		tokens:   tokens,
		manager:  socket.NewManager(cfg),
		presence: presence.NewTracker(),
	}
	s.api = api.NewClient(cfg.BaseURL, api.TokenFunc(s.token), cfg.RequestTimeout)
	return s
}

// token reads the bearer token from the device store for every request;
// it is never kept in plain process memory between calls.
func (s *Session) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	if userID == "" {
		return "", ErrNotAuthenticated
	}
	return s.tokens.GetToken(ctx, userID)
}

// Login exchanges credentials for a token, stores it on device and primes
// the user identity.
func (s *Session) Login(ctx context.Context, email, password string) error {
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := s.tokens.SetToken(ctx, res.User.ID, res.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	s.mu.Lock()
	s.userID = res.User.ID
	s.profile = res.User
	s.chats = chatlist.New(s.api, res.User.ID, s.cfg.ConversationPageSize)
	s.mu.Unlock()
	return nil
}

// Resume restores a session for a user whose token is already on device
// (app restart path). The profile fetch doubles as token validation.
func (s *Session) Resume(ctx context.Context, userID string) error {
	if _, err := s.tokens.GetToken(ctx, userID); err != nil {
		return ErrNotAuthenticated
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()

	profile, err := s.api.Profile(ctx)
	if err != nil {
		s.mu.Lock()
		s.userID = ""
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.profile = profile
	s.chats = chatlist.New(s.api, profile.ID, s.cfg.ConversationPageSize)
	s.mu.Unlock()
	return nil
}

// Logout tears down the connection, deletes the device token and clears
// all client state.
func (s *Session) Logout(ctx context.Context) error {
	s.Blur()
	s.mu.Lock()
	userID := s.userID
	s.userID = ""
	s.profile = api.User{}
	s.screen = nil
	s.chats = nil
	s.mu.Unlock()
	s.presence.Reset()
	if userID == "" {
		return nil
	}
	return s.tokens.DeleteToken(ctx, userID)
}

// Focus (re)establishes the socket connection. Bound to lifecycle events:
// screen focus, app returning to foreground, or an explicit retry. A dial
// failure leaves the presence set empty — the UI shows offline — and is
// returned to the caller; there is no retry loop here.
func (s *Session) Focus(ctx context.Context) error {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	if userID == "" {
		return ErrNotAuthenticated
	}
	token, err := s.tokens.GetToken(ctx, userID)
	if err != nil {
		return ErrNotAuthenticated
	}

	if err := s.manager.Connect(ctx, userID, token, s.handlers()); err != nil {
		s.presence.Reset()
		s.applyOnline(nil)
		return err
	}
	s.startTicker()
	return nil
}

// Blur drops the connection when the screen loses focus or the app goes to
// background.
func (s *Session) Blur() {
	s.stopTicker()
	s.manager.Disconnect()
	s.presence.Reset()
	s.applyOnline(nil)
}

// AppStateChange maps the app active/background transition onto the
// connection lifecycle.
func (s *Session) AppStateChange(ctx context.Context, active bool) error {
	if active {
		return s.Focus(ctx)
	}
	s.Blur()
	return nil
}

func (s *Session) handlers() socket.Handlers {
	return socket.Handlers{
		OnMessage:        s.handleMessage,
		OnMessageRead:    s.handleMessageRead,
		OnMessageUpdated: s.handleMessageUpdated,
		OnTyping:         s.handleTyping,
		OnStopTyping:     s.handleStopTyping,
		OnStatusChange:   s.handleStatusChange,
		OnDisconnect:     s.handleDisconnect,
	}
}

func (s *Session) handleMessage(p socket.MessagePayload) {
	if chats := s.chatList(); chats != nil {
		chats.ApplyIncomingActivity(p)
	}
	if scr := s.currentScreen(); scr != nil && scr.owns(p) {
		shouldMark := scr.store.ApplyInbound(p)
		scr.typing.ClearRemote(p.Sender)
		if shouldMark {
			// Mark-read is a network round trip; don't stall the dispatch loop.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
				defer cancel()
				scr.receipts.MarkOne(ctx, p.ID)
			}()
		}
	}
	s.notify()
}

func (s *Session) handleMessageRead(p socket.MessageReadPayload) {
	if scr := s.currentScreen(); scr != nil {
		scr.store.ApplyReadReceipt(p.MessageID)
	}
	s.notify()
}

func (s *Session) handleMessageUpdated(p socket.MessageUpdatedPayload) {
	if scr := s.currentScreen(); scr != nil {
		scr.store.ApplyEdit(p.MessageID, p.Content)
	}
	s.notify()
}

func (s *Session) handleTyping(p socket.TypingPayload) {
	if scr := s.currentScreen(); scr != nil {
		scr.typing.OnRemoteTyping(p.SenderID)
	}
	s.notify()
}

func (s *Session) handleStopTyping(p socket.TypingPayload) {
	if scr := s.currentScreen(); scr != nil {
		scr.typing.OnRemoteStopTyping(p.SenderID)
	}
	s.notify()
}

func (s *Session) handleStatusChange(onlineIDs []string) {
	s.presence.OnStatusBroadcast(onlineIDs)
	s.applyOnline(onlineIDs)
	s.notify()
}

func (s *Session) handleDisconnect(err error) {
	if err != nil {
		logger.Errorf("session socket dropped: %v", err)
	}
	// No live socket means nobody is verifiably online.
	s.presence.Reset()
	s.applyOnline(nil)
	s.notify()
}

func (s *Session) applyOnline(onlineIDs []string) {
	if chats := s.chatList(); chats != nil {
		chats.ApplyOnlineStatus(onlineIDs)
	}
}

func (s *Session) chatList() *chatlist.Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats
}

func (s *Session) currentScreen() *Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

func (s *Session) notify() {
	if s.OnUpdate != nil {
		s.OnUpdate()
	}
}

// startTicker drives the periodic recompute of derived presence text: the
// elapsed-time buckets change without any event arriving.
func (s *Session) startTicker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	s.tickStop = stop
	go func() {
		t := time.NewTicker(s.cfg.PresenceTick)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.notify()
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopTicker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

// Chats exposes the chat-list aggregator (nil before login).
func (s *Session) Chats() *chatlist.Aggregator { return s.chatList() }

// Presence exposes the presence tracker.
func (s *Session) Presence() *presence.Tracker { return s.presence }

// Profile returns the authenticated user's profile.
func (s *Session) Profile() api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// UserID returns the authenticated user id, or "".
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// ListUsers proxies the people screen's user directory page.
func (s *Session) ListUsers(ctx context.Context, page, limit int) ([]api.User, error) {
	return s.api.ListUsers(ctx, page, limit)
}
