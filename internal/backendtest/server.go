// Package backendtest runs an in-process stand-in for the chat backend:
// the REST surface plus a websocket endpoint, enough for the client core
// to be tested end to end without a real server.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

type Message struct {
	ID            string    `json:"_id"`
	Content       string    `json:"content"`
	Sender        User      `json:"sender"`
	Receiver      string    `json:"receiver,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	Read          bool      `json:"read"`
	Media         string    `json:"media,omitempty"`
	AudioDuration int       `json:"audioDuration,omitempty"`
	Edited        bool      `json:"edited,omitempty"`
}

type Conversation struct {
	ID            string    `json:"_id"`
	Participants  []User    `json:"participants"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

// Envelope is a recorded client->server socket frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Server is the fake backend. All state is in memory and mutex-guarded;
// handlers and test code may touch it concurrently.
type Server struct {
	HTTP *httptest.Server

	mu            sync.Mutex
	tokens        map[string]User          // bearer token -> user
	users         []User
	conversations []Conversation
	messages      map[string][]Message     // conversation id -> history, newest first
	received      []Envelope
	wsConns       []*websocket.Conn
	sendFail      bool
	lastSeen      map[string]time.Time // peer id -> activeStatus snapshot
}

func New() *Server {
	s := &Server{
		tokens:   make(map[string]User),
		messages: make(map[string][]Message),
		lastSeen: make(map[string]time.Time),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Post("/auth/login", s.handleLogin)
	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/users/profile", s.handleProfile)
		r.Get("/users", s.handleListUsers)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{conversationId}/messages", s.handleFetchMessages)
		r.Post("/messages", s.handleSendMessage)
		r.Patch("/messages/{messageId}/read", s.handleMarkRead)
		r.Patch("/messages/{messageId}", s.handleEditMessage)
	})

	s.HTTP = httptest.NewServer(r)
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	conns := s.wsConns
	s.wsConns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	s.HTTP.Close()
}

// BaseURL is the REST base for api.NewClient.
func (s *Server) BaseURL() string { return s.HTTP.URL }

// SocketURL is the websocket endpoint for the connection manager.
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws"
}

// AddUser seeds a user and returns the bearer token that authenticates them.
func (s *Server) AddUser(u User) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
	token := "tok-" + u.ID
	s.tokens[token] = u
	return token
}

// AddConversation seeds a chat-list row.
func (s *Server) AddConversation(c Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	s.conversations = append(s.conversations, c)
}

// AddMessages seeds history for a conversation, newest first.
func (s *Server) AddMessages(conversationID string, msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msgs...)
}

// SetLastSeen seeds the activeStatus snapshot returned with history pages.
func (s *Server) SetLastSeen(conversationID string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[conversationID] = ts
}

// FailSends makes POST /messages return 500 until switched off.
func (s *Server) FailSends(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendFail = fail
}

// Received returns the socket frames the client emitted so far.
func (s *Server) Received() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, len(s.received))
	copy(out, s.received)
	return out
}

// ReceivedOfType filters recorded frames by event type.
func (s *Server) ReceivedOfType(eventType string) []Envelope {
	var out []Envelope
	for _, e := range s.Received() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Push sends an event to every connected socket client.
func (s *Server) Push(eventType string, payload any) error {
	frame, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		return err
	}
	s.mu.Lock()
	conns := make([]*websocket.Conn, len(s.wsConns))
	copy(conns, s.wsConns)
	s.mu.Unlock()
	for _, c := range conns {
		// Stale connections from a reconnect are skipped, not fatal.
		c.WriteMessage(websocket.TextMessage, frame)
	}
	return nil
}

// --- handlers ---

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := s.userFor(r)
		if !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) userFor(r *http.Request) (User, bool) {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tokens[token]
	return u, ok
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"success":false}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == req.Email {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"token":   "tok-" + u.ID,
				"user":    u,
			})
			return
		}
	}
	http.Error(w, `{"success":false}`, http.StatusUnauthorized)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := s.userFor(r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": u})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]User, len(s.users))
	copy(users, s.users)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": users})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)

	s.mu.Lock()
	total := len(s.conversations)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	data := make([]Conversation, end-start)
	copy(data, s.conversations[start:end])
	s.mu.Unlock()

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
		"meta":    map[string]any{"totalPages": totalPages},
	})
}

func (s *Server) handleFetchMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	s.mu.Lock()
	history, ok := s.messages[conversationID]
	seen := s.lastSeen[conversationID]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": "No conversation found",
		})
		return
	}

	start := (page - 1) * limit
	if start > len(history) {
		start = len(history)
	}
	end := start + limit
	if end > len(history) {
		end = len(history)
	}
	resp := map[string]any{
		"status":  "success",
		"data":    history[start:end],
		"hasMore": end < len(history),
	}
	if !seen.IsZero() {
		resp["activeStatus"] = seen.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	u, _ := s.userFor(r)
	var req struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	if s.sendFail {
		s.mu.Unlock()
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	m := Message{
		ID:        uuid.New().String(),
		Content:   req.Content,
		Sender:    u,
		Receiver:  req.ReceiverID,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "success",
		"data":   map[string]any{"message": m},
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	s.mu.Lock()
	for cid := range s.messages {
		for i := range s.messages[cid] {
			if s.messages[cid][i].ID == messageID {
				s.messages[cid][i].Read = true
			}
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusBadRequest)
		return
	}
	var updated Message
	s.mu.Lock()
	for cid := range s.messages {
		for i := range s.messages[cid] {
			if s.messages[cid][i].ID == messageID {
				s.messages[cid][i].Content = req.Content
				s.messages[cid][i].Edited = true
				updated = s.messages[cid][i]
			}
		}
	}
	s.mu.Unlock()
	if updated.ID == "" {
		updated = Message{ID: messageID, Content: req.Content, Edited: true, CreatedAt: time.Now().UTC()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   map[string]any{"message": updated},
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.wsConns = append(s.wsConns, conn)
	s.mu.Unlock()

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, env)
			s.mu.Unlock()
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
