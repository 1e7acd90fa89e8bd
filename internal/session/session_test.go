package session

import (
	"context"
	"testing"
	"time"

	"github.com/chatclient/internal/backendtest"
	"github.com/chatclient/internal/config"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/socket"
	"github.com/chatclient/internal/tokenstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(srv *backendtest.Server) *config.Config {
	return &config.Config{
		BaseURL:              srv.BaseURL(),
		SocketURL:            srv.SocketURL(),
		RequestTimeout:       5 * time.Second,
		MessagePageSize:      20,
		ConversationPageSize: 10,
		WSWriteTimeout:       5 * time.Second,
		WSPongTimeout:        10 * time.Second,
		WSMaxMessageSize:     4096,
		WSSendBufferSize:     16,
		TypingIdle:           50 * time.Millisecond,
		PresenceTick:         time.Hour,
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// loggedInSession logs user u1 in against a seeded fake backend.
func loggedInSession(t *testing.T) (*Session, *backendtest.Server) {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	srv.AddUser(backendtest.User{ID: "u1", Name: "Marat", Email: "marat@example.com"})
	srv.AddUser(backendtest.User{ID: "peer", Name: "Alice", Email: "alice@example.com"})

	s := New(testConfig(srv), memory.New())
	require.NoError(t, s.Login(context.Background(), "marat@example.com", "pw"))
	t.Cleanup(s.Blur)
	return s, srv
}

func TestLoginResumeLogout(t *testing.T) {
	s, _ := loggedInSession(t)
	assert.Equal(t, "u1", s.UserID())
	assert.Equal(t, "Marat", s.Profile().Name)
	require.NotNil(t, s.Chats())

	require.NoError(t, s.Logout(context.Background()))
	assert.Empty(t, s.UserID())
	assert.Nil(t, s.Chats())

	// Token was deleted, so resuming the old session fails.
	assert.ErrorIs(t, s.Resume(context.Background(), "u1"), ErrNotAuthenticated)
}

func TestResumeRestoresProfile(t *testing.T) {
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	token := srv.AddUser(backendtest.User{ID: "u1", Name: "Marat", Email: "marat@example.com"})

	tokens := memory.New()
	require.NoError(t, tokens.SetToken(context.Background(), "u1", token))

	s := New(testConfig(srv), tokens)
	require.NoError(t, s.Resume(context.Background(), "u1"))
	assert.Equal(t, "Marat", s.Profile().Name)
	require.NotNil(t, s.Chats())
}

func TestFocus_JoinsRoomAndTracksPresence(t *testing.T) {
	s, srv := loggedInSession(t)
	require.NoError(t, s.Focus(context.Background()))

	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	require.NoError(t, srv.Push("userStatusChange", []string{"peer"}))
	waitUntil(t, func() bool { return s.Presence().IsOnline("peer") })

	// The next broadcast replaces the set.
	require.NoError(t, srv.Push("userStatusChange", []string{}))
	waitUntil(t, func() bool { return !s.Presence().IsOnline("peer") })
}

func TestFocus_WithoutLoginFails(t *testing.T) {
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	s := New(testConfig(srv), memory.New())
	assert.ErrorIs(t, s.Focus(context.Background()), ErrNotAuthenticated)
}

func TestFocus_DialFailureLeavesOffline(t *testing.T) {
	s, srv := loggedInSession(t)
	require.NoError(t, s.Focus(context.Background()))
	require.NoError(t, srv.Push("userStatusChange", []string{"peer"}))
	waitUntil(t, func() bool { return s.Presence().IsOnline("peer") })

	// Point the socket at a dead port and refocus (app came back to
	// foreground, backend gone).
	s.cfg.SocketURL = "ws://127.0.0.1:1/ws"
	require.Error(t, s.Focus(context.Background()))
	assert.False(t, s.Presence().IsOnline("peer"))
}

func TestBlur_ClearsPresence(t *testing.T) {
	s, srv := loggedInSession(t)
	require.NoError(t, s.Focus(context.Background()))
	require.NoError(t, srv.Push("userStatusChange", []string{"peer"}))
	waitUntil(t, func() bool { return s.Presence().IsOnline("peer") })

	s.Blur()
	assert.False(t, s.Presence().IsOnline("peer"))
}

func TestInboundMessage_UpdatesScreenAndChatList(t *testing.T) {
	s, srv := loggedInSession(t)
	srv.AddMessages("conv1",
		backendtest.Message{ID: "m0", Content: "earlier", Sender: backendtest.User{ID: "peer"}, Read: true,
			CreatedAt: time.Now().Add(-time.Hour)},
	)
	require.NoError(t, s.Focus(context.Background()))
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	scr := s.OpenConversation("peer", "conv1")
	require.NoError(t, scr.LoadHistory(context.Background()))
	require.Len(t, scr.Messages(), 1)

	require.NoError(t, srv.Push("message", socket.MessagePayload{
		ID:             "m1",
		ConversationID: "conv1",
		Sender:         "peer",
		SenderName:     "Alice",
		Receiver:       "u1",
		Content:        "hello",
		CreatedAt:      time.Now(),
		UnreadCount:    1,
	}))

	waitUntil(t, func() bool { return len(scr.Messages()) == 2 })
	msgs := scr.Messages()
	assert.Equal(t, "hello", msgs[1].Text)
	assert.Equal(t, model.DirectionReceived, msgs[1].Direction)

	// The conversation is on screen, so the message is marked read
	// automatically: a REST round trip plus a socket receipt.
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("messageRead")) == 1 })
	waitUntil(t, func() bool {
		m, ok := scr.store.Message("m1")
		return ok && m.Read
	})

	// The chat list got a row for the activity.
	rows := s.Chats().Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "conv1", rows[0].ID)
	assert.Equal(t, "Alice", rows[0].PeerName)
	assert.Equal(t, "hello", rows[0].LastMessage)
}

func TestInboundMessage_BackgroundConversationOnlyTouchesChatList(t *testing.T) {
	s, srv := loggedInSession(t)
	srv.AddMessages("conv1", backendtest.Message{ID: "m0", Sender: backendtest.User{ID: "peer"}, Read: true})
	require.NoError(t, s.Focus(context.Background()))
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	scr := s.OpenConversation("peer", "conv1")
	require.NoError(t, scr.LoadHistory(context.Background()))

	// Message from a different conversation.
	require.NoError(t, srv.Push("message", socket.MessagePayload{
		ID:             "m9",
		ConversationID: "conv-other",
		Sender:         "carol",
		SenderName:     "Carol",
		Receiver:       "u1",
		Content:        "psst",
		UnreadCount:    2,
	}))

	waitUntil(t, func() bool { return len(s.Chats().Rows()) == 1 })
	rows := s.Chats().Rows()
	assert.Equal(t, "conv-other", rows[0].ID)
	assert.Equal(t, 2, rows[0].UnreadCount)

	// The open screen is untouched and no receipt was issued.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, scr.Messages(), 1)
	assert.Empty(t, srv.ReceivedOfType("messageRead"))
}

func TestTypingIndicator_EndToEnd(t *testing.T) {
	s, srv := loggedInSession(t)
	require.NoError(t, s.Focus(context.Background()))
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	scr := s.OpenConversation("peer", "conv1")

	// Remote indicator.
	require.NoError(t, srv.Push("typing", socket.TypingPayload{SenderID: "peer", ReceiverID: "u1"}))
	waitUntil(t, func() bool { return scr.PeerTyping() })
	require.NoError(t, srv.Push("stopTyping", socket.TypingPayload{SenderID: "peer", ReceiverID: "u1"}))
	waitUntil(t, func() bool { return !scr.PeerTyping() })

	// Local debounce: a burst of keystrokes produces one typing and,
	// after the idle window, one stopTyping.
	scr.HandleTyping("h")
	scr.HandleTyping("he")
	scr.HandleTyping("hel")
	waitUntil(t, func() bool {
		return len(srv.ReceivedOfType("typing")) == 1 && len(srv.ReceivedOfType("stopTyping")) == 1
	})
}

func TestRemoteTypingClearedByMessage(t *testing.T) {
	s, srv := loggedInSession(t)
	require.NoError(t, s.Focus(context.Background()))
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	scr := s.OpenConversation("peer", "conv1")
	require.NoError(t, srv.Push("typing", socket.TypingPayload{SenderID: "peer", ReceiverID: "u1"}))
	waitUntil(t, func() bool { return scr.PeerTyping() })

	require.NoError(t, srv.Push("message", socket.MessagePayload{
		ID: "m1", ConversationID: "conv1", Sender: "peer", Receiver: "u1", Content: "done typing", Read: true,
	}))
	waitUntil(t, func() bool { return !scr.PeerTyping() })
}

func TestReadReceiptEvent_UpdatesStore(t *testing.T) {
	s, srv := loggedInSession(t)
	require.NoError(t, s.Focus(context.Background()))
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	scr := s.OpenConversation("peer", "conv1")
	_, err := scr.store.SendOptimistic("sent to peer")
	require.NoError(t, err)
	localID := scr.Messages()[0].ID
	scr.store.ConfirmSend(localID, "m1", false)

	require.NoError(t, srv.Push("messageRead", socket.MessageReadPayload{MessageID: "m1", ReceiverID: "peer"}))
	waitUntil(t, func() bool {
		m, ok := scr.store.Message("m1")
		return ok && m.Read
	})
}

func TestMessageUpdatedEvent_AppliesEdit(t *testing.T) {
	s, srv := loggedInSession(t)
	srv.AddMessages("conv1", backendtest.Message{ID: "m1", Content: "helo", Sender: backendtest.User{ID: "peer"}, Read: true})
	require.NoError(t, s.Focus(context.Background()))
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	scr := s.OpenConversation("peer", "conv1")
	require.NoError(t, scr.LoadHistory(context.Background()))

	require.NoError(t, srv.Push("messageUpdated", socket.MessageUpdatedPayload{MessageID: "m1", Content: "hello"}))
	waitUntil(t, func() bool {
		m, ok := scr.store.Message("m1")
		return ok && m.Text == "hello" && m.IsEdited
	})
}

func TestSend_FailureLeavesRetryableMessage(t *testing.T) {
	s, srv := loggedInSession(t)
	srv.FailSends(true)

	scr := s.OpenConversation("peer", "conv1")
	_, err := scr.Send(context.Background(), "will fail")
	require.Error(t, err)
	msgs := scr.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.DeliveryFailed, msgs[0].Delivery)

	srv.FailSends(false)
	_, err = scr.Send(context.Background(), "will land")
	require.NoError(t, err)
	msgs = scr.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.DeliveryConfirmed, msgs[1].Delivery)
}

func TestEdit_RoundTrip(t *testing.T) {
	s, srv := loggedInSession(t)
	srv.AddMessages("conv1", backendtest.Message{ID: "m1", Content: "helo", Sender: backendtest.User{ID: "u1"}})

	scr := s.OpenConversation("peer", "conv1")
	require.NoError(t, scr.LoadHistory(context.Background()))
	require.NoError(t, scr.Edit(context.Background(), "m1", "hello"))

	m, ok := scr.store.Message("m1")
	require.True(t, ok)
	assert.Equal(t, "hello", m.Text)
	assert.True(t, m.IsEdited)
}

func TestOpenConversation_ReplacesScreen(t *testing.T) {
	s, srv := loggedInSession(t)
	require.NoError(t, s.Focus(context.Background()))
	waitUntil(t, func() bool { return len(srv.ReceivedOfType("joinRoom")) == 1 })

	first := s.OpenConversation("peer", "conv1")
	second := s.OpenConversation("carol", "conv2")

	// Events route to the new screen only.
	require.NoError(t, srv.Push("typing", socket.TypingPayload{SenderID: "carol", ReceiverID: "u1"}))
	waitUntil(t, func() bool { return second.PeerTyping() })
	assert.False(t, first.PeerTyping())

	s.CloseConversation()
	require.NoError(t, srv.Push("typing", socket.TypingPayload{SenderID: "carol", ReceiverID: "u1"}))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, second.PeerTyping())
}

func TestActiveStatusSnapshotFeedsPresence(t *testing.T) {
	s, srv := loggedInSession(t)
	seen := time.Now().Add(-20 * time.Minute).UTC().Truncate(time.Second)
	srv.SetLastSeen("conv1", seen)
	srv.AddMessages("conv1", backendtest.Message{ID: "m1", Sender: backendtest.User{ID: "peer"}, Read: true})

	scr := s.OpenConversation("peer", "conv1")
	require.NoError(t, scr.LoadHistory(context.Background()))

	ts, ok := s.Presence().LastSeen("peer")
	require.True(t, ok)
	assert.True(t, ts.Equal(seen))
	assert.Equal(t, "Active 20m ago", scr.StatusText())
}

func TestListUsers(t *testing.T) {
	s, _ := loggedInSession(t)
	users, err := s.ListUsers(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
