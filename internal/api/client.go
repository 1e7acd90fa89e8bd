// Package api is the REST client for the external chat backend. All
// authenticated calls carry a bearer token read from the device token store
// per request; nothing is cached in plain config.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnauthorized — токен отсутствует или отвергнут сервером; UI должен
	// отправить пользователя на логин, ядро только сообщает о состоянии.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBadPayload — ответ сервера не распарсился; на границе компонента
	// трактуется как «нет данных», а не как исключение.
	ErrBadPayload = errors.New("malformed server payload")
	// ErrNoConversation — истории ещё нет (первый диалог с пользователем).
	ErrNoConversation = errors.New("no conversation found")
)

// TokenSource выдаёт текущий bearer-токен. Реализуется поверх tokenstore.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a plain function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Client вызывает REST-бэкенд мессенджера.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient создаёт клиент. timeout ограничивает каждый запрос; зависший
// вызов превращается в повторяемую ошибку, а не в вечный pending.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Login обменивает учётные данные на bearer-токен. Не требует токена.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return LoginResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return LoginResult{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return LoginResult{}, fmt.Errorf("login: status %d", resp.StatusCode)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LoginResult{}, fmt.Errorf("login: %w: %v", ErrBadPayload, err)
	}
	if !out.Success || out.Token == "" {
		return LoginResult{}, ErrUnauthorized
	}
	return LoginResult{Token: out.Token, User: out.User}, nil
}

// Profile возвращает профиль текущего пользователя.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var out profileResponse
	if err := c.getJSON(ctx, "/users/profile", &out); err != nil {
		return User{}, err
	}
	if !out.Success {
		return User{}, fmt.Errorf("profile: %w", ErrBadPayload)
	}
	return out.Data, nil
}

// ListUsers возвращает страницу пользователей (экран «people»).
func (c *Client) ListUsers(ctx context.Context, page, limit int) ([]User, error) {
	var out listUsersResponse
	path := "/users?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListConversations возвращает страницу списка диалогов.
func (c *Client) ListConversations(ctx context.Context, page, limit int) (ConversationsPage, error) {
	var out listConversationsResponse
	path := "/conversations?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return ConversationsPage{}, err
	}
	if !out.Success {
		return ConversationsPage{}, fmt.Errorf("list conversations: %s: %w", out.Message, ErrBadPayload)
	}
	return ConversationsPage{Conversations: out.Data, TotalPages: out.Meta.TotalPages}, nil
}

// FetchMessages возвращает страницу истории диалога (более старые сообщения
// на следующих страницах) и снимок activeStatus собеседника.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, page, limit int) (MessagesPage, error) {
	var out fetchMessagesResponse
	path := "/conversations/" + conversationID + "/messages?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return MessagesPage{}, err
	}
	if out.Status != "success" {
		if out.Message == "No conversation found" {
			return MessagesPage{}, ErrNoConversation
		}
		return MessagesPage{}, fmt.Errorf("fetch messages: %s: %w", out.Message, ErrBadPayload)
	}
	p := MessagesPage{Messages: out.Data, HasMore: out.HasMore}
	if out.ActiveStatus != "" {
		if ts, err := time.Parse(time.RFC3339, out.ActiveStatus); err == nil {
			p.ActiveStatus = ts
		}
	}
	return p, nil
}

// SendMessage persists a message and returns the server-assigned record.
func (c *Client) SendMessage(ctx context.Context, receiverID, content string) (Message, error) {
	body, err := json.Marshal(sendMessageRequest{ReceiverID: receiverID, Content: content})
	if err != nil {
		return Message{}, err
	}
	var out sendMessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/messages", body, &out); err != nil {
		return Message{}, err
	}
	if out.Status != "success" {
		return Message{}, fmt.Errorf("send message: %w", ErrBadPayload)
	}
	return out.Data.Message, nil
}

// MarkRead marks a single message read on the server.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.doJSON(ctx, http.MethodPatch, "/messages/"+messageID+"/read", nil, nil)
}

// EditMessage replaces a message's content and returns the updated record.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (Message, error) {
	body, err := json.Marshal(editMessageRequest{Content: content})
	if err != nil {
		return Message{}, err
	}
	var out editMessageResponse
	if err := c.doJSON(ctx, http.MethodPatch, "/messages/"+messageID, body, &out); err != nil {
		return Message{}, err
	}
	if out.Status != "success" {
		return Message{}, fmt.Errorf("edit message: %w", ErrBadPayload)
	}
	return out.Data.Message, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// doJSON выполняет авторизованный запрос и декодирует JSON-ответ в out (если out != nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrBadPayload, err)
	}
	return nil
}
