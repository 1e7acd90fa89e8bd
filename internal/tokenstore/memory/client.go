package memory

import (
	"context"
	"sync"

	"github.com/chatclient/internal/tokenstore"
)

// Client — in-memory реализация tokenstore.Store (для тестов и -dev без файла).
type Client struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func New() *Client {
	return &Client{tokens: make(map[string]string)}
}

func (c *Client) SetToken(ctx context.Context, userID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[userID] = token
	return nil
}

func (c *Client) GetToken(ctx context.Context, userID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[userID]
	if !ok {
		return "", tokenstore.ErrNotFound
	}
	return t, nil
}

func (c *Client) DeleteToken(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, userID)
	return nil
}

func (c *Client) Close() error { return nil }
