// Package bolt stores auth tokens in a device-local bbolt file. Tokens never
// live in plain process config; everything goes through this store.
package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/chatclient/internal/tokenstore"
	bolt "go.etcd.io/bbolt"
)

var bucketTokens = []byte("auth_tokens")

type Client struct {
	db *bolt.DB
}

// New opens (or creates) the token database at path.
func New(path string) (*Client, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTokens)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init token bucket: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) SetToken(ctx context.Context, userID, token string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(userID), []byte(token))
	})
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

func (c *Client) GetToken(ctx context.Context, userID string) (string, error) {
	var token string
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTokens).Get([]byte(userID))
		if v == nil {
			return tokenstore.ErrNotFound
		}
		token = string(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (c *Client) DeleteToken(ctx context.Context, userID string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(userID))
	})
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.db.Close() }
