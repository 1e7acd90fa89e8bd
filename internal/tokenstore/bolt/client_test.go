package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chatclient/internal/tokenstore"
)

func openTemp(t *testing.T) *Client {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestTokenRoundTrip(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	if err := c.SetToken(ctx, "u1", "tok-abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.GetToken(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "tok-abc" {
		t.Errorf("got %q, want tok-abc", got)
	}

	// Overwrite replaces the stored token.
	if err := c.SetToken(ctx, "u1", "tok-def"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ = c.GetToken(ctx, "u1")
	if got != "tok-def" {
		t.Errorf("got %q, want tok-def", got)
	}
}

func TestGetToken_Missing(t *testing.T) {
	c := openTemp(t)
	_, err := c.GetToken(context.Background(), "nobody")
	if !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteToken(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	if err := c.SetToken(ctx, "u1", "tok-abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.DeleteToken(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.GetToken(ctx, "u1"); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("got %v after delete, want ErrNotFound", err)
	}

	// Deleting a missing token is not an error.
	if err := c.DeleteToken(ctx, "u1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.db")
	ctx := context.Background()

	c, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.SetToken(ctx, "u1", "tok-abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.Close()

	c, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	got, err := c.GetToken(ctx, "u1")
	if err != nil || got != "tok-abc" {
		t.Errorf("got %q %v after reopen, want tok-abc", got, err)
	}
}
