package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no token is stored for a user.
var ErrNotFound = errors.New("token not found")

// Store — хранилище авторизационного токена на устройстве.
// Реализации: bolt.Client (файл на устройстве), memory.Client (тесты).
type Store interface {
	SetToken(ctx context.Context, userID, token string) error
	GetToken(ctx context.Context, userID string) (string, error)
	DeleteToken(ctx context.Context, userID string) error
	Close() error
}
