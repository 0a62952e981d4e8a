package token

import (
	"context"
	"time"
)

// RefreshToken is a stored refresh token. Only the hash of the signed token
// is persisted.
type RefreshToken struct {
	Hash      string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, token RefreshToken) error
	Get(ctx context.Context, hash string) (*RefreshToken, error)
	Delete(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
