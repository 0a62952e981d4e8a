package memory

import (
	"context"
	"time"

	"shopfront/internal/domain"
	"shopfront/internal/repository/token"
)

type tokenRepo struct{ s *Store }

func (r tokenRepo) Create(_ context.Context, t token.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.tokens[t.Hash]; exists {
		return domain.ErrAlreadyExists
	}
	t.CreatedAt = r.s.now()
	r.s.tokens[t.Hash] = t
	return nil
}

func (r tokenRepo) Get(_ context.Context, hash string) (*token.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tokens[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r tokenRepo) Delete(_ context.Context, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tokens[hash]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.tokens, hash)
	return nil
}

func (r tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for h, t := range r.s.tokens {
		if !t.ExpiresAt.After(now) {
			delete(r.s.tokens, h)
			n++
		}
	}
	return n, nil
}
