package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shopfront/internal/domain"
	tokenrepo "shopfront/internal/repository/token"
)

// TokenPair is returned on register, login and refresh. ExpiredAt is the
// access token expiry in unix milliseconds.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiredAt    int64  `json:"expired_at"`
}

// Principal is the authenticated caller extracted from an access token.
type Principal struct {
	UserID string
	Role   domain.Role
}

func (p Principal) IsAdmin() bool { return p.Role == domain.RoleAdmin }

type claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type tokenManager struct {
	repo tokenrepo.Repository
	cfg  TokenConfig
	now  func() time.Time
}

func newTokenManager(repo tokenrepo.Repository, cfg TokenConfig, now func() time.Time) *tokenManager {
	return &tokenManager{repo: repo, cfg: cfg, now: now}
}

// Issue signs a fresh access/refresh pair and stores the refresh token hash.
func (m *tokenManager) Issue(ctx context.Context, u domain.User) (TokenPair, error) {
	now := m.now()
	access, accessExp, err := m.sign(u, m.cfg.AccessSecret, m.cfg.AccessTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := m.sign(u, m.cfg.RefreshSecret, m.cfg.RefreshTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := m.repo.Create(ctx, tokenrepo.RefreshToken{
		Hash:      hashToken(refresh),
		UserID:    u.ID,
		ExpiresAt: refreshExp,
	}); err != nil {
		return TokenPair{}, fmt.Errorf("tokens.Create: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiredAt: accessExp.UnixMilli()}, nil
}

// Verify validates an access token.
func (m *tokenManager) Verify(token string) (Principal, error) {
	c, err := m.parse(token, m.cfg.AccessSecret)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: c.Subject, Role: c.Role}, nil
}

// Consume validates a refresh token and deletes its stored hash so it cannot
// be used twice. It returns the owning user id.
func (m *tokenManager) Consume(ctx context.Context, token string) (string, error) {
	c, err := m.parse(token, m.cfg.RefreshSecret)
	if err != nil {
		return "", err
	}
	if err := m.repo.Delete(ctx, hashToken(token)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Unauthorized("refresh token revoked")
		}
		return "", fmt.Errorf("tokens.Delete: %w", err)
	}
	return c.Subject, nil
}

func (m *tokenManager) sign(u domain.User, secret string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (m *tokenManager) parse(token, secret string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || c.Subject == "" {
		return nil, domain.Unauthorized("invalid token")
	}
	return &c, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
