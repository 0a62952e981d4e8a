package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	tokenrepo "shopfront/internal/repository/token"
	userrepo "shopfront/internal/repository/user"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// Service handles registration, login and token refresh.
type Service struct {
	users       userrepo.Repository
	tokens      *tokenManager
	logger      *zap.Logger
	passwordMin int
}

func New(users userrepo.Repository, tokens tokenrepo.Repository, cfg TokenConfig, logger *zap.Logger) *Service {
	return &Service{
		users:       users,
		tokens:      newTokenManager(tokens, cfg, func() time.Time { return time.Now().UTC() }),
		logger:      logging.OrNop(logger).With(zap.String("service", "user")),
		passwordMin: 8,
	}
}

// WithClock replaces the clock used for token timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.tokens.now = now
	return s
}

type RegisterInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Phone      string `json:"phone"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Patronymic string `json:"patronymic"`
	Country    string `json:"country"`
	City       string `json:"city"`
	Address    string `json:"address"`
}

// Register creates a user with its main basket and logs them in. The role is
// always user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, TokenPair{}, domain.Validation("email is invalid")
	}
	phone := strings.TrimSpace(in.Phone)
	if !phonePattern.MatchString(phone) {
		return nil, TokenPair{}, domain.Validation("phone is invalid")
	}
	if err := validatePassword(in.Password, s.passwordMin); err != nil {
		return nil, TokenPair{}, err
	}
	addr := domain.Address{
		Country: strings.TrimSpace(in.Country),
		City:    strings.TrimSpace(in.City),
		Street:  strings.TrimSpace(in.Address),
	}
	if addr.Country == "" || addr.City == "" || addr.Street == "" {
		return nil, TokenPair{}, domain.Validation("country, city and address are required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, TokenPair{}, domain.Internal(err)
	}

	u, err := s.users.Create(ctx, domain.User{
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hashed),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Patronymic:   strings.TrimSpace(in.Patronymic),
		Address:      addr,
		Role:         domain.RoleUser,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, TokenPair{}, domain.Validation("email is busy")
		}
		return nil, TokenPair{}, domain.Internal(fmt.Errorf("users.Create: %w", err))
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("main_basket_id", u.MainBasketID()))

	pair, err := s.tokens.Issue(ctx, *u)
	if err != nil {
		return nil, TokenPair{}, domain.Internal(err)
	}
	return u, pair, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return TokenPair{}, domain.Validation("email or password incorrect")
	}
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, domain.Validation("email or password incorrect")
		}
		return TokenPair{}, domain.Internal(fmt.Errorf("users.GetByEmail: %w", err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, domain.Validation("email or password incorrect")
	}

	pair, err := s.tokens.Issue(ctx, *u)
	if err != nil {
		return TokenPair{}, domain.Internal(err)
	}
	return pair, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, domain.Unauthorized("refresh token required")
	}
	userID, err := s.tokens.Consume(ctx, refreshToken)
	if err != nil {
		if domain.IsKind(err, domain.KindUnauthorized) {
			return TokenPair{}, err
		}
		return TokenPair{}, domain.Internal(err)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, domain.Unauthorized("user no longer exists")
		}
		return TokenPair{}, domain.Internal(fmt.Errorf("users.GetByID: %w", err))
	}
	pair, err := s.tokens.Issue(ctx, *u)
	if err != nil {
		return TokenPair{}, domain.Internal(err)
	}
	return pair, nil
}

func (s *Service) Authenticate(accessToken string) (Principal, error) {
	return s.tokens.Verify(accessToken)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("user not found")
		}
		return nil, domain.Internal(fmt.Errorf("users.GetByID: %w", err))
	}
	return u, nil
}

func validatePassword(pw string, min int) error {
	if len(pw) < min {
		return domain.Validation("password must be at least %d characters", min)
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return domain.Validation("password must contain upper and lower case letters and a digit")
	}
	return nil
}

// PurgeExpiredTokens deletes stored refresh tokens that can no longer be used.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.repo.DeleteExpired(ctx, s.tokens.now())
	if err != nil {
		return 0, domain.Internal(fmt.Errorf("tokens.DeleteExpired: %w", err))
	}
	if n > 0 {
		s.logger.Info("expired refresh tokens purged", zap.Int64("count", n))
	}
	return n, nil
}
