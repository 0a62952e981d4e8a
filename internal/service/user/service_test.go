package user

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfront/internal/domain"
	"shopfront/internal/repository/memory"
)

var testTokens = TokenConfig{
	AccessSecret:  "access",
	RefreshSecret: "refresh",
	AccessTTL:     2 * time.Hour,
	RefreshTTL:    365 * 24 * time.Hour,
}

func newService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	stores := memory.New().Stores()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(stores.Users, stores.Tokens, testTokens, nil).WithClock(func() time.Time { return now })
	return svc, &now
}

func validInput() RegisterInput {
	return RegisterInput{
		Email:     gofakeit.Email(),
		Password:  "Secret123",
		Phone:     "+4915112345678",
		FirstName: gofakeit.FirstName(),
		Country:   "DE",
		City:      "Berlin",
		Address:   "Alexanderplatz 1",
	}
}

func TestRegisterCreatesMainBasket(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.RoleUser, u.Role)
	require.Len(t, u.Baskets, 1)
	assert.Equal(t, domain.MembershipMain, u.Baskets[0].Status)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	p, err := svc.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.False(t, p.IsAdmin())
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	existing := validInput()
	_, _, err := svc.Register(ctx, existing)
	require.NoError(t, err)

	cases := []struct {
		name    string
		mutate  func(in *RegisterInput)
		wantMsg string
	}{
		{"bad email", func(in *RegisterInput) { in.Email = "nope" }, "email is invalid"},
		{"bad phone", func(in *RegisterInput) { in.Phone = "12" }, "phone is invalid"},
		{"short password", func(in *RegisterInput) { in.Password = "Ab1" }, "password must be at least 8 characters"},
		{"weak password", func(in *RegisterInput) { in.Password = "alllowercase1" }, "password must contain upper and lower case letters and a digit"},
		{"missing city", func(in *RegisterInput) { in.City = " " }, "country, city and address are required"},
		{"busy email", func(in *RegisterInput) { in.Email = existing.Email }, "email is busy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, _, err := svc.Register(ctx, in)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			assert.EqualError(t, err, tc.wantMsg)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := validInput()
	_, _, err := svc.Register(ctx, in)
	require.NoError(t, err)

	pair, err := svc.Login(ctx, in.Email, in.Password)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	_, err = svc.Login(ctx, in.Email, "Wrong1234")
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = svc.Login(ctx, "ghost@example.com", in.Password)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized), "used refresh token must be rejected")

	_, err = svc.Refresh(ctx, next.AccessToken)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized), "access token is not a refresh token")
}

func TestAccessTokenExpires(t *testing.T) {
	svc, now := newService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	*now = now.Add(3 * time.Hour)
	_, err = svc.Authenticate(pair.AccessToken)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))
}

func TestPurgeExpiredTokens(t *testing.T) {
	svc, now := newService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	n, err := svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	*now = now.Add(testTokens.RefreshTTL + time.Minute)
	n, err = svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))
}
