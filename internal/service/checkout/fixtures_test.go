package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shopfront/internal/domain"
	"shopfront/internal/repository"
	basketrepo "shopfront/internal/repository/basket"
	invoicerepo "shopfront/internal/repository/invoice"
	"shopfront/internal/repository/memory"
)

type fixture struct {
	store  *memory.Store
	stores repository.Stores
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	f.store = memory.New().WithClock(func() time.Time { return f.now })
	f.stores = f.store.Stores()
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) user(t *testing.T) *domain.User {
	t.Helper()
	u, err := f.stores.Users.Create(context.Background(), domain.User{
		Email:        gofakeit.Email(),
		Phone:        "+15550000000",
		PasswordHash: "x",
		Address:      domain.Address{Country: "US", City: gofakeit.City(), Street: gofakeit.Street()},
		Role:         domain.RoleUser,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) product(t *testing.T, stock int) *domain.Product {
	t.Helper()
	p, err := f.stores.Products.Create(context.Background(), domain.Product{
		CategoryID: "tees",
		Name:       gofakeit.ProductName(),
		Price:      decimal.RequireFromString("19.90"),
		Currency:   "USD",
		Colors:     []string{"red", "black"},
		Sizes:      []string{"M", "L"},
		Stock:      stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) addLine(t *testing.T, basketID, productID string, opt domain.Option) {
	t.Helper()
	require.NoError(t, f.stores.Baskets.AddLine(context.Background(), basketID, domain.BasketLine{ProductID: productID, Option: opt}))
}

func (f *fixture) stock(t *testing.T, productID string) (stock, bought int) {
	t.Helper()
	p, err := f.stores.Products.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock, p.Bought
}

func (f *fixture) service(opts ...Option) *Service {
	return New(f.stores, time.Hour, nil, append([]Option{WithClock(f.clock)}, opts...)...)
}

func (f *fixture) sweeper(opts ...SweeperOption) *Sweeper {
	return NewSweeper(f.store, f.stores.Invoices, SweeperConfig{Interval: time.Minute, BatchSize: 10}, nil,
		append([]SweeperOption{SweeperClock(f.clock)}, opts...)...)
}

var redM = domain.Option{Color: "red", Size: "M"}

var errBoom = errors.New("boom")

// failingInvoices makes invoice creation fail while delegating everything else.
type failingInvoices struct {
	repository.Stores
}

func (f failingInvoices) stores() repository.Stores {
	s := f.Stores
	s.Invoices = brokenInvoiceRepo{s.Invoices}
	return s
}

type brokenInvoiceRepo struct {
	invoicerepo.Repository
}

func (brokenInvoiceRepo) Create(context.Context, domain.Invoice, time.Time) (*domain.Invoice, error) {
	return nil, errBoom
}

// failingTx runs transactions on the memory store with invoice creation broken.
type failingTx struct {
	store *memory.Store
	calls int
}

func (f *failingTx) InTx(ctx context.Context, fn func(repository.Stores) error) error {
	f.calls++
	return f.store.InTx(ctx, func(s repository.Stores) error {
		return fn(failingInvoices{s}.stores())
	})
}

// busyBasket lets a co-owner add a line right after the checkout has read the
// basket.
type busyBasket struct {
	basketrepo.Repository
	afterRead func()
}

func (b *busyBasket) GetByID(ctx context.Context, id string) (*domain.Basket, error) {
	basket, err := b.Repository.GetByID(ctx, id)
	if err == nil && b.afterRead != nil {
		b.afterRead()
		b.afterRead = nil
	}
	return basket, err
}
