package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"shopfront/internal/domain"
)

type Sort int

const (
	SortNone Sort = iota
	SortPriceDesc
	SortPriceAsc
	SortNewest
)

// Filter narrows product listings. Empty fields do not filter; slices match
// products carrying any of the given values.
type Filter struct {
	CategoryID   string
	Colors       []string
	Sizes        []string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	CreatedAfter *time.Time
	MinBought    int
	Sort         Sort
}

// Repository persists products and acts as the inventory ledger.
type Repository interface {
	Create(ctx context.Context, p domain.Product) (*domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, f Filter) ([]domain.Product, error)
	// Update overwrites the catalog fields of p (category, name, price,
	// currency, image, colors, sizes). Stock and bought are left alone.
	Update(ctx context.Context, p domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error

	// Reserve atomically moves quantity units from stock to bought. It fails
	// with domain.ErrInsufficientStock without changing anything when stock
	// is lower than quantity.
	Reserve(ctx context.Context, id string, quantity int) error
	// Release is the inverse of Reserve. It is not idempotent.
	Release(ctx context.Context, id string, quantity int) error
	Restock(ctx context.Context, id string, quantity int) (*domain.Product, error)
}
