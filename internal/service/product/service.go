package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	productrepo "shopfront/internal/repository/product"
)

const defaultStock = 100

type Service struct {
	repo   productrepo.Repository
	logger *zap.Logger
}

func New(repo productrepo.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logging.OrNop(logger).With(zap.String("service", "product"))}
}

type CreateInput struct {
	CategoryID string          `json:"category"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Image      string          `json:"image"`
	Colors     []string        `json:"colors"`
	Sizes      []string        `json:"sizes"`
	Stock      *int            `json:"stock"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Product, error) {
	p, err := in.toProduct()
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("products.Create: %w", err))
	}
	s.logger.Info("product created", zap.String("product_id", created.ID), zap.Int("stock", created.Stock))
	return created, nil
}

func (in CreateInput) toProduct() (domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Product{}, domain.Validation("name is required")
	}
	if strings.TrimSpace(in.CategoryID) == "" {
		return domain.Product{}, domain.Validation("category is required")
	}
	if in.Price.IsNegative() {
		return domain.Product{}, domain.Validation("price must not be negative")
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(in.Currency)))
	if err != nil {
		return domain.Product{}, domain.Validation("currency %q is not a valid ISO 4217 code", in.Currency)
	}
	colors := normalizeSet(in.Colors)
	sizes := normalizeSet(in.Sizes)
	if len(colors) == 0 || len(sizes) == 0 {
		return domain.Product{}, domain.Validation("colors and sizes must not be empty")
	}
	stock := defaultStock
	if in.Stock != nil {
		stock = *in.Stock
	}
	if stock < 0 {
		return domain.Product{}, domain.Validation("stock must not be negative")
	}
	return domain.Product{
		CategoryID: strings.TrimSpace(in.CategoryID),
		Name:       name,
		Price:      in.Price.Round(2),
		Currency:   unit.String(),
		Image:      strings.TrimSpace(in.Image),
		Colors:     colors,
		Sizes:      sizes,
		Stock:      stock,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("product not found").With("productId", id)
		}
		return nil, domain.Internal(fmt.Errorf("products.GetByID: %w", err))
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f productrepo.Filter) ([]domain.Product, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, domain.Validation("minPrice must not exceed maxPrice")
	}
	f.Colors = normalizeSet(f.Colors)
	f.Sizes = normalizeSet(f.Sizes)
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("products.List: %w", err))
	}
	if list == nil {
		list = []domain.Product{}
	}
	return list, nil
}

// UpdateInput is a partial product edit; nil fields keep their current value.
type UpdateInput struct {
	CategoryID *string          `json:"category"`
	Name       *string          `json:"name"`
	Price      *decimal.Decimal `json:"price"`
	Currency   *string          `json:"currency"`
	Image      *string          `json:"image"`
	Colors     []string         `json:"colors"`
	Sizes      []string         `json:"sizes"`
}

// Update edits catalog fields only. Invoices keep the values frozen at
// checkout and stock is changed through Restock.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Product, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := CreateInput{
		CategoryID: lo.FromPtrOr(in.CategoryID, cur.CategoryID),
		Name:       lo.FromPtrOr(in.Name, cur.Name),
		Price:      lo.FromPtrOr(in.Price, cur.Price),
		Currency:   lo.FromPtrOr(in.Currency, cur.Currency),
		Image:      lo.FromPtrOr(in.Image, cur.Image),
		Colors:     lo.Ternary(in.Colors != nil, in.Colors, cur.Colors),
		Sizes:      lo.Ternary(in.Sizes != nil, in.Sizes, cur.Sizes),
		Stock:      &cur.Stock,
	}
	p, err := merged.toProduct()
	if err != nil {
		return nil, err
	}
	p.ID = id

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("product not found").With("productId", id)
		}
		return nil, domain.Internal(fmt.Errorf("products.Update: %w", err))
	}
	s.logger.Info("product updated", zap.String("product_id", id))
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validation("product not found").With("productId", id)
		}
		return domain.Internal(fmt.Errorf("products.Delete: %w", err))
	}
	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *Service) Restock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, domain.Validation("quantity must be positive")
	}
	p, err := s.repo.Restock(ctx, id, quantity)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("product not found").With("productId", id)
		}
		return nil, domain.Internal(fmt.Errorf("products.Restock: %w", err))
	}
	s.logger.Info("product restocked", zap.String("product_id", id), zap.Int("added", quantity), zap.Int("stock", p.Stock))
	return p, nil
}

func normalizeSet(values []string) []string {
	trimmed := lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = strings.TrimSpace(v)
		return v, v != ""
	})
	return lo.Uniq(trimmed)
}
