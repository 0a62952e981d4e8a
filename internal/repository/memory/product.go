package memory

import (
	"context"
	"slices"

	"github.com/samber/lo"

	"shopfront/internal/domain"
	"shopfront/internal/repository/product"
)

type productRepo struct{ s *Store }

func (r productRepo) Create(_ context.Context, p domain.Product) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := r.s.products[p.ID]; exists {
		return nil, domain.ErrAlreadyExists
	}
	now := r.s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Colors = slices.Clone(p.Colors)
	p.Sizes = slices.Clone(p.Sizes)
	r.s.products[p.ID] = p
	return cloneProduct(p), nil
}

func (r productRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (r productRepo) List(_ context.Context, f product.Filter) ([]domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Product
	for _, p := range r.s.products {
		if matches(p, f) {
			out = append(out, *cloneProduct(p))
		}
	}

	slices.SortStableFunc(out, func(a, b domain.Product) int {
		switch f.Sort {
		case product.SortPriceDesc:
			if c := b.Price.Cmp(a.Price); c != 0 {
				return c
			}
		case product.SortPriceAsc:
			if c := a.Price.Cmp(b.Price); c != 0 {
				return c
			}
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r productRepo) Update(_ context.Context, p domain.Product) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.products[p.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cur.CategoryID = p.CategoryID
	cur.Name = p.Name
	cur.Price = p.Price
	cur.Currency = p.Currency
	cur.Image = p.Image
	cur.Colors = slices.Clone(p.Colors)
	cur.Sizes = slices.Clone(p.Sizes)
	cur.UpdatedAt = r.s.now()
	r.s.products[p.ID] = cur
	return cloneProduct(cur), nil
}

func (r productRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r productRepo) Reserve(_ context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return domain.Validation("quantity must be positive")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Stock < quantity {
		return domain.ErrInsufficientStock
	}
	p.Stock -= quantity
	p.Bought += quantity
	p.UpdatedAt = r.s.now()
	r.s.products[id] = p
	return nil
}

func (r productRepo) Release(_ context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return domain.Validation("quantity must be positive")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Stock += quantity
	p.Bought = max(p.Bought-quantity, 0)
	p.UpdatedAt = r.s.now()
	r.s.products[id] = p
	return nil
}

func (r productRepo) Restock(_ context.Context, id string, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, domain.Validation("quantity must be positive")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.Stock += quantity
	p.UpdatedAt = r.s.now()
	r.s.products[id] = p
	return cloneProduct(p), nil
}

func matches(p domain.Product, f product.Filter) bool {
	switch {
	case f.CategoryID != "" && p.CategoryID != f.CategoryID:
		return false
	case len(f.Colors) > 0 && !lo.Some(p.Colors, f.Colors):
		return false
	case len(f.Sizes) > 0 && !lo.Some(p.Sizes, f.Sizes):
		return false
	case f.MinPrice != nil && p.Price.LessThan(*f.MinPrice):
		return false
	case f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice):
		return false
	case f.CreatedAfter != nil && p.CreatedAt.Before(*f.CreatedAfter):
		return false
	case p.Bought < f.MinBought:
		return false
	}
	return true
}

func cloneProduct(p domain.Product) *domain.Product {
	p.Colors = slices.Clone(p.Colors)
	p.Sizes = slices.Clone(p.Sizes)
	return &p
}
