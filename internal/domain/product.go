package domain

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Option is a chosen product variant.
type Option struct {
	Color string `json:"color"`
	Size  string `json:"size"`
}

type Product struct {
	ID         string          `json:"id"`
	CategoryID string          `json:"categoryId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Image      string          `json:"image,omitempty"`
	Colors     []string        `json:"colors"`
	Sizes      []string        `json:"sizes"`
	Stock      int             `json:"stock"`
	Bought     int             `json:"bought"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Offers fails with a validation error unless opt is one of the product's variants.
func (p Product) Offers(opt Option) error {
	if !lo.Contains(p.Colors, opt.Color) {
		return Validation("no picked color").With("color", opt.Color).With("productId", p.ID)
	}
	if !lo.Contains(p.Sizes, opt.Size) {
		return Validation("no picked size").With("size", opt.Size).With("productId", p.ID)
	}
	return nil
}
