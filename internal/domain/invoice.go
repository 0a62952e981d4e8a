package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceLine is a frozen copy of a purchased product selection.
type InvoiceLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Option    Option          `json:"options"`
}

// Invoice is immutable after creation except for the Paid, Fulfilled and
// Expired flags.
type Invoice struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user"`
	DeliveryAddress Address       `json:"deliveryAddress"`
	Lines           []InvoiceLine `json:"products"`
	Paid            bool          `json:"paid"`
	Fulfilled       bool          `json:"fulfilled"`
	Expired         bool          `json:"expired"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Totals sums line prices per currency.
func (i Invoice) Totals() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, l := range i.Lines {
		out[l.Currency] = out[l.Currency].Add(l.Price)
	}
	return out
}

// ExpiryState tracks the write-ahead record of an invoice's reservations.
type ExpiryState string

const (
	ExpiryPending  ExpiryState = "pending"
	ExpiryReleased ExpiryState = "released"
	ExpirySettled  ExpiryState = "settled"
)

type ReservationExpiry struct {
	InvoiceID  string
	ExpiresAt  time.Time
	State      ExpiryState
	ResolvedAt *time.Time
}

// Due reports whether the expiry still needs resolving at now.
func (e ReservationExpiry) Due(now time.Time) bool {
	return e.State == ExpiryPending && !e.ExpiresAt.After(now)
}
