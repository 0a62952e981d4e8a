package invoice

import (
	"context"
	"time"

	"shopfront/internal/domain"
)

type Repository interface {
	// Create stores the invoice, its lines and a pending reservation expiry
	// as one unit.
	Create(ctx context.Context, inv domain.Invoice, expiresAt time.Time) (*domain.Invoice, error)
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	// GetForUpdate locks the invoice row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Invoice, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Invoice, error)
	MarkPaid(ctx context.Context, id string) error
	MarkFulfilled(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string) error

	ListDueExpiries(ctx context.Context, now time.Time, limit int) ([]domain.ReservationExpiry, error)
	// ClaimExpiry locks a pending, due expiry. It returns domain.ErrNotFound
	// when the record is resolved, not yet due or claimed by someone else.
	ClaimExpiry(ctx context.Context, invoiceID string, now time.Time) (*domain.ReservationExpiry, error)
	ResolveExpiry(ctx context.Context, invoiceID string, state domain.ExpiryState, at time.Time) error
	GetExpiry(ctx context.Context, invoiceID string) (*domain.ReservationExpiry, error)
}
