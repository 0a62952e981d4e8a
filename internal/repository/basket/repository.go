package basket

import (
	"context"

	"shopfront/internal/domain"
)

// Repository persists baskets and their line items. Memberships live with the
// user repository.
type Repository interface {
	// Create inserts an empty basket owned by ownerID together with the
	// owner's membership entry.
	Create(ctx context.Context, ownerID string, status domain.MembershipStatus) (*domain.Basket, error)
	GetByID(ctx context.Context, id string) (*domain.Basket, error)
	AddLine(ctx context.Context, basketID string, line domain.BasketLine) error
	// RemoveLines drops every line referencing productID and reports how many
	// were removed.
	RemoveLines(ctx context.Context, basketID, productID string) (int, error)
	// DeleteLines drops the given lines only; lines added since they were read
	// are kept.
	DeleteLines(ctx context.Context, basketID string, lineIDs []int64) (int, error)
	Delete(ctx context.Context, id string) error
}
