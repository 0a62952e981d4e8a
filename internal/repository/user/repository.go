package user

import (
	"context"

	"shopfront/internal/domain"
)

type Repository interface {
	// Create stores the user together with a freshly created main basket and
	// its main membership entry. Duplicate emails yield domain.ErrAlreadyExists.
	Create(ctx context.Context, u domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// AddMembership fails with domain.ErrAlreadyExists when the user already
	// has an entry for the basket.
	AddMembership(ctx context.Context, userID string, m domain.Membership) error
	// SetMembershipStatus moves an entry from one status to another and fails
	// with domain.ErrNotFound when no entry is in the from status.
	SetMembershipStatus(ctx context.Context, userID, basketID string, from, to domain.MembershipStatus) error
	// RemoveMembership never removes a main entry.
	RemoveMembership(ctx context.Context, userID, basketID string) error
}
