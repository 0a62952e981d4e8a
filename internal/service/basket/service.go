package basket

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	basketrepo "shopfront/internal/repository/basket"
	productrepo "shopfront/internal/repository/product"
	userrepo "shopfront/internal/repository/user"
)

type checkouter interface {
	CheckoutBasket(ctx context.Context, purchaserID, basketID string) (*domain.Invoice, error)
}

// Service manages basket contents and who may act on a basket.
type Service struct {
	baskets  basketrepo.Repository
	users    userrepo.Repository
	products productrepo.Repository
	checkout checkouter
	logger   *zap.Logger
}

func New(baskets basketrepo.Repository, users userrepo.Repository, products productrepo.Repository, checkout checkouter, logger *zap.Logger) *Service {
	return &Service{
		baskets:  baskets,
		users:    users,
		products: products,
		checkout: checkout,
		logger:   logging.OrNop(logger).With(zap.String("service", "basket")),
	}
}

// Get returns the basket when userID holds a main or accepted membership.
func (s *Service) Get(ctx context.Context, userID, basketID string) (*domain.Basket, error) {
	if _, err := s.member(ctx, userID, basketID); err != nil {
		return nil, err
	}
	return s.load(ctx, basketID)
}

// AddLine appends a product selection. Stock is not checked until checkout.
func (s *Service) AddLine(ctx context.Context, userID, basketID, productID string, opt domain.Option) (*domain.Basket, error) {
	if _, err := s.member(ctx, userID, basketID); err != nil {
		return nil, err
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("product not found").With("productId", productID)
		}
		return nil, domain.Internal(fmt.Errorf("products.GetByID: %w", err))
	}
	if err := p.Offers(opt); err != nil {
		return nil, err
	}
	if err := s.baskets.AddLine(ctx, basketID, domain.BasketLine{ProductID: p.ID, Option: opt}); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("basket not found").With("basketId", basketID)
		}
		return nil, domain.Internal(fmt.Errorf("baskets.AddLine: %w", err))
	}
	return s.load(ctx, basketID)
}

// RemoveLine drops every line of the given product.
func (s *Service) RemoveLine(ctx context.Context, userID, basketID, productID string) (*domain.Basket, error) {
	if _, err := s.member(ctx, userID, basketID); err != nil {
		return nil, err
	}
	n, err := s.baskets.RemoveLines(ctx, basketID, productID)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("baskets.RemoveLines: %w", err))
	}
	s.logger.Debug("basket lines removed", zap.String("basket_id", basketID), zap.String("product_id", productID), zap.Int("removed", n))
	return s.load(ctx, basketID)
}

func (s *Service) Checkout(ctx context.Context, userID, basketID string) (*domain.Invoice, error) {
	return s.checkout.CheckoutBasket(ctx, userID, basketID)
}

func (s *Service) ListBaskets(ctx context.Context, userID string) ([]domain.Membership, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Baskets, nil
}

// AddBasket creates an extra basket owned by userID.
func (s *Service) AddBasket(ctx context.Context, userID string) ([]domain.Membership, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	b, err := s.baskets.Create(ctx, userID, domain.MembershipAccepted)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("baskets.Create: %w", err))
	}
	s.logger.Info("basket created", zap.String("basket_id", b.ID), zap.String("owner_id", userID))
	return s.ListBaskets(ctx, userID)
}

// RemoveBasket deletes a basket owned by userID. The main basket cannot be
// removed.
func (s *Service) RemoveBasket(ctx context.Context, userID, basketID string) ([]domain.Membership, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	m, ok := u.Membership(basketID)
	if !ok {
		return nil, domain.Validation("basket not found").With("basketId", basketID)
	}
	if m.Status == domain.MembershipMain {
		return nil, domain.Validation("you cannot delete main basket")
	}
	b, err := s.load(ctx, basketID)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(userID) {
		return nil, domain.Forbidden("only the owner can delete a basket")
	}
	if err := s.baskets.Delete(ctx, basketID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Internal(fmt.Errorf("baskets.Delete: %w", err))
	}
	s.logger.Info("basket deleted", zap.String("basket_id", basketID), zap.String("owner_id", userID))
	return s.ListBaskets(ctx, userID)
}

// Invite adds a pending membership for targetID. Only the owner may invite.
func (s *Service) Invite(ctx context.Context, requesterID, basketID, targetID string) error {
	if err := s.requireOwner(ctx, requesterID, basketID); err != nil {
		return err
	}
	target, err := s.user(ctx, targetID)
	if err != nil {
		return err
	}
	if _, exists := target.Membership(basketID); exists {
		return domain.Validation("user in basket").With("userId", targetID)
	}
	err = s.users.AddMembership(ctx, targetID, domain.Membership{BasketID: basketID, Status: domain.MembershipPending})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		return domain.Validation("user in basket").With("userId", targetID)
	case err != nil:
		return domain.Internal(fmt.Errorf("users.AddMembership: %w", err))
	}
	s.logger.Info("user invited", zap.String("basket_id", basketID), zap.String("user_id", targetID))
	return nil
}

// Kick removes targetID's membership. Only the owner may kick, and main
// entries are never removed.
func (s *Service) Kick(ctx context.Context, requesterID, basketID, targetID string) error {
	if err := s.requireOwner(ctx, requesterID, basketID); err != nil {
		return err
	}
	if targetID == requesterID {
		return domain.Validation("owner cannot leave own basket")
	}
	err := s.users.RemoveMembership(ctx, targetID, basketID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.Validation("user is not in basket").With("userId", targetID)
	case err != nil:
		return domain.Internal(fmt.Errorf("users.RemoveMembership: %w", err))
	}
	s.logger.Info("user kicked", zap.String("basket_id", basketID), zap.String("user_id", targetID))
	return nil
}

// AcceptInvite moves a pending membership to accepted.
func (s *Service) AcceptInvite(ctx context.Context, userID, basketID string) ([]domain.Membership, error) {
	err := s.users.SetMembershipStatus(ctx, userID, basketID, domain.MembershipPending, domain.MembershipAccepted)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.Validation("no pending invite").With("basketId", basketID)
	case err != nil:
		return nil, domain.Internal(fmt.Errorf("users.SetMembershipStatus: %w", err))
	}
	return s.ListBaskets(ctx, userID)
}

func (s *Service) member(ctx context.Context, userID, basketID string) (domain.Membership, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return domain.Membership{}, err
	}
	m, ok := u.Membership(basketID)
	if !ok || !m.Active() {
		return domain.Membership{}, domain.Forbidden("no access to basket").With("basketId", basketID)
	}
	return m, nil
}

func (s *Service) requireOwner(ctx context.Context, userID, basketID string) error {
	b, err := s.load(ctx, basketID)
	if err != nil {
		return err
	}
	if !b.OwnedBy(userID) {
		return domain.Forbidden("access forbidden").With("basketId", basketID)
	}
	return nil
}

func (s *Service) user(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("user not found").With("userId", id)
		}
		return nil, domain.Internal(fmt.Errorf("users.GetByID: %w", err))
	}
	return u, nil
}

func (s *Service) load(ctx context.Context, basketID string) (*domain.Basket, error) {
	b, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("basket not found").With("basketId", basketID)
		}
		return nil, domain.Internal(fmt.Errorf("baskets.GetByID: %w", err))
	}
	return b, nil
}
