package memory

import (
	"context"
	"slices"

	"shopfront/internal/domain"
)

type basketRepo struct{ s *Store }

func (r basketRepo) Create(_ context.Context, ownerID string, status domain.MembershipStatus) (*domain.Basket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[ownerID]; !ok {
		return nil, domain.ErrNotFound
	}
	b := r.s.createBasket(ownerID, status)
	return cloneBasket(b), nil
}

func (r basketRepo) GetByID(_ context.Context, id string) (*domain.Basket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.baskets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBasket(b), nil
}

func (r basketRepo) AddLine(_ context.Context, basketID string, line domain.BasketLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.baskets[basketID]
	if !ok {
		return domain.ErrNotFound
	}
	line.ID = int64(r.s.nextSeq())
	line.AddedAt = r.s.now()
	b.Lines = append(slices.Clone(b.Lines), line)
	r.s.baskets[basketID] = b
	return nil
}

func (r basketRepo) RemoveLines(_ context.Context, basketID, productID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.baskets[basketID]
	if !ok {
		return 0, nil
	}
	kept := slices.DeleteFunc(slices.Clone(b.Lines), func(l domain.BasketLine) bool {
		return l.ProductID == productID
	})
	removed := len(b.Lines) - len(kept)
	b.Lines = kept
	r.s.baskets[basketID] = b
	return removed, nil
}

func (r basketRepo) DeleteLines(_ context.Context, basketID string, lineIDs []int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.baskets[basketID]
	if !ok {
		return 0, nil
	}
	kept := slices.DeleteFunc(slices.Clone(b.Lines), func(l domain.BasketLine) bool {
		return slices.Contains(lineIDs, l.ID)
	})
	removed := len(b.Lines) - len(kept)
	b.Lines = kept
	r.s.baskets[basketID] = b
	return removed, nil
}

func (r basketRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.baskets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.baskets, id)
	for k := range r.s.members {
		if k.basketID == id {
			delete(r.s.members, k)
		}
	}
	return nil
}

// createBasket must be called with mu held.
func (s *Store) createBasket(ownerID string, status domain.MembershipStatus) domain.Basket {
	b := domain.Basket{
		ID:        newID(),
		OwnerID:   ownerID,
		Lines:     []domain.BasketLine{},
		CreatedAt: s.now(),
	}
	s.baskets[b.ID] = b
	s.members[memberKey{userID: ownerID, basketID: b.ID}] = member{status: status, joinSeq: s.nextSeq()}
	return b
}

func cloneBasket(b domain.Basket) *domain.Basket {
	b.Lines = slices.Clone(b.Lines)
	if b.Lines == nil {
		b.Lines = []domain.BasketLine{}
	}
	return &b
}
