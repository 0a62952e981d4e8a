package memory

import (
	"context"
	"slices"
	"strings"

	"shopfront/internal/domain"
)

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u domain.User) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return nil, domain.ErrAlreadyExists
		}
	}
	u.ID = newID()
	u.CreatedAt = r.s.now()
	u.Baskets = nil
	r.s.users[u.ID] = u
	r.s.createBasket(u.ID, domain.MembershipMain)

	return r.s.loadUser(u), nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.s.loadUser(u), nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return r.s.loadUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r userRepo) AddMembership(_ context.Context, userID string, m domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := r.s.baskets[m.BasketID]; !ok {
		return domain.ErrNotFound
	}
	key := memberKey{userID: userID, basketID: m.BasketID}
	if _, exists := r.s.members[key]; exists {
		return domain.ErrAlreadyExists
	}
	if m.Status == domain.MembershipMain {
		for k, existing := range r.s.members {
			if k.userID == userID && existing.status == domain.MembershipMain {
				return domain.ErrAlreadyExists
			}
		}
	}
	r.s.members[key] = member{status: m.Status, joinSeq: r.s.nextSeq()}
	return nil
}

func (r userRepo) SetMembershipStatus(_ context.Context, userID, basketID string, from, to domain.MembershipStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{userID: userID, basketID: basketID}
	m, ok := r.s.members[key]
	if !ok || m.status != from {
		return domain.ErrNotFound
	}
	m.status = to
	r.s.members[key] = m
	return nil
}

func (r userRepo) RemoveMembership(_ context.Context, userID, basketID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{userID: userID, basketID: basketID}
	m, ok := r.s.members[key]
	if !ok || m.status == domain.MembershipMain {
		return domain.ErrNotFound
	}
	delete(r.s.members, key)
	return nil
}

// loadUser must be called with mu held.
func (s *Store) loadUser(u domain.User) *domain.User {
	type entry struct {
		domain.Membership
		seq int
	}
	var entries []entry
	for k, m := range s.members {
		if k.userID == u.ID {
			entries = append(entries, entry{domain.Membership{BasketID: k.basketID, Status: m.status}, m.joinSeq})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.seq - b.seq })

	u.Baskets = make([]domain.Membership, 0, len(entries))
	for _, e := range entries {
		u.Baskets = append(u.Baskets, e.Membership)
	}
	return &u
}
