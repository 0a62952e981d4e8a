package memory

import (
	"context"
	"slices"
	"time"

	"shopfront/internal/domain"
)

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) Create(_ context.Context, inv domain.Invoice, expiresAt time.Time) (*domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[inv.UserID]; !ok {
		return nil, domain.ErrNotFound
	}
	inv.ID = newID()
	inv.CreatedAt = r.s.now()
	inv.Paid, inv.Fulfilled, inv.Expired = false, false, false
	inv.Lines = slices.Clone(inv.Lines)
	r.s.invoices[inv.ID] = inv
	r.s.expiries[inv.ID] = domain.ReservationExpiry{
		InvoiceID: inv.ID,
		ExpiresAt: expiresAt,
		State:     domain.ExpiryPending,
	}
	return cloneInvoice(inv), nil
}

func (r invoiceRepo) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

// GetForUpdate relies on InTx for exclusion.
func (r invoiceRepo) GetForUpdate(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r invoiceRepo) ListByUser(_ context.Context, userID string) ([]domain.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Invoice
	for _, inv := range r.s.invoices {
		if inv.UserID == userID {
			out = append(out, *cloneInvoice(inv))
		}
	}
	slices.SortFunc(out, func(a, b domain.Invoice) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r invoiceRepo) MarkPaid(_ context.Context, id string) error {
	return r.update(id, func(inv *domain.Invoice) { inv.Paid = true })
}

func (r invoiceRepo) MarkFulfilled(_ context.Context, id string) error {
	return r.update(id, func(inv *domain.Invoice) { inv.Fulfilled = true })
}

func (r invoiceRepo) MarkExpired(_ context.Context, id string) error {
	return r.update(id, func(inv *domain.Invoice) { inv.Expired = true })
}

func (r invoiceRepo) ListDueExpiries(_ context.Context, now time.Time, limit int) ([]domain.ReservationExpiry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.ReservationExpiry
	for _, e := range r.s.expiries {
		if e.Due(now) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.ReservationExpiry) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r invoiceRepo) ClaimExpiry(_ context.Context, invoiceID string, now time.Time) (*domain.ReservationExpiry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.expiries[invoiceID]
	if !ok || !e.Due(now) {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r invoiceRepo) ResolveExpiry(_ context.Context, invoiceID string, state domain.ExpiryState, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.expiries[invoiceID]
	if !ok || e.State != domain.ExpiryPending {
		return domain.ErrNotFound
	}
	e.State = state
	e.ResolvedAt = &at
	r.s.expiries[invoiceID] = e
	return nil
}

func (r invoiceRepo) GetExpiry(_ context.Context, invoiceID string) (*domain.ReservationExpiry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.expiries[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r invoiceRepo) update(id string, fn func(inv *domain.Invoice)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&inv)
	r.s.invoices[id] = inv
	return nil
}

func cloneInvoice(inv domain.Invoice) *domain.Invoice {
	inv.Lines = slices.Clone(inv.Lines)
	if inv.Lines == nil {
		inv.Lines = []domain.InvoiceLine{}
	}
	return &inv
}
