// Package memory provides map-backed repositories for tests and for running
// the API without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopfront/internal/domain"
	"shopfront/internal/repository"
	"shopfront/internal/repository/token"
)

type memberKey struct {
	userID   string
	basketID string
}

type member struct {
	status  domain.MembershipStatus
	joinSeq int
}

// Store keeps every aggregate in process memory. It is safe for concurrent
// use; InTx serializes transactional blocks but does not roll back.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	now func() time.Time
	seq int

	products map[string]domain.Product
	users    map[string]domain.User
	baskets  map[string]domain.Basket
	members  map[memberKey]member
	invoices map[string]domain.Invoice
	expiries map[string]domain.ReservationExpiry
	tokens   map[string]token.RefreshToken
}

func New() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		products: make(map[string]domain.Product),
		users:    make(map[string]domain.User),
		baskets:  make(map[string]domain.Basket),
		members:  make(map[memberKey]member),
		invoices: make(map[string]domain.Invoice),
		expiries: make(map[string]domain.ReservationExpiry),
		tokens:   make(map[string]token.RefreshToken),
	}
}

// WithClock replaces the clock used for created/updated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Products: productRepo{s},
		Baskets:  basketRepo{s},
		Users:    userRepo{s},
		Invoices: invoiceRepo{s},
		Tokens:   tokenRepo{s},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(repository.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.Stores())
}

func newID() string {
	return uuid.NewString()
}

// nextSeq must be called with mu held.
func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}
