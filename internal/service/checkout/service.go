// Package checkout turns a basket or a direct product selection into reserved
// stock plus an unpaid invoice, and reverses reservations that are not paid
// before their deadline.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	"shopfront/internal/metrics"
	"shopfront/internal/repository"
)

const (
	PathBasket = "basket"
	PathDirect = "direct"

	tracerName = "shopfront/checkout"
)

// Item is one product selection of a direct checkout.
type Item struct {
	ProductID string        `json:"productId"`
	Option    domain.Option `json:"options"`
}

type Service struct {
	stores  repository.Stores
	tx      repository.TxRunner
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTx makes reservations and the invoice commit together, so a crash
// between them cannot leave stock reserved without an expiry record.
func WithTx(tx repository.TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// New builds the orchestrator. timeout is how long an unpaid reservation is
// held before the sweeper releases it.
func New(stores repository.Stores, timeout time.Duration, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		stores:  stores,
		logger:  logging.OrNop(logger).With(zap.String("service", "checkout")),
		tracer:  otel.Tracer(tracerName),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckoutItems buys the given selections directly, bypassing any basket.
func (s *Service) CheckoutItems(ctx context.Context, purchaserID string, items []Item) (_ *domain.Invoice, err error) {
	ctx, done := s.observe(ctx, PathDirect, purchaserID)
	defer func() { done(err) }()

	if len(items) == 0 {
		return nil, domain.Validation("no products to buy")
	}
	purchaser, err := s.purchaser(ctx, purchaserID)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.BasketLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.BasketLine{ProductID: it.ProductID, Option: it.Option})
	}
	return s.checkout(ctx, purchaser, lines)
}

// CheckoutBasket buys every line currently in the basket and removes the
// bought lines. Lines added by co-owners meanwhile stay in the basket. The
// purchaser must be an active member of the basket.
func (s *Service) CheckoutBasket(ctx context.Context, purchaserID, basketID string) (_ *domain.Invoice, err error) {
	ctx, done := s.observe(ctx, PathBasket, purchaserID)
	defer func() { done(err) }()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("basket.id", basketID))

	purchaser, err := s.purchaser(ctx, purchaserID)
	if err != nil {
		return nil, err
	}
	if m, ok := purchaser.Membership(basketID); !ok || !m.Active() {
		return nil, domain.Forbidden("no access to basket").With("basketId", basketID)
	}
	basket, err := s.stores.Baskets.GetByID(ctx, basketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("basket not found").With("basketId", basketID)
		}
		return nil, domain.Internal(fmt.Errorf("baskets.GetByID: %w", err))
	}
	if len(basket.Lines) == 0 {
		return nil, domain.Validation("basket is empty").With("basketId", basketID)
	}

	inv, err := s.checkout(ctx, purchaser, basket.Lines)
	if err != nil {
		return nil, err
	}

	// The invoice and its reservations stand even when the basket cannot be
	// emptied.
	lineIDs := lo.Map(basket.Lines, func(l domain.BasketLine, _ int) int64 { return l.ID })
	if _, err := s.stores.Baskets.DeleteLines(context.WithoutCancel(ctx), basketID, lineIDs); err != nil {
		s.logger.Warn("clear basket after checkout",
			zap.String("basket_id", basketID),
			zap.String("invoice_id", inv.ID),
			zap.Error(err),
		)
	}
	return inv, nil
}

func (s *Service) checkout(ctx context.Context, purchaser *domain.User, lines []domain.BasketLine) (*domain.Invoice, error) {
	products := make(map[string]*domain.Product, len(lines))
	frozen := make([]domain.InvoiceLine, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			var err error
			if p, err = s.product(ctx, l.ProductID); err != nil {
				return nil, err
			}
			products[l.ProductID] = p
		}
		if err := p.Offers(l.Option); err != nil {
			return nil, err
		}
		frozen = append(frozen, domain.InvoiceLine{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Currency:  p.Currency,
			Option:    l.Option,
		})
	}

	// Row locks are taken in product id order so concurrent checkouts sharing
	// products cannot deadlock inside a transaction.
	order := slices.SortedStableFunc(slices.Values(frozen), func(a, b domain.InvoiceLine) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})

	now := s.now()
	var inv *domain.Invoice
	err := s.inTx(ctx, func(st repository.Stores) error {
		reserved := make([]string, 0, len(order))
		for _, l := range order {
			if err := st.Products.Reserve(ctx, l.ProductID, 1); err != nil {
				s.release(ctx, st, reserved, "rollback")
				switch {
				case errors.Is(err, domain.ErrInsufficientStock):
					return domain.OutOfStock(l.ProductID)
				case errors.Is(err, domain.ErrNotFound):
					return domain.Validation("product not found").With("productId", l.ProductID)
				default:
					return domain.Internal(fmt.Errorf("products.Reserve: %w", err))
				}
			}
			reserved = append(reserved, l.ProductID)
		}

		var err error
		inv, err = st.Invoices.Create(ctx, domain.Invoice{
			UserID:          purchaser.ID,
			DeliveryAddress: purchaser.Address,
			Lines:           frozen,
		}, now.Add(s.timeout))
		if err != nil {
			s.release(ctx, st, reserved, "rollback")
			return domain.Internal(fmt.Errorf("invoices.Create: %w", err))
		}
		return nil
	})
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.Internal(fmt.Errorf("checkout tx: %w", err))
		}
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("invoice.id", inv.ID),
		attribute.Int("invoice.lines", len(inv.Lines)),
	)
	s.logger.Info("invoice created",
		zap.String("invoice_id", inv.ID),
		zap.String("user_id", purchaser.ID),
		zap.Int("lines", len(inv.Lines)),
		zap.Time("reservation_expires_at", now.Add(s.timeout)),
	)
	return inv, nil
}

// inTx runs fn inside a transaction when one is configured, otherwise directly
// on the service stores.
func (s *Service) inTx(ctx context.Context, fn func(repository.Stores) error) error {
	if s.tx == nil {
		return fn(s.stores)
	}
	return s.tx.InTx(ctx, fn)
}

// release undoes reservations made earlier in a failed checkout. It must not
// be skipped because the request was cancelled.
func (s *Service) release(ctx context.Context, st repository.Stores, productIDs []string, reason string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range productIDs {
		if err := st.Products.Release(ctx, id, 1); err != nil {
			s.metrics.ObserveCompensation("release_failed")
			s.logger.Error("release reservation",
				zap.String("product_id", id),
				zap.String("reason", reason),
				zap.Error(err),
			)
			continue
		}
		s.metrics.ObserveCompensation(reason)
	}
}

func (s *Service) purchaser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("user not found")
		}
		return nil, domain.Internal(fmt.Errorf("users.GetByID: %w", err))
	}
	return u, nil
}

func (s *Service) product(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.stores.Products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validation("product not found").With("productId", id)
		}
		return nil, domain.Internal(fmt.Errorf("products.GetByID: %w", err))
	}
	return p, nil
}

func (s *Service) observe(ctx context.Context, path, purchaserID string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "checkout."+path,
		trace.WithAttributes(
			attribute.String("checkout.path", path),
			attribute.String("user.id", purchaserID),
		),
	)
	start := time.Now()
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = string(domain.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			if outcome == string(domain.KindInternal) {
				s.logger.Error("checkout failed", zap.String("path", path), zap.String("user_id", purchaserID), zap.Error(err))
			}
		} else {
			span.SetStatus(codes.Ok, outcome)
		}
		span.End()
		s.metrics.ObserveCheckout(path, outcome, time.Since(start))
	}
}
