package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	"shopfront/internal/metrics"
	"shopfront/internal/repository"
	invoicerepo "shopfront/internal/repository/invoice"
)

// SweepResult counts what a single sweep resolved.
type SweepResult struct {
	Released int
	Settled  int
	Skipped  int
	Failed   int
}

// Sweeper resolves due reservation expiries: unpaid invoices get their stock
// released and are marked expired, paid ones are settled. Each expiry is
// resolved in its own transaction, so every line is released at most once.
type Sweeper struct {
	tx       repository.TxRunner
	invoices invoicerepo.Repository
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	interval time.Duration
	batch    int
	now      func() time.Time
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewSweeper(tx repository.TxRunner, invoices invoicerepo.Repository, cfg SweeperConfig, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		tx:       tx,
		invoices: invoices,
		logger:   logging.OrNop(logger).With(zap.String("component", "sweeper")),
		tracer:   otel.Tracer(tracerName),
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.batch <= 0 {
		s.batch = 100
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

func SweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func SweeperMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval), zap.Int("batch", s.batch))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce resolves up to one batch of due expiries.
func (s *Sweeper) SweepOnce(ctx context.Context) (res SweepResult, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.sweep")
	defer func() {
		span.SetAttributes(
			attribute.Int("sweep.released", res.Released),
			attribute.Int("sweep.settled", res.Settled),
			attribute.Int("sweep.failed", res.Failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sweep failed")
		}
		span.End()
	}()

	now := s.now()
	due, err := s.invoices.ListDueExpiries(ctx, now, s.batch)
	if err != nil {
		return res, fmt.Errorf("invoices.ListDueExpiries: %w", err)
	}

	var errs []error
	for _, e := range due {
		state, err := s.resolve(ctx, e.InvoiceID, now)
		switch {
		case err != nil:
			res.Failed++
			errs = append(errs, fmt.Errorf("invoice %s: %w", e.InvoiceID, err))
			continue
		case state == domain.ExpiryReleased:
			res.Released++
		case state == domain.ExpirySettled:
			res.Settled++
		default:
			res.Skipped++
			continue
		}
		s.metrics.ObserveCompensation(string(state))
	}
	if len(due) > 0 {
		s.logger.Info("sweep finished",
			zap.Int("due", len(due)),
			zap.Int("released", res.Released),
			zap.Int("settled", res.Settled),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
	return res, errors.Join(errs...)
}

// resolve returns the empty state when another sweeper already handled the
// expiry.
func (s *Sweeper) resolve(ctx context.Context, invoiceID string, now time.Time) (domain.ExpiryState, error) {
	var state domain.ExpiryState
	err := s.tx.InTx(ctx, func(st repository.Stores) error {
		if _, err := st.Invoices.ClaimExpiry(ctx, invoiceID, now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("claim expiry: %w", err)
		}
		inv, err := st.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("lock invoice: %w", err)
		}

		if inv.Paid {
			state = domain.ExpirySettled
			return st.Invoices.ResolveExpiry(ctx, invoiceID, state, now)
		}

		for _, l := range inv.Lines {
			if err := st.Products.Release(ctx, l.ProductID, 1); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					s.logger.Warn("release skipped, product deleted",
						zap.String("invoice_id", invoiceID),
						zap.String("product_id", l.ProductID),
					)
					continue
				}
				return fmt.Errorf("release %s: %w", l.ProductID, err)
			}
		}
		if err := st.Invoices.MarkExpired(ctx, invoiceID); err != nil {
			return fmt.Errorf("mark expired: %w", err)
		}
		state = domain.ExpiryReleased
		return st.Invoices.ResolveExpiry(ctx, invoiceID, state, now)
	})
	if err != nil {
		return "", err
	}
	if state == domain.ExpiryReleased {
		s.logger.Info("unpaid reservation released", zap.String("invoice_id", invoiceID))
	}
	return state, nil
}
