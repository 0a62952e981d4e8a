package invoice

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	"shopfront/internal/repository"
	invoicerepo "shopfront/internal/repository/invoice"
)

type Service struct {
	invoices invoicerepo.Repository
	tx       repository.TxRunner
	logger   *zap.Logger
}

func New(invoices invoicerepo.Repository, tx repository.TxRunner, logger *zap.Logger) *Service {
	return &Service{
		invoices: invoices,
		tx:       tx,
		logger:   logging.OrNop(logger).With(zap.String("service", "invoice")),
	}
}

// Get returns the invoice to its purchaser or to an admin.
func (s *Service) Get(ctx context.Context, requesterID string, admin bool, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, notFoundOrInternal(err, invoiceID)
	}
	if inv.UserID != requesterID && !admin {
		return nil, domain.Forbidden("access forbidden").With("invoiceId", invoiceID)
	}
	return inv, nil
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]domain.Invoice, error) {
	list, err := s.invoices.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("invoices.ListByUser: %w", err))
	}
	if list == nil {
		list = []domain.Invoice{}
	}
	return list, nil
}

// Pay marks the invoice paid without any gateway verification. It holds the
// invoice lock so it cannot interleave with the expiry sweeper.
func (s *Service) Pay(ctx context.Context, invoiceID string) error {
	var expired bool
	err := s.tx.InTx(ctx, func(st repository.Stores) error {
		inv, err := st.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		expired = inv.Expired
		return st.Invoices.MarkPaid(ctx, invoiceID)
	})
	if err != nil {
		return notFoundOrInternal(err, invoiceID)
	}
	if expired {
		s.logger.Warn("payment received for expired invoice; stock was already released", zap.String("invoice_id", invoiceID))
	} else {
		s.logger.Info("invoice paid", zap.String("invoice_id", invoiceID))
	}
	return nil
}

// Fulfill marks a paid invoice as shipped.
func (s *Service) Fulfill(ctx context.Context, admin bool, invoiceID string) (*domain.Invoice, error) {
	if !admin {
		return nil, domain.Forbidden("admin only")
	}
	var out *domain.Invoice
	err := s.tx.InTx(ctx, func(st repository.Stores) error {
		inv, err := st.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Paid {
			return domain.Validation("invoice is not paid").With("invoiceId", invoiceID)
		}
		if err := st.Invoices.MarkFulfilled(ctx, invoiceID); err != nil {
			return err
		}
		inv.Fulfilled = true
		out = inv
		return nil
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, notFoundOrInternal(err, invoiceID)
	}
	s.logger.Info("invoice fulfilled", zap.String("invoice_id", invoiceID))
	return out, nil
}

func notFoundOrInternal(err error, invoiceID string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Validation("invoice not found").With("invoiceId", invoiceID)
	}
	return domain.Internal(fmt.Errorf("invoice %s: %w", invoiceID, err))
}
