package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"shopfront/internal/db"
	"shopfront/internal/domain"
	"shopfront/internal/logging"
)

type postgresRepo struct {
	db     db.DBTX
	logger *zap.Logger
}

func NewPostgres(conn db.DBTX, logger *zap.Logger) Repository {
	return &postgresRepo{db: conn, logger: logging.OrNop(logger).With(zap.String("repo", "invoice"))}
}

const invoiceColumns = `id::text, user_id::text, delivery_country, delivery_city, delivery_street, paid, fulfilled, expired, created_at`

func (r *postgresRepo) Create(ctx context.Context, inv domain.Invoice, expiresAt time.Time) (*domain.Invoice, error) {
	var created *domain.Invoice
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		q := `
INSERT INTO invoices (user_id, delivery_country, delivery_city, delivery_street)
VALUES ($1, $2, $3, $4)
RETURNING ` + invoiceColumns
		var err error
		created, err = scanInvoice(tx.QueryRow(ctx, q,
			inv.UserID, inv.DeliveryAddress.Country, inv.DeliveryAddress.City, inv.DeliveryAddress.Street,
		))
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		batch := &pgx.Batch{}
		for _, l := range inv.Lines {
			batch.Queue(`
INSERT INTO invoice_lines (invoice_id, product_id, product_name, price, currency, color, size)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, created.ID, l.ProductID, l.Name, l.Price, l.Currency, l.Option.Color, l.Option.Size)
		}
		batch.Queue(`
INSERT INTO reservation_expiries (invoice_id, expires_at) VALUES ($1, $2)
`, created.ID, expiresAt)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert invoice lines: %w", err)
		}
		created.Lines = append([]domain.InvoiceLine(nil), inv.Lines...)
		return nil
	})
	if err != nil {
		r.logger.Error("create invoice", zap.String("user_id", inv.UserID), zap.Error(err))
		return nil, err
	}
	return created, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

func (r *postgresRepo) GetForUpdate(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresRepo) ListByUser(ctx context.Context, userID string) ([]domain.Invoice, error) {
	if !db.ValidID(userID) {
		return []domain.Invoice{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		lines, err := r.lines(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

func (r *postgresRepo) MarkPaid(ctx context.Context, id string) error {
	return r.setFlag(ctx, `UPDATE invoices SET paid = true WHERE id = $1`, id)
}

func (r *postgresRepo) MarkFulfilled(ctx context.Context, id string) error {
	return r.setFlag(ctx, `UPDATE invoices SET fulfilled = true WHERE id = $1`, id)
}

func (r *postgresRepo) MarkExpired(ctx context.Context, id string) error {
	return r.setFlag(ctx, `UPDATE invoices SET expired = true WHERE id = $1`, id)
}

func (r *postgresRepo) ListDueExpiries(ctx context.Context, now time.Time, limit int) ([]domain.ReservationExpiry, error) {
	rows, err := r.db.Query(ctx, `
SELECT invoice_id::text, expires_at, state, resolved_at
FROM reservation_expiries
WHERE state = 'pending' AND expires_at <= $1
ORDER BY expires_at
LIMIT $2
`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReservationExpiry
	for rows.Next() {
		e, err := scanExpiry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) ClaimExpiry(ctx context.Context, invoiceID string, now time.Time) (*domain.ReservationExpiry, error) {
	return scanExpiry(r.db.QueryRow(ctx, `
SELECT invoice_id::text, expires_at, state, resolved_at
FROM reservation_expiries
WHERE invoice_id = $1 AND state = 'pending' AND expires_at <= $2
FOR UPDATE SKIP LOCKED
`, invoiceID, now))
}

func (r *postgresRepo) ResolveExpiry(ctx context.Context, invoiceID string, state domain.ExpiryState, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `
UPDATE reservation_expiries SET state = $2, resolved_at = $3
WHERE invoice_id = $1 AND state = 'pending'
`, invoiceID, state, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) GetExpiry(ctx context.Context, invoiceID string) (*domain.ReservationExpiry, error) {
	return scanExpiry(r.db.QueryRow(ctx, `
SELECT invoice_id::text, expires_at, state, resolved_at
FROM reservation_expiries
WHERE invoice_id = $1
`, invoiceID))
}

func (r *postgresRepo) get(ctx context.Context, q, id string) (*domain.Invoice, error) {
	if !db.ValidID(id) {
		return nil, domain.ErrNotFound
	}
	inv, err := scanInvoice(r.db.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if inv.Lines, err = r.lines(ctx, inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *postgresRepo) lines(ctx context.Context, invoiceID string) ([]domain.InvoiceLine, error) {
	rows, err := r.db.Query(ctx, `
SELECT product_id::text, product_name, price, currency, color, size
FROM invoice_lines
WHERE invoice_id = $1
ORDER BY id
`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.InvoiceLine{}
	for rows.Next() {
		var l domain.InvoiceLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Price, &l.Currency, &l.Option.Color, &l.Option.Size); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) setFlag(ctx context.Context, q, id string) error {
	if !db.ValidID(id) {
		return domain.ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, q, id)
	if err != nil {
		r.logger.Error("update invoice flag", zap.String("invoice_id", id), zap.Error(err))
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := row.Scan(
		&inv.ID,
		&inv.UserID,
		&inv.DeliveryAddress.Country,
		&inv.DeliveryAddress.City,
		&inv.DeliveryAddress.Street,
		&inv.Paid,
		&inv.Fulfilled,
		&inv.Expired,
		&inv.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func scanExpiry(row pgx.Row) (*domain.ReservationExpiry, error) {
	var e domain.ReservationExpiry
	if err := row.Scan(&e.InvoiceID, &e.ExpiresAt, &e.State, &e.ResolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
