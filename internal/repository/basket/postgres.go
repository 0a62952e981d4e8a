package basket

import (
	"context"
	"errors"
	"fmt"

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
	return &postgresRepo{db: conn, logger: logging.OrNop(logger).With(zap.String("repo", "basket"))}
}

func (r *postgresRepo) Create(ctx context.Context, ownerID string, status domain.MembershipStatus) (*domain.Basket, error) {
	if !db.ValidID(ownerID) {
		return nil, domain.ErrNotFound
	}
	var b domain.Basket
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
INSERT INTO baskets (owner_id) VALUES ($1)
RETURNING id::text, owner_id::text, created_at
`, ownerID).Scan(&b.ID, &b.OwnerID, &b.CreatedAt); err != nil {
			return fmt.Errorf("insert basket: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO basket_members (user_id, basket_id, status) VALUES ($1, $2, $3)
`, ownerID, b.ID, status); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("create basket", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	b.Lines = []domain.BasketLine{}
	return &b, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Basket, error) {
	if !db.ValidID(id) {
		return nil, domain.ErrNotFound
	}
	var b domain.Basket
	err := r.db.QueryRow(ctx, `
SELECT id::text, owner_id::text, created_at FROM baskets WHERE id = $1
`, id).Scan(&b.ID, &b.OwnerID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
SELECT id, product_id::text, color, size, added_at
FROM basket_lines
WHERE basket_id = $1
ORDER BY id
`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	b.Lines = []domain.BasketLine{}
	for rows.Next() {
		var l domain.BasketLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Option.Color, &l.Option.Size, &l.AddedAt); err != nil {
			return nil, err
		}
		b.Lines = append(b.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *postgresRepo) AddLine(ctx context.Context, basketID string, line domain.BasketLine) error {
	if !db.ValidID(basketID, line.ProductID) {
		return domain.ErrNotFound
	}
	const q = `
INSERT INTO basket_lines (basket_id, product_id, color, size)
SELECT id, $2, $3, $4 FROM baskets WHERE id = $1
`
	cmd, err := r.db.Exec(ctx, q, basketID, line.ProductID, line.Option.Color, line.Option.Size)
	if err != nil {
		r.logger.Error("add basket line", zap.String("basket_id", basketID), zap.Error(err))
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) RemoveLines(ctx context.Context, basketID, productID string) (int, error) {
	if !db.ValidID(basketID, productID) {
		return 0, nil
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM basket_lines WHERE basket_id = $1 AND product_id = $2`, basketID, productID)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *postgresRepo) DeleteLines(ctx context.Context, basketID string, lineIDs []int64) (int, error) {
	if len(lineIDs) == 0 || !db.ValidID(basketID) {
		return 0, nil
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM basket_lines WHERE basket_id = $1 AND id = ANY($2)`, basketID, lineIDs)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *postgresRepo) Delete(ctx context.Context, id string) error {
	if !db.ValidID(id) {
		return domain.ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM baskets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
