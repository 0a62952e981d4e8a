package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

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
	return &postgresRepo{db: conn, logger: logging.OrNop(logger).With(zap.String("repo", "product"))}
}

const productColumns = `id::text, category_id, name, price, currency, image, colors, sizes, stock, bought, created_at, updated_at`

func (r *postgresRepo) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (category_id, name, price, currency, image, colors, sizes, stock)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + productColumns
	created, err := scanProduct(r.db.QueryRow(ctx, q,
		p.CategoryID, p.Name, p.Price, p.Currency, p.Image, p.Colors, p.Sizes, p.Stock,
	))
	if err != nil {
		r.logger.Error("create product", zap.String("name", p.Name), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("product created", zap.String("product_id", created.ID))
	return created, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if !db.ValidID(id) {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.db.QueryRow(ctx, q, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Error("get product", zap.String("product_id", id), zap.Error(err))
	}
	return p, err
}

func (r *postgresRepo) List(ctx context.Context, f Filter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.CategoryID != "" {
		add("category_id = $%d", f.CategoryID)
	}
	if len(f.Colors) > 0 {
		add("colors && $%d", f.Colors)
	}
	if len(f.Sizes) > 0 {
		add("sizes && $%d", f.Sizes)
	}
	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if f.CreatedAfter != nil {
		add("created_at >= $%d", *f.CreatedAfter)
	}
	if f.MinBought > 0 {
		add("bought >= $%d", f.MinBought)
	}

	q := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY ` + orderBy(f.Sort)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("list products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postgresRepo) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if !db.ValidID(p.ID) {
		return nil, domain.ErrNotFound
	}
	const q = `
UPDATE products
SET category_id = $2, name = $3, price = $4, currency = $5, image = $6, colors = $7, sizes = $8, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns
	updated, err := scanProduct(r.db.QueryRow(ctx, q,
		p.ID, p.CategoryID, p.Name, p.Price, p.Currency, p.Image, p.Colors, p.Sizes,
	))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Error("update product", zap.String("product_id", p.ID), zap.Error(err))
	}
	return updated, err
}

func (r *postgresRepo) Delete(ctx context.Context, id string) error {
	if !db.ValidID(id) {
		return domain.ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) Reserve(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return domain.Validation("quantity must be positive")
	}
	if !db.ValidID(id) {
		return domain.ErrNotFound
	}
	// Single conditional statement: concurrent reservations serialize on the row lock.
	cmd, err := r.db.Exec(ctx, `
UPDATE products
SET stock = stock - $2, bought = bought + $2, updated_at = now()
WHERE id = $1 AND stock >= $2
`, id, quantity)
	if err != nil {
		r.logger.Error("reserve stock", zap.String("product_id", id), zap.Error(err))
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	return r.missingOrShort(ctx, id)
}

func (r *postgresRepo) Release(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return domain.Validation("quantity must be positive")
	}
	if !db.ValidID(id) {
		return domain.ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `
UPDATE products
SET stock = stock + $2, bought = GREATEST(bought - $2, 0), updated_at = now()
WHERE id = $1
`, id, quantity)
	if err != nil {
		r.logger.Error("release stock", zap.String("product_id", id), zap.Error(err))
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) Restock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if !db.ValidID(id) {
		return nil, domain.ErrNotFound
	}
	if quantity <= 0 {
		return nil, domain.Validation("quantity must be positive")
	}
	q := `
UPDATE products SET stock = stock + $2, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns
	return scanProduct(r.db.QueryRow(ctx, q, id, quantity))
}

func (r *postgresRepo) missingOrShort(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientStock
}

func orderBy(s Sort) string {
	switch s {
	case SortPriceDesc:
		return "price DESC, created_at DESC"
	case SortPriceAsc:
		return "price ASC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.CategoryID,
		&p.Name,
		&p.Price,
		&p.Currency,
		&p.Image,
		&p.Colors,
		&p.Sizes,
		&p.Stock,
		&p.Bought,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
