// Package repository groups the per-aggregate stores so services can run
// multi-aggregate work inside one transaction.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"shopfront/internal/db"
	"shopfront/internal/repository/basket"
	"shopfront/internal/repository/invoice"
	"shopfront/internal/repository/product"
	"shopfront/internal/repository/token"
	"shopfront/internal/repository/user"
)

// Stores bundles every repository bound to the same connection or transaction.
type Stores struct {
	Products product.Repository
	Baskets  basket.Repository
	Users    user.Repository
	Invoices invoice.Repository
	Tokens   token.Repository
}

// TxRunner runs fn with stores bound to a single transaction. fn's error
// rolls the transaction back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(s Stores) error) error
}

// NewPostgres binds every repository to conn.
func NewPostgres(conn db.DBTX, logger *zap.Logger) Stores {
	return Stores{
		Products: product.NewPostgres(conn, logger),
		Baskets:  basket.NewPostgres(conn, logger),
		Users:    user.NewPostgres(conn, logger),
		Invoices: invoice.NewPostgres(conn, logger),
		Tokens:   token.NewPostgres(conn, logger),
	}
}

type postgresTx struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresTxRunner opens transactions on pool.
func NewPostgresTxRunner(pool *pgxpool.Pool, logger *zap.Logger) TxRunner {
	return &postgresTx{pool: pool, logger: logger}
}

func (p *postgresTx) InTx(ctx context.Context, fn func(s Stores) error) error {
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(NewPostgres(tx, p.logger))
	})
}
