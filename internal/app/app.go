// Package app wires stores, services and the HTTP server from a Config.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"shopfront/internal/config"
	"shopfront/internal/db"
	"shopfront/internal/httpserver"
	"shopfront/internal/logging"
	"shopfront/internal/metrics"
	"shopfront/internal/repository"
	"shopfront/internal/repository/memory"
	basketsvc "shopfront/internal/service/basket"
	checkoutsvc "shopfront/internal/service/checkout"
	invoicesvc "shopfront/internal/service/invoice"
	productsvc "shopfront/internal/service/product"
	usersvc "shopfront/internal/service/user"
)

type Services struct {
	Users    *usersvc.Service
	Products *productsvc.Service
	Baskets  *basketsvc.Service
	Checkout *checkoutsvc.Service
	Invoices *invoicesvc.Service
}

type App struct {
	Cfg      config.Config
	Log      *zap.Logger
	Stores   repository.Stores
	Tx       repository.TxRunner
	Services Services
	Sweeper  *checkoutsvc.Sweeper
	Registry *prometheus.Registry

	pool *pgxpool.Pool
}

// New opens the configured store and wires every service on top of it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{Cfg: cfg, Log: logger, Registry: prometheus.NewRegistry()}

	switch cfg.Store {
	case config.StoreMemory:
		store := memory.New()
		a.Stores, a.Tx = store.Stores(), store
		logger.Warn("using in-memory store; data is lost on exit")
	default:
		pool, err := db.Connect(ctx, cfg.DBConnString)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		a.pool = pool
		a.Stores = repository.NewPostgres(pool, logger)
		a.Tx = repository.NewPostgresTxRunner(pool, logger)
	}

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	checkout := checkoutsvc.New(a.Stores, cfg.ReservationTimeout, logger,
		checkoutsvc.WithMetrics(m),
		checkoutsvc.WithTx(a.Tx),
	)
	a.Services = Services{
		Users: usersvc.New(a.Stores.Users, a.Stores.Tokens, usersvc.TokenConfig{
			AccessSecret:  cfg.AccessSecret,
			RefreshSecret: cfg.RefreshSecret,
			AccessTTL:     cfg.AccessTTL,
			RefreshTTL:    cfg.RefreshTTL,
		}, logger),
		Products: productsvc.New(a.Stores.Products, logger),
		Baskets:  basketsvc.New(a.Stores.Baskets, a.Stores.Users, a.Stores.Products, checkout, logger),
		Checkout: checkout,
		Invoices: invoicesvc.New(a.Stores.Invoices, a.Tx, logger),
	}
	a.Sweeper = checkoutsvc.NewSweeper(a.Tx, a.Stores.Invoices, checkoutsvc.SweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}, logger, checkoutsvc.SweeperMetrics(m))
	return a, nil
}

// Pool returns the Postgres pool, or nil on the in-memory store.
func (a *App) Pool() *pgxpool.Pool { return a.pool }

// HTTPServer builds the API server bound to cfg.HTTPAddr.
func (a *App) HTTPServer() (*httpserver.Server, error) {
	var pinger httpserver.Pinger
	if a.pool != nil {
		pinger = a.pool
	}
	return httpserver.New(a.Cfg.HTTPAddr, a.Log, pinger, httpserver.Deps{
		UserSvc:     a.Services.Users,
		ProductSvc:  a.Services.Products,
		BasketSvc:   a.Services.Baskets,
		CheckoutSvc: a.Services.Checkout,
		InvoiceSvc:  a.Services.Invoices,
		Gatherer:    a.Registry,
		CORSOrigins: a.Cfg.CORSAllowOrigins,
	})
}

func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Log.Sync()
}
