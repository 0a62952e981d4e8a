package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"shopfront/internal/config"
	"shopfront/internal/db"
	"shopfront/internal/logging"
	"shopfront/internal/migrate"
)

func main() {
	reset := flag.Bool("reset", false, "drop every table and re-apply the schema")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	logger := logging.MustNewLogger(cfg.ServiceName+"-migrate", cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	if *reset {
		if err := migrate.Reset(ctx, pool); err != nil {
			logger.Fatal("reset schema", zap.Error(err))
		}
		logger.Info("schema reset")
		return
	}
	if err := migrate.Apply(ctx, pool, logger); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
}
