package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"shopfront/internal/app"
	"shopfront/internal/config"
	"shopfront/internal/logging"
	"shopfront/internal/seed"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	logger := logging.MustNewLogger(cfg.ServiceName+"-seed", cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init app", zap.Error(err))
	}
	defer a.Close()

	admin := seed.Admin{
		Email:    envOr("SEED_ADMIN_EMAIL", "admin@shopfront.local"),
		Password: envOr("SEED_ADMIN_PASSWORD", "Admin12345"),
		Phone:    os.Getenv("SEED_ADMIN_PHONE"),
	}
	if err := seed.Apply(ctx, a.Stores, admin, logger); err != nil {
		logger.Fatal("seed apply", zap.Error(err))
	}
	logger.Info("seed applied")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
