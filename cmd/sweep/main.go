// Command sweep resolves every due reservation expiry once, purges expired
// refresh tokens and exits.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"shopfront/internal/app"
	"shopfront/internal/config"
	"shopfront/internal/logging"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	logger := logging.MustNewLogger(cfg.ServiceName+"-sweep", cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init app", zap.Error(err))
	}
	res, err := a.Sweeper.SweepOnce(ctx)
	purged, purgeErr := a.Services.Users.PurgeExpiredTokens(ctx)
	a.Close()
	logger.Info("sweep finished",
		zap.Int("released", res.Released),
		zap.Int("settled", res.Settled),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int64("tokens_purged", purged),
	)
	if purgeErr != nil {
		logger.Error("purge refresh tokens", zap.Error(purgeErr))
	}
	if err != nil {
		logger.Error("sweep had failures", zap.Error(err))
		os.Exit(1)
	}
}
