package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	config "github.com/trackhire/trackhire/internal/config/authd"
	"github.com/trackhire/trackhire/internal/obs/retry"
	pg "github.com/trackhire/trackhire/internal/repository/postgres"
)

func initDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pg.DB, error) {
	var db *pg.DB
	err := retry.Do(ctx, func() error {
		var err error
		db, err = pg.NewDB(ctx, cfg.DB)
		return err
	}, retry.Policy{
		Name:     "db-connect",
		Attempts: 5,
		Backoff:  retry.ExpoJitter{Base: 500 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		OnAttempt: func(attempt int, err error) {
			logger.Warn("db connect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		},
	})
	return db, err
}
