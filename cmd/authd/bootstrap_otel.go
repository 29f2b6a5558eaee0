package main

import (
	"context"

	config "github.com/trackhire/trackhire/internal/config/authd"
	"github.com/trackhire/trackhire/internal/obs"
)

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	closer, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	return closer.Shutdown, nil
}
