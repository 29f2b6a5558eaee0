package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	config "github.com/trackhire/trackhire/internal/config/authd"
	"github.com/trackhire/trackhire/internal/obs"
	pg "github.com/trackhire/trackhire/internal/repository/postgres"
	"github.com/trackhire/trackhire/internal/services/authd/auth"
	signer "github.com/trackhire/trackhire/internal/token"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB) (*http.Server, error) {
	sgn, err := signer.NewSigner(signer.Config{
		Secret:    []byte(cfg.Auth.JWTSecret),
		Issuer:    cfg.Auth.Issuer,
		AccessTTL: cfg.Auth.AccessTTL,
	})
	if err != nil {
		return nil, err
	}

	uc := auth.NewUsecase(
		pg.NewUserRepo(db),
		pg.NewRefreshTokenRepo(db),
		pg.NewTransactor(db, logger),
		sgn,
		logger,
		auth.Config{RefreshTTL: cfg.Auth.RefreshTTL},
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	auth.NewHandler(uc, logger).Register(engine)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.WrapHTTPHandler(engine, "authd"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
