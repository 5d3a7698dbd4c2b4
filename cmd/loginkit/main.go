package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/target/loginkit/config"
	"github.com/target/loginkit/internal/bootstrap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // entrypoint exits non-zero on fatal errors
	}
	logger := bootstrap.InitLogger(cfg.Observability)
	if err := run(ctx, &cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // entrypoint exits non-zero on fatal errors
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (err error) {
	logger.InfoContext(ctx, "starting loginkit",
		"addr", cfg.HTTP.Addr,
		"auth_mode", cfg.Auth.Mode,
		"session_backend", cfg.Session.Backend,
		"dev", cfg.IsDev,
	)

	db, redisClient, err := connectInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if db != nil {
			err = errors.Join(err, db.Close())
		}
		if redisClient != nil {
			err = errors.Join(err, redisClient.Close())
		}
	}()

	metrics, err := bootstrap.NewMetrics(cfg.Observability.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, metrics.Close()) }()

	comps, err := bootstrap.BuildAuth(ctx, bootstrap.AuthDeps{
		Config:  cfg,
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	server := bootstrap.NewHTTPServer(cfg.HTTP, bootstrap.BuildHandler(cfg, comps, logger))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, logger)
	})
	return g.Wait()
}

// connectInfra opens only the connections the configuration needs.
//
//nolint:ireturn // redis.UniversalClient covers direct, sentinel and cluster clients.
func connectInfra(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, redis.UniversalClient, error) {
	var db *sql.DB
	if cfg.NeedsPostgres() {
		var err error
		if db, err = bootstrap.ConnectDB(ctx, cfg.Postgres, logger); err != nil {
			return nil, nil, err
		}
	}
	if !cfg.NeedsRedis() {
		return db, nil, nil
	}
	client, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		if db != nil {
			err = errors.Join(err, db.Close())
		}
		return nil, nil, err
	}
	return db, client, nil
}
