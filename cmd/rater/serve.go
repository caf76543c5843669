package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tokenwatch/rater/internal/advisory"
	"github.com/tokenwatch/rater/internal/cache"
	"github.com/tokenwatch/rater/internal/config"
	"github.com/tokenwatch/rater/internal/engine"
	"github.com/tokenwatch/rater/internal/httpapi"
	"github.com/tokenwatch/rater/internal/metrics"
	"github.com/tokenwatch/rater/internal/persistence"
	"github.com/tokenwatch/rater/internal/persistence/postgres"
	"github.com/tokenwatch/rater/internal/persistence/redisstore"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the rating HTTP server",
		Long:  "Serves /api/v1/rate, rating history, /health, /metrics, and the /ws/alerts stream.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	eng, err := engine.New(cfg.Engine, deps)
	if err != nil {
		return err
	}

	reg := deps.Metrics.(*metrics.Registry)
	opts := httpapi.Options{Metrics: reg, MetricsHandler: reg.Handler()}
	if cfg.Redis.EnableCache {
		opts.Cache = cache.NewRatingCache(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.CacheTTL, logger)
	}
	api := httpapi.NewServer(eng, opts, logger)
	defer api.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("rating server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildDeps wires the configured stores, advisor, and metrics into the
// engine dependency set.
func buildDeps(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (engine.Deps, func(), error) {
	deps := engine.Deps{
		Logger:  logger,
		Metrics: metrics.NewRegistry(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mem := persistence.NewMemoryStore()

	if cfg.Postgres.Enabled {
		db, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return engine.Deps{}, nil, err
		}
		closers = append(closers, func() { db.Close() })
		deps.RatingStore = postgres.NewRatingsRepo(db, cfg.Postgres.QueryTimeout)
		logger.Info().Msg("postgres rating store enabled")
	} else {
		deps.RatingStore = mem
	}

	if cfg.Redis.EnableMomentum {
		store := redisstore.NewMomentumStore(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.MomentumTTL, logger)
		closers = append(closers, func() { store.Close() })
		deps.MomentumStore = store
		logger.Info().Msg("redis momentum store enabled")
	} else {
		// Streak tracking stays alive in-process without Redis.
		deps.MomentumStore = mem
	}

	if cfg.Engine.AdvisoryEnabled {
		deps.Advisor = advisory.NewClient(cfg.Advisory, logger)
		logger.Info().Str("url", cfg.Advisory.BaseURL).Msg("advisory client enabled")
	}

	return deps, cleanup, nil
}
