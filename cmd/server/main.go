// Package main is the entry point for the storefront server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/storefront/internal/catalog"
	"github.com/vyrodovalexey/storefront/internal/checkout"
	"github.com/vyrodovalexey/storefront/internal/config"
	"github.com/vyrodovalexey/storefront/internal/server"
	"github.com/vyrodovalexey/storefront/internal/state"
	"github.com/vyrodovalexey/storefront/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		return startupFailure("invalid configuration", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return startupFailure("cannot build logger", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("storefront starting",
		zap.Int("server_port", cfg.ServerPort),
		zap.Int("probe_port", cfg.ProbePort),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("catalog_base_url", cfg.CatalogBaseURL),
		zap.Duration("catalog_cache_ttl", cfg.CatalogCacheTTL),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("storage_name", cfg.StorageName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, backend, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("cannot assemble server", zap.Error(err))
		return 1
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("failed to close store backend", zap.Error(err))
		}
	}()

	if err := serve(ctx, srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("storefront stopped with error", zap.Error(err))
		return 1
	}

	logger.Info("storefront stopped")
	return 0
}

// lifecycle is the part of the server serve drives.
type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until ctx ends or srv fails, then drains it within
// timeout.
func serve(ctx context.Context, srv lifecycle, timeout time.Duration, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("draining connections", zap.Duration("timeout", timeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// startupFailure reports an error raised before the configured logger
// exists.
func startupFailure(msg string, err error) int {
	fallback, buildErr := zap.NewProduction()
	if buildErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		return 1
	}
	fallback.Error(msg, zap.Error(err))
	_ = fallback.Sync()
	return 1
}

// newServer opens the store backend and wires the catalog, checkout and
// session services into a server. The caller owns the returned backend.
func newServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server.Server, store.Store, error) {
	client, err := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("creating catalog client: %w", err)
	}

	backend, err := store.New(ctx, cfg.StoreBackend, cfg.StoreDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", cfg.StoreBackend, err)
	}

	catalogService := catalog.NewService(client, logger.Named("catalog"), catalog.ServiceOptions{
		CacheTTL:         cfg.CatalogCacheTTL,
		SearchMinLength:  cfg.SearchMinLength,
		SearchMaxResults: cfg.SearchMaxResults,
	})

	srv := server.New(cfg, logger, server.Dependencies{
		Registry: state.NewRegistry(cfg.StorageName, backend, logger.Named("state")),
		Backend:  backend,
		Catalog:  catalogService,
		Checkout: checkout.NewService(logger.Named("checkout"), cfg.CheckoutDelay, cfg.ContactDelay),
	})

	return srv, backend, nil
}

// initLogger builds the JSON production logger at level. Unknown levels
// fall back to info.
func initLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}

	return cfg.Build()
}
