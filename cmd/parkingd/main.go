package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"parking-occupancy-backend/config"
	"parking-occupancy-backend/internal/api"
	"parking-occupancy-backend/internal/auth"
	"parking-occupancy-backend/internal/db"
	"parking-occupancy-backend/internal/mw"
	"parking-occupancy-backend/internal/occupancy"
	"parking-occupancy-backend/internal/report"
	"parking-occupancy-backend/internal/snapshot"
	"parking-occupancy-backend/internal/store"
)

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret (or JWT_SECRET) must be set")
	}

	// Initialize database
	gormDB, err := db.Init(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)
	defer func() {
		if err := appStore.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}()

	snapshots := snapshot.NewEngine(appStore, logger.Named("snapshot"), cfg.Snapshot.ListLimit)
	occ := occupancy.NewEngine(appStore, snapshots, logger.Named("occupancy"))
	reports := report.NewService(appStore, logger.Named("report"))
	authService := auth.NewService(gormDB, cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute, logger.Named("auth"))

	handler := api.NewHandler(occ, snapshots, reports, authService,
		mw.NewResponseCache(cfg.Server.CacheTTL), logger.Named("api"))
	router := api.NewRouter(handler, authService, api.RouterConfig{
		RateLimit: rate.Limit(cfg.Server.RateLimitPerSec),
		Burst:     cfg.Server.RateLimitBurst,
	}, logger.Named("http"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
}
