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

	"github.com/Harshitk-cp/iotpilot/internal/api"
	"github.com/Harshitk-cp/iotpilot/internal/app"
	"github.com/Harshitk-cp/iotpilot/internal/buildconfig"
	"github.com/Harshitk-cp/iotpilot/internal/config"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting iotpilot",
		zap.String("version", buildconfig.Version()),
		zap.String("commit", buildconfig.Commit()))

	if cfg.AutoMigrate {
		if err := store.Migrate(cfg.DatabaseURL, "up"); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")
	}

	ctx := context.Background()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer c.Close()
	logger.Info("connected to database")

	c.StartWorkers(ctx)

	router := api.NewApp(api.Deps{
		DB:       c.Pool,
		Commands: c.Commands,
		Queries:  c.Queries,
		Auth:     c.Auth,
		Tokens:   c.Tokens,
		Devices:  c.Services.Devices,
		Metrics:  c.Services.Metrics,
	}, api.Options{
		CookieName:       cfg.SessionCookieName,
		CookieSecure:     cfg.SessionCookieSecure,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		WSOriginPatterns: cfg.WSAllowedOrigins,
	}, logger)
	defer router.Close()

	addr := cfg.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background services
	c.StopWorkers(shutdownCtx)

	logger.Info("server stopped")
}
