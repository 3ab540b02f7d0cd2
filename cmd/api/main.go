package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kursadbilgin/community-notify/internal/app"
	"github.com/kursadbilgin/community-notify/internal/config"
	"github.com/kursadbilgin/community-notify/internal/handler"
	"github.com/kursadbilgin/community-notify/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("community-notify-api", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	rt, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal("runtime initialization failed", zap.Error(err))
	}
	defer rt.Close()

	server := app.NewHTTPServer("community-notify-api", logger, metrics,
		handler.ReadinessCheck{Name: "postgres", Check: rt.PingPostgres},
		handler.ReadinessCheck{Name: "redis", Check: rt.PingRedis},
	)

	protected := server.Group("", handler.APIKeyAuth(cfg.APIKey))
	if err := handler.RegisterNotifyRoutes(protected, rt.Service, logger); err != nil {
		logger.Fatal("notify routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterWorkflowRoutes(protected, rt.Service); err != nil {
		logger.Fatal("workflow routes registration failed", zap.Error(err))
	}
	if cfg.APIKey == "" {
		logger.Warn("API_KEY is empty, admin and notify routes are unauthenticated")
	}

	logger.Info("community-notify api started", zap.Int("port", cfg.APIPort))
	if err := app.Serve(ctx, server, fmt.Sprintf(":%d", cfg.APIPort), logger); err != nil {
		logger.Error("http server failed", zap.Error(err))
	}
}
