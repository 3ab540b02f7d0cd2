package app

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/community-notify/internal/handler"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// NewHTTPServer returns a fiber app with the common middleware, the health
// routes and /metrics. Callers mount their own routes afterwards.
func NewHTTPServer(appName string, logger *zap.Logger, metrics *observability.Metrics, checks ...handler.ReadinessCheck) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := fiber.New(fiber.Config{
		AppName:               appName,
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	server.Use(recover.New())
	server.Use(requestid.New())
	if metrics != nil {
		server.Use(metrics.HTTPMiddleware())
		server.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}
	handler.RegisterHealthRoutes(server, checks...)

	return server
}

// Serve listens on addr until ctx is cancelled, then shuts the server down.
func Serve(ctx context.Context, server *fiber.App, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(addr)
	}()
	logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("http server stopped")
	return nil
}
