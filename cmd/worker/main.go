package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/community-notify/internal/app"
	"github.com/kursadbilgin/community-notify/internal/config"
	"github.com/kursadbilgin/community-notify/internal/handler"
	infraredis "github.com/kursadbilgin/community-notify/internal/infra/redis"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/queue"
	"github.com/kursadbilgin/community-notify/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("community-notify-worker", cfg.LogLevel)
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

	rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	defer consumer.Close()

	scheduler, err := service.NewScheduler(
		rt.Workflows,
		publisher,
		infraredis.NewRedisLease(rt.Redis, "scheduler"),
		cfg.SchedulerInterval(),
		cfg.SchedulerScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	scheduler.SetMetrics(metrics)
	scheduler.SetStaleAfter(cfg.ExecutionTimeout())

	worker, err := service.NewWorkflowWorker(rt.Service, consumer, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	server := app.NewHTTPServer("community-notify-worker", logger, metrics,
		handler.ReadinessCheck{Name: "postgres", Check: rt.PingPostgres},
		handler.ReadinessCheck{Name: "redis", Check: rt.PingRedis},
		handler.ReadinessCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if !rabbit.IsConnected() {
				return fmt.Errorf("rabbitmq is not connected")
			}
			return nil
		}},
	)

	logger.Info("community-notify worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("schedulerInterval", cfg.SchedulerInterval()),
		zap.Duration("executionTimeout", cfg.ExecutionTimeout()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Start(gctx) })
	g.Go(func() error { return worker.Start(gctx) })
	g.Go(func() error { return app.Serve(gctx, server, fmt.Sprintf(":%d", cfg.WorkerPort), logger) })

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("community-notify worker stopped")
}
