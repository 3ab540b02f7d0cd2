// Package app builds the notification pipeline shared by the api and worker
// binaries.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kursadbilgin/community-notify/internal/config"
	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/infra/postgresql"
	"github.com/kursadbilgin/community-notify/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/community-notify/internal/infra/redis"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/provider"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"github.com/kursadbilgin/community-notify/internal/service"
)

// Runtime owns the shared connections and the assembled workflow service.
type Runtime struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	DB        *gorm.DB
	Redis     *goredis.Client
	Workflows repository.WorkflowRepository
	Service   *service.WorkflowService
}

// New connects to postgres and redis, applies migrations, seeds the default
// templates and wires the orchestrator behind a WorkflowService.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: metrics, DB: db}

	if err := migrations.Migrate(db); err != nil {
		rt.Close()
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}

	rt.Redis, err = infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}

	if err := rt.build(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg := rt.Config

	limiter, err := infraredis.NewRedisRateLimiter(rt.Redis, cfg.RateLimitPerSec, map[domain.Channel]int{
		domain.ChannelPush:  cfg.PushRateLimitPerSec,
		domain.ChannelEmail: cfg.EmailRateLimitPerSec,
	})
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	pushGateway, err := provider.NewExpoPushGateway(provider.ExpoPushOptions{
		Endpoint:    cfg.PushGatewayURL,
		AccessToken: cfg.PushAccessToken,
		BatchSize:   cfg.PushBatchSize,
		Timeout:     cfg.CallTimeout(),
	})
	if err != nil {
		return fmt.Errorf("push gateway initialization failed: %w", err)
	}

	emailGateway, err := provider.NewBrevoEmailGateway(provider.BrevoEmailOptions{
		Endpoint:  cfg.EmailGatewayURL,
		APIKey:    cfg.EmailAPIKey,
		BatchSize: cfg.EmailBatchSize,
		Timeout:   cfg.CallTimeout(),
	})
	if err != nil {
		return fmt.Errorf("email gateway initialization failed: %w", err)
	}

	templates := repository.NewGormTemplateRepo(rt.DB)
	directory := repository.NewGormDirectoryRepo(rt.DB)
	receipts := repository.NewGormReceiptRepo(rt.DB)
	rt.Workflows = repository.NewGormWorkflowRepo(rt.DB)

	if _, err := service.SeedTemplates(ctx, templates, service.DefaultTemplates(), rt.Logger); err != nil {
		return err
	}

	content, err := service.NewContentResolver(templates, directory, cfg.CallTimeout(), rt.Logger)
	if err != nil {
		return err
	}
	recipients, err := service.NewRecipientResolver(directory, cfg.CallTimeout(), rt.Logger)
	if err != nil {
		return err
	}

	push, err := service.NewPushDispatcher(pushGateway, limiter, cfg.PushConcurrency, cfg.CallTimeout(), rt.Logger)
	if err != nil {
		return err
	}
	push.SetMetrics(rt.Metrics)

	email, err := service.NewEmailDispatcher(emailGateway, limiter, service.EmailDispatcherOptions{
		DefaultTemplateID: int64(cfg.EmailDefaultTemplateID),
		SenderName:        cfg.EmailSenderName,
		SenderEmail:       cfg.EmailSenderAddress,
		Timeout:           cfg.CallTimeout(),
	}, rt.Logger)
	if err != nil {
		return err
	}
	email.SetMetrics(rt.Metrics)

	orchestrator, err := service.NewOrchestrator(content, recipients, push, email, rt.Logger)
	if err != nil {
		return err
	}
	orchestrator.SetMetrics(rt.Metrics)

	rt.Service, err = service.NewWorkflowService(rt.Workflows, receipts, orchestrator, rt.Logger)
	if err != nil {
		return err
	}
	rt.Service.SetMetrics(rt.Metrics)
	return nil
}

// PingPostgres and PingRedis back the readiness checks.
func (rt *Runtime) PingPostgres(ctx context.Context) error {
	return postgresql.Ping(ctx, rt.DB)
}

func (rt *Runtime) PingRedis(ctx context.Context) error {
	return infraredis.Ping(ctx, rt.Redis)
}

// Close releases the redis client and the postgres pool.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				rt.Logger.Warn("postgres close failed", zap.Error(err))
			}
		}
	}
}
