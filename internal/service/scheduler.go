package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/queue"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSchedulerScanInterval = 5 * time.Second
	defaultSchedulerScanLimit    = 100
	minPublishLeaseTTL           = 30 * time.Second
	defaultStaleExecutionAfter   = 15 * time.Minute
	staleExecutionReason         = "execution abandoned: claim exceeded the execution timeout"
)

// PublishLease guards against publishing the same due workflow on every scan
// while it waits in the queue.
type PublishLease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Scheduler periodically publishes due pending workflows to the worker queue.
type Scheduler struct {
	workflows  repository.WorkflowRepository
	publisher  queue.Publisher
	lease      PublishLease
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	leaseTTL   time.Duration
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

func NewScheduler(
	workflows repository.WorkflowRepository,
	publisher queue.Publisher,
	lease PublishLease,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if workflows == nil {
		return nil, fmt.Errorf("workflow repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSchedulerScanInterval
	}
	if limit <= 0 {
		limit = defaultSchedulerScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		workflows:  workflows,
		publisher:  publisher,
		lease:      lease,
		logger:     logger,
		interval:   interval,
		leaseTTL:   max(6*interval, minPublishLeaseTTL),
		staleAfter: defaultStaleExecutionAfter,
		limit:      limit,
		now:        time.Now,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SetStaleAfter bounds how long a workflow may stay executing before a scan
// fails it. Non-positive values keep the default.
func (s *Scheduler) SetStaleAfter(d time.Duration) {
	if s == nil || d <= 0 {
		return
	}
	s.staleAfter = d
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler scan failed", zap.Error(err))
			}
		}
	}
}

// scanDue publishes every pending workflow whose time has come and returns
// how many messages went out.
func (s *Scheduler) scanDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	s.recoverStale(ctx, now)

	due, err := s.workflows.ListDue(ctx, now, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due workflows: %w", err)
	}

	published := 0
	for _, workflow := range due {
		logger := s.logger.With(zap.String("workflowId", workflow.ID))

		if s.lease != nil {
			acquired, err := s.lease.Acquire(ctx, workflow.ID, s.leaseTTL)
			if err != nil {
				logger.Error("failed to acquire publish lease", zap.Error(err))
				continue
			}
			if !acquired {
				continue
			}
		}

		msg := queue.WorkflowMessage{
			WorkflowID:  workflow.ID,
			ScheduledAt: workflow.ScheduledAt,
		}
		if err := s.publisher.Publish(ctx, queue.WorkflowQueue, msg); err != nil {
			logger.Error("failed to enqueue due workflow", zap.String("queue", queue.WorkflowQueue), zap.Error(err))
			if s.lease != nil {
				if releaseErr := s.lease.Release(ctx, workflow.ID); releaseErr != nil {
					logger.Warn("failed to release publish lease", zap.Error(releaseErr))
				}
			}
			continue
		}
		published++
	}

	if published > 0 {
		s.metrics.AddWorkflowsPublished(published)
		s.logger.Info("due workflows published", zap.Int("count", published))
	}
	return published, nil
}

// recoverStale fails executing workflows whose claim is older than staleAfter,
// which makes them eligible for Retry and Delete again.
func (s *Scheduler) recoverStale(ctx context.Context, now time.Time) {
	recovered, err := s.workflows.FailStaleExecutions(ctx, now.Add(-s.staleAfter), staleExecutionReason)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to recover stale executions", zap.Error(err))
		}
		return
	}
	if recovered == 0 {
		return
	}
	for range recovered {
		s.metrics.IncWorkflowTransition(domain.WorkflowFailed.String())
	}
	s.logger.Warn("stale executing workflows marked failed",
		zap.Int64("count", recovered),
		zap.Duration("staleAfter", s.staleAfter),
	)
}
