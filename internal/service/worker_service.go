package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// WorkflowExecutor runs one pending workflow by id.
type WorkflowExecutor interface {
	Execute(ctx context.Context, id string) (*domain.Workflow, error)
}

// WorkflowWorker consumes due workflow messages and executes them.
type WorkflowWorker struct {
	executor    WorkflowExecutor
	consumer    queue.Consumer
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorkflowWorker(
	executor WorkflowExecutor,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*WorkflowWorker, error) {
	if executor == nil {
		return nil, fmt.Errorf("workflow executor is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkflowWorker{
		executor:    executor,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (w *WorkflowWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs concurrency consumers on the workflow queue until ctx is cancelled.
func (w *WorkflowWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := range w.concurrency {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.WorkflowQueue),
			)

			if err := w.consumer.Consume(groupCtx, queue.WorkflowQueue, w.processMessage); err != nil {
				w.logger.Error("worker stopped with error", zap.Int("workerId", workerID), zap.Error(err))
				return err
			}

			w.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *WorkflowWorker) processMessage(ctx context.Context, msg queue.WorkflowMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrDeadLetter, err)
	}

	w.metrics.IncWorkerInFlight()
	defer w.metrics.DecWorkerInFlight()

	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	ctx = observability.WithWorkflowID(ctx, msg.WorkflowID)
	logger := observability.WithContextLogger(w.logger, ctx)

	workflow, err := w.executor.Execute(ctx, msg.WorkflowID)
	switch {
	case err == nil:
		logger.Info("workflow message processed", zap.String("status", workflow.Status.String()))
		return nil
	case errors.Is(err, domain.ErrConflict):
		logger.Info("workflow already claimed or finished, skipping")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("workflow not found, skipping")
		return nil
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrTemplateNotFound),
		errors.Is(err, domain.ErrUnknownScope),
		errors.Is(err, domain.ErrContentUnavailable):
		// Already stored as failed. Retrying is an explicit operation.
		logger.Warn("workflow failed permanently", zap.Error(err))
		return nil
	default:
		return err
	}
}
