package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/queue"
	"go.uber.org/zap"
)

func TestWorkflowWorkerProcessMessage(t *testing.T) {
	t.Parallel()

	transient := errors.New("db timeout")
	tests := []struct {
		name        string
		msg         queue.WorkflowMessage
		executeErr  error
		wantErr     error
		wantExecute bool
	}{
		{name: "completed", msg: queue.WorkflowMessage{WorkflowID: "wf-1"}, wantExecute: true},
		{name: "already claimed", msg: queue.WorkflowMessage{WorkflowID: "wf-1"}, executeErr: fmt.Errorf("%w: not pending", domain.ErrConflict), wantExecute: true},
		{name: "deleted", msg: queue.WorkflowMessage{WorkflowID: "wf-1"}, executeErr: domain.ErrNotFound, wantExecute: true},
		{name: "permanent failure", msg: queue.WorkflowMessage{WorkflowID: "wf-1"}, executeErr: domain.ErrTemplateNotFound, wantExecute: true},
		{name: "transient failure requeues", msg: queue.WorkflowMessage{WorkflowID: "wf-1"}, executeErr: transient, wantErr: transient, wantExecute: true},
		{name: "malformed message", msg: queue.WorkflowMessage{}, wantErr: queue.ErrDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			executed := false
			executor := &fakeExecutor{executeFn: func(ctx context.Context, id string) (*domain.Workflow, error) {
				executed = true
				if got, ok := observability.WorkflowIDFromContext(ctx); !ok || got != id {
					t.Errorf("context workflow id = %q, want %q", got, id)
				}
				if tt.executeErr != nil {
					return nil, tt.executeErr
				}
				return &domain.Workflow{ID: id, Status: domain.WorkflowCompleted}, nil
			}}

			worker, err := NewWorkflowWorker(executor, &fakeConsumer{}, 1, zap.NewNop())
			if err != nil {
				t.Fatalf("NewWorkflowWorker() error = %v", err)
			}
			worker.SetMetrics(observability.NewMetrics())

			err = worker.processMessage(context.Background(), tt.msg)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("processMessage() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("processMessage() error = %v, want %v", err, tt.wantErr)
			}
			if executed != tt.wantExecute {
				t.Fatalf("executed = %v, want %v", executed, tt.wantExecute)
			}
		})
	}
}

func TestWorkflowWorkerStartRunsConsumers(t *testing.T) {
	t.Parallel()

	var consumers atomic.Int32
	consumer := &fakeConsumer{consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
		if queueName != queue.WorkflowQueue {
			t.Errorf("queue = %s, want %s", queueName, queue.WorkflowQueue)
		}
		consumers.Add(1)
		return handler(ctx, queue.WorkflowMessage{WorkflowID: "wf-1"})
	}}

	worker, err := NewWorkflowWorker(&fakeExecutor{}, consumer, 3, nil)
	if err != nil {
		t.Fatalf("NewWorkflowWorker() error = %v", err)
	}

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if consumers.Load() != 3 {
		t.Fatalf("consumers = %d, want 3", consumers.Load())
	}
}

func TestWorkflowWorkerStartPropagatesConsumerError(t *testing.T) {
	t.Parallel()

	consumeErr := errors.New("consume failed")
	consumer := &fakeConsumer{consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
		return consumeErr
	}}

	worker, err := NewWorkflowWorker(&fakeExecutor{}, consumer, 2, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorkflowWorker() error = %v", err)
	}

	if err := worker.Start(context.Background()); !errors.Is(err, consumeErr) {
		t.Fatalf("Start() error = %v, want %v", err, consumeErr)
	}
}
