package queue

import (
	"context"
	"errors"
)

// Publisher publishes workflow execution messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg WorkflowMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message. Returning an error wrapping
// ErrDeadLetter moves the message to the dead-letter queue; any other error
// requeues it.
type MessageHandler func(ctx context.Context, msg WorkflowMessage) error

// Consumer consumes workflow execution messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var ErrDeadLetter = errors.New("dead letter")

const (
	// WorkflowQueue carries due workflows from the scheduler to the worker.
	WorkflowQueue = "workflows.execute"
	routingKey    = "workflows"
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.workflows.execute.
func DLQName(queue string) string {
	return "dlq." + queue
}
