package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQConsumer runs one channel per Consume call. Each channel has its own
// prefetch window, so concurrency is the number of Consume calls.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger

	mu       sync.Mutex
	channels map[*amqp.Channel]struct{}
	closed   bool
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: max(prefetch, 1),
		logger:   logger,
		channels: make(map[*amqp.Channel]struct{}),
	}
}

// Consume delivers messages from queue to handler until ctx is cancelled or
// the consumer is closed. Broker failures are retried with backoff.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	wait := minBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}
		if err == nil {
			wait = minBackoff
			continue
		}

		c.logger.Warn("consumer interrupted", zap.String("queue", queue), zap.Duration("retryIn", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

// Close stops every running Consume loop. The shared connection stays open.
func (c *RabbitMQConsumer) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.closed = true
	channels := c.channels
	c.channels = make(map[*amqp.Channel]struct{})
	c.mu.Unlock()

	var errs []error
	for ch := range channels {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *RabbitMQConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *RabbitMQConsumer) track(ch *amqp.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.channels[ch] = struct{}{}
	return true
}

func (c *RabbitMQConsumer) untrack(ch *amqp.Channel) {
	c.mu.Lock()
	delete(c.channels, ch)
	c.mu.Unlock()
	_ = ch.Close()
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.openChannel(ctx)
	if err != nil {
		return err
	}
	if !c.track(ch) {
		_ = ch.Close()
		return nil
	}
	defer c.untrack(ch)

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %q closed", queue)
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeDelivery(d)
	if err != nil {
		c.logger.Warn("rejecting undecodable message",
			zap.String("messageId", d.MessageId),
			zap.Error(err),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject message %q: %w", d.MessageId, rejectErr)
		}
		return nil
	}

	logger := c.logger.With(
		zap.String("workflowId", msg.WorkflowID),
		zap.Bool("redelivered", d.Redelivered),
	)

	handlerErr := handler(ctx, msg)
	switch dispositionFor(handlerErr, d.Redelivered) {
	case dispositionDeadLetter:
		logger.Warn("dead-lettering workflow message", zap.Error(handlerErr))
		if err := d.Reject(false); err != nil {
			return fmt.Errorf("failed to dead-letter workflow %s: %w", msg.WorkflowID, err)
		}
	case dispositionRequeue:
		logger.Warn("requeueing workflow message", zap.Error(handlerErr))
		if err := d.Nack(false, true); err != nil {
			return fmt.Errorf("failed to requeue workflow %s: %w", msg.WorkflowID, err)
		}
	default:
		if err := d.Ack(false); err != nil {
			return fmt.Errorf("failed to ack workflow %s: %w", msg.WorkflowID, err)
		}
	}
	return nil
}

// decodeDelivery parses a workflow message. Broker properties fill in a
// missing workflow or correlation id.
func decodeDelivery(d amqp.Delivery) (WorkflowMessage, error) {
	var msg WorkflowMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return WorkflowMessage{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if strings.TrimSpace(msg.WorkflowID) == "" {
		msg.WorkflowID = d.MessageId
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = d.CorrelationId
	}
	if err := msg.Validate(); err != nil {
		return WorkflowMessage{}, err
	}
	return msg, nil
}

type disposition int

const (
	dispositionAck disposition = iota
	dispositionRequeue
	dispositionDeadLetter
)

// dispositionFor decides what happens to a delivery after the handler ran.
// A message that already failed once is dead-lettered instead of looping.
func dispositionFor(err error, redelivered bool) disposition {
	switch {
	case err == nil:
		return dispositionAck
	case errors.Is(err, ErrDeadLetter), redelivered:
		return dispositionDeadLetter
	default:
		return dispositionRequeue
	}
}
