package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kursadbilgin/community-notify/internal/observability"
)

const messageTypeExecute = "workflow.execute"

// RabbitMQPublisher publishes on a single confirm-mode channel. Publish
// returns only after the broker has taken responsibility for the message.
type RabbitMQPublisher struct {
	client *RabbitMQ

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg WorkflowMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID, _ = observability.CorrelationIDFromContext(ctx)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid workflow message: %w", err)
	}

	publishing, err := newPublishing(msg, time.Now().UTC())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.confirmChannel(ctx)
	if err != nil {
		return err
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		p.dropChannel()
		return fmt.Errorf("failed to publish workflow %s to %q: %w", msg.WorkflowID, queue, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		p.dropChannel()
		return fmt.Errorf("failed to confirm workflow %s: %w", msg.WorkflowID, err)
	}
	if !acked {
		return fmt.Errorf("broker refused workflow %s on %q", msg.WorkflowID, queue)
	}
	return nil
}

// Close closes the publish channel. The shared connection stays open.
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		p.ch = nil
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

func (p *RabbitMQPublisher) confirmChannel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.client.openChannel(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *RabbitMQPublisher) dropChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func newPublishing(msg WorkflowMessage, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal workflow message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now,
		MessageId:     msg.WorkflowID,
		CorrelationId: msg.CorrelationID,
		Type:          messageTypeExecute,
		Body:          body,
	}, nil
}
