package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/tidwall/gjson"
)

// EventKindHeader carries the event kind a message was published with.
const EventKindHeader = "x-event-kind"

// AMQPPublisher publishes pipeline messages straight to the destination
// queue. A channel is not safe for concurrent publishing, so calls are
// serialized.
type AMQPPublisher struct {
	mu sync.Mutex
	ch Channel
}

func NewAMQPPublisher(ch Channel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch}
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventKind, destination string, payload []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		MessageId:    gjson.GetBytes(payload, "message_id").String(),
		Type:         gjson.GetBytes(payload, "task_name").String(),
		Headers:      amqp091.Table{EventKindHeader: eventKind},
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", destination, false, false, publishing); err != nil {
		return fmt.Errorf("publish to %s: %w", destination, err)
	}
	return nil
}
