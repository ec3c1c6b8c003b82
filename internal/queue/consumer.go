package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/leech/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

type Handler func(ctx context.Context, body []byte) error

type ConsumerOptions struct {
	Workers    int
	MaxRetries int
	// Permanent reports errors that retrying cannot fix. Such messages go
	// to the dead-letter queue immediately.
	Permanent func(error) bool
}

// Consumer feeds deliveries from several queues to a fixed number of
// workers. Messages are acked manually after the handler returns.
type Consumer struct {
	mu     sync.Mutex
	ch     Channel
	queues []string
	handle Handler
	opts   ConsumerOptions
}

type queuedMessage struct {
	msg       amqp091.Delivery
	queueName string
}

func NewConsumer(ch Channel, queues []string, handle Handler, opts ConsumerOptions) *Consumer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Consumer{ch: ch, queues: queues, handle: handle, opts: opts}
}

// Run consumes until ctx is done or a delivery channel closes. In-flight
// messages are finished before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.opts.Workers, 0, true); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	messageChan := make(chan queuedMessage)
	g, gctx := errgroup.WithContext(ctx)

	for _, queueName := range c.queues {
		msgs, err := c.ch.Consume(
			queueName,
			queueName+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queueName, err)
		}

		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					logger.Info("[Queue] Stopping consumer", "queue", queueName)
					return nil
				case msg, ok := <-msgs:
					if !ok {
						return fmt.Errorf("%w: %s", ErrDeliveriesClosed, queueName)
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: queueName}:
					case <-gctx.Done():
						_ = msg.Nack(false, true)
						return nil
					}
				}
			}
		})
	}

	for range c.opts.Workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case qm := <-messageChan:
					c.process(context.WithoutCancel(gctx), qm)
				}
			}
		})
	}

	logger.Info("[Queue] Listening for messages", "queues", c.queues, "workers", c.opts.Workers)
	return g.Wait()
}

func (c *Consumer) process(ctx context.Context, qm queuedMessage) {
	startTime := time.Now()
	logger.Debug("[Queue] Received message", "queue", qm.queueName, "message_id", qm.msg.MessageId)

	err := c.handle(ctx, qm.msg.Body)
	if err != nil {
		logger.Error("[Queue] Error processing message", "queue", qm.queueName, "message_id", qm.msg.MessageId, "err", err)
		maxRetries := c.opts.MaxRetries
		if c.opts.Permanent != nil && c.opts.Permanent(err) {
			maxRetries = 0
		}
		c.mu.Lock()
		HandleProcessingError(ctx, c.ch, qm.msg, qm.queueName, maxRetries)
		c.mu.Unlock()
		return
	}

	if err := qm.msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info("[Queue] Message processed successfully", "queue", qm.queueName, "duration", time.Since(startTime))
}
