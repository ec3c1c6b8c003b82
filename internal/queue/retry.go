package queue

import (
	"context"

	"github.com/OFFIS-RIT/leech/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const RetriesHeader = "x-retries"

func retriesOf(headers amqp091.Table) int {
	switch v := headers[RetriesHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// HandleProcessingError moves a failed message to the retry queue, or to the
// dead-letter queue once it has been retried maxRetries times. The original
// delivery is acked once the copy is published and requeued otherwise.
func HandleProcessingError(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string, maxRetries int) {
	retries := retriesOf(msg.Headers)

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := RetryName(queueName)
	if retries >= maxRetries {
		target = DLQName(queueName)
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", retries, "message_id", msg.MessageId)
	} else {
		headers[RetriesHeader] = int32(retries + 1)
	}

	pubErr := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		MessageId:    msg.MessageId,
		Type:         msg.Type,
		DeliveryMode: amqp091.Persistent,
	})
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish failed message", "queue", target, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}
