package outbound

import (
	"context"
	"time"
)

// SQSMessage is one event batch received from the ingestion queue.
type SQSMessage struct {
	MessageID string

	// ReceiptHandle is needed to delete or release the message.
	ReceiptHandle string

	// Body is the raw message body (JSON).
	Body string

	// ReceiveCount is how many times the queue has delivered this message,
	// this delivery included. Zero when the queue did not report it.
	ReceiveCount int
}

// SQSConsumer consumes event batches from an SQS queue.
type SQSConsumer interface {
	// ReceiveMessages fetches up to maxMessages from the queue.
	// Returns an empty slice if no messages are available.
	ReceiveMessages(ctx context.Context, maxMessages int) ([]SQSMessage, error)

	// DeleteMessage removes a successfully persisted batch from the queue.
	DeleteMessage(ctx context.Context, receiptHandle string) error

	// ReleaseMessage makes a message visible again after delay instead of
	// waiting for its visibility timeout.
	ReleaseMessage(ctx context.Context, receiptHandle string, delay time.Duration) error

	// Close closes the consumer and releases resources.
	Close() error
}
