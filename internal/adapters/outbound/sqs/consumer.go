// Package sqs reads event batches from the ingestion queue on AWS SQS.
package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/archon-research/event-store/internal/ports/outbound"
)

// maxBatch is the SQS limit on messages per receive call.
const maxBatch = 10

// sqsAPI is the subset of the SQS client the Consumer uses.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Compile-time check that Consumer implements outbound.SQSConsumer
var _ outbound.SQSConsumer = (*Consumer)(nil)

// Config holds SQS consumer configuration.
type Config struct {
	// QueueURL is the URL of the event batch queue.
	QueueURL string

	// WaitTimeSeconds is how long a receive call long-polls. Max is 20 seconds.
	WaitTimeSeconds int32

	// VisibilityTimeout hides a received batch from other consumers while it
	// is being persisted. Zero keeps the queue's own setting.
	VisibilityTimeout time.Duration
}

// ConfigDefaults returns sensible defaults for SQS consumer configuration.
func ConfigDefaults() Config {
	return Config{
		WaitTimeSeconds: 20,
	}
}

// Consumer is an SQS implementation of the outbound.SQSConsumer port.
type Consumer struct {
	client sqsAPI
	config Config
	logger *slog.Logger
}

// NewConsumer creates a new SQS consumer. optFns customize the SQS client,
// e.g. to point it at a local endpoint.
func NewConsumer(cfg aws.Config, sqsConfig Config, logger *slog.Logger, optFns ...func(*sqs.Options)) (*Consumer, error) {
	return newConsumer(sqs.NewFromConfig(cfg, optFns...), sqsConfig, logger)
}

func newConsumer(client sqsAPI, sqsConfig Config, logger *slog.Logger) (*Consumer, error) {
	if sqsConfig.QueueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}
	if sqsConfig.WaitTimeSeconds <= 0 || sqsConfig.WaitTimeSeconds > 20 {
		sqsConfig.WaitTimeSeconds = ConfigDefaults().WaitTimeSeconds
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		client: client,
		config: sqsConfig,
		logger: logger.With("component", "sqs-consumer"),
	}, nil
}

// ReceiveMessages fetches up to maxMessages batches from the queue.
func (c *Consumer) ReceiveMessages(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error) {
	maxMessages = max(1, min(maxMessages, maxBatch))

	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(c.config.QueueURL),
		MaxNumberOfMessages:         int32(maxMessages),
		WaitTimeSeconds:             c.config.WaitTimeSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if c.config.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(c.config.VisibilityTimeout / time.Second)
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]outbound.SQSMessage, 0, len(result.Messages))
	for _, msg := range result.Messages {
		if msg.MessageId == nil || msg.ReceiptHandle == nil || msg.Body == nil {
			c.logger.Warn("skipping incomplete message")
			continue
		}
		received, _ := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		messages = append(messages, outbound.SQSMessage{
			MessageID:     *msg.MessageId,
			ReceiptHandle: *msg.ReceiptHandle,
			Body:          *msg.Body,
			ReceiveCount:  received,
		})
	}

	if len(messages) > 0 {
		c.logger.Debug("received event batches", "count", len(messages))
	}
	return messages, nil
}

// DeleteMessage acknowledges a persisted batch.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ReleaseMessage sets the remaining visibility timeout of a message to delay.
func (c *Consumer) ReleaseMessage(ctx context.Context, receiptHandle string, delay time.Duration) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.config.QueueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(max(delay, 0) / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connections of its own.
func (c *Consumer) Close() error {
	return nil
}
