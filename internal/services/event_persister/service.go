// Package eventpersister consumes event batches from SQS and hands them to
// the event storage service.
//
// A message is deleted only after its batch was saved. Any other outcome
// releases it back to the queue, so a batch is persisted at least once and the
// queue's redrive policy moves batches that never succeed to a dead-letter
// queue. Saves are idempotent, which makes redelivery safe.
package eventpersister

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/pkg/retry"
	"github.com/archon-research/event-store/internal/ports/inbound"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

// Compile-time check that Service implements inbound.HealthChecker
var _ inbound.HealthChecker = (*Service)(nil)

// Batch is the message payload: events of one contract saved in one call.
type Batch struct {
	ContractName   string          `json:"contractName"`
	DeleteExisting bool            `json:"deleteExisting"`
	Events         []*entity.Event `json:"events"`
}

// errMalformedBatch marks messages that can never be persisted.
var errMalformedBatch = errors.New("malformed batch")

// Config holds configuration for the persister.
type Config struct {
	// Workers is the number of concurrent batch processors.
	Workers int

	// BatchSize is how many messages to fetch at once (max 10).
	BatchSize int

	// Retry controls resubmission of saves that failed transiently.
	Retry retry.Config

	// IsTransient classifies save errors. Nil never retries.
	IsTransient retry.IsRetryableFunc

	// ReleaseDelay is how long a failed message stays hidden before redelivery.
	ReleaseDelay time.Duration

	// PollErrorBackoff is the pause after a failed receive call.
	PollErrorBackoff time.Duration

	// HealthWindow is how recent the last successful poll must be for the
	// service to report healthy.
	HealthWindow time.Duration

	// Metrics is the metrics recorder (optional).
	Metrics outbound.PersisterMetricsRecorder

	// Logger for the service.
	Logger *slog.Logger
}

// ConfigDefaults returns sensible defaults for the persister.
func ConfigDefaults() Config {
	return Config{
		Workers:          4,
		BatchSize:        10,
		Retry:            retry.DefaultConfig(),
		ReleaseDelay:     30 * time.Second,
		PollErrorBackoff: 5 * time.Second,
		HealthWindow:     2 * time.Minute,
		Logger:           slog.Default(),
	}
}

// Service is the event persister worker.
type Service struct {
	config    Config
	consumer  outbound.SQSConsumer
	ingester  inbound.EventIngester
	logger    *slog.Logger
	ready     atomic.Bool
	lastPoll  atomic.Int64 // unix nanos of the last successful receive
	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new persister.
func NewService(config Config, consumer outbound.SQSConsumer, ingester inbound.EventIngester) (*Service, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}

	defaults := ConfigDefaults()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ReleaseDelay < 0 {
		config.ReleaseDelay = 0
	}
	if config.PollErrorBackoff <= 0 {
		config.PollErrorBackoff = defaults.PollErrorBackoff
	}
	if config.HealthWindow <= 0 {
		config.HealthWindow = defaults.HealthWindow
	}
	if config.IsTransient == nil {
		config.IsTransient = func(error) bool { return false }
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:   config,
		consumer: consumer,
		ingester: ingester,
		logger:   config.Logger.With("component", "event-persister"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Run polls the queue and blocks until ctx is cancelled or Stop is called.
// In-flight batches finish before Run returns.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting event persister", "workers", s.config.Workers, "batchSize", s.config.BatchSize)

	msgCh := make(chan outbound.SQSMessage, s.config.Workers*2)
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i, msgCh)
	}
	defer func() {
		close(msgCh)
		s.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping poller")
			return ctx.Err()
		case <-s.stopCh:
			s.logger.Info("stop signal received, stopping poller")
			return nil
		default:
		}

		messages, err := s.consumer.ReceiveMessages(ctx, s.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("failed to receive messages", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.stopCh:
				return nil
			case <-time.After(s.config.PollErrorBackoff):
			}
			continue
		}
		s.lastPoll.Store(time.Now().UnixNano())
		s.ready.Store(true)

		for _, msg := range messages {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Stop signals the service to stop.
func (s *Service) Stop() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
}

// IsReady reports whether the queue has been polled successfully at least once.
func (s *Service) IsReady() bool {
	return s.ready.Load()
}

// IsHealthy reports whether the last successful poll is within HealthWindow.
func (s *Service) IsHealthy() bool {
	last := s.LastPoll()
	if last.IsZero() {
		return false
	}
	return time.Since(last) <= s.config.HealthWindow
}

// LastPoll returns the time of the last successful receive call.
func (s *Service) LastPoll() time.Time {
	last := s.lastPoll.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}

func (s *Service) worker(ctx context.Context, id int, msgCh <-chan outbound.SQSMessage) {
	defer s.wg.Done()
	logger := s.logger.With("worker", id)

	for msg := range msgCh {
		start := time.Now()
		batch, err := s.processMessage(ctx, msg)
		s.recordMetrics(ctx, batch, time.Since(start), err)

		if err != nil {
			logger.Error("failed to persist batch",
				"messageID", msg.MessageID,
				"receiveCount", msg.ReceiveCount,
				"permanent", errors.Is(err, errMalformedBatch),
				"error", err,
			)
			if ctx.Err() != nil {
				continue
			}
			if err := s.consumer.ReleaseMessage(ctx, msg.ReceiptHandle, s.config.ReleaseDelay); err != nil {
				logger.Warn("failed to release message", "messageID", msg.MessageID, "error", err)
			}
			continue
		}

		if err := s.consumer.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
			logger.Error("failed to delete message", "messageID", msg.MessageID, "error", err)
		}
	}
}

func (s *Service) recordMetrics(ctx context.Context, batch *Batch, duration time.Duration, err error) {
	if s.config.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.config.Metrics.RecordBatchLatency(ctx, duration, status)
	if err == nil && batch != nil {
		s.config.Metrics.RecordEventsPersisted(ctx, batch.ContractName, len(batch.Events))
	}
}

// processMessage decodes one message and saves its batch, resubmitting
// transient failures.
func (s *Service) processMessage(ctx context.Context, msg outbound.SQSMessage) (*Batch, error) {
	batch, err := DecodeBatch(msg.Body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("persisting batch",
		"messageID", msg.MessageID,
		"contract", batch.ContractName,
		"events", len(batch.Events),
		"deleteExisting", batch.DeleteExisting,
	)

	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("retrying batch",
			"messageID", msg.MessageID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
	}
	err = retry.DoVoid(ctx, s.config.Retry, s.config.IsTransient, onRetry, func() error {
		return s.ingester.ProcessEvents(ctx, batch.ContractName, batch.Events, batch.DeleteExisting)
	})
	return batch, err
}

// DecodeBatch parses a message body, unwrapping an SNS notification envelope
// when present.
func DecodeBatch(body string) (*Batch, error) {
	var envelope struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Type == "Notification" && envelope.Message != "" {
		body = envelope.Message
	}

	var batch Batch
	if err := json.Unmarshal([]byte(body), &batch); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedBatch, err)
	}
	if batch.ContractName == "" {
		return nil, fmt.Errorf("%w: contractName is required", errMalformedBatch)
	}
	return &batch, nil
}
