// Package eventstorage holds the backend-independent event storage logic.
// Ingestion and query adapters go through Service; only Service talks to an
// outbound.EventStorage backend.
package eventstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/inbound"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/archon-research/event-store/internal/services/event_storage"
)

// ErrInvalidEvent is returned by ProcessEvents when an event in the batch
// cannot be stored. Resubmitting the same batch will fail again.
var ErrInvalidEvent = errors.New("invalid event")

// Compile-time checks that Service implements the inbound ports
var (
	_ inbound.EventIngester     = (*Service)(nil)
	_ inbound.EventQueryService = (*Service)(nil)
)

// Service prepares event batches for storage and serves reads.
type Service struct {
	storage outbound.EventStorage
	logger  *slog.Logger
}

// NewService creates a Service over storage.
func NewService(storage outbound.EventStorage, logger *slog.Logger) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("event storage cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		storage: storage,
		logger:  logger.With("component", "event-storage-service"),
	}, nil
}

// ProcessEvents removes the positional duplicates from every event's return
// values, validates the batch and saves it. The events are modified in place.
// Validation failures wrap ErrInvalidEvent and nothing is saved.
func (s *Service) ProcessEvents(ctx context.Context, contractName string, events []*entity.Event, deleteExisting bool) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "eventstorage.processEvents",
		trace.WithAttributes(
			attribute.String("contract.name", contractName),
			attribute.Int("events.count", len(events)),
			attribute.Bool("delete_existing", deleteExisting),
		),
	)
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	for i, e := range events {
		if e == nil {
			err := fmt.Errorf("%w at index %d: nil event", ErrInvalidEvent, i)
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid event")
			return err
		}
		e.ReturnValues.StripPositional()
		if err := e.Validate(); err != nil {
			err = fmt.Errorf("%w at index %d: %w", ErrInvalidEvent, i, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid event")
			return err
		}
	}

	if err := s.storage.Save(ctx, contractName, events, deleteExisting); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save events")
		return fmt.Errorf("failed to save events for %s: %w", contractName, err)
	}

	s.logger.Debug("processed events", "contract", contractName, "count", len(events), "deleteExisting", deleteExisting)
	return nil
}

// GetEvents returns stored events filtered and ordered per args.
func (s *Service) GetEvents(ctx context.Context, args outbound.GetEventsArgs) ([]entity.EventRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "eventstorage.getEvents",
		trace.WithAttributes(
			attribute.Int64("limit", int64(args.Limit)),
			attribute.String("contract.name", args.ContractName),
			attribute.String("event.name", args.EventName),
			attribute.Int("order", int(args.Order)),
		),
	)
	defer span.End()

	records, err := s.storage.GetEvents(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get events")
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, nil
}

// FindByReturnValues returns events whose return value under args.Key equals args.Value.
func (s *Service) FindByReturnValues(ctx context.Context, args outbound.FindByReturnValuesArgs) ([]entity.EventRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "eventstorage.findByReturnValues",
		trace.WithAttributes(attribute.String("return_value.key", args.Key)),
	)
	defer span.End()

	records, err := s.storage.FindByReturnValues(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find by return values")
		return nil, fmt.Errorf("failed to find events by return value %q: %w", args.Key, err)
	}
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, nil
}

// GetKittyHistory returns every event that references kittyID.
func (s *Service) GetKittyHistory(ctx context.Context, kittyID string) ([]entity.EventRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "eventstorage.getKittyHistory",
		trace.WithAttributes(attribute.String("kitty.id", kittyID)),
	)
	defer span.End()

	records, err := s.storage.GetKittyHistory(ctx, kittyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get kitty history")
		return nil, fmt.Errorf("failed to get history of kitty %s: %w", kittyID, err)
	}
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, nil
}

// Ping checks the backend when it supports health probes.
func (s *Service) Ping(ctx context.Context) error {
	p, ok := s.storage.(outbound.Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
