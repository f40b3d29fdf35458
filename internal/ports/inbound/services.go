// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"time"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

// EventIngester is the write use case. Ingestion callers go through it
// instead of calling a storage backend directly.
//
// ProcessEvents validates the whole batch before saving any of it. A batch
// is rejected when an event is nil, has an empty name, has a negative
// logIndex or blockNumber, or has a transactionHash that is not 0x-prefixed
// hex of exactly 32 bytes. Rejections wrap eventstorage.ErrInvalidEvent and
// name the index of the offending event, so callers can tell them apart
// from storage failures and must not retry them.
type EventIngester interface {
	ProcessEvents(ctx context.Context, contractName string, events []*entity.Event, deleteExisting bool) error
}

// EventQueryService defines the read use cases exposed to query-serving adapters.
type EventQueryService interface {
	GetEvents(ctx context.Context, args outbound.GetEventsArgs) ([]entity.EventRecord, error)
	FindByReturnValues(ctx context.Context, args outbound.FindByReturnValuesArgs) ([]entity.EventRecord, error)
	GetKittyHistory(ctx context.Context, kittyID string) ([]entity.EventRecord, error)
	Ping(ctx context.Context) error
}

// HealthChecker defines the interface for services that can report readiness and liveness.
//
// Implementations:
//   - event persister: ready after the first successful queue poll, healthy
//     while polls keep succeeding
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	IsHealthy() bool

	// LastPoll returns when the queue was last polled successfully, or the
	// zero time if it never was.
	LastPoll() time.Time
}
