// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/archon-research/event-store/internal/domain/entity"
)

// ErrNotImplemented is returned by backends that do not support an operation.
var ErrNotImplemented = errors.New("not implemented")

// SortOrder selects the block number ordering of GetEvents.
type SortOrder int

const (
	// Ascending orders by block number, oldest first. The zero value behaves the same.
	Ascending SortOrder = 1
	// Descending orders by block number, newest first.
	Descending SortOrder = -1
)

// GetEventsArgs filters a GetEvents query. ContractName and EventName are
// optional and combined with AND when both are set.
type GetEventsArgs struct {
	// Limit caps the number of rows returned. Zero returns no rows.
	Limit        uint64
	ContractName string
	EventName    string
	Order        SortOrder
}

// FindByReturnValuesArgs selects events whose returnValues[Key] equals Value
// when compared as text.
type FindByReturnValuesArgs struct {
	Key   string
	Value string
}

// EventStorage defines the capability set every event storage backend provides.
type EventStorage interface {
	// Save persists events for contractName. Writes are idempotent: a
	// transaction or event that already exists is left untouched.
	// With deleteExisting, transactions of contractName whose hash is in the
	// batch are deleted together with their events before the insert.
	// The whole call is atomic.
	Save(ctx context.Context, contractName string, events []*entity.Event, deleteExisting bool) error

	// GetEvents returns joined transaction and event rows ordered by block number.
	GetEvents(ctx context.Context, args GetEventsArgs) ([]entity.EventRecord, error)

	// FindByReturnValues returns events with a matching named return value,
	// ordered by block number ascending.
	FindByReturnValues(ctx context.Context, args FindByReturnValuesArgs) ([]entity.EventRecord, error)

	// GetKittyHistory returns every event referencing kittyID under any of
	// the kittyId, matronId, sireId or tokenId fields, ordered by block number ascending.
	GetKittyHistory(ctx context.Context, kittyID string) ([]entity.EventRecord, error)
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UnimplementedEventStorage can be embedded by partial backends. Every
// operation the embedding type does not override fails with ErrNotImplemented.
type UnimplementedEventStorage struct{}

// Compile-time check that UnimplementedEventStorage implements EventStorage
var _ EventStorage = UnimplementedEventStorage{}

func (UnimplementedEventStorage) Save(context.Context, string, []*entity.Event, bool) error {
	return fmt.Errorf("save: %w", ErrNotImplemented)
}

func (UnimplementedEventStorage) GetEvents(context.Context, GetEventsArgs) ([]entity.EventRecord, error) {
	return nil, fmt.Errorf("getEvents: %w", ErrNotImplemented)
}

func (UnimplementedEventStorage) FindByReturnValues(context.Context, FindByReturnValuesArgs) ([]entity.EventRecord, error) {
	return nil, fmt.Errorf("findByReturnValues: %w", ErrNotImplemented)
}

func (UnimplementedEventStorage) GetKittyHistory(context.Context, string) ([]entity.EventRecord, error) {
	return nil, fmt.Errorf("getKittyHistory: %w", ErrNotImplemented)
}

// KittyIDFields are the returnValues fields under which the CryptoKitties
// contracts reference a kitty, depending on the event type.
var KittyIDFields = []string{"kittyId", "matronId", "sireId", "tokenId"}
