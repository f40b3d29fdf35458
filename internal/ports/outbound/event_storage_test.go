package outbound

import (
	"context"
	"errors"
	"testing"

	"github.com/archon-research/event-store/internal/domain/entity"
)

// partialStorage only implements Save.
type partialStorage struct {
	UnimplementedEventStorage
	saved int
}

func (p *partialStorage) Save(ctx context.Context, contractName string, events []*entity.Event, deleteExisting bool) error {
	p.saved += len(events)
	return nil
}

func TestUnimplementedEventStorage_FailsLoudly(t *testing.T) {
	var storage EventStorage = &partialStorage{}
	ctx := context.Background()

	if err := storage.Save(ctx, "KittyCore", []*entity.Event{{}}, false); err != nil {
		t.Fatalf("overridden Save returned error: %v", err)
	}

	if _, err := storage.GetEvents(ctx, GetEventsArgs{Limit: 1}); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("GetEvents: expected ErrNotImplemented, got %v", err)
	}
	if _, err := storage.FindByReturnValues(ctx, FindByReturnValuesArgs{Key: "kittyId", Value: "1"}); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("FindByReturnValues: expected ErrNotImplemented, got %v", err)
	}
	if _, err := storage.GetKittyHistory(ctx, "1"); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("GetKittyHistory: expected ErrNotImplemented, got %v", err)
	}
}

func TestUnimplementedEventStorage_Save(t *testing.T) {
	err := UnimplementedEventStorage{}.Save(context.Background(), "KittyCore", nil, false)
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if err.Error() != "save: not implemented" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
