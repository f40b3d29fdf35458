package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

func hash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func event(name string, txN int, logIndex, block int64, rv entity.ReturnValues) *entity.Event {
	return &entity.Event{
		EventName:       name,
		LogIndex:        logIndex,
		TransactionHash: hash(txN),
		BlockNumber:     block,
		ReturnValues:    rv,
	}
}

func TestEventStorage_SaveIsIdempotent(t *testing.T) {
	s := NewEventStorage(nil)
	ctx := context.Background()
	events := []*entity.Event{
		event("Birth", 1, 0, 10, entity.ReturnValues{"kittyId": "1"}),
		event("Transfer", 1, 1, 10, nil),
		event("Birth", 2, 0, 11, nil),
	}

	for i := 0; i < 2; i++ {
		if err := s.Save(ctx, "KittyCore", events, false); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	if len(s.transactions) != 2 {
		t.Errorf("expected 2 transactions, got %d", len(s.transactions))
	}
	if len(s.events) != 3 {
		t.Errorf("expected 3 events, got %d", len(s.events))
	}
}

func TestEventStorage_SaveKeepsExistingRows(t *testing.T) {
	s := NewEventStorage(nil)
	ctx := context.Background()

	if err := s.Save(ctx, "KittyCore", []*entity.Event{event("Birth", 1, 0, 10, entity.ReturnValues{"kittyId": "1"})}, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "KittyCore", []*entity.Event{event("Birth", 1, 0, 99, entity.ReturnValues{"kittyId": "9"})}, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := s.GetEvents(ctx, outbound.GetEventsArgs{Limit: 100})
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(records) != 1 || records[0].BlockNumber != 10 {
		t.Fatalf("expected original row to survive, got %+v", records)
	}
	if v, _ := records[0].ReturnValues.String("kittyId"); v != "1" {
		t.Errorf("expected kittyId 1, got %q", v)
	}
}

func TestEventStorage_SaveIsAtomic(t *testing.T) {
	s := NewEventStorage(nil)
	err := s.Save(context.Background(), "KittyCore", []*entity.Event{
		event("Birth", 1, 0, 10, nil),
		event("Birth", 2, -1, 10, nil),
	}, false)
	if err == nil {
		t.Fatal("expected error for negative log index")
	}
	if len(s.transactions) != 0 || len(s.events) != 0 {
		t.Errorf("expected empty store, got %d transactions and %d events", len(s.transactions), len(s.events))
	}
}

func TestEventStorage_DeleteExisting(t *testing.T) {
	s := NewEventStorage(nil)
	ctx := context.Background()

	if err := s.Save(ctx, "KittyCore", []*entity.Event{
		event("Birth", 1, 0, 1, nil),
		event("Transfer", 1, 1, 1, nil),
	}, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "Auction", []*entity.Event{event("AuctionCreated", 2, 0, 1, nil)}, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Save(ctx, "KittyCore", []*entity.Event{event("Birth", 1, 0, 2, nil)}, true); err != nil {
		t.Fatalf("save with delete: %v", err)
	}
	// Another contract's transaction is not in scope of the delete.
	if err := s.Save(ctx, "KittyCore", []*entity.Event{event("Birth", 2, 5, 7, nil)}, true); err != nil {
		t.Fatalf("save with delete: %v", err)
	}

	core, err := s.GetEvents(ctx, outbound.GetEventsArgs{Limit: 100, ContractName: "KittyCore"})
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(core) != 2 {
		t.Fatalf("expected 2 KittyCore events, got %d", len(core))
	}
	if core[0].TransactionHash != hash(2) || core[0].BlockNumber != 1 {
		t.Errorf("expected event joined to the surviving Auction transaction first, got %+v", core[0])
	}
	if core[1].TransactionHash != hash(1) || core[1].BlockNumber != 2 {
		t.Errorf("expected replaced transaction at block 2, got %+v", core[1])
	}

	auction, err := s.GetEvents(ctx, outbound.GetEventsArgs{Limit: 100, ContractName: "Auction"})
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(auction) != 1 {
		t.Errorf("expected Auction event to survive, got %d", len(auction))
	}
}

func TestEventStorage_GetEventsOrdering(t *testing.T) {
	s := NewEventStorage(nil)
	ctx := context.Background()
	if err := s.Save(ctx, "KittyCore", []*entity.Event{
		event("Transfer", 1, 1, 100, nil),
		event("Birth", 1, 0, 100, nil),
		event("Birth", 2, 0, 50, nil),
		event("Birth", 3, 0, 150, nil),
	}, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	tests := []struct {
		name string
		args outbound.GetEventsArgs
		want []int64
	}{
		{name: "default ascending", args: outbound.GetEventsArgs{Limit: 100}, want: []int64{50, 100, 100, 150}},
		{name: "descending", args: outbound.GetEventsArgs{Limit: 100, Order: outbound.Descending}, want: []int64{150, 100, 100, 50}},
		{name: "limit", args: outbound.GetEventsArgs{Order: outbound.Ascending, Limit: 2}, want: []int64{50, 100}},
		{name: "zero limit", args: outbound.GetEventsArgs{}, want: []int64{}},
		{name: "event filter", args: outbound.GetEventsArgs{Limit: 100, EventName: "Transfer"}, want: []int64{100}},
		{name: "unknown contract", args: outbound.GetEventsArgs{Limit: 100, ContractName: "Nope"}, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.GetEvents(ctx, tt.args)
			if err != nil {
				t.Fatalf("get events: %v", err)
			}
			if len(records) != len(tt.want) {
				t.Fatalf("expected %d records, got %d", len(tt.want), len(records))
			}
			for i, r := range records {
				if r.BlockNumber != tt.want[i] {
					t.Errorf("record %d: expected block %d, got %d", i, tt.want[i], r.BlockNumber)
				}
			}
		})
	}

	asc, _ := s.GetEvents(ctx, outbound.GetEventsArgs{Limit: 100})
	if *asc[1].LogIndex != 0 || *asc[2].LogIndex != 1 {
		t.Error("expected log index tie-break within a block")
	}
}

func TestEventStorage_FindByReturnValues(t *testing.T) {
	s := NewEventStorage(nil)
	ctx := context.Background()

	var rv entity.ReturnValues
	if err := json.Unmarshal([]byte(`{"genes":626837621154801616088980922659877168609154386318304496692374110716999053,"to":"0xbob"}`), &rv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Save(ctx, "KittyCore", []*entity.Event{
		event("Birth", 1, 0, 3, rv),
		event("Transfer", 2, 0, 1, entity.ReturnValues{"to": "0xbob"}),
		event("Transfer", 3, 0, 2, entity.ReturnValues{"to": "0xalice"}),
	}, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := s.FindByReturnValues(ctx, outbound.FindByReturnValuesArgs{Key: "to", Value: "0xbob"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(records) != 2 || records[0].BlockNumber != 1 || records[1].BlockNumber != 3 {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[0].TransactionHash != "" || records[0].LogIndex != nil || records[0].Event != nil {
		t.Errorf("expected narrow record, got %+v", records[0])
	}

	big, err := s.FindByReturnValues(ctx, outbound.FindByReturnValuesArgs{
		Key:   "genes",
		Value: "626837621154801616088980922659877168609154386318304496692374110716999053",
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(big) != 1 {
		t.Errorf("expected uint256 value to match exactly, got %d records", len(big))
	}

	if _, err := s.FindByReturnValues(ctx, outbound.FindByReturnValuesArgs{Value: "x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestEventStorage_GetKittyHistory(t *testing.T) {
	s := NewEventStorage(nil)
	ctx := context.Background()
	if err := s.Save(ctx, "KittyCore", []*entity.Event{
		event("Transfer", 4, 0, 13, entity.ReturnValues{"tokenId": "42"}),
		event("Pregnant", 3, 0, 12, entity.ReturnValues{"matronId": "8", "sireId": "42"}),
		event("Pregnant", 2, 0, 11, entity.ReturnValues{"matronId": "42", "sireId": "7"}),
		event("Birth", 1, 0, 10, entity.ReturnValues{"kittyId": "42"}),
		event("Birth", 5, 0, 9, entity.ReturnValues{"kittyId": "43", "owner": "42"}),
	}, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := s.GetKittyHistory(ctx, "42")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []string{"Birth", "Pregnant", "Pregnant", "Transfer"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, r := range records {
		if r.EventName != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], r.EventName)
		}
	}
}
